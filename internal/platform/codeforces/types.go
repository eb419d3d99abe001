package codeforces

import "time"

const (
	statusOK        = "OK"
	verdictAccepted = "OK" // Codeforces reports accepted submissions as verdict "OK"
)

// Problem is the descriptor attached to a room. Immutable once selected.
type Problem struct {
	ContestID int      `json:"contest_id"`
	Index     string   `json:"index"`
	ID        string   `json:"problem_id"` // contestId + index, e.g. "4A"
	Name      string   `json:"name"`
	Slug      string   `json:"slug"`
	Rating    int      `json:"rating"`
	Tags      []string `json:"tags"`
	URL       string   `json:"url"`
}

// AcceptedSubmission is the winning submission as reported by Codeforces.
type AcceptedSubmission struct {
	ID          int64     `json:"submission_id"`
	ProblemID   string    `json:"problem_id"`
	Verdict     string    `json:"verdict"`
	TimeMs      int       `json:"time_ms"`
	MemoryBytes int64     `json:"memory_bytes"`
	Language    string    `json:"language"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// CheckOutcome distinguishes "no accepted submission yet" from "the query
// itself failed". Callers retry identically either way, but logging and
// metrics need to tell them apart.
type CheckOutcome int

const (
	OutcomeNoAccepted CheckOutcome = iota
	OutcomeAccepted
	OutcomeQueryFailed
)

type CheckResult struct {
	Outcome    CheckOutcome
	Submission *AcceptedSubmission // set only for OutcomeAccepted
	Reason     string              // set only for OutcomeQueryFailed
}

// Wire types for the Codeforces API.

type apiProblem struct {
	ContestID int      `json:"contestId"`
	Index     string   `json:"index"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	Rating    int      `json:"rating"`
	Tags      []string `json:"tags"`
}

type problemsetResponse struct {
	Status string `json:"status"`
	Result struct {
		Problems []apiProblem `json:"problems"`
	} `json:"result"`
}

type apiSubmission struct {
	ID                  int64      `json:"id"`
	CreationTimeSeconds int64      `json:"creationTimeSeconds"`
	Problem             apiProblem `json:"problem"`
	ProgrammingLanguage string     `json:"programmingLanguage"`
	Verdict             string     `json:"verdict"`
	TimeConsumedMillis  int        `json:"timeConsumedMillis"`
	MemoryConsumedBytes int64      `json:"memoryConsumedBytes"`
}

type userStatusResponse struct {
	Status  string          `json:"status"`
	Comment string          `json:"comment,omitempty"`
	Result  []apiSubmission `json:"result"`
}

type userInfoResponse struct {
	Status  string `json:"status"`
	Comment string `json:"comment,omitempty"`
}
