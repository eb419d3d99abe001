package model

import "time"

// WinningSubmission records the accepted submission that decided a match.
// Created exactly once per completed room, immutable thereafter.
type WinningSubmission struct {
	RoomCode       string    `json:"room_code"`
	WinnerID       string    `json:"winner_id"`
	CFSubmissionID int64     `json:"cf_submission_id"`
	ProblemID      string    `json:"problem_id"`
	Verdict        string    `json:"verdict"`
	TimeMs         int       `json:"time_ms"`
	MemoryBytes    int64     `json:"memory_bytes"`
	Language       string    `json:"language"`
	SubmittedAt    time.Time `json:"submitted_at"`
}
