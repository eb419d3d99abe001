package model

import (
	"time"

	"codeduel/internal/platform/codeforces"
)

type RoomPhase string

const (
	PhaseWaiting    RoomPhase = "waiting"     // exactly one participant, the creator
	PhaseInProgress RoomPhase = "in_progress" // both participants attached, match running
	PhaseCompleted  RoomPhase = "completed"   // terminal; winner set
	PhaseAbandoned  RoomPhase = "abandoned"   // terminal; no winner
)

// Terminal reports whether the phase can never change again.
func (p RoomPhase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseAbandoned
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// RatingBounds maps a difficulty to its problem rating window. Lower bound
// inclusive, upper bound exclusive.
func (d Difficulty) RatingBounds() (min, max int, ok bool) {
	switch d {
	case DifficultyEasy:
		return 800, 1200, true
	case DifficultyMedium:
		return 1200, 1600, true
	case DifficultyHard:
		return 1600, 2000, true
	}
	return 0, 0, false
}

// Room is one bounded two-party match, identified by a short shareable code.
// Opponent fields are set together, exactly once, on waiting -> in_progress.
// EndedAt is set iff the phase is terminal.
type Room struct {
	Code           string             `json:"room_code"`
	CreatorID      string             `json:"creator_id"`
	CreatorHandle  string             `json:"creator_cf_handle"`
	OpponentID     *string            `json:"opponent_id,omitempty"`
	OpponentHandle *string            `json:"opponent_cf_handle,omitempty"`
	Problem        codeforces.Problem `json:"problem"`
	Phase          RoomPhase          `json:"status"`
	CreatedAt      time.Time          `json:"created_at"`
	StartedAt      *time.Time         `json:"match_started_at,omitempty"`
	EndedAt        *time.Time         `json:"match_ended_at,omitempty"`
	WinnerID       *string            `json:"winner_id,omitempty"`
}

// Participants returns both sides in tie-break order: creator first. The
// creator is always checked first by the poller, so simultaneous accepted
// submissions resolve in the creator's favor.
func (r *Room) Participants() []Participant {
	out := []Participant{{UserID: r.CreatorID, Handle: r.CreatorHandle}}
	if r.OpponentID != nil && r.OpponentHandle != nil {
		out = append(out, Participant{UserID: *r.OpponentID, Handle: *r.OpponentHandle})
	}
	return out
}

// Participant is one side of a room.
type Participant struct {
	UserID string `json:"user_id"`
	Handle string `json:"cf_handle"`
}
