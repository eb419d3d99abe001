package model_test

import (
	"testing"

	"codeduel/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatingBounds(t *testing.T) {
	tests := []struct {
		name       string
		difficulty model.Difficulty
		wantMin    int
		wantMax    int
		wantOK     bool
	}{
		{name: "easy", difficulty: model.DifficultyEasy, wantMin: 800, wantMax: 1200, wantOK: true},
		{name: "medium", difficulty: model.DifficultyMedium, wantMin: 1200, wantMax: 1600, wantOK: true},
		{name: "hard", difficulty: model.DifficultyHard, wantMin: 1600, wantMax: 2000, wantOK: true},
		{name: "unknown", difficulty: model.Difficulty("nightmare"), wantOK: false},
		{name: "empty", difficulty: model.Difficulty(""), wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			min, max, ok := tt.difficulty.RatingBounds()
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.wantMin, min)
				assert.Equal(t, tt.wantMax, max)
			}
		})
	}
}

func TestPhaseTerminal(t *testing.T) {
	assert.False(t, model.PhaseWaiting.Terminal())
	assert.False(t, model.PhaseInProgress.Terminal())
	assert.True(t, model.PhaseCompleted.Terminal())
	assert.True(t, model.PhaseAbandoned.Terminal())
}

func TestParticipantsCreatorFirst(t *testing.T) {
	opponentID := "user-2"
	opponentHandle := "rival"
	room := &model.Room{
		Code:           "ABC123",
		CreatorID:      "user-1",
		CreatorHandle:  "tourist",
		OpponentID:     &opponentID,
		OpponentHandle: &opponentHandle,
	}

	participants := room.Participants()
	require.Len(t, participants, 2)
	assert.Equal(t, "user-1", participants[0].UserID)
	assert.Equal(t, "tourist", participants[0].Handle)
	assert.Equal(t, "user-2", participants[1].UserID)

	// Waiting room: only the creator.
	room.OpponentID = nil
	room.OpponentHandle = nil
	participants = room.Participants()
	require.Len(t, participants, 1)
	assert.Equal(t, "user-1", participants[0].UserID)
}
