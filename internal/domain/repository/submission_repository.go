package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"codeduel/internal/common"
	"codeduel/internal/domain/model"
)

// WinningSubmissionRepository stores the accepted submission that decided a
// match. The insert participates in the winner-declaration transaction.
type WinningSubmissionRepository interface {
	Create(ctx context.Context, tx *sql.Tx, sub *model.WinningSubmission) error
	FindByRoomCode(ctx context.Context, roomCode string) (*model.WinningSubmission, error)
}

type pgWinningSubmissionRepository struct {
	db *sql.DB
}

func NewPgWinningSubmissionRepository(db *sql.DB) WinningSubmissionRepository {
	return &pgWinningSubmissionRepository{db: db}
}

func (r *pgWinningSubmissionRepository) Create(ctx context.Context, tx *sql.Tx, sub *model.WinningSubmission) error {
	query := `INSERT INTO winning_submissions
	            (room_code, winner_id, cf_submission_id, problem_id, verdict,
	             time_ms, memory_bytes, programming_language, submitted_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := tx.ExecContext(ctx, query,
		sub.RoomCode, sub.WinnerID, sub.CFSubmissionID, sub.ProblemID, sub.Verdict,
		sub.TimeMs, sub.MemoryBytes, sub.Language, sub.SubmittedAt)
	if err != nil {
		return fmt.Errorf("pgWinningSubmissionRepository.Create: %w", err)
	}
	return nil
}

func (r *pgWinningSubmissionRepository) FindByRoomCode(ctx context.Context, roomCode string) (*model.WinningSubmission, error) {
	query := `SELECT room_code, winner_id, cf_submission_id, problem_id, verdict,
	                 time_ms, memory_bytes, programming_language, submitted_at
	          FROM winning_submissions WHERE room_code = $1`
	sub := &model.WinningSubmission{}
	err := r.db.QueryRowContext(ctx, query, roomCode).Scan(
		&sub.RoomCode, &sub.WinnerID, &sub.CFSubmissionID, &sub.ProblemID, &sub.Verdict,
		&sub.TimeMs, &sub.MemoryBytes, &sub.Language, &sub.SubmittedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgWinningSubmissionRepository.FindByRoomCode: %w", err)
	}
	return sub, nil
}
