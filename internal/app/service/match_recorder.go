package service

import (
	"context"
	"database/sql"

	"codeduel/internal/common"
	"codeduel/internal/domain/model"
	"codeduel/internal/domain/repository"
)

// MatchRecorder persists a winner declaration. The room update, the winning
// submission insert, and the win-counter increment are three related writes
// and must land atomically.
type MatchRecorder interface {
	RecordResult(ctx context.Context, room *model.Room, sub *model.WinningSubmission) error
}

type txMatchRecorder struct {
	db       *sql.DB
	roomRepo repository.RoomRepository
	subRepo  repository.WinningSubmissionRepository
	userRepo repository.UserRepository
}

func NewTxMatchRecorder(
	db *sql.DB,
	roomRepo repository.RoomRepository,
	subRepo repository.WinningSubmissionRepository,
	userRepo repository.UserRepository,
) MatchRecorder {
	return &txMatchRecorder{db: db, roomRepo: roomRepo, subRepo: subRepo, userRepo: userRepo}
}

func (r *txMatchRecorder) RecordResult(ctx context.Context, room *model.Room, sub *model.WinningSubmission) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return common.Errorf("failed to begin winner transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.roomRepo.MarkCompleted(ctx, tx, room.Code, sub.WinnerID, *room.EndedAt); err != nil {
		return common.Errorf("failed to mark room completed: %w", err)
	}
	if err := r.subRepo.Create(ctx, tx, sub); err != nil {
		return common.Errorf("failed to store winning submission: %w", err)
	}
	if err := r.userRepo.IncrementWins(ctx, tx, sub.WinnerID); err != nil {
		return common.Errorf("failed to increment win counter: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return common.Errorf("failed to commit winner transaction: %w", err)
	}
	return nil
}
