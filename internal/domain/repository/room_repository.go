package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"codeduel/internal/common"
	"codeduel/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

// RoomRepository mirrors the in-memory registry to the rooms table. The
// registry stays authoritative while a match runs; rows here are for
// durability and history.
type RoomRepository interface {
	Create(ctx context.Context, room *model.Room) error
	FindByCode(ctx context.Context, code string) (*model.Room, error)
	AttachOpponent(ctx context.Context, code, opponentID, opponentHandle string, startedAt time.Time) error
	MarkAbandoned(ctx context.Context, code string, endedAt time.Time) error
	MarkCompleted(ctx context.Context, tx *sql.Tx, code, winnerID string, endedAt time.Time) error
	ListByParticipant(ctx context.Context, userID string, limit int) ([]model.Room, error)
}

type pgRoomRepository struct {
	db *sql.DB
}

func NewPgRoomRepository(db *sql.DB) RoomRepository {
	return &pgRoomRepository{db: db}
}

const roomColumns = `room_code, creator_id, creator_cf_handle, opponent_id, opponent_cf_handle,
	problem_id, problem_name, problem_rating, problem_url, status, created_at,
	match_started_at, match_ended_at, winner_id`

func (r *pgRoomRepository) Create(ctx context.Context, room *model.Room) error {
	query := `INSERT INTO rooms (room_code, creator_id, creator_cf_handle,
	            problem_id, problem_name, problem_rating, problem_url, status, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, query,
		room.Code, room.CreatorID, room.CreatorHandle,
		room.Problem.ID, room.Problem.Name, room.Problem.Rating, room.Problem.URL,
		room.Phase, room.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("room code %s already exists: %w", room.Code, common.ErrConflict)
		}
		return fmt.Errorf("pgRoomRepository.Create: %w", err)
	}
	return nil
}

func (r *pgRoomRepository) FindByCode(ctx context.Context, code string) (*model.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms WHERE room_code = $1`
	room, err := scanRoom(r.db.QueryRowContext(ctx, query, code))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrRoomNotFound
		}
		return nil, fmt.Errorf("pgRoomRepository.FindByCode: %w", err)
	}
	return room, nil
}

func (r *pgRoomRepository) AttachOpponent(ctx context.Context, code, opponentID, opponentHandle string, startedAt time.Time) error {
	query := `UPDATE rooms
	          SET opponent_id = $1, opponent_cf_handle = $2, status = $3, match_started_at = $4
	          WHERE room_code = $5`
	_, err := r.db.ExecContext(ctx, query,
		opponentID, opponentHandle, model.PhaseInProgress, startedAt, code)
	if err != nil {
		return fmt.Errorf("pgRoomRepository.AttachOpponent: %w", err)
	}
	return nil
}

func (r *pgRoomRepository) MarkAbandoned(ctx context.Context, code string, endedAt time.Time) error {
	query := `UPDATE rooms SET status = $1, match_ended_at = $2
	          WHERE room_code = $3 AND status NOT IN ($4, $5)`
	_, err := r.db.ExecContext(ctx, query,
		model.PhaseAbandoned, endedAt, code, model.PhaseCompleted, model.PhaseAbandoned)
	if err != nil {
		return fmt.Errorf("pgRoomRepository.MarkAbandoned: %w", err)
	}
	return nil
}

func (r *pgRoomRepository) MarkCompleted(ctx context.Context, tx *sql.Tx, code, winnerID string, endedAt time.Time) error {
	query := `UPDATE rooms SET status = $1, winner_id = $2, match_ended_at = $3
	          WHERE room_code = $4`
	_, err := tx.ExecContext(ctx, query, model.PhaseCompleted, winnerID, endedAt, code)
	if err != nil {
		return fmt.Errorf("pgRoomRepository.MarkCompleted: %w", err)
	}
	return nil
}

func (r *pgRoomRepository) ListByParticipant(ctx context.Context, userID string, limit int) ([]model.Room, error) {
	query := `SELECT ` + roomColumns + ` FROM rooms
	          WHERE creator_id = $1 OR opponent_id = $1
	          ORDER BY created_at DESC LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("pgRoomRepository.ListByParticipant: %w", err)
	}
	defer rows.Close()

	var result []model.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("pgRoomRepository.ListByParticipant scan: %w", err)
		}
		result = append(result, *room)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRoom(row rowScanner) (*model.Room, error) {
	room := &model.Room{}
	err := row.Scan(
		&room.Code, &room.CreatorID, &room.CreatorHandle,
		&room.OpponentID, &room.OpponentHandle,
		&room.Problem.ID, &room.Problem.Name, &room.Problem.Rating, &room.Problem.URL,
		&room.Phase, &room.CreatedAt, &room.StartedAt, &room.EndedAt, &room.WinnerID,
	)
	if err != nil {
		return nil, err
	}
	return room, nil
}
