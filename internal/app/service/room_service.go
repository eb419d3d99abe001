package service

import (
	"context"
	"log"
	"math/rand"
	"strings"
	"sync"
	"time"

	"codeduel/internal/common"
	"codeduel/internal/domain/model"
	"codeduel/internal/domain/repository"
	"codeduel/internal/platform/codeforces"
)

// VerdictClient is the slice of the Codeforces client the match engine
// consumes. Satisfied by *codeforces.Client; faked in tests.
type VerdictClient interface {
	RandomProblem(ctx context.Context, minRating, maxRating int) codeforces.Problem
	VerifyHandle(ctx context.Context, handle string) bool
	CheckRecentAccepted(ctx context.Context, handle, problemID string, after time.Time) codeforces.CheckResult
}

// WinRecorder receives the winner's id after a match completes, outside the
// declaration transaction (leaderboard cache update).
type WinRecorder interface {
	RecordWin(ctx context.Context, userID string) error
}

const roomCodeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// RoomService owns the in-memory room registry and enforces the phase
// state machine. It is the single source of truth for a match while it
// runs; Postgres rows are a lazily-written mirror for durability and
// history. All phase transitions are serialized under one mutex so exactly
// one of two racing transitions wins; the loser's side effects are
// suppressed by the phase precondition checks.
type RoomService struct {
	mu    sync.RWMutex
	rooms map[string]*model.Room // room code -> live room

	roomRepo    repository.RoomRepository
	userRepo    repository.UserRepository
	subRepo     repository.WinningSubmissionRepository
	recorder    MatchRecorder
	cf          VerdictClient
	winRecorder WinRecorder // optional

	codeLength int
}

func NewRoomService(
	roomRepo repository.RoomRepository,
	userRepo repository.UserRepository,
	subRepo repository.WinningSubmissionRepository,
	recorder MatchRecorder,
	cf VerdictClient,
	winRecorder WinRecorder,
	codeLength int,
) *RoomService {
	if codeLength <= 0 {
		codeLength = 6
	}
	return &RoomService{
		rooms:       make(map[string]*model.Room),
		roomRepo:    roomRepo,
		userRepo:    userRepo,
		subRepo:     subRepo,
		recorder:    recorder,
		cf:          cf,
		winRecorder: winRecorder,
		codeLength:  codeLength,
	}
}

// CreateRoom allocates a waiting room for the creator with a problem drawn
// from the difficulty's rating window. Problem selection never fails: the
// verdict client degrades to its fallback problem on upstream trouble.
func (s *RoomService) CreateRoom(ctx context.Context, creatorID string, difficulty model.Difficulty) (*model.Room, error) {
	minRating, maxRating, ok := difficulty.RatingBounds()
	if !ok {
		return nil, common.Errorf("unknown difficulty %q: %w", difficulty, common.ErrValidation)
	}

	creator, err := s.userRepo.FindByID(ctx, creatorID)
	if err != nil {
		return nil, common.Errorf("creator lookup failed: %w", err)
	}
	if creator.CodeforcesHandle == nil || *creator.CodeforcesHandle == "" {
		return nil, common.Errorf("a codeforces handle is required to create a room: %w", common.ErrBadRequest)
	}

	problem := s.cf.RandomProblem(ctx, minRating, maxRating)

	room := &model.Room{
		CreatorID:     creatorID,
		CreatorHandle: *creator.CodeforcesHandle,
		Problem:       problem,
		Phase:         model.PhaseWaiting,
		CreatedAt:     time.Now(),
	}

	s.mu.Lock()
	for {
		code := newRoomCode(s.codeLength)
		if _, taken := s.rooms[code]; !taken {
			room.Code = code
			s.rooms[code] = room
			break
		}
	}
	s.mu.Unlock()

	if err := s.roomRepo.Create(ctx, room); err != nil {
		s.mu.Lock()
		delete(s.rooms, room.Code)
		s.mu.Unlock()
		return nil, common.Errorf("failed to persist room: %w", err)
	}

	log.Printf("INFO: room %s created by %s (problem %s, rating %d)",
		room.Code, creatorID, problem.ID, problem.Rating)
	return snapshot(room), nil
}

// JoinRoom transitions a waiting room to in_progress, attaching the joiner
// as opponent. Preconditions: the room is waiting, the joiner is not the
// creator, and the joiner's handle verifies upstream. Opponent fields and
// the start timestamp are finalized together under the registry lock.
func (s *RoomService) JoinRoom(ctx context.Context, joinerID, code string) (*model.Room, error) {
	code = normalizeCode(code)

	// Cheap precheck before spending a rate-limited verification call.
	s.mu.RLock()
	room, exists := s.rooms[code]
	if exists && room.Phase != model.PhaseWaiting {
		s.mu.RUnlock()
		return nil, common.ErrRoomNotJoinable
	}
	s.mu.RUnlock()
	if !exists {
		return nil, common.ErrRoomNotFound
	}

	joiner, err := s.userRepo.FindByID(ctx, joinerID)
	if err != nil {
		return nil, common.Errorf("joiner lookup failed: %w", err)
	}
	if joiner.CodeforcesHandle == nil || *joiner.CodeforcesHandle == "" {
		return nil, common.Errorf("a codeforces handle is required to join a room: %w", common.ErrBadRequest)
	}
	if !s.cf.VerifyHandle(ctx, *joiner.CodeforcesHandle) {
		return nil, common.ErrHandleUnverified
	}

	now := time.Now()

	s.mu.Lock()
	room, exists = s.rooms[code]
	if !exists {
		s.mu.Unlock()
		return nil, common.ErrRoomNotFound
	}
	if room.Phase != model.PhaseWaiting {
		s.mu.Unlock()
		return nil, common.ErrRoomNotJoinable
	}
	if room.CreatorID == joinerID {
		s.mu.Unlock()
		return nil, common.ErrSelfJoin
	}
	handle := *joiner.CodeforcesHandle
	room.OpponentID = &joinerID
	room.OpponentHandle = &handle
	room.Phase = model.PhaseInProgress
	room.StartedAt = &now
	snap := snapshot(room)
	s.mu.Unlock()

	if err := s.roomRepo.AttachOpponent(ctx, code, joinerID, handle, now); err != nil {
		// The registry stays authoritative for the running match.
		log.Printf("ERROR: failed to persist opponent for room %s: %v", code, err)
	}

	log.Printf("INFO: match started in room %s (%s vs %s)", code, snap.CreatorHandle, handle)
	return snap, nil
}

// CompleteMatch finalizes a verdict hit. Idempotent: if the room already
// left in_progress (raced into abandoned, or a second hit in the same
// tick), the completion is dropped with ErrMatchFinished and no side
// effects, preserving the at-most-one-winner guarantee.
func (s *RoomService) CompleteMatch(ctx context.Context, code, winnerID string, sub *codeforces.AcceptedSubmission) (*model.Room, error) {
	code = normalizeCode(code)
	now := time.Now()

	s.mu.Lock()
	room, exists := s.rooms[code]
	if !exists {
		s.mu.Unlock()
		return nil, common.ErrRoomNotFound
	}
	if room.Phase != model.PhaseInProgress {
		s.mu.Unlock()
		return nil, common.ErrMatchFinished
	}
	room.Phase = model.PhaseCompleted
	room.WinnerID = &winnerID
	room.EndedAt = &now
	snap := snapshot(room)
	delete(s.rooms, code) // terminal rooms leave the registry; the row survives
	s.mu.Unlock()

	record := &model.WinningSubmission{
		RoomCode:       code,
		WinnerID:       winnerID,
		CFSubmissionID: sub.ID,
		ProblemID:      sub.ProblemID,
		Verdict:        sub.Verdict,
		TimeMs:         sub.TimeMs,
		MemoryBytes:    sub.MemoryBytes,
		Language:       sub.Language,
		SubmittedAt:    sub.SubmittedAt,
	}

	// Persistence failure does not roll back the in-memory completion; the
	// match outcome already happened. Logged for reconciliation.
	if err := s.recorder.RecordResult(ctx, snap, record); err != nil {
		log.Printf("ERROR: failed to persist winner declaration for room %s: %v", code, err)
	} else if s.winRecorder != nil {
		if err := s.winRecorder.RecordWin(ctx, winnerID); err != nil {
			log.Printf("WARN: leaderboard update failed for %s: %v", winnerID, err)
		}
	}

	log.Printf("INFO: room %s completed, winner %s (submission %d, %dms)",
		code, winnerID, sub.ID, sub.TimeMs)
	return snap, nil
}

// AbandonRoom forces a non-terminal room into abandoned (explicit leave or
// transport disconnect). Terminal phases are never overwritten; abandoning
// an already-finished room reports changed=false with no side effects.
func (s *RoomService) AbandonRoom(ctx context.Context, code string) (room *model.Room, changed bool, err error) {
	code = normalizeCode(code)
	now := time.Now()

	s.mu.Lock()
	live, exists := s.rooms[code]
	if !exists {
		s.mu.Unlock()
		return nil, false, common.ErrRoomNotFound
	}
	if live.Phase.Terminal() {
		s.mu.Unlock()
		return snapshot(live), false, nil
	}
	live.Phase = model.PhaseAbandoned
	live.EndedAt = &now
	snap := snapshot(live)
	delete(s.rooms, code)
	s.mu.Unlock()

	if err := s.roomRepo.MarkAbandoned(ctx, code, now); err != nil {
		log.Printf("ERROR: failed to persist abandonment for room %s: %v", code, err)
	}

	log.Printf("INFO: room %s abandoned", code)
	return snap, true, nil
}

// GetActive returns the live (non-terminal) room from the registry, or
// ErrRoomNotFound. The poller re-fetches through this each tick.
func (s *RoomService) GetActive(code string) (*model.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	room, exists := s.rooms[normalizeCode(code)]
	if !exists {
		return nil, common.ErrRoomNotFound
	}
	return snapshot(room), nil
}

// GetRoom returns a room by code, falling back to the persistent mirror for
// finished matches.
func (s *RoomService) GetRoom(ctx context.Context, code string) (*model.Room, error) {
	if room, err := s.GetActive(code); err == nil {
		return room, nil
	}
	return s.roomRepo.FindByCode(ctx, normalizeCode(code))
}

// WinningSubmission returns the stored decisive submission for a room.
func (s *RoomService) WinningSubmission(ctx context.Context, code string) (*model.WinningSubmission, error) {
	return s.subRepo.FindByRoomCode(ctx, normalizeCode(code))
}

// History lists a participant's past rooms from the persistent mirror.
func (s *RoomService) History(ctx context.Context, userID string, limit int) ([]model.Room, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.roomRepo.ListByParticipant(ctx, userID, limit)
}

// ActiveRoomCount reports registry size (waiting + in-progress rooms).
func (s *RoomService) ActiveRoomCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

func snapshot(room *model.Room) *model.Room {
	copied := *room
	return &copied
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func newRoomCode(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = roomCodeCharset[rand.Intn(len(roomCodeCharset))]
	}
	return string(b)
}
