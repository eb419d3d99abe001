package service_test

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"codeduel/internal/app/service"
	"codeduel/internal/common"
	"codeduel/internal/domain/model"
	"codeduel/internal/platform/codeforces"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeRoomRepo struct {
	mu        sync.Mutex
	created   []string
	abandoned []string
	attached  []string
	createErr error
}

func (f *fakeRoomRepo) Create(ctx context.Context, room *model.Room) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, room.Code)
	return nil
}

func (f *fakeRoomRepo) FindByCode(ctx context.Context, code string) (*model.Room, error) {
	return nil, common.ErrRoomNotFound
}

func (f *fakeRoomRepo) AttachOpponent(ctx context.Context, code, opponentID, opponentHandle string, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = append(f.attached, code)
	return nil
}

func (f *fakeRoomRepo) MarkAbandoned(ctx context.Context, code string, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abandoned = append(f.abandoned, code)
	return nil
}

func (f *fakeRoomRepo) MarkCompleted(ctx context.Context, tx *sql.Tx, code, winnerID string, endedAt time.Time) error {
	return nil
}

func (f *fakeRoomRepo) ListByParticipant(ctx context.Context, userID string, limit int) ([]model.Room, error) {
	return nil, nil
}

type fakeUserRepo struct {
	users map[string]*model.User
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error { return nil }

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return nil, common.ErrNotFound
}

func (f *fakeUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	return nil, common.ErrNotFound
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeUserRepo) TouchLastLogin(ctx context.Context, id string) error { return nil }

func (f *fakeUserRepo) IncrementWins(ctx context.Context, tx *sql.Tx, id string) error { return nil }

type fakeSubRepo struct{}

func (f *fakeSubRepo) Create(ctx context.Context, tx *sql.Tx, sub *model.WinningSubmission) error {
	return nil
}

func (f *fakeSubRepo) FindByRoomCode(ctx context.Context, roomCode string) (*model.WinningSubmission, error) {
	return nil, common.ErrNotFound
}

type fakeRecorder struct {
	mu      sync.Mutex
	results []*model.WinningSubmission
	err     error
}

func (f *fakeRecorder) RecordResult(ctx context.Context, room *model.Room, sub *model.WinningSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.results = append(f.results, sub)
	return nil
}

func (f *fakeRecorder) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.results)
}

type fakeVerdict struct {
	problem  codeforces.Problem
	verifyOK bool
	gotMin   int
	gotMax   int
	checkFn  func(handle string) codeforces.CheckResult
}

func (f *fakeVerdict) RandomProblem(ctx context.Context, minRating, maxRating int) codeforces.Problem {
	f.gotMin, f.gotMax = minRating, maxRating
	return f.problem
}

func (f *fakeVerdict) VerifyHandle(ctx context.Context, handle string) bool { return f.verifyOK }

func (f *fakeVerdict) CheckRecentAccepted(ctx context.Context, handle, problemID string, after time.Time) codeforces.CheckResult {
	if f.checkFn != nil {
		return f.checkFn(handle)
	}
	return codeforces.CheckResult{Outcome: codeforces.OutcomeNoAccepted}
}

type fakeWinRecorder struct {
	mu   sync.Mutex
	wins []string
}

func (f *fakeWinRecorder) RecordWin(ctx context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wins = append(f.wins, userID)
	return nil
}

// --- helpers ---

func handle(s string) *string { return &s }

func testUsers() *fakeUserRepo {
	return &fakeUserRepo{users: map[string]*model.User{
		"creator-1":  {ID: "creator-1", Username: "alice", CodeforcesHandle: handle("alice_cf")},
		"joiner-1":   {ID: "joiner-1", Username: "bob", CodeforcesHandle: handle("bob_cf")},
		"nohandle-1": {ID: "nohandle-1", Username: "carol"},
	}}
}

type fixture struct {
	svc      *service.RoomService
	roomRepo *fakeRoomRepo
	recorder *fakeRecorder
	verdict  *fakeVerdict
	wins     *fakeWinRecorder
}

func newFixture() *fixture {
	roomRepo := &fakeRoomRepo{}
	recorder := &fakeRecorder{}
	verdict := &fakeVerdict{problem: codeforces.FallbackProblem, verifyOK: true}
	wins := &fakeWinRecorder{}
	svc := service.NewRoomService(roomRepo, testUsers(), &fakeSubRepo{}, recorder, verdict, wins, 6)
	return &fixture{svc: svc, roomRepo: roomRepo, recorder: recorder, verdict: verdict, wins: wins}
}

func acceptedSub() *codeforces.AcceptedSubmission {
	return &codeforces.AcceptedSubmission{
		ID: 99, ProblemID: "4A", Verdict: "OK",
		TimeMs: 15, MemoryBytes: 2048, Language: "GNU C++17",
		SubmittedAt: time.Now(),
	}
}

func startedMatch(t *testing.T, f *fixture) *model.Room {
	t.Helper()
	ctx := context.Background()
	room, err := f.svc.CreateRoom(ctx, "creator-1", model.DifficultyEasy)
	require.NoError(t, err)
	room, err = f.svc.JoinRoom(ctx, "joiner-1", room.Code)
	require.NoError(t, err)
	return room
}

// --- tests ---

func TestCreateRoom(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	room, err := f.svc.CreateRoom(ctx, "creator-1", model.DifficultyMedium)
	require.NoError(t, err)

	assert.Len(t, room.Code, 6)
	assert.Equal(t, model.PhaseWaiting, room.Phase)
	assert.Equal(t, "creator-1", room.CreatorID)
	assert.Equal(t, "alice_cf", room.CreatorHandle)
	assert.Nil(t, room.OpponentID)
	assert.Equal(t, 1200, f.verdict.gotMin)
	assert.Equal(t, 1600, f.verdict.gotMax)
	assert.Equal(t, []string{room.Code}, f.roomRepo.created)
	assert.Equal(t, 1, f.svc.ActiveRoomCount())
}

func TestCreateRoomValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.CreateRoom(ctx, "creator-1", model.Difficulty("extreme"))
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.svc.CreateRoom(ctx, "nohandle-1", model.DifficultyEasy)
	assert.ErrorIs(t, err, common.ErrBadRequest)

	_, err = f.svc.CreateRoom(ctx, "ghost", model.DifficultyEasy)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestCreateRoomPersistFailureRollsBackRegistry(t *testing.T) {
	f := newFixture()
	f.roomRepo.createErr = errors.New("connection refused")

	_, err := f.svc.CreateRoom(context.Background(), "creator-1", model.DifficultyEasy)
	require.Error(t, err)
	assert.Equal(t, 0, f.svc.ActiveRoomCount())
}

func TestJoinRoom(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.svc.CreateRoom(ctx, "creator-1", model.DifficultyEasy)
	require.NoError(t, err)

	room, err := f.svc.JoinRoom(ctx, "joiner-1", created.Code)
	require.NoError(t, err)

	assert.Equal(t, model.PhaseInProgress, room.Phase)
	require.NotNil(t, room.OpponentID)
	assert.Equal(t, "joiner-1", *room.OpponentID)
	require.NotNil(t, room.OpponentHandle)
	assert.Equal(t, "bob_cf", *room.OpponentHandle)
	assert.NotNil(t, room.StartedAt, "start timestamp must be set with the transition")
	assert.Equal(t, []string{created.Code}, f.roomRepo.attached)
}

func TestJoinRoomRejectsSelfJoin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.svc.CreateRoom(ctx, "creator-1", model.DifficultyEasy)
	require.NoError(t, err)

	_, err = f.svc.JoinRoom(ctx, "creator-1", created.Code)
	assert.ErrorIs(t, err, common.ErrSelfJoin)

	// The room is still joinable by someone else.
	room, err := f.svc.JoinRoom(ctx, "joiner-1", created.Code)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseInProgress, room.Phase)
}

func TestJoinRoomErrors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.JoinRoom(ctx, "joiner-1", "NOSUCH")
	assert.ErrorIs(t, err, common.ErrRoomNotFound)

	created, err := f.svc.CreateRoom(ctx, "creator-1", model.DifficultyEasy)
	require.NoError(t, err)

	_, err = f.svc.JoinRoom(ctx, "nohandle-1", created.Code)
	assert.ErrorIs(t, err, common.ErrBadRequest)

	f.verdict.verifyOK = false
	_, err = f.svc.JoinRoom(ctx, "joiner-1", created.Code)
	assert.ErrorIs(t, err, common.ErrHandleUnverified)
	f.verdict.verifyOK = true

	// First join wins; a room never enters in_progress twice.
	_, err = f.svc.JoinRoom(ctx, "joiner-1", created.Code)
	require.NoError(t, err)
	_, err = f.svc.JoinRoom(ctx, "joiner-1", created.Code)
	assert.ErrorIs(t, err, common.ErrRoomNotJoinable)
}

func TestJoinRoomNormalizesCode(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.svc.CreateRoom(ctx, "creator-1", model.DifficultyEasy)
	require.NoError(t, err)

	room, err := f.svc.JoinRoom(ctx, "joiner-1", "  "+created.Code+" ")
	require.NoError(t, err)
	assert.Equal(t, created.Code, room.Code)
}

func TestCompleteMatch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room := startedMatch(t, f)

	done, err := f.svc.CompleteMatch(ctx, room.Code, "joiner-1", acceptedSub())
	require.NoError(t, err)

	assert.Equal(t, model.PhaseCompleted, done.Phase)
	require.NotNil(t, done.WinnerID)
	assert.Equal(t, "joiner-1", *done.WinnerID)
	assert.NotNil(t, done.EndedAt)
	assert.Equal(t, 1, f.recorder.count())
	assert.Equal(t, []string{"joiner-1"}, f.wins.wins)

	// Terminal rooms leave the registry.
	_, err = f.svc.GetActive(room.Code)
	assert.ErrorIs(t, err, common.ErrRoomNotFound)
	assert.Equal(t, 0, f.svc.ActiveRoomCount())
}

func TestCompleteMatchAtMostOnce(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room := startedMatch(t, f)

	_, err := f.svc.CompleteMatch(ctx, room.Code, "creator-1", acceptedSub())
	require.NoError(t, err)

	// A second hit in the same tick for the other player is dropped.
	_, err = f.svc.CompleteMatch(ctx, room.Code, "joiner-1", acceptedSub())
	require.Error(t, err)
	assert.Equal(t, 1, f.recorder.count(), "only one winner declaration may be recorded")
	assert.Equal(t, []string{"creator-1"}, f.wins.wins)
}

func TestCompleteMatchOnWaitingRoomDropped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.svc.CreateRoom(ctx, "creator-1", model.DifficultyEasy)
	require.NoError(t, err)

	_, err = f.svc.CompleteMatch(ctx, created.Code, "creator-1", acceptedSub())
	assert.ErrorIs(t, err, common.ErrMatchFinished)
	assert.Equal(t, 0, f.recorder.count())
}

func TestCompleteMatchAfterAbandonDropped(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room := startedMatch(t, f)

	_, changed, err := f.svc.AbandonRoom(ctx, room.Code)
	require.NoError(t, err)
	require.True(t, changed)

	_, err = f.svc.CompleteMatch(ctx, room.Code, "joiner-1", acceptedSub())
	require.Error(t, err)
	assert.Equal(t, 0, f.recorder.count(), "no winner after abandonment")
	assert.Empty(t, f.wins.wins)
}

func TestCompleteMatchPersistFailureKeepsOutcome(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room := startedMatch(t, f)
	f.recorder.err = errors.New("deadlock detected")

	done, err := f.svc.CompleteMatch(ctx, room.Code, "joiner-1", acceptedSub())
	require.NoError(t, err, "persistence failure must not undo the completion")
	assert.Equal(t, model.PhaseCompleted, done.Phase)
	assert.Empty(t, f.wins.wins, "leaderboard update is skipped when the declaration did not persist")
}

func TestAbandonRoom(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room := startedMatch(t, f)

	gone, changed, err := f.svc.AbandonRoom(ctx, room.Code)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.PhaseAbandoned, gone.Phase)
	assert.NotNil(t, gone.EndedAt)
	assert.Equal(t, []string{room.Code}, f.roomRepo.abandoned)

	// Second abandonment: the room already left the registry.
	_, _, err = f.svc.AbandonRoom(ctx, room.Code)
	assert.ErrorIs(t, err, common.ErrRoomNotFound)
	assert.Equal(t, []string{room.Code}, f.roomRepo.abandoned, "no duplicate persistence write")
}

func TestAbandonWaitingRoom(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	created, err := f.svc.CreateRoom(ctx, "creator-1", model.DifficultyEasy)
	require.NoError(t, err)

	gone, changed, err := f.svc.AbandonRoom(ctx, created.Code)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, model.PhaseAbandoned, gone.Phase)
}

func TestConcurrentCompleteSingleWinner(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	room := startedMatch(t, f)

	var wg sync.WaitGroup
	winners := make(chan string, 2)
	for _, id := range []string{"creator-1", "joiner-1"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := f.svc.CompleteMatch(ctx, room.Code, id, acceptedSub()); err == nil {
				winners <- id
			}
		}(id)
	}
	wg.Wait()
	close(winners)

	var declared []string
	for id := range winners {
		declared = append(declared, id)
	}
	require.Len(t, declared, 1, "exactly one of two racing completions may win")
	assert.Equal(t, 1, f.recorder.count())
}

func TestRoomCodesUnique(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		room, err := f.svc.CreateRoom(ctx, "creator-1", model.DifficultyEasy)
		require.NoError(t, err)
		assert.False(t, seen[room.Code], "room code %s issued twice", room.Code)
		seen[room.Code] = true
	}
}
