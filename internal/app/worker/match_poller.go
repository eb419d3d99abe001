package worker

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"codeduel/internal/app/service"
	"codeduel/internal/domain/model"
	"codeduel/internal/domain/repository"
	"codeduel/internal/platform/codeforces"
)

// MatchPoller owns one recurring poll task per in-progress room. A task
// starts when a room enters in_progress and stops when the room leaves it
// for any reason, or when the room disappears from the registry. Starting a
// room that already has a task is a no-op; so is stopping a room with none.
type MatchPoller struct {
	rooms       *service.RoomService
	cf          service.VerdictClient
	broadcaster service.Broadcaster
	userRepo    repository.UserRepository
	interval    time.Duration

	mu    sync.Mutex
	tasks map[string]*pollTask
}

type pollTask struct {
	cancel context.CancelFunc
}

func NewMatchPoller(
	rooms *service.RoomService,
	cf service.VerdictClient,
	broadcaster service.Broadcaster,
	userRepo repository.UserRepository,
	interval time.Duration,
) *MatchPoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &MatchPoller{
		rooms:       rooms,
		cf:          cf,
		broadcaster: broadcaster,
		userRepo:    userRepo,
		interval:    interval,
		tasks:       make(map[string]*pollTask),
	}
}

type PollingUpdatePayload struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type SubmissionStats struct {
	ID          int64  `json:"id"`
	TimeMs      int    `json:"time"`
	MemoryBytes int64  `json:"memory"`
	Language    string `json:"language"`
	URL         string `json:"url"`
}

type MatchEndedPayload struct {
	WinnerID       string          `json:"winnerId"`
	WinnerUsername string          `json:"winnerUsername"`
	Submission     SubmissionStats `json:"submission"`
	Timestamp      time.Time       `json:"timestamp"`
}

// Start launches the poll task for a room. Duplicate starts are no-ops.
func (p *MatchPoller) Start(roomCode string) {
	p.mu.Lock()
	if _, running := p.tasks[roomCode]; running {
		p.mu.Unlock()
		log.Printf("INFO: [poller] already polling room %s", roomCode)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	task := &pollTask{cancel: cancel}
	p.tasks[roomCode] = task
	p.mu.Unlock()

	log.Printf("INFO: [poller] started polling room %s every %v", roomCode, p.interval)
	go p.run(ctx, roomCode, task)
}

// Stop cancels a room's poll task. Idempotent; stopping a room with no
// active task has no effect.
func (p *MatchPoller) Stop(roomCode string) {
	p.mu.Lock()
	task, running := p.tasks[roomCode]
	if running {
		delete(p.tasks, roomCode)
	}
	p.mu.Unlock()

	if running {
		task.cancel()
		log.Printf("INFO: [poller] stopped polling room %s", roomCode)
	}
}

// IsRunning reports whether a poll task exists for the room.
func (p *MatchPoller) IsRunning(roomCode string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, running := p.tasks[roomCode]
	return running
}

// ActiveCount is the poll-queue depth: every task shares the one external
// rate gate, so this number is the scalability ceiling to watch.
func (p *MatchPoller) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tasks)
}

// StopAll cancels every task (process shutdown).
func (p *MatchPoller) StopAll() {
	p.mu.Lock()
	tasks := p.tasks
	p.tasks = make(map[string]*pollTask)
	p.mu.Unlock()

	for code, task := range tasks {
		task.cancel()
		log.Printf("INFO: [poller] stopped polling room %s", code)
	}
}

func (p *MatchPoller) run(ctx context.Context, roomCode string, task *pollTask) {
	defer p.removeIfCurrent(roomCode, task)

	// Initial check immediately, then on the fixed interval.
	if p.tick(ctx, roomCode) {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if p.tick(ctx, roomCode) {
				return
			}
		}
	}
}

// removeIfCurrent clears the task entry unless Start has already replaced
// it with a fresh task for the same code.
func (p *MatchPoller) removeIfCurrent(roomCode string, task *pollTask) {
	p.mu.Lock()
	if current, ok := p.tasks[roomCode]; ok && current == task {
		delete(p.tasks, roomCode)
	}
	p.mu.Unlock()
}

// tick runs one poll round. Returns true when the task should stop.
func (p *MatchPoller) tick(ctx context.Context, roomCode string) bool {
	room, err := p.rooms.GetActive(roomCode)
	if err != nil {
		log.Printf("INFO: [poller] room %s no longer in registry, stopping", roomCode)
		return true
	}
	if room.Phase != model.PhaseInProgress || room.StartedAt == nil {
		log.Printf("INFO: [poller] room %s not in progress (%s), stopping", roomCode, room.Phase)
		return true
	}

	// Creator first: the documented tie-break when both sides have an
	// accepted submission in the same tick.
	for _, participant := range room.Participants() {
		result := p.cf.CheckRecentAccepted(ctx, participant.Handle, room.Problem.ID, *room.StartedAt)

		switch result.Outcome {
		case codeforces.OutcomeAccepted:
			// A cancellation that raced with this lookup must not declare a
			// stale winner.
			if ctx.Err() != nil {
				log.Printf("INFO: [poller] room %s task stopped mid-tick, discarding result", roomCode)
				return true
			}
			p.declareWinner(ctx, roomCode, participant.UserID, room, result.Submission)
			return true
		case codeforces.OutcomeQueryFailed:
			// Transient upstream trouble costs one detection window, nothing
			// more; the next tick retries.
			log.Printf("WARN: [poller] verdict query failed for %s in room %s: %s",
				participant.Handle, roomCode, result.Reason)
		}
	}

	p.broadcaster.BroadcastToRoom(roomCode, service.EventPollingUpdate, PollingUpdatePayload{
		Message:   "Checking for submissions...",
		Timestamp: time.Now(),
	})
	return false
}

func (p *MatchPoller) declareWinner(ctx context.Context, roomCode, winnerID string, room *model.Room, sub *codeforces.AcceptedSubmission) {
	finished, err := p.rooms.CompleteMatch(ctx, roomCode, winnerID, sub)
	if err != nil {
		// Lost the race against an abandonment or a concurrent completion;
		// the at-most-once winner guarantee belongs to the registry.
		log.Printf("INFO: [poller] completion for room %s dropped: %v", roomCode, err)
		return
	}

	winnerUsername := ""
	if user, err := p.userRepo.FindByID(ctx, winnerID); err == nil {
		winnerUsername = user.Username
	} else {
		log.Printf("WARN: [poller] could not resolve winner %s username: %v", winnerID, err)
	}

	p.broadcaster.BroadcastToRoom(roomCode, service.EventMatchEnded, MatchEndedPayload{
		WinnerID:       winnerID,
		WinnerUsername: winnerUsername,
		Submission: SubmissionStats{
			ID:          sub.ID,
			TimeMs:      sub.TimeMs,
			MemoryBytes: sub.MemoryBytes,
			Language:    sub.Language,
			URL:         submissionURL(finished.Problem, sub),
		},
		Timestamp: time.Now(),
	})
}

func submissionURL(problem codeforces.Problem, sub *codeforces.AcceptedSubmission) string {
	contestID := problem.ContestID
	if contestID == 0 {
		contestID = contestIDFromProblemID(sub.ProblemID)
	}
	return "https://codeforces.com/contest/" + strconv.Itoa(contestID) +
		"/submission/" + strconv.FormatInt(sub.ID, 10)
}

func contestIDFromProblemID(problemID string) int {
	digits := strings.TrimRightFunc(problemID, func(r rune) bool {
		return r < '0' || r > '9'
	})
	id, _ := strconv.Atoi(digits)
	return id
}
