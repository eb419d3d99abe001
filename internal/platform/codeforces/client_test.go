package codeforces

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, 0, 20)
}

func TestRateGateSpacing(t *testing.T) {
	c := NewClient("http://unused", 600*time.Millisecond, 20)

	// Fake clock: time advances only when the gate sleeps.
	current := time.Unix(1000, 0)
	c.now = func() time.Time { return current }
	c.sleep = func(d time.Duration) { current = current.Add(d) }

	var calls []time.Time
	for i := 0; i < 5; i++ {
		c.waitTurn()
		calls = append(calls, c.lastCall)
	}

	for i := 1; i < len(calls); i++ {
		gap := calls[i].Sub(calls[i-1])
		assert.GreaterOrEqual(t, gap, 600*time.Millisecond,
			"calls %d and %d spaced %v apart", i-1, i, gap)
	}
}

func TestRateGateNoWaitWhenIdle(t *testing.T) {
	c := NewClient("http://unused", 600*time.Millisecond, 20)

	current := time.Unix(1000, 0)
	slept := false
	c.now = func() time.Time { return current }
	c.sleep = func(d time.Duration) { slept = true; current = current.Add(d) }

	c.waitTurn()
	current = current.Add(2 * time.Second)
	slept = false
	c.waitTurn()

	assert.False(t, slept, "gate should not sleep after a long idle period")
}

func TestRandomProblemFiltersAndBounds(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/problemset.problems", r.URL.Path)
		fmt.Fprint(w, `{"status":"OK","result":{"problems":[
			{"contestId":1,"index":"A","name":"Too Easy","type":"PROGRAMMING","rating":1100,"tags":[]},
			{"contestId":2,"index":"B","name":"Just Right","type":"PROGRAMMING","rating":1300,"tags":["dp"]},
			{"contestId":3,"index":"C","name":"Upper Bound","type":"PROGRAMMING","rating":1600,"tags":[]},
			{"contestId":4,"index":"D","name":"Interactive","type":"PROGRAMMING","rating":1400,"tags":["interactive"]},
			{"contestId":5,"index":"E","name":"Special","type":"PROGRAMMING","rating":1400,"tags":["*special"]},
			{"contestId":6,"index":"F1","name":"Subproblem","type":"PROGRAMMING","rating":1400,"tags":[]},
			{"contestId":7,"index":"G","name":"Question","type":"QUESTION","rating":1400,"tags":[]}
		]}}`)
	})

	// Only "Just Right" survives: rating in [1200,1600), single-letter
	// index, PROGRAMMING, no excluded tags.
	p := c.RandomProblem(context.Background(), 1200, 1600)
	assert.Equal(t, "2B", p.ID)
	assert.Equal(t, "Just Right", p.Name)
	assert.Equal(t, "just-right", p.Slug)
	assert.Equal(t, 1300, p.Rating)
	assert.Equal(t, "https://codeforces.com/problemset/problem/2/B", p.URL)
}

func TestRandomProblemFallback(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{
			name: "upstream error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
		},
		{
			name: "api failure status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"status":"FAILED","comment":"problemset: down"}`)
			},
		},
		{
			name: "no eligible problems",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `{"status":"OK","result":{"problems":[
					{"contestId":1,"index":"A","name":"Too Hard","type":"PROGRAMMING","rating":3500,"tags":[]}
				]}}`)
			},
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, `not json`)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.handler)
			p := c.RandomProblem(context.Background(), 800, 1200)
			assert.Equal(t, FallbackProblem, p, "selection failure must degrade to the fallback problem")
		})
	}
}

func TestVerifyHandle(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/user.info", r.URL.Path)
		if r.URL.Query().Get("handles") == "tourist" {
			fmt.Fprint(w, `{"status":"OK"}`)
			return
		}
		fmt.Fprint(w, `{"status":"FAILED","comment":"handles: User with handle nobody not found"}`)
	})

	assert.True(t, c.VerifyHandle(context.Background(), "tourist"))
	assert.False(t, c.VerifyHandle(context.Background(), "nobody"))
}

func TestCheckRecentAccepted(t *testing.T) {
	start := time.Unix(10_000, 0)

	tests := []struct {
		name        string
		body        string
		status      int
		wantOutcome CheckOutcome
		wantSubID   int64
	}{
		{
			name: "accepted after start",
			body: `{"status":"OK","result":[
				{"id":42,"creationTimeSeconds":10100,"problem":{"contestId":4,"index":"A"},
				 "programmingLanguage":"GNU C++17","verdict":"OK","timeConsumedMillis":62,"memoryConsumedBytes":1024}
			]}`,
			status:      http.StatusOK,
			wantOutcome: OutcomeAccepted,
			wantSubID:   42,
		},
		{
			name: "wrong answer is not a hit",
			body: `{"status":"OK","result":[
				{"id":43,"creationTimeSeconds":10100,"problem":{"contestId":4,"index":"A"},"verdict":"WRONG_ANSWER"}
			]}`,
			status:      http.StatusOK,
			wantOutcome: OutcomeNoAccepted,
		},
		{
			name: "accepted on a different problem",
			body: `{"status":"OK","result":[
				{"id":44,"creationTimeSeconds":10100,"problem":{"contestId":9,"index":"B"},"verdict":"OK"}
			]}`,
			status:      http.StatusOK,
			wantOutcome: OutcomeNoAccepted,
		},
		{
			name: "accepted before match start",
			body: `{"status":"OK","result":[
				{"id":45,"creationTimeSeconds":9000,"problem":{"contestId":4,"index":"A"},"verdict":"OK"}
			]}`,
			status:      http.StatusOK,
			wantOutcome: OutcomeNoAccepted,
		},
		{
			name: "later accepted wins over earlier rejected",
			body: `{"status":"OK","result":[
				{"id":47,"creationTimeSeconds":10200,"problem":{"contestId":4,"index":"A"},"verdict":"OK","timeConsumedMillis":30},
				{"id":46,"creationTimeSeconds":10100,"problem":{"contestId":4,"index":"A"},"verdict":"WRONG_ANSWER"}
			]}`,
			status:      http.StatusOK,
			wantOutcome: OutcomeAccepted,
			wantSubID:   47,
		},
		{
			name:        "api failure status",
			body:        `{"status":"FAILED","comment":"handle: field should not be empty"}`,
			status:      http.StatusOK,
			wantOutcome: OutcomeQueryFailed,
		},
		{
			name:        "http error",
			body:        ``,
			status:      http.StatusServiceUnavailable,
			wantOutcome: OutcomeQueryFailed,
		},
		{
			name:        "empty history",
			body:        `{"status":"OK","result":[]}`,
			status:      http.StatusOK,
			wantOutcome: OutcomeNoAccepted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/user.status", r.URL.Path)
				require.Equal(t, "1", r.URL.Query().Get("from"))
				require.Equal(t, "20", r.URL.Query().Get("count"))
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			result := c.CheckRecentAccepted(context.Background(), "tourist", "4A", start)
			assert.Equal(t, tt.wantOutcome, result.Outcome)

			if tt.wantOutcome == OutcomeAccepted {
				require.NotNil(t, result.Submission)
				assert.Equal(t, tt.wantSubID, result.Submission.ID)
				assert.Equal(t, "4A", result.Submission.ProblemID)
			} else {
				assert.Nil(t, result.Submission)
			}
			if tt.wantOutcome == OutcomeQueryFailed {
				assert.NotEmpty(t, result.Reason)
			}
		})
	}
}

func TestPing(t *testing.T) {
	up := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"status":"OK","result":{"problems":[]}}`)
	})
	assert.True(t, up.Ping(context.Background()))

	down := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	assert.False(t, down.Ping(context.Background()))
}
