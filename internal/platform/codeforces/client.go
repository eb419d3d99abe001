package codeforces

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gosimple/slug"
)

// Client wraps the Codeforces REST API. All calls funnel through a single
// minimum-inter-call-interval gate shared by the whole process, so total
// throughput degrades linearly with the number of concurrent rooms. That
// ceiling is accepted; the API budget is the hard constraint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	window     int // recent submissions inspected per CheckRecentAccepted call

	mu       sync.Mutex
	interval time.Duration
	lastCall time.Time

	// Injectable for tests.
	now   func() time.Time
	sleep func(time.Duration)
}

func NewClient(baseURL string, interval time.Duration, window int) *Client {
	if window <= 0 {
		window = 20
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		window:     window,
		interval:   interval,
		now:        time.Now,
		sleep:      time.Sleep,
	}
}

// waitTurn enforces the minimum spacing between outgoing calls. The mutex is
// held across the sleep so waiting callers are released in arrival order.
func (c *Client) waitTurn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.now().Sub(c.lastCall)
	if elapsed < c.interval {
		wait := c.interval - elapsed
		log.Printf("INFO: [codeforces] rate gate: waiting %v", wait)
		c.sleep(wait)
	}
	c.lastCall = c.now()
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	c.waitTurn()

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("codeforces: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("codeforces: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusServiceUnavailable {
		log.Printf("WARN: [codeforces] API is down or rate limited (503)")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("codeforces: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("codeforces: decode response: %w", err)
	}
	return nil
}

// FallbackProblem is issued when problem selection fails upstream. Keeping
// room creation available during an outage is worth occasionally handing out
// a stale problem.
var FallbackProblem = Problem{
	ContestID: 4,
	Index:     "A",
	ID:        "4A",
	Name:      "Watermelon",
	Slug:      "watermelon",
	Rating:    800,
	Tags:      []string{"math", "brute force"},
	URL:       "https://codeforces.com/problemset/problem/4/A",
}

// RandomProblem selects a uniform-random problem with rating in
// [minRating, maxRating), a single-letter index, and no interactive or
// *special tag. Upstream failure or an empty candidate set degrades to
// FallbackProblem instead of returning an error.
func (c *Client) RandomProblem(ctx context.Context, minRating, maxRating int) Problem {
	var resp problemsetResponse
	if err := c.get(ctx, "/problemset.problems", nil, &resp); err != nil {
		log.Printf("WARN: [codeforces] problem fetch failed, using fallback: %v", err)
		return FallbackProblem
	}
	if resp.Status != statusOK {
		log.Printf("WARN: [codeforces] problemset.problems returned %q, using fallback", resp.Status)
		return FallbackProblem
	}

	var eligible []apiProblem
	for _, p := range resp.Result.Problems {
		if p.Rating < minRating || p.Rating >= maxRating {
			continue
		}
		if p.Type != "PROGRAMMING" || len(p.Index) != 1 {
			continue
		}
		if hasTag(p.Tags, "interactive") || hasTag(p.Tags, "*special") {
			continue
		}
		eligible = append(eligible, p)
	}

	if len(eligible) == 0 {
		log.Printf("WARN: [codeforces] no eligible problems in [%d,%d), using fallback", minRating, maxRating)
		return FallbackProblem
	}

	chosen := eligible[rand.Intn(len(eligible))]
	log.Printf("INFO: [codeforces] selected problem %d%s (%s, rating %d) from %d candidates",
		chosen.ContestID, chosen.Index, chosen.Name, chosen.Rating, len(eligible))
	return Problem{
		ContestID: chosen.ContestID,
		Index:     chosen.Index,
		ID:        strconv.Itoa(chosen.ContestID) + chosen.Index,
		Name:      chosen.Name,
		Slug:      slug.Make(chosen.Name),
		Rating:    chosen.Rating,
		Tags:      chosen.Tags,
		URL: fmt.Sprintf("https://codeforces.com/problemset/problem/%d/%s",
			chosen.ContestID, chosen.Index),
	}
}

// VerifyHandle reports whether the handle exists on Codeforces.
func (c *Client) VerifyHandle(ctx context.Context, handle string) bool {
	q := url.Values{"handles": {handle}}
	var resp userInfoResponse
	if err := c.get(ctx, "/user.info", q, &resp); err != nil {
		log.Printf("WARN: [codeforces] handle verification failed for %q: %v", handle, err)
		return false
	}
	return resp.Status == statusOK
}

// CheckRecentAccepted inspects the handle's most recent submissions for an
// accepted verdict on problemID at or after the given time. The window is
// bounded; a solve detected only deep in the handle's history is missed,
// which the polling cadence makes irrelevant in practice.
//
// Upstream failures come back as OutcomeQueryFailed so the caller can retry
// on the next tick; they are never surfaced as match failures.
func (c *Client) CheckRecentAccepted(ctx context.Context, handle, problemID string, after time.Time) CheckResult {
	q := url.Values{
		"handle": {handle},
		"from":   {"1"},
		"count":  {strconv.Itoa(c.window)},
	}
	var resp userStatusResponse
	if err := c.get(ctx, "/user.status", q, &resp); err != nil {
		return CheckResult{Outcome: OutcomeQueryFailed, Reason: err.Error()}
	}
	if resp.Status != statusOK {
		return CheckResult{Outcome: OutcomeQueryFailed,
			Reason: fmt.Sprintf("user.status returned %q: %s", resp.Status, resp.Comment)}
	}

	for _, sub := range resp.Result {
		subProblemID := strconv.Itoa(sub.Problem.ContestID) + sub.Problem.Index
		subTime := time.Unix(sub.CreationTimeSeconds, 0)

		if subProblemID != problemID || subTime.Before(after) {
			continue
		}
		// Non-accepted matching submissions are observed but not reported;
		// wrong-answer progress is intentionally not a signal here.
		if sub.Verdict != verdictAccepted {
			log.Printf("INFO: [codeforces] %s has non-accepted verdict %q on %s", handle, sub.Verdict, problemID)
			continue
		}

		return CheckResult{
			Outcome: OutcomeAccepted,
			Submission: &AcceptedSubmission{
				ID:          sub.ID,
				ProblemID:   subProblemID,
				Verdict:     sub.Verdict,
				TimeMs:      sub.TimeConsumedMillis,
				MemoryBytes: sub.MemoryConsumedBytes,
				Language:    sub.ProgrammingLanguage,
				SubmittedAt: subTime,
			},
		}
	}

	return CheckResult{Outcome: OutcomeNoAccepted}
}

// Ping checks basic API reachability (used by the connectivity probe).
func (c *Client) Ping(ctx context.Context) bool {
	var resp problemsetResponse
	if err := c.get(ctx, "/problemset.problems", nil, &resp); err != nil {
		return false
	}
	return resp.Status == statusOK
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
