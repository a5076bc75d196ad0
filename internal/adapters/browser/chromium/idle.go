package chromium

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
)

const idlePoll = 100 * time.Millisecond

// inflight tracks network requests of the current page load.
type inflight struct {
	mu        sync.Mutex
	max       int
	reqs      map[network.RequestID]struct{}
	idleSince time.Time
}

func newInflight(limit int) *inflight {
	return &inflight{
		max:       limit,
		reqs:      make(map[network.RequestID]struct{}),
		idleSince: time.Now(),
	}
}

// reset forgets requests from a previous attempt.
func (t *inflight) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reqs = make(map[network.RequestID]struct{})
	t.idleSince = time.Now()
}

func (t *inflight) started(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reqs[id] = struct{}{}
	if len(t.reqs) > t.max {
		t.idleSince = time.Time{}
	}
}

func (t *inflight) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.reqs[id]; !ok {
		return
	}
	delete(t.reqs, id)
	if len(t.reqs) <= t.max && t.idleSince.IsZero() {
		t.idleSince = time.Now()
	}
}

// quietFor reports how long the page has stayed at or under the limit.
func (t *inflight) quietFor(now time.Time) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.idleSince.IsZero() {
		return 0
	}
	return now.Sub(t.idleSince)
}

// wait blocks until the page has been quiet for d or ctx ends.
func (t *inflight) wait(ctx context.Context, d time.Duration) error {
	ticker := time.NewTicker(idlePoll)
	defer ticker.Stop()

	for {
		if t.quietFor(time.Now()) >= d {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
