package generation

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// campaignLimiter caps the simultaneous LLM calls per campaign. Entries are dropped when no caller holds or waits
// for them.
type campaignLimiter struct {
	limit int64

	mu      sync.Mutex
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	sem   *semaphore.Weighted
	users int
}

// newCampaignLimiter returns a limiter allowing limit calls per campaign. Zero disables the limit.
func newCampaignLimiter(limit int) *campaignLimiter {
	return &campaignLimiter{
		limit:   int64(limit),
		entries: make(map[string]*limiterEntry),
	}
}

// acquire blocks until the campaign has a free slot or ctx is done. The returned release must be called exactly once.
func (l *campaignLimiter) acquire(ctx context.Context, campaignID string) (func(), error) {
	if l.limit <= 0 {
		return func() {}, nil
	}

	l.mu.Lock()
	entry, ok := l.entries[campaignID]
	if !ok {
		entry = &limiterEntry{sem: semaphore.NewWeighted(l.limit)}
		l.entries[campaignID] = entry
	}
	entry.users++
	l.mu.Unlock()

	if err := entry.sem.Acquire(ctx, 1); err != nil {
		l.leave(campaignID, entry)
		return nil, err //nolint:wrapcheck // only ctx errors are returned.
	}
	return func() {
		entry.sem.Release(1)
		l.leave(campaignID, entry)
	}, nil
}

func (l *campaignLimiter) leave(campaignID string, entry *limiterEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.users--
	if entry.users == 0 {
		delete(l.entries, campaignID)
	}
}

func (l *campaignLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
