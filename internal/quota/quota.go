// Package quota enforces the strict daily send ceiling.
//
// The count is always derived from the delivery log, never cached, so it is
// consistent with the durable record even across process restarts.
package quota

import (
	"context"
	"fmt"
	"time"
)

// DefaultDailyLimit is the hard ceiling on successful sends per calendar day,
// account-wide across all campaigns.
const DefaultDailyLimit = 80

// LogCounter is the slice of the store the tracker needs.
type LogCounter interface {
	CountSentSince(ctx context.Context, since time.Time) (int, error)
}

// Tracker answers the admission question "may one more message go out today".
type Tracker struct {
	store LogCounter
	limit int
	now   func() time.Time
}

// New creates a tracker with the given ceiling; limit <= 0 uses the default.
func New(store LogCounter, limit int) *Tracker {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &Tracker{
		store: store,
		limit: limit,
		now:   time.Now,
	}
}

// NewWithClock is New with an injected clock, for tests.
func NewWithClock(store LogCounter, limit int, now func() time.Time) *Tracker {
	t := New(store, limit)
	t.now = now
	return t
}

// TodayCount returns the number of successful sends since midnight in the
// process's local timezone. The local calendar day is deliberate: the quota
// protects the operator's account, and the operator's day is local.
func (t *Tracker) TodayCount(ctx context.Context) (int, error) {
	count, err := t.store.CountSentSince(ctx, startOfDay(t.now()))
	if err != nil {
		return 0, fmt.Errorf("quota count: %w", err)
	}
	return count, nil
}

// CanSend reports whether one more send is admitted under today's ceiling.
// The scheduler calls this before every single recipient.
func (t *Tracker) CanSend(ctx context.Context) (bool, error) {
	count, err := t.TodayCount(ctx)
	if err != nil {
		return false, err
	}
	return count < t.limit, nil
}

// Limit returns the configured daily ceiling.
func (t *Tracker) Limit() int {
	return t.limit
}

func startOfDay(now time.Time) time.Time {
	year, month, day := now.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, now.Location())
}
