package quota

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCounter struct {
	count     int
	err       error
	lastSince time.Time
}

func (f *fakeCounter) CountSentSince(ctx context.Context, since time.Time) (int, error) {
	f.lastSince = since
	return f.count, f.err
}

func TestTracker_CanSend(t *testing.T) {
	tests := []struct {
		name  string
		count int
		limit int
		want  bool
	}{
		{"empty day", 0, 80, true},
		{"under limit", 79, 80, true},
		{"at limit", 80, 80, false},
		{"over limit", 81, 80, false},
		{"custom ceiling", 1, 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := New(&fakeCounter{count: tt.count}, tt.limit)
			got, err := tracker.CanSend(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("CanSend() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTracker_DefaultLimit(t *testing.T) {
	tracker := New(&fakeCounter{}, 0)
	if tracker.Limit() != DefaultDailyLimit {
		t.Errorf("Limit() = %d, want %d", tracker.Limit(), DefaultDailyLimit)
	}
}

func TestTracker_UsesLocalDayBoundary(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	now := time.Date(2026, 2, 14, 1, 30, 0, 0, loc)

	counter := &fakeCounter{}
	tracker := NewWithClock(counter, 80, func() time.Time { return now })

	if _, err := tracker.TodayCount(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := time.Date(2026, 2, 14, 0, 0, 0, 0, loc)
	if !counter.lastSince.Equal(want) {
		t.Errorf("since = %v, want local midnight %v", counter.lastSince, want)
	}
}

func TestTracker_StoreErrorPropagates(t *testing.T) {
	wantErr := errors.New("store down")
	tracker := New(&fakeCounter{err: wantErr}, 80)

	if _, err := tracker.CanSend(context.Background()); !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped store error, got %v", err)
	}
}
