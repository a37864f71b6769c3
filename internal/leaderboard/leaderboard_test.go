package leaderboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/karmafeed/karmafeed/internal/model"
)

type fakeBoard struct {
	mu      sync.Mutex
	entries []model.LeaderboardEntry
	err     error
	calls   int
}

func (f *fakeBoard) Leaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.LeaderboardEntry, len(f.entries))
	copy(out, f.entries)
	return out, nil
}

func TestFetchOnce(t *testing.T) {
	api := &fakeBoard{entries: []model.LeaderboardEntry{
		{ID: 1, Username: "alice", Karma24h: 25},
		{ID: 2, Username: "bob", Karma24h: 10},
	}}
	p := NewPoller(api, zerolog.Nop(), DefaultInterval)

	entries, err := p.FetchOnce(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	// Delivery order is authoritative.
	if entries[0].Username != "alice" || entries[1].Username != "bob" {
		t.Fatalf("delivery order not preserved: %+v", entries)
	}

	current := p.Current()
	if len(current) != 2 || current[0].Karma24h != 25 {
		t.Fatalf("Current out of sync with fetch: %+v", current)
	}
}

func TestFetchFailureKeepsLastGood(t *testing.T) {
	api := &fakeBoard{entries: []model.LeaderboardEntry{{ID: 1, Username: "alice", Karma24h: 5}}}
	p := NewPoller(api, zerolog.Nop(), DefaultInterval)

	if _, err := p.FetchOnce(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}

	api.mu.Lock()
	api.err = errors.New("api down")
	api.mu.Unlock()

	if _, err := p.FetchOnce(context.Background()); err == nil {
		t.Fatalf("expected fetch error")
	}
	current := p.Current()
	if len(current) != 1 || current[0].Username != "alice" {
		t.Fatalf("last good ranking lost: %+v", current)
	}
}

func TestRunPollsAndStops(t *testing.T) {
	api := &fakeBoard{}
	p := NewPoller(api, zerolog.Nop(), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx)
	}()

	// Wait for the immediate fetch plus at least one tick.
	deadline := time.After(time.Second)
	for {
		api.mu.Lock()
		calls := api.calls
		api.mu.Unlock()
		if calls >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("poller never ticked, %d calls", calls)
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}

func TestNewPollerDefaultsInterval(t *testing.T) {
	p := NewPoller(&fakeBoard{}, zerolog.Nop(), 0)
	if p.interval != DefaultInterval {
		t.Fatalf("expected default interval, got %v", p.interval)
	}
}
