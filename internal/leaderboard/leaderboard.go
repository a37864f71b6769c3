// Package leaderboard polls the ranked 24h karma list on a fixed
// interval. No aggregation happens client-side; the list is consumed
// exactly as delivered.
package leaderboard

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/karmafeed/karmafeed/internal/model"
)

// DefaultInterval matches the 30s refresh the feed UI has always used.
const DefaultInterval = 30 * time.Second

// API is the read surface the poller consumes. *client.Client
// satisfies it.
type API interface {
	Leaderboard(ctx context.Context) ([]model.LeaderboardEntry, error)
}

// Poller keeps the last successfully fetched ranking. Fetch failures
// are logged and the last good list is retained.
type Poller struct {
	api      API
	log      zerolog.Logger
	interval time.Duration

	mu      sync.RWMutex
	current []model.LeaderboardEntry
}

func NewPoller(api API, log zerolog.Logger, interval time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{api: api, log: log, interval: interval}
}

// Current returns the last successfully fetched ranking, in delivery
// order.
func (p *Poller) Current() []model.LeaderboardEntry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.LeaderboardEntry, len(p.current))
	copy(out, p.current)
	return out
}

// FetchOnce performs a single fetch and updates the current ranking.
func (p *Poller) FetchOnce(ctx context.Context) ([]model.LeaderboardEntry, error) {
	entries, err := p.api.Leaderboard(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.current = entries
	p.mu.Unlock()
	return p.Current(), nil
}

// Run fetches immediately, then on every tick until ctx is cancelled.
// The poll cadence is independent of feed fetch timing.
func (p *Poller) Run(ctx context.Context) {
	if _, err := p.FetchOnce(ctx); err != nil {
		p.log.Warn().Err(err).Msg("leaderboard fetch failed")
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.FetchOnce(ctx); err != nil {
				p.log.Warn().Err(err).Msg("leaderboard fetch failed")
			}
		}
	}
}
