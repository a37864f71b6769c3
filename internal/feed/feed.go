// Package feed assembles the renderable snapshot of all posts with
// their full comment trees: one lightweight list fetch, a concurrent
// detail fan-out, and a per-item merge that degrades gracefully when a
// single detail fetch fails.
package feed

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/karmafeed/karmafeed/internal/model"
)

// defaultDetailConcurrency bounds the detail fan-out.
const defaultDetailConcurrency = 8

// API is the read surface the assembler consumes. *client.Client
// satisfies it.
type API interface {
	ListPosts(ctx context.Context) ([]model.Post, error)
	GetPost(ctx context.Context, id int64) (model.Post, error)
}

// SessionReset is notified when a post's snapshot entry is replaced, so
// session-local state derived from the old entry can be dropped.
// *engage.Controller satisfies it.
type SessionReset interface {
	ResetPost(post model.Post)
}

// Assembler owns the feed snapshot. It is the only component that
// replaces the snapshot wholesale or patches a single entry.
type Assembler struct {
	api         API
	log         zerolog.Logger
	reset       SessionReset
	concurrency int

	mu       sync.RWMutex
	snapshot []model.Post
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithSessionReset wires a session-state owner to be reset whenever a
// snapshot entry is replaced.
func WithSessionReset(r SessionReset) Option {
	return func(a *Assembler) { a.reset = r }
}

// WithDetailConcurrency bounds how many detail fetches run at once.
func WithDetailConcurrency(n int) Option {
	return func(a *Assembler) {
		if n > 0 {
			a.concurrency = n
		}
	}
}

func NewAssembler(api API, log zerolog.Logger, opts ...Option) *Assembler {
	a := &Assembler{
		api:         api,
		log:         log,
		concurrency: defaultDetailConcurrency,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Snapshot returns the current feed snapshot. The returned slice is a
// copy; consumers never observe a partially merged state.
func (a *Assembler) Snapshot() []model.Post {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]model.Post, len(a.snapshot))
	copy(out, a.snapshot)
	return out
}

// Refresh rebuilds the whole snapshot: fetch the post list, fan out the
// per-post detail fetches, merge, publish atomically. A failed detail
// fetch degrades that one post to its lightweight list entry; a failed
// list fetch empties the feed and returns the error.
func (a *Assembler) Refresh(ctx context.Context) error {
	refreshID := uuid.New().String()[:8]
	log := a.log.With().Str("refresh_id", refreshID).Logger()

	list, err := a.api.ListPosts(ctx)
	if err != nil {
		a.publish(nil)
		log.Error().Err(err).Msg("feed list fetch failed")
		return fmt.Errorf("fetch post list: %w", err)
	}

	merged := a.fetchDetails(ctx, log, list)
	a.publish(merged)
	log.Debug().Int("posts", len(merged)).Msg("feed snapshot published")
	return nil
}

// fetchDetails runs the detail fan-out and merges results in list
// order. The join waits for every fetch, success or failure; one slow
// or failed post never blocks or cancels the others.
func (a *Assembler) fetchDetails(ctx context.Context, log zerolog.Logger, list []model.Post) []model.Post {
	merged := make([]model.Post, len(list))
	copy(merged, list)

	g := &errgroup.Group{}
	g.SetLimit(a.concurrency)
	for i := range list {
		g.Go(func() error {
			detail, err := a.api.GetPost(ctx, list[i].ID)
			if err != nil {
				// Degrade this post alone; the list entry stands in.
				log.Warn().Err(err).Int64("post_id", list[i].ID).Msg("detail fetch failed, using list entry")
				return nil
			}
			if detail.CommentCount == 0 {
				detail.CommentCount = detail.TotalComments()
			}
			merged[i] = detail
			return nil
		})
	}
	_ = g.Wait()
	return merged
}

// RefreshPost re-fetches a single post's detail and patches that entry
// in place, leaving every other post and its session state untouched.
// Called after the user's own write completes, so the new state is
// never silently reverted.
func (a *Assembler) RefreshPost(ctx context.Context, id int64) error {
	detail, err := a.api.GetPost(ctx, id)
	if err != nil {
		return fmt.Errorf("refresh post %d: %w", id, err)
	}
	if detail.CommentCount == 0 {
		detail.CommentCount = detail.TotalComments()
	}

	a.mu.Lock()
	patched := false
	for i := range a.snapshot {
		if a.snapshot[i].ID == id {
			a.snapshot[i] = detail
			patched = true
			break
		}
	}
	a.mu.Unlock()

	if !patched {
		return fmt.Errorf("refresh post %d: not in current snapshot", id)
	}
	if a.reset != nil {
		a.reset.ResetPost(detail)
	}
	return nil
}

// publish swaps in the new snapshot and resets session state for every
// replaced entry.
func (a *Assembler) publish(posts []model.Post) {
	a.mu.Lock()
	a.snapshot = posts
	a.mu.Unlock()

	if a.reset != nil {
		for _, p := range posts {
			a.reset.ResetPost(p)
		}
	}
}
