// Package engage owns session-local like state. Like/unlike toggles are
// optimistic-but-consistent: the displayed counter moves only after the
// server confirms, a second toggle while one is in flight is ignored,
// and session state resets whenever the item is re-fetched.
package engage

import (
	"context"
	"errors"
	"sync"

	"github.com/karmafeed/karmafeed/internal/model"
)

// Kind distinguishes the two engageable item types.
type Kind string

const (
	KindPost    Kind = "post"
	KindComment Kind = "comment"
)

// ItemKey identifies one engageable item across the whole feed.
type ItemKey struct {
	Kind Kind
	ID   int64
}

func PostKey(id int64) ItemKey    { return ItemKey{Kind: KindPost, ID: id} }
func CommentKey(id int64) ItemKey { return ItemKey{Kind: KindComment, ID: id} }

// ErrToggleInFlight is returned when a toggle arrives while the
// previous request for the same item has not resolved. The caller
// drops the click; no second request is issued.
var ErrToggleInFlight = errors.New("toggle already in flight")

// Liker issues the like/unlike actions. *client.Client satisfies it.
type Liker interface {
	LikePost(ctx context.Context, postID int64) error
	UnlikePost(ctx context.Context, postID int64) error
	LikeComment(ctx context.Context, commentID int64) error
	UnlikeComment(ctx context.Context, commentID int64) error
}

type itemState struct {
	liked    bool
	inFlight bool
}

// Controller tracks per-item toggle state for one client session.
// Items start Neutral on every (re)load; "liked by me" is never
// persisted across a fetch.
type Controller struct {
	liker Liker

	mu    sync.Mutex
	items map[ItemKey]*itemState
}

func NewController(liker Liker) *Controller {
	return &Controller{
		liker: liker,
		items: make(map[ItemKey]*itemState),
	}
}

// Liked reports the session-local state for an item.
func (c *Controller) Liked(key ItemKey) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.items[key]
	return ok && st.liked
}

// Count derives the displayed counter: the last-known server value plus
// this session's delta (+1 while Liked, 0 while Neutral).
func (c *Controller) Count(key ItemKey, serverCount int) int {
	if c.Liked(key) {
		return serverCount + 1
	}
	return serverCount
}

// Toggle flips the item between Neutral and Liked. From Neutral it
// issues the like action, from Liked the unlike action; on failure the
// state and counter stay where they were and the error surfaces to the
// caller. A toggle while the previous one is unresolved returns
// ErrToggleInFlight. Returns the resulting liked state.
func (c *Controller) Toggle(ctx context.Context, key ItemKey) (bool, error) {
	c.mu.Lock()
	st, ok := c.items[key]
	if !ok {
		st = &itemState{}
		c.items[key] = st
	}
	if st.inFlight {
		liked := st.liked
		c.mu.Unlock()
		return liked, ErrToggleInFlight
	}
	st.inFlight = true
	wasLiked := st.liked
	c.mu.Unlock()

	var err error
	if wasLiked {
		err = c.unlike(ctx, key)
	} else {
		err = c.like(ctx, key)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	st.inFlight = false
	if err != nil {
		return st.liked, err
	}
	st.liked = !wasLiked
	return st.liked, nil
}

func (c *Controller) like(ctx context.Context, key ItemKey) error {
	if key.Kind == KindComment {
		return c.liker.LikeComment(ctx, key.ID)
	}
	return c.liker.LikePost(ctx, key.ID)
}

func (c *Controller) unlike(ctx context.Context, key ItemKey) error {
	if key.Kind == KindComment {
		return c.liker.UnlikeComment(ctx, key.ID)
	}
	return c.liker.UnlikePost(ctx, key.ID)
}

// Reset drops the session state for one item. Called when the item's
// server representation is replaced by a re-fetch.
func (c *Controller) Reset(key ItemKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// ResetAll drops all session state, e.g. after a full feed refresh.
func (c *Controller) ResetAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[ItemKey]*itemState)
}

// ResetPost drops the session state for a post and every comment in its
// tree. The feed assembler calls this when it replaces the post's
// snapshot entry.
func (c *Controller) ResetPost(post model.Post) {
	c.Reset(PostKey(post.ID))
	stack := make([]model.Comment, len(post.Comments))
	copy(stack, post.Comments)
	for len(stack) > 0 {
		cm := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		c.Reset(CommentKey(cm.ID))
		stack = append(stack, cm.Replies...)
	}
}
