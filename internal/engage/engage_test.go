package engage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/karmafeed/karmafeed/internal/model"
)

// fakeLiker records calls and fails on demand. With blocking set, each
// request signals started and then waits for release.
type fakeLiker struct {
	mu       sync.Mutex
	likes    int
	unlikes  int
	fail     error
	started  chan struct{}
	blocking chan struct{}
}

func (f *fakeLiker) call(like bool) error {
	if f.blocking != nil {
		f.started <- struct{}{}
		<-f.blocking
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	if like {
		f.likes++
	} else {
		f.unlikes++
	}
	return nil
}

func (f *fakeLiker) LikePost(ctx context.Context, id int64) error      { return f.call(true) }
func (f *fakeLiker) UnlikePost(ctx context.Context, id int64) error    { return f.call(false) }
func (f *fakeLiker) LikeComment(ctx context.Context, id int64) error   { return f.call(true) }
func (f *fakeLiker) UnlikeComment(ctx context.Context, id int64) error { return f.call(false) }

func TestToggleRoundTrip(t *testing.T) {
	liker := &fakeLiker{}
	c := NewController(liker)
	key := PostKey(1)

	liked, err := c.Toggle(context.Background(), key)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !liked || !c.Liked(key) {
		t.Fatalf("expected liked after first toggle")
	}
	if got := c.Count(key, 10); got != 11 {
		t.Fatalf("expected count 11 while liked, got %d", got)
	}

	liked, err = c.Toggle(context.Background(), key)
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if liked || c.Liked(key) {
		t.Fatalf("expected neutral after second toggle")
	}
	if got := c.Count(key, 10); got != 10 {
		t.Fatalf("expected count 10 while neutral, got %d", got)
	}

	if liker.likes != 1 || liker.unlikes != 1 {
		t.Fatalf("expected 1 like + 1 unlike, got %d/%d", liker.likes, liker.unlikes)
	}
}

func TestToggleCommentUsesCommentActions(t *testing.T) {
	liker := &fakeLiker{}
	c := NewController(liker)

	if _, err := c.Toggle(context.Background(), CommentKey(7)); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if liker.likes != 1 {
		t.Fatalf("expected comment like issued")
	}
	if c.Liked(PostKey(7)) {
		t.Fatalf("comment and post with the same id must not share state")
	}
}

func TestToggleWhileInFlight(t *testing.T) {
	liker := &fakeLiker{started: make(chan struct{}), blocking: make(chan struct{})}
	c := NewController(liker)
	key := PostKey(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := c.Toggle(context.Background(), key); err != nil {
			t.Errorf("first toggle: %v", err)
		}
	}()

	// Second toggle arrives while the first request is unresolved; it
	// must be dropped without issuing a request, and the state it
	// reports is the pre-flight one.
	<-liker.started
	liked, err := c.Toggle(context.Background(), key)
	if !errors.Is(err, ErrToggleInFlight) {
		t.Fatalf("expected ErrToggleInFlight, got %v", err)
	}
	if liked {
		t.Fatalf("dropped toggle must report the unconfirmed state")
	}

	close(liker.blocking)
	<-done
	if !c.Liked(key) {
		t.Fatalf("first toggle must still land")
	}
	if liker.likes != 1 {
		t.Fatalf("expected exactly 1 like request, got %d", liker.likes)
	}
}

func TestToggleFailureLeavesState(t *testing.T) {
	boom := errors.New("network down")
	liker := &fakeLiker{fail: boom}
	c := NewController(liker)
	key := PostKey(1)

	liked, err := c.Toggle(context.Background(), key)
	if !errors.Is(err, boom) {
		t.Fatalf("expected request error, got %v", err)
	}
	if liked || c.Liked(key) {
		t.Fatalf("failed toggle must leave state neutral")
	}
	if got := c.Count(key, 4); got != 4 {
		t.Fatalf("counter moved on failed toggle: %d", got)
	}

	// Once the backend recovers the same toggle goes through.
	liker.mu.Lock()
	liker.fail = nil
	liker.mu.Unlock()
	if _, err := c.Toggle(context.Background(), key); err != nil {
		t.Fatalf("retry toggle: %v", err)
	}
	if !c.Liked(key) {
		t.Fatalf("expected liked after recovery")
	}

	// A failed unlike leaves the item Liked with the counter still up.
	liker.mu.Lock()
	liker.fail = boom
	liker.mu.Unlock()
	liked, err = c.Toggle(context.Background(), key)
	if !errors.Is(err, boom) {
		t.Fatalf("expected unlike failure, got %v", err)
	}
	if !liked || !c.Liked(key) {
		t.Fatalf("failed unlike must stay Liked")
	}
	if got := c.Count(key, 5); got != 6 {
		t.Fatalf("counter must hold at 6 after failed unlike, got %d", got)
	}
}

func TestResetDropsSessionState(t *testing.T) {
	c := NewController(&fakeLiker{})
	key := PostKey(1)

	if _, err := c.Toggle(context.Background(), key); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	c.Reset(key)
	if c.Liked(key) {
		t.Fatalf("expected neutral after reset")
	}
}

func TestResetPostCoversCommentTree(t *testing.T) {
	c := NewController(&fakeLiker{})
	ctx := context.Background()

	if _, err := c.Toggle(ctx, PostKey(1)); err != nil {
		t.Fatalf("toggle post: %v", err)
	}
	if _, err := c.Toggle(ctx, CommentKey(10)); err != nil {
		t.Fatalf("toggle comment: %v", err)
	}
	if _, err := c.Toggle(ctx, CommentKey(11)); err != nil {
		t.Fatalf("toggle nested comment: %v", err)
	}
	if _, err := c.Toggle(ctx, CommentKey(99)); err != nil {
		t.Fatalf("toggle unrelated comment: %v", err)
	}

	post := model.Post{
		ID: 1,
		Comments: []model.Comment{
			{ID: 10, Replies: []model.Comment{{ID: 11}}},
		},
	}
	c.ResetPost(post)

	if c.Liked(PostKey(1)) || c.Liked(CommentKey(10)) || c.Liked(CommentKey(11)) {
		t.Fatalf("expected post and its comment tree reset")
	}
	if !c.Liked(CommentKey(99)) {
		t.Fatalf("unrelated comment state must survive")
	}
}
