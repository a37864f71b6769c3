package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/karmafeed/karmafeed/internal/model"
)

type countingAPI struct {
	calls int
	fail  error
}

func (a *countingAPI) GetOrCreateUser(ctx context.Context, username string) (model.User, error) {
	a.calls++
	if a.fail != nil {
		return model.User{}, a.fail
	}
	return model.User{ID: int64(100 + a.calls), Username: username}, nil
}

func TestResolveMemoizes(t *testing.T) {
	api := &countingAPI{}
	r := NewResolver(api)
	ctx := context.Background()

	first, err := r.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := r.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("same username must resolve to same id: %d vs %d", first.ID, second.ID)
	}
	if api.calls != 1 {
		t.Fatalf("expected 1 API call, got %d", api.calls)
	}

	if _, err := r.Resolve(ctx, "bob"); err != nil {
		t.Fatalf("resolve bob: %v", err)
	}
	if api.calls != 2 {
		t.Fatalf("different username must hit the API, got %d calls", api.calls)
	}
}

func TestResolveTrimsWhitespace(t *testing.T) {
	api := &countingAPI{}
	r := NewResolver(api)
	ctx := context.Background()

	a, err := r.Resolve(ctx, "  alice  ")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	b, err := r.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a.ID != b.ID || api.calls != 1 {
		t.Fatalf("trimmed and plain username must share a cache entry")
	}
}

func TestResolveEmptyUsername(t *testing.T) {
	r := NewResolver(&countingAPI{})
	for _, name := range []string{"", "   ", "\t\n"} {
		if _, err := r.Resolve(context.Background(), name); !errors.Is(err, ErrEmptyUsername) {
			t.Errorf("Resolve(%q) = %v, want ErrEmptyUsername", name, err)
		}
	}
}

func TestResolveErrorNotCached(t *testing.T) {
	api := &countingAPI{fail: errors.New("api down")}
	r := NewResolver(api)
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "alice"); err == nil {
		t.Fatalf("expected error")
	}
	api.fail = nil
	user, err := r.Resolve(ctx, "alice")
	if err != nil {
		t.Fatalf("resolve after recovery: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if api.calls != 2 {
		t.Fatalf("failed lookup must not be cached, got %d calls", api.calls)
	}
}

func TestResolveExpiredEntryRefetches(t *testing.T) {
	api := &countingAPI{}
	r := NewResolver(api)
	r.ttl = time.Nanosecond
	ctx := context.Background()

	if _, err := r.Resolve(ctx, "alice"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	time.Sleep(time.Millisecond)
	if _, err := r.Resolve(ctx, "alice"); err != nil {
		t.Fatalf("resolve after expiry: %v", err)
	}
	if api.calls != 2 {
		t.Fatalf("expired entry must refetch, got %d calls", api.calls)
	}
}
