// Package identity maps free-text usernames to stable user ids via the
// get-or-create endpoint. Resolution is idempotent by username, so
// results are memoized for a while to skip repeat round trips.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/karmafeed/karmafeed/internal/model"
)

const (
	cacheSize  = 500
	defaultTTL = 10 * time.Minute
)

// ErrEmptyUsername is returned for usernames that are empty after
// trimming. Callers validate before submitting, so hitting this means
// the calling action is aborted with nothing created.
var ErrEmptyUsername = errors.New("username must be non-empty")

// API is the identity endpoint the resolver consumes. *client.Client
// satisfies it.
type API interface {
	GetOrCreateUser(ctx context.Context, username string) (model.User, error)
}

type cacheEntry struct {
	user      model.User
	expiresAt time.Time
}

// Resolver resolves usernames, creating the identity server-side on
// first sight.
type Resolver struct {
	api   API
	ttl   time.Duration
	cache *lru.Cache[string, cacheEntry]
}

func NewResolver(api API) *Resolver {
	// Cache construction only fails for a non-positive size.
	cache, _ := lru.New[string, cacheEntry](cacheSize)
	return &Resolver{api: api, ttl: defaultTTL, cache: cache}
}

// Resolve trims the username and returns its stable User. Any failure
// surfaces to the caller and the calling action (post, comment, reply)
// must be aborted entirely.
func (r *Resolver) Resolve(ctx context.Context, username string) (model.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return model.User{}, ErrEmptyUsername
	}

	if entry, ok := r.cache.Get(username); ok && time.Now().Before(entry.expiresAt) {
		return entry.user, nil
	}

	user, err := r.api.GetOrCreateUser(ctx, username)
	if err != nil {
		return model.User{}, fmt.Errorf("resolve %q: %w", username, err)
	}
	r.cache.Add(username, cacheEntry{user: user, expiresAt: time.Now().Add(r.ttl)})
	return user, nil
}
