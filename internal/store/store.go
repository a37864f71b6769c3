package store

import (
	"context"
	"errors"
	"time"

	"github.com/karmafeed/karmafeed/internal/model"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrWrongPost     = errors.New("parent comment belongs to a different post")
	ErrDuplicateName = errors.New("duplicate username")
)

// Item kinds for likes and karma transactions.
const (
	KindPost    = "post"
	KindComment = "comment"

	TxnPostLike    = "post_like"
	TxnCommentLike = "comment_like"
)

type Store interface {
	UserStore
	PostStore
	CommentStore
	LikeStore
	KarmaStore
	Close() error
}

type UserStore interface {
	// GetOrCreateUser resolves a username, creating it on first sight.
	// The bool reports whether a new user was created.
	GetOrCreateUser(ctx context.Context, username string) (model.User, bool, error)
	GetUser(ctx context.Context, id int64) (model.User, error)
}

type PostStore interface {
	CreatePost(ctx context.Context, post *model.Post) (int64, error)
	GetPost(ctx context.Context, id int64) (model.Post, error)
	// ListPosts returns posts newest first with author and total
	// comment count populated, comments omitted.
	ListPosts(ctx context.Context) ([]model.Post, error)
	UpdatePostLikeCount(ctx context.Context, postID int64, delta int) error
}

type CommentStore interface {
	// CreateComment validates that a parent, when given, belongs to the
	// same post (ErrWrongPost) and stores level = parent level + 1.
	CreateComment(ctx context.Context, comment *model.Comment) (int64, error)
	GetComment(ctx context.Context, id int64) (model.Comment, error)
	// ListCommentsByPost returns the flat comment list in creation
	// order with authors populated; nesting happens above the store.
	ListCommentsByPost(ctx context.Context, postID int64) ([]model.Comment, error)
	UpdateCommentLikeCount(ctx context.Context, commentID int64, delta int) error
}

type LikeStore interface {
	// CreateLike is idempotent per (user, kind, item); the bool reports
	// whether a new like row was created.
	CreateLike(ctx context.Context, like *model.Like) (bool, error)
	// DeleteLike reports whether a like row existed and was removed.
	DeleteLike(ctx context.Context, userID int64, itemKind string, itemID int64) (bool, error)
}

type KarmaStore interface {
	CreateKarmaTransaction(ctx context.Context, txn *model.KarmaTransaction) error
	// DeleteKarmaTransaction removes the newest matching transaction
	// only; each like contributes one row, so an unlike cancels one.
	DeleteKarmaTransaction(ctx context.Context, userID int64, kind string, itemID int64) error
	// Leaderboard sums karma transactions since the cutoff per user,
	// excluding users with none, descending.
	Leaderboard(ctx context.Context, since time.Time, limit int) ([]model.LeaderboardEntry, error)
}
