package model

import "time"

// User is an author identity as delivered by the API. Immutable once
// created; the same username always resolves to the same id.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Post is a feed entry. Comments is nil on the lightweight list
// representation and populated (possibly empty but non-nil) on the
// detail representation.
type Post struct {
	ID           int64     `json:"id"`
	Author       User      `json:"author"`
	Content      string    `json:"content"`
	LikeCount    int       `json:"like_count"`
	CommentCount int       `json:"comment_count,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Comments     []Comment `json:"comments,omitempty"`
}

// HasDetail reports whether the post carries the detail representation.
func (p Post) HasDetail() bool {
	return p.Comments != nil
}

// TotalComments returns the server-supplied comment count, or the total
// node count of the nested comment tree when the server left it unset.
// Replies count, not just roots.
func (p Post) TotalComments() int {
	if p.CommentCount > 0 {
		return p.CommentCount
	}
	return countComments(p.Comments)
}

func countComments(comments []Comment) int {
	// Iterative walk; reply chains can be arbitrarily deep.
	total := 0
	stack := make([]Comment, len(comments))
	copy(stack, comments)
	for len(stack) > 0 {
		c := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		total++
		stack = append(stack, c.Replies...)
	}
	return total
}

// Comment is a threaded comment. The API may deliver comments nested
// (Replies populated, roots only at the top level) or flat (ParentID
// links, Replies empty); internal/thread normalizes either form.
type Comment struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id,omitempty"`
	ParentID  *int64    `json:"parent_id,omitempty"`
	Author    User      `json:"author"`
	Content   string    `json:"content"`
	LikeCount int       `json:"like_count"`
	CreatedAt time.Time `json:"created_at"`
	// Level is the server-assigned nesting depth. Nil when the payload
	// omitted it; an explicit 0 is kept distinct from absence.
	Level   *int      `json:"level,omitempty"`
	Replies []Comment `json:"replies"`
}

// IsRoot reports whether the comment has no parent within its post.
func (c Comment) IsRoot() bool {
	return c.ParentID == nil
}

// LeaderboardEntry is one row of the externally computed 24h karma
// ranking. Delivered ordered; never re-sorted client-side.
type LeaderboardEntry struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Karma24h int    `json:"karma_24h"`
}

// Like records that a user liked a post or a comment. Server-side only.
type Like struct {
	ID        int64
	UserID    int64
	ItemKind  string // "post" or "comment"
	ItemID    int64
	CreatedAt time.Time
}

// KarmaTransaction records karma earned from a single like. The 24h
// leaderboard is the per-user sum over a trailing window.
type KarmaTransaction struct {
	ID        int64
	UserID    int64
	Amount    int
	Kind      string // "post_like" or "comment_like"
	ItemID    int64
	CreatedAt time.Time
}

// Karma awarded to an author per like, matching the backend's ledger.
const (
	KarmaPerPostLike    = 5
	KarmaPerCommentLike = 1
)
