package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/karmafeed/karmafeed/internal/model"
	"github.com/karmafeed/karmafeed/internal/store"
)

type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// migrations is an ordered list of SQL migrations. Each migration runs
// exactly once, tracked by the schema_version table.
var migrations = []string{
	// Migration 1: initial schema
	`
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	created_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	author_id INTEGER NOT NULL,
	content TEXT NOT NULL,
	like_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	FOREIGN KEY(author_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_posts_created_at ON posts(created_at DESC);

CREATE TABLE IF NOT EXISTS comments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	post_id INTEGER NOT NULL,
	parent_id INTEGER,
	author_id INTEGER NOT NULL,
	content TEXT NOT NULL,
	like_count INTEGER NOT NULL DEFAULT 0,
	level INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(post_id) REFERENCES posts(id),
	FOREIGN KEY(parent_id) REFERENCES comments(id),
	FOREIGN KEY(author_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id);

CREATE TABLE IF NOT EXISTS likes (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	item_kind TEXT NOT NULL,
	item_id INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	UNIQUE(user_id, item_kind, item_id),
	FOREIGN KEY(user_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_likes_item ON likes(item_kind, item_id);

CREATE TABLE IF NOT EXISTS karma_transactions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL,
	amount INTEGER NOT NULL,
	kind TEXT NOT NULL,
	item_id INTEGER NOT NULL,
	created_at INTEGER NOT NULL,
	FOREIGN KEY(user_id) REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_karma_user_created ON karma_transactions(user_id, created_at);
`,
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}
	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_version`).Scan(&current); err != nil {
		return err
	}
	for i := current; i < len(migrations); i++ {
		if _, err := db.Exec(migrations[i]); err != nil {
			return err
		}
		if _, err := db.Exec(`INSERT INTO schema_version (version) VALUES (?)`, i+1); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetOrCreateUser(ctx context.Context, username string) (model.User, bool, error) {
	user, err := s.findUserByName(ctx, username)
	if err == nil {
		return user, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return model.User{}, false, err
	}

	res, err := s.db.ExecContext(ctx, `
INSERT INTO users (username, created_at) VALUES (?, ?)
`, username, time.Now().Unix())
	if err != nil {
		if isUniqueViolation(err) {
			// Lost a race to a concurrent create; the row exists now.
			user, err := s.findUserByName(ctx, username)
			return user, false, err
		}
		return model.User{}, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, false, err
	}
	return model.User{ID: id, Username: username}, true, nil
}

func (s *Store) findUserByName(ctx context.Context, username string) (model.User, error) {
	var user model.User
	err := s.db.QueryRowContext(ctx, `
SELECT id, username FROM users WHERE username = ?
`, username).Scan(&user.ID, &user.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, store.ErrNotFound
	}
	return user, err
}

func (s *Store) GetUser(ctx context.Context, id int64) (model.User, error) {
	var user model.User
	err := s.db.QueryRowContext(ctx, `
SELECT id, username FROM users WHERE id = ?
`, id).Scan(&user.ID, &user.Username)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, store.ErrNotFound
	}
	return user, err
}

func (s *Store) CreatePost(ctx context.Context, post *model.Post) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO posts (author_id, content, like_count, created_at, updated_at)
VALUES (?, ?, ?, ?, ?)
`, post.Author.ID, post.Content, post.LikeCount, post.CreatedAt.Unix(), post.UpdatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetPost(ctx context.Context, id int64) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT p.id, p.content, p.like_count, p.created_at, p.updated_at, u.id, u.username
FROM posts p
JOIN users u ON u.id = p.author_id
WHERE p.id = ?
`, id)
	post, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Post{}, store.ErrNotFound
	}
	return post, err
}

func (s *Store) ListPosts(ctx context.Context) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT p.id, p.content, p.like_count, p.created_at, p.updated_at, u.id, u.username,
	(SELECT COUNT(*) FROM comments c WHERE c.post_id = p.id) AS comment_count
FROM posts p
JOIN users u ON u.id = p.author_id
ORDER BY p.created_at DESC, p.id DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var posts []model.Post
	for rows.Next() {
		var p model.Post
		var created, updated int64
		if err := rows.Scan(&p.ID, &p.Content, &p.LikeCount, &created, &updated, &p.Author.ID, &p.Author.Username, &p.CommentCount); err != nil {
			return nil, err
		}
		p.CreatedAt = time.Unix(created, 0)
		p.UpdatedAt = time.Unix(updated, 0)
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *Store) UpdatePostLikeCount(ctx context.Context, postID int64, delta int) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE posts SET like_count = like_count + ? WHERE id = ?
`, delta, postID)
	return err
}

func (s *Store) CreateComment(ctx context.Context, comment *model.Comment) (int64, error) {
	level := 0
	if comment.ParentID != nil {
		parent, err := s.GetComment(ctx, *comment.ParentID)
		if err != nil {
			return 0, err
		}
		if parent.PostID != comment.PostID {
			return 0, store.ErrWrongPost
		}
		if parent.Level != nil {
			level = *parent.Level + 1
		}
	}
	comment.Level = &level

	res, err := s.db.ExecContext(ctx, `
INSERT INTO comments (post_id, parent_id, author_id, content, like_count, level, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, comment.PostID, comment.ParentID, comment.Author.ID, comment.Content, comment.LikeCount, level, comment.CreatedAt.Unix())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetComment(ctx context.Context, id int64) (model.Comment, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT c.id, c.post_id, c.parent_id, c.content, c.like_count, c.level, c.created_at, u.id, u.username
FROM comments c
JOIN users u ON u.id = c.author_id
WHERE c.id = ?
`, id)
	comment, err := scanComment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Comment{}, store.ErrNotFound
	}
	return comment, err
}

func (s *Store) ListCommentsByPost(ctx context.Context, postID int64) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT c.id, c.post_id, c.parent_id, c.content, c.like_count, c.level, c.created_at, u.id, u.username
FROM comments c
JOIN users u ON u.id = c.author_id
WHERE c.post_id = ?
ORDER BY c.created_at ASC, c.id ASC
`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *Store) UpdateCommentLikeCount(ctx context.Context, commentID int64, delta int) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE comments SET like_count = like_count + ? WHERE id = ?
`, delta, commentID)
	return err
}

func (s *Store) CreateLike(ctx context.Context, like *model.Like) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO likes (user_id, item_kind, item_id, created_at) VALUES (?, ?, ?, ?)
`, like.UserID, like.ItemKind, like.ItemID, like.CreatedAt.Unix())
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, err
	}
	like.ID, _ = res.LastInsertId()
	return true, nil
}

func (s *Store) DeleteLike(ctx context.Context, userID int64, itemKind string, itemID int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM likes WHERE user_id = ? AND item_kind = ? AND item_id = ?
`, userID, itemKind, itemID)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	return affected > 0, err
}

func (s *Store) CreateKarmaTransaction(ctx context.Context, txn *model.KarmaTransaction) error {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO karma_transactions (user_id, amount, kind, item_id, created_at)
VALUES (?, ?, ?, ?, ?)
`, txn.UserID, txn.Amount, txn.Kind, txn.ItemID, txn.CreatedAt.Unix())
	if err != nil {
		return err
	}
	txn.ID, _ = res.LastInsertId()
	return nil
}

func (s *Store) DeleteKarmaTransaction(ctx context.Context, userID int64, kind string, itemID int64) error {
	// One like = one transaction, so an unlike removes exactly one row;
	// other likers' transactions for the same item must survive.
	_, err := s.db.ExecContext(ctx, `
DELETE FROM karma_transactions WHERE id IN (
	SELECT id FROM karma_transactions
	WHERE user_id = ? AND kind = ? AND item_id = ?
	ORDER BY id DESC
	LIMIT 1
)
`, userID, kind, itemID)
	return err
}

func (s *Store) Leaderboard(ctx context.Context, since time.Time, limit int) ([]model.LeaderboardEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT u.id, u.username, SUM(k.amount) AS karma
FROM karma_transactions k
JOIN users u ON u.id = k.user_id
WHERE k.created_at >= ?
GROUP BY u.id, u.username
HAVING SUM(k.amount) != 0
ORDER BY karma DESC, u.id ASC
LIMIT ?
`, since.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.ID, &e.Username, &e.Karma24h); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanPost(scanner interface{ Scan(dest ...any) error }) (model.Post, error) {
	var p model.Post
	var created, updated int64
	if err := scanner.Scan(&p.ID, &p.Content, &p.LikeCount, &created, &updated, &p.Author.ID, &p.Author.Username); err != nil {
		return model.Post{}, err
	}
	p.CreatedAt = time.Unix(created, 0)
	p.UpdatedAt = time.Unix(updated, 0)
	return p, nil
}

func scanComment(scanner interface{ Scan(dest ...any) error }) (model.Comment, error) {
	var c model.Comment
	var parentID sql.NullInt64
	var created int64
	var level int
	if err := scanner.Scan(&c.ID, &c.PostID, &parentID, &c.Content, &c.LikeCount, &level, &created, &c.Author.ID, &c.Author.Username); err != nil {
		return model.Comment{}, err
	}
	c.Level = &level
	if parentID.Valid {
		pid := parentID.Int64
		c.ParentID = &pid
	}
	c.CreatedAt = time.Unix(created, 0)
	return c, nil
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
