// Package httpapi is the reference karmafeed API server. It exposes
// the exact REST surface the client engine consumes: posts, nested
// comments, like toggles, the 24h karma leaderboard, and the
// get-or-create identity endpoint.
package httpapi

import (
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/karmafeed/karmafeed/internal/config"
	"github.com/karmafeed/karmafeed/internal/model"
	"github.com/karmafeed/karmafeed/internal/rate"
	"github.com/karmafeed/karmafeed/internal/store"
	"github.com/karmafeed/karmafeed/internal/thread"
)

// prototypeLiker is the account likes are attributed to when the
// request names no user and none is configured. Likes are anonymous in
// the UI; the account only anchors server-side idempotence.
const prototypeLiker = "testuser"

const leaderboardWindow = 24 * time.Hour
const leaderboardSize = 5

type Server struct {
	store store.Store
	cfg   config.Config
	log   zerolog.Logger

	postLimit    rate.Limiter
	commentLimit rate.Limiter
	likeLimit    rate.Limiter

	router chi.Router
}

func NewServer(st store.Store, cfg config.Config, log zerolog.Logger) *Server {
	s := &Server{
		store:        st,
		cfg:          cfg,
		log:          log,
		postLimit:    rate.PerMinute(cfg.RateLimits.PostPerMinute),
		commentLimit: rate.PerMinute(cfg.RateLimits.CommentPerMinute),
		likeLimit:    rate.PerMinute(cfg.RateLimits.LikePerMinute),
	}

	r := chi.NewRouter()
	r.Use(s.logRequests)

	r.Get("/posts/", s.handleListPosts)
	r.Post("/posts/", s.handleCreatePost)
	r.Get("/posts/{id}/", s.handleGetPost)
	r.Post("/comments/", s.handleCreateComment)
	r.Post("/likes/like_post/", s.handleLikePost)
	r.Post("/likes/unlike_post/", s.handleUnlikePost)
	r.Post("/likes/like_comment/", s.handleLikeComment)
	r.Post("/likes/unlike_comment/", s.handleUnlikeComment)
	r.Get("/leaderboard/", s.handleLeaderboard)
	r.Post("/get-or-create-user/", s.handleGetOrCreateUser)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// handleListPosts returns the lightweight list representation, newest
// first, as a bare array.
func (s *Server) handleListPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.store.ListPosts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if posts == nil {
		posts = []model.Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

// handleGetPost returns the detail representation: the post plus its
// full nested comment tree with server-assigned levels.
func (s *Server) handleGetPost(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid post id"))
		return
	}
	post, err := s.store.GetPost(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	flat, err := s.store.ListCommentsByPost(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	forest := thread.Build(id, flat)
	for _, warning := range forest.Warnings {
		s.log.Warn().Int64("post_id", id).Str("finding", warning).Msg("comment tree integrity")
	}
	post.Comments = forest.Nested()
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, s.postLimit) {
		return
	}
	var req struct {
		Content string `json:"content"`
		Author  int64  `json:"author"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Content == "" {
		writeError(w, http.StatusBadRequest, errors.New("content is required"))
		return
	}
	author, err := s.store.GetUser(r.Context(), req.Author)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("author not found"))
		return
	}

	now := time.Now()
	post := model.Post{
		Author:    author,
		Content:   req.Content,
		CreatedAt: now,
		UpdatedAt: now,
		Comments:  []model.Comment{},
	}
	id, err := s.store.CreatePost(r.Context(), &post)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	post.ID = id
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	if !s.allowRateLimit(w, r, s.commentLimit) {
		return
	}
	var req struct {
		Post    int64  `json:"post"`
		Parent  *int64 `json:"parent"`
		Content string `json:"content"`
		Author  int64  `json:"author"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Content = strings.TrimSpace(req.Content)
	if req.Post == 0 || req.Content == "" {
		writeError(w, http.StatusBadRequest, errors.New("post and content are required"))
		return
	}
	if _, err := s.store.GetPost(r.Context(), req.Post); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("post not found"))
		return
	}
	author, err := s.store.GetUser(r.Context(), req.Author)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("author not found"))
		return
	}

	comment := model.Comment{
		PostID:    req.Post,
		ParentID:  req.Parent,
		Author:    author,
		Content:   req.Content,
		CreatedAt: time.Now(),
		Replies:   []model.Comment{},
	}
	id, err := s.store.CreateComment(r.Context(), &comment)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrWrongPost):
			writeError(w, http.StatusBadRequest, errors.New("parent comment must belong to the same post"))
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusBadRequest, errors.New("parent comment not found"))
		default:
			writeError(w, http.StatusInternalServerError, err)
		}
		return
	}
	comment.ID = id
	writeJSON(w, http.StatusCreated, comment)
}

func (s *Server) handleLikePost(w http.ResponseWriter, r *http.Request) {
	s.handleLike(w, r, store.KindPost)
}

func (s *Server) handleUnlikePost(w http.ResponseWriter, r *http.Request) {
	s.handleUnlike(w, r, store.KindPost)
}

func (s *Server) handleLikeComment(w http.ResponseWriter, r *http.Request) {
	s.handleLike(w, r, store.KindComment)
}

func (s *Server) handleUnlikeComment(w http.ResponseWriter, r *http.Request) {
	s.handleUnlike(w, r, store.KindComment)
}

type likeRequest struct {
	PostID    int64 `json:"post_id"`
	CommentID int64 `json:"comment_id"`
	UserID    int64 `json:"user_id"`
}

func (req likeRequest) itemID(kind string) int64 {
	if kind == store.KindComment {
		return req.CommentID
	}
	return req.PostID
}

// likeTarget resolves the liked item's author and karma parameters.
func (s *Server) likeTarget(r *http.Request, kind string, itemID int64) (authorID int64, txnKind string, amount int, err error) {
	if kind == store.KindComment {
		comment, err := s.store.GetComment(r.Context(), itemID)
		if err != nil {
			return 0, "", 0, err
		}
		return comment.Author.ID, store.TxnCommentLike, model.KarmaPerCommentLike, nil
	}
	post, err := s.store.GetPost(r.Context(), itemID)
	if err != nil {
		return 0, "", 0, err
	}
	return post.Author.ID, store.TxnPostLike, model.KarmaPerPostLike, nil
}

func (s *Server) handleLike(w http.ResponseWriter, r *http.Request, kind string) {
	if !s.allowRateLimit(w, r, s.likeLimit) {
		return
	}
	var req likeRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	itemID := req.itemID(kind)
	if itemID == 0 {
		writeError(w, http.StatusBadRequest, errors.New(kind+"_id is required"))
		return
	}
	authorID, txnKind, amount, err := s.likeTarget(r, kind, itemID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	likerID, err := s.resolveLiker(r, req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	created, err := s.store.CreateLike(r.Context(), &model.Like{
		UserID:    likerID,
		ItemKind:  kind,
		ItemID:    itemID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !created {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Already liked"})
		return
	}

	if err := s.applyLikeDelta(r, kind, itemID, +1); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	err = s.store.CreateKarmaTransaction(r.Context(), &model.KarmaTransaction{
		UserID:    authorID,
		Amount:    amount,
		Kind:      txnKind,
		ItemID:    itemID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"message": likeMessage(kind, "liked")})
}

func (s *Server) handleUnlike(w http.ResponseWriter, r *http.Request, kind string) {
	if !s.allowRateLimit(w, r, s.likeLimit) {
		return
	}
	var req likeRequest
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	itemID := req.itemID(kind)
	if itemID == 0 {
		writeError(w, http.StatusBadRequest, errors.New(kind+"_id is required"))
		return
	}
	authorID, txnKind, _, err := s.likeTarget(r, kind, itemID)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, store.ErrNotFound) {
			status = http.StatusNotFound
		}
		writeError(w, status, err)
		return
	}
	likerID, err := s.resolveLiker(r, req.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	deleted, err := s.store.DeleteLike(r.Context(), likerID, kind, itemID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !deleted {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Not liked yet"})
		return
	}

	if err := s.applyLikeDelta(r, kind, itemID, -1); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := s.store.DeleteKarmaTransaction(r.Context(), authorID, txnKind, itemID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": likeMessage(kind, "unliked")})
}

func (s *Server) applyLikeDelta(r *http.Request, kind string, itemID int64, delta int) error {
	if kind == store.KindComment {
		return s.store.UpdateCommentLikeCount(r.Context(), itemID, delta)
	}
	return s.store.UpdatePostLikeCount(r.Context(), itemID, delta)
}

func likeMessage(kind, verb string) string {
	if kind == store.KindComment {
		return "Comment " + verb + " successfully"
	}
	return "Post " + verb + " successfully"
}

// resolveLiker picks the account a like is attributed to: the explicit
// user_id when the request carries one, otherwise the configured
// prototype account, created lazily.
func (s *Server) resolveLiker(r *http.Request, requested int64) (int64, error) {
	if requested != 0 {
		return requested, nil
	}
	if s.cfg.PrototypeLikerID != 0 {
		return s.cfg.PrototypeLikerID, nil
	}
	user, _, err := s.store.GetOrCreateUser(r.Context(), prototypeLiker)
	if err != nil {
		return 0, err
	}
	return user.ID, nil
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	cutoff := time.Now().Add(-leaderboardWindow)
	entries, err := s.store.Leaderboard(r.Context(), cutoff, leaderboardSize)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetOrCreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
	}
	if err := readJSON(r.Body, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" {
		writeError(w, http.StatusBadRequest, errors.New("username is required"))
		return
	}

	user, created, err := s.store.GetOrCreateUser(r.Context(), req.Username)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"created":  created,
	})
}

func (s *Server) allowRateLimit(w http.ResponseWriter, r *http.Request, l rate.Limiter) bool {
	allowed, retry := l.Allow(s.clientIP(r))
	if !allowed {
		writeRateLimit(w, retry)
		return false
	}
	return true
}

func (s *Server) clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeRateLimit(w http.ResponseWriter, retry time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(retry.Seconds())))
	writeJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate limit exceeded",
		"retry_after": int(retry.Seconds()),
	})
}

func readJSON(body io.ReadCloser, dest any) error {
	defer body.Close()
	return json.NewDecoder(body).Decode(dest)
}
