// Package client provides a Go client for the karmafeed REST API.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"github.com/karmafeed/karmafeed/internal/model"
)

// Client is a karmafeed API client. All methods are safe for concurrent
// use; the zero value is not usable, construct with New.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a new karmafeed client.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response from the server. Message carries the
// server-provided error or detail text when present.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error (%d)", e.Status)
	}
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

// IsValidation reports whether the error was the server rejecting the
// request (4xx) rather than failing to serve it.
func (e *APIError) IsValidation() bool {
	return e.Status >= 400 && e.Status < 500
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return c.HTTPClient.Do(req)
}

// decodeOrError decodes a 2xx body into dest, or turns any other status
// into an *APIError using the server's error/detail field when present.
func decodeOrError(resp *http.Response, dest any) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		var payload struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		_ = json.Unmarshal(respBody, &payload)
		msg := payload.Error
		if msg == "" {
			msg = payload.Detail
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if dest == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// ListPosts fetches the lightweight post list (no nested comments).
// Both the bare-array form and the {"results": [...]} envelope are
// accepted.
func (c *Client) ListPosts(ctx context.Context) ([]model.Post, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/posts/", nil)
	if err != nil {
		return nil, err
	}
	var raw json.RawMessage
	if err := decodeOrError(resp, &raw); err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	return decodePostList(raw)
}

func decodePostList(raw json.RawMessage) ([]model.Post, error) {
	var posts []model.Post
	if err := json.Unmarshal(raw, &posts); err == nil {
		return posts, nil
	}
	var envelope struct {
		Results []model.Post `json:"results"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("list posts: unrecognized response shape: %w", err)
	}
	return envelope.Results, nil
}

// GetPost fetches the full detail of one post, including its nested
// comment tree.
func (c *Client) GetPost(ctx context.Context, id int64) (model.Post, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/posts/%d/", id), nil)
	if err != nil {
		return model.Post{}, err
	}
	var post model.Post
	if err := decodeOrError(resp, &post); err != nil {
		return model.Post{}, fmt.Errorf("get post %d: %w", id, err)
	}
	if post.Comments == nil {
		post.Comments = []model.Comment{}
	}
	return post, nil
}

// CreatePost publishes a new post authored by the given user id.
func (c *Client) CreatePost(ctx context.Context, content string, authorID int64) (model.Post, error) {
	reqBody := map[string]any{
		"content": content,
		"author":  authorID,
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/posts/", reqBody)
	if err != nil {
		return model.Post{}, err
	}
	var post model.Post
	if err := decodeOrError(resp, &post); err != nil {
		return model.Post{}, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// CreateComment adds a comment to a post. ParentID nil makes a root
// comment, otherwise a reply to the given comment within the same post.
func (c *Client) CreateComment(ctx context.Context, postID int64, parentID *int64, content string, authorID int64) (model.Comment, error) {
	reqBody := map[string]any{
		"post":    postID,
		"content": content,
		"author":  authorID,
	}
	if parentID != nil {
		reqBody["parent"] = *parentID
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/comments/", reqBody)
	if err != nil {
		return model.Comment{}, err
	}
	var comment model.Comment
	if err := decodeOrError(resp, &comment); err != nil {
		return model.Comment{}, fmt.Errorf("create comment: %w", err)
	}
	return comment, nil
}

// LikePost records a like on a post.
func (c *Client) LikePost(ctx context.Context, postID int64) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/likes/like_post/", map[string]any{"post_id": postID})
	if err != nil {
		return err
	}
	if err := decodeOrError(resp, nil); err != nil {
		return fmt.Errorf("like post %d: %w", postID, err)
	}
	return nil
}

// UnlikePost removes a like from a post.
func (c *Client) UnlikePost(ctx context.Context, postID int64) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/likes/unlike_post/", map[string]any{"post_id": postID})
	if err != nil {
		return err
	}
	if err := decodeOrError(resp, nil); err != nil {
		return fmt.Errorf("unlike post %d: %w", postID, err)
	}
	return nil
}

// LikeComment records a like on a comment.
func (c *Client) LikeComment(ctx context.Context, commentID int64) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/likes/like_comment/", map[string]any{"comment_id": commentID})
	if err != nil {
		return err
	}
	if err := decodeOrError(resp, nil); err != nil {
		return fmt.Errorf("like comment %d: %w", commentID, err)
	}
	return nil
}

// UnlikeComment removes a like from a comment.
func (c *Client) UnlikeComment(ctx context.Context, commentID int64) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/likes/unlike_comment/", map[string]any{"comment_id": commentID})
	if err != nil {
		return err
	}
	if err := decodeOrError(resp, nil); err != nil {
		return fmt.Errorf("unlike comment %d: %w", commentID, err)
	}
	return nil
}

// Leaderboard fetches the ranked 24h karma list, in delivery order.
func (c *Client) Leaderboard(ctx context.Context) ([]model.LeaderboardEntry, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/leaderboard/", nil)
	if err != nil {
		return nil, err
	}
	var entries []model.LeaderboardEntry
	if err := decodeOrError(resp, &entries); err != nil {
		return nil, fmt.Errorf("leaderboard: %w", err)
	}
	return entries, nil
}

// GetOrCreateUser resolves a username to a stable user id, creating the
// identity server-side if it has not been seen.
func (c *Client) GetOrCreateUser(ctx context.Context, username string) (model.User, error) {
	if username == "" {
		return model.User{}, errors.New("username required")
	}
	resp, err := c.doRequest(ctx, http.MethodPost, "/get-or-create-user/", map[string]string{"username": username})
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := decodeOrError(resp, &user); err != nil {
		return model.User{}, fmt.Errorf("get or create user: %w", err)
	}
	return user, nil
}
