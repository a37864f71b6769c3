package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/karmafeed/karmafeed/internal/client"
	"github.com/karmafeed/karmafeed/internal/config"
	"github.com/karmafeed/karmafeed/internal/engage"
	"github.com/karmafeed/karmafeed/internal/feed"
	"github.com/karmafeed/karmafeed/internal/httpapi"
	"github.com/karmafeed/karmafeed/internal/identity"
	"github.com/karmafeed/karmafeed/internal/leaderboard"
	"github.com/karmafeed/karmafeed/internal/model"
	"github.com/karmafeed/karmafeed/internal/store/sqlite"
	"github.com/karmafeed/karmafeed/internal/thread"
)

// CLIConfig holds the CLI client configuration persisted to disk.
type CLIConfig struct {
	BaseURL  string `json:"base_url"`
	Username string `json:"username"`
}

func main() {
	if len(os.Args) < 2 {
		runServer()
		return
	}

	cmd := os.Args[1]

	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	if cmd == "-v" || cmd == "--version" || cmd == "version" {
		fmt.Println("karmafeed v0.1.0")
		return
	}

	if strings.HasPrefix(cmd, "-") {
		runServer()
		return
	}

	args := os.Args[2:]

	switch cmd {
	case "server", "serve":
		runServer()
	case "login", "use":
		cmdLogin(args)
	case "feed", "read":
		cmdFeed(args)
	case "post", "submit":
		cmdPost(args)
	case "comment", "reply":
		cmdComment(args)
	case "like":
		cmdToggle(args, false)
	case "unlike":
		cmdToggle(args, true)
	case "board", "leaderboard":
		cmdBoard(args)
	case "whoami", "status":
		cmdStatus(args)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`karmafeed - threaded social feed client and reference server

Usage: karmafeed <command> [options]

Quick Start:
  karmafeed login --name alice --url http://localhost:8000
  karmafeed feed

Client Commands:
  login               Set your username and server URL
  feed                Fetch and render the full feed with comment threads
  post                Publish a new post
  comment             Comment on a post (or reply with --parent)
  like                Like a post (--post) or comment (--comment)
  unlike              Remove a like from a post or comment
  board               Show the 24h karma leaderboard
  whoami              Show current config

Server:
  serve               Start the karmafeed server (default if no command)

Examples:
  karmafeed post --text "Hello feed"
  karmafeed comment --post 3 --text "Nice one"
  karmafeed comment --post 3 --parent 7 --text "Replying deeper"
  karmafeed like --post 3
  karmafeed feed --post 3                    # One post with its thread

Environment Variables (server):
  KARMAFEED_ADDR              Listen address (default: :8000)
  KARMAFEED_DB                Database path (default: karmafeed.db)
  KARMAFEED_LIKER_ID          Default account for anonymous likes
  KARMAFEED_LOG_LEVEL         zerolog level (default: info)`)
}

// ============================================================================
// SERVER
// ============================================================================

func runServer() {
	cfg := config.Load()
	log := newLogger(cfg.LogLevel)

	st, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open db")
	}
	defer st.Close()

	server := httpapi.NewServer(st, cfg, log)

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr).Msg("karmafeed listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(ctx)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).
		With().Timestamp().Logger()
}

// ============================================================================
// CLIENT COMMANDS
// ============================================================================

func cmdLogin(args []string) {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	name := fs.String("name", "", "Username (required)")
	url := fs.String("url", "http://localhost:8000", "Karmafeed server URL")
	fs.Parse(args)

	if *name == "" {
		fmt.Fprintln(os.Stderr, "Error: --name is required")
		fmt.Fprintln(os.Stderr, "Usage: karmafeed login --name <username> [--url <server-url>]")
		os.Exit(1)
	}

	cfg := CLIConfig{
		BaseURL:  strings.TrimSuffix(*url, "/"),
		Username: *name,
	}

	c := client.New(cfg.BaseURL)
	resolver := identity.NewResolver(c)
	user, err := resolver.Resolve(context.Background(), cfg.Username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := saveCLIConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Logged in as '%s' (user %d)\n", user.Username, user.ID)
	fmt.Printf("  Config: %s\n", cliConfigPath())
	fmt.Printf("  Server: %s\n", cfg.BaseURL)
}

func cmdFeed(args []string) {
	fs := flag.NewFlagSet("feed", flag.ExitOnError)
	postID := fs.Int64("post", 0, "Show one post with its full thread")
	fs.Parse(args)

	_, c, err := loadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if *postID != 0 {
		post, err := c.GetPost(ctx, *postID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		renderPost(post, true)
		return
	}

	assembler := feed.NewAssembler(c, zerolog.Nop())
	if err := assembler.Refresh(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	posts := assembler.Snapshot()
	if len(posts) == 0 {
		fmt.Println("The feed is empty. Be the first: karmafeed post --text \"...\"")
		return
	}
	for _, p := range posts {
		renderPost(p, false)
	}
}

func cmdPost(args []string) {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	text := fs.String("text", "", "Post content (required)")
	fs.Parse(args)

	if strings.TrimSpace(*text) == "" {
		fmt.Fprintln(os.Stderr, "Error: --text is required")
		os.Exit(1)
	}

	cfg, c, err := loadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	user, err := identity.NewResolver(c).Resolve(ctx, cfg.Username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	post, err := c.CreatePost(ctx, *text, user.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Posted as %s\n", user.Username)
	fmt.Printf("  ID: %d\n", post.ID)
}

func cmdComment(args []string) {
	fs := flag.NewFlagSet("comment", flag.ExitOnError)
	postID := fs.Int64("post", 0, "Post ID (required)")
	parentID := fs.Int64("parent", 0, "Parent comment ID (for replies)")
	text := fs.String("text", "", "Comment text (required)")
	fs.Parse(args)

	if *postID == 0 || strings.TrimSpace(*text) == "" {
		fmt.Fprintln(os.Stderr, "Error: --post and --text are required")
		os.Exit(1)
	}

	cfg, c, err := loadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	user, err := identity.NewResolver(c).Resolve(ctx, cfg.Username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var parent *int64
	if *parentID != 0 {
		parent = parentID
	}

	comment, err := c.CreateComment(ctx, *postID, parent, *text, user.ID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Commented on post %d\n", *postID)
	fmt.Printf("  ID: %d\n", comment.ID)
}

func cmdToggle(args []string, undo bool) {
	name := "like"
	if undo {
		name = "unlike"
	}
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	postID := fs.Int64("post", 0, "Post ID")
	commentID := fs.Int64("comment", 0, "Comment ID")
	fs.Parse(args)

	if (*postID == 0 && *commentID == 0) || (*postID != 0 && *commentID != 0) {
		fmt.Fprintln(os.Stderr, "Error: provide exactly one of --post or --comment")
		os.Exit(1)
	}

	_, c, err := loadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	key := engage.PostKey(*postID)
	label := fmt.Sprintf("post %d", *postID)
	if *commentID != 0 {
		key = engage.CommentKey(*commentID)
		label = fmt.Sprintf("comment %d", *commentID)
	}

	// A one-shot CLI invocation has no session history, so unlike goes
	// straight to the API instead of through a toggle controller.
	if undo {
		if key.Kind == engage.KindComment {
			err = c.UnlikeComment(ctx, key.ID)
		} else {
			err = c.UnlikePost(ctx, key.ID)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("✓ Unliked %s\n", label)
		return
	}

	controller := engage.NewController(c)
	if _, err := controller.Toggle(ctx, key); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Liked %s\n", label)
}

func cmdBoard(args []string) {
	fs := flag.NewFlagSet("board", flag.ExitOnError)
	watch := fs.Bool("watch", false, "Keep polling and re-rendering until interrupted")
	interval := fs.Duration("interval", leaderboard.DefaultInterval, "Poll interval with --watch")
	fs.Parse(args)

	_, c, err := loadClient()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	poller := leaderboard.NewPoller(c, zerolog.Nop(), *interval)

	entries, err := poller.FetchOnce(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	renderBoard(entries)

	if !*watch {
		return
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			// A failed poll keeps the last good ranking on screen.
			if _, err := poller.FetchOnce(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "poll failed: %v\n", err)
			}
			renderBoard(poller.Current())
		}
	}
}

func renderBoard(entries []model.LeaderboardEntry) {
	if len(entries) == 0 {
		fmt.Println("No karma earned in the last 24 hours")
		return
	}
	fmt.Println("🏆 Karma leaderboard (last 24h)")
	for i, e := range entries {
		fmt.Printf("%d. %s (%d karma)\n", i+1, e.Username, e.Karma24h)
	}
}

func cmdStatus(args []string) {
	cfg, err := loadCLIConfig()
	if err != nil {
		fmt.Println("Status: Not logged in")
		fmt.Println("\nRun: karmafeed login --name <username>")
		return
	}

	fmt.Printf("User:   %s\n", cfg.Username)
	fmt.Printf("Server: %s\n", cfg.BaseURL)
}

// ============================================================================
// RENDERING
// ============================================================================

func renderPost(p model.Post, full bool) {
	fmt.Printf("\n#%d %s\n", p.ID, p.Author.Username)
	fmt.Printf("  %s\n", p.Content)
	fmt.Printf("  %d likes | %d comments\n", p.LikeCount, p.TotalComments())

	if !p.HasDetail() || len(p.Comments) == 0 {
		return
	}
	if !full {
		// In the list view only the thread shape is summarized.
		fmt.Printf("  --- %d-comment thread, `karmafeed feed --post %d` to read ---\n", p.TotalComments(), p.ID)
		return
	}

	forest := thread.Build(p.ID, p.Comments)
	fmt.Printf("\n  --- Comments (%d) ---\n", forest.Count())
	forest.Walk(func(n *thread.Node) {
		indent := strings.Repeat(" ", 2+thread.IndentPx(n.DisplayLevel())/10)
		fmt.Printf("%s[%d] %s: %s (%d likes)\n",
			indent, n.Comment.ID, n.Comment.Author.Username, n.Comment.Content, n.Comment.LikeCount)
	})
}

// ============================================================================
// HELPERS
// ============================================================================

func karmafeedDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".karmafeed")
}

func cliConfigPath() string {
	return filepath.Join(karmafeedDir(), "config.json")
}

func loadCLIConfig() (CLIConfig, error) {
	data, err := os.ReadFile(cliConfigPath())
	if err != nil {
		return CLIConfig{}, errors.New("not logged in - run 'karmafeed login --name <username>'")
	}
	var cfg CLIConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return CLIConfig{}, err
	}
	return cfg, nil
}

func saveCLIConfig(cfg CLIConfig) error {
	if err := os.MkdirAll(karmafeedDir(), 0700); err != nil {
		return err
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	return os.WriteFile(cliConfigPath(), data, 0600)
}

func loadClient() (CLIConfig, *client.Client, error) {
	cfg, err := loadCLIConfig()
	if err != nil {
		return CLIConfig{}, nil, err
	}
	return cfg, client.New(cfg.BaseURL), nil
}
