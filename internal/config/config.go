package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr              string
	DBPath            string
	BaseURL           string
	PollInterval      time.Duration
	DetailConcurrency int
	PrototypeLikerID  int64
	RateLimits        RateLimits
	LogLevel          string
}

type RateLimits struct {
	PostPerMinute    int
	CommentPerMinute int
	LikePerMinute    int
}

func Load() Config {
	// Best effort; a missing .env is the normal case.
	_ = godotenv.Load()

	addr := envString("KARMAFEED_ADDR", "")
	if addr == "" {
		if port := os.Getenv("PORT"); port != "" {
			addr = ":" + port
		} else {
			addr = ":8000"
		}
	}
	return Config{
		Addr:              addr,
		DBPath:            envString("KARMAFEED_DB", "karmafeed.db"),
		BaseURL:           envString("KARMAFEED_URL", "http://localhost:8000"),
		PollInterval:      envDuration("KARMAFEED_POLL_INTERVAL", 30*time.Second),
		DetailConcurrency: envInt("KARMAFEED_DETAIL_CONCURRENCY", 8),
		PrototypeLikerID:  envInt64("KARMAFEED_LIKER_ID", 0),
		RateLimits: RateLimits{
			PostPerMinute:    envInt("KARMAFEED_RL_POST_PER_MIN", 10),
			CommentPerMinute: envInt("KARMAFEED_RL_COMMENT_PER_MIN", 30),
			LikePerMinute:    envInt("KARMAFEED_RL_LIKE_PER_MIN", 120),
		},
		LogLevel: envString("KARMAFEED_LOG_LEVEL", "info"),
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
