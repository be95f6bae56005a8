// Package factory builds a history store from environment configuration.
package factory

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talentsift/research-sdk-go/history"
	"github.com/talentsift/research-sdk-go/history/hybrid"
	redisstore "github.com/talentsift/research-sdk-go/history/redis"
	sqlitestore "github.com/talentsift/research-sdk-go/history/sqlite"
)

// FromEnv picks the archive backend from RESEARCH_HISTORY_BACKEND. The
// default is a local sqlite file.
func FromEnv(ctx context.Context) (history.Store, error) {
	_ = ctx

	backend := strings.ToLower(strings.TrimSpace(getenv("RESEARCH_HISTORY_BACKEND", "sqlite")))
	switch backend {
	case "sqlite":
		path := getenv("RESEARCH_SQLITE_PATH", "./.research-track/history.db")
		return sqlitestore.New(path)

	case "redis":
		return newRedisStoreFromEnv()

	case "hybrid":
		path := getenv("RESEARCH_SQLITE_PATH", "./.research-track/history.db")
		durable, err := sqlitestore.New(path)
		if err != nil {
			return nil, err
		}
		cache, err := newRedisStoreFromEnv()
		if err != nil {
			return hybrid.New(durable, nil)
		}
		return hybrid.New(durable, cache)

	default:
		return nil, fmt.Errorf("unsupported RESEARCH_HISTORY_BACKEND %q (use sqlite, redis, or hybrid)", backend)
	}
}

func newRedisStoreFromEnv() (history.Store, error) {
	addr := getenv("RESEARCH_REDIS_ADDR", "127.0.0.1:6379")
	password := strings.TrimSpace(os.Getenv("RESEARCH_REDIS_PASSWORD"))
	db := getenvInt("RESEARCH_REDIS_DB", 0)
	ttl := getenvDuration("RESEARCH_REDIS_TTL", 30*24*time.Hour)

	opts := []redisstore.Option{
		redisstore.WithPassword(password),
		redisstore.WithDB(db),
		redisstore.WithTTL(ttl),
	}
	return redisstore.New(addr, opts...)
}

func getenv(key, fallback string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	return val
}

func getenvInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
