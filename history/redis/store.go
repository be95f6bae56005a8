// Package redis archives finished runs in redis, for deployments where
// several tracker instances share one archive. Records expire with the
// configured TTL; the index heals itself when expired entries surface.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/talentsift/research-sdk-go/history"
)

const (
	defaultTTL       = 30 * 24 * time.Hour
	defaultListLimit = 50
	defaultPrefix    = "research"
)

type Store struct {
	client   *goredis.Client
	ttl      time.Duration
	prefix   string
	addr     string
	db       int
	password string
}

var _ history.Store = (*Store)(nil)

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) {
		s.password = password
	}
}

func WithDB(db int) Option {
	return func(s *Store) {
		s.db = db
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	s := &Store{
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return s, nil
}

func (s *Store) Save(ctx context.Context, record history.Record) error {
	if record.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if record.Status == "" {
		return fmt.Errorf("run status is required")
	}
	if record.SubmittedAt.IsZero() {
		record.SubmittedAt = time.Now().UTC()
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal run record: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.recordKey(record.RunID), string(raw), s.ttl)
	pipe.ZAdd(ctx, s.indexKey(), goredis.Z{
		Score:  float64(record.SubmittedAt.Unix()),
		Member: record.RunID,
	})
	pipe.Expire(ctx, s.indexKey(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run record in redis: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, runID string) (history.Record, error) {
	if strings.TrimSpace(runID) == "" {
		return history.Record{}, fmt.Errorf("run id is required")
	}

	raw, err := s.client.Get(ctx, s.recordKey(runID)).Result()
	if err != nil {
		if err == goredis.Nil {
			return history.Record{}, history.ErrNotFound
		}
		return history.Record{}, fmt.Errorf("failed to load run record from redis: %w", err)
	}

	var record history.Record
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return history.Record{}, fmt.Errorf("failed to decode run record: %w", err)
	}
	return record, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list run ids: %w", err)
	}
	if len(ids) == 0 {
		return []history.Record{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
	}
	loaded, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to mget run records: %w", err)
	}

	records := make([]history.Record, 0, len(loaded))
	stale := make([]any, 0)
	for i, raw := range loaded {
		if raw == nil {
			// Record expired out from under the index.
			stale = append(stale, ids[i])
			continue
		}
		var record history.Record
		if err := json.Unmarshal([]byte(fmt.Sprintf("%v", raw)), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	if len(stale) > 0 {
		_ = s.client.ZRem(ctx, s.indexKey(), stale...).Err()
	}
	return records, nil
}

func (s *Store) Delete(ctx context.Context, runID string) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}

	deleted, err := s.client.Del(ctx, s.recordKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete run record: %w", err)
	}
	_ = s.client.ZRem(ctx, s.indexKey(), runID).Err()
	if deleted == 0 {
		return history.ErrNotFound
	}
	return nil
}

func (s *Store) Trim(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}

	// Everything ranked past the newest keep entries goes.
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), int64(keep), -1).Result()
	if err != nil {
		return fmt.Errorf("failed to rank run records for trim: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = s.recordKey(id)
		members[i] = id
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, s.indexKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to trim run records: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) recordKey(runID string) string {
	return fmt.Sprintf("%s:history:%s", s.prefix, runID)
}

func (s *Store) indexKey() string {
	return fmt.Sprintf("%s:historyidx", s.prefix)
}
