package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Wyydra/agentcall/internal/core/domain"
	"github.com/redis/go-redis/v9"
)

const DefaultKey = "agentcall:summaries"

type ClientConfig struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// SummaryRepository appends call summaries as JSON to a Redis list.
type SummaryRepository struct {
	rdb *redis.Client
	key string
}

func NewSummaryRepository(ctx context.Context, cfg ClientConfig) (*SummaryRepository, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}
	key := cfg.Key
	if key == "" {
		key = DefaultKey
	}
	return &SummaryRepository{rdb: rdb, key: key}, nil
}

func (r *SummaryRepository) Save(ctx context.Context, summary domain.CallSummary) error {
	b, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return r.rdb.RPush(ctx, r.key, b).Err()
}

// Recent returns up to n summaries, newest last.
func (r *SummaryRepository) Recent(ctx context.Context, n int64) ([]domain.CallSummary, error) {
	raw, err := r.rdb.LRange(ctx, r.key, -n, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]domain.CallSummary, 0, len(raw))
	for _, s := range raw {
		var summary domain.CallSummary
		if err := json.Unmarshal([]byte(s), &summary); err != nil {
			return nil, fmt.Errorf("decode summary: %w", err)
		}
		out = append(out, summary)
	}
	return out, nil
}

func (r *SummaryRepository) Close() error {
	return r.rdb.Close()
}
