package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"TradePilot/internal/domain/models"
)

const (
	redisTradesKey   = "tradepilot:trades"
	redisPatternsKey = "tradepilot:pattern_stats"
	redisContextsKey = "tradepilot:context_stats"
)

// RedisStore is the shared-state learning backend: the ledger lives in a
// list, the stat collections in hashes keyed by name. It matches the
// FileStore semantics so the two are interchangeable behind the config
// switch.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Append(ctx context.Context, trade models.TradeRecord) error {
	data, err := json.Marshal(trade)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}
	if err := s.client.RPush(ctx, redisTradesKey, data).Err(); err != nil {
		return fmt.Errorf("append trade: %w", err)
	}
	return nil
}

func (s *RedisStore) Update(ctx context.Context, trade models.TradeRecord) error {
	items, err := s.client.LRange(ctx, redisTradesKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("read trades: %w", err)
	}
	for i, item := range items {
		var t models.TradeRecord
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return fmt.Errorf("parse trade at %d: %w", i, err)
		}
		if t.EntryTime.Equal(trade.EntryTime) && t.Asset == trade.Asset {
			data, err := json.Marshal(trade)
			if err != nil {
				return fmt.Errorf("marshal trade: %w", err)
			}
			if err := s.client.LSet(ctx, redisTradesKey, int64(i), data).Err(); err != nil {
				return fmt.Errorf("update trade: %w", err)
			}
			return nil
		}
	}
	return fmt.Errorf("update trade: no entry at %s for %s", trade.EntryTime, trade.Asset)
}

func (s *RedisStore) All(ctx context.Context) ([]models.TradeRecord, error) {
	items, err := s.client.LRange(ctx, redisTradesKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read trades: %w", err)
	}
	out := make([]models.TradeRecord, 0, len(items))
	for i, item := range items {
		var t models.TradeRecord
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("parse trade at %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *RedisStore) PatternStat(ctx context.Context, name string) (models.PatternStat, bool, error) {
	var stat models.PatternStat
	ok, err := s.hashGet(ctx, redisPatternsKey, name, &stat)
	return stat, ok, err
}

func (s *RedisStore) PutPatternStat(ctx context.Context, stat models.PatternStat) error {
	return s.hashPut(ctx, redisPatternsKey, stat.Name, stat)
}

func (s *RedisStore) AllPatternStats(ctx context.Context) ([]models.PatternStat, error) {
	fields, err := s.client.HGetAll(ctx, redisPatternsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read pattern stats: %w", err)
	}
	out := make([]models.PatternStat, 0, len(fields))
	for name, raw := range fields {
		var stat models.PatternStat
		if err := json.Unmarshal([]byte(raw), &stat); err != nil {
			return nil, fmt.Errorf("parse pattern stat %s: %w", name, err)
		}
		out = append(out, stat)
	}
	return out, nil
}

func (s *RedisStore) ContextStat(ctx context.Context, label string) (models.ContextStat, bool, error) {
	var stat models.ContextStat
	ok, err := s.hashGet(ctx, redisContextsKey, label, &stat)
	return stat, ok, err
}

func (s *RedisStore) PutContextStat(ctx context.Context, stat models.ContextStat) error {
	return s.hashPut(ctx, redisContextsKey, stat.Label, stat)
}

func (s *RedisStore) AllContextStats(ctx context.Context) ([]models.ContextStat, error) {
	fields, err := s.client.HGetAll(ctx, redisContextsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read context stats: %w", err)
	}
	out := make([]models.ContextStat, 0, len(fields))
	for label, raw := range fields {
		var stat models.ContextStat
		if err := json.Unmarshal([]byte(raw), &stat); err != nil {
			return nil, fmt.Errorf("parse context stat %s: %w", label, err)
		}
		out = append(out, stat)
	}
	return out, nil
}

func (s *RedisStore) hashGet(ctx context.Context, key, field string, dest interface{}) (bool, error) {
	raw, err := s.client.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read %s/%s: %w", key, field, err)
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("parse %s/%s: %w", key, field, err)
	}
	return true, nil
}

func (s *RedisStore) hashPut(ctx context.Context, key, field string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", key, field, err)
	}
	if err := s.client.HSet(ctx, key, field, data).Err(); err != nil {
		return fmt.Errorf("write %s/%s: %w", key, field, err)
	}
	return nil
}
