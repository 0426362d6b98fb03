package data

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/pricetrack/pricetrack/internal/domain/model"
)

// RedisHistoryRepo implements the HistoryRepository interface on Redis. Each
// product's price history is a list of JSON documents under
// price_history:{web_code}; entries are only ever appended, never rewritten.
type RedisHistoryRepo struct {
	client redis.UniversalClient
}

// NewRedisHistoryRepo creates a new RedisHistoryRepo with the given Redis client.
func NewRedisHistoryRepo(client redis.UniversalClient) *RedisHistoryRepo {
	return &RedisHistoryRepo{client: client}
}

func historyKey(webCode string) string {
	return "price_history:" + webCode
}

// Append appends one observation to the product's price ledger.
func (r *RedisHistoryRepo) Append(ctx context.Context, entry *model.PriceEntry) error {
	if entry == nil {
		return errors.New("price entry is required")
	}
	if entry.WebCode == "" {
		return errors.New("price entry web code is required")
	}

	doc, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal price entry: %w", err)
	}

	if err := r.client.RPush(ctx, historyKey(entry.WebCode), doc).Err(); err != nil {
		return fmt.Errorf("append price entry: %w", err)
	}
	return nil
}

// ListByWebCode returns the most recent entries for a web code, oldest first.
// A limit <= 0 returns the full ledger.
func (r *RedisHistoryRepo) ListByWebCode(ctx context.Context, webCode string, limit int) ([]*model.PriceEntry, error) {
	if webCode == "" {
		return nil, errors.New("web code is required")
	}

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}

	docs, err := r.client.LRange(ctx, historyKey(webCode), start, -1).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("list price entries: %w", err)
	}

	entries := make([]*model.PriceEntry, 0, len(docs))
	for _, doc := range docs {
		var entry model.PriceEntry
		if unmarshalErr := json.Unmarshal([]byte(doc), &entry); unmarshalErr != nil {
			return nil, fmt.Errorf("decode price entry: %w", unmarshalErr)
		}
		entries = append(entries, &entry)
	}
	return entries, nil
}

// Health checks the health of the Redis connection.
func (r *RedisHistoryRepo) Health(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
