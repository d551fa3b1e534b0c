package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Patrick-De-Lara/todovault/internal/models"
	"github.com/redis/go-redis/v9"
)

const listKeyPrefix = "todos:list:"

// TodoCache caches per-user todo lists in Redis. A miss is reported as a nil
// slice with a nil error so callers can fall through to the database.
type TodoCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewTodoCache returns a new TodoCache with the given TTL.
func NewTodoCache(rdb *redis.Client, ttl time.Duration) *TodoCache {
	return &TodoCache{rdb: rdb, ttl: ttl}
}

// GetList returns the cached list for the user, or nil on miss.
func (c *TodoCache) GetList(ctx context.Context, userID int64) ([]*models.Todo, error) {
	b, err := c.rdb.Get(ctx, listKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var list []*models.Todo
	if err := json.Unmarshal(b, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []*models.Todo{}
	}
	return list, nil
}

// SetList stores the user's list.
func (c *TodoCache) SetList(ctx context.Context, userID int64, list []*models.Todo) error {
	if list == nil {
		list = []*models.Todo{}
	}
	b, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, listKey(userID), b, c.ttl).Err()
}

// Invalidate drops the user's cached list after a write.
func (c *TodoCache) Invalidate(ctx context.Context, userID int64) error {
	return c.rdb.Del(ctx, listKey(userID)).Err()
}

func listKey(userID int64) string {
	return fmt.Sprintf("%s%d", listKeyPrefix, userID)
}
