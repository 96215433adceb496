package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"relief-dispatch-api-server/internal/logger"
	"relief-dispatch-api-server/internal/models"

	"github.com/redis/go-redis/v9"
)

// putScript writes the position unless the dispatch has been closed.
// KEYS[1] position, KEYS[2] closed flag; ARGV[1] payload, ARGV[2] ttl ms (0 = none).
var putScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[2]) == 1 then
	return 0
end
local ttl = tonumber(ARGV[2])
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// RedisMailbox shares positions between API replicas. Keys expire after
// ttl so abandoned dispatches do not linger.
type RedisMailbox struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisMailbox(rdb *redis.Client, ttl time.Duration) *RedisMailbox {
	return &RedisMailbox{rdb: rdb, prefix: "relief:loc:", ttl: ttl}
}

// OpenRedis returns nil when addr is empty.
func OpenRedis(addr, password string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	logger.L().Debug("redis_open", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func (m *RedisMailbox) posKey(id string) string    { return m.prefix + id }
func (m *RedisMailbox) closedKey(id string) string { return m.prefix + id + ":closed" }

func (m *RedisMailbox) Put(ctx context.Context, dispatchID string, p models.Position) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode position: %w", err)
	}
	ok, err := putScript.Run(ctx, m.rdb,
		[]string{m.posKey(dispatchID), m.closedKey(dispatchID)},
		string(payload), m.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis put position %s: %w", dispatchID, err)
	}
	if ok == 0 {
		return fmt.Errorf("dispatch %s: %w", dispatchID, models.ErrDispatchClosed)
	}
	return nil
}

func (m *RedisMailbox) Latest(ctx context.Context, dispatchID string) (*models.Position, error) {
	raw, err := m.rdb.Get(ctx, m.posKey(dispatchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("dispatch %s: %w", dispatchID, models.ErrNoLocationYet)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get position %s: %w", dispatchID, err)
	}
	var p models.Position
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode position %s: %w", dispatchID, err)
	}
	return &p, nil
}

func (m *RedisMailbox) Close(ctx context.Context, dispatchID string) error {
	if err := m.rdb.Set(ctx, m.closedKey(dispatchID), 1, m.ttl).Err(); err != nil {
		return fmt.Errorf("redis close %s: %w", dispatchID, err)
	}
	return nil
}
