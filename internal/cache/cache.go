// Package cache publishes accepted action records to a Redis queue for the
// historian. Publishing is fire-and-forget with a short timeout; a lost
// record never blocks or fails a submission.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ActionQueueKey is the Redis list accepted actions are pushed onto.
const ActionQueueKey = "game_actions"

// publishTimeout bounds one publish attempt.
const publishTimeout = 2 * time.Second

// ActionRecord is one accepted log entry in queue form. ActionIndex carries
// the entry's id so consumers can restore ordering.
type ActionRecord struct {
	GameID      uuid.UUID      `json:"gameId"`
	ActionIndex int            `json:"actionIndex"`
	Day         int            `json:"day"`
	ActionType  string         `json:"actionType"`
	Fields      map[string]any `json:"fields"`
	Timestamp   int64          `json:"timestamp"`
}

// Publisher is the action-record collaborator consumed by the interactor.
type Publisher interface {
	PublishActionRecord(ctx context.Context, rec ActionRecord) error
}

// RedisPublisher pushes records onto a Redis list.
type RedisPublisher struct {
	rdb *redis.Client
	key string
}

// NewRedisPublisher connects a publisher to the given Redis address.
func NewRedisPublisher(addr, password string) *RedisPublisher {
	return &RedisPublisher{
		rdb: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		key: ActionQueueKey,
	}
}

// PublishActionRecord implements Publisher.
func (p *RedisPublisher) PublishActionRecord(ctx context.Context, rec ActionRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("cache: encode action record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.rdb.RPush(ctx, p.key, payload).Err(); err != nil {
		return fmt.Errorf("cache: publish action %d for game %s: %w", rec.ActionIndex, rec.GameID, err)
	}
	return nil
}

// Close shuts the underlying client down.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
