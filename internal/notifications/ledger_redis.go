package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "seevents:notified:"
	minRedisTTL    = time.Hour
)

// RedisLedger stores one key per notified event. Claim is SET NX; keys
// expire on their own once the event ended plus the retention period, so
// Prune has nothing to do.
type RedisLedger struct {
	client    *redis.Client
	retention time.Duration
	now       func() time.Time
}

// NewRedisLedger connects to url (redis://...) and verifies the connection.
func NewRedisLedger(ctx context.Context, url string, retention time.Duration) (*RedisLedger, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisLedger{client: client, retention: retention, now: time.Now}, nil
}

// Close closes the Redis connection.
func (l *RedisLedger) Close() error {
	return l.client.Close()
}

func redisKey(eventID int64) string {
	return redisKeyPrefix + strconv.FormatInt(eventID, 10)
}

// ttlFor keeps the key until the event ended plus retention, never less
// than minRedisTTL so a claim outlives any overlapping scan window.
func (l *RedisLedger) ttlFor(ev Event) time.Duration {
	ttl := ev.EndTime.Add(l.retention).Sub(l.now())
	if ttl < minRedisTTL {
		return minRedisTTL
	}
	return ttl
}

func (l *RedisLedger) Claim(ctx context.Context, ev Event) (bool, error) {
	body, err := json.Marshal(LedgerEntry{EventID: ev.ID, NotifiedAt: l.now(), EventEnd: ev.EndTime})
	if err != nil {
		return false, fmt.Errorf("marshal ledger entry: %w", err)
	}
	ok, err := l.client.SetNX(ctx, redisKey(ev.ID), body, l.ttlFor(ev)).Result()
	if err != nil {
		return false, fmt.Errorf("claim event %d: %w", ev.ID, err)
	}
	return ok, nil
}

func (l *RedisLedger) Release(ctx context.Context, eventID int64) error {
	if err := l.client.Del(ctx, redisKey(eventID)).Err(); err != nil {
		return fmt.Errorf("release event %d: %w", eventID, err)
	}
	return nil
}

func (l *RedisLedger) Record(ctx context.Context, o Outcome) error {
	e, err := l.Lookup(ctx, o.EventID)
	if err != nil || e == nil {
		return err
	}
	e.Tokens, e.Sent, e.Failed = o.Tokens, o.Sent, o.Failed
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal ledger entry: %w", err)
	}
	if err := l.client.SetXX(ctx, redisKey(o.EventID), body, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("record event %d: %w", o.EventID, err)
	}
	return nil
}

func (l *RedisLedger) Lookup(ctx context.Context, eventID int64) (*LedgerEntry, error) {
	body, err := l.client.Get(ctx, redisKey(eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup event %d: %w", eventID, err)
	}
	var e LedgerEntry
	if err := json.Unmarshal(body, &e); err != nil {
		return nil, fmt.Errorf("decode ledger entry %d: %w", eventID, err)
	}
	return &e, nil
}

func (l *RedisLedger) Prune(context.Context, time.Time) (int64, error) {
	return 0, nil
}
