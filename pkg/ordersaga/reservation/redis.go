package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces keys when no prefix is given.
const DefaultRedisPrefix = "ordersaga"

// RedisBackend keeps each record in a hash and its ledger in a list.
// Commits use WATCH/MULTI so a concurrent writer aborts the transaction.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string

	mu     sync.RWMutex
	closed bool
}

// NewRedisBackend pings client and wraps it. The backend owns the client
// and closes it on Close.
func NewRedisBackend(ctx context.Context, client redis.UniversalClient, prefix string) (*RedisBackend, error) {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBackend{client: client, prefix: prefix}, nil
}

// DialRedis connects to a single Redis server at addr.
func DialRedis(ctx context.Context, addr, prefix string) (*RedisBackend, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	b, err := NewRedisBackend(ctx, client, prefix)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return b, nil
}

func (r *RedisBackend) recordKey(key uuid.UUID) string {
	return r.prefix + ":reservation:" + key.String()
}

func (r *RedisBackend) movementsKey(key uuid.UUID) string {
	return r.prefix + ":movements:" + key.String()
}

// Seed implements Backend.
func (r *RedisBackend) Seed(ctx context.Context, key uuid.UUID, quantity int, at time.Time) (Record, error) {
	if quantity < 0 {
		return Record{}, ErrNegativeQuantity
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return Record{}, ErrStoreClosed
	}

	at = at.UTC()
	rk := r.recordKey(key)
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, rk).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrRecordExists
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, rk, "qty", quantity, "version", 1, "updated_at", formatTime(at))
			return nil
		})
		return err
	}, rk)

	switch {
	case errors.Is(err, ErrRecordExists), errors.Is(err, redis.TxFailedErr):
		return Record{}, ErrRecordExists
	case err != nil:
		return Record{}, fmt.Errorf("seed record: %w", err)
	}
	return Record{ResourceKey: key, QuantityAvailable: quantity, Version: 1, UpdatedAt: at}, nil
}

// Load implements Backend.
func (r *RedisBackend) Load(ctx context.Context, key uuid.UUID) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return Record{}, ErrStoreClosed
	}

	rec, err := readRecord(ctx, r.client, r.recordKey(key))
	if err != nil {
		return Record{}, err
	}
	rec.ResourceKey = key
	return rec, nil
}

// Commit implements Backend.
func (r *RedisBackend) Commit(ctx context.Context, m Mutation) (Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return Record{}, ErrStoreClosed
	}

	rk := r.recordKey(m.ResourceKey)
	var out Record
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readRecord(ctx, tx, rk)
		if err != nil {
			return err
		}
		if cur.Version != m.ExpectedVersion {
			return ErrStaleVersion
		}
		after := cur.QuantityAvailable + m.Delta
		if after < 0 {
			return ErrNegativeQuantity
		}

		at := m.Movement.At.UTC()
		mv := m.Movement
		mv.ResourceKey = m.ResourceKey
		mv.Delta = m.Delta
		mv.Before = cur.QuantityAvailable
		mv.After = after
		mv.Version = cur.Version + 1
		mv.At = at
		entry, err := json.Marshal(mv)
		if err != nil {
			return fmt.Errorf("encode movement: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.HSet(ctx, rk, "qty", after, "version", mv.Version, "updated_at", formatTime(at))
			p.RPush(ctx, r.movementsKey(m.ResourceKey), entry)
			return nil
		})
		if err != nil {
			return err
		}

		out = Record{ResourceKey: m.ResourceKey, QuantityAvailable: after, Version: mv.Version, UpdatedAt: at}
		return nil
	}, rk)

	switch {
	case errors.Is(err, redis.TxFailedErr):
		return Record{}, ErrStaleVersion
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrStaleVersion), errors.Is(err, ErrNegativeQuantity):
		return Record{}, err
	case err != nil:
		return Record{}, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

// Movements implements Backend.
func (r *RedisBackend) Movements(ctx context.Context, key uuid.UUID) ([]Movement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		return nil, ErrStoreClosed
	}

	entries, err := r.client.LRange(ctx, r.movementsKey(key), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}

	movements := make([]Movement, 0, len(entries))
	for _, e := range entries {
		var mv Movement
		if err := json.Unmarshal([]byte(e), &mv); err != nil {
			return nil, fmt.Errorf("decode movement: %w", err)
		}
		movements = append(movements, mv)
	}
	return movements, nil
}

// Close implements Backend.
func (r *RedisBackend) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	return r.client.Close()
}

// hashReader is satisfied by both the client and a WATCH transaction.
type hashReader interface {
	HMGet(ctx context.Context, key string, fields ...string) *redis.SliceCmd
}

// readRecord loads a record hash. ResourceKey is left for the caller.
func readRecord(ctx context.Context, c hashReader, rk string) (Record, error) {
	vals, err := c.HMGet(ctx, rk, "qty", "version", "updated_at").Result()
	if err != nil {
		return Record{}, fmt.Errorf("load record: %w", err)
	}
	if len(vals) != 3 || vals[0] == nil || vals[1] == nil {
		return Record{}, ErrRecordNotFound
	}

	var rec Record
	if rec.QuantityAvailable, err = strconv.Atoi(fmt.Sprint(vals[0])); err != nil {
		return Record{}, fmt.Errorf("decode quantity: %w", err)
	}
	if rec.Version, err = strconv.ParseInt(fmt.Sprint(vals[1]), 10, 64); err != nil {
		return Record{}, fmt.Errorf("decode version: %w", err)
	}
	if vals[2] != nil {
		rec.UpdatedAt = parseTime(fmt.Sprint(vals[2]))
	}
	return rec, nil
}

// Compile-time interface check.
var _ Backend = (*RedisBackend)(nil)
