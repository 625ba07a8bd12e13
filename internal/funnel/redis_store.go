package funnel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultSessionTTL = 2 * time.Hour
	maxUpdateAttempts = 8
)

// RedisStore keeps sessions as JSON documents with a sliding TTL. Updates use
// WATCH/MULTI so concurrent writers on different instances never interleave.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("funnel: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("bearound.internal.funnel.store"),
		now:    time.Now,
	}
}

func sessionKey(id string) string {
	return fmt.Sprintf("funnel:session:%s", id)
}

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	ctx, span := r.tracer.Start(ctx, "funnel.create_session")
	defer span.End()

	if err := s.Validate(); err != nil {
		return err
	}
	s.Revision = 1
	s.UpdatedAt = r.now().UTC()
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("funnel: failed to marshal session: %w", err)
	}
	ok, err := r.redis.SetNX(ctx, sessionKey(s.ID), data, r.ttl).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("funnel: failed to persist session: %w", err)
	}
	if !ok {
		return ErrSessionExists
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	ctx, span := r.tracer.Start(ctx, "funnel.get_session")
	defer span.End()

	data, err := r.redis.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("funnel: failed to load session: %w", err)
	}
	return decodeSession(data)
}

func (r *RedisStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	ctx, span := r.tracer.Start(ctx, "funnel.update_session")
	defer span.End()

	key := sessionKey(id)
	var saved *Session
	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		err := r.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return ErrSessionNotFound
				}
				return fmt.Errorf("funnel: failed to load session: %w", err)
			}
			current, err := decodeSession(data)
			if err != nil {
				return err
			}
			next := current.Clone()
			if err := fn(next); err != nil {
				return err
			}
			if err := next.Validate(); err != nil {
				return err
			}
			next.Revision = current.Revision + 1
			next.UpdatedAt = r.now().UTC()
			encoded, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("funnel: failed to marshal session: %w", err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, r.ttl)
				return nil
			})
			if err != nil {
				return err
			}
			saved = next
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			span.SetAttributes(attribute.Int("funnel.update_attempts", attempt))
			continue
		}
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		return saved, nil
	}
	return nil, fmt.Errorf("funnel: session %s: too much contention", id)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "funnel.delete_session")
	defer span.End()

	n, err := r.redis.Del(ctx, sessionKey(id)).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("funnel: failed to delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func decodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("funnel: failed to decode session: %w", err)
	}
	return &s, nil
}
