package session

import (
	"context"
	"fmt"
	"time"

	"github.com/itsneelabh/cartshare/core"
)

// RedisStore keeps one hash per profile with the fields sessionId and user.
// A positive TTL is refreshed on every Save.
type RedisStore struct {
	client  *core.RedisClient
	profile string
	ttl     time.Duration
}

// NewRedisStore wraps a connected RedisClient
func NewRedisStore(client *core.RedisClient, profile string, ttl time.Duration) *RedisStore {
	if profile == "" {
		profile = "default"
	}
	return &RedisStore{client: client, profile: profile, ttl: ttl}
}

// Load implements Store
func (s *RedisStore) Load(ctx context.Context) (Record, error) {
	fields, err := s.client.HGetAll(ctx, s.profile)
	if err != nil {
		return Record{}, fmt.Errorf("failed to load session from redis: %w", err)
	}
	rec := Record{SessionID: fields[KeySessionID]}
	user, err := decodeUser(fields[KeyUser])
	if err != nil {
		return rec, err
	}
	rec.User = user
	return rec, nil
}

// Save implements Store
func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	if rec.Empty() {
		return s.Clear(ctx)
	}

	user, err := encodeUser(rec.User)
	if err != nil {
		return err
	}

	fields := map[string]interface{}{}
	var drop []string
	if rec.SessionID != "" {
		fields[KeySessionID] = rec.SessionID
	} else {
		drop = append(drop, KeySessionID)
	}
	if user != "" {
		fields[KeyUser] = user
	} else {
		drop = append(drop, KeyUser)
	}

	if len(drop) > 0 {
		if err := s.client.HDel(ctx, s.profile, drop...); err != nil {
			return fmt.Errorf("failed to save session to redis: %w", err)
		}
	}
	if err := s.client.HSetWithTTL(ctx, s.profile, fields, s.ttl); err != nil {
		return fmt.Errorf("failed to save session to redis: %w", err)
	}
	return nil
}

// Clear implements Store
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.profile); err != nil {
		return fmt.Errorf("failed to clear session in redis: %w", err)
	}
	return nil
}

// Close implements Store
func (s *RedisStore) Close() error {
	return s.client.Close()
}
