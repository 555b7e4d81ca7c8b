// Package session owns the durable session identifier and the cached current
// user.
//
// The Manager holds the in-memory state and is the single writer of a Store.
// Stores persist two keys per profile, "sessionId" and "user" (the user as
// JSON), mirroring what the web front-end keeps in browser local storage:
//
//   - FileStore: a YAML file in the user config directory (default)
//   - RedisStore: a Redis hash, so several machines can share one login
//   - MemoryStore: process lifetime only, used by tests and the fake backend demo
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/itsneelabh/cartshare/core"
)

// Durable keys
const (
	KeySessionID = "sessionId"
	KeyUser      = "user"
)

// User is the locally cached identity of the signed-in account.
type User struct {
	ID       string `json:"id" yaml:"id"`
	Email    string `json:"email" yaml:"email"`
	Username string `json:"username" yaml:"username"`
}

// Clone returns a copy; nil stays nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Record is everything a Store persists for one profile.
type Record struct {
	SessionID string
	User      *User
}

// Empty reports whether nothing is stored
func (r Record) Empty() bool {
	return r.SessionID == "" && r.User == nil
}

// Store persists a Record. Implementations must be safe for concurrent use.
type Store interface {
	// Load returns the stored record; a missing record is an empty Record, not an error.
	Load(ctx context.Context) (Record, error)
	// Save overwrites the stored record.
	Save(ctx context.Context, rec Record) error
	// Clear removes both keys. Clearing an empty store succeeds.
	Clear(ctx context.Context) error
	// Close releases connections held by the store.
	Close() error
}

// NewStore builds the store selected by cfg.Provider.
func NewStore(cfg core.SessionConfig, logger core.Logger) (Store, error) {
	profile := cfg.Profile
	if profile == "" {
		profile = "default"
	}

	switch strings.ToLower(cfg.Provider) {
	case "", "file":
		return NewFileStore(cfg.Path, profile)
	case "redis":
		client, err := core.NewRedisClient(core.RedisClientOptions{
			RedisURL:  cfg.RedisURL,
			DB:        cfg.RedisDB,
			Namespace: cfg.Namespace,
			Logger:    logger,
		})
		if err != nil {
			return nil, fmt.Errorf("session store: %w", err)
		}
		return NewRedisStore(client, profile, cfg.TTL), nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session provider %q: %w", cfg.Provider, core.ErrInvalidConfiguration)
	}
}

// encodeUser serializes the user the way it is kept under KeyUser.
func encodeUser(u *User) (string, error) {
	if u == nil {
		return "", nil
	}
	data, err := json.Marshal(u)
	if err != nil {
		return "", fmt.Errorf("failed to encode user: %w", err)
	}
	return string(data), nil
}

// decodeUser parses KeyUser. Blank values decode to nil.
func decodeUser(s string) (*User, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var u User
	if err := json.Unmarshal([]byte(s), &u); err != nil {
		return nil, fmt.Errorf("failed to decode stored user: %w", err)
	}
	return &u, nil
}
