package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ActiveSessionIndex is the TTL-bound pointer from a subject to its current session id.
// It is consulted only for liveness checks and is never a substitute for the session store.
type ActiveSessionIndex interface {
	Set(ctx context.Context, subjectID, sessionID string, ttl time.Duration) error
	// Get returns the current session id and whether a pointer exists.
	Get(ctx context.Context, subjectID string) (string, bool, error)
	Clear(ctx context.Context, subjectID string) error
}

type activeSessionIndex struct {
	client *redis.Client
	prefix string
}

// NewActiveSessionIndex returns a Redis-backed index storing keys under prefix.
func NewActiveSessionIndex(client *redis.Client, prefix string) ActiveSessionIndex {
	if prefix == "" {
		prefix = "auth"
	}
	return &activeSessionIndex{client: client, prefix: prefix}
}

func (i *activeSessionIndex) key(subjectID string) string {
	return i.prefix + ":active-session:" + subjectID
}

func (i *activeSessionIndex) Set(ctx context.Context, subjectID, sessionID string, ttl time.Duration) error {
	if ttl <= 0 {
		return errors.New("active session ttl must be positive")
	}
	if err := i.client.Set(ctx, i.key(subjectID), sessionID, ttl).Err(); err != nil {
		return fmt.Errorf("set active session: %w", err)
	}
	return nil
}

func (i *activeSessionIndex) Get(ctx context.Context, subjectID string) (string, bool, error) {
	sessionID, err := i.client.Get(ctx, i.key(subjectID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get active session: %w", err)
	}
	return sessionID, true, nil
}

func (i *activeSessionIndex) Clear(ctx context.Context, subjectID string) error {
	if err := i.client.Del(ctx, i.key(subjectID)).Err(); err != nil {
		return fmt.Errorf("clear active session: %w", err)
	}
	return nil
}
