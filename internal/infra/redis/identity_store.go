package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"emsi-preparator/internal/domain"
	"github.com/redis/go-redis/v9"
)

// IdentityStore keeps logged-in identities in Redis so they survive process
// restarts and are shared between CLI invocations and server instances.
// Every successful Load slides the TTL forward.
type IdentityStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewIdentityStore(client *redis.Client, ttl time.Duration) *IdentityStore {
	return &IdentityStore{client: client, ttl: ttl}
}

func (s *IdentityStore) Save(ctx context.Context, sessionID string, identity domain.UserIdentity) error {
	raw, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("marshal identity: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	return nil
}

func (s *IdentityStore) Load(ctx context.Context, sessionID string) (domain.UserIdentity, error) {
	raw, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.UserIdentity{}, domain.ErrNoIdentity
	}
	if err != nil {
		return domain.UserIdentity{}, fmt.Errorf("load identity: %w", err)
	}
	var identity domain.UserIdentity
	if err := json.Unmarshal(raw, &identity); err != nil {
		return domain.UserIdentity{}, fmt.Errorf("unmarshal identity: %w", err)
	}
	if s.ttl > 0 {
		// best-effort sliding expiry
		_ = s.client.Expire(ctx, s.key(sessionID), s.ttl).Err()
	}
	return identity, nil
}

func (s *IdentityStore) Delete(ctx context.Context, sessionID string) error {
	return s.client.Del(ctx, s.key(sessionID)).Err()
}

func (s *IdentityStore) key(sessionID string) string {
	return "quiz:identity:" + sessionID
}
