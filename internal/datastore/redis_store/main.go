package redis_store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"

	"pulsepay/internal/models"
)

func dbKeyRelaySession(userID int64) string {
	return fmt.Sprintf("relay:session:%d", userID)
}

// GetRelaySession returns the staged session for a user, or nil when none is
// pending (expired sessions disappear with their TTL).
func GetRelaySession(ctx context.Context, cmd redis.Cmdable, userID int64) (*models.RelaySession, error) {
	b, err := cmd.Get(ctx, dbKeyRelaySession(userID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var v models.RelaySession
	if err := msgpack.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SetRelaySession stages a session under the user's slot. One slot per user:
// a new relay attempt replaces whatever was pending.
func SetRelaySession(ctx context.Context, cmd redis.Cmdable, session *models.RelaySession, ttl time.Duration) error {
	b, err := msgpack.Marshal(session)
	if err != nil {
		return err
	}
	return cmd.Set(ctx, dbKeyRelaySession(session.UserID), b, ttl).Err()
}

func DeleteRelaySession(ctx context.Context, cmd redis.Cmdable, userID int64) error {
	return cmd.Del(ctx, dbKeyRelaySession(userID)).Err()
}

// SessionStore adapts the package functions to the injectable store used by
// the relay service, so a shared redis can back multiple bot processes.
type SessionStore struct {
	client redis.UniversalClient
}

func NewSessionStore(client redis.UniversalClient) *SessionStore {
	return &SessionStore{client: client}
}

func (s *SessionStore) Get(ctx context.Context, userID int64) (*models.RelaySession, error) {
	return GetRelaySession(ctx, s.client, userID)
}

func (s *SessionStore) Put(ctx context.Context, session *models.RelaySession, ttl time.Duration) error {
	return SetRelaySession(ctx, s.client, session, ttl)
}

func (s *SessionStore) Delete(ctx context.Context, userID int64) error {
	return DeleteRelaySession(ctx, s.client, userID)
}
