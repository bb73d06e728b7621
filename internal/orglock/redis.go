package orglock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const (
	keyOrgLock        = "orgcore:lock:org:%s"
	defaultRetryDelay = 25 * time.Millisecond
)

// Redis holds organization locks in Redis so that several replicas share
// one writer per organization.
type Redis struct {
	client *redis.Client
	script *redis.Script
	ttl    time.Duration
	wait   time.Duration
}

// NewRedis returns a Redis locker. ttl bounds how long a crashed holder
// keeps the lock; wait bounds how long WithLock polls before ErrBusy.
func NewRedis(client *redis.Client, ttl, wait time.Duration) (*Redis, error) {
	if client == nil {
		return nil, errors.New("lock client not configured")
	}
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	if wait < 0 {
		wait = 0
	}
	return &Redis{
		client: client,
		script: redis.NewScript(lockReleaseScript),
		ttl:    ttl,
		wait:   wait,
	}, nil
}

func (l *Redis) WithLock(ctx context.Context, orgID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf(keyOrgLock, orgID)
	token, err := l.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		// Release on a fresh context so a cancelled request still unlocks.
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := l.script.Run(releaseCtx, l.client, []string{key}, token).Err(); err != nil {
			log.Warn().Err(err).Str("org_id", orgID.String()).Msg("Failed to release organization lock")
		}
	}()

	return fn(ctx)
}

func (l *Redis) acquire(ctx context.Context, key string) (string, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("failed to acquire organization lock: %w", err)
		}
		if ok {
			return token, nil
		}
		if !time.Now().Before(deadline) {
			return "", ErrBusy
		}

		timer := time.NewTimer(defaultRetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}
