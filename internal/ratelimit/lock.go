package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
)

var ErrInvalidLock = errors.New("invalid_lock_request")

// Deletes the key only while it still holds the caller's token, so an expired
// lock taken over by another request is never released by the old holder.
const compareAndDelete = `
if redis.call("GET", KEYS[1]) ~= ARGV[1] then
  return 0
end
return redis.call("DEL", KEYS[1])
`

// Lease is a held lock. Token is empty when no lock was taken.
type Lease struct {
	Key   string
	Token string
}

type Locker struct {
	client  *redis.Client
	release *redis.Script
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client, release: redis.NewScript(compareAndDelete)}
}

// Acquire takes key for ttl. ok is false when another holder has it.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (lease Lease, ok bool, err error) {
	if l == nil || l.client == nil {
		return Lease{}, false, ErrNotConfigured
	}
	if key == "" || ttl <= 0 {
		return Lease{}, false, ErrInvalidLock
	}

	lease = Lease{Key: key, Token: ulid.Make().String()}
	ok, err = l.client.SetNX(ctx, key, lease.Token, ttl).Result()
	if err != nil || !ok {
		return Lease{}, false, err
	}
	return lease, true, nil
}

func (l *Locker) Release(ctx context.Context, lease Lease) error {
	if l == nil || l.client == nil || lease.Key == "" || lease.Token == "" {
		return nil
	}
	return l.release.Run(ctx, l.client, []string{lease.Key}, lease.Token).Err()
}
