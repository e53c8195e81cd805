// Package lease provides a Redis backed lease so that only one replica
// drains a given queue at a time.
package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// DefaultTTL is how long a lease survives without renewal
const DefaultTTL = 15 * time.Second

const keyPrefix = "rollcall:lease:"

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Lease is a named lock with an expiry, owned by a random token
type Lease struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	held      bool
	renewedAt time.Time
}

// New creates a lease called name. It is not acquired until Hold is called.
func New(client *redis.Client, name string, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Lease{
		client: client,
		key:    keyPrefix + name,
		owner:  uuid.New().String(),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Key is the Redis key of the lease
func (l *Lease) Key() string {
	return l.key
}

// Hold acquires the lease or renews it, and reports whether it is held.
// Renewal happens once a third of the TTL has passed.
func (l *Lease) Hold(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.held {
		if now.Sub(l.renewedAt) < l.ttl/3 {
			return true, nil
		}
		renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.owner, l.ttl.Milliseconds()).Int()
		if err != nil {
			l.held = false
			return false, fmt.Errorf("failed to renew lease %s: %w", l.key, err)
		}
		if renewed == 1 {
			l.renewedAt = now
			return true, nil
		}
		l.held = false
	}

	acquired, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", l.key, err)
	}
	if acquired {
		l.held = true
		l.renewedAt = now
	}
	return acquired, nil
}

// Release gives the lease up if this owner holds it
func (l *Lease) Release(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.held = false
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("failed to release lease %s: %w", l.key, err)
	}
	return nil
}
