package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix namespaces limiter keys in a shared Redis.
const DefaultPrefix = "rfpstub:ratelimit"

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// FixedWindowLimiter counts attempts per key in fixed time windows stored in
// Redis, so several stub processes share one budget.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	prefix string
	client *redis.Client
	now    func() time.Time
}

// Options configures a limiter. Client is required.
type Options struct {
	Client *redis.Client
	Prefix string
	Limit  int
	Window time.Duration
}

func NewFixedWindowLimiter(opts Options) (*FixedWindowLimiter, error) {
	if opts.Limit <= 0 || opts.Window <= 0 {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	if opts.Client == nil {
		return nil, errors.New("rate limiter redis client is required")
	}
	prefix := strings.TrimSpace(opts.Prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &FixedWindowLimiter{
		limit:  opts.Limit,
		window: opts.Window,
		prefix: prefix,
		client: opts.Client,
		now:    time.Now,
	}, nil
}

// NewRedisFixedWindowLimiter dials addr and builds a limiter on it.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	return NewFixedWindowLimiter(Options{
		Client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		Prefix: prefix,
		Limit:  limit,
		Window: window,
	})
}

// Allow records one attempt for key and reports whether it is within quota.
// Redis failures deny the attempt.
func (l *FixedWindowLimiter) Allow(ctx context.Context, key string) bool {
	if l == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.client, []string{l.key(key)}, l.window.Milliseconds()).Int64()
	if err != nil {
		return false
	}
	return res <= int64(l.limit)
}

// Reset forgets the attempts for key in the current window, e.g. after a
// successful login.
func (l *FixedWindowLimiter) Reset(ctx context.Context, key string) error {
	if l == nil {
		return nil
	}
	if err := l.client.Del(ctx, l.key(key)).Err(); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}

func (l *FixedWindowLimiter) Close() error {
	if l == nil {
		return nil
	}
	return l.client.Close()
}

func (l *FixedWindowLimiter) key(key string) string {
	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		key = "unknown"
	}
	slot := l.now().UTC().UnixMilli() / l.window.Milliseconds()
	return fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)
}
