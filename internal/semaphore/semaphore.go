package semaphore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/newswire/internal/interfaces"
)

// ErrSlotTimeout is returned when no slot frees up within the acquire
// timeout. Jobs failing with this error are retried by queue backoff.
var ErrSlotTimeout = errors.New("semaphore slot acquisition timed out")

// Config sizes one semaphore instance.
type Config struct {
	// Name namespaces the Redis keys; each worker type gets its own.
	Name string
	// Max is the cluster-wide slot cap. Size it below the database
	// connection pool capacity.
	Max int64
	// AcquireTimeout bounds how long Acquire polls before failing.
	AcquireTimeout time.Duration
	// PollInterval is the retry cadence while saturated.
	PollInterval time.Duration
	// HolderTTL expires the per-holder token of a crashed process so the
	// leaked slot heals itself.
	HolderTTL time.Duration
}

// RedisSemaphore is a cluster-wide counting semaphore over a shared
// Redis instance. The counter bounds simultaneously executing DB-heavy
// steps across all worker processes; per-holder tokens with a TTL act as
// a self-healing safety net against crashed holders.
type RedisSemaphore struct {
	client *redis.Client
	cfg    Config
	logger arbor.ILogger
}

// releaseScript decrements the counter only when the holder token was
// actually deleted, clamping at zero. This makes double-release a no-op
// and tolerates concurrent releases.
var releaseScript = redis.NewScript(`
if redis.call("DEL", KEYS[2]) == 1 then
  local v = redis.call("DECR", KEYS[1])
  if v < 0 then
    redis.call("SET", KEYS[1], 0)
  end
  return 1
end
return 0
`)

// reconcileScript clamps the counter to the number of live holder
// tokens, so slots leaked by crashed holders come back once their
// token TTL expires. Returns how many slots were reclaimed.
var reconcileScript = redis.NewScript(`
local live = #redis.call("KEYS", ARGV[1])
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count > live then
  redis.call("SET", KEYS[1], live)
  return count - live
end
return 0
`)

// New creates a semaphore. The Redis client is shared and process-scoped;
// it is not closed by the semaphore.
func New(client *redis.Client, cfg Config, logger arbor.ILogger) (*RedisSemaphore, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if cfg.Name == "" {
		return nil, errors.New("semaphore name is required")
	}
	if cfg.Max <= 0 {
		return nil, fmt.Errorf("semaphore %s max must be positive", cfg.Name)
	}
	if cfg.AcquireTimeout <= 0 {
		cfg.AcquireTimeout = 30 * time.Second
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 250 * time.Millisecond
	}
	if cfg.HolderTTL <= 0 {
		cfg.HolderTTL = 2 * time.Minute
	}

	return &RedisSemaphore{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// Acquire atomically increments the counter; when the new value exceeds
// the cap it rolls back and polls until a slot frees or the timeout
// elapses. On success a holder token with a TTL is stored and returned.
func (s *RedisSemaphore) Acquire(ctx context.Context) (string, error) {
	deadline := time.Now().Add(s.cfg.AcquireTimeout)

	for {
		n, err := s.client.Incr(ctx, s.counterKey()).Result()
		if err != nil {
			return "", fmt.Errorf("semaphore incr failed: %w", err)
		}

		if n <= s.cfg.Max {
			token := uuid.New().String()
			if err := s.client.Set(ctx, s.holderKey(token), "1", s.cfg.HolderTTL).Err(); err != nil {
				// Roll the slot back rather than holding it without a token
				s.client.Decr(ctx, s.counterKey())
				return "", fmt.Errorf("semaphore holder token write failed: %w", err)
			}
			return token, nil
		}

		// Over the cap: roll back immediately and wait for a slot
		if err := s.client.Decr(ctx, s.counterKey()).Err(); err != nil {
			return "", fmt.Errorf("semaphore rollback failed: %w", err)
		}

		// Saturation may be phantom: a crashed holder's token expires
		// but its increment stays. Reclaim those slots and retry.
		healed, err := s.reconcile(ctx)
		if err != nil {
			return "", err
		}
		if healed > 0 {
			s.logger.Warn().
				Str("semaphore", s.cfg.Name).
				Int64("healed", healed).
				Msg("Reclaimed slots from expired holders")
			continue
		}

		if time.Now().After(deadline) {
			s.logger.Warn().
				Str("semaphore", s.cfg.Name).
				Int64("max", s.cfg.Max).
				Dur("timeout", s.cfg.AcquireTimeout).
				Msg("Semaphore saturated, acquire timed out")
			return "", ErrSlotTimeout
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}
	}
}

// Release frees the slot held by token. Calling it twice for the same
// token is safe: the decrement only happens when the token still existed.
func (s *RedisSemaphore) Release(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	err := releaseScript.Run(ctx, s.client, []string{s.counterKey(), s.holderKey(token)}).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("semaphore release failed: %w", err)
	}
	return nil
}

// reconcile clamps the counter against live holder tokens and returns
// the number of reclaimed slots.
func (s *RedisSemaphore) reconcile(ctx context.Context) (int64, error) {
	healed, err := reconcileScript.Run(ctx, s.client, []string{s.counterKey()}, s.holderPattern()).Int64()
	if err != nil && err != redis.Nil {
		return 0, fmt.Errorf("semaphore reconcile failed: %w", err)
	}
	return healed, nil
}

// Stats exposes active/max/available slot counts. The counter is
// reconciled against live holders first so expired holders never show
// as active.
func (s *RedisSemaphore) Stats(ctx context.Context) (interfaces.SemaphoreStats, error) {
	if _, err := s.reconcile(ctx); err != nil {
		return interfaces.SemaphoreStats{}, err
	}

	active, err := s.client.Get(ctx, s.counterKey()).Int64()
	if err != nil && err != redis.Nil {
		return interfaces.SemaphoreStats{}, fmt.Errorf("semaphore stats read failed: %w", err)
	}

	if active < 0 {
		active = 0
	}
	available := s.cfg.Max - active
	if available < 0 {
		available = 0
	}

	return interfaces.SemaphoreStats{
		Name:      s.cfg.Name,
		Active:    active,
		Max:       s.cfg.Max,
		Available: available,
	}, nil
}

// Reset clears the counter and all holder tokens. Administrative escape
// hatch for operator use only.
func (s *RedisSemaphore) Reset(ctx context.Context) error {
	if err := s.client.Del(ctx, s.counterKey()).Err(); err != nil {
		return fmt.Errorf("semaphore reset failed: %w", err)
	}

	var cursor uint64
	pattern := s.holderPattern()
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return fmt.Errorf("semaphore holder scan failed: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("semaphore holder cleanup failed: %w", err)
			}
		}
		if next == 0 {
			break
		}
		cursor = next
	}

	s.logger.Info().Str("semaphore", s.cfg.Name).Msg("Semaphore reset")
	return nil
}

func (s *RedisSemaphore) counterKey() string {
	return fmt.Sprintf("sem:%s:count", s.cfg.Name)
}

func (s *RedisSemaphore) holderKey(token string) string {
	return fmt.Sprintf("sem:%s:holder:%s", s.cfg.Name, token)
}

func (s *RedisSemaphore) holderPattern() string {
	return fmt.Sprintf("sem:%s:holder:*", s.cfg.Name)
}

var _ interfaces.Semaphore = (*RedisSemaphore)(nil)
