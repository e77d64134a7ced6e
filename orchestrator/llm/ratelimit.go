// Copyright 2025 AxonFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"agentic/shared/logger"
)

// Limiter gates calls to a backend. Acquire blocks or fails; a returned error
// means the call must not be issued.
type Limiter interface {
	Acquire(ctx context.Context, backend string) error
}

// TokenBucket implements a token bucket rate limiter.
type TokenBucket struct {
	tokens     float64
	maxTokens  float64
	refillRate float64 // tokens per second
	lastRefill time.Time
	mu         sync.Mutex
}

// NewTokenBucket creates a bucket refilling at rate tokens per second.
func NewTokenBucket(rate, burst float64) *TokenBucket {
	return &TokenBucket{
		tokens:     burst,
		maxTokens:  burst,
		refillRate: rate,
		lastRefill: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is done.
func (b *TokenBucket) Wait(ctx context.Context) error {
	for {
		if b.TryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// TryAcquire takes a token if one is available.
func (b *TokenBucket) TryAcquire() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Available returns the current token count.
func (b *TokenBucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refill()
	return b.tokens
}

func (b *TokenBucket) refill() {
	now := time.Now()
	b.tokens += now.Sub(b.lastRefill).Seconds() * b.refillRate
	if b.tokens > b.maxTokens {
		b.tokens = b.maxTokens
	}
	b.lastRefill = now
}

// LocalLimiter keeps one token bucket per backend in process memory.
// Backends without a configured limit are never throttled.
type LocalLimiter struct {
	perMinute map[string]int
	buckets   map[string]*TokenBucket
	mu        sync.Mutex
}

// NewLocalLimiter creates a limiter from backend name to calls per minute.
func NewLocalLimiter(perMinute map[string]int) *LocalLimiter {
	limits := make(map[string]int, len(perMinute))
	for k, v := range perMinute {
		if v > 0 {
			limits[k] = v
		}
	}
	return &LocalLimiter{perMinute: limits, buckets: make(map[string]*TokenBucket)}
}

// Acquire waits for the backend's bucket.
func (l *LocalLimiter) Acquire(ctx context.Context, backend string) error {
	bucket := l.bucket(backend)
	if bucket == nil {
		return nil
	}
	return bucket.Wait(ctx)
}

func (l *LocalLimiter) bucket(backend string) *TokenBucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	limit, ok := l.perMinute[backend]
	if !ok {
		return nil
	}
	b, ok := l.buckets[backend]
	if !ok {
		b = NewTokenBucket(float64(limit)/60.0, float64(limit))
		l.buckets[backend] = b
	}
	return b
}

// RedisLimiter enforces a per-backend sliding one-minute window shared by
// every replica using the same Redis. Redis failures fail open.
type RedisLimiter struct {
	client    *redis.Client
	perMinute map[string]int
	prefix    string
	log       *logger.Logger
}

// NewRedisLimiter parses redisURL (redis://host:port/db) and pings the server.
func NewRedisLimiter(ctx context.Context, redisURL string, perMinute map[string]int, log *logger.Logger) (*RedisLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisLimiterWithClient(client, perMinute, log), nil
}

// NewRedisLimiterWithClient wraps an existing client.
func NewRedisLimiterWithClient(client *redis.Client, perMinute map[string]int, log *logger.Logger) *RedisLimiter {
	if log == nil {
		log = logger.Discard()
	}
	return &RedisLimiter{client: client, perMinute: perMinute, prefix: "agentic:ratelimit:", log: log}
}

// Acquire records the call and refuses it with a rate_limited error when the
// backend's window is full. A refused call is removed from the window again.
func (l *RedisLimiter) Acquire(ctx context.Context, backend string) error {
	limit := l.perMinute[backend]
	if limit <= 0 {
		return nil
	}

	now := time.Now()
	key := l.prefix + backend

	member := uuid.NewString()

	pipe := l.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(now.Add(-time.Minute).UnixNano(), 10))
	pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: member,
	})
	pipe.Expire(ctx, key, 2*time.Minute)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		l.log.Warn("", "", "Redis rate limit check failed, failing open", map[string]interface{}{
			"backend": backend,
			"error":   err.Error(),
		})
		return nil
	}

	count := cmds[1].(*redis.IntCmd).Val()
	if count >= int64(limit) {
		// Refused calls do not occupy the window.
		if err := l.client.ZRem(ctx, key, member).Err(); err != nil {
			l.log.Warn("", "", "Failed to release refused rate limit slot", map[string]interface{}{
				"backend": backend,
				"error":   err.Error(),
			})
		}
		return &GatewayError{
			Code:      ErrCodeRateLimited,
			Message:   fmt.Sprintf("backend %s rate limit exceeded: %d requests/minute (limit: %d)", backend, count+1, limit),
			Retryable: true,
		}
	}
	return nil
}

// Count returns the number of calls in the backend's current window.
func (l *RedisLimiter) Count(ctx context.Context, backend string) (int64, error) {
	minScore := strconv.FormatInt(time.Now().Add(-time.Minute).UnixNano(), 10)
	count, err := l.client.ZCount(ctx, l.prefix+backend, minScore, "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get rate limit status: %w", err)
	}
	return count, nil
}

// Close releases the Redis connection pool.
func (l *RedisLimiter) Close() error {
	return l.client.Close()
}

// ChainLimiter applies each limiter in order.
type ChainLimiter []Limiter

// Acquire stops at the first limiter that refuses.
func (c ChainLimiter) Acquire(ctx context.Context, backend string) error {
	for _, l := range c {
		if err := l.Acquire(ctx, backend); err != nil {
			return err
		}
	}
	return nil
}
