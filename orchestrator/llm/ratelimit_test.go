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
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic/shared/logger"
)

func TestTokenBucket(t *testing.T) {
	bucket := NewTokenBucket(1, 2)

	assert.True(t, bucket.TryAcquire())
	assert.True(t, bucket.TryAcquire())
	assert.False(t, bucket.TryAcquire())
	assert.Less(t, bucket.Available(), 1.0)
}

func TestTokenBucket_WaitHonorsContext(t *testing.T) {
	bucket := NewTokenBucket(0.001, 1)
	require.True(t, bucket.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, bucket.Wait(ctx), context.DeadlineExceeded)
}

func TestTokenBucket_Refill(t *testing.T) {
	bucket := NewTokenBucket(100, 1)
	require.True(t, bucket.TryAcquire())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	assert.NoError(t, bucket.Wait(ctx))
}

func TestLocalLimiter(t *testing.T) {
	limiter := NewLocalLimiter(map[string]int{"local": 2, "free": 0})
	ctx := context.Background()

	// Unconfigured and zero-limit backends never block.
	for i := 0; i < 10; i++ {
		require.NoError(t, limiter.Acquire(ctx, "free"))
		require.NoError(t, limiter.Acquire(ctx, "other"))
	}

	require.NoError(t, limiter.Acquire(ctx, "local"))
	require.NoError(t, limiter.Acquire(ctx, "local"))

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limiter.Acquire(short, "local"))
}

func newTestRedisLimiter(t *testing.T, perMinute map[string]int) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLimiterWithClient(client, perMinute, logger.Discard()), mr
}

func TestRedisLimiter_Window(t *testing.T) {
	limiter, _ := newTestRedisLimiter(t, map[string]int{"local": 2})
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx, "local"))
	require.NoError(t, limiter.Acquire(ctx, "local"))

	err := limiter.Acquire(ctx, "local")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTransportFailure)
	assert.True(t, IsRetryable(err))

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, ErrCodeRateLimited, gwErr.Code)

	count, err := limiter.Count(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

func TestRedisLimiter_RefusedCallsLeaveWindowUnchanged(t *testing.T) {
	limiter, mr := newTestRedisLimiter(t, map[string]int{"local": 2})
	ctx := context.Background()

	require.NoError(t, limiter.Acquire(ctx, "local"))
	require.NoError(t, limiter.Acquire(ctx, "local"))

	for i := 0; i < 10; i++ {
		assert.Error(t, limiter.Acquire(ctx, "local"))
	}

	count, err := limiter.Count(ctx, "local")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	members, err := mr.ZMembers("agentic:ratelimit:local")
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestRedisLimiter_UnlimitedBackend(t *testing.T) {
	limiter, mr := newTestRedisLimiter(t, map[string]int{"local": 1})

	for i := 0; i < 5; i++ {
		require.NoError(t, limiter.Acquire(context.Background(), "claude"))
	}
	assert.False(t, mr.Exists("agentic:ratelimit:claude"))
}

func TestRedisLimiter_FailsOpen(t *testing.T) {
	limiter, mr := newTestRedisLimiter(t, map[string]int{"local": 1})
	mr.Close()

	assert.NoError(t, limiter.Acquire(context.Background(), "local"))
	assert.NoError(t, limiter.Acquire(context.Background(), "local"))
}

func TestNewRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)

	limiter, err := NewRedisLimiter(context.Background(), "redis://"+mr.Addr()+"/0", map[string]int{"local": 5}, nil)
	require.NoError(t, err)
	defer func() { _ = limiter.Close() }()
	assert.NoError(t, limiter.Acquire(context.Background(), "local"))

	_, err = NewRedisLimiter(context.Background(), "://bad", nil, nil)
	assert.ErrorContains(t, err, "failed to parse Redis URL")
}

type refusingLimiter struct{ calls int }

func (r *refusingLimiter) Acquire(context.Context, string) error {
	r.calls++
	return NewGatewayError("", ErrCodeRateLimited, "full")
}

func TestChainLimiter(t *testing.T) {
	first := &refusingLimiter{}
	second := &refusingLimiter{}
	chain := ChainLimiter{NewLocalLimiter(nil), first, second}

	err := chain.Acquire(context.Background(), "local")
	assert.ErrorIs(t, err, ErrTransportFailure)
	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)

	assert.NoError(t, ChainLimiter{}.Acquire(context.Background(), "local"))
}
