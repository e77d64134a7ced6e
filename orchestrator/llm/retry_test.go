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
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:     maxRetries,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		BackoffFactor:  2,
		RetryIf:        IsRetryable,
	}
}

func TestRetryWithBackoff_SucceedsAfterRetries(t *testing.T) {
	var calls int32
	var retried []int

	cfg := fastRetry(3)
	cfg.OnRetry = func(attempt int, _ time.Duration, _ error) {
		retried = append(retried, attempt)
	}

	result, err := RetryWithBackoff(context.Background(), cfg, func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", NewGatewayError("m", ErrCodeTransportFailure, "flaky")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, int32(3), calls)
	assert.Equal(t, []int{1, 2}, retried)
}

func TestRetryWithBackoff_NonRetryable(t *testing.T) {
	var calls int32
	_, err := RetryWithBackoff(context.Background(), fastRetry(3), func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, NewGatewayError("m", ErrCodeUnknownModel, "nope")
	})

	assert.ErrorIs(t, err, ErrUnknownModel)
	assert.Equal(t, int32(1), calls)
}

func TestRetryWithBackoff_Exhausted(t *testing.T) {
	var calls int32
	_, err := RetryWithBackoff(context.Background(), fastRetry(2), func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, NewGatewayError("m", ErrCodeTimeout, "slow")
	})

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, int32(3), calls)
}

func TestRetryWithBackoff_ContextCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastRetry(5)
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	cfg.OnRetry = func(int, time.Duration, error) { cancel() }

	_, err := RetryWithBackoff(ctx, cfg, func(ctx context.Context) (int, error) {
		return 0, NewGatewayError("m", ErrCodeTransportFailure, "retry me")
	})

	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoffFor(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2}

	assert.Equal(t, 100*time.Millisecond, backoffFor(cfg, 0))
	assert.Equal(t, 200*time.Millisecond, backoffFor(cfg, 1))
	assert.Equal(t, 400*time.Millisecond, backoffFor(cfg, 2))
	assert.Equal(t, time.Second, backoffFor(cfg, 10))

	cfg.Jitter = 0.1
	for i := 0; i < 20; i++ {
		d := backoffFor(cfg, 1)
		assert.GreaterOrEqual(t, d, 180*time.Millisecond)
		assert.LessOrEqual(t, d, 220*time.Millisecond)
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Equal(t, 2, cfg.MaxRetries)
	assert.NotNil(t, cfg.RetryIf)
}
