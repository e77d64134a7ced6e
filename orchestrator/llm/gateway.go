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
	"time"

	"agentic/shared/logger"
)

// Gateway is the single entry point for model calls. It is safe for
// concurrent use and holds no per-call state.
type Gateway struct {
	registry *Registry
	limiter  Limiter
	retry    RetryConfig
	log      *logger.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLimiter sets the rate limiter consulted before every backend attempt.
func WithLimiter(l Limiter) Option {
	return func(g *Gateway) {
		g.limiter = l
	}
}

// WithRetryConfig replaces the retry policy.
func WithRetryConfig(cfg RetryConfig) Option {
	return func(g *Gateway) {
		g.retry = cfg
	}
}

// WithMaxRetries keeps the default policy with a different retry count.
func WithMaxRetries(n int) Option {
	return func(g *Gateway) {
		if n >= 0 {
			g.retry.MaxRetries = n
		}
	}
}

// WithLogger sets the gateway logger.
func WithLogger(l *logger.Logger) Option {
	return func(g *Gateway) {
		if l != nil {
			g.log = l
		}
	}
}

// NewGateway creates a gateway over registry.
func NewGateway(registry *Registry, opts ...Option) *Gateway {
	g := &Gateway{
		registry: registry,
		retry:    DefaultRetryConfig(),
		log:      logger.Discard(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.retry.RetryIf == nil {
		g.retry.RetryIf = IsRetryable
	}
	return g
}

// Registry returns the model registry.
func (g *Gateway) Registry() *Registry {
	return g.registry
}

// HasModel reports whether modelKey resolves.
func (g *Gateway) HasModel(modelKey string) bool {
	return g.registry.HasModel(modelKey)
}

// Models lists registered models ordered by key.
func (g *Gateway) Models() []ModelInfo {
	return g.registry.Models()
}

// Invoke sends messages to the model registered under modelKey and returns the
// raw completion text. Each attempt is bounded by the model's timeout; retryable
// failures are retried with backoff until ctx is done. Any failure is a
// *GatewayError.
func (g *Gateway) Invoke(ctx context.Context, modelKey string, messages []ChatMessage) (string, error) {
	start := time.Now()

	if len(messages) == 0 {
		return "", g.fail(modelKey, "", start, NewGatewayError(modelKey, ErrCodeInvalidRequest, "messages must not be empty"))
	}
	for i, m := range messages {
		if err := m.Validate(); err != nil {
			return "", g.fail(modelKey, "", start, NewGatewayError(modelKey, ErrCodeInvalidRequest, fmt.Sprintf("message %d: %v", i, err)))
		}
	}

	spec, provider, err := g.registry.Resolve(modelKey)
	if err != nil {
		return "", g.fail(modelKey, "", start, classifyError(ctx, modelKey, err))
	}

	req := ChatRequest{
		Model:       spec.ModelID,
		Messages:    append([]ChatMessage(nil), messages...),
		MaxTokens:   spec.MaxTokens,
		Temperature: spec.Temperature,
	}

	retry := g.retry
	retry.OnRetry = func(attempt int, backoff time.Duration, err error) {
		code := ""
		if gwErr, ok := err.(*GatewayError); ok {
			code = gwErr.Code
		}
		promGatewayRetries.WithLabelValues(modelKey, code).Inc()
		g.log.Warn("", "", "Retrying model call", map[string]interface{}{
			"model_key":  modelKey,
			"backend":    spec.Backend,
			"attempt":    attempt,
			"backoff_ms": backoff.Milliseconds(),
			"error":      err.Error(),
		})
	}

	resp, err := RetryWithBackoff(ctx, retry, func(ctx context.Context) (*ChatResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
		defer cancel()

		if g.limiter != nil {
			if err := g.limiter.Acquire(callCtx, spec.Backend); err != nil {
				return nil, classifyError(ctx, modelKey, err)
			}
		}

		resp, err := provider.Chat(callCtx, req)
		if err != nil {
			return nil, classifyError(ctx, modelKey, err)
		}
		return resp, nil
	})
	if err != nil {
		return "", g.fail(modelKey, spec.Backend, start, classifyError(ctx, modelKey, err))
	}

	elapsed := time.Since(start)
	promGatewayCalls.WithLabelValues(modelKey, spec.Backend, "success").Inc()
	promGatewayDuration.WithLabelValues(modelKey).Observe(float64(elapsed.Milliseconds()))
	g.log.Debug("", "", "Model call completed", map[string]interface{}{
		"model_key":         modelKey,
		"backend":           spec.Backend,
		"model_id":          spec.ModelID,
		"duration_ms":       elapsed.Milliseconds(),
		"completion_tokens": resp.Usage.CompletionTokens,
	})
	return resp.Content, nil
}

func (g *Gateway) fail(modelKey, backend string, start time.Time, err *GatewayError) error {
	elapsed := time.Since(start)
	promGatewayCalls.WithLabelValues(modelKey, backend, err.Code).Inc()
	promGatewayDuration.WithLabelValues(modelKey).Observe(float64(elapsed.Milliseconds()))
	g.log.Error("", "", "Model call failed", map[string]interface{}{
		"model_key":   modelKey,
		"backend":     backend,
		"code":        err.Code,
		"retryable":   err.Retryable,
		"status_code": err.StatusCode,
		"error":       err.Message,
	})
	return err
}
