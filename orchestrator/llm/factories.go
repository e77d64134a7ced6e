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
	"errors"
	"fmt"
	"sort"
	"sync"

	"agentic/orchestrator/llm/anthropic"
)

// Factory builds a Provider from a backend configuration.
type Factory func(ctx context.Context, cfg BackendConfig) (Provider, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[ProviderType]Factory{}
)

func init() {
	RegisterFactory(ProviderTypeOpenAI, NewOpenAIProviderFactory)
	RegisterFactory(ProviderTypeOllama, NewOllamaProviderFactory)
	RegisterFactory(ProviderTypeAnthropic, NewAnthropicProviderFactory)
	RegisterFactory(ProviderTypeBedrock, NewBedrockProviderFactory)
}

// RegisterFactory registers or replaces the factory for a backend type.
func RegisterFactory(t ProviderType, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[t] = f
}

// RegisteredTypes returns the backend types with a factory, sorted.
func RegisteredTypes() []ProviderType {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]ProviderType, 0, len(factories))
	for t := range factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// NewProvider builds a backend with the factory registered for cfg.Type.
func NewProvider(ctx context.Context, cfg BackendConfig) (Provider, error) {
	factoriesMu.RLock()
	f, ok := factories[cfg.Type]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("backend %q: unsupported type %q", cfg.Name, cfg.Type)
	}
	return f(ctx, cfg)
}

// NewOpenAIProviderFactory creates an OpenAI-compatible backend.
func NewOpenAIProviderFactory(_ context.Context, cfg BackendConfig) (Provider, error) {
	return NewOpenAIProvider(cfg, nil), nil
}

// NewOllamaProviderFactory creates an Ollama backend.
func NewOllamaProviderFactory(_ context.Context, cfg BackendConfig) (Provider, error) {
	return NewOllamaProvider(cfg, nil), nil
}

// NewBedrockProviderFactory creates a Bedrock backend.
func NewBedrockProviderFactory(ctx context.Context, cfg BackendConfig) (Provider, error) {
	return NewBedrockProvider(ctx, cfg)
}

// NewAnthropicProviderFactory creates an Anthropic backend.
func NewAnthropicProviderFactory(_ context.Context, cfg BackendConfig) (Provider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("backend %q: API key is required for Anthropic", cfg.Name)
	}
	provider, err := anthropic.NewProvider(anthropic.Config{
		APIKey:  cfg.APIKey,
		BaseURL: cfg.Endpoint,
		Timeout: backendTimeout(cfg, anthropic.DefaultTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Anthropic provider: %w", err)
	}
	return NewAnthropicAdapter(cfg.Name, provider), nil
}

// AnthropicAdapter adapts anthropic.Provider to the Provider interface.
type AnthropicAdapter struct {
	name     string
	provider *anthropic.Provider
}

// NewAnthropicAdapter wraps an Anthropic client.
func NewAnthropicAdapter(name string, provider *anthropic.Provider) *AnthropicAdapter {
	if name == "" {
		name = string(ProviderTypeAnthropic)
	}
	return &AnthropicAdapter{name: name, provider: provider}
}

// Name returns the backend instance name.
func (a *AnthropicAdapter) Name() string {
	return a.name
}

// Type returns the backend type.
func (a *AnthropicAdapter) Type() ProviderType {
	return ProviderTypeAnthropic
}

// Chat lifts system turns into the Messages API system field and keeps the
// remaining turns in order.
func (a *AnthropicAdapter) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	system, turns := splitSystem(req.Messages)
	messages := make([]anthropic.Message, 0, len(turns))
	for _, m := range turns {
		messages = append(messages, anthropic.Message{Role: string(m.Role), Content: m.Content})
	}

	resp, err := a.provider.Complete(ctx, anthropic.CompletionRequest{
		Model:        req.Model,
		SystemPrompt: system,
		Messages:     messages,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
	})
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Body: apiErr.Message}
		}
		return nil, err
	}

	return &ChatResponse{
		Content:      resp.Content,
		Model:        resp.Model,
		FinishReason: resp.StopReason,
		Usage: UsageStats{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
		Latency: resp.Latency,
	}, nil
}

var _ Provider = (*AnthropicAdapter)(nil)
