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
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic/orchestrator/llm/anthropic"
)

func TestNewProvider_Factories(t *testing.T) {
	ctx := context.Background()

	p, err := NewProvider(ctx, BackendConfig{Name: "local", Type: ProviderTypeOllama})
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeOllama, p.Type())
	assert.Equal(t, "local", p.Name())

	p, err = NewProvider(ctx, BackendConfig{Name: "vllm", Type: ProviderTypeOpenAI, Endpoint: "http://vllm:8000"})
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeOpenAI, p.Type())

	p, err = NewProvider(ctx, BackendConfig{Name: "claude", Type: ProviderTypeAnthropic, APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, ProviderTypeAnthropic, p.Type())
	assert.Equal(t, "claude", p.Name())

	_, err = NewProvider(ctx, BackendConfig{Name: "claude", Type: ProviderTypeAnthropic})
	assert.ErrorContains(t, err, "API key is required")

	_, err = NewProvider(ctx, BackendConfig{Name: "x", Type: "gemini"})
	assert.ErrorContains(t, err, "unsupported type")
}

func TestRegisteredTypes(t *testing.T) {
	types := RegisteredTypes()
	assert.Equal(t, []ProviderType{ProviderTypeAnthropic, ProviderTypeBedrock, ProviderTypeOllama, ProviderTypeOpenAI}, types)
}

func TestAnthropicAdapter_Chat(t *testing.T) {
	var got map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"model":"claude-3-5-sonnet-20241022","stop_reason":"end_turn","content":[{"type":"text","text":"Decision: yes"}],"usage":{"input_tokens":4,"output_tokens":2}}`))
	}))
	defer server.Close()

	client, err := anthropic.NewProvider(anthropic.Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)
	adapter := NewAnthropicAdapter("", client)
	assert.Equal(t, "anthropic", adapter.Name())

	resp, err := adapter.Chat(context.Background(), ChatRequest{
		Model: "claude-3-5-sonnet-20241022",
		Messages: []ChatMessage{
			SystemMessage("You are the chair."),
			UserMessage("Decide."),
		},
		MaxTokens:   1024,
		Temperature: 0.7,
	})

	require.NoError(t, err)
	assert.Equal(t, "Decision: yes", resp.Content)
	assert.Equal(t, 6, resp.Usage.TotalTokens)
	assert.Equal(t, "You are the chair.", got["system"])
	assert.Len(t, got["messages"], 1)
}

func TestAnthropicAdapter_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(529)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	client, err := anthropic.NewProvider(anthropic.Config{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	_, err = NewAnthropicAdapter("anthropic", client).Chat(context.Background(), ChatRequest{
		Messages: []ChatMessage{UserMessage("Decide.")},
	})

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, 529, statusErr.StatusCode)
	assert.True(t, classifyError(context.Background(), "m", err).Retryable)
}
