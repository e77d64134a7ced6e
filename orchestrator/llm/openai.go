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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OpenAI-compatible backend constants.
const (
	// OpenAIDefaultEndpoint targets a local vLLM or LM Studio server.
	OpenAIDefaultEndpoint = "http://localhost:8000"

	// OpenAIDefaultTimeout is the default timeout for OpenAI-compatible requests.
	OpenAIDefaultTimeout = 60 * time.Second
)

// OpenAIProvider talks to any server exposing /v1/chat/completions.
type OpenAIProvider struct {
	name     string
	apiKey   string
	endpoint string
	client   HTTPClient
}

// NewOpenAIProvider creates an OpenAI-compatible backend.
func NewOpenAIProvider(cfg BackendConfig, client HTTPClient) *OpenAIProvider {
	endpoint := strings.TrimRight(cfg.Endpoint, "/")
	if endpoint == "" {
		endpoint = OpenAIDefaultEndpoint
	}
	if client == nil {
		client = &http.Client{Timeout: backendTimeout(cfg, OpenAIDefaultTimeout)}
	}
	name := cfg.Name
	if name == "" {
		name = string(ProviderTypeOpenAI)
	}
	return &OpenAIProvider{
		name:     name,
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		client:   client,
	}
}

// Name returns the backend instance name.
func (p *OpenAIProvider) Name() string {
	return p.name
}

// Type returns the backend type.
func (p *OpenAIProvider) Type() ProviderType {
	return ProviderTypeOpenAI
}

type openAIRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type openAIResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage UsageStats `json:"usage"`
}

// Chat sends an OpenAI chat completion request.
func (p *OpenAIProvider) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	start := time.Now()

	reqBody, err := json.Marshal(openAIRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/v1/chat/completions", bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("openai API error: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &StatusError{Provider: "openai", StatusCode: resp.StatusCode, Body: string(body)}
	}

	var apiResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("openai response has no choices")
	}

	model := apiResp.Model
	if model == "" {
		model = req.Model
	}

	return &ChatResponse{
		Content:      apiResp.Choices[0].Message.Content,
		Model:        model,
		FinishReason: apiResp.Choices[0].FinishReason,
		Usage:        apiResp.Usage,
		Latency:      time.Since(start),
	}, nil
}

func backendTimeout(cfg BackendConfig, fallback time.Duration) time.Duration {
	if cfg.TimeoutSeconds > 0 {
		return time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return fallback
}

var _ Provider = (*OpenAIProvider)(nil)
