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
	"fmt"
	"time"
)

// Role is the speaker of a ChatMessage.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one turn of a prompt. Order within a prompt is significant
// and is preserved exactly on the wire.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Validate reports an error for roles outside system, user and assistant.
func (m ChatMessage) Validate() error {
	switch m.Role {
	case RoleSystem, RoleUser, RoleAssistant:
		return nil
	default:
		return fmt.Errorf("invalid chat role %q", m.Role)
	}
}

// SystemMessage builds a system turn.
func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

// UserMessage builds a user turn.
func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

// CostClass is a coarse price bucket used for reporting.
type CostClass string

const (
	CostClassFree    CostClass = "free"
	CostClassCheap   CostClass = "cheap"
	CostClassPremium CostClass = "premium"
)

// IsValid reports whether c is a known cost class.
func (c CostClass) IsValid() bool {
	switch c {
	case CostClassFree, CostClassCheap, CostClassPremium:
		return true
	}
	return false
}

// ProviderType identifies a backend implementation.
type ProviderType string

const (
	ProviderTypeOpenAI    ProviderType = "openai"
	ProviderTypeOllama    ProviderType = "ollama"
	ProviderTypeAnthropic ProviderType = "anthropic"
	ProviderTypeBedrock   ProviderType = "bedrock"
)

// IsValid reports whether t names a supported backend.
func (t ProviderType) IsValid() bool {
	switch t {
	case ProviderTypeOpenAI, ProviderTypeOllama, ProviderTypeAnthropic, ProviderTypeBedrock:
		return true
	}
	return false
}

// Defaults applied when a ModelSpec leaves a field unset.
const (
	DefaultMaxTokens   = 1024
	DefaultTemperature = 0.7
	DefaultCallTimeout = 60 * time.Second
)

// ModelSpec maps a logical model key to a concrete model on a backend.
type ModelSpec struct {
	// Key is the logical name strategies refer to, e.g. "small".
	Key string `json:"key" yaml:"key"`

	// Backend is the name of the registered backend serving this model.
	Backend string `json:"backend" yaml:"backend"`

	// ModelID is the identifier the backend expects, e.g. "qwen2.5-coder:7b".
	ModelID string `json:"model_id" yaml:"model"`

	CostClass   CostClass     `json:"cost_class" yaml:"cost_class"`
	MaxTokens   int           `json:"max_tokens" yaml:"max_tokens"`
	Temperature float64       `json:"temperature" yaml:"temperature"`
	Timeout     time.Duration `json:"timeout" yaml:"-"`
}

// Validate checks that the spec can be served.
func (s ModelSpec) Validate() error {
	if s.Key == "" {
		return fmt.Errorf("model spec key is required")
	}
	if s.Backend == "" {
		return fmt.Errorf("model %q: backend is required", s.Key)
	}
	if s.ModelID == "" {
		return fmt.Errorf("model %q: model id is required", s.Key)
	}
	if s.CostClass != "" && !s.CostClass.IsValid() {
		return fmt.Errorf("model %q: invalid cost class %q", s.Key, s.CostClass)
	}
	if s.MaxTokens < 0 {
		return fmt.Errorf("model %q: max_tokens must not be negative", s.Key)
	}
	return nil
}

// withDefaults fills unset generation parameters.
func (s ModelSpec) withDefaults() ModelSpec {
	if s.CostClass == "" {
		s.CostClass = CostClassFree
	}
	if s.MaxTokens == 0 {
		s.MaxTokens = DefaultMaxTokens
	}
	if s.Temperature == 0 {
		s.Temperature = DefaultTemperature
	}
	return s
}

// ChatRequest is what the gateway hands to a backend Provider.
type ChatRequest struct {
	Model       string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatResponse is a backend completion.
type ChatResponse struct {
	Content      string
	Model        string
	FinishReason string
	Usage        UsageStats
	Latency      time.Duration
}

// UsageStats contains token accounting reported by the backend, if any.
type UsageStats struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ModelInfo is the public view of a registered model.
type ModelInfo struct {
	Key         string       `json:"key"`
	Backend     string       `json:"backend"`
	BackendType ProviderType `json:"backend_type"`
	ModelID     string       `json:"model_id"`
	CostClass   CostClass    `json:"cost_class"`
	MaxTokens   int          `json:"max_tokens"`
	Temperature float64      `json:"temperature"`
	TimeoutMS   int64        `json:"timeout_ms"`
}
