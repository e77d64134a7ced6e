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
	"net/http"
)

// Provider is a backend that can serve chat completions.
//
// Implementations must be safe for concurrent use: the gateway calls Chat from
// many goroutines at once when a framework fans out.
type Provider interface {
	// Name returns the backend instance name used in ModelSpec.Backend.
	Name() string

	// Type returns the backend implementation type.
	Type() ProviderType

	// Chat sends the ordered messages to the backend and returns the completion.
	// The context carries the per-call deadline.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

// HTTPClient is the subset of *http.Client used by the HTTP backends.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// BackendConfig describes one backend instance.
type BackendConfig struct {
	// Name is the unique identifier for this backend instance.
	Name string `json:"name" yaml:"-"`

	// Type identifies the backend implementation to use.
	Type ProviderType `json:"type" yaml:"type"`

	// Endpoint is the API base URL. If empty, backend defaults are used.
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`

	// APIKey is the authentication key for the backend API.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// APIKeySecretARN is the AWS Secrets Manager ARN holding the API key.
	// Resolved when the backend is built, used instead of APIKey.
	APIKeySecretARN string `json:"api_key_secret_arn,omitempty" yaml:"api_key_secret_arn,omitempty"`

	// Region is the AWS region (bedrock only).
	Region string `json:"region,omitempty" yaml:"region,omitempty"`

	// AccessKeyID and SecretAccessKey are static AWS credentials (bedrock
	// only). When empty the default credential chain is used.
	AccessKeyID     string `json:"-" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"-" yaml:"secret_access_key,omitempty"`

	// TimeoutSeconds is the default call timeout for models on this backend.
	TimeoutSeconds int `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty"`

	// RateLimitPerMinute caps calls to this backend (0 = unlimited).
	RateLimitPerMinute int `json:"rate_limit_per_minute,omitempty" yaml:"rate_limit_per_minute,omitempty"`
}
