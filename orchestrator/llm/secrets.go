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
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsManagerAPI is the subset of *secretsmanager.Client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretResolver fetches backend API keys from AWS Secrets Manager and caches
// them for a TTL.
type SecretResolver struct {
	client SecretsManagerAPI
	ttl    time.Duration
	cache  map[string]secretCacheEntry
	mu     sync.RWMutex
}

type secretCacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewSecretResolver creates a resolver. A non-positive ttl defaults to 5 minutes.
func NewSecretResolver(client SecretsManagerAPI, ttl time.Duration) *SecretResolver {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SecretResolver{client: client, ttl: ttl, cache: make(map[string]secretCacheEntry)}
}

// NewSecretsManagerClient builds a Secrets Manager client from AWS configuration.
func NewSecretsManagerClient(ctx context.Context, opts AWSOptions) (*secretsmanager.Client, error) {
	cfg, err := LoadAWSConfig(ctx, opts)
	if err != nil {
		return nil, err
	}
	return secretsmanager.NewFromConfig(cfg), nil
}

// APIKey returns the API key stored under secretARN. JSON secrets are read
// from the "api_key" field (or "value"); any other secret string is the key.
func (r *SecretResolver) APIKey(ctx context.Context, secretARN string) (string, error) {
	r.mu.RLock()
	entry, ok := r.cache[secretARN]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	result, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", maskARN(secretARN), err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	value := *result.SecretString
	var fields map[string]string
	if err := json.Unmarshal([]byte(value), &fields); err == nil {
		switch {
		case fields["api_key"] != "":
			value = fields["api_key"]
		case fields["value"] != "":
			value = fields["value"]
		default:
			return "", fmt.Errorf("secret %s has no api_key field", maskARN(secretARN))
		}
	}

	r.mu.Lock()
	r.cache[secretARN] = secretCacheEntry{value: value, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()
	return value, nil
}

// Invalidate drops a cached secret.
func (r *SecretResolver) Invalidate(secretARN string) {
	r.mu.Lock()
	delete(r.cache, secretARN)
	r.mu.Unlock()
}

func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}
