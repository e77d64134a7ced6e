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
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/go-redis/redis/v8"

	"agentic/shared/logger"
)

// Environment variable names for gateway configuration.
const (
	EnvLocalProvider   = "LOCAL_LLM_PROVIDER"
	EnvOllamaBaseURL   = "OLLAMA_BASE_URL"
	EnvOpenAIBaseURL   = "OPENAI_BASE_URL"
	EnvVLLMBaseURL     = "VLLM_BASE_URL"
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvBedrockRegion   = "BEDROCK_REGION"
	EnvModelsFile      = "AGENTIC_MODELS_FILE"
	EnvDatabaseURL     = "DATABASE_URL"
	EnvRedisURL        = "REDIS_URL"
	EnvMaxRetries      = "GATEWAY_MAX_RETRIES"
	EnvAWSRegion       = "AWS_REGION"
)

// BootstrapConfig selects where the registry and limiter come from.
type BootstrapConfig struct {
	// LocalProvider is the backend type serving the built-in models
	// (ollama or openai).
	LocalProvider ProviderType

	OllamaBaseURL   string
	OpenAIBaseURL   string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	BedrockRegion   string

	// ModelsFile is a registry file path or s3://bucket/key URI.
	ModelsFile string

	// DatabaseURL enables the Postgres model registry.
	DatabaseURL string

	// RedisURL enables the shared rate limiter.
	RedisURL string

	// MaxRetries overrides the gateway retry count when >= 0.
	MaxRetries int

	// AWSRegion is used for S3 and Secrets Manager clients.
	AWSRegion string

	Logger *logger.Logger

	// Optional pre-built clients, used instead of dialing from the URLs above.
	DB            *sql.DB
	RedisClient   *redis.Client
	S3Client      S3GetObjectAPI
	SecretsClient SecretsManagerAPI
}

// BootstrapResult is a ready gateway plus what went into it.
type BootstrapResult struct {
	Gateway  *Gateway
	Registry *Registry

	// Backends lists the registered backend names in registration order.
	Backends []string

	// Warnings contains non-fatal problems, such as a backend that could
	// not be built.
	Warnings []string

	closers []func() error
}

// Close releases connections opened during bootstrap.
func (r *BootstrapResult) Close() error {
	var errs []error
	for _, c := range r.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadBootstrapConfig reads the gateway configuration from the environment.
//
// Environment variables:
//   - LOCAL_LLM_PROVIDER: ollama (default) or openai
//   - OLLAMA_BASE_URL: Ollama endpoint (default http://localhost:11434)
//   - OPENAI_BASE_URL / VLLM_BASE_URL: OpenAI-compatible endpoint (default http://localhost:8000)
//   - OPENAI_API_KEY: bearer token for the OpenAI-compatible endpoint (optional)
//   - ANTHROPIC_API_KEY: registers an "anthropic" backend
//   - BEDROCK_REGION: registers a "bedrock" backend
//   - AGENTIC_MODELS_FILE: registry file path or s3:// URI
//   - DATABASE_URL: Postgres registry
//   - REDIS_URL: shared rate limiter
//   - GATEWAY_MAX_RETRIES: retry count (default 2)
func LoadBootstrapConfig() (BootstrapConfig, error) {
	cfg := BootstrapConfig{
		LocalProvider:   ProviderType(strings.ToLower(strings.TrimSpace(getEnv(EnvLocalProvider, "ollama")))),
		OllamaBaseURL:   getEnv(EnvOllamaBaseURL, OllamaDefaultEndpoint),
		OpenAIBaseURL:   getEnv(EnvOpenAIBaseURL, getEnv(EnvVLLMBaseURL, OpenAIDefaultEndpoint)),
		OpenAIAPIKey:    os.Getenv(EnvOpenAIAPIKey),
		AnthropicAPIKey: os.Getenv(EnvAnthropicAPIKey),
		BedrockRegion:   os.Getenv(EnvBedrockRegion),
		ModelsFile:      os.Getenv(EnvModelsFile),
		DatabaseURL:     os.Getenv(EnvDatabaseURL),
		RedisURL:        os.Getenv(EnvRedisURL),
		AWSRegion:       os.Getenv(EnvAWSRegion),
		MaxRetries:      -1,
	}

	if v := os.Getenv(EnvMaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return cfg, fmt.Errorf("invalid %s %q: must be a non-negative integer", EnvMaxRetries, v)
		}
		cfg.MaxRetries = n
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the local provider choice.
func (c BootstrapConfig) Validate() error {
	switch c.LocalProvider {
	case ProviderTypeOllama, ProviderTypeOpenAI:
		return nil
	default:
		return fmt.Errorf("invalid local provider %q: use 'openai' or 'ollama'", c.LocalProvider)
	}
}

// Bootstrap builds the registry from defaults, the registry file and the
// database, then wraps it in a Gateway with the configured limiter.
func Bootstrap(ctx context.Context, cfg BootstrapConfig) (*BootstrapResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logger.New("gateway")
	}

	b := &bootstrapper{cfg: cfg, log: log, registry: NewRegistry(), result: &BootstrapResult{}}
	b.result.Registry = b.registry

	if err := b.registerBuiltins(ctx); err != nil {
		return nil, err
	}
	if cfg.ModelsFile != "" {
		if err := b.loadFile(ctx); err != nil {
			_ = b.result.Close()
			return nil, err
		}
	}
	if cfg.DatabaseURL != "" || cfg.DB != nil {
		if err := b.loadDatabase(ctx); err != nil {
			_ = b.result.Close()
			return nil, err
		}
	}

	limiter, err := b.buildLimiter(ctx)
	if err != nil {
		_ = b.result.Close()
		return nil, err
	}

	opts := []Option{WithLogger(log), WithLimiter(limiter)}
	if cfg.MaxRetries >= 0 {
		opts = append(opts, WithMaxRetries(cfg.MaxRetries))
	}
	b.result.Gateway = NewGateway(b.registry, opts...)

	log.Info("", "", "Model gateway ready", map[string]interface{}{
		"backends": b.result.Backends,
		"models":   b.registry.Keys(),
		"warnings": len(b.result.Warnings),
	})
	return b.result, nil
}

type bootstrapper struct {
	cfg      BootstrapConfig
	log      *logger.Logger
	registry *Registry
	result   *BootstrapResult
	secrets  *SecretResolver
}

func (b *bootstrapper) registerBuiltins(ctx context.Context) error {
	local := BackendConfig{Name: LocalBackendName, Type: b.cfg.LocalProvider}
	if b.cfg.LocalProvider == ProviderTypeOpenAI {
		local.Endpoint = b.cfg.OpenAIBaseURL
		local.APIKey = b.cfg.OpenAIAPIKey
	} else {
		local.Endpoint = b.cfg.OllamaBaseURL
	}
	if err := b.addBackend(ctx, local); err != nil {
		return err
	}
	for _, spec := range DefaultModels(LocalBackendName) {
		if err := b.registry.RegisterModel(spec); err != nil {
			return err
		}
	}

	if b.cfg.AnthropicAPIKey != "" {
		b.tryBackend(ctx, BackendConfig{Name: string(ProviderTypeAnthropic), Type: ProviderTypeAnthropic, APIKey: b.cfg.AnthropicAPIKey})
	}
	if b.cfg.BedrockRegion != "" {
		b.tryBackend(ctx, BackendConfig{Name: string(ProviderTypeBedrock), Type: ProviderTypeBedrock, Region: b.cfg.BedrockRegion})
	}
	return nil
}

func (b *bootstrapper) loadFile(ctx context.Context) error {
	file, err := LoadRegistrySource(ctx, b.cfg.ModelsFile, func(ctx context.Context) (S3GetObjectAPI, error) {
		if b.cfg.S3Client != nil {
			return b.cfg.S3Client, nil
		}
		return NewS3Client(ctx, AWSOptions{Region: b.cfg.AWSRegion})
	})
	if err != nil {
		return err
	}
	return b.apply(ctx, "file", file.BackendList(), file.Specs())
}

func (b *bootstrapper) loadDatabase(ctx context.Context) error {
	db := b.cfg.DB
	if db == nil {
		var err error
		db, err = OpenPostgres(ctx, b.cfg.DatabaseURL)
		if err != nil {
			return err
		}
		b.result.closers = append(b.result.closers, db.Close)
	}

	store := NewPostgresStorage(db)
	backends, err := store.ListBackends(ctx)
	if err != nil {
		return err
	}
	specs, err := store.ListModels(ctx)
	if err != nil {
		return err
	}
	return b.apply(ctx, "database", backends, specs)
}

func (b *bootstrapper) apply(ctx context.Context, source string, backends []BackendConfig, specs []ModelSpec) error {
	for _, cfg := range backends {
		if err := b.addBackend(ctx, cfg); err != nil {
			return fmt.Errorf("%s registry: %w", source, err)
		}
	}
	for _, spec := range specs {
		if err := b.registry.RegisterModel(spec); err != nil {
			return fmt.Errorf("%s registry: %w", source, err)
		}
	}
	b.log.Info("", "", "Loaded model registry", map[string]interface{}{
		"source":   source,
		"backends": len(backends),
		"models":   len(specs),
	})
	return nil
}

// tryBackend registers an optional backend, recording failure as a warning.
func (b *bootstrapper) tryBackend(ctx context.Context, cfg BackendConfig) {
	if err := b.addBackend(ctx, cfg); err != nil {
		b.result.Warnings = append(b.result.Warnings, err.Error())
		b.log.Warn("", "", "Skipping backend", map[string]interface{}{
			"backend": cfg.Name,
			"error":   err.Error(),
		})
	}
}

func (b *bootstrapper) addBackend(ctx context.Context, cfg BackendConfig) error {
	if cfg.APIKey == "" && cfg.APIKeySecretARN != "" {
		key, err := b.secretResolver(ctx).APIKey(ctx, cfg.APIKeySecretARN)
		if err != nil {
			return fmt.Errorf("backend %q: %w", cfg.Name, err)
		}
		cfg.APIKey = key
	}
	if cfg.APIKey == "" {
		switch cfg.Type {
		case ProviderTypeAnthropic:
			cfg.APIKey = b.cfg.AnthropicAPIKey
		case ProviderTypeOpenAI:
			cfg.APIKey = b.cfg.OpenAIAPIKey
		}
	}

	p, err := NewProvider(ctx, cfg)
	if err != nil {
		return err
	}
	if err := b.registry.RegisterBackend(p, cfg); err != nil {
		return err
	}
	b.result.Backends = append(b.result.Backends, cfg.Name)
	return nil
}

func (b *bootstrapper) secretResolver(ctx context.Context) *SecretResolver {
	if b.secrets != nil {
		return b.secrets
	}
	client := b.cfg.SecretsClient
	if client == nil {
		sm, err := NewSecretsManagerClient(ctx, AWSOptions{Region: b.cfg.AWSRegion})
		if err != nil {
			return NewSecretResolver(failingSecrets{err: err}, 0)
		}
		client = sm
	}
	b.secrets = NewSecretResolver(client, 0)
	return b.secrets
}

func (b *bootstrapper) buildLimiter(ctx context.Context) (Limiter, error) {
	perMinute := map[string]int{}
	for name, cfg := range b.registry.BackendConfigs() {
		if cfg.RateLimitPerMinute > 0 {
			perMinute[name] = cfg.RateLimitPerMinute
		}
	}

	chain := ChainLimiter{NewLocalLimiter(perMinute)}
	switch {
	case b.cfg.RedisClient != nil:
		chain = append(chain, NewRedisLimiterWithClient(b.cfg.RedisClient, perMinute, b.log))
	case b.cfg.RedisURL != "":
		rl, err := NewRedisLimiter(ctx, b.cfg.RedisURL, perMinute, b.log)
		if err != nil {
			return nil, err
		}
		b.result.closers = append(b.result.closers, rl.Close)
		chain = append(chain, rl)
	}
	return chain, nil
}

type failingSecrets struct {
	err error
}

func (f failingSecrets) GetSecretValue(context.Context, *secretsmanager.GetSecretValueInput, ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	return nil, f.err
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
