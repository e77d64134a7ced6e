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
	"sort"
	"sync"
	"time"
)

// LocalBackendName is the backend the built-in models are served from.
const LocalBackendName = "local"

// DefaultModels returns the built-in "small" and "large" models on backend.
// The ids are Ollama tags; OpenAI-compatible local servers use the same names.
func DefaultModels(backend string) []ModelSpec {
	return []ModelSpec{
		{
			Key:         "small",
			Backend:     backend,
			ModelID:     "qwen2.5-coder:7b",
			CostClass:   CostClassFree,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
			Timeout:     DefaultCallTimeout,
		},
		{
			Key:         "large",
			Backend:     backend,
			ModelID:     "qwen2.5-coder:32b",
			CostClass:   CostClassFree,
			MaxTokens:   DefaultMaxTokens,
			Temperature: DefaultTemperature,
			Timeout:     DefaultCallTimeout,
		},
	}
}

type backendEntry struct {
	provider Provider
	config   BackendConfig
}

// Registry maps logical model keys to specs and specs to backends.
// It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]ModelSpec
	backends map[string]backendEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		models:   make(map[string]ModelSpec),
		backends: make(map[string]backendEntry),
	}
}

// RegisterBackend adds or replaces a backend under cfg.Name (or the
// provider's name when cfg.Name is empty).
func (r *Registry) RegisterBackend(p Provider, cfg BackendConfig) error {
	if p == nil {
		return fmt.Errorf("backend provider is nil")
	}
	if cfg.Name == "" {
		cfg.Name = p.Name()
	}
	if cfg.Type == "" {
		cfg.Type = p.Type()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[cfg.Name] = backendEntry{provider: p, config: cfg}
	return nil
}

// RegisterModel adds or replaces a model. Its backend must already be registered.
func (r *Registry) RegisterModel(spec ModelSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.backends[spec.Backend]; !ok {
		return fmt.Errorf("model %q: backend %q is not registered", spec.Key, spec.Backend)
	}
	r.models[spec.Key] = spec.withDefaults()
	return nil
}

// Resolve returns the spec and backend serving key. Unknown keys fail with an
// unknown_model GatewayError.
func (r *Registry) Resolve(key string) (ModelSpec, Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.models[key]
	if !ok {
		return ModelSpec{}, nil, NewGatewayError(key, ErrCodeUnknownModel, fmt.Sprintf("model key %q is not registered", key))
	}
	entry, ok := r.backends[spec.Backend]
	if !ok {
		return ModelSpec{}, nil, NewGatewayError(key, ErrCodeUnknownModel, fmt.Sprintf("backend %q for model %q is not registered", spec.Backend, key))
	}
	if spec.Timeout == 0 {
		spec.Timeout = backendTimeout(entry.config, DefaultCallTimeout)
	}
	return spec, entry.provider, nil
}

// HasModel reports whether key is registered.
func (r *Registry) HasModel(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.models[key]
	return ok
}

// Keys returns registered model keys in ascending order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.models))
	for k := range r.models {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BackendConfigs returns the registered backend configurations by name.
func (r *Registry) BackendConfigs() map[string]BackendConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]BackendConfig, len(r.backends))
	for name, entry := range r.backends {
		out[name] = entry.config
	}
	return out
}

// Models returns the public view of every model, ordered by key.
func (r *Registry) Models() []ModelInfo {
	keys := r.Keys()
	out := make([]ModelInfo, 0, len(keys))
	for _, k := range keys {
		spec, p, err := r.Resolve(k)
		if err != nil {
			continue
		}
		out = append(out, ModelInfo{
			Key:         spec.Key,
			Backend:     spec.Backend,
			BackendType: p.Type(),
			ModelID:     spec.ModelID,
			CostClass:   spec.CostClass,
			MaxTokens:   spec.MaxTokens,
			Temperature: spec.Temperature,
			TimeoutMS:   int64(spec.Timeout / time.Millisecond),
		})
	}
	return out
}
