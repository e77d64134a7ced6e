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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name string
	typ  ProviderType
}

func (s *stubProvider) Name() string       { return s.name }
func (s *stubProvider) Type() ProviderType { return s.typ }
func (s *stubProvider) Chat(context.Context, ChatRequest) (*ChatResponse, error) {
	return &ChatResponse{Content: s.name}, nil
}

func TestRegistry_DefaultModels(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterBackend(&stubProvider{name: "ollama", typ: ProviderTypeOllama}, BackendConfig{Name: LocalBackendName}))
	for _, spec := range DefaultModels(LocalBackendName) {
		require.NoError(t, reg.RegisterModel(spec))
	}

	assert.Equal(t, []string{"large", "small"}, reg.Keys())
	assert.True(t, reg.HasModel("small"))
	assert.False(t, reg.HasModel("medium"))

	spec, p, err := reg.Resolve("small")
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5-coder:7b", spec.ModelID)
	assert.Equal(t, DefaultCallTimeout, spec.Timeout)
	assert.Equal(t, "ollama", p.Name())

	models := reg.Models()
	require.Len(t, models, 2)
	assert.Equal(t, "large", models[0].Key)
	assert.Equal(t, ProviderTypeOllama, models[0].BackendType)
	assert.Equal(t, int64(60000), models[0].TimeoutMS)
}

func TestRegistry_RegisterBackend(t *testing.T) {
	reg := NewRegistry()
	assert.Error(t, reg.RegisterBackend(nil, BackendConfig{}))

	require.NoError(t, reg.RegisterBackend(&stubProvider{name: "vllm", typ: ProviderTypeOpenAI}, BackendConfig{}))
	cfgs := reg.BackendConfigs()
	require.Contains(t, cfgs, "vllm")
	assert.Equal(t, ProviderTypeOpenAI, cfgs["vllm"].Type)
}

func TestRegistry_RegisterModel(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterBackend(&stubProvider{name: "local", typ: ProviderTypeOllama}, BackendConfig{Name: "local", TimeoutSeconds: 15}))

	tests := []struct {
		name    string
		spec    ModelSpec
		wantErr string
	}{
		{"missing key", ModelSpec{Backend: "local", ModelID: "x"}, "key is required"},
		{"missing backend", ModelSpec{Key: "m", ModelID: "x"}, "backend is required"},
		{"missing model id", ModelSpec{Key: "m", Backend: "local"}, "model id is required"},
		{"bad cost class", ModelSpec{Key: "m", Backend: "local", ModelID: "x", CostClass: "luxury"}, "invalid cost class"},
		{"negative tokens", ModelSpec{Key: "m", Backend: "local", ModelID: "x", MaxTokens: -1}, "must not be negative"},
		{"unknown backend", ModelSpec{Key: "m", Backend: "remote", ModelID: "x"}, "is not registered"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorContains(t, reg.RegisterModel(tt.spec), tt.wantErr)
		})
	}

	require.NoError(t, reg.RegisterModel(ModelSpec{Key: "m", Backend: "local", ModelID: "llama3"}))
	spec, _, err := reg.Resolve("m")
	require.NoError(t, err)
	assert.Equal(t, CostClassFree, spec.CostClass)
	assert.Equal(t, DefaultMaxTokens, spec.MaxTokens)
	assert.Equal(t, DefaultTemperature, spec.Temperature)
	assert.Equal(t, 15*time.Second, spec.Timeout)
}

func TestRegistry_ResolveUnknown(t *testing.T) {
	reg := NewRegistry()

	_, _, err := reg.Resolve("ghost")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownModel)

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "ghost", gwErr.Model)
	assert.False(t, gwErr.Retryable)
}

func TestRegistry_ReplaceModel(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterBackend(&stubProvider{name: "a", typ: ProviderTypeOllama}, BackendConfig{Name: "a"}))
	require.NoError(t, reg.RegisterBackend(&stubProvider{name: "b", typ: ProviderTypeOpenAI}, BackendConfig{Name: "b"}))

	require.NoError(t, reg.RegisterModel(ModelSpec{Key: "small", Backend: "a", ModelID: "one"}))
	require.NoError(t, reg.RegisterModel(ModelSpec{Key: "small", Backend: "b", ModelID: "two"}))

	spec, p, err := reg.Resolve("small")
	require.NoError(t, err)
	assert.Equal(t, "two", spec.ModelID)
	assert.Equal(t, "b", p.Name())
}
