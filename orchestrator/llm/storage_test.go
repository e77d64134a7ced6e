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
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStorage(t *testing.T) (*PostgresStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStorage(db), mock
}

func TestPostgresStorage_SaveBackend(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectExec("INSERT INTO model_backends").
		WithArgs("vllm", "openai", "http://vllm:8000", "", "", 30, 120).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := storage.SaveBackend(context.Background(), BackendConfig{
		Name:               "vllm",
		Type:               ProviderTypeOpenAI,
		Endpoint:           "http://vllm:8000",
		APIKey:             "never-stored",
		TimeoutSeconds:     30,
		RateLimitPerMinute: 120,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_SaveBackend_Errors(t *testing.T) {
	storage, mock := newMockStorage(t)

	assert.ErrorContains(t, storage.SaveBackend(context.Background(), BackendConfig{}), "name is required")

	mock.ExpectExec("INSERT INTO model_backends").WillReturnError(errors.New("connection reset"))
	err := storage.SaveBackend(context.Background(), BackendConfig{Name: "x", Type: ProviderTypeOllama})
	assert.ErrorContains(t, err, "failed to save backend")
}

func TestPostgresStorage_ListBackends(t *testing.T) {
	storage, mock := newMockStorage(t)

	rows := sqlmock.NewRows([]string{"name", "type", "endpoint", "api_key_secret_arn", "region", "timeout_seconds", "rate_limit_per_minute"}).
		AddRow("bedrock", "bedrock", nil, nil, "eu-west-1", 0, 0).
		AddRow("claude", "anthropic", nil, "arn:aws:secretsmanager:us-east-1:1:secret:claude", nil, 90, 50)
	mock.ExpectQuery("SELECT name, type, endpoint, api_key_secret_arn, region").WillReturnRows(rows)

	backends, err := storage.ListBackends(context.Background())
	require.NoError(t, err)
	require.Len(t, backends, 2)
	assert.Equal(t, ProviderTypeBedrock, backends[0].Type)
	assert.Equal(t, "eu-west-1", backends[0].Region)
	assert.Equal(t, "", backends[0].Endpoint)
	assert.Equal(t, "arn:aws:secretsmanager:us-east-1:1:secret:claude", backends[1].APIKeySecretARN)
	assert.Equal(t, 90, backends[1].TimeoutSeconds)
	assert.Equal(t, 50, backends[1].RateLimitPerMinute)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_SaveModel(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectExec("INSERT INTO model_specs").
		WithArgs("judge", "claude", "claude-3-5-sonnet-20241022", "premium", 2048, 0.2, 120).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := storage.SaveModel(context.Background(), ModelSpec{
		Key:         "judge",
		Backend:     "claude",
		ModelID:     "claude-3-5-sonnet-20241022",
		CostClass:   CostClassPremium,
		MaxTokens:   2048,
		Temperature: 0.2,
		Timeout:     2 * time.Minute,
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	assert.Error(t, storage.SaveModel(context.Background(), ModelSpec{Key: "bad"}))
}

func modelColumns() []string {
	return []string{"key", "backend", "model_id", "cost_class", "max_tokens", "temperature", "timeout_seconds"}
}

func TestPostgresStorage_GetModel(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectQuery("SELECT key, backend, model_id").
		WithArgs("small").
		WillReturnRows(sqlmock.NewRows(modelColumns()).AddRow("small", "local", "qwen2.5-coder:7b", "free", 1024, 0.7, 60))

	spec, err := storage.GetModel(context.Background(), "small")
	require.NoError(t, err)
	assert.Equal(t, "qwen2.5-coder:7b", spec.ModelID)
	assert.Equal(t, CostClassFree, spec.CostClass)
	assert.Equal(t, time.Minute, spec.Timeout)

	mock.ExpectQuery("SELECT key, backend, model_id").
		WithArgs("ghost").
		WillReturnError(sql.ErrNoRows)

	_, err = storage.GetModel(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_ListModels(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectQuery("SELECT key, backend, model_id").
		WillReturnRows(sqlmock.NewRows(modelColumns()).
			AddRow("large", "local", "qwen2.5-coder:32b", nil, nil, nil, nil).
			AddRow("small", "local", "qwen2.5-coder:7b", "free", 512, 0.1, 30))

	specs, err := storage.ListModels(context.Background())
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, CostClass(""), specs[0].CostClass)
	assert.Equal(t, 0, specs[0].MaxTokens)
	assert.Equal(t, 512, specs[1].MaxTokens)
	assert.Equal(t, 30*time.Second, specs[1].Timeout)

	mock.ExpectQuery("SELECT key, backend, model_id").WillReturnError(errors.New("timeout"))
	_, err = storage.ListModels(context.Background())
	assert.ErrorContains(t, err, "failed to list models")
}

func TestPostgresStorage_DeleteModel(t *testing.T) {
	storage, mock := newMockStorage(t)

	mock.ExpectExec("UPDATE model_specs SET enabled = false").
		WithArgs("small").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, storage.DeleteModel(context.Background(), "small"))

	mock.ExpectExec("UPDATE model_specs SET enabled = false").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, storage.DeleteModel(context.Background(), "ghost"), ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}
