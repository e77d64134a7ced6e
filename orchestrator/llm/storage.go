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
	"time"

	_ "github.com/lib/pq" // postgres driver
)

// ErrNotFound is returned when a stored model or backend does not exist.
var ErrNotFound = errors.New("not found")

// PostgresStorage persists the model registry in the model_backends and
// model_specs tables. API keys are never stored; backends reference a
// Secrets Manager ARN instead.
type PostgresStorage struct {
	db *sql.DB
}

// NewPostgresStorage creates a new PostgreSQL-backed registry store.
func NewPostgresStorage(db *sql.DB) *PostgresStorage {
	return &PostgresStorage{db: db}
}

// OpenPostgres opens and pings a database/sql pool for dsn.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// SaveBackend inserts or updates a backend.
func (s *PostgresStorage) SaveBackend(ctx context.Context, cfg BackendConfig) error {
	if cfg.Name == "" {
		return errors.New("backend name is required")
	}

	query := `
		INSERT INTO model_backends (
			name, type, endpoint, api_key_secret_arn, region,
			timeout_seconds, rate_limit_per_minute, enabled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		ON CONFLICT (name) DO UPDATE SET
			type = EXCLUDED.type,
			endpoint = EXCLUDED.endpoint,
			api_key_secret_arn = EXCLUDED.api_key_secret_arn,
			region = EXCLUDED.region,
			timeout_seconds = EXCLUDED.timeout_seconds,
			rate_limit_per_minute = EXCLUDED.rate_limit_per_minute,
			enabled = true,
			updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		cfg.Name,
		cfg.Type,
		cfg.Endpoint,
		cfg.APIKeySecretARN,
		cfg.Region,
		cfg.TimeoutSeconds,
		cfg.RateLimitPerMinute,
	)
	if err != nil {
		return fmt.Errorf("failed to save backend: %w", err)
	}
	return nil
}

// ListBackends returns enabled backends ordered by name.
func (s *PostgresStorage) ListBackends(ctx context.Context) ([]BackendConfig, error) {
	query := `
		SELECT name, type, endpoint, api_key_secret_arn, region,
			   timeout_seconds, rate_limit_per_minute
		FROM model_backends
		WHERE enabled = true
		ORDER BY name
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list backends: %w", err)
	}
	defer rows.Close()

	var out []BackendConfig
	for rows.Next() {
		var cfg BackendConfig
		var endpoint, secretARN, region sql.NullString
		if err := rows.Scan(
			&cfg.Name,
			&cfg.Type,
			&endpoint,
			&secretARN,
			&region,
			&cfg.TimeoutSeconds,
			&cfg.RateLimitPerMinute,
		); err != nil {
			return nil, fmt.Errorf("failed to scan backend: %w", err)
		}
		cfg.Endpoint = endpoint.String
		cfg.APIKeySecretARN = secretARN.String
		cfg.Region = region.String
		out = append(out, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate backends: %w", err)
	}
	return out, nil
}

// SaveModel inserts or updates a model spec.
func (s *PostgresStorage) SaveModel(ctx context.Context, spec ModelSpec) error {
	if err := spec.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO model_specs (
			key, backend, model_id, cost_class, max_tokens,
			temperature, timeout_seconds, enabled
		) VALUES ($1, $2, $3, $4, $5, $6, $7, true)
		ON CONFLICT (key) DO UPDATE SET
			backend = EXCLUDED.backend,
			model_id = EXCLUDED.model_id,
			cost_class = EXCLUDED.cost_class,
			max_tokens = EXCLUDED.max_tokens,
			temperature = EXCLUDED.temperature,
			timeout_seconds = EXCLUDED.timeout_seconds,
			enabled = true,
			updated_at = NOW()
	`

	_, err := s.db.ExecContext(ctx, query,
		spec.Key,
		spec.Backend,
		spec.ModelID,
		string(spec.CostClass),
		spec.MaxTokens,
		spec.Temperature,
		int(spec.Timeout/time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to save model: %w", err)
	}
	return nil
}

// GetModel returns one enabled model spec by key.
func (s *PostgresStorage) GetModel(ctx context.Context, key string) (*ModelSpec, error) {
	query := `
		SELECT key, backend, model_id, cost_class, max_tokens,
			   temperature, timeout_seconds
		FROM model_specs
		WHERE key = $1 AND enabled = true
	`

	spec, err := scanModel(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("model %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get model: %w", err)
	}
	return spec, nil
}

// ListModels returns enabled model specs ordered by key.
func (s *PostgresStorage) ListModels(ctx context.Context) ([]ModelSpec, error) {
	query := `
		SELECT key, backend, model_id, cost_class, max_tokens,
			   temperature, timeout_seconds
		FROM model_specs
		WHERE enabled = true
		ORDER BY key
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}
	defer rows.Close()

	var out []ModelSpec
	for rows.Next() {
		spec, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan model: %w", err)
		}
		out = append(out, *spec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate models: %w", err)
	}
	return out, nil
}

// DeleteModel disables a model spec.
func (s *PostgresStorage) DeleteModel(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE model_specs SET enabled = false, updated_at = NOW() WHERE key = $1 AND enabled = true`, key)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("model %q: %w", key, ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanModel(row rowScanner) (*ModelSpec, error) {
	var spec ModelSpec
	var costClass sql.NullString
	var maxTokens, timeoutSeconds sql.NullInt64
	var temperature sql.NullFloat64

	if err := row.Scan(
		&spec.Key,
		&spec.Backend,
		&spec.ModelID,
		&costClass,
		&maxTokens,
		&temperature,
		&timeoutSeconds,
	); err != nil {
		return nil, err
	}

	spec.CostClass = CostClass(costClass.String)
	spec.MaxTokens = int(maxTokens.Int64)
	spec.Temperature = temperature.Float64
	spec.Timeout = time.Duration(timeoutSeconds.Int64) * time.Second
	return &spec, nil
}
