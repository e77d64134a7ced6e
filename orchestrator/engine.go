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

package orchestrator

import (
	"context"
	"strings"
	"time"

	"agentic/shared/logger"
)

// DefaultCallTimeout bounds each framework model call when neither the engine
// nor framework_config sets a bound. It must exceed the gateway's retry
// budget at default settings: three 60s attempts plus backoff.
const DefaultCallTimeout = 4 * time.Minute

// Strategy is one collaboration framework.
type Strategy interface {
	Framework() Framework

	// Validate checks the task's framework_config. When models is non-nil
	// every referenced model key must resolve.
	Validate(task *DecisionTask, models ModelResolver) error

	// Run executes the framework against gw.
	Run(ctx context.Context, task *DecisionTask, gw Gateway) (*DecisionResult, error)
}

// Engine is the framework selector. It validates a task before any model
// call, dispatches it to its strategy and returns the result unchanged.
type Engine struct {
	gateway     Gateway
	log         *logger.Logger
	callTimeout time.Duration
	strategies  map[Framework]Strategy
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger shared by the engine and its strategies.
func WithEngineLogger(l *logger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithCallTimeout sets the default per-call bound. Zero removes it.
func WithCallTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d >= 0 {
			e.callTimeout = d
		}
	}
}

// NewEngine creates an engine over gw.
func NewEngine(gw Gateway, opts ...EngineOption) *Engine {
	e := &Engine{
		gateway:     gw,
		log:         logger.Discard(),
		callTimeout: DefaultCallTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}

	strategyOpts := StrategyOptions{Logger: e.log, CallTimeout: e.callTimeout}
	e.strategies = map[Framework]Strategy{
		FrameworkCouncil:  NewCouncil(strategyOpts),
		FrameworkDXO:      NewDXO(strategyOpts),
		FrameworkEnsemble: NewEnsemble(strategyOpts),
	}
	return e
}

// Strategy returns the strategy for f.
func (e *Engine) Strategy(f Framework) (Strategy, error) {
	s, ok := e.strategies[f]
	if !ok {
		return nil, configError(f, "framework", "unknown framework %q: use council, dxo or ensemble", f)
	}
	return s, nil
}

// Validate checks task without issuing any model call. Model keys are
// checked when the gateway implements ModelResolver.
func (e *Engine) Validate(task *DecisionTask) error {
	if task == nil {
		return configError("", "task", "task is required")
	}
	if strings.TrimSpace(task.Question) == "" {
		return configError(task.Framework, "question", "question is required")
	}
	s, err := e.Strategy(task.Framework)
	if err != nil {
		return err
	}
	models, _ := e.gateway.(ModelResolver)
	return s.Validate(task, models)
}

// Run validates task and executes its framework.
func (e *Engine) Run(ctx context.Context, task *DecisionTask) (*DecisionResult, error) {
	start := time.Now()

	if err := e.Validate(task); err != nil {
		framework := Framework("")
		if task != nil {
			framework = task.Framework
		}
		recordDecision(framework, start, err)
		e.log.Warn(taskID(task), "", "Decision task rejected", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, err
	}

	s, _ := e.Strategy(task.Framework)

	e.log.Info(task.ID, "", "Decision task started", map[string]interface{}{
		"framework": task.Framework,
	})

	result, err := s.Run(ctx, task, e.gateway)
	recordDecision(task.Framework, start, err)
	if err != nil {
		e.log.Error(task.ID, "", "Decision task failed", map[string]interface{}{
			"framework": task.Framework,
			"class":     Classify(err),
			"error":     err.Error(),
		})
		return nil, err
	}

	e.log.InfoWithDuration(task.ID, "", "Decision task completed", durationMS(time.Since(start)), map[string]interface{}{
		"framework": task.Framework,
		"messages":  len(result.Messages),
	})
	return result, nil
}

func taskID(task *DecisionTask) string {
	if task == nil {
		return ""
	}
	return task.ID
}
