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
	"fmt"
	"time"

	"agentic/orchestrator/llm"
)

// Ensemble sends one identical prompt to several models and aggregates the
// anonymous answers once a quorum has succeeded.
type Ensemble struct {
	strategyBase
}

// NewEnsemble creates the ensemble strategy.
func NewEnsemble(opts StrategyOptions) *Ensemble {
	return &Ensemble{strategyBase: newStrategyBase(opts)}
}

// Framework returns FrameworkEnsemble.
func (e *Ensemble) Framework() Framework {
	return FrameworkEnsemble
}

// Validate decodes the task's config and checks it against models.
func (e *Ensemble) Validate(task *DecisionTask, models ModelResolver) error {
	_, err := e.config(task, models)
	return err
}

func (e *Ensemble) config(task *DecisionTask, models ModelResolver) (*EnsembleConfig, error) {
	cfg, err := DecodeEnsembleConfig(task.FrameworkConfig)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(models); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ensembleRoleID is the positional label of the idx-th configured model.
func ensembleRoleID(idx int) string {
	return fmt.Sprintf("agent_%d", idx)
}

// Run fans out, excludes failed members, and calls the aggregator when at
// least Quorum answers arrived. Below quorum no aggregator call is made.
func (e *Ensemble) Run(ctx context.Context, task *DecisionTask, gw Gateway) (*DecisionResult, error) {
	cfg, err := e.config(task, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	timeout := e.timeout(cfg.CallTimeout())
	prompt := taskPrompt(task.Question, cfg.ReviewContext)

	calls := make([]modelCall, len(cfg.Models))
	for i, m := range cfg.Models {
		calls[i] = modelCall{
			RoleID:   ensembleRoleID(i),
			ModelKey: m.ModelKey,
			Messages: []llm.ChatMessage{llm.UserMessage(prompt)},
		}
	}

	e.log.Info(task.ID, "", "Ensemble started", map[string]interface{}{
		"members":    len(calls),
		"quorum":     cfg.Quorum,
		"aggregator": cfg.Aggregator.ModelKey,
	})

	results, _ := fanOut(ctx, gw, timeout, calls, false)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("ensemble canceled: %w", err)
	}

	messages := make([]AgentMessage, 0, len(calls)+1)
	failedMembers := map[string]interface{}{}
	failures := map[string]error{}
	for i, res := range results {
		c := calls[i]
		if res.Err != nil {
			failures[c.RoleID] = res.Err
			failedMembers[c.RoleID] = failureEntry(c.ModelKey, res.Err)
			recordMemberFailure(FrameworkEnsemble, res.Err)
			e.log.Warn(task.ID, c.RoleID, "Ensemble member failed, excluding", map[string]interface{}{
				"model_key": c.ModelKey,
				"class":     Classify(res.Err),
				"error":     res.Err.Error(),
			})
			continue
		}
		e.log.InfoWithDuration(task.ID, c.RoleID, "Ensemble member answered", durationMS(res.Duration), map[string]interface{}{
			"model_key": c.ModelKey,
		})
		messages = append(messages, AgentMessage{RoleID: c.RoleID, Stage: StageMember, ModelKey: c.ModelKey, Content: res.Content})
	}

	if len(messages) < cfg.Quorum {
		e.log.Error(task.ID, "", "Ensemble quorum not met", map[string]interface{}{
			"quorum":    cfg.Quorum,
			"succeeded": len(messages),
		})
		return nil, &QuorumNotMetError{Framework: FrameworkEnsemble, Required: cfg.Quorum, Succeeded: len(messages), Failures: failures}
	}

	agg := invoke(ctx, gw, timeout, modelCall{
		RoleID:   RoleAggregator,
		ModelKey: cfg.Aggregator.ModelKey,
		Messages: []llm.ChatMessage{llm.UserMessage(aggregatePrompt(messages))},
	})
	if agg.Err != nil {
		e.log.Error(task.ID, RoleAggregator, "Ensemble aggregator failed", map[string]interface{}{
			"model_key": cfg.Aggregator.ModelKey,
			"error":     agg.Err.Error(),
		})
		return nil, &StageFailedError{Framework: FrameworkEnsemble, Stage: StageAggregate, RoleID: RoleAggregator, ModelKey: cfg.Aggregator.ModelKey, Cause: agg.Err}
	}
	messages = append(messages, AgentMessage{RoleID: RoleAggregator, Stage: StageAggregate, ModelKey: cfg.Aggregator.ModelKey, Content: agg.Content})

	metadata := baseMetadata(FrameworkEnsemble, start, messages)
	metadata["failure_policy"] = string(PolicyExclude)
	metadata["failed_members"] = failedMembers
	metadata["quorum"] = cfg.Quorum
	metadata["succeeded"] = len(messages) - 1

	e.log.InfoWithDuration(task.ID, RoleAggregator, "Ensemble completed", durationMS(time.Since(start)), map[string]interface{}{
		"succeeded": len(messages) - 1,
		"failed":    len(failedMembers),
	})

	return &DecisionResult{
		TaskID:      task.ID,
		FinalAnswer: agg.Content,
		Messages:    messages,
		Metadata:    metadata,
	}, nil
}
