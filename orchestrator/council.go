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
	"sort"
	"time"

	"agentic/orchestrator/llm"
	"agentic/shared/logger"
)

// Council runs members concurrently and has a chair synthesize their answers.
type Council struct {
	strategyBase
}

// NewCouncil creates the council strategy.
func NewCouncil(opts StrategyOptions) *Council {
	return &Council{strategyBase: newStrategyBase(opts)}
}

// Framework returns FrameworkCouncil.
func (c *Council) Framework() Framework {
	return FrameworkCouncil
}

// Validate decodes the task's config and checks it against models.
func (c *Council) Validate(task *DecisionTask, models ModelResolver) error {
	_, err := c.config(task, models)
	return err
}

func (c *Council) config(task *DecisionTask, models ModelResolver) (*CouncilConfig, error) {
	cfg, err := DecodeCouncilConfig(task.FrameworkConfig)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(models); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Run issues one call per member, waits for all of them, then calls the
// chair with the surviving answers ordered by role id. The chair's answer is
// the final answer.
func (c *Council) Run(ctx context.Context, task *DecisionTask, gw Gateway) (*DecisionResult, error) {
	cfg, err := c.config(task, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	timeout := c.timeout(cfg.CallTimeout())
	prompt := taskPrompt(task.Question, cfg.ReviewContext)

	members := append([]CouncilMember(nil), cfg.Members...)
	sort.SliceStable(members, func(i, j int) bool { return members[i].RoleID < members[j].RoleID })

	calls := make([]modelCall, len(members))
	for i, m := range members {
		calls[i] = modelCall{RoleID: m.RoleID, ModelKey: m.ModelKey, Messages: memberMessages(m, prompt)}
	}

	c.log.Info(task.ID, "", "Council started", map[string]interface{}{
		"members":        len(members),
		"failure_policy": cfg.MemberFailurePolicy,
		"chair":          cfg.Chair.ModelKey,
	})

	results, firstFailed := fanOut(ctx, gw, timeout, calls, cfg.MemberFailurePolicy == PolicyAbort)
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("council canceled: %w", err)
	}

	if cfg.MemberFailurePolicy == PolicyAbort && firstFailed >= 0 {
		m := members[firstFailed]
		cause := results[firstFailed].Err
		recordMemberFailure(FrameworkCouncil, cause)
		c.log.Error(task.ID, m.RoleID, "Council member failed, aborting", map[string]interface{}{
			"model_key": m.ModelKey,
			"error":     cause.Error(),
		})
		return nil, &StageFailedError{Framework: FrameworkCouncil, Stage: StageMember, RoleID: m.RoleID, ModelKey: m.ModelKey, Cause: cause}
	}

	messages := make([]AgentMessage, 0, len(members)+1)
	failedMembers := map[string]interface{}{}
	failures := map[string]error{}
	for i, res := range results {
		m := members[i]
		if res.Err != nil {
			failures[m.RoleID] = res.Err
			failedMembers[m.RoleID] = failureEntry(m.ModelKey, res.Err)
			recordMemberFailure(FrameworkCouncil, res.Err)
			c.log.Warn(task.ID, m.RoleID, "Council member failed, excluding from chair prompt", map[string]interface{}{
				"model_key": m.ModelKey,
				"class":     Classify(res.Err),
				"error":     res.Err.Error(),
			})
			continue
		}
		c.log.InfoWithDuration(task.ID, m.RoleID, "Council member answered", durationMS(res.Duration), map[string]interface{}{
			"model_key": m.ModelKey,
		})
		messages = append(messages, AgentMessage{RoleID: m.RoleID, Stage: StageMember, ModelKey: m.ModelKey, Content: res.Content})
	}

	if len(messages) < cfg.MinMembers {
		return nil, &QuorumNotMetError{Framework: FrameworkCouncil, Required: cfg.MinMembers, Succeeded: len(messages), Failures: failures}
	}

	chair := invoke(ctx, gw, timeout, modelCall{
		RoleID:   RoleChair,
		ModelKey: cfg.Chair.ModelKey,
		Messages: []llm.ChatMessage{llm.UserMessage(chairPrompt(task.Question, messages))},
	})
	if chair.Err != nil {
		c.log.Error(task.ID, RoleChair, "Council chair failed", map[string]interface{}{
			"model_key": cfg.Chair.ModelKey,
			"error":     chair.Err.Error(),
		})
		return nil, &StageFailedError{Framework: FrameworkCouncil, Stage: StageChair, RoleID: RoleChair, ModelKey: cfg.Chair.ModelKey, Cause: chair.Err}
	}
	messages = append(messages, AgentMessage{RoleID: RoleChair, Stage: StageChair, ModelKey: cfg.Chair.ModelKey, Content: chair.Content})

	metadata := baseMetadata(FrameworkCouncil, start, messages)
	metadata["failure_policy"] = string(cfg.MemberFailurePolicy)
	metadata["failed_members"] = failedMembers
	metadata["quorum"] = cfg.MinMembers
	metadata["succeeded"] = len(messages) - 1

	c.log.InfoWithDuration(task.ID, RoleChair, "Council completed", durationMS(time.Since(start)), map[string]interface{}{
		"succeeded": len(messages) - 1,
		"failed":    len(failedMembers),
	})

	return &DecisionResult{
		TaskID:      task.ID,
		FinalAnswer: chair.Content,
		Messages:    messages,
		Metadata:    metadata,
	}, nil
}

// StrategyOptions configures a strategy.
type StrategyOptions struct {
	Logger *logger.Logger

	// CallTimeout bounds each model call when framework_config does not set
	// call_timeout_seconds. Zero leaves the bound to the gateway.
	CallTimeout time.Duration
}

type strategyBase struct {
	log         *logger.Logger
	callTimeout time.Duration
}

func newStrategyBase(opts StrategyOptions) strategyBase {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return strategyBase{log: log, callTimeout: opts.CallTimeout}
}

func (b strategyBase) timeout(configured time.Duration) time.Duration {
	if configured > 0 {
		return configured
	}
	return b.callTimeout
}

// baseMetadata holds the keys every framework reports.
func baseMetadata(framework Framework, start time.Time, messages []AgentMessage) map[string]interface{} {
	return map[string]interface{}{
		"framework":   string(framework),
		"duration_ms": time.Since(start).Milliseconds(),
		"models":      distinctModels(messages),
	}
}

func distinctModels(messages []AgentMessage) []string {
	seen := make(map[string]bool, len(messages))
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		if !seen[m.ModelKey] {
			seen[m.ModelKey] = true
			out = append(out, m.ModelKey)
		}
	}
	sort.Strings(out)
	return out
}

func failureEntry(modelKey string, err error) map[string]interface{} {
	return map[string]interface{}{
		"model_key": modelKey,
		"error":     err.Error(),
		"class":     string(Classify(err)),
	}
}

func durationMS(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000.0
}
