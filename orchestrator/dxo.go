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
	"time"

	"agentic/orchestrator/llm"
)

// DXO runs research, critique and synthesis in strict sequence. Any stage
// failure aborts the run; later stages are never issued.
type DXO struct {
	strategyBase
}

// NewDXO creates the dxo strategy.
func NewDXO(opts StrategyOptions) *DXO {
	return &DXO{strategyBase: newStrategyBase(opts)}
}

// Framework returns FrameworkDXO.
func (d *DXO) Framework() Framework {
	return FrameworkDXO
}

// Validate decodes the task's config and checks it against models.
func (d *DXO) Validate(task *DecisionTask, models ModelResolver) error {
	_, err := d.config(task, models)
	return err
}

func (d *DXO) config(task *DecisionTask, models ModelResolver) (*DXOConfig, error) {
	cfg, err := DecodeDXOConfig(task.FrameworkConfig)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(models); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Run executes the three stages.
func (d *DXO) Run(ctx context.Context, task *DecisionTask, gw Gateway) (*DecisionResult, error) {
	cfg, err := d.config(task, nil)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	timeout := d.timeout(cfg.CallTimeout())
	prompt := taskPrompt(task.Question, cfg.ReviewContext)
	messages := make([]AgentMessage, 0, 3)

	d.log.Info(task.ID, "", "DXO started", map[string]interface{}{
		"researcher":  cfg.Researcher.ModelKey,
		"reviewer":    cfg.Reviewer.ModelKey,
		"synthesizer": cfg.Synthesizer.ModelKey,
	})

	research, err := d.stage(ctx, gw, timeout, task.ID, StageResearch, RoleResearcher, cfg.Researcher.ModelKey, researchPrompt(prompt))
	if err != nil {
		return nil, err
	}
	messages = append(messages, research)

	critique, err := d.stage(ctx, gw, timeout, task.ID, StageCritique, RoleReviewer, cfg.Reviewer.ModelKey, critiquePrompt(research.Content))
	if err != nil {
		return nil, err
	}
	messages = append(messages, critique)

	synthesis, err := d.stage(ctx, gw, timeout, task.ID, StageSynthesis, RoleSynthesizer, cfg.Synthesizer.ModelKey,
		synthesisPrompt(prompt, research.Content, critique.Content))
	if err != nil {
		return nil, err
	}
	messages = append(messages, synthesis)

	d.log.InfoWithDuration(task.ID, RoleSynthesizer, "DXO completed", durationMS(time.Since(start)), nil)

	return &DecisionResult{
		TaskID:      task.ID,
		FinalAnswer: synthesis.Content,
		Messages:    messages,
		Metadata:    baseMetadata(FrameworkDXO, start, messages),
	}, nil
}

func (d *DXO) stage(ctx context.Context, gw Gateway, timeout time.Duration, taskID string, stage Stage, roleID, modelKey, prompt string) (AgentMessage, error) {
	res := invoke(ctx, gw, timeout, modelCall{
		RoleID:   roleID,
		ModelKey: modelKey,
		Messages: []llm.ChatMessage{llm.UserMessage(prompt)},
	})
	if res.Err != nil {
		d.log.Error(taskID, roleID, "DXO stage failed, aborting pipeline", map[string]interface{}{
			"stage":     stage,
			"model_key": modelKey,
			"error":     res.Err.Error(),
		})
		return AgentMessage{}, &PipelineAbortedError{Stage: stage, RoleID: roleID, ModelKey: modelKey, Cause: res.Err}
	}

	d.log.InfoWithDuration(taskID, roleID, "DXO stage completed", durationMS(res.Duration), map[string]interface{}{
		"stage":     stage,
		"model_key": modelKey,
	})
	return AgentMessage{RoleID: roleID, Stage: stage, ModelKey: modelKey, Content: res.Content}, nil
}
