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

	"github.com/google/uuid"

	"agentic/orchestrator/llm"
)

// Framework selects the collaboration strategy for a task.
type Framework string

const (
	FrameworkCouncil  Framework = "council"
	FrameworkDXO      Framework = "dxo"
	FrameworkEnsemble Framework = "ensemble"
)

// Frameworks returns the supported frameworks.
func Frameworks() []Framework {
	return []Framework{FrameworkCouncil, FrameworkDXO, FrameworkEnsemble}
}

// IsValid reports whether f is a supported framework.
func (f Framework) IsValid() bool {
	switch f {
	case FrameworkCouncil, FrameworkDXO, FrameworkEnsemble:
		return true
	}
	return false
}

// Stage labels when and why an AgentMessage was produced.
type Stage string

const (
	StageMember    Stage = "member"
	StageChair     Stage = "chair"
	StageResearch  Stage = "research"
	StageCritique  Stage = "critique"
	StageSynthesis Stage = "synthesis"
	StageAggregate Stage = "aggregate"
)

// IsSynthesis reports whether s is the final stage of a framework.
func (s Stage) IsSynthesis() bool {
	switch s {
	case StageChair, StageSynthesis, StageAggregate:
		return true
	}
	return false
}

// Role ids assigned by the frameworks themselves.
const (
	RoleChair       = "chair"
	RoleResearcher  = "researcher"
	RoleReviewer    = "reviewer"
	RoleSynthesizer = "synthesizer"
	RoleAggregator  = "aggregator"
)

// DecisionTask is the unit of work. It is read-only once created;
// strategies never modify it.
type DecisionTask struct {
	ID              string                 `json:"id"`
	Question        string                 `json:"question"`
	Framework       Framework              `json:"framework"`
	FrameworkConfig map[string]interface{} `json:"framework_config"`
}

// NewDecisionTask creates a task with a fresh id. cfg is validated at
// dispatch time, not here.
func NewDecisionTask(question string, framework Framework, cfg map[string]interface{}) *DecisionTask {
	if cfg == nil {
		cfg = map[string]interface{}{}
	}
	return &DecisionTask{
		ID:              uuid.New().String(),
		Question:        question,
		Framework:       framework,
		FrameworkConfig: cfg,
	}
}

// AgentMessage is one role's output at one stage. Each entry corresponds to
// exactly one Gateway call.
type AgentMessage struct {
	RoleID   string `json:"role_id"`
	Stage    Stage  `json:"stage"`
	ModelKey string `json:"model_key"`
	Content  string `json:"content"`
}

// DecisionResult is the outcome of a successful run.
type DecisionResult struct {
	TaskID      string                 `json:"task_id"`
	FinalAnswer string                 `json:"final_answer"`
	Messages    []AgentMessage         `json:"messages"`
	Metadata    map[string]interface{} `json:"metadata"`
}

// FinalSynthesis returns the last synthesis-stage message in the trace.
func (r *DecisionResult) FinalSynthesis() (AgentMessage, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Stage.IsSynthesis() {
			return r.Messages[i], true
		}
	}
	return AgentMessage{}, false
}

// Gateway is the model invocation capability every strategy routes through.
// *llm.Gateway implements it.
type Gateway interface {
	Invoke(ctx context.Context, modelKey string, messages []llm.ChatMessage) (string, error)
}

// ModelResolver is implemented by gateways that can check model keys up
// front. The Engine uses it to reject unknown keys before any call.
type ModelResolver interface {
	HasModel(modelKey string) bool
}

var _ Gateway = (*llm.Gateway)(nil)
var _ ModelResolver = (*llm.Gateway)(nil)
