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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FailurePolicy decides what a fan-out framework does when a member fails.
type FailurePolicy string

const (
	// PolicyExclude drops failed members from the synthesis prompt and records
	// them in metadata["failed_members"].
	PolicyExclude FailurePolicy = "exclude"

	// PolicyAbort fails the task on the first member failure and cancels the
	// remaining member calls.
	PolicyAbort FailurePolicy = "abort"
)

// ModelRef names a model. In framework_config it is either a bare model key
// ("large") or an object ({"model_key": "large"}).
type ModelRef struct {
	ModelKey string `json:"model_key"`
}

// UnmarshalJSON accepts a string or an object with model_key (or model).
func (r *ModelRef) UnmarshalJSON(data []byte) error {
	var key string
	if err := json.Unmarshal(data, &key); err == nil {
		r.ModelKey = key
		return nil
	}
	var obj struct {
		ModelKey string `json:"model_key"`
		Model    string `json:"model"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.New("model reference must be a model key or an object with model_key")
	}
	r.ModelKey = obj.ModelKey
	if r.ModelKey == "" {
		r.ModelKey = obj.Model
	}
	return nil
}

// ReviewContext is optional repository context appended to member prompts.
type ReviewContext struct {
	DiffText     string            `json:"diff_text,omitempty"`
	Files        map[string]string `json:"files,omitempty"`
	TestCommands []string          `json:"test_commands,omitempty"`
	Constraints  []string          `json:"constraints,omitempty"`
}

// IsEmpty reports whether no context was supplied.
func (c ReviewContext) IsEmpty() bool {
	return c.DiffText == "" && len(c.Files) == 0 && len(c.TestCommands) == 0 && len(c.Constraints) == 0
}

// CouncilMember is one independent reviewer.
type CouncilMember struct {
	RoleID       string `json:"role_id"`
	ModelKey     string `json:"model_key"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// UnmarshalJSON accepts role_id or id, and model_key or model.
func (m *CouncilMember) UnmarshalJSON(data []byte) error {
	var obj struct {
		RoleID       string `json:"role_id"`
		ID           string `json:"id"`
		ModelKey     string `json:"model_key"`
		Model        string `json:"model"`
		SystemPrompt string `json:"system_prompt"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return errors.New("council member must be an object with role_id and model_key")
	}
	m.RoleID = firstNonEmpty(obj.RoleID, obj.ID)
	m.ModelKey = firstNonEmpty(obj.ModelKey, obj.Model)
	m.SystemPrompt = obj.SystemPrompt
	return nil
}

// CouncilConfig is the framework_config of a council task.
type CouncilConfig struct {
	Members             []CouncilMember `json:"members"`
	Chair               ModelRef        `json:"chair"`
	MemberFailurePolicy FailurePolicy   `json:"member_failure_policy,omitempty"`

	// MinMembers is the number of member answers the chair needs under the
	// exclude policy. Defaults to 1.
	MinMembers int `json:"min_members,omitempty"`

	CallTimeoutSeconds float64 `json:"call_timeout_seconds,omitempty"`
	ReviewContext
}

// DXOConfig is the framework_config of a dxo task.
type DXOConfig struct {
	Researcher  ModelRef `json:"researcher"`
	Reviewer    ModelRef `json:"reviewer"`
	Synthesizer ModelRef `json:"synthesizer"`

	CallTimeoutSeconds float64 `json:"call_timeout_seconds,omitempty"`
	ReviewContext
}

// EnsembleConfig is the framework_config of an ensemble task.
type EnsembleConfig struct {
	Models     []ModelRef `json:"models"`
	Aggregator ModelRef   `json:"aggregator"`

	// Quorum is the number of member answers required before aggregation.
	// Defaults to a majority of Models.
	Quorum int `json:"quorum,omitempty"`

	CallTimeoutSeconds float64 `json:"call_timeout_seconds,omitempty"`
	ReviewContext
}

// UnmarshalJSON accepts models as a list of keys or members as a list of
// {model_key} objects.
func (c *EnsembleConfig) UnmarshalJSON(data []byte) error {
	type plain EnsembleConfig
	var obj struct {
		plain
		Members []ModelRef `json:"members"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if len(obj.Models) > 0 && len(obj.Members) > 0 {
		return errors.New("use either models or members, not both")
	}
	*c = EnsembleConfig(obj.plain)
	if len(c.Models) == 0 {
		c.Models = obj.Members
	}
	return nil
}

// DecodeCouncilConfig decodes and defaults a council framework_config.
func DecodeCouncilConfig(raw map[string]interface{}) (*CouncilConfig, error) {
	var cfg CouncilConfig
	if err := decodeConfig(FrameworkCouncil, raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.MemberFailurePolicy == "" {
		cfg.MemberFailurePolicy = PolicyExclude
	}
	if cfg.MinMembers == 0 {
		cfg.MinMembers = 1
	}
	return &cfg, nil
}

// DecodeDXOConfig decodes a dxo framework_config.
func DecodeDXOConfig(raw map[string]interface{}) (*DXOConfig, error) {
	var cfg DXOConfig
	if err := decodeConfig(FrameworkDXO, raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DecodeEnsembleConfig decodes and defaults an ensemble framework_config.
func DecodeEnsembleConfig(raw map[string]interface{}) (*EnsembleConfig, error) {
	var cfg EnsembleConfig
	if err := decodeConfig(FrameworkEnsemble, raw, &cfg); err != nil {
		return nil, err
	}
	if cfg.Quorum == 0 {
		cfg.Quorum = len(cfg.Models)/2 + 1
	}
	return &cfg, nil
}

// Validate checks the council shape. When models is non-nil every model key
// must resolve.
func (c *CouncilConfig) Validate(models ModelResolver) error {
	if len(c.Members) == 0 {
		return configError(FrameworkCouncil, "members", "at least one member is required")
	}
	seen := make(map[string]bool, len(c.Members))
	for i, m := range c.Members {
		field := fmt.Sprintf("members[%d]", i)
		if strings.TrimSpace(m.RoleID) == "" {
			return configError(FrameworkCouncil, field+".role_id", "role_id is required")
		}
		if m.RoleID == RoleChair {
			return configError(FrameworkCouncil, field+".role_id", "role_id %q is reserved", RoleChair)
		}
		if seen[m.RoleID] {
			return configError(FrameworkCouncil, field+".role_id", "duplicate role_id %q", m.RoleID)
		}
		seen[m.RoleID] = true
		if err := checkModel(FrameworkCouncil, field+".model_key", m.ModelKey, models); err != nil {
			return err
		}
	}
	if err := checkModel(FrameworkCouncil, "chair", c.Chair.ModelKey, models); err != nil {
		return err
	}
	switch c.MemberFailurePolicy {
	case PolicyExclude, PolicyAbort:
	default:
		return configError(FrameworkCouncil, "member_failure_policy", "must be %q or %q, got %q", PolicyExclude, PolicyAbort, c.MemberFailurePolicy)
	}
	if c.MinMembers < 1 || c.MinMembers > len(c.Members) {
		return configError(FrameworkCouncil, "min_members", "must be between 1 and %d, got %d", len(c.Members), c.MinMembers)
	}
	return checkTimeout(FrameworkCouncil, c.CallTimeoutSeconds)
}

// CallTimeout returns the per-call bound, or 0 when unset.
func (c *CouncilConfig) CallTimeout() time.Duration {
	return secondsToDuration(c.CallTimeoutSeconds)
}

// Validate checks the dxo shape.
func (c *DXOConfig) Validate(models ModelResolver) error {
	if err := checkModel(FrameworkDXO, "researcher", c.Researcher.ModelKey, models); err != nil {
		return err
	}
	if err := checkModel(FrameworkDXO, "reviewer", c.Reviewer.ModelKey, models); err != nil {
		return err
	}
	if err := checkModel(FrameworkDXO, "synthesizer", c.Synthesizer.ModelKey, models); err != nil {
		return err
	}
	return checkTimeout(FrameworkDXO, c.CallTimeoutSeconds)
}

// CallTimeout returns the per-call bound, or 0 when unset.
func (c *DXOConfig) CallTimeout() time.Duration {
	return secondsToDuration(c.CallTimeoutSeconds)
}

// Validate checks the ensemble shape.
func (c *EnsembleConfig) Validate(models ModelResolver) error {
	if len(c.Models) == 0 {
		return configError(FrameworkEnsemble, "models", "at least one model is required")
	}
	for i, m := range c.Models {
		if err := checkModel(FrameworkEnsemble, fmt.Sprintf("models[%d]", i), m.ModelKey, models); err != nil {
			return err
		}
	}
	if err := checkModel(FrameworkEnsemble, "aggregator", c.Aggregator.ModelKey, models); err != nil {
		return err
	}
	if c.Quorum < 1 || c.Quorum > len(c.Models) {
		return configError(FrameworkEnsemble, "quorum", "must be between 1 and %d, got %d", len(c.Models), c.Quorum)
	}
	return checkTimeout(FrameworkEnsemble, c.CallTimeoutSeconds)
}

// CallTimeout returns the per-call bound, or 0 when unset.
func (c *EnsembleConfig) CallTimeout() time.Duration {
	return secondsToDuration(c.CallTimeoutSeconds)
}

// decodeConfig round-trips raw through JSON into dst.
func decodeConfig(framework Framework, raw map[string]interface{}, dst interface{}) error {
	if raw == nil {
		raw = map[string]interface{}{}
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return configError(framework, "", "framework_config is not serializable: %v", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return configError(framework, typeErr.Field, "expected %s, got %s", typeErr.Type, typeErr.Value)
		}
		return configError(framework, "", "%v", err)
	}
	return nil
}

func checkModel(framework Framework, field, key string, models ModelResolver) error {
	if strings.TrimSpace(key) == "" {
		return configError(framework, field, "model key is required")
	}
	if models != nil && !models.HasModel(key) {
		return configError(framework, field, "unknown model key %q", key)
	}
	return nil
}

func checkTimeout(framework Framework, seconds float64) error {
	if seconds < 0 {
		return configError(framework, "call_timeout_seconds", "must not be negative")
	}
	return nil
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
