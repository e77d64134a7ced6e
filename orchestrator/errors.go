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
	"errors"
	"fmt"
	"sort"
	"strings"

	"agentic/orchestrator/llm"
)

// Sentinels for errors.Is matching.
var (
	ErrConfiguration   = errors.New("invalid framework configuration")
	ErrQuorumNotMet    = errors.New("quorum not met")
	ErrPipelineAborted = errors.New("pipeline aborted")
)

// ConfigurationError reports a bad task or framework_config. It is always
// returned before any model call is issued.
type ConfigurationError struct {
	Framework Framework `json:"framework,omitempty"`
	Field     string    `json:"field,omitempty"`
	Message   string    `json:"message"`
}

func (e *ConfigurationError) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration error")
	if e.Framework != "" {
		sb.WriteString(" (" + string(e.Framework) + ")")
	}
	if e.Field != "" {
		sb.WriteString(": " + e.Field)
	}
	sb.WriteString(": " + e.Message)
	return sb.String()
}

// Is matches ErrConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

func configError(framework Framework, field, format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Framework: framework, Field: field, Message: fmt.Sprintf(format, args...)}
}

// QuorumNotMetError means too few members answered for the synthesis stage
// to run. No synthesis call was issued.
type QuorumNotMetError struct {
	Framework Framework
	Required  int
	Succeeded int

	// Failures maps role id to the member's gateway error.
	Failures map[string]error
}

func (e *QuorumNotMetError) Error() string {
	roles := make([]string, 0, len(e.Failures))
	for role := range e.Failures {
		roles = append(roles, role)
	}
	sort.Strings(roles)
	return fmt.Sprintf("%s: quorum not met: %d of %d required answers succeeded (failed: %s)",
		e.Framework, e.Succeeded, e.Required, strings.Join(roles, ", "))
}

// Is matches ErrQuorumNotMet.
func (e *QuorumNotMetError) Is(target error) bool {
	return target == ErrQuorumNotMet
}

// PipelineAbortedError is returned by DXO when a stage fails. Later stages
// were not issued.
type PipelineAbortedError struct {
	Stage    Stage
	RoleID   string
	ModelKey string
	Cause    error
}

func (e *PipelineAbortedError) Error() string {
	return fmt.Sprintf("dxo pipeline aborted at %s stage (role %s, model %s): %v", e.Stage, e.RoleID, e.ModelKey, e.Cause)
}

// Unwrap returns the stage failure.
func (e *PipelineAbortedError) Unwrap() error {
	return e.Cause
}

// Is matches ErrPipelineAborted.
func (e *PipelineAbortedError) Is(target error) bool {
	return target == ErrPipelineAborted
}

// StageFailedError reports a failed call that the framework cannot recover
// from: a council chair or ensemble aggregator failure, or a member failure
// under the abort policy.
type StageFailedError struct {
	Framework Framework
	Stage     Stage
	RoleID    string
	ModelKey  string
	Cause     error
}

func (e *StageFailedError) Error() string {
	return fmt.Sprintf("%s %s stage failed (role %s, model %s): %v", e.Framework, e.Stage, e.RoleID, e.ModelKey, e.Cause)
}

// Unwrap returns the gateway error.
func (e *StageFailedError) Unwrap() error {
	return e.Cause
}

// FailureClass groups failures by what the caller can do about them.
type FailureClass string

const (
	// FailureConfiguration is fixable by the caller (bad config, unknown model).
	FailureConfiguration FailureClass = "configuration"

	// FailureTransient is a retryable backend failure.
	FailureTransient FailureClass = "transient"

	// FailureStructural needs investigation (missing quorum, rejected
	// requests, unexpected errors).
	FailureStructural FailureClass = "structural"

	// FailureCanceled means the caller gave up.
	FailureCanceled FailureClass = "canceled"
)

// Classify maps a run or gateway error to a FailureClass. It returns the
// empty class for nil.
func Classify(err error) FailureClass {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}
	if errors.Is(err, ErrConfiguration) || errors.Is(err, llm.ErrUnknownModel) {
		return FailureConfiguration
	}
	if errors.Is(err, ErrQuorumNotMet) {
		return FailureStructural
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTransient
	}

	var gwErr *llm.GatewayError
	if errors.As(err, &gwErr) && gwErr.Retryable {
		return FailureTransient
	}
	return FailureStructural
}
