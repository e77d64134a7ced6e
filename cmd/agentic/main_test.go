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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentic/orchestrator"
	"agentic/orchestrator/llm"
)

// echoProvider answers every call with the model id and the first line of
// the last prompt.
type echoProvider struct {
	mu    sync.Mutex
	calls int
}

func (p *echoProvider) Name() string           { return "test" }
func (p *echoProvider) Type() llm.ProviderType { return llm.ProviderTypeOllama }

func (p *echoProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()

	last := req.Messages[len(req.Messages)-1].Content
	firstLine := strings.SplitN(last, "\n", 2)[0]
	return &llm.ChatResponse{Content: fmt.Sprintf("%s says: %s", req.Model, firstLine), Model: req.Model}, nil
}

type testApp struct {
	*app
	provider *echoProvider
	gotCfg   llm.BootstrapConfig
	booted   bool
	logs     *bytes.Buffer
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	for _, key := range []string{
		llm.EnvLocalProvider, llm.EnvModelsFile, llm.EnvDatabaseURL, llm.EnvRedisURL,
		llm.EnvMaxRetries, llm.EnvAnthropicAPIKey, llm.EnvBedrockRegion,
	} {
		t.Setenv(key, "")
	}

	ta := &testApp{provider: &echoProvider{}, logs: &bytes.Buffer{}}
	ta.app = &app{
		logOut: ta.logs,
		bootstrap: func(_ context.Context, cfg llm.BootstrapConfig) (*llm.BootstrapResult, error) {
			ta.gotCfg = cfg
			ta.booted = true

			reg := llm.NewRegistry()
			if err := reg.RegisterBackend(ta.provider, llm.BackendConfig{}); err != nil {
				return nil, err
			}
			for _, spec := range llm.DefaultModels("test") {
				if err := reg.RegisterModel(spec); err != nil {
					return nil, err
				}
			}
			return &llm.BootstrapResult{
				Gateway:  llm.NewGateway(reg),
				Registry: reg,
				Backends: []string{"test"},
			}, nil
		},
	}
	return ta
}

func execute(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestBuildTask_Defaults(t *testing.T) {
	tests := []struct {
		framework string
		check     func(t *testing.T, cfg map[string]interface{})
	}{
		{
			framework: "council",
			check: func(t *testing.T, cfg map[string]interface{}) {
				parsed, err := orchestrator.DecodeCouncilConfig(cfg)
				require.NoError(t, err)
				assert.Equal(t, []orchestrator.CouncilMember{
					{RoleID: "alpha", ModelKey: "small"},
					{RoleID: "beta", ModelKey: "large"},
				}, parsed.Members)
				assert.Equal(t, "large", parsed.Chair.ModelKey)
			},
		},
		{
			framework: "dxo",
			check: func(t *testing.T, cfg map[string]interface{}) {
				parsed, err := orchestrator.DecodeDXOConfig(cfg)
				require.NoError(t, err)
				assert.Equal(t, "small", parsed.Researcher.ModelKey)
				assert.Equal(t, "small", parsed.Reviewer.ModelKey)
				assert.Equal(t, "large", parsed.Synthesizer.ModelKey)
			},
		},
		{
			framework: "ENSEMBLE",
			check: func(t *testing.T, cfg map[string]interface{}) {
				parsed, err := orchestrator.DecodeEnsembleConfig(cfg)
				require.NoError(t, err)
				assert.Equal(t, []orchestrator.ModelRef{{ModelKey: "small"}, {ModelKey: "large"}}, parsed.Models)
				assert.Equal(t, "large", parsed.Aggregator.ModelKey)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.framework, func(t *testing.T) {
			task, err := buildTask(tt.framework, "q", "")
			require.NoError(t, err)
			assert.Equal(t, orchestrator.Framework(strings.ToLower(tt.framework)), task.Framework)
			assert.NotEmpty(t, task.ID)
			tt.check(t, task.FrameworkConfig)
		})
	}
}

func TestBuildTask_Errors(t *testing.T) {
	_, err := buildTask("debate", "q", "")
	assert.ErrorContains(t, err, "unknown framework")

	_, err = buildTask("council", "  ", "")
	assert.ErrorContains(t, err, "question is required")

	_, err = buildTask("council", "q", "{not json")
	assert.ErrorContains(t, err, "invalid --config JSON")

	task, err := buildTask("ensemble", "q", `{"models":["small"],"aggregator":"small"}`)
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"small"}, task.FrameworkConfig["models"])
}

func TestPrintResult(t *testing.T) {
	result := &orchestrator.DecisionResult{
		TaskID:      "t1",
		FinalAnswer: "C",
		Messages: []orchestrator.AgentMessage{
			{RoleID: "alpha", Stage: orchestrator.StageMember, ModelKey: "m1", Content: "A"},
			{RoleID: "chair", Stage: orchestrator.StageChair, ModelKey: "m3", Content: "C"},
		},
		Metadata: map[string]interface{}{"framework": "council"},
	}

	var buf bytes.Buffer
	require.NoError(t, printResult(&buf, result, false, false))
	assert.Equal(t, "\nFINAL ANSWER\n============\nC\n", buf.String())

	buf.Reset()
	require.NoError(t, printResult(&buf, result, true, false))
	assert.True(t, strings.HasPrefix(buf.String(), "[member] alpha (m1)\nA\n\n[chair] chair (m3)\nC\n\n"))
	assert.True(t, strings.HasSuffix(buf.String(), "FINAL ANSWER\n============\nC\n"))

	buf.Reset()
	require.NoError(t, printResult(&buf, result, true, true))
	var decoded orchestrator.DecisionResult
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, "C", decoded.FinalAnswer)
	assert.Len(t, decoded.Messages, 2)
}

func TestRunCommand(t *testing.T) {
	ta := newTestApp(t)

	out, err := execute(t, ta.app, "run", "council", "Should", "we", "cache", "X?")
	require.NoError(t, err)

	assert.Contains(t, out, "FINAL ANSWER\n============\nqwen2.5-coder:32b says: You are the chair of an expert council.\n")
	assert.Equal(t, 3, ta.provider.calls)
	assert.Equal(t, llm.ProviderTypeOllama, ta.gotCfg.LocalProvider)
}

func TestRunCommand_FlagsOverrideEnvironment(t *testing.T) {
	ta := newTestApp(t)

	out, err := execute(t, ta.app, "--provider", "OpenAI", "--models", "s3://bucket/models.yaml",
		"run", "dxo", "--trace", "Adopt gRPC?")
	require.NoError(t, err)

	assert.Equal(t, llm.ProviderTypeOpenAI, ta.gotCfg.LocalProvider)
	assert.Equal(t, "s3://bucket/models.yaml", ta.gotCfg.ModelsFile)
	assert.Contains(t, out, "[research] researcher (small)\nqwen2.5-coder:7b says: Research:\n")
	assert.Contains(t, out, "[synthesis] synthesizer (large)")
}

func TestRunCommand_JSONOutput(t *testing.T) {
	ta := newTestApp(t)

	out, err := execute(t, ta.app, "run", "ensemble", "--json",
		"--config", `{"models":["small","small","large"],"aggregator":"large","quorum":2}`, "Pick a queue")
	require.NoError(t, err)

	var result orchestrator.DecisionResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Len(t, result.Messages, 4)
	assert.Equal(t, "agent_2", result.Messages[2].RoleID)
	assert.Equal(t, float64(2), result.Metadata["quorum"])
}

func TestRunCommand_RejectsBeforeBootstrap(t *testing.T) {
	ta := newTestApp(t)

	_, err := execute(t, ta.app, "run", "debate", "q")
	assert.ErrorContains(t, err, "unknown framework")
	assert.False(t, ta.booted)

	_, err = execute(t, ta.app, "run", "council")
	assert.Error(t, err)
	assert.False(t, ta.booted)
}

func TestRunCommand_ConfigurationError(t *testing.T) {
	ta := newTestApp(t)

	_, err := execute(t, ta.app, "run", "dxo", "--config", `{"researcher":"small","reviewer":"small","synthesizer":"huge"}`, "q")

	assert.ErrorIs(t, err, orchestrator.ErrConfiguration)
	assert.ErrorContains(t, err, "dxo task failed (configuration)")
	assert.Zero(t, ta.provider.calls)
}

func TestRunCommand_InvalidProvider(t *testing.T) {
	ta := newTestApp(t)

	_, err := execute(t, ta.app, "--provider", "gemini", "run", "council", "q")
	assert.ErrorContains(t, err, "invalid local provider")
	assert.False(t, ta.booted)
}

func TestModelsCommand(t *testing.T) {
	ta := newTestApp(t)

	out, err := execute(t, ta.app, "models")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "KEY"))
	assert.Contains(t, lines[1], "large")
	assert.Contains(t, lines[1], "qwen2.5-coder:32b")
	assert.Contains(t, lines[2], "small")
	assert.Contains(t, lines[2], "60000ms")
}
