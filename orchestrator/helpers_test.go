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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentic/orchestrator/llm"
)

// fakeResponse scripts what fakeGateway returns for one model key.
type fakeResponse struct {
	content string
	err     error
	delay   time.Duration

	// ignoreCtx makes the call sleep through cancellation, like a backend
	// that never honors deadlines.
	ignoreCtx bool
}

type fakeCall struct {
	ModelKey string
	Messages []llm.ChatMessage

	// Ctx is the context the call received.
	Ctx context.Context

	// interrupted is closed when a delayed call returns early because Ctx
	// was done.
	interrupted chan struct{}
}

// fakeGateway answers by model key and records every call.
type fakeGateway struct {
	mu        sync.Mutex
	responses map[string]fakeResponse
	calls     []fakeCall
}

func newFakeGateway(responses map[string]fakeResponse) *fakeGateway {
	return &fakeGateway{responses: responses}
}

func (f *fakeGateway) Invoke(ctx context.Context, modelKey string, messages []llm.ChatMessage) (string, error) {
	call := fakeCall{
		ModelKey:    modelKey,
		Messages:    append([]llm.ChatMessage(nil), messages...),
		Ctx:         ctx,
		interrupted: make(chan struct{}),
	}
	f.mu.Lock()
	f.calls = append(f.calls, call)
	r, ok := f.responses[modelKey]
	f.mu.Unlock()

	if !ok {
		return "", llm.NewGatewayError(modelKey, llm.ErrCodeUnknownModel, "model key is not registered")
	}

	if r.delay > 0 {
		if r.ignoreCtx {
			time.Sleep(r.delay)
		} else {
			select {
			case <-ctx.Done():
				close(call.interrupted)
				return "", ctx.Err()
			case <-time.After(r.delay):
			}
		}
	}
	return r.content, r.err
}

// requireInterrupted asserts that the gateway saw call's context canceled
// while the call was still in flight.
func requireInterrupted(t *testing.T, call fakeCall) {
	t.Helper()
	select {
	case <-call.interrupted:
	case <-time.After(time.Second):
		require.FailNow(t, "call was not interrupted", "model %s", call.ModelKey)
	}
	require.ErrorIs(t, call.Ctx.Err(), context.Canceled)
}

// waitForCall returns the first call to modelKey. An abandoned call may reach
// the gateway after the run has returned.
func (f *fakeGateway) waitForCall(t *testing.T, modelKey string) fakeCall {
	t.Helper()
	require.Eventually(t, func() bool { return len(f.callsFor(modelKey)) > 0 }, time.Second, 5*time.Millisecond)
	return f.callsFor(modelKey)[0]
}

func (f *fakeGateway) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeGateway) callsFor(modelKey string) []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeCall
	for _, c := range f.calls {
		if c.ModelKey == modelKey {
			out = append(out, c)
		}
	}
	return out
}

// lastPrompt returns the user content of the most recent call to modelKey.
func (f *fakeGateway) lastPrompt(modelKey string) string {
	calls := f.callsFor(modelKey)
	if len(calls) == 0 {
		return ""
	}
	msgs := calls[len(calls)-1].Messages
	return msgs[len(msgs)-1].Content
}

// resolvingGateway also reports which keys exist.
type resolvingGateway struct {
	*fakeGateway
}

func (r resolvingGateway) HasModel(modelKey string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.responses[modelKey]
	return ok
}

func transportErr(model string) error {
	return llm.NewGatewayError(model, llm.ErrCodeTransportFailure, "connection refused")
}

func councilTask(question string, cfg map[string]interface{}) *DecisionTask {
	return NewDecisionTask(question, FrameworkCouncil, cfg)
}

func exampleCouncilConfig() map[string]interface{} {
	return map[string]interface{}{
		"members": []interface{}{
			map[string]interface{}{"role_id": "alpha", "model_key": "m1"},
			map[string]interface{}{"role_id": "beta", "model_key": "m2"},
		},
		"chair": map[string]interface{}{"model_key": "m3"},
	}
}
