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
	"time"

	"agentic/orchestrator/llm"
)

// modelCall is one planned Gateway call.
type modelCall struct {
	RoleID   string
	ModelKey string
	Messages []llm.ChatMessage
}

// callResult is the outcome of a modelCall.
type callResult struct {
	Content  string
	Err      error
	Duration time.Duration
}

// fanOut issues calls concurrently and waits for all of them. results[i]
// always belongs to calls[i], whatever the completion order. With
// stopOnError the first failure cancels the remaining calls and its index
// is returned as firstFailed (-1 when nothing failed).
func fanOut(ctx context.Context, gw Gateway, timeout time.Duration, calls []modelCall, stopOnError bool) (results []callResult, firstFailed int) {
	results = make([]callResult, len(calls))
	firstFailed = -1

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	var once sync.Once

	for i, c := range calls {
		wg.Add(1)
		go func(idx int, c modelCall) {
			defer wg.Done()

			res := invoke(runCtx, gw, timeout, c)
			results[idx] = res

			if res.Err != nil && stopOnError && ctx.Err() == nil {
				once.Do(func() {
					firstFailed = idx
					cancel()
				})
			}
		}(i, c)
	}

	wg.Wait()

	if firstFailed == -1 {
		for i, r := range results {
			if r.Err != nil {
				firstFailed = i
				break
			}
		}
	}
	return results, firstFailed
}

// invoke runs one call with an optional bound. The wait ends when the bound
// expires even if the gateway does not return.
func invoke(ctx context.Context, gw Gateway, timeout time.Duration, c modelCall) callResult {
	start := time.Now()

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan callResult, 1)
	go func() {
		content, err := gw.Invoke(callCtx, c.ModelKey, c.Messages)
		done <- callResult{Content: content, Err: err}
	}()

	var res callResult
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = callResult{Err: abandonedCallError(ctx, callCtx, c.ModelKey)}
	}
	res.Duration = time.Since(start)
	return res
}

func abandonedCallError(parent, callCtx context.Context, modelKey string) error {
	if err := parent.Err(); err != nil {
		return err
	}
	gwErr := llm.NewGatewayError(modelKey, llm.ErrCodeTimeout, "no response within the call timeout")
	gwErr.Cause = callCtx.Err()
	return gwErr
}
