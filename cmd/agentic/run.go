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
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"agentic/orchestrator"
)

// defaultFrameworkConfig is the configuration used when --config is not
// given. It runs against the built-in small and large models.
func defaultFrameworkConfig(f orchestrator.Framework) map[string]interface{} {
	switch f {
	case orchestrator.FrameworkCouncil:
		return map[string]interface{}{
			"members": []interface{}{
				map[string]interface{}{"id": "alpha", "model": "small"},
				map[string]interface{}{"id": "beta", "model": "large"},
			},
			"chair": "large",
		}
	case orchestrator.FrameworkDXO:
		return map[string]interface{}{
			"researcher":  "small",
			"reviewer":    "small",
			"synthesizer": "large",
		}
	case orchestrator.FrameworkEnsemble:
		return map[string]interface{}{
			"models":     []interface{}{"small", "large"},
			"aggregator": "large",
		}
	}
	return nil
}

// buildTask turns command arguments into a DecisionTask. configJSON, when
// set, replaces the default framework configuration.
func buildTask(framework, question, configJSON string) (*orchestrator.DecisionTask, error) {
	f := orchestrator.Framework(strings.ToLower(framework))
	if !f.IsValid() {
		return nil, fmt.Errorf("unknown framework %q: use council, dxo or ensemble", framework)
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("a question is required")
	}

	cfg := defaultFrameworkConfig(f)
	if configJSON != "" {
		cfg = map[string]interface{}{}
		if err := json.Unmarshal([]byte(configJSON), &cfg); err != nil {
			return nil, fmt.Errorf("invalid --config JSON: %w", err)
		}
	}
	return orchestrator.NewDecisionTask(question, f, cfg), nil
}

func runCmd(a *app) *cobra.Command {
	var configJSON string
	var timeout time.Duration
	var trace bool
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "run <council|dxo|ensemble> <question...>",
		Short: "Run one decision task",
		Long: `Run a question through a collaboration framework and print the final answer.

Without --config the framework runs on the built-in models:
  council   members alpha (small) and beta (large), chair large
  dxo       researcher small, reviewer small, synthesizer large
  ensemble  models small and large, aggregator large

Examples:
  agentic run council "Should we cache the session lookup?"
  agentic run dxo --trace "Adopt gRPC for internal services?"
  agentic run ensemble --config '{"models":["small","small","large"],"aggregator":"large","quorum":2}' "Pick a queue"`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			task, err := buildTask(args[0], strings.Join(args[1:], " "), configJSON)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			res, err := a.gateway(ctx)
			if err != nil {
				return err
			}
			defer res.Close()

			engine := orchestrator.NewEngine(res.Gateway, orchestrator.WithEngineLogger(a.logger("orchestrator")))
			result, err := engine.Run(ctx, task)
			if err != nil {
				return fmt.Errorf("%s task failed (%s): %w", task.Framework, orchestrator.Classify(err), err)
			}
			return printResult(cmd.OutOrStdout(), result, trace, jsonOut)
		},
	}

	cmd.Flags().StringVar(&configJSON, "config", "", "framework_config as a JSON object")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall task timeout, e.g. 5m (0 = none)")
	cmd.Flags().BoolVar(&trace, "trace", false, "print every agent message before the final answer")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "print the full result as JSON")

	return cmd
}

func printResult(w io.Writer, result *orchestrator.DecisionResult, trace, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if trace {
		for _, m := range result.Messages {
			fmt.Fprintf(w, "[%s] %s (%s)\n%s\n\n", m.Stage, m.RoleID, m.ModelKey, m.Content)
		}
	}

	fmt.Fprintln(w, "\nFINAL ANSWER\n============")
	fmt.Fprintln(w, result.FinalAnswer)
	return nil
}
