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

// Package main implements the agentic CLI: run a decision task from the
// terminal, serve the decision API, or list the configured models.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"agentic/orchestrator/llm"
	"agentic/shared/logger"
)

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(newApp()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// app holds the global flags shared by every subcommand.
type app struct {
	provider   string
	modelsFile string
	logLevel   string

	// logOut receives structured logs. Stdout stays free for results.
	logOut io.Writer

	// bootstrap builds the gateway; tests substitute a scripted registry.
	bootstrap func(ctx context.Context, cfg llm.BootstrapConfig) (*llm.BootstrapResult, error)
}

func newApp() *app {
	return &app{
		logOut:    os.Stderr,
		bootstrap: llm.Bootstrap,
	}
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentic",
		Short: "Multi-model decision orchestrator",
		Long: `agentic runs one question through a collaboration framework of language models
(council, dxo or ensemble) and returns a single final answer with the full trace.`,
		Version:      version,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&a.provider, "provider", "", "local backend type for the built-in models: ollama or openai (overrides LOCAL_LLM_PROVIDER)")
	rootCmd.PersistentFlags().StringVar(&a.modelsFile, "models", "", "model registry file path or s3:// URI (overrides AGENTIC_MODELS_FILE)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "minimum log level: debug, info, warn or error (overrides LOG_LEVEL)")

	rootCmd.AddCommand(runCmd(a))
	rootCmd.AddCommand(serveCmd(a))
	rootCmd.AddCommand(modelsCmd(a))

	return rootCmd
}

func (a *app) logger(component string) *logger.Logger {
	l := logger.NewWithWriter(component, a.logOut)
	if a.logLevel != "" {
		l.SetLevel(logger.ParseLevel(a.logLevel))
	}
	return l
}

// gateway loads the environment configuration, applies flag overrides and
// bootstraps the model gateway. Callers must Close the result.
func (a *app) gateway(ctx context.Context) (*llm.BootstrapResult, error) {
	cfg, err := llm.LoadBootstrapConfig()
	if err != nil {
		return nil, err
	}
	if a.provider != "" {
		cfg.LocalProvider = llm.ProviderType(strings.ToLower(strings.TrimSpace(a.provider)))
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if a.modelsFile != "" {
		cfg.ModelsFile = a.modelsFile
	}
	cfg.Logger = a.logger("gateway")

	res, err := a.bootstrap(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model gateway: %w", err)
	}
	for _, w := range res.Warnings {
		fmt.Fprintln(a.logOut, "warning:", w)
	}
	return res, nil
}
