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
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"agentic/orchestrator"
	"agentic/orchestrator/llm"
)

const defaultPort = "8085"

func serveCmd(a *app) *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the decision API",
		Long: `Serve the decision API over HTTP.

Routes:
  POST /api/v1/decisions  run a decision task
  GET  /api/v1/models     list registered models
  GET  /health            liveness
  GET  /prometheus        metrics`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = os.Getenv("PORT")
			}
			if port == "" {
				port = defaultPort
			}

			res, err := a.gateway(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()

			log := a.logger("orchestrator")
			engine := orchestrator.NewEngine(res.Gateway, orchestrator.WithEngineLogger(log))
			server := orchestrator.NewServer(engine, res.Gateway, log)
			return server.ListenAndServe(cmd.Context(), ":"+port)
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (default $PORT or "+defaultPort+")")
	return cmd
}

func modelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the registered models",
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.gateway(cmd.Context())
			if err != nil {
				return err
			}
			defer res.Close()

			return printModels(cmd.OutOrStdout(), res.Gateway.Models())
		},
	}
}

func printModels(w io.Writer, models []llm.ModelInfo) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tBACKEND\tTYPE\tMODEL\tCOST\tMAX TOKENS\tTIMEOUT")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%dms\n",
			m.Key, m.Backend, m.BackendType, m.ModelID, m.CostClass, m.MaxTokens, m.TimeoutMS)
	}
	return tw.Flush()
}
