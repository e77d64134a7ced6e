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

// Package llm implements the model gateway used by every decision framework.
//
// A caller asks the gateway for a completion by logical model key:
//
//	text, err := gw.Invoke(ctx, "large", []llm.ChatMessage{
//		{Role: llm.RoleUser, Content: "Should we cache X?"},
//	})
//
// The gateway resolves the key against a Registry of ModelSpec entries, picks
// the backend Provider the spec names, and applies the per-call timeout, rate
// limiting and retry policy before returning the raw completion text.
//
// # Backends
//
// Four backend types are provided:
//
//   - openai: any OpenAI-compatible /v1/chat/completions server (vLLM, LM Studio,
//     llama.cpp, OpenAI itself)
//   - ollama: the Ollama /api/chat endpoint
//   - anthropic: the Anthropic Messages API
//   - bedrock: AWS Bedrock InvokeModel (anthropic, meta and mistral families)
//
// # Registry sources
//
// The registry starts from built-in defaults ("small" and "large" on a local
// backend) and may be extended from a YAML file on disk or in S3, and from a
// Postgres model_specs table.
//
// # Errors
//
// Every failure returned by Invoke is a *GatewayError. Callers branch on the
// failure kind with errors.Is against ErrUnknownModel, ErrTransportFailure and
// ErrTimeout.
package llm
