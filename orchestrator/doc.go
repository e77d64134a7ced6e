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

/*
Package orchestrator turns one decision task into a set of model calls and a
single auditable answer.

A DecisionTask names one of three fixed frameworks:

  - council: members answer concurrently, a chair synthesizes their inputs
    ordered by role id.
  - dxo: research, critique and synthesis run strictly in sequence.
  - ensemble: several models answer the same prompt anonymously and an
    aggregator combines them once a quorum has answered.

Every call goes through a Gateway (see package llm). The Engine validates the
framework configuration before any call is issued, dispatches to the
strategy, and returns its DecisionResult unchanged. The result carries the
full trace of AgentMessages; trace order is derived from role ids or
configured indexes, never from completion order.

Failures are typed. Use Classify to tell configuration mistakes from
transient backend failures and structural pipeline failures.
*/
package orchestrator
