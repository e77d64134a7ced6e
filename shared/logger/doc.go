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
Package logger provides structured JSON logging for the decision engine.

# Overview

Every entry is a single line of JSON so that traces of a decision run can be
correlated by task ID and role ID in any log aggregation system.

Each log entry includes:
  - Timestamp (RFC3339Nano format, UTC)
  - Log level (DEBUG, INFO, WARN, ERROR)
  - Component name (gateway, council, server, ...)
  - Instance ID and container name
  - Task ID and role ID (for decision correlation)
  - Custom fields

# Usage

	log := logger.New("council")

	log.Info(task.ID, "alpha", "member responded", map[string]interface{}{
	    "model_key": "small",
	})

	log.ErrorWithCode(task.ID, "chair", "chair call failed", 502, err, nil)

# Environment Variables

  - INSTANCE_ID: Deployment instance identifier
  - LOG_LEVEL: Minimum level written (DEBUG, INFO, WARN, ERROR; default INFO)

# Thread Safety

Logger instances are safe for concurrent use from multiple goroutines.
*/
package logger
