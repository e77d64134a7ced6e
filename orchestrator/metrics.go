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
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	promDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentic_decisions_total",
			Help: "Total number of decision tasks by framework and outcome",
		},
		[]string{"framework", "outcome"},
	)
	promDecisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentic_decision_duration_milliseconds",
			Help:    "Decision task duration in milliseconds",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 30000, 60000, 120000, 300000},
		},
		[]string{"framework"},
	)
	promMemberFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentic_member_failures_total",
			Help: "Total number of failed member calls by framework and failure class",
		},
		[]string{"framework", "class"},
	)
)

func init() {
	prometheus.MustRegister(promDecisionsTotal)
	prometheus.MustRegister(promDecisionDuration)
	prometheus.MustRegister(promMemberFailures)
}

// unknownFrameworkLabel replaces framework names that are not supported, so
// request bodies cannot mint new series.
const unknownFrameworkLabel = "unknown"

func frameworkLabel(framework Framework) string {
	if !framework.IsValid() {
		return unknownFrameworkLabel
	}
	return string(framework)
}

func recordDecision(framework Framework, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = string(Classify(err))
	}
	label := frameworkLabel(framework)
	promDecisionsTotal.WithLabelValues(label, outcome).Inc()
	promDecisionDuration.WithLabelValues(label).Observe(float64(time.Since(start).Milliseconds()))
}

func recordMemberFailure(framework Framework, err error) {
	promMemberFailures.WithLabelValues(frameworkLabel(framework), string(Classify(err))).Inc()
}
