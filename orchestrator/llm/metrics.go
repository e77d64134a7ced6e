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

package llm

import "github.com/prometheus/client_golang/prometheus"

var (
	promGatewayCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentic_gateway_calls_total",
			Help: "Total number of model gateway calls by outcome",
		},
		[]string{"model", "backend", "status"},
	)
	promGatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agentic_gateway_call_duration_milliseconds",
			Help:    "Model gateway call duration in milliseconds, retries included",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000},
		},
		[]string{"model"},
	)
	promGatewayRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agentic_gateway_retries_total",
			Help: "Total number of retried model gateway attempts",
		},
		[]string{"model", "code"},
	)
)

func init() {
	prometheus.MustRegister(promGatewayCalls)
	prometheus.MustRegister(promGatewayDuration)
	prometheus.MustRegister(promGatewayRetries)
}
