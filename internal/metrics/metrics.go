// Copyright 2025 Tom Barlow
//
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

// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline. Collectors register on the default registry; Handler serves
// them for the daemon's optional metrics listener.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// analysesTotal counts completed analyses by intent and outcome.
	analysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semroute_analyses_total",
			Help: "Total sentence analyses by intent and outcome",
		},
		[]string{"intent", "outcome"},
	)

	// stepDuration tracks how long each workflow step takes.
	stepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "semroute_workflow_step_duration_seconds",
			Help:    "Duration of workflow steps",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	// stepRetries counts retried step attempts.
	stepRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semroute_workflow_step_retries_total",
			Help: "Total workflow step retries by step name",
		},
		[]string{"step"},
	)

	// providerRequests counts upstream LLM calls by provider and outcome.
	providerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semroute_provider_requests_total",
			Help: "Total LLM provider requests by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	// providerTokens counts tokens spent per provider and direction.
	providerTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semroute_provider_tokens_total",
			Help: "Total LLM tokens by provider and direction (input, output)",
		},
		[]string{"provider", "direction"},
	)

	// progressiveOps counts progressive-matching store operations.
	progressiveOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "semroute_progressive_ops_total",
			Help: "Total progressive matching store operations by op and outcome",
		},
		[]string{"op", "outcome"},
	)

	// activeStreams tracks open analyze streams.
	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "semroute_rpc_active_streams",
		Help: "Number of currently open analyze streams",
	})
)

// RecordAnalysis increments the analysis counter.
func RecordAnalysis(intent, outcome string) {
	analysesTotal.WithLabelValues(intent, outcome).Inc()
}

// ObserveStepDuration records one step execution.
func ObserveStepDuration(step string, seconds float64) {
	stepDuration.WithLabelValues(step).Observe(seconds)
}

// RecordStepRetry increments the retry counter for a step.
func RecordStepRetry(step string) {
	stepRetries.WithLabelValues(step).Inc()
}

// RecordProviderRequest increments the request counter for a provider.
func RecordProviderRequest(provider, outcome string) {
	providerRequests.WithLabelValues(provider, outcome).Inc()
}

// AddProviderTokens accumulates token usage for a provider.
func AddProviderTokens(provider string, input, output uint32) {
	if input > 0 {
		providerTokens.WithLabelValues(provider, "input").Add(float64(input))
	}
	if output > 0 {
		providerTokens.WithLabelValues(provider, "output").Add(float64(output))
	}
}

// RecordProgressiveOp increments the store operation counter.
func RecordProgressiveOp(op, outcome string) {
	progressiveOps.WithLabelValues(op, outcome).Inc()
}

// StreamOpened increments the active stream gauge.
func StreamOpened() {
	activeStreams.Inc()
}

// StreamClosed decrements the active stream gauge.
func StreamClosed() {
	activeStreams.Dec()
}

// Handler serves the default registry for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
