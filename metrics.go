package driftline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricResponses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "driftline",
		Name:      "responses_total",
		Help:      "Persona replies produced, by strategy.",
	}, []string{"strategy"})
	metricBackendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "driftline",
		Name:      "backend_failures_total",
		Help:      "Hosted or remote generation failures, by backend.",
	}, []string{"backend"})
	metricModes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "driftline",
		Name:      "mode_total",
		Help:      "Post-response persona modes observed.",
	}, []string{"mode"})
	metricArtifacts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "driftline",
		Name:      "generation_artifacts_total",
		Help:      "Backend replies replaced by a filler line after cleanup.",
	})
	metricSessionsEvicted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "driftline",
		Name:      "sessions_evicted_total",
		Help:      "Idle sessions removed by the sweep worker.",
	})
	metricTurnsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "driftline",
		Name:      "recorder_turns_dropped_total",
		Help:      "Turns dropped because the recorder queue was full.",
	})
)

func recordResponse(strategy Strategy, mode Mode) {
	metricResponses.WithLabelValues(string(strategy)).Inc()
	metricModes.WithLabelValues(string(mode)).Inc()
}

func recordBackendFailure(backend string) {
	metricBackendFailures.WithLabelValues(backend).Inc()
}

func recordArtifact() {
	metricArtifacts.Inc()
}

func recordEviction(count int) {
	if count > 0 {
		metricSessionsEvicted.Add(float64(count))
	}
}

func recordDroppedTurn() {
	metricTurnsDropped.Inc()
}
