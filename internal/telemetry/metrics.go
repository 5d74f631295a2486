package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Assistant counters. Registered on the default registry so the
// promhttp handler on /metrics picks them up.
var (
	ChatTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nido_assistant_chat_turns_total",
		Help: "Chat turns processed, by outcome.",
	}, []string{"outcome"})

	Proposals = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nido_assistant_proposals_total",
		Help: "Action proposals extracted from model replies, by action type.",
	}, []string{"action_type"})

	Confirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "nido_assistant_confirmations_total",
		Help: "Action confirmations processed, by action type and outcome.",
	}, []string{"action_type", "outcome"})
)
