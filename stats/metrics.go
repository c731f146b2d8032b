package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionStateGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stats_connection_state",
		Help: "Current transport state (0 disconnected, 1 connecting, 2 open, 3 closing)",
	})

	connectAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_connect_attempts_total",
		Help: "Connect attempts by result",
	}, []string{"result"})

	connectionDropsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_connection_drops_total",
		Help: "Open connections that ended, for any reason",
	})

	probesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_probes_sent_total",
		Help: "Liveness probes written to the transport",
	})

	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_messages_total",
		Help: "Decoded inbound messages by kind",
	}, []string{"kind"})

	protocolErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stats_protocol_errors_total",
		Help: "Inbound messages dropped because they matched neither message shape",
	})

	incrementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stats_increments_total",
		Help: "Increments by category and whether they were folded into the aggregate",
	}, []string{"category", "applied"})

	aggregateCellsGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "stats_aggregate_cells",
		Help: "Number of (subject, object) cells in the aggregate",
	})
)
