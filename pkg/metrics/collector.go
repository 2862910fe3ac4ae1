package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Proton-105/candy-heist/internal/state"
)

var (
	botCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bot_commands_total",
			Help: "Total number of bot commands received labeled by command and status",
		},
		[]string{"command", "status"},
	)
	commandDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "command_duration_seconds",
			Help:    "Duration of bot commands in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)
	stateTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "state_transitions_total",
			Help: "Total number of state transitions",
		},
		[]string{"from", "to"},
	)
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors split by type and severity",
		},
		[]string{"type", "severity"},
	)
	interactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interactions_total",
			Help: "Resolved interactions labeled by action and outcome kind",
		},
		[]string{"action", "outcome"},
	)
	candyMovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candy_moved_total",
			Help: "Candy moved between players or burned, labeled by action",
		},
		[]string{"action"},
	)
	storeTransactionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_transactions_total",
			Help: "Store transactions labeled by backend and status",
		},
		[]string{"backend", "status"},
	)
	storeTransactionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_transaction_duration_seconds",
			Help:    "Store transaction latency distributions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend"},
	)
	notificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Out-of-band notifications labeled by result",
		},
		[]string{"result"},
	)
	playersTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "players_total",
			Help: "Number of players with a ledger record",
		},
	)
)

func init() {
	state.RegisterTransitionRecorder(RecordStateTransition)
}

// RecordCommand increments command counters and records duration.
func RecordCommand(command, status string, duration time.Duration) {
	if command == "" {
		command = "unknown"
	}
	if status == "" {
		status = "unknown"
	}

	botCommandsTotal.WithLabelValues(command, status).Inc()
	commandDurationSeconds.WithLabelValues(command).Observe(duration.Seconds())
}

// RecordStateTransition tracks FSM transitions.
func RecordStateTransition(from, to string) {
	if from == "" {
		from = "unknown"
	}
	if to == "" {
		to = "unknown"
	}

	stateTransitionsTotal.WithLabelValues(from, to).Inc()
}

// RecordError increments error counters with metadata.
func RecordError(errType, severity string) {
	if errType == "" {
		errType = "unknown"
	}
	if severity == "" {
		severity = "unknown"
	}

	errorsTotal.WithLabelValues(errType, severity).Inc()
}

// RecordInteraction counts a resolved interaction and the candy it moved.
func RecordInteraction(action, outcome string, amount int64) {
	if action == "" {
		action = "unknown"
	}
	if outcome == "" {
		outcome = "unknown"
	}

	interactionsTotal.WithLabelValues(action, outcome).Inc()
	if amount > 0 {
		candyMovedTotal.WithLabelValues(action).Add(float64(amount))
	}
}

// ObserveStoreTransaction records one store unit of work.
func ObserveStoreTransaction(backend string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}

	storeTransactionsTotal.WithLabelValues(backend, status).Inc()
	storeTransactionDuration.WithLabelValues(backend).Observe(duration.Seconds())
}

// RecordNotification counts a delivery attempt ("sent", "skipped", "failed").
func RecordNotification(result string) {
	notificationsTotal.WithLabelValues(result).Inc()
}

// SetPlayers updates the gauge for known players.
func SetPlayers(count int) {
	playersTotal.Set(float64(count))
}
