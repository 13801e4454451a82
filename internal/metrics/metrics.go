package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/qin-andy/ultimate-santorini-sub000/internal/entity"
)

const namespace = "santorini"

// Metrics holds the server collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	connections prometheus.Gauge
	sessions    prometheus.Gauge
	rounds      *prometheus.CounterVec
	queued      *prometheus.GaugeVec
}

// New creates the collectors and registers them with registerer.
func New(registerer prometheus.Registerer) *Metrics {
	that := &Metrics{
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Connected players.",
		}),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions",
			Help:      "Registered game sessions.",
		}),
		rounds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_finished_total",
			Help:      "Finished rounds by game kind and outcome.",
		}, []string{"kind", "outcome"}),
		queued: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Players waiting in the matchmaking queue by game kind.",
		}, []string{"kind"}),
	}

	registerer.MustRegister(that.connections, that.sessions, that.rounds, that.queued)

	return that
}

func (that *Metrics) Connected() {
	if that != nil {
		that.connections.Inc()
	}
}

func (that *Metrics) Disconnected() {
	if that != nil {
		that.connections.Dec()
	}
}

func (that *Metrics) SessionOpened() {
	if that != nil {
		that.sessions.Inc()
	}
}

func (that *Metrics) SessionClosed() {
	if that != nil {
		that.sessions.Dec()
	}
}

func (that *Metrics) RoundFinished(kind entity.GameKind, outcome entity.Outcome) {
	if that != nil {
		that.rounds.WithLabelValues(string(kind), string(outcome)).Inc()
	}
}

func (that *Metrics) QueueLength(kind entity.GameKind, length int) {
	if that != nil {
		that.queued.WithLabelValues(string(kind)).Set(float64(length))
	}
}
