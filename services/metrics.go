package services

import (
	"github.com/Dosada05/quiz-duel/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "quiz_duel"
	metricsSubsystem = "match"
)

// Metrics - счётчики жизненного цикла матчей. Методы безопасны для nil.
type Metrics struct {
	matchesCreated   *prometheus.CounterVec
	strategiesChosen *prometheus.CounterVec
	roundsScored     prometheus.Counter
	matchesFinished  prometheus.Counter
	matchesExpired   prometheus.Counter
	queueEntries     prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		matchesCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "created_total",
			Help:      "Matches created, by entry point (create, mutual).",
		}, []string{"source"}),
		strategiesChosen: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "strategies_chosen_total",
			Help:      "Strategies chosen, by round and strategy.",
		}, []string{"round", "strategy"}),
		roundsScored: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "rounds_scored_total",
			Help:      "Rounds completed and scored.",
		}),
		matchesFinished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "finished_total",
			Help:      "Matches that reached the finished state.",
		}),
		matchesExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "expired_total",
			Help:      "Matches expired by the janitor.",
		}),
		queueEntries: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "queue",
			Name:      "entries",
			Help:      "Pending match requests in the matchmaking queue.",
		}),
	}
}

func (m *Metrics) matchCreated(source string) {
	if m == nil {
		return
	}
	m.matchesCreated.WithLabelValues(source).Inc()
}

func (m *Metrics) strategyChosen(round int, strategy models.Strategy) {
	if m == nil {
		return
	}
	label := "1"
	if round == 2 {
		label = "2"
	}
	m.strategiesChosen.WithLabelValues(label, string(strategy)).Inc()
}

func (m *Metrics) roundScored(finished bool) {
	if m == nil {
		return
	}
	m.roundsScored.Inc()
	if finished {
		m.matchesFinished.Inc()
	}
}

func (m *Metrics) matchExpired() {
	if m == nil {
		return
	}
	m.matchesExpired.Inc()
}

func (m *Metrics) setQueueEntries(n int) {
	if m == nil {
		return
	}
	m.queueEntries.Set(float64(n))
}
