package metrics

import "github.com/prometheus/client_golang/prometheus"

// PracticeMetrics exposes counters/histograms for the voice command pipeline and
// scheduling conflicts.
type PracticeMetrics struct {
	commandsTotal  *prometheus.CounterVec
	matchScore     prometheus.Histogram
	interpretTime  *prometheus.HistogramVec
	conflictsTotal *prometheus.CounterVec
}

func NewPracticeMetrics(reg prometheus.Registerer) *PracticeMetrics {
	m := &PracticeMetrics{
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "voice",
			Name:      "commands_total",
			Help:      "Voice commands by result kind, calendar action and outcome",
		}, []string{"kind", "action", "outcome"}),
		matchScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "practice",
			Subsystem: "voice",
			Name:      "match_score",
			Help:      "Best fuzzy client-name match score per command",
			Buckets:   []float64{0.3, 0.5, 0.6, 0.7, 0.72, 0.8, 0.9, 0.95, 1},
		}),
		interpretTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "practice",
			Subsystem: "voice",
			Name:      "interpret_seconds",
			Help:      "Latency of transcript interpretation",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "practice",
			Subsystem: "appointment",
			Name:      "conflicts_total",
			Help:      "Appointment conflicts detected",
		}, []string{"source"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.commandsTotal, m.matchScore, m.interpretTime, m.conflictsTotal)
	return m
}

func (m *PracticeMetrics) ObserveCommand(kind, action, outcome string) {
	if m == nil {
		return
	}
	if action == "" {
		action = "none"
	}
	m.commandsTotal.WithLabelValues(kind, action, outcome).Inc()
}

func (m *PracticeMetrics) ObserveMatchScore(score float64) {
	if m == nil {
		return
	}
	m.matchScore.Observe(score)
}

func (m *PracticeMetrics) ObserveInterpret(kind string, seconds float64) {
	if m == nil {
		return
	}
	m.interpretTime.WithLabelValues(kind).Observe(seconds)
}

// ObserveConflicts adds n detected conflicts for source (api, voice, report).
func (m *PracticeMetrics) ObserveConflicts(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.conflictsTotal.WithLabelValues(source).Add(float64(n))
}
