package sync

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts engine activity. A nil *Metrics is valid and records nothing.
type Metrics struct {
	fetches        *prometheus.CounterVec
	dropped        *prometheus.CounterVec
	changelogPages prometheus.Counter
	windowSize     *prometheus.GaugeVec
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chansync",
			Name:      "fetch_total",
			Help:      "Store fetches issued by the sync engine.",
		}, []string{"direction", "result"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chansync",
			Name:      "load_dropped_total",
			Help:      "Loads skipped because one was already in flight.",
		}, []string{"direction"}),
		changelogPages: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "chansync",
			Name:      "changelog_pages_total",
			Help:      "Changelog pages applied.",
		}),
		windowSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "chansync",
			Name:      "window_messages",
			Help:      "Messages held in the window.",
		}, []string{"channel"}),
	}
	for _, c := range []prometheus.Collector{m.fetches, m.dropped, m.changelogPages, m.windowSize} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeFetch(direction string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(classify(err))
	}
	m.fetches.WithLabelValues(direction, result).Inc()
}

func (m *Metrics) observeDropped(direction string) {
	if m == nil {
		return
	}
	m.dropped.WithLabelValues(direction).Inc()
}

func (m *Metrics) observeChangelogPage() {
	if m == nil {
		return
	}
	m.changelogPages.Inc()
}

func (m *Metrics) observeWindow(channel string, n int) {
	if m == nil {
		return
	}
	m.windowSize.WithLabelValues(channel).Set(float64(n))
}
