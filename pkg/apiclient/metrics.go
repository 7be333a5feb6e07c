package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts pipeline outcomes. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	Outcomes         *prometheus.CounterVec
	Refreshes        *prometheus.CounterVec
	Queued           prometheus.Counter
	TerminalExpiries prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webtrace",
			Subsystem: "apiclient",
			Name:      "request_outcomes_total",
			Help:      "Classified outcomes of API request attempts.",
		}, []string{"outcome"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "webtrace",
			Subsystem: "apiclient",
			Name:      "refreshes_total",
			Help:      "Credential refresh calls by result.",
		}, []string{"result"}),
		Queued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webtrace",
			Subsystem: "apiclient",
			Name:      "queued_requests_total",
			Help:      "Requests parked while a refresh was in flight.",
		}),
		TerminalExpiries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "webtrace",
			Subsystem: "apiclient",
			Name:      "terminal_expiries_total",
			Help:      "Redirects to re-authentication.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Outcomes, m.Refreshes, m.Queued, m.TerminalExpiries)
	}
	return m
}

func (m *Metrics) outcome(name string) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(name).Inc()
}

func (m *Metrics) refresh(ok bool) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) queued() {
	if m == nil {
		return
	}
	m.Queued.Inc()
}

func (m *Metrics) terminal() {
	if m == nil {
		return
	}
	m.TerminalExpiries.Inc()
}
