package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the voting engine counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	checkIns       *prometheus.CounterVec
	ballots        *prometheus.CounterVec
	otpFailures    *prometheus.CounterVec
	proxyDecisions *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	proxyUploads   prometheus.Counter
}

// NewMetrics registers the engine metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		checkIns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "condovote_checkins_total",
			Help: "participant check-ins by representation (resident, proxy) and outcome (new, rejoin)",
		}, []string{"representation", "outcome"}),
		ballots: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "condovote_ballots_total",
			Help: "ballots accepted by choice",
		}, []string{"choice"}),
		otpFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "condovote_otp_failures_total",
			Help: "rejected one-time codes by scope (checkin, voting) and reason",
		}, []string{"scope", "reason"}),
		proxyDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "condovote_proxy_decisions_total",
			Help: "proxy approvals and rejections",
		}, []string{"decision"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "condovote_state_transitions_total",
			Help: "assembly and agenda item state transitions",
		}, []string{"entity", "to"}),
		proxyUploads: factory.NewCounter(prometheus.CounterOpts{
			Name: "condovote_proxy_uploads_total",
			Help: "accepted proxy document uploads",
		}),
	}
}

// RegisterHubGauge exposes the number of connected live-update clients
func RegisterHubGauge(reg prometheus.Registerer, hub *EventHub) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "condovote_sse_clients",
		Help: "connected live-update clients",
	}, func() float64 {
		return float64(hub.ClientCount())
	})
}

func (m *Metrics) checkIn(proxy, rejoin bool) {
	if m == nil {
		return
	}
	representation, outcome := "resident", "new"
	if proxy {
		representation = "proxy"
	}
	if rejoin {
		outcome = "rejoin"
	}
	m.checkIns.WithLabelValues(representation, outcome).Inc()
}

func (m *Metrics) ballot(choice string) {
	if m == nil {
		return
	}
	m.ballots.WithLabelValues(choice).Inc()
}

func (m *Metrics) otpFailure(scope string, err error) {
	if m == nil {
		return
	}
	m.otpFailures.WithLabelValues(scope, ReasonOf(err)).Inc()
}

func (m *Metrics) proxyDecision(decision string) {
	if m == nil {
		return
	}
	m.proxyDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) transition(entity, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(entity, to).Inc()
}

func (m *Metrics) proxyUpload() {
	if m == nil {
		return
	}
	m.proxyUploads.Inc()
}
