package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder records metrics using Prometheus.
type PrometheusRecorder struct {
	cartMutationsTotal *prometheus.CounterVec
	refreshTotal       *prometheus.CounterVec
	forcedLogoutsTotal *prometheus.CounterVec
	loginsTotal        *prometheus.CounterVec
}

// NewPrometheusRecorder registers the collectors on reg.
// Pass a fresh prometheus.NewRegistry() in tests.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	cartMutationsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_mutations_total",
		Help: "Total cart intents applied",
	}, []string{"op"})

	refreshTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_token_refresh_total",
		Help: "Total access token refresh attempts",
	}, []string{"source", "result"})

	forcedLogoutsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_forced_logouts_total",
		Help: "Total sessions ended without a user logout",
	}, []string{"reason"})

	loginsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_logins_total",
		Help: "Total login attempts",
	}, []string{"method", "result"})

	reg.MustRegister(cartMutationsTotal, refreshTotal, forcedLogoutsTotal, loginsTotal)

	return &PrometheusRecorder{
		cartMutationsTotal: cartMutationsTotal,
		refreshTotal:       refreshTotal,
		forcedLogoutsTotal: forcedLogoutsTotal,
		loginsTotal:        loginsTotal,
	}
}

func (p *PrometheusRecorder) RecordCartMutation(op string) {
	p.cartMutationsTotal.WithLabelValues(op).Inc()
}

func (p *PrometheusRecorder) RecordRefresh(source string, success bool) {
	p.refreshTotal.WithLabelValues(source, result(success)).Inc()
}

func (p *PrometheusRecorder) RecordForcedLogout(reason string) {
	p.forcedLogoutsTotal.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) RecordLogin(method string, success bool) {
	p.loginsTotal.WithLabelValues(method, result(success)).Inc()
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

var _ Recorder = (*PrometheusRecorder)(nil)
