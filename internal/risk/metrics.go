package risk

import "github.com/prometheus/client_golang/prometheus"

// metricsSet groups the Prometheus collectors the risk manager exports so
// an operator can alert on rejection rates and kill-switch transitions
// without scraping logs.
type metricsSet struct {
	checkPass        prometheus.Counter
	checkFail        *prometheus.CounterVec
	fills            prometheus.Counter
	killSwitchEvents prometheus.Counter
}

// newMetricsSet builds and registers the collector set against reg. Passing
// a nil Registerer is valid in tests that don't care about metrics output.
func newMetricsSet(reg prometheus.Registerer) *metricsSet {
	m := &metricsSet{
		checkPass: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketmaker",
			Subsystem: "risk",
			Name:      "check_order_pass_total",
			Help:      "Total number of check_order calls that passed.",
		}),
		checkFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketmaker",
			Subsystem: "risk",
			Name:      "check_order_fail_total",
			Help:      "Total number of check_order calls that failed, by reason.",
		}, []string{"reason"}),
		fills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketmaker",
			Subsystem: "risk",
			Name:      "fills_total",
			Help:      "Total number of fills applied to the position.",
		}),
		killSwitchEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketmaker",
			Subsystem: "risk",
			Name:      "kill_switch_activations_total",
			Help:      "Total number of kill switch activations.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.checkPass, m.checkFail, m.fills, m.killSwitchEvents)
	}
	return m
}
