package engine

import "github.com/prometheus/client_golang/prometheus"

type metricsSet struct {
	ticksProcessed prometheus.Counter
	quotesEmitted  prometheus.Counter
	ordersSent     prometheus.Counter
	fills          prometheus.Counter
	errorsByKind   *prometheus.CounterVec
	queueDropped   *prometheus.GaugeVec
}

func newMetricsSet(reg prometheus.Registerer) *metricsSet {
	m := &metricsSet{
		ticksProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketmaker", Subsystem: "engine", Name: "ticks_processed_total",
			Help: "Ticks applied to the book by the tick worker.",
		}),
		quotesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketmaker", Subsystem: "engine", Name: "quotes_emitted_total",
			Help: "Quote decisions with should_quote=true.",
		}),
		ordersSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketmaker", Subsystem: "engine", Name: "orders_sent_total",
			Help: "Orders dispatched to the adapter after passing risk.",
		}),
		fills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "marketmaker", Subsystem: "engine", Name: "fills_total",
			Help: "Fill events applied to an order and the risk manager.",
		}),
		errorsByKind: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketmaker", Subsystem: "engine", Name: "errors_total",
			Help: "ErrorEvents recorded, by kind.",
		}, []string{"kind"}),
		queueDropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "marketmaker", Subsystem: "engine", Name: "queue_dropped",
			Help: "Cumulative dropped pushes per SPSC queue.",
		}, []string{"queue"}),
	}
	if reg != nil {
		reg.MustRegister(m.ticksProcessed, m.quotesEmitted, m.ordersSent, m.fills, m.errorsByKind, m.queueDropped)
	}
	return m
}
