// Package clustermetrics exposes the supervisor's lifecycle counters as
// Prometheus metrics, grounded on the counter-per-lifecycle-event shape
// of github.com/cuemby/warren's pkg/manager/metrics_collector.go. This
// package only registers the metrics against a caller-supplied
// prometheus.Registerer; exporting them over HTTP (e.g. promhttp) is the
// embedding application's concern.
package clustermetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the counters and gauges the supervisor updates as
// workers come and go and shared listeners are bound.
type Metrics struct {
	ForksTotal       prometheus.Counter
	WorkersLive      prometheus.Gauge
	ListenerBinds    prometheus.Counter
	DisconnectsTotal prometheus.Counter
	DestroysTotal    prometheus.Counter
}

// New builds a Metrics set and registers it against reg. A nil reg is
// accepted for embedders that don't want Prometheus wiring; every method
// on Metrics is then a no-op-safe update against unregistered
// collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ForksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wcluster",
			Name:      "forks_total",
			Help:      "Total number of workers forked by the supervisor.",
		}),
		WorkersLive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wcluster",
			Name:      "workers_live",
			Help:      "Number of workers currently tracked by the supervisor.",
		}),
		ListenerBinds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wcluster",
			Name:      "listener_binds_total",
			Help:      "Total number of distinct shared-listener fingerprints bound.",
		}),
		DisconnectsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wcluster",
			Name:      "disconnects_total",
			Help:      "Total number of worker channel disconnects, graceful or not.",
		}),
		DestroysTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "wcluster",
			Name:      "destroys_total",
			Help:      "Total number of forced worker terminations.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.ForksTotal, m.WorkersLive, m.ListenerBinds, m.DisconnectsTotal, m.DestroysTotal)
	}
	return m
}
