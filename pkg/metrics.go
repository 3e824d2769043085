// metrics.go contains a thin abstraction over Prometheus so that the
// registry can be used with or without metrics. When the user passes a
// *prometheus.Registry via WithMetrics, labeled collectors are created and
// registered; otherwise a no-op sink is used and the hot path pays nothing
// for metric updates.
//
// Grounded directly on the teacher's pkg/metrics.go metricsSink
// abstraction (noop vs. Prometheus), resized to the registry's own series:
// hits/misses, registrations/unregistrations, and per-sweep prune counters.
//
// © 2025 computeregistry authors. MIT License.
package registry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metricsSink is an internal interface abstracting away the concrete
// backend (Prometheus vs noop). It is not exposed outside the package.
type metricsSink interface {
	hit()
	miss()
	registered()
	unregistered()
	collect()
	prunePass(demotions, collections int64)
	snapshotWrite()
}

type noopMetrics struct{}

func (noopMetrics) hit()                                   {}
func (noopMetrics) miss()                                   {}
func (noopMetrics) registered()                             {}
func (noopMetrics) unregistered()                           {}
func (noopMetrics) collect()                                {}
func (noopMetrics) prunePass(demotions, collections int64) {}
func (noopMetrics) snapshotWrite()                          {}

// gaugeSources supplies the live values the Prometheus GaugeFunc collectors
// read on every scrape. A Registry passes its own Len, strongPinnedCount,
// and pool.Len as these three functions once it exists; see newPromMetrics.
type gaugeSources struct {
	entries      func() int
	strongPinned func() int
	handlePool   func() int
}

type promMetrics struct {
	hits            prometheus.Counter
	misses          prometheus.Counter
	registrations   prometheus.Counter
	removals        prometheus.Counter
	prunePasses     prometheus.Counter
	demotions       prometheus.Counter
	collections     prometheus.Counter
	snapshotWrites  prometheus.Counter
	entriesGauge    prometheus.GaugeFunc
	strongGauge     prometheus.GaugeFunc
	handlePoolGauge prometheus.GaugeFunc
}

func newPromMetrics(reg *prometheus.Registry, src gaugeSources) *promMetrics {
	pm := &promMetrics{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "computeregistry",
			Name:      "hits_total",
			Help:      "Number of TryGet calls that returned a Consistent computation.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "computeregistry",
			Name:      "misses_total",
			Help:      "Number of TryGet calls that found nothing usable.",
		}),
		registrations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "computeregistry",
			Name:      "registrations_total",
			Help:      "Number of computations successfully installed via Register.",
		}),
		removals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "computeregistry",
			Name:      "unregistrations_total",
			Help:      "Number of computations removed via Unregister.",
		}),
		prunePasses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "computeregistry",
			Name:      "prune_passes_total",
			Help:      "Number of completed background prune sweeps.",
		}),
		demotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "computeregistry",
			Name:      "demotions_total",
			Help:      "Number of entries demoted from strong to weak reachability.",
		}),
		collections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "computeregistry",
			Name:      "collections_total",
			Help:      "Number of entries removed because their weak handle resolved to nil or their computation was Invalidated.",
		}),
		snapshotWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "computeregistry",
			Name:      "badger_snapshot_writes_total",
			Help:      "Number of stats snapshots appended to the badger-backed snapshot store.",
		}),
	}
	pm.entriesGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "computeregistry",
		Name:      "entries",
		Help:      "Current number of entries across all shards.",
	}, func() float64 { return float64(src.entries()) })
	pm.strongGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "computeregistry",
		Name:      "strong_pinned",
		Help:      "Current number of entries still holding a strong reference.",
	}, func() float64 { return float64(src.strongPinned()) })
	pm.handlePoolGauge = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "computeregistry",
		Name:      "handle_pool_size",
		Help:      "Current number of idle recycled handles held by the weak-handle pool.",
	}, func() float64 { return float64(src.handlePool()) })

	reg.MustRegister(
		pm.hits, pm.misses, pm.registrations, pm.removals, pm.prunePasses,
		pm.demotions, pm.collections, pm.snapshotWrites,
		pm.entriesGauge, pm.strongGauge, pm.handlePoolGauge,
	)
	return pm
}

func (m *promMetrics) hit()          { m.hits.Inc() }
func (m *promMetrics) miss()         { m.misses.Inc() }
func (m *promMetrics) registered()   { m.registrations.Inc() }
func (m *promMetrics) unregistered() { m.removals.Inc() }
func (m *promMetrics) collect()      { m.collections.Inc() }
func (m *promMetrics) snapshotWrite() { m.snapshotWrites.Inc() }
func (m *promMetrics) prunePass(demotions, collections int64) {
	m.prunePasses.Inc()
	m.demotions.Add(float64(demotions))
	m.collections.Add(float64(collections))
}

// newMetricsSink picks the implementation based on whether the caller
// opted into Prometheus via WithMetrics. src supplies the live gauge
// readings and is only consulted when reg is non-nil.
func newMetricsSink(reg *prometheus.Registry, src gaugeSources) metricsSink {
	if reg == nil {
		return noopMetrics{}
	}
	return newPromMetrics(reg, src)
}
