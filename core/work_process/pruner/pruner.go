package pruner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/global"
)

type (
	environment interface {
		global.NodeGlobal
		Vertices(filterByID ...func(id vertex.ID) bool) []*vertex.WrappedVertex
		NumVertices() int
		NumFinalized() int
	}

	// Pruner periodically drops payload bytes of decided vertices once they are
	// older than the retention window. The structural record (ID, parents,
	// status) is never removed: late queries must still be able to prove how a
	// vertex was decided
	Pruner struct {
		environment

		retention time.Duration
		period    time.Duration

		// metrics
		numVerticesGauge  prometheus.Gauge
		numFinalizedGauge prometheus.Gauge
		prunedBytesGauge  prometheus.Gauge
		prunedBytesTotal  int
		numVerticesPrev   int
	}
)

const (
	Name     = "pruner"
	TraceTag = Name

	DefaultRetention = 10 * time.Minute
	DefaultPeriod    = 30 * time.Second
)

func New(env environment, retention, period time.Duration) *Pruner {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	ret := &Pruner{
		environment: env,
		retention:   retention,
		period:      period,
	}
	ret.registerMetrics()

	ret.RepeatInBackground(Name, period, func() bool {
		ret.doPrune()
		ret.updateMetrics()
		return true
	}, true)

	return ret
}

// pruneVertices prunes payloads of terminal vertices decided before the
// retention horizon. Returns number of payloads pruned and bytes reclaimed
func (p *Pruner) pruneVertices() (prunedCount, prunedBytes int) {
	horizon := time.Now().Add(-p.retention)

	for _, vid := range p.Vertices() {
		if !vid.GetStatus().Terminal() || vid.IsPayloadPruned() {
			continue
		}
		if vid.DecidedWhen().After(horizon) {
			continue
		}
		nBytes := vid.PrunePayload()
		prunedCount++
		prunedBytes += nBytes
		p.Tracef(TraceTag, "pruned payload of %s (%d bytes)", vid.ID.StringShort, nBytes)
	}
	return
}

func (p *Pruner) doPrune() {
	start := time.Now()

	nPruned, nBytes := p.pruneVertices()
	p.prunedBytesTotal += nBytes

	n := p.NumVertices()
	p.Log().Infof("[%s] vertices: %d(%+d), finalized: %d, payloads pruned: %d, bytes reclaimed: %d (%v)",
		Name, n, n-p.numVerticesPrev, p.NumFinalized(), nPruned, nBytes, time.Since(start))
	p.numVerticesPrev = n
}

func (p *Pruner) registerMetrics() {
	p.numVerticesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "snowdag_dag_vertices",
		Help: "number of vertices in the DAG",
	})
	p.numFinalizedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "snowdag_dag_finalized",
		Help: "number of finalized vertices in the DAG",
	})
	p.prunedBytesGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "snowdag_pruner_reclaimed_bytes",
		Help: "payload bytes reclaimed by the pruner since start",
	})
	p.MetricsRegistry().MustRegister(p.numVerticesGauge, p.numFinalizedGauge, p.prunedBytesGauge)
}

func (p *Pruner) updateMetrics() {
	p.numVerticesGauge.Set(float64(p.NumVertices()))
	p.numFinalizedGauge.Set(float64(p.NumFinalized()))
	p.prunedBytesGauge.Set(float64(p.prunedBytesTotal))
}
