package voting

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/snowdag/snowdag/core/finality"
	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/global"
	"github.com/snowdag/snowdag/util/workerpool"
)

type (
	// PeerSampler is the network collaborator: ask up to k randomly chosen
	// peers whether they prefer the vertex over its conflict-set rivals.
	// The call must respect the context deadline; peers that did not answer in
	// time are reported as abstaining. Peer selection itself is outside the
	// consensus core
	PeerSampler interface {
		RequestVotes(ctx context.Context, id vertex.ID, k int) []PeerVote
	}

	Environment interface {
		global.NodeGlobal
		GetVertex(id vertex.ID) (*vertex.WrappedVertex, bool)
	}

	// Engine runs repeated-sampling rounds for every pending vertex. Each
	// vertex gets its own round loop on a bounded worker pool; no lock is held
	// while a poll is in flight, so many vertices are sampled concurrently
	Engine struct {
		Environment

		params  Parameters
		sampler PeerSampler
		fsm     *finality.StateMachine
		ledger  *voteLedger
		pool    workerpool.WorkerPool

		// metrics
		roundCounter     prometheus.Counter
		finalizedCounter prometheus.Counter
		rejectedCounter  prometheus.Counter
		stuckCounter     prometheus.Counter
		byzantineGauge   prometheus.Gauge
		latencyHistogram prometheus.Histogram
	}
)

const (
	Name     = "voting"
	TraceTag = Name
)

func New(env Environment, fsm *finality.StateMachine, sampler PeerSampler, params Parameters) *Engine {
	ret := &Engine{
		Environment: env,
		params:      params,
		sampler:     sampler,
		fsm:         fsm,
		ledger:      newVoteLedger(),
		pool:        workerpool.NewWorkerPool(params.MaxParallelPolls),
	}
	ret.registerMetrics()
	ret.Log().Infof("[%s] started with parameters:\n%s", Name, params.Lines("      ").String())
	return ret
}

// StartVoting schedules the sampling round loop for a newly admitted vertex.
// Returns immediately; the loop runs on the worker pool
func (e *Engine) StartVoting(vid *vertex.WrappedVertex) {
	e.pool.Work(func() {
		e.voteLoop(vid)
	})
}

// voteLoop drives one vertex from Pending to a terminal status. A round with
// too few responses is a quorum failure: it is retried (bounded) instead of
// being scored, which preserves liveness across transient partitions. When
// retries or rounds are exhausted the vertex simply stays Pending: reported,
// never silently decided
func (e *Engine) voteLoop(vid *vertex.WrappedVertex) {
	e.fsm.MarkQueried(vid)
	started := time.Now()

	quorumRetries := 0
	for round := 1; round <= e.params.MaxRounds; round++ {
		select {
		case <-e.Ctx().Done():
			return
		default:
		}

		tally := e.pollOnce(vid, round)
		if tally.Responded() < e.params.MinResponses {
			quorumRetries++
			// the failed poll is wiped from the ledger: the retry must count
			// every responder again, and a peer changing its answer between
			// the attempts is not an equivocator
			e.ledger.clearRound(vid.ID, round)
			e.Tracef(TraceTag, "%s round %d: quorum failure (%d responses), retry %d/%d",
				vid.ID.StringShort, round, tally.Responded(), quorumRetries, e.params.MaxQuorumRetries)
			if quorumRetries > e.params.MaxQuorumRetries {
				e.Log().Warnf("[%s] %s stays PENDING: no quorum after %d retries", Name, vid.ID.StringShort(), quorumRetries-1)
				e.stuckCounter.Inc()
				e.ledger.purgeVertex(vid.ID)
				return
			}
			round--
			continue
		}
		quorumRetries = 0

		preferred := tally.YesFraction() >= e.params.Alpha
		e.roundCounter.Inc()
		e.Tracef(TraceTag, "%s round %d: %d yes / %d no / %d abstain -> preferred=%v",
			vid.ID.StringShort, round, tally.Yes, tally.No, tally.Abstain, preferred)

		status := e.fsm.ApplyRoundOutcome(vid, preferred)
		if status.Terminal() {
			switch status {
			case vertex.StatusFinal:
				e.finalizedCounter.Inc()
				e.latencyHistogram.Observe(time.Since(started).Seconds())
			case vertex.StatusRejected:
				e.rejectedCounter.Inc()
			}
			e.ledger.purgeVertex(vid.ID)
			return
		}
	}
	e.Log().Warnf("[%s] %s stays PENDING: %d rounds exhausted without decision", Name, vid.ID.StringShort(), e.params.MaxRounds)
	e.stuckCounter.Inc()
	e.ledger.purgeVertex(vid.ID)
}

func (e *Engine) pollOnce(vid *vertex.WrappedVertex, round int) RoundTally {
	ctx, cancel := context.WithTimeout(e.Ctx(), e.params.RoundTimeout)
	defer cancel()

	responses := e.sampler.RequestVotes(ctx, vid.ID, e.params.K)
	tally, newByzantine := e.ledger.tallyRound(vid.ID, round, responses)
	for _, peer := range newByzantine {
		e.Log().Warnf("[%s] byzantine voter detected: '%s' equivocated on %s", Name, peer, vid.ID.StringShort())
	}
	if len(newByzantine) > 0 {
		e.byzantineGauge.Set(float64(e.ledger.numByzantine()))
	}
	return tally
}

func (e *Engine) NumByzantineVoters() int {
	return e.ledger.numByzantine()
}

func (e *Engine) registerMetrics() {
	e.roundCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snowdag_voting_rounds_total",
		Help: "number of scored sampling rounds",
	})
	e.finalizedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snowdag_voting_finalized_total",
		Help: "number of vertices which reached FINAL",
	})
	e.rejectedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snowdag_voting_rejected_total",
		Help: "number of vertices rejected in conflict resolution",
	})
	e.stuckCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snowdag_voting_stuck_pending_total",
		Help: "number of vertices left PENDING after exhausting retries or rounds",
	})
	e.byzantineGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "snowdag_voting_byzantine_voters",
		Help: "number of peers flagged for equivocating votes",
	})
	e.latencyHistogram = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "snowdag_finality_latency_seconds",
		Help:    "time from first sampling round to FINAL",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})
	e.MetricsRegistry().MustRegister(e.roundCounter, e.finalizedCounter, e.rejectedCounter,
		e.stuckCounter, e.byzantineGauge, e.latencyHistogram)
}
