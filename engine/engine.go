package engine

import (
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/snowdag/snowdag/checkpoint"
	"github.com/snowdag/snowdag/core/conflicts"
	"github.com/snowdag/snowdag/core/dag"
	"github.com/snowdag/snowdag/core/finality"
	"github.com/snowdag/snowdag/core/order"
	"github.com/snowdag/snowdag/core/tippool"
	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/core/voting"
	"github.com/snowdag/snowdag/core/work_process"
	"github.com/snowdag/snowdag/core/work_process/events"
	"github.com/snowdag/snowdag/core/work_process/pruner"
	"github.com/snowdag/snowdag/global"
	"github.com/snowdag/snowdag/util/eventtype"
	"go.uber.org/atomic"
)

type (
	Environment interface {
		global.NodeGlobal
	}

	// Engine is the composition root of the consensus node. It owns the DAG,
	// the conflict registry, the finality state machine, the voting engine and
	// the background daemons, and exposes the external API: vertex delivery,
	// tip selection, finality queries, total order and checkpoints.
	//
	// The network is a collaborator, not a component: votes come in through the
	// PeerSampler, vertices through DeliverVertex
	Engine struct {
		Environment
		*dag.DAG

		registry *conflicts.Registry
		fsm      *finality.StateMachine
		voter    *voting.Engine
		tippool  *tippool.TipPool
		resolver *order.Resolver
		events   *events.Events

		deliveryQueue   *work_process.WorkProcess[DeliveryInput]
		checkpoints     *checkpoint.Store
		checkpointSeqNo atomic.Uint64
		cfg             ConfigParams

		// metrics
		admittedCounter   prometheus.Counter
		rejectedSigCount  prometheus.Counter
		rejectedStructure prometheus.Counter
	}

	// FinalityEvent is posted exactly once per vertex when it reaches a
	// terminal status
	FinalityEvent struct {
		VertexID vertex.ID
		Status   vertex.Status
	}

	// VertexStatus is the answer to a finality query
	VertexStatus struct {
		ID         vertex.ID
		Status     vertex.Status
		Confidence int
		NumRivals  int
	}
)

var EventFinality = eventtype.RegisterNew[*FinalityEvent]("finality")

const (
	Name     = "engine"
	TraceTag = Name
)

func New(env Environment, extractor conflicts.KeyExtractor, sampler voting.PeerSampler, params voting.Parameters, opts ...ConfigOption) *Engine {
	cfg := defaultConfigParams()
	for _, opt := range opts {
		opt(&cfg)
	}

	ret := &Engine{
		Environment: env,
		DAG:         dag.New(env),
		cfg:         cfg,
	}
	ret.registry = conflicts.New(ret, extractor)
	ret.fsm = finality.New(ret, params.Beta)
	ret.voter = voting.New(ret, ret.fsm, sampler, params)
	ret.tippool = tippool.New(ret)
	ret.resolver = order.New(ret)
	ret.events = events.New(env)

	if cfg.checkpointDir == "" {
		ret.checkpoints = checkpoint.NewStoreInMemory()
	} else {
		ret.checkpoints = checkpoint.MustOpenStoreOnDisk(cfg.checkpointDir)
	}

	ret.registerMetrics()
	cfg.log(ret.Log())
	return ret
}

// Start launches the background daemons and the delivery queue. The engine is
// functional without Start only for direct synchronous use in tests
func (e *Engine) Start() {
	e.Log().Infof("starting consensus engine...")

	e.startDeliveryProcess()
	if !e.cfg.doNotStartPruner {
		pruner.New(e, e.cfg.prunerRetention, e.cfg.prunerPeriod)
	}
	go func() {
		<-e.Ctx().Done()
		if err := e.checkpoints.Close(); err != nil {
			e.Log().Errorf("error closing checkpoint store: %v", err)
		}
	}()
}

// Rivals delegates conflict set membership to the registry. Part of the
// finality state machine's environment
func (e *Engine) Rivals(key string, id vertex.ID) []vertex.ID {
	return e.registry.Rivals(key, id)
}

// PostFinalityEvent fans a terminal status out to subscribed handlers
func (e *Engine) PostFinalityEvent(id vertex.ID, status vertex.Status) {
	e.events.PostEvent(EventFinality, &FinalityEvent{VertexID: id, Status: status})
}

// OnFinalized subscribes a handler for terminal statuses. Handlers run on the
// event hub goroutine, strictly in posting order
func (e *Engine) OnFinalized(fun func(ev *FinalityEvent)) {
	e.events.OnEvent(EventFinality, fun)
}

// admitVertex is the synchronous core of vertex delivery: classify, insert,
// register in the conflict set and start the sampling rounds
func (e *Engine) admitVertex(v *vertex.Vertex) (*vertex.WrappedVertex, error) {
	key := e.registry.Classify(v)
	vid, err := e.DAG.Admit(v, key)
	if err != nil {
		return nil, err
	}
	numMembers := e.registry.Register(key, vid.ID)
	if numMembers > 1 {
		e.Tracef(TraceTag, "%s enters contested conflict set '%s' (%d members)", vid.ID.StringShort, key, numMembers)
	}
	e.voter.StartVoting(vid)
	return vid, nil
}

// SubmitLocalVertex builds a vertex on top of locally selected tips and admits
// it. Used by the local application; remote vertices arrive via DeliverVertex
func (e *Engine) SubmitLocalVertex(payload []byte, numParents int) (*vertex.WrappedVertex, error) {
	parents := e.tippool.SelectTips(numParents)
	v := vertex.New(payload, parents, time.Now())
	return e.admitVertex(v)
}

// CurrentTips returns the frontier to attach new vertices to
func (e *Engine) CurrentTips() []vertex.ID {
	return e.DAG.Tips()
}

// SelectTips draws n attachment points uniformly from the frontier
func (e *Engine) SelectTips(n int) []vertex.ID {
	return e.tippool.SelectTips(n)
}

// SelectTipsWeighted draws n attachment points biased towards confirmed depth
func (e *Engine) SelectTipsWeighted(n int) []vertex.ID {
	return e.tippool.SelectTipsWeighted(n)
}

// FinalityStatus reports the consensus state of a vertex. Works for pruned
// vertices too: the structural record outlives the payload
func (e *Engine) FinalityStatus(id vertex.ID) (*VertexStatus, error) {
	vid, found := e.GetVertex(id)
	if !found {
		return nil, fmt.Errorf("%w: %s", dag.ErrNotFound, id.StringShort())
	}
	return &VertexStatus{
		ID:         id,
		Status:     vid.GetStatus(),
		Confidence: vid.Confidence(),
		NumRivals:  len(e.registry.Rivals(vid.ConflictKey(), id)),
	}, nil
}

// TotalOrder returns the deterministic linear extension of the finalized
// subgraph
func (e *Engine) TotalOrder() []vertex.ID {
	return e.resolver.TotalOrder()
}

// CreateCheckpoint commits to the current total order and persists the record
func (e *Engine) CreateCheckpoint() (*checkpoint.Checkpoint, error) {
	ordered := e.resolver.TotalOrder()
	c := checkpoint.New(e.checkpointSeqNo.Inc(), e.NumVertices(), ordered, e.finalizedFrontier())
	if err := e.checkpoints.Save(c); err != nil {
		return nil, err
	}
	e.Log().Infof("[%s] checkpoint #%d: %d finalized vertices", Name, c.SequenceNo, c.NumFinalized)
	return c, nil
}

// LatestCheckpoint returns the most recently persisted checkpoint, or
// checkpoint.ErrNotFound when none was created yet
func (e *Engine) LatestCheckpoint() (*checkpoint.Checkpoint, error) {
	return e.checkpoints.LoadLatest()
}

// finalizedFrontier returns finalized vertices with no finalized children:
// the surface a restoring node continues building from
func (e *Engine) finalizedFrontier() []vertex.ID {
	ret := make([]vertex.ID, 0)
	for _, vid := range e.Vertices() {
		if vid.GetStatus() != vertex.StatusFinal {
			continue
		}
		onFrontier := true
		for _, childID := range vid.Children() {
			child, found := e.GetVertex(childID)
			if found && child.GetStatus() == vertex.StatusFinal {
				onFrontier = false
				break
			}
		}
		if onFrontier {
			ret = append(ret, vid.ID)
		}
	}
	sort.Slice(ret, func(i, j int) bool {
		return vertex.Less(ret[i], ret[j])
	})
	return ret
}

func (e *Engine) NumByzantineVoters() int {
	return e.voter.NumByzantineVoters()
}

func (e *Engine) NumConflictSets() int {
	return e.registry.NumSets()
}
