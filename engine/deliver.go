package engine

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/snowdag/snowdag/core/dag"
	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/core/work_process"
)

// DeliveryInput is one vertex handed over by the network layer. SigValid
// carries the outcome of signature verification, which happens outside the
// consensus core
type DeliveryInput struct {
	Vertex   *vertex.Vertex
	SigValid bool
}

var ErrInvalidSignature = errors.New("vertex signature invalid")

const deliveryQueueName = "delivery"

func (e *Engine) startDeliveryProcess() {
	e.deliveryQueue = work_process.New[DeliveryInput](e.Environment, deliveryQueueName, e.consumeDelivery)
	e.deliveryQueue.Start()
}

// DeliverVertex enqueues a remote vertex for admission. Non-blocking; the
// admission outcome is observable through FinalityStatus and the finality
// events. Invalid and structurally rejected vertices are dropped without
// leaving a trace in the store
func (e *Engine) DeliverVertex(payload []byte, parents []vertex.ID, sigValid bool) vertex.ID {
	v := vertex.New(payload, parents, time.Now())
	e.deliveryQueue.Push(DeliveryInput{Vertex: v, SigValid: sigValid})
	return v.ID
}

// AdmitVertex is the synchronous variant of delivery, used by tests and by
// embedders which do their own queueing
func (e *Engine) AdmitVertex(v *vertex.Vertex, sigValid bool) (*vertex.WrappedVertex, error) {
	if !sigValid {
		e.rejectedSigCount.Inc()
		return nil, ErrInvalidSignature
	}
	vid, err := e.admitVertex(v)
	if err != nil {
		e.rejectedStructure.Inc()
		return nil, err
	}
	e.admittedCounter.Inc()
	return vid, nil
}

func (e *Engine) consumeDelivery(inp DeliveryInput) {
	_, err := e.AdmitVertex(inp.Vertex, inp.SigValid)
	switch {
	case err == nil:
		e.Tracef(TraceTag, "delivered %s", inp.Vertex.ID.StringShort)
	case errors.Is(err, dag.ErrDuplicateVertex):
		// replays are frequent in gossip, not worth a warning
		e.Tracef(TraceTag, "dropped %s: %v", inp.Vertex.ID.StringShort, err)
	default:
		e.Log().Warnf("[%s] dropped %s: %v", Name, inp.Vertex.ID.StringShort(), err)
	}
}

func (e *Engine) registerMetrics() {
	e.admittedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snowdag_engine_admitted_total",
		Help: "number of vertices admitted to the DAG",
	})
	e.rejectedSigCount = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snowdag_engine_rejected_signature_total",
		Help: "number of vertices dropped for invalid signature",
	})
	e.rejectedStructure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "snowdag_engine_rejected_structural_total",
		Help: "number of vertices dropped for structural violations",
	})
	e.MetricsRegistry().MustRegister(e.admittedCounter, e.rejectedSigCount, e.rejectedStructure)
}
