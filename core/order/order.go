package order

import (
	"container/heap"

	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/global"
)

type (
	Environment interface {
		global.NodeGlobal
		Vertices(filterByID ...func(id vertex.ID) bool) []*vertex.WrappedVertex
		GetVertex(id vertex.ID) (*vertex.WrappedVertex, bool)
	}

	// Resolver computes the deterministic linear extension of the finalized
	// subgraph: a topological sort where, among vertices with no unscheduled
	// finalized ancestors, the smallest ID goes first. Any two honest nodes
	// with the same finalized set produce the identical sequence; timestamps
	// are deliberately not consulted because an adversary controls them
	Resolver struct {
		Environment
	}
)

func New(env Environment) *Resolver {
	return &Resolver{Environment: env}
}

// TotalOrder returns every FINAL vertex exactly once; each finalized parent
// appears strictly before its finalized children. An empty DAG or a DAG
// without finalized vertices yields an empty sequence, never an error
func (r *Resolver) TotalOrder() []vertex.ID {
	finalized := r.Vertices(func(id vertex.ID) bool {
		vid, found := r.GetVertex(id)
		return found && vid.GetStatus() == vertex.StatusFinal
	})
	if len(finalized) == 0 {
		return []vertex.ID{}
	}

	inFinalSet := make(map[vertex.ID]struct{}, len(finalized))
	for _, vid := range finalized {
		inFinalSet[vid.ID] = struct{}{}
	}

	// count only edges internal to the finalized set: a finalized child of a
	// still-pending parent must not wait for it
	pendingParents := make(map[vertex.ID]int, len(finalized))
	childrenOf := make(map[vertex.ID][]vertex.ID, len(finalized))
	for _, vid := range finalized {
		n := 0
		for _, parentID := range vid.Parents() {
			if _, isFinal := inFinalSet[parentID]; isFinal {
				n++
				childrenOf[parentID] = append(childrenOf[parentID], vid.ID)
			}
		}
		pendingParents[vid.ID] = n
	}

	ready := &idHeap{}
	heap.Init(ready)
	for id, n := range pendingParents {
		if n == 0 {
			heap.Push(ready, id)
		}
	}

	ret := make([]vertex.ID, 0, len(finalized))
	for ready.Len() > 0 {
		next := heap.Pop(ready).(vertex.ID)
		ret = append(ret, next)
		for _, childID := range childrenOf[next] {
			pendingParents[childID]--
			if pendingParents[childID] == 0 {
				heap.Push(ready, childID)
			}
		}
	}
	return ret
}

// idHeap is a min-heap over vertex IDs in the canonical byte order
type idHeap []vertex.ID

func (h idHeap) Len() int            { return len(h) }
func (h idHeap) Less(i, j int) bool  { return vertex.Less(h[i], h[j]) }
func (h idHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *idHeap) Push(x interface{}) { *h = append(*h, x.(vertex.ID)) }
func (h *idHeap) Pop() interface{} {
	old := *h
	n := len(old)
	ret := old[n-1]
	*h = old[:n-1]
	return ret
}
