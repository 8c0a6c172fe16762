package dag

import (
	"errors"
	"fmt"
	"sync"

	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/global"
	"github.com/snowdag/snowdag/util"
	"github.com/snowdag/snowdag/util/set"
	"golang.org/x/exp/maps"
)

var (
	// structural rejections. Permanent: the vertex is never stored
	ErrDuplicateVertex = errors.New("duplicate vertex ID")
	ErrParentNotFound  = errors.New("parent not found")
	ErrSelfReference   = errors.New("vertex references itself as parent")
	// the ID was never admitted
	ErrNotFound = errors.New("vertex not found")
)

type (
	Environment interface {
		global.NodeGlobal
	}

	// DAG is the global map of all vertices. The parent relation is acyclic by
	// construction: a vertex is only admitted when all its parents are already
	// present, so no vertex can ever name a descendant. Admit is the single
	// linearization point for the structural invariants (adjacency and tip set);
	// all per-vertex consensus state lives inside WrappedVertex and is
	// synchronized there
	DAG struct {
		Environment

		mutex    sync.RWMutex
		vertices map[vertex.ID]*vertex.WrappedVertex
		tips     set.Set[vertex.ID]
	}
)

const TraceTag = "dag"

func New(env Environment) *DAG {
	return &DAG{
		Environment: env,
		vertices:    make(map[vertex.ID]*vertex.WrappedVertex),
		tips:        set.New[vertex.ID](),
	}
}

// Admit validates the structural invariants and inserts the vertex:
//   - the ID must not be present yet (duplicate or Byzantine replay)
//   - the vertex must not name itself as a parent
//   - every declared parent must already be in the store (no forward references)
//
// On success the parent adjacency and the tip set are updated atomically with
// the insertion: each parent stops being a tip the instant the new vertex is
// recorded as its child
func (d *DAG) Admit(v *vertex.Vertex, conflictKey string) (*vertex.WrappedVertex, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()

	if _, already := d.vertices[v.ID]; already {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateVertex, v.ID.StringShort())
	}
	depth := 0
	for _, parentID := range v.Parents {
		if parentID == v.ID {
			return nil, fmt.Errorf("%w: %s", ErrSelfReference, v.ID.StringShort())
		}
		parent, found := d.vertices[parentID]
		if !found {
			return nil, fmt.Errorf("%w: %s of %s", ErrParentNotFound, parentID.StringShort(), v.ID.StringShort())
		}
		if parent.Depth()+1 > depth {
			depth = parent.Depth() + 1
		}
	}

	vid := vertex.Wrap(v, conflictKey, depth)
	d.vertices[v.ID] = vid

	for _, parentID := range v.Parents {
		d.vertices[parentID].AddChild(v.ID)
		d.tips.Remove(parentID)
	}
	d.tips.Insert(v.ID)

	d.Tracef(TraceTag, "admitted %s, parents: %d, depth: %d", v.ID.StringShort, len(v.Parents), depth)
	return vid, nil
}

func (d *DAG) GetVertex(id vertex.ID) (*vertex.WrappedVertex, bool) {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	vid, found := d.vertices[id]
	return vid, found
}

func (d *DAG) MustGetVertex(id vertex.ID) *vertex.WrappedVertex {
	vid, found := d.GetVertex(id)
	util.Assertf(found, "MustGetVertex: %s not in the DAG", id.StringShort())
	return vid
}

func (d *DAG) NumVertices() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return len(d.vertices)
}

// Tips returns a point-in-time snapshot of the tip set, ordered by ID.
// A vertex is a tip iff it has zero recorded children at that moment
func (d *DAG) Tips() []vertex.ID {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return d.tips.Ordered(vertex.Less)
}

func (d *DAG) NumTips() int {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	return len(d.tips)
}

// Vertices snapshot of all vertex records, to avoid holding the global lock
// while traversing
func (d *DAG) Vertices(filterByID ...func(id vertex.ID) bool) []*vertex.WrappedVertex {
	d.mutex.RLock()
	defer d.mutex.RUnlock()

	if len(filterByID) == 0 {
		return maps.Values(d.vertices)
	}
	return util.ValuesFiltered(d.vertices, func(vid *vertex.WrappedVertex) bool {
		return filterByID[0](vid.ID)
	})
}
