package vertex

import (
	"errors"
	"sync"
	"time"

	"github.com/snowdag/snowdag/util"
	"github.com/snowdag/snowdag/util/lines"
	"github.com/snowdag/snowdag/util/set"
)

// ErrPayloadPruned is returned when the vertex body was discarded by the pruner.
// Distinct from "not found": the vertex itself is still known
var ErrPayloadPruned = errors.New("payload has been pruned")

// WrappedVertex is the in-memory record owned by the vertex store. It carries
// the immutable body plus all mutable consensus state of the vertex. All
// mutations go through the methods below; the embedded mutex linearizes
// status/confidence updates per vertex, so transitions of different vertices
// proceed fully in parallel
type WrappedVertex struct {
	ID ID

	mutex         sync.RWMutex
	vertex        *Vertex
	payloadPruned bool
	status        Status
	confidence    int
	lastPreferred bool
	conflictKey   string
	children      set.Set[ID]
	depth         int
	decidedWhen   time.Time
}

func Wrap(v *Vertex, conflictKey string, depth int) *WrappedVertex {
	return &WrappedVertex{
		ID:          v.ID,
		vertex:      v,
		status:      StatusUnqueried,
		conflictKey: conflictKey,
		children:    set.New[ID](),
		depth:       depth,
	}
}

func (vid *WrappedVertex) GetStatus() Status {
	vid.mutex.RLock()
	defer vid.mutex.RUnlock()

	return vid.status
}

// MustTransition moves the vertex along one of the allowed edges of the state
// machine. Changing a terminal status is an internal inconsistency and panics
func (vid *WrappedVertex) MustTransition(to Status) {
	vid.mutex.Lock()
	defer vid.mutex.Unlock()

	util.Assertf(validTransition(vid.status, to), "invalid status transition %s -> %s of %s",
		vid.status.String(), to.String(), vid.ID.StringShort())
	vid.status = to
	if to.Terminal() {
		vid.decidedWhen = time.Now()
	}
}

// TransitionIfPossible is MustTransition for callers racing with finalization:
// returns false instead of panicking when the vertex already reached a
// terminal status
func (vid *WrappedVertex) TransitionIfPossible(to Status) bool {
	vid.mutex.Lock()
	defer vid.mutex.Unlock()

	if !validTransition(vid.status, to) {
		return false
	}
	vid.status = to
	if to.Terminal() {
		vid.decidedWhen = time.Now()
	}
	return true
}

// RecordPreferred updates the consecutive-success counter after a round in
// which the vertex was the network's preferred choice. The increment chains
// only if the immediately preceding round was also preferred
func (vid *WrappedVertex) RecordPreferred() int {
	vid.mutex.Lock()
	defer vid.mutex.Unlock()

	if vid.lastPreferred {
		vid.confidence++
	} else {
		vid.confidence = 1
	}
	vid.lastPreferred = true
	return vid.confidence
}

// RecordNotPreferred breaks the chain and zeroes the counter
func (vid *WrappedVertex) RecordNotPreferred() {
	vid.mutex.Lock()
	defer vid.mutex.Unlock()

	vid.confidence = 0
	vid.lastPreferred = false
}

func (vid *WrappedVertex) Confidence() int {
	vid.mutex.RLock()
	defer vid.mutex.RUnlock()

	return vid.confidence
}

func (vid *WrappedVertex) ConflictKey() string {
	return vid.conflictKey
}

func (vid *WrappedVertex) Depth() int {
	return vid.depth
}

func (vid *WrappedVertex) Timestamp() time.Time {
	return vid.vertex.Timestamp
}

// DecidedWhen is the wall-clock time of the terminal transition, Final or
// Rejected. Zero while the vertex is still undecided
func (vid *WrappedVertex) DecidedWhen() time.Time {
	vid.mutex.RLock()
	defer vid.mutex.RUnlock()

	return vid.decidedWhen
}

// Parents always available, also after payload pruning
func (vid *WrappedVertex) Parents() []ID {
	return vid.vertex.Parents
}

// Payload returns the body bytes or ErrPayloadPruned after the pruner
// discarded them
func (vid *WrappedVertex) Payload() ([]byte, error) {
	vid.mutex.RLock()
	defer vid.mutex.RUnlock()

	if vid.payloadPruned {
		return nil, ErrPayloadPruned
	}
	return vid.vertex.Payload, nil
}

// PrunePayload drops the body bytes, keeping ID, parent set and status.
// Idempotent. Returns how many bytes were released
func (vid *WrappedVertex) PrunePayload() int {
	vid.mutex.Lock()
	defer vid.mutex.Unlock()

	if vid.payloadPruned {
		return 0
	}
	ret := len(vid.vertex.Payload)
	vid.vertex.Payload = nil
	vid.payloadPruned = true
	return ret
}

func (vid *WrappedVertex) IsPayloadPruned() bool {
	vid.mutex.RLock()
	defer vid.mutex.RUnlock()

	return vid.payloadPruned
}

// AddChild registers a new child. Returns whether the vertex was a tip until
// now, i.e. this is its first child
func (vid *WrappedVertex) AddChild(childID ID) (wasTip bool) {
	vid.mutex.Lock()
	defer vid.mutex.Unlock()

	wasTip = len(vid.children) == 0
	vid.children.Insert(childID)
	return
}

func (vid *WrappedVertex) NumChildren() int {
	vid.mutex.RLock()
	defer vid.mutex.RUnlock()

	return len(vid.children)
}

func (vid *WrappedVertex) Children() []ID {
	vid.mutex.RLock()
	defer vid.mutex.RUnlock()

	return vid.children.Ordered(Less)
}

func (vid *WrappedVertex) Lines(prefix ...string) *lines.Lines {
	vid.mutex.RLock()
	defer vid.mutex.RUnlock()

	ret := lines.New(prefix...)
	ret.Add("%s status: %s, confidence: %d, children: %d, depth: %d",
		vid.ID.StringShort(), vid.status.String(), vid.confidence, len(vid.children), vid.depth)
	return ret
}
