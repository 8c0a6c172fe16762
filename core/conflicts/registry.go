package conflicts

import (
	"sync"

	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/global"
	"github.com/snowdag/snowdag/util/set"
)

type (
	// KeyExtractor derives the conflict key from the opaque payload. Two
	// vertices with equal non-empty keys are mutually exclusive: at most one of
	// them can ever finalize. The consensus core stays ignorant of payload
	// semantics; the application plugs the extraction rule in here
	KeyExtractor interface {
		ConflictKey(payload []byte) string
	}

	ExtractorFunc func(payload []byte) string

	Environment interface {
		global.NodeGlobal
		GetVertex(id vertex.ID) (*vertex.WrappedVertex, bool)
	}

	conflictSet struct {
		mutex   sync.RWMutex
		members set.Set[vertex.ID]
	}

	// Registry maps conflict key -> set of vertex IDs claiming that key.
	// It holds back-references only, never vertex bodies. Per-set locking keeps
	// membership mutation synchronized with preference computation for the same
	// set while different sets proceed in parallel
	Registry struct {
		Environment

		extractor KeyExtractor
		mutex     sync.RWMutex
		sets      map[string]*conflictSet
	}
)

const TraceTag = "conflicts"

func (f ExtractorFunc) ConflictKey(payload []byte) string {
	return f(payload)
}

func New(env Environment, extractor KeyExtractor) *Registry {
	return &Registry{
		Environment: env,
		extractor:   extractor,
		sets:        make(map[string]*conflictSet),
	}
}

// Classify computes the conflict set ID of the vertex. Idempotent. A vertex
// with an empty application key conflicts with nothing and forms a singleton
// set keyed by its own ID
func (r *Registry) Classify(v *vertex.Vertex) string {
	key := r.extractor.ConflictKey(v.Payload)
	if key == "" {
		return "id:" + v.ID.String()
	}
	return key
}

// Register adds the vertex to its conflict set, creating the set if new.
// Returns the number of members after insertion
func (r *Registry) Register(key string, id vertex.ID) int {
	cs := r.getOrCreateSet(key)

	cs.mutex.Lock()
	defer cs.mutex.Unlock()

	cs.members.Insert(id)
	if len(cs.members) > 1 {
		r.Tracef(TraceTag, "conflict detected: %s joins set '%s' with %d members",
			id.StringShort, key, len(cs.members))
	}
	return len(cs.members)
}

func (r *Registry) getOrCreateSet(key string) *conflictSet {
	r.mutex.RLock()
	cs, found := r.sets[key]
	r.mutex.RUnlock()
	if found {
		return cs
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	if cs, found = r.sets[key]; !found {
		cs = &conflictSet{members: set.New[vertex.ID]()}
		r.sets[key] = cs
	}
	return cs
}

// Members point-in-time snapshot, ordered by ID
func (r *Registry) Members(key string) []vertex.ID {
	r.mutex.RLock()
	cs, found := r.sets[key]
	r.mutex.RUnlock()
	if !found {
		return nil
	}

	cs.mutex.RLock()
	defer cs.mutex.RUnlock()

	return cs.members.Ordered(vertex.Less)
}

// Rivals of the vertex: the other members of its conflict set
func (r *Registry) Rivals(key string, id vertex.ID) []vertex.ID {
	ret := make([]vertex.ID, 0)
	for _, member := range r.Members(key) {
		if member != id {
			ret = append(ret, member)
		}
	}
	return ret
}

// Preferred returns the member currently favored: the live (non-rejected) one
// with the highest accumulated confidence. Ties are broken by lower vertex ID
// so all honest nodes agree on the same preference
func (r *Registry) Preferred(key string) (ret vertex.ID, found bool) {
	bestConfidence := -1
	for _, member := range r.Members(key) {
		vid, exists := r.GetVertex(member)
		if !exists || vid.GetStatus() == vertex.StatusRejected {
			continue
		}
		c := vid.Confidence()
		if c > bestConfidence || (c == bestConfidence && vertex.Less(member, ret)) {
			ret = member
			bestConfidence = c
			found = true
		}
	}
	return
}

// IsPreferred returns whether the vertex is its conflict set's current choice
func (r *Registry) IsPreferred(key string, id vertex.ID) bool {
	preferred, found := r.Preferred(key)
	return found && preferred == id
}

func (r *Registry) NumSets() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.sets)
}
