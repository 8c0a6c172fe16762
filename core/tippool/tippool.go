package tippool

import (
	"math/rand"
	"sync"
	"time"

	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/global"
)

type (
	Environment interface {
		global.NodeGlobal
		Tips() []vertex.ID
		GetVertex(id vertex.ID) (*vertex.WrappedVertex, bool)
	}

	// TipPool selects attachment points for new vertices from the current
	// frontier. The tip set itself is derived state owned by the DAG; the pool
	// only samples it
	TipPool struct {
		Environment

		rndMutex sync.Mutex
		rnd      *rand.Rand
	}
)

const TraceTag = "tippool"

func New(env Environment) *TipPool {
	return &TipPool{
		Environment: env,
		rnd:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SelectTips draws up to n distinct tips uniformly at random from the live
// tip set. Fewer than n are returned when the frontier is smaller
func (tp *TipPool) SelectTips(n int) []vertex.ID {
	return tp.sample(tp.Tips(), n, nil)
}

// SelectTipsWithConstraint filters candidates by the supplied predicate before
// sampling, e.g. "only tips referencing an accepted checkpoint"
func (tp *TipPool) SelectTipsWithConstraint(n int, constraint func(id vertex.ID) bool) []vertex.ID {
	candidates := make([]vertex.ID, 0)
	for _, id := range tp.Tips() {
		if constraint(id) {
			candidates = append(candidates, id)
		}
	}
	return tp.sample(candidates, n, nil)
}

// SelectTipsWeighted biases selection toward tips with higher accumulated
// confidence and depth. Deep, heavily confirmed branches attract new children,
// which accelerates convergence and starves orphaned branches
func (tp *TipPool) SelectTipsWeighted(n int) []vertex.ID {
	return tp.sample(tp.Tips(), n, func(id vertex.ID) int {
		vid, found := tp.GetVertex(id)
		if !found {
			return 1
		}
		return 1 + vid.Confidence() + vid.Depth()
	})
}

// sample picks up to n distinct elements; with nil weight the choice is
// uniform, otherwise proportional to weight
func (tp *TipPool) sample(candidates []vertex.ID, n int, weight func(id vertex.ID) int) []vertex.ID {
	tp.rndMutex.Lock()
	defer tp.rndMutex.Unlock()

	if n >= len(candidates) {
		ret := make([]vertex.ID, len(candidates))
		copy(ret, candidates)
		return ret
	}

	pool := make([]vertex.ID, len(candidates))
	copy(pool, candidates)
	ret := make([]vertex.ID, 0, n)

	for len(ret) < n && len(pool) > 0 {
		idx := 0
		if weight == nil {
			idx = tp.rnd.Intn(len(pool))
		} else {
			total := 0
			for _, id := range pool {
				total += weight(id)
			}
			target := tp.rnd.Intn(total)
			acc := 0
			for i, id := range pool {
				acc += weight(id)
				if acc > target {
					idx = i
					break
				}
			}
		}
		ret = append(ret, pool[idx])
		pool[idx] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
	}
	return ret
}
