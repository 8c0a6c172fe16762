package finality

import (
	"sync"
	"testing"
	"time"

	"github.com/snowdag/snowdag/core/conflicts"
	"github.com/snowdag/snowdag/core/dag"
	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/global"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	global.NodeGlobal
	*dag.DAG
	registry *conflicts.Registry

	mutex  sync.Mutex
	events map[vertex.ID]vertex.Status
}

func (env *testEnv) Rivals(key string, id vertex.ID) []vertex.ID {
	return env.registry.Rivals(key, id)
}

func (env *testEnv) PostFinalityEvent(id vertex.ID, status vertex.Status) {
	env.mutex.Lock()
	defer env.mutex.Unlock()

	_, already := env.events[id]
	if already {
		panic("duplicate finality event")
	}
	env.events[id] = status
}

func (env *testEnv) eventFor(id vertex.ID) (vertex.Status, bool) {
	env.mutex.Lock()
	defer env.mutex.Unlock()

	status, found := env.events[id]
	return status, found
}

func newTestFSM(beta int) (*StateMachine, *testEnv) {
	g := global.New()
	env := &testEnv{
		NodeGlobal: g,
		DAG:        dag.New(g),
		events:     make(map[vertex.ID]vertex.Status),
	}
	env.registry = conflicts.New(env, conflicts.ExtractorFunc(func(payload []byte) string {
		return "" // conflicts are set up explicitly in the tests
	}))
	fsm := New(env, beta)
	return fsm, env
}

func admitWithKey(t *testing.T, env *testEnv, payload, key string) *vertex.WrappedVertex {
	v := vertex.New([]byte(payload), nil, time.Now())
	vid, err := env.Admit(v, key)
	require.NoError(t, err)
	env.registry.Register(key, vid.ID)
	return vid
}

func TestMarkQueried(t *testing.T) {
	fsm, env := newTestFSM(3)
	vid := admitWithKey(t, env, "v", "k1")

	fsm.MarkQueried(vid)
	require.EqualValues(t, vertex.StatusPending, vid.GetStatus())

	// idempotent, also after later transitions
	fsm.MarkQueried(vid)
	require.EqualValues(t, vertex.StatusPending, vid.GetStatus())
}

func TestFinalization(t *testing.T) {
	t.Run("beta consecutive rounds finalize", func(t *testing.T) {
		const beta = 3
		fsm, env := newTestFSM(beta)
		vid := admitWithKey(t, env, "v", "k1")
		fsm.MarkQueried(vid)

		require.EqualValues(t, vertex.StatusPending, fsm.ApplyRoundOutcome(vid, true))
		require.EqualValues(t, vertex.StatusPending, fsm.ApplyRoundOutcome(vid, true))
		require.EqualValues(t, vertex.StatusFinal, fsm.ApplyRoundOutcome(vid, true))

		status, found := env.eventFor(vid.ID)
		require.True(t, found)
		require.EqualValues(t, vertex.StatusFinal, status)
	})
	t.Run("broken chain delays finality", func(t *testing.T) {
		const beta = 3
		fsm, env := newTestFSM(beta)
		vid := admitWithKey(t, env, "v", "k1")
		fsm.MarkQueried(vid)

		fsm.ApplyRoundOutcome(vid, true)
		fsm.ApplyRoundOutcome(vid, true)
		fsm.ApplyRoundOutcome(vid, false)
		require.EqualValues(t, 0, vid.Confidence())

		// the counter restarts, two more rounds are not enough
		fsm.ApplyRoundOutcome(vid, true)
		require.EqualValues(t, vertex.StatusPending, fsm.ApplyRoundOutcome(vid, true))
		require.EqualValues(t, vertex.StatusFinal, fsm.ApplyRoundOutcome(vid, true))
	})
	t.Run("outcomes after decision are discarded", func(t *testing.T) {
		fsm, env := newTestFSM(1)
		vid := admitWithKey(t, env, "v", "k1")
		fsm.MarkQueried(vid)

		require.EqualValues(t, vertex.StatusFinal, fsm.ApplyRoundOutcome(vid, true))
		require.EqualValues(t, vertex.StatusFinal, fsm.ApplyRoundOutcome(vid, false))
		require.EqualValues(t, vertex.StatusFinal, vid.GetStatus())
	})
}

func TestConflictResolution(t *testing.T) {
	t.Run("winner rejects rivals", func(t *testing.T) {
		const beta = 2
		fsm, env := newTestFSM(beta)
		x := admitWithKey(t, env, "spend=x", "utxo1")
		y := admitWithKey(t, env, "spend=y", "utxo1")
		fsm.MarkQueried(x)
		fsm.MarkQueried(y)

		fsm.ApplyRoundOutcome(x, true)
		require.EqualValues(t, vertex.StatusFinal, fsm.ApplyRoundOutcome(x, true))
		require.EqualValues(t, vertex.StatusRejected, y.GetStatus())

		status, found := env.eventFor(y.ID)
		require.True(t, found)
		require.EqualValues(t, vertex.StatusRejected, status)
	})
	t.Run("rejection is permanent", func(t *testing.T) {
		const beta = 2
		fsm, env := newTestFSM(beta)
		x := admitWithKey(t, env, "spend=x", "utxo1")
		y := admitWithKey(t, env, "spend=y", "utxo1")
		fsm.MarkQueried(x)
		fsm.MarkQueried(y)

		fsm.ApplyRoundOutcome(x, true)
		fsm.ApplyRoundOutcome(x, true)
		require.EqualValues(t, vertex.StatusRejected, y.GetStatus())

		// even a streak of preferred rounds cannot revive the loser
		fsm.ApplyRoundOutcome(y, true)
		fsm.ApplyRoundOutcome(y, true)
		fsm.ApplyRoundOutcome(y, true)
		require.EqualValues(t, vertex.StatusRejected, y.GetStatus())
		require.EqualValues(t, vertex.StatusFinal, x.GetStatus())
	})
	t.Run("at most one member finalizes", func(t *testing.T) {
		const beta = 1
		fsm, env := newTestFSM(beta)
		members := make([]*vertex.WrappedVertex, 5)
		for i := range members {
			members[i] = admitWithKey(t, env, "spend="+string(rune('a'+i)), "utxo1")
			fsm.MarkQueried(members[i])
		}

		fsm.ApplyRoundOutcome(members[2], true)

		numFinal := 0
		for _, vid := range members {
			switch vid.GetStatus() {
			case vertex.StatusFinal:
				numFinal++
			case vertex.StatusRejected:
			default:
				t.Fatalf("unexpected status %s", vid.GetStatus().String())
			}
		}
		require.EqualValues(t, 1, numFinal)
		require.EqualValues(t, vertex.StatusFinal, members[2].GetStatus())
	})
	t.Run("late arrival into decided set", func(t *testing.T) {
		const beta = 1
		fsm, env := newTestFSM(beta)
		x := admitWithKey(t, env, "spend=x", "utxo1")
		fsm.MarkQueried(x)
		fsm.ApplyRoundOutcome(x, true)
		require.EqualValues(t, vertex.StatusFinal, x.GetStatus())

		// a rival delivered after the set was decided loses immediately on
		// its first finalization attempt
		z := admitWithKey(t, env, "spend=z", "utxo1")
		fsm.MarkQueried(z)
		require.EqualValues(t, vertex.StatusRejected, fsm.ApplyRoundOutcome(z, true))
	})
}
