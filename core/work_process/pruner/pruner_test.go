package pruner

import (
	"testing"
	"time"

	"github.com/snowdag/snowdag/core/dag"
	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/global"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	global.NodeGlobal
	*dag.DAG
}

func newTestEnv(t *testing.T) *testEnv {
	g := global.New()
	t.Cleanup(func() {
		g.Stop()
		g.Wait()
	})
	return &testEnv{NodeGlobal: g, DAG: dag.New(g)}
}

func admit(t *testing.T, env *testEnv, payload string) *vertex.WrappedVertex {
	vid, err := env.Admit(vertex.New([]byte(payload), nil, time.Now()), "")
	require.NoError(t, err)
	return vid
}

func TestPruner(t *testing.T) {
	t.Run("decided payloads pruned past retention", func(t *testing.T) {
		env := newTestEnv(t)

		finalized := admit(t, env, "finalized")
		finalized.MustTransition(vertex.StatusPending)
		finalized.MustTransition(vertex.StatusAccepted)
		finalized.MustTransition(vertex.StatusFinal)

		rejected := admit(t, env, "rejected")
		rejected.MustTransition(vertex.StatusPending)
		rejected.MustTransition(vertex.StatusRejected)

		pending := admit(t, env, "pending")

		New(env, time.Millisecond, 10*time.Millisecond)

		require.Eventually(t, func() bool {
			return finalized.IsPayloadPruned() && rejected.IsPayloadPruned()
		}, 5*time.Second, 10*time.Millisecond)

		// undecided vertices keep their payload
		require.False(t, pending.IsPayloadPruned())

		// the structural record survives pruning
		status, err := env.GetStatus(finalized.ID)
		require.NoError(t, err)
		require.EqualValues(t, vertex.StatusFinal, status)
		_, err = env.GetPayload(finalized.ID)
		require.ErrorIs(t, err, vertex.ErrPayloadPruned)
	})
	t.Run("retention window holds for rejected vertices too", func(t *testing.T) {
		env := newTestEnv(t)

		rejected := admit(t, env, "freshly rejected")
		rejected.MustTransition(vertex.StatusPending)
		rejected.MustTransition(vertex.StatusRejected)

		New(env, time.Hour, 10*time.Millisecond)

		// many pruner passes go by, the payload stays until the horizon
		require.Never(t, func() bool {
			return rejected.IsPayloadPruned()
		}, 300*time.Millisecond, 20*time.Millisecond)

		payload, err := env.GetPayload(rejected.ID)
		require.NoError(t, err)
		require.EqualValues(t, "freshly rejected", string(payload))
	})
}
