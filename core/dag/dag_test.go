package dag

import (
	"os"
	"testing"
	"time"

	"github.com/snowdag/snowdag/core/vertex"
	"github.com/snowdag/snowdag/global"
	"github.com/stretchr/testify/require"
)

func newTestDAG(t *testing.T) *DAG {
	return New(global.New())
}

func mustAdmit(t *testing.T, d *DAG, payload string, parents ...vertex.ID) *vertex.WrappedVertex {
	v := vertex.New([]byte(payload), parents, time.Now())
	vid, err := d.Admit(v, "")
	require.NoError(t, err)
	return vid
}

func TestAdmit(t *testing.T) {
	t.Run("genesis becomes tip", func(t *testing.T) {
		d := newTestDAG(t)
		g := mustAdmit(t, d, "genesis")

		require.EqualValues(t, 1, d.NumVertices())
		require.EqualValues(t, []vertex.ID{g.ID}, d.Tips())
		require.EqualValues(t, 0, g.Depth())
	})
	t.Run("child displaces parent from tips", func(t *testing.T) {
		d := newTestDAG(t)
		g := mustAdmit(t, d, "genesis")
		c := mustAdmit(t, d, "child", g.ID)

		require.EqualValues(t, 2, d.NumVertices())
		require.EqualValues(t, []vertex.ID{c.ID}, d.Tips())
		require.EqualValues(t, 1, c.Depth())

		children, err := d.GetChildren(g.ID)
		require.NoError(t, err)
		require.EqualValues(t, []vertex.ID{c.ID}, children)
	})
	t.Run("two children of one parent are both tips", func(t *testing.T) {
		d := newTestDAG(t)
		g := mustAdmit(t, d, "genesis")
		c1 := mustAdmit(t, d, "child-1", g.ID)
		c2 := mustAdmit(t, d, "child-2", g.ID)

		tips := d.Tips()
		require.EqualValues(t, 2, len(tips))
		require.Contains(t, tips, c1.ID)
		require.Contains(t, tips, c2.ID)
	})
	t.Run("depth is longest path", func(t *testing.T) {
		d := newTestDAG(t)
		g := mustAdmit(t, d, "genesis")
		a := mustAdmit(t, d, "a", g.ID)
		b := mustAdmit(t, d, "b", a.ID)
		// joins a deep and a shallow parent
		j := mustAdmit(t, d, "join", b.ID, g.ID)

		require.EqualValues(t, 3, j.Depth())
	})
}

func TestStructuralRejections(t *testing.T) {
	t.Run("duplicate", func(t *testing.T) {
		d := newTestDAG(t)
		mustAdmit(t, d, "genesis")

		dup := vertex.New([]byte("genesis"), nil, time.Now())
		_, err := d.Admit(dup, "")
		require.ErrorIs(t, err, ErrDuplicateVertex)
		require.EqualValues(t, 1, d.NumVertices())
	})
	t.Run("missing parent", func(t *testing.T) {
		d := newTestDAG(t)
		g := mustAdmit(t, d, "genesis")

		phantom := vertex.New([]byte("never admitted"), nil, time.Now())
		orphan := vertex.New([]byte("orphan"), []vertex.ID{g.ID, phantom.ID}, time.Now())
		_, err := d.Admit(orphan, "")
		require.ErrorIs(t, err, ErrParentNotFound)

		// rejection leaves no trace: store and tip set unchanged
		require.EqualValues(t, 1, d.NumVertices())
		require.EqualValues(t, []vertex.ID{g.ID}, d.Tips())
		_, found := d.GetVertex(orphan.ID)
		require.False(t, found)
	})
	t.Run("self reference", func(t *testing.T) {
		d := newTestDAG(t)
		// forge a vertex naming its own ID as parent
		forged := vertex.New([]byte("forged"), nil, time.Now())
		forged.Parents = []vertex.ID{forged.ID}

		_, err := d.Admit(forged, "")
		require.ErrorIs(t, err, ErrSelfReference)
		require.EqualValues(t, 0, d.NumVertices())
	})
}

func TestQueries(t *testing.T) {
	d := newTestDAG(t)
	g := mustAdmit(t, d, "genesis")
	c := mustAdmit(t, d, "child", g.ID)

	t.Run("parents", func(t *testing.T) {
		parents, err := d.GetParents(c.ID)
		require.NoError(t, err)
		require.EqualValues(t, []vertex.ID{g.ID}, parents)

		unknown := vertex.New([]byte("unknown"), nil, time.Now())
		_, err = d.GetParents(unknown.ID)
		require.ErrorIs(t, err, ErrNotFound)
	})
	t.Run("payload", func(t *testing.T) {
		payload, err := d.GetPayload(g.ID)
		require.NoError(t, err)
		require.EqualValues(t, "genesis", string(payload))

		g.PrunePayload()
		_, err = d.GetPayload(g.ID)
		require.ErrorIs(t, err, vertex.ErrPayloadPruned)
	})
	t.Run("status", func(t *testing.T) {
		status, err := d.GetStatus(c.ID)
		require.NoError(t, err)
		require.EqualValues(t, vertex.StatusUnqueried, status)
	})
	t.Run("dot export", func(t *testing.T) {
		fname := t.TempDir() + "/dag"
		d.SaveGraph(fname)
		dot, err := os.ReadFile(fname + ".gv")
		require.NoError(t, err)
		require.Contains(t, string(dot), g.ID.StringShort())
	})
	t.Run("finalized count", func(t *testing.T) {
		require.EqualValues(t, 0, d.NumFinalized())
		c.MustTransition(vertex.StatusPending)
		c.MustTransition(vertex.StatusAccepted)
		c.MustTransition(vertex.StatusFinal)
		require.EqualValues(t, 1, d.NumFinalized())
	})
}
