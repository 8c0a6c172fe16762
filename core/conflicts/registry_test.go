package conflicts

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

// payloads of the form "key=value" conflict on equal key
func testExtractor() KeyExtractor {
	return ExtractorFunc(func(payload []byte) string {
		for i, c := range payload {
			if c == '=' {
				return string(payload[:i])
			}
		}
		return ""
	})
}

func newTestRegistry() (*Registry, *testEnv) {
	g := global.New()
	env := &testEnv{NodeGlobal: g, DAG: dag.New(g)}
	return New(env, testExtractor()), env
}

func admit(t *testing.T, r *Registry, env *testEnv, payload string) *vertex.WrappedVertex {
	v := vertex.New([]byte(payload), nil, time.Now())
	key := r.Classify(v)
	vid, err := env.Admit(v, key)
	require.NoError(t, err)
	r.Register(key, vid.ID)
	return vid
}

func TestClassify(t *testing.T) {
	t.Run("equal keys conflict", func(t *testing.T) {
		r, _ := newTestRegistry()
		v1 := vertex.New([]byte("utxo1=a"), nil, time.Now())
		v2 := vertex.New([]byte("utxo1=b"), nil, time.Now())
		require.EqualValues(t, r.Classify(v1), r.Classify(v2))
	})
	t.Run("empty key forms singleton", func(t *testing.T) {
		r, _ := newTestRegistry()
		v1 := vertex.New([]byte("no key here"), nil, time.Now())
		v2 := vertex.New([]byte("neither here"), nil, time.Now())
		require.NotEqualValues(t, r.Classify(v1), r.Classify(v2))
		// idempotent
		require.EqualValues(t, r.Classify(v1), r.Classify(v1))
	})
}

func TestMembership(t *testing.T) {
	r, env := newTestRegistry()
	x := admit(t, r, env, "utxo1=x")
	y := admit(t, r, env, "utxo1=y")
	other := admit(t, r, env, "utxo2=z")

	t.Run("members ordered", func(t *testing.T) {
		members := r.Members("utxo1")
		require.EqualValues(t, 2, len(members))
		require.True(t, vertex.Less(members[0], members[1]))
	})
	t.Run("rivals exclude self", func(t *testing.T) {
		require.EqualValues(t, []vertex.ID{y.ID}, r.Rivals("utxo1", x.ID))
		require.EqualValues(t, []vertex.ID{x.ID}, r.Rivals("utxo1", y.ID))
		require.EqualValues(t, 0, len(r.Rivals("utxo2", other.ID)))
	})
	t.Run("set count", func(t *testing.T) {
		require.EqualValues(t, 2, r.NumSets())
	})
	t.Run("unknown key", func(t *testing.T) {
		require.Nil(t, r.Members("unknown"))
	})
}

func TestPreference(t *testing.T) {
	t.Run("highest confidence wins", func(t *testing.T) {
		r, env := newTestRegistry()
		x := admit(t, r, env, "utxo1=x")
		y := admit(t, r, env, "utxo1=y")

		y.RecordPreferred()
		y.RecordPreferred()
		x.RecordPreferred()

		preferred, found := r.Preferred("utxo1")
		require.True(t, found)
		require.EqualValues(t, y.ID, preferred)
		require.True(t, r.IsPreferred("utxo1", y.ID))
		require.False(t, r.IsPreferred("utxo1", x.ID))
	})
	t.Run("tie broken by lower id", func(t *testing.T) {
		r, env := newTestRegistry()
		x := admit(t, r, env, "utxo1=x")
		y := admit(t, r, env, "utxo1=y")

		lower := x.ID
		if vertex.Less(y.ID, x.ID) {
			lower = y.ID
		}
		preferred, found := r.Preferred("utxo1")
		require.True(t, found)
		require.EqualValues(t, lower, preferred)
	})
	t.Run("rejected members ignored", func(t *testing.T) {
		r, env := newTestRegistry()
		x := admit(t, r, env, "utxo1=x")
		y := admit(t, r, env, "utxo1=y")

		x.RecordPreferred()
		x.RecordPreferred()
		require.True(t, x.TransitionIfPossible(vertex.StatusRejected))

		preferred, found := r.Preferred("utxo1")
		require.True(t, found)
		require.EqualValues(t, y.ID, preferred)
	})
}
