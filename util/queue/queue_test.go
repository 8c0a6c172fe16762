package queue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestBasic(t *testing.T) {
	t.Run("1", func(t *testing.T) {
		back := make([]string, 0)
		q := New[string](func(e string) {
			back = append(back, e)
		})
		q.Push("one")
		time.Sleep(10 * time.Millisecond)
		q.Close(false)

		require.EqualValues(t, 1, len(back))
		require.EqualValues(t, "one", back[0])
	})
	t.Run("2", func(t *testing.T) {
		back := make([]string, 0)
		q := New[string](func(e string) {
			back = append(back, e)
		})
		q.Push("one")
		q.Push("two")
		time.Sleep(10 * time.Millisecond)
		q.Close(false)

		require.EqualValues(t, 2, len(back))
		require.EqualValues(t, "one", back[0])
		require.EqualValues(t, "two", back[1])
	})
	t.Run("3", func(t *testing.T) {
		const n = 100_000
		var counter atomic.Int32
		q := New[int](func(e int) {
			counter.Inc()
		})
		require.EqualValues(t, 0, q.Len())
		for i := 0; i < n; i++ {
			q.Push(i)
		}
		q.Close(true)
		require.Eventually(t, func() bool {
			return int(counter.Load()) == n
		}, 5*time.Second, 10*time.Millisecond)
		require.EqualValues(t, 0, q.Len())
	})
}

func TestPriority(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	back := make([]int, 0)
	first := true
	q := New[int](func(e int) {
		if first {
			first = false
			close(started)
			<-proceed
		}
		back = append(back, e)
	})

	// the first element blocks the consumer, so the rest queues up
	q.Push(0)
	<-started
	q.Push(1)
	q.Push(2)
	time.Sleep(10 * time.Millisecond)
	q.Push(42, true)
	time.Sleep(10 * time.Millisecond)
	close(proceed)
	time.Sleep(10 * time.Millisecond)
	q.Close(true)

	require.Eventually(t, func() bool {
		return len(back) == 4
	}, 5*time.Second, 10*time.Millisecond)
	require.EqualValues(t, 0, back[0])
	require.EqualValues(t, 42, back[1])
}

func TestPushAfterClose(t *testing.T) {
	var counter atomic.Int32
	q := New[int](func(e int) {
		counter.Inc()
	})
	q.Close(false)
	// must not panic, pushes are silently dropped
	q.Push(1)
	q.Push(2)
	time.Sleep(10 * time.Millisecond)
	require.EqualValues(t, 0, int(counter.Load()))
}
