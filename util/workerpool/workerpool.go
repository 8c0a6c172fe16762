package workerpool

import (
	"github.com/snowdag/snowdag/util"
)

// WorkerPool bounds the number of concurrently running closures
type WorkerPool chan struct{}

func NewWorkerPool(maxWorkers int) WorkerPool {
	util.Assertf(maxWorkers > 0, "maximum workers parameter must be positive")
	return make(chan struct{}, maxWorkers)
}

// Work schedules the closure. Never blocks the caller: the slot is acquired
// on the spawned goroutine, which waits for capacity there
func (wp WorkerPool) Work(fun func()) {
	go func() {
		wp <- struct{}{}
		fun()
		<-wp
	}()
}

func (wp WorkerPool) Len() int {
	return len(wp)
}
