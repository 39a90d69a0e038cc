package worker

import (
	"context"
	"runtime/debug"
)

// Job is a unit of work owned by a user. Jobs of one owner run in
// submission order relative to each other's dispatch; owners are served
// round-robin.
type Job struct {
	Owner string
	// Group tags related jobs of one owner so they can be cancelled together.
	Group string
	Run   func()
	// Drop is called instead of Run when the dispatcher stops before the job
	// was handed to a worker.
	Drop func(error)

	stop bool
}

type worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
}

func newWorker(id int, pool *jobChannelPool) *worker {
	return &worker{id: id, pool: pool, jobChannel: make(chan Job)}
}

func (w *worker) start() {
	go func() {
		for job := range w.jobChannel {
			if job.stop {
				w.pool.retire(w.jobChannel)
				return
			}
			w.run(job)
			if !w.pool.release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}

func (w *worker) run(job Job) {
	defer func() {
		if r := recover(); r != nil {
			w.pool.logger.Error(context.Background(), "worker job panicked",
				"worker", w.id, "owner", job.Owner, "panic", r, "stack", string(debug.Stack()))
		}
	}()
	if job.Run != nil {
		job.Run()
	}
}
