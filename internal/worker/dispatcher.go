// Package worker runs jobs on a bounded, elastic pool of goroutines and
// shares it fairly between owners.
package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"repairscribe/internal/logging"
)

var (
	ErrDispatcherBusy    = errors.New("dispatcher queue is full")
	ErrDispatcherStopped = errors.New("dispatcher stopped")
)

// DispatcherConfig sizes the pool and the submit queue.
type DispatcherConfig struct {
	MinWorkers  int
	MaxWorkers  int
	QueueSize   int
	IdleTimeout time.Duration
	Logger      logging.Logger
}

type ownerQueue struct {
	jobs     []Job
	enqueued bool
}

// Dispatcher hands submitted jobs to workers, taking one job per owner in
// turn so a large batch from one owner cannot starve the others.
type Dispatcher struct {
	pool     *jobChannelPool
	jobQueue chan Job
	quit     chan struct{}
	stopped  chan struct{}
	logger   logging.Logger

	mu        sync.Mutex
	closing   bool
	pending   int
	queues    map[string]*ownerQueue
	ready     *list.List // owners with pending jobs, least recently served first
	positions map[string]*list.Element
	stopOnce  sync.Once
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	d := &Dispatcher{
		pool:      newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout, logger),
		jobQueue:  make(chan Job, queueSize),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		logger:    logger,
		queues:    make(map[string]*ownerQueue),
		ready:     list.New(),
		positions: make(map[string]*list.Element),
	}

	for i := 0; i < cfg.MinWorkers; i++ {
		d.pool.spawnIdle()
	}

	go d.run()
	return d
}

// Submit queues job without blocking. It fails with ErrDispatcherBusy when
// the submit queue is full.
func (d *Dispatcher) Submit(job Job) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closing {
		return ErrDispatcherStopped
	}
	select {
	case d.jobQueue <- job:
		return nil
	default:
		return ErrDispatcherBusy
	}
}

// Stop stops dispatching. Jobs not yet handed to a worker are dropped
// through their Drop callback; running jobs finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() {
		d.mu.Lock()
		d.closing = true
		d.mu.Unlock()
		close(d.quit)
		d.pool.close()
		<-d.stopped
		d.drain()
	})
}

func (d *Dispatcher) run() {
	defer close(d.stopped)
	for {
		// pull everything already submitted so owners are interleaved
		// before the next dispatch
		d.pullPending()
		if !d.dispatchOne() {
			select {
			case job := <-d.jobQueue:
				d.enqueueJob(job)
			case <-d.quit:
				return
			}
			continue
		}
		select {
		case <-d.quit:
			return
		default:
		}
	}
}

func (d *Dispatcher) pullPending() {
	for {
		d.mu.Lock()
		full := d.pending >= cap(d.jobQueue)
		d.mu.Unlock()
		if full {
			return
		}
		select {
		case job := <-d.jobQueue:
			d.enqueueJob(job)
		default:
			return
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()

	q := d.queues[job.Owner]
	if q == nil {
		q = &ownerQueue{}
		d.queues[job.Owner] = q
	}
	q.jobs = append(q.jobs, job)
	d.pending++
	if q.enqueued {
		return
	}
	q.enqueued = true
	d.positions[job.Owner] = d.ready.PushBack(job.Owner)
}

// dispatchOne hands the next job of the front owner to a worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	owner := elem.Value.(string)
	q := d.queues[owner]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	d.pending--
	if len(q.jobs) == 0 {
		q.enqueued = false
		d.ready.Remove(elem)
		delete(d.positions, owner)
		delete(d.queues, owner)
	} else {
		d.ready.MoveToBack(elem)
	}
	d.mu.Unlock()

	meta, ok := d.pool.acquire()
	if !ok {
		dropJob(job)
		return false
	}
	d.logger.Debug(context.Background(), "dispatching job", "owner", owner, "worker", meta.id)
	meta.ch <- job
	return true
}

// drain drops everything still queued after the run loop exited.
func (d *Dispatcher) drain() {
	d.mu.Lock()
	var pending []Job
	for e := d.ready.Front(); e != nil; e = e.Next() {
		pending = append(pending, d.queues[e.Value.(string)].jobs...)
	}
	d.queues = make(map[string]*ownerQueue)
	d.positions = make(map[string]*list.Element)
	d.ready.Init()
	d.pending = 0
	d.mu.Unlock()

	for {
		select {
		case job := <-d.jobQueue:
			pending = append(pending, job)
		default:
			for _, job := range pending {
				dropJob(job)
			}
			return
		}
	}
}

func dropJob(job Job) {
	if job.Drop != nil {
		job.Drop(ErrDispatcherStopped)
	}
}

// CancelGroup discards the jobs of owner tagged with group that have not
// been handed to a worker yet. Each is dropped with context.Canceled. Jobs
// still waiting in the submit queue are not affected.
func (d *Dispatcher) CancelGroup(owner, group string) int {
	var dropped []Job
	d.mu.Lock()
	if q := d.queues[owner]; q != nil {
		kept := q.jobs[:0]
		for _, job := range q.jobs {
			if job.Group == group {
				dropped = append(dropped, job)
			} else {
				kept = append(kept, job)
			}
		}
		q.jobs = kept
		d.pending -= len(dropped)
		if len(q.jobs) == 0 {
			if elem, ok := d.positions[owner]; ok {
				d.ready.Remove(elem)
				delete(d.positions, owner)
			}
			delete(d.queues, owner)
		}
	}
	d.mu.Unlock()

	for _, job := range dropped {
		if job.Drop != nil {
			job.Drop(context.Canceled)
		}
	}
	return len(dropped)
}

// Stats reports the current number of workers and how many are idle.
func (d *Dispatcher) Stats() (running, idle int) {
	return d.pool.stats()
}
