package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"repairscribe/internal/logging"
)

func waitTimeout(t *testing.T, wg *sync.WaitGroup, d time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(d):
		t.Fatalf("timed out waiting for jobs")
	}
}

func TestDispatcherRunsAllJobs(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 2, MaxWorkers: 4, QueueSize: 32})
	defer d.Stop()

	var (
		wg    sync.WaitGroup
		count int64
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		owner := "a"
		if i%2 == 0 {
			owner = "b"
		}
		if err := d.Submit(Job{Owner: owner, Run: func() {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
		}}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	waitTimeout(t, &wg, 2*time.Second)
	if count != 20 {
		t.Fatalf("ran %d jobs, want 20", count)
	}
}

func TestDispatcherBoundsConcurrency(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 3, QueueSize: 32})
	defer d.Stop()

	var (
		wg           sync.WaitGroup
		active, peak int64
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		if err := d.Submit(Job{Owner: "u", Run: func() {
			defer wg.Done()
			n := atomic.AddInt64(&active, 1)
			for {
				p := atomic.LoadInt64(&peak)
				if n <= p || atomic.CompareAndSwapInt64(&peak, p, n) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&active, -1)
		}}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	waitTimeout(t, &wg, 3*time.Second)
	if peak > 3 {
		t.Fatalf("peak concurrency %d exceeds max workers", peak)
	}
	if running, _ := d.Stats(); running > 3 {
		t.Fatalf("running workers %d exceeds max", running)
	}
}

func TestDispatcherRoundRobinAcrossOwners(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 32})
	defer d.Stop()

	// hold the only worker so every following job queues up first
	gate := make(chan struct{})
	started := make(chan struct{})
	if err := d.Submit(Job{Owner: "blocker", Run: func() {
		close(started)
		<-gate
	}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	record := func(owner string) func() {
		return func() {
			defer wg.Done()
			mu.Lock()
			order = append(order, owner)
			mu.Unlock()
		}
	}
	for i := 0; i < 3; i++ {
		wg.Add(1)
		_ = d.Submit(Job{Owner: "big", Run: record("big")})
	}
	wg.Add(1)
	_ = d.Submit(Job{Owner: "small", Run: record("small")})

	// let the dispatcher pull everything off the submit queue
	time.Sleep(50 * time.Millisecond)
	close(gate)
	waitTimeout(t, &wg, 2*time.Second)

	if len(order) != 4 {
		t.Fatalf("unexpected order %v", order)
	}
	if order[0] == "big" && order[1] == "big" && order[2] == "big" {
		t.Fatalf("small owner starved: %v", order)
	}
}

func TestSubmitBusyWhenQueueFull(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 1})
	gate := make(chan struct{})
	defer func() {
		close(gate)
		d.Stop()
	}()

	var busy error
	for i := 0; i < 50 && busy == nil; i++ {
		busy = d.Submit(Job{Owner: "u", Run: func() { <-gate }})
	}
	if !errors.Is(busy, ErrDispatcherBusy) {
		t.Fatalf("expected ErrDispatcherBusy, got %v", busy)
	}
}

func TestStopDropsPendingJobs(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 8})

	gate := make(chan struct{})
	started := make(chan struct{})
	_ = d.Submit(Job{Owner: "u", Run: func() {
		close(started)
		<-gate
	}})
	<-started

	var dropped int64
	for i := 0; i < 3; i++ {
		_ = d.Submit(Job{
			Owner: "u",
			Run:   func() { t.Errorf("job ran after stop") },
			Drop: func(err error) {
				if errors.Is(err, ErrDispatcherStopped) {
					atomic.AddInt64(&dropped, 1)
				}
			},
		})
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(gate)
	}()
	d.Stop()

	if dropped != 3 {
		t.Fatalf("dropped %d jobs, want 3", dropped)
	}
	if err := d.Submit(Job{Owner: "u"}); !errors.Is(err, ErrDispatcherStopped) {
		t.Fatalf("expected ErrDispatcherStopped after Stop, got %v", err)
	}
}

func TestCancelGroupDropsOnlyThatGroup(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 8})
	defer d.Stop()

	gate := make(chan struct{})
	started := make(chan struct{})
	_ = d.Submit(Job{Owner: "u", Group: "first", Run: func() {
		close(started)
		<-gate
	}})
	<-started

	var (
		ran     sync.WaitGroup
		mu      sync.Mutex
		runs    []string
		dropped int64
	)
	submit := func(group, name string) {
		_ = d.Submit(Job{
			Owner: "u",
			Group: group,
			Run: func() {
				mu.Lock()
				runs = append(runs, name)
				mu.Unlock()
				ran.Done()
			},
			Drop: func(err error) {
				if errors.Is(err, context.Canceled) {
					atomic.AddInt64(&dropped, 1)
				}
			},
		})
	}
	// the first queued job is taken by the dispatcher while it waits for
	// the busy worker, so group b goes first
	ran.Add(2)
	submit("b", "b1")
	submit("b", "b2")
	submit("a", "a1")
	submit("a", "a2")
	submit("a", "a3")

	deadline := time.Now().Add(2 * time.Second)
	for {
		d.mu.Lock()
		pending := d.pending
		d.mu.Unlock()
		if pending == 4 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("pending=%d, want 4", pending)
		}
		time.Sleep(2 * time.Millisecond)
	}

	if n := d.CancelGroup("u", "a"); n != 3 {
		t.Fatalf("cancelled %d jobs, want 3", n)
	}
	if n := d.CancelGroup("u", "a"); n != 0 {
		t.Fatalf("second cancel dropped %d jobs", n)
	}
	if dropped != 3 {
		t.Fatalf("dropped callbacks %d, want 3", dropped)
	}

	close(gate)
	waitTimeout(t, &ran, 2*time.Second)
	mu.Lock()
	defer mu.Unlock()
	if len(runs) != 2 || runs[0] != "b1" || runs[1] != "b2" {
		t.Fatalf("ran %v, want [b1 b2]", runs)
	}
}

func TestShutdownExpiredKeepsMinimum(t *testing.T) {
	pool := newJobChannelPool(1, 4, time.Hour, nopLogger())
	defer pool.close()
	for i := 0; i < 4; i++ {
		pool.spawnIdle()
	}
	if running, idle := pool.stats(); running != 4 || idle != 4 {
		t.Fatalf("running=%d idle=%d, want 4/4", running, idle)
	}

	retired := pool.shutdownExpired(time.Now().Add(2 * time.Hour))
	if retired != 3 {
		t.Fatalf("retired %d workers, want 3", retired)
	}
	deadline := time.Now().Add(time.Second)
	for {
		running, _ := pool.stats()
		if running == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("running=%d, want 1", running)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWorkerRecoversFromPanic(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{MinWorkers: 1, MaxWorkers: 1, QueueSize: 4})
	defer d.Stop()

	var wg sync.WaitGroup
	wg.Add(2)
	_ = d.Submit(Job{Owner: "u", Run: func() {
		defer wg.Done()
		panic("boom")
	}})
	_ = d.Submit(Job{Owner: "u", Run: func() { wg.Done() }})
	waitTimeout(t, &wg, 2*time.Second)
}

func nopLogger() logging.Logger { return logging.Nop() }
