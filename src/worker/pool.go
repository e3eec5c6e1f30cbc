package worker

import (
	"context"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Job is a unit of background work, typically one API call. It runs on a
// worker goroutine and must post results back to the event loop itself.
type Job func(ctx context.Context)

// Pool is a fixed-size worker pool with strict back-pressure: it accepts at
// most size jobs in flight (queued or running) and drops the rest.
type Pool struct {
	mu      sync.Mutex
	closed  bool
	jobs    chan job
	wg      sync.WaitGroup
	size    int32
	pending atomic.Int32
}

type job struct {
	ctx  context.Context
	name string
	run  Job
}

// New creates a worker pool. Size defaults to NumCPU when size<=0.
func New(size int) *Pool {
	if size <= 0 {
		size = runtime.NumCPU()
	}
	p := &Pool{jobs: make(chan job, size), size: int32(size)}
	p.start(size)
	return p
}

func (p *Pool) start(n int) {
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for j := range p.jobs {
				p.run(j)
			}
		}()
	}
}

func (p *Pool) run(j job) {
	defer p.pending.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Worker: job %q panicked: %v", j.name, r)
		}
	}()
	start := time.Now()
	log.Printf("Worker: starting %s", j.name)
	j.run(j.ctx)
	log.Printf("Worker: %s finished in %s", j.name, time.Since(start).Round(time.Millisecond))
}

// Submit enqueues a job if the pool has capacity. Returns false if dropped.
func (p *Pool) Submit(ctx context.Context, name string, fn Job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	if p.pending.Add(1) > p.size {
		p.pending.Add(-1)
		log.Printf("Worker: busy, dropping %s", name)
		return false
	}
	p.jobs <- job{ctx: ctx, name: name, run: fn}
	return true
}

// Busy reports whether every worker slot is taken.
func (p *Pool) Busy() bool { return p.pending.Load() >= p.size }

// Close stops the pool after draining current work. Later submits are dropped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}
