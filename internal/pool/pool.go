// Package pool runs closures on a fixed set of worker goroutines and lets
// callers join on the handles of the tasks they submitted.
package pool

import (
	"context"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// ID identifies an enqueued task.
type ID uint64

type task struct {
	id   ID
	fn   func()
	done chan struct{}
}

// Pool is a fixed-size worker pool. Tasks must not Wait on other tasks of
// the same pool.
type Pool struct {
	tasks chan task
	wg    sync.WaitGroup

	mu      sync.Mutex
	pending map[ID]chan struct{}

	next      atomic.Uint64
	processed atomic.Int64
	closeOnce sync.Once
}

// New starts workers goroutines. workers <= 0 means runtime.NumCPU().
func New(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		tasks:   make(chan task, workers*2),
		pending: make(map[ID]chan struct{}),
	}
	for w := 0; w < workers; w++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		t.fn()
		p.processed.Add(1)

		p.mu.Lock()
		delete(p.pending, t.id)
		p.mu.Unlock()
		close(t.done)
	}
}

// Enqueue schedules fn and returns its handle. It blocks while the queue is
// full. Enqueue after Close panics.
func (p *Pool) Enqueue(fn func()) ID {
	t := task{id: ID(p.next.Add(1)), fn: fn, done: make(chan struct{})}

	p.mu.Lock()
	p.pending[t.id] = t.done
	p.mu.Unlock()

	p.tasks <- t
	return t.id
}

// Wait blocks until every listed task has finished. Unknown or already
// finished handles return immediately.
func (p *Pool) Wait(ids ...ID) {
	for _, id := range ids {
		p.mu.Lock()
		done, ok := p.pending[id]
		p.mu.Unlock()
		if ok {
			<-done
		}
	}
}

// Processed returns the number of tasks run since the pool started.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Close stops accepting tasks and waits for the queued ones to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.tasks)
		p.wg.Wait()
	})
}

// ReportProgress logs the completion rate of the next total tasks every
// interval until ctx is done or all of them have run.
func (p *Pool) ReportProgress(ctx context.Context, label string, total int64, every time.Duration, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	base := p.Processed()
	start := time.Now()

	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n := p.Processed() - base
				if n > 0 {
					rate := float64(n) / time.Since(start).Seconds()
					log.Info(label, "done", n, "total", total, "per_sec", rate)
				}
				if n >= total {
					return
				}
			}
		}
	}()
}
