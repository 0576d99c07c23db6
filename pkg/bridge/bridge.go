// Package bridge runs units of work on a shared multi-threaded executor
// and hands the result back to the submitting call site.
//
// The executor is a process-wide worker pool created lazily on first use
// and never torn down. Each submitted unit of work is attempted exactly
// once; a panic inside the work is recovered on the worker and surfaced
// as an error instead of taking the process down.
package bridge

import (
	"context"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/nikmy/mongoflow/pkg/errors"
	"github.com/nikmy/mongoflow/pkg/tools/await"
)

var (
	// ErrPanicked reports that the work panicked on the executor.
	ErrPanicked = errors.Error("work panicked on executor")

	// ErrStopped reports that the executor no longer accepts work.
	ErrStopped = errors.Error("executor is stopped")
)

var global struct {
	once sync.Once
	pool *Pool
}

func shared() *Pool {
	global.once.Do(func() {
		workers := runtime.GOMAXPROCS(0)
		global.pool = NewPool(workers, 2*workers)
	})
	return global.pool
}

// Run executes work on the shared executor and blocks the calling
// goroutine until the work finishes or ctx is done. When ctx is done
// first, already dispatched work keeps running to completion on the
// executor; only the wait is abandoned.
func Run[T any](ctx context.Context, work func(context.Context) (T, error)) (T, error) {
	return RunOn(ctx, shared(), work)
}

// NewPool creates an executor with the given number of workers
// and submission queue capacity.
func NewPool(workers, queue int) *Pool {
	if workers < 1 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		jobs:   make(chan func(), queue),
		done:   make(chan struct{}),
		cancel: cancel,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.work(ctx)
	}

	return p
}

type Pool struct {
	jobs   chan func()
	done   chan struct{}
	cancel context.CancelFunc
	stop   sync.Once
	wg     sync.WaitGroup

	// intake serializes in-flight submissions against Stop, so that
	// once Stop returns no accepted job is left behind in the queue.
	intake sync.RWMutex
}

func (p *Pool) work(ctx context.Context) {
	defer p.wg.Done()

	jobs := await.FromChan(p.jobs)
	for jobs.Await(ctx) {
		job, _ := jobs.Value()
		job.(func())()
	}

	p.drain()
}

// drain runs every job already sitting in the queue. An accepted job
// must execute even across shutdown: its submitter is blocked on the
// result and got no error from submit.
func (p *Pool) drain() {
	for {
		select {
		case job := <-p.jobs:
			job()
		default:
			return
		}
	}
}

// Stop rejects further submissions and runs the work already accepted,
// then releases the workers. The shared executor is never stopped.
func (p *Pool) Stop() {
	p.stop.Do(func() {
		close(p.done)

		// wait out submissions that raced with the close
		p.intake.Lock()
		p.intake.Unlock()

		p.cancel()
		p.wg.Wait()
		p.drain()
	})
}

func (p *Pool) submit(ctx context.Context, job func()) error {
	p.intake.RLock()
	defer p.intake.RUnlock()

	select {
	case <-p.done:
		return ErrStopped
	default:
	}

	select {
	case <-p.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

type outcome[T any] struct {
	val T
	err error
}

// RunOn is like Run, but uses the given executor instead of the shared one.
func RunOn[T any](ctx context.Context, p *Pool, work func(context.Context) (T, error)) (T, error) {
	var zero T

	out := make(chan outcome[T], 1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				out <- outcome[T]{err: errors.Wrapf(ErrPanicked, "recovered %v at\n%s", r, debug.Stack())}
			}
		}()

		val, err := work(ctx)
		out <- outcome[T]{val: val, err: err}
	}

	err := p.submit(ctx, job)
	if err != nil {
		return zero, err
	}

	result := await.FromChan(out)
	if !result.Await(ctx) {
		return zero, ctx.Err()
	}

	got, _ := result.Value()
	o := got.(outcome[T])
	return o.val, o.err
}
