package utils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

type CompletedTask[T any] struct {
	Index  int
	Result T
	Error  error
}

// RunInPool runs worker over inputs with at most maxWorkers goroutines, which
// only live for the duration of the call. Results are returned in input order.
func RunInPool[In any, Out any](worker func(In) (Out, error), inputs []In, maxWorkers int) []CompletedTask[Out] {
	completed := make([]CompletedTask[Out], len(inputs))
	workers := min(len(inputs), max(maxWorkers, 1))

	queue := make(chan int, len(inputs))
	for i := range inputs {
		queue <- i
	}
	close(queue)

	wg := sync.WaitGroup{}
	wg.Add(workers)

	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()

			for idx := range queue {
				res, err := worker(inputs[idx])
				completed[idx] = CompletedTask[Out]{Index: idx, Result: res, Error: err}
			}
		}()
	}

	wg.Wait()

	return completed
}

var ErrPoolClosed = errors.New("worker pool is closed")

// Pool is a fixed set of long lived worker goroutines fed by a bounded queue.
// Submit blocks while the queue is full, which is the only backpressure applied
// to callers.
type Pool struct {
	tasks   chan func()
	workers int

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(workers, queueSize int) *Pool {
	workers = max(workers, 1)
	queueSize = max(queueSize, 0)

	p := &Pool{
		tasks:   make(chan func(), queueSize),
		workers: workers,
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				runTask(task)
			}
		}()
	}

	return p
}

func runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("recovered panic in pool worker", "panic", r)
		}
	}()
	task()
}

func (p *Pool) Workers() int {
	return p.workers
}

func (p *Pool) Submit(ctx context.Context, task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	select {
	case p.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for queued tasks to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	p.wg.Wait()
}

// Batch tracks a set of tasks submitted to a Pool.
type Batch[Out any] struct {
	completed []CompletedTask[Out]
	submitErr error
	done      chan struct{}
}

// SubmitBatch submits one task per input. If a submit fails, the inputs after
// it are not submitted, but the tasks already on the pool still run; Done is
// closed once all of them have returned.
func SubmitBatch[In any, Out any](ctx context.Context, pool *Pool, inputs []In, worker func(int, In) (Out, error)) *Batch[Out] {
	b := &Batch[Out]{
		completed: make([]CompletedTask[Out], len(inputs)),
		done:      make(chan struct{}),
	}

	wg := sync.WaitGroup{}
	for i, input := range inputs {
		wg.Add(1)
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					b.completed[i] = CompletedTask[Out]{Index: i, Error: fmt.Errorf("task %d panicked: %v", i, r)}
				}
			}()

			res, err := worker(i, input)
			b.completed[i] = CompletedTask[Out]{Index: i, Result: res, Error: err}
		}

		if err := pool.Submit(ctx, task); err != nil {
			wg.Done()
			b.submitErr = err
			break
		}
	}

	go func() {
		wg.Wait()
		close(b.done)
	}()

	return b
}

// Done is closed after every submitted task has returned.
func (b *Batch[Out]) Done() <-chan struct{} {
	return b.done
}

// Wait returns the results in input order. It returns early with ctx.Err() if
// ctx is done first.
func (b *Batch[Out]) Wait(ctx context.Context) ([]CompletedTask[Out], error) {
	if b.submitErr != nil {
		return nil, b.submitErr
	}

	select {
	case <-b.done:
		return b.completed, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RunOnPool submits one task per input and waits for all of them. If ctx is
// done before the join completes the call returns ctx.Err(); tasks that were
// already submitted still run to completion in the background.
func RunOnPool[In any, Out any](ctx context.Context, pool *Pool, inputs []In, worker func(int, In) (Out, error)) ([]CompletedTask[Out], error) {
	return SubmitBatch(ctx, pool, inputs, worker).Wait(ctx)
}
