package authbridge

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/miravo-storefront/pkg/logger"
)

const defaultQueueSize = 64

// ErrDispatcherClosed is returned by Flush after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Task is deferred work run on the dispatcher goroutine.
type Task func(ctx context.Context)

type queued struct {
	name string
	ctx  context.Context
	fn   Task
}

// Dispatcher runs tasks one at a time, in the order they were posted, on a
// single goroutine it owns.
type Dispatcher struct {
	logg  *logger.Logger
	tasks chan queued
	done  chan struct{}

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(size int, logg *logger.Logger) *Dispatcher {
	if size <= 0 {
		size = defaultQueueSize
	}
	if logg == nil {
		logg = logger.Nop()
	}
	d := &Dispatcher{
		logg:  logg,
		tasks: make(chan queued, size),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

// Post enqueues fn. The task keeps ctx values but not its cancellation.
// Post blocks while the queue is full and reports false once closed.
func (d *Dispatcher) Post(ctx context.Context, name string, fn Task) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.tasks <- queued{name: name, ctx: context.WithoutCancel(ctx), fn: fn}
	return true
}

// Flush waits until every task posted before the call has run.
func (d *Dispatcher) Flush(ctx context.Context) error {
	barrier := make(chan struct{})
	if !d.Post(ctx, "flush", func(context.Context) { close(barrier) }) {
		return ErrDispatcherClosed
	}
	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting tasks and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.tasks)
	}
	d.mu.Unlock()
	<-d.done
}

func (d *Dispatcher) run() {
	defer close(d.done)
	for task := range d.tasks {
		d.execute(task)
	}
}

func (d *Dispatcher) execute(task queued) {
	defer func() {
		if r := recover(); r != nil {
			ctx := d.logg.WithField(task.ctx, "task", task.name)
			d.logg.Error(ctx, "authbridge.task.panic", fmt.Errorf("panic: %v", r))
		}
	}()
	task.fn(task.ctx)
}
