// Package executor provides the single-worker task queues that serialize all
// mutations inside a component. Tasks run FIFO, one at a time, to completion.
package executor

import (
	"sync"
	"sync/atomic"
)

const defaultQueueCapacity = 32

// Executor owns one worker goroutine draining a FIFO task queue. Submitting
// goroutines never wait for a task to run; they only wait for queue space.
type Executor struct {
	queue   chan func()
	closeCh chan struct{}
	done    chan struct{}

	startOnce sync.Once
	endOnce   sync.Once

	started atomic.Bool
}

func New() *Executor {
	e := &Executor{
		queue:   make(chan func(), defaultQueueCapacity),
		closeCh: make(chan struct{}),
		done:    make(chan struct{}),
	}
	e.start()
	return e
}

func (e *Executor) start() {
	if e == nil {
		return
	}

	e.startOnce.Do(func() {
		e.started.Store(true)
		go func() {
			defer close(e.done)

			for {
				select {
				case <-e.closeCh:
					return
				case task := <-e.queue:
					if !e.canSubmit() {
						return
					}
					task()
				}
			}
		}()
	})
}

func (e *Executor) canSubmit() bool {
	if e == nil {
		return false
	}

	select {
	case <-e.closeCh:
		return false
	default:
		return true
	}
}

// Submit queues task for execution on the worker. It reports false if the
// executor has been shut down, in which case task will never run.
func (e *Executor) Submit(task func()) bool {
	if e == nil || task == nil || !e.canSubmit() {
		return false
	}

	select {
	case <-e.closeCh:
		return false
	case e.queue <- task:
		return true
	}
}

// Shutdown stops the worker and waits for the in-flight task to finish.
// Queued tasks that have not started yet are dropped.
func (e *Executor) Shutdown() {
	if e == nil {
		return
	}

	e.endOnce.Do(func() { close(e.closeCh) })
	if e.started.Load() {
		<-e.done
	}
}
