// Package loop provides a single-goroutine task queue. Every task posted to a
// Loop runs to completion before the next one starts, in posting order.
package loop

import (
	"sync"
)

const defaultQueueSize = 1024

type Loop struct {
	tasks    chan func()
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	mu       sync.RWMutex
	closed   bool
}

func New(queueSize int) *Loop {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	l := &Loop{
		tasks:   make(chan func(), queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		select {
		case <-l.done:
			return
		case f := <-l.tasks:
			f()
		}
	}
}

// Post enqueues f. It blocks while the queue is full and returns false once
// the loop has been stopped.
func (l *Loop) Post(f func()) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return false
	}
	select {
	case l.tasks <- f:
		return true
	case <-l.done:
		return false
	}
}

// Stop discards queued tasks. A task that is already running completes;
// Stopped reports when it has.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.done)
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
	})
}

// Stopped is closed when the loop goroutine has exited.
func (l *Loop) Stopped() <-chan struct{} {
	return l.stopped
}
