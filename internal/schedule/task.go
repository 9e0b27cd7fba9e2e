// Package schedule runs cancellable periodic and one-shot callbacks on an
// injectable clock.
package schedule

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Task is a running schedule. The zero value is not usable.
type Task struct {
	stop      chan struct{}
	done      chan struct{}
	once      sync.Once
	cancelled atomic.Bool
}

func newTask() *Task {
	return &Task{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Every calls fn each interval until fn returns false or the task is cancelled
func Every(clk clock.Clock, interval time.Duration, fn func() bool) *Task {
	t := newTask()
	ticker := clk.Ticker(interval)

	go func() {
		defer close(t.done)
		defer ticker.Stop()

		for {
			select {
			case <-t.stop:
				return
			case <-ticker.C:
				if t.cancelled.Load() {
					return
				}
				if !fn() {
					return
				}
			}
		}
	}()

	return t
}

// After calls fn once after d unless the task is cancelled first
func After(clk clock.Clock, d time.Duration, fn func()) *Task {
	t := newTask()
	timer := clk.Timer(d)

	go func() {
		defer close(t.done)

		select {
		case <-t.stop:
			timer.Stop()
		case <-timer.C:
			if !t.cancelled.Load() {
				fn()
			}
		}
	}()

	return t
}

// Cancel stops the task. It is idempotent and does not wait for the goroutine.
func (t *Task) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(func() {
		t.cancelled.Store(true)
		close(t.stop)
	})
}

// Done is closed when the task goroutine has exited
func (t *Task) Done() <-chan struct{} {
	return t.done
}
