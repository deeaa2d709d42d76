package webview

import (
	"sync"

	"go.uber.org/zap"

	"github.com/ThuyDang88/webview/internal/infrastructure/logging"
)

// lane is an unbounded FIFO drained by a single goroutine. Jobs execute in
// push order, one at a time. A panic inside a job is recovered and logged;
// the lane keeps running. push never blocks, which lets engine goroutines
// hand work over without risking backpressure into the loading path.
type lane struct {
	name string
	log  *logging.Logger

	mu     sync.Mutex
	queue  []func()
	closed bool

	wake chan struct{}
	done chan struct{}
}

func newLane(name string, log *logging.Logger) *lane {
	l := &lane{
		name: name,
		log:  logging.OrNop(log),
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

// push enqueues a job. Jobs pushed after close are dropped.
func (l *lane) push(job func()) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.queue = append(l.queue, job)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *lane) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		jobs := l.queue
		l.queue = nil
		closed := l.closed
		l.mu.Unlock()

		for _, job := range jobs {
			l.exec(job)
		}

		if closed {
			return
		}
		<-l.wake
	}
}

func (l *lane) exec(job func()) {
	defer func() {
		if r := recover(); r != nil {
			// Handler failures are isolated per dispatch; the sequence
			// continues with the next job.
			l.log.Error("panic isolated in dispatch",
				zap.String("lane", l.name),
				zap.Any("panic", r),
			)
		}
	}()
	job()
}

// close stops the lane. Already-queued jobs still drain; the lane goroutine
// exits afterwards. Safe to call from inside a job and idempotent.
func (l *lane) close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// wait blocks until the lane goroutine has exited. Must not be called from
// inside a job.
func (l *lane) wait() {
	<-l.done
}
