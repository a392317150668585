// Package workqueue implements a FIFO of jobs drained by a fixed number of
// worker goroutines.
package workqueue

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrClosed is returned by Queue.Submit once the Queue has been closed.
var ErrClosed = errors.New("work queue closed")

// Config holds the settings of a Queue.
type Config struct {
	// Log is the Logger used for panicking jobs. If nil, slog.Default() is
	// used.
	Log *slog.Logger
	// Workers is the number of goroutines running jobs. If zero or negative,
	// 2 workers are started.
	Workers int
}

// Queue runs submitted jobs in submission order on a pool of workers. Jobs may
// block, for example on disk I/O, which occupies their worker for the
// duration.
type Queue struct {
	log *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	jobs   []func()
	closed bool

	wg sync.WaitGroup
}

// New creates a Queue using the fields of conf and starts its workers.
func (conf Config) New() *Queue {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	if conf.Workers <= 0 {
		conf.Workers = 2
	}
	q := &Queue{log: conf.Log.With("subsystem", "workqueue")}
	q.cond = sync.NewCond(&q.mu)
	q.wg.Add(conf.Workers)
	for range conf.Workers {
		go q.work()
	}
	return q
}

// Submit appends job to the queue. It returns ErrClosed if the Queue no longer
// accepts work.
func (q *Queue) Submit(job func()) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrClosed
	}
	q.jobs = append(q.jobs, job)
	q.cond.Signal()
	return nil
}

// Len returns the number of jobs waiting to be run.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

// Close stops accepting jobs, waits for the queued jobs to finish and joins
// the workers. Close may be called more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) work() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.jobs) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return
		}
		job := q.jobs[0]
		q.jobs[0] = nil
		q.jobs = q.jobs[1:]
		q.mu.Unlock()

		q.run(job)
	}
}

// run runs job, recovering from a panic so that the worker survives.
func (q *Queue) run(job func()) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("Job panicked.", "error", fmt.Sprint(r))
		}
	}()
	job()
}
