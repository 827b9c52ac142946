package jobqueue

import "sync"

type Job func()

// Queue runs jobs one by one on a single goroutine, in the order they were
// enqueued.
type Queue struct {
	jobs     chan Job
	stop     chan struct{}
	finished chan struct{}
	stopOnce sync.Once
}

func New(buffer int) *Queue {
	q := &Queue{
		jobs:     make(chan Job, buffer),
		stop:     make(chan struct{}),
		finished: make(chan struct{}),
	}
	go q.run()
	return q
}

// Enqueue returns false when the queue is already stopped.
func (q *Queue) Enqueue(job Job) bool {
	select {
	case <-q.stop:
		return false
	default:
	}
	select {
	case q.jobs <- job:
		return true
	case <-q.stop:
		return false
	}
}

// Do enqueues job and waits for it to run.
func (q *Queue) Do(job Job) bool {
	done := make(chan struct{})
	if !q.Enqueue(
		func() {
			defer close(done)
			job()
		},
	) {
		return false
	}
	select {
	case <-done:
		return true
	case <-q.finished:
		select {
		case <-done:
			return true
		default:
			return false
		}
	}
}

// Stop runs the jobs already queued and waits for the worker to exit.
func (q *Queue) Stop() {
	q.stopOnce.Do(
		func() {
			close(q.stop)
		},
	)
	<-q.finished
}

func (q *Queue) run() {
	defer close(q.finished)
	for {
		select {
		case job := <-q.jobs:
			job()
		case <-q.stop:
			for {
				select {
				case job := <-q.jobs:
					job()
				default:
					return
				}
			}
		}
	}
}
