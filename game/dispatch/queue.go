// Package dispatch hands work from background workers to the producer tick.
// Workers Submit; only the producer calls Drain.
package dispatch

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultCapacity bounds the queue when no capacity is configured.
const DefaultCapacity = 64

// Task is one unit of work run on the producer goroutine.
type Task struct {
	Name string
	Run  func(ctx context.Context)
}

// Stats are cumulative queue counters.
type Stats struct {
	Pending   int    `json:"pending"`
	Capacity  int    `json:"capacity"`
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Executed  uint64 `json:"executed"`
	Panicked  uint64 `json:"panicked"`
}

// Queue is a bounded multi-producer, single-consumer task queue.
type Queue struct {
	ch     chan Task
	logger *zap.Logger

	submitted atomic.Uint64
	dropped   atomic.Uint64
	executed  atomic.Uint64
	panicked  atomic.Uint64
}

func NewQueue(capacity int, logger *zap.Logger) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{ch: make(chan Task, capacity), logger: logger}
}

// Submit enqueues t without blocking. It returns false when the queue is full.
func (q *Queue) Submit(t Task) bool {
	if t.Run == nil {
		return false
	}
	select {
	case q.ch <- t:
		q.submitted.Add(1)
		return true
	default:
		q.dropped.Add(1)
		q.logger.Warn("dispatch queue full, dropping task", zap.String("task", t.Name))
		return false
	}
}

// Drain runs up to max pending tasks in submission order and returns how
// many ran. max <= 0 drains everything currently queued.
func (q *Queue) Drain(ctx context.Context, max int) int {
	if max <= 0 {
		max = cap(q.ch)
	}
	n := 0
	for n < max {
		select {
		case t := <-q.ch:
			q.run(ctx, t)
			n++
		default:
			return n
		}
	}
	return n
}

func (q *Queue) run(ctx context.Context, t Task) {
	defer func() {
		if r := recover(); r != nil {
			q.panicked.Add(1)
			q.logger.Error("dispatch task panicked", zap.String("task", t.Name), zap.Any("recover", r))
		}
	}()
	t.Run(ctx)
	q.executed.Add(1)
}

func (q *Queue) Len() int { return len(q.ch) }

func (q *Queue) Stats() Stats {
	return Stats{
		Pending:   len(q.ch),
		Capacity:  cap(q.ch),
		Submitted: q.submitted.Load(),
		Dropped:   q.dropped.Load(),
		Executed:  q.executed.Load(),
		Panicked:  q.panicked.Load(),
	}
}
