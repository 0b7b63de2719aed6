package dispatch

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func task(name string, out *[]string) Task {
	return Task{Name: name, Run: func(context.Context) { *out = append(*out, name) }}
}

// ---- Submit ----

func TestQueue_Submit_DropsWhenFull(t *testing.T) {
	q := NewQueue(2, zap.NewNop())
	var ran []string
	assert.True(t, q.Submit(task("a", &ran)))
	assert.True(t, q.Submit(task("b", &ran)))
	assert.False(t, q.Submit(task("c", &ran)))
	assert.False(t, q.Submit(Task{Name: "nil"}))

	s := q.Stats()
	assert.Equal(t, 2, s.Pending)
	assert.Equal(t, uint64(2), s.Submitted)
	assert.Equal(t, uint64(1), s.Dropped)
}

func TestQueue_DefaultCapacity(t *testing.T) {
	q := NewQueue(0, zap.NewNop())
	assert.Equal(t, DefaultCapacity, q.Stats().Capacity)
}

// ---- Drain ----

func TestQueue_Drain_OrderAndLimit(t *testing.T) {
	q := NewQueue(8, zap.NewNop())
	var ran []string
	for _, n := range []string{"a", "b", "c"} {
		q.Submit(task(n, &ran))
	}

	assert.Equal(t, 2, q.Drain(context.Background(), 2))
	assert.Equal(t, []string{"a", "b"}, ran)
	assert.Equal(t, 1, q.Len())

	assert.Equal(t, 1, q.Drain(context.Background(), 0))
	assert.Equal(t, []string{"a", "b", "c"}, ran)
	assert.Equal(t, 0, q.Drain(context.Background(), 5))
}

func TestQueue_Drain_RecoversPanic(t *testing.T) {
	q := NewQueue(4, zap.NewNop())
	var ran []string
	q.Submit(Task{Name: "boom", Run: func(context.Context) { panic("boom") }})
	q.Submit(task("after", &ran))

	assert.Equal(t, 2, q.Drain(context.Background(), 0))
	assert.Equal(t, []string{"after"}, ran)
	s := q.Stats()
	assert.Equal(t, uint64(1), s.Panicked)
	assert.Equal(t, uint64(1), s.Executed)
}

func TestQueue_ConcurrentSubmit(t *testing.T) {
	q := NewQueue(64, zap.NewNop())
	var wg sync.WaitGroup
	var mu sync.Mutex
	count := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 16; j++ {
				q.Submit(Task{Name: "inc", Run: func(context.Context) {
					mu.Lock()
					count++
					mu.Unlock()
				}})
			}
		}()
	}
	wg.Wait()
	s := q.Stats()
	assert.Equal(t, uint64(128), s.Submitted+s.Dropped)
	q.Drain(context.Background(), 0)
	assert.Equal(t, int(s.Submitted), count)
}
