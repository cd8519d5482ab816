package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerRunsJobsInOrder(t *testing.T) {
	w := NewWorker(10)
	var mu sync.Mutex
	var order []int

	for i := 0; i < 5; i++ {
		i := i
		require.True(t, w.Submit(func(context.Context) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 5
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestWorkerSurvivesPanic(t *testing.T) {
	w := NewWorker(2)
	done := make(chan struct{})
	w.Submit(func(context.Context) { panic("boom") })
	w.Submit(func(context.Context) { close(done) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second job did not run")
	}
}

func TestWorkerQueueFull(t *testing.T) {
	w := NewWorker(1)
	assert.True(t, w.Submit(func(context.Context) {}))
	assert.False(t, w.Submit(func(context.Context) {}))
}
