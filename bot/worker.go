package bot

import (
	"context"

	zlog "github.com/rs/zerolog/log"
)

// Job is a unit of work run by the Worker.
type Job func(ctx context.Context)

// Worker runs queued jobs one at a time on a single goroutine, so a slow
// request never blocks the update listener.
type Worker struct {
	jobs chan Job
}

// NewWorker creates a worker whose queue holds up to size pending jobs.
func NewWorker(size int) *Worker {
	return &Worker{jobs: make(chan Job, size)}
}

// Submit queues job. It returns false when the queue is full.
func (w *Worker) Submit(job Job) bool {
	select {
	case w.jobs <- job:
		return true
	default:
		return false
	}
}

// Run executes jobs until ctx is cancelled. Jobs still queued at that point are dropped.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			zlog.Info().Int("dropped", len(w.jobs)).Msg("Worker stopped")
			return
		case job := <-w.jobs:
			w.run(ctx, job)
		}
	}
}

func (w *Worker) run(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			zlog.Error().Interface("panic", r).Msg("Job panicked")
		}
	}()
	job(ctx)
}
