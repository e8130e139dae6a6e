package pipeline

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Skryldev/stem-lab/domain/model"
	"github.com/Skryldev/stem-lab/pkg/logger"
	"github.com/Skryldev/stem-lab/pkg/progress"
)

// WorkerPool runs independent sessions concurrently. Each job gets its own
// session and workspace, so jobs never share artifacts.
type WorkerPool struct {
	pipeline *Pipeline
	workers  int
	log      *logger.Logger
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(p *Pipeline, workers int, log *logger.Logger) *WorkerPool {
	if workers <= 0 {
		workers = 2
	}
	if log == nil {
		log = logger.Nop()
	}
	return &WorkerPool{
		pipeline: p,
		workers:  workers,
		log:      log,
	}
}

// Run processes batch jobs concurrently and sends results to returned channel
// The channel is closed when all jobs are complete or context is canceled
func (wp *WorkerPool) Run(ctx context.Context, jobs []model.BatchJob, reporter progress.Reporter) <-chan model.BatchResult {
	results := make(chan model.BatchResult, len(jobs))

	go func() {
		defer close(results)

		var wg sync.WaitGroup
		semaphore := make(chan struct{}, wp.workers)

		for _, job := range jobs {
			select {
			case <-ctx.Done():
				results <- model.BatchResult{
					JobID: job.ID,
					Err:   ctx.Err(),
				}
				continue
			case semaphore <- struct{}{}:
			}

			wg.Add(1)
			go func(j model.BatchJob) {
				defer wg.Done()
				defer func() { <-semaphore }()

				result, err := wp.processJob(ctx, j, reporter)
				results <- model.BatchResult{
					JobID:  j.ID,
					Result: result,
					Err:    err,
				}
			}(job)
		}

		wg.Wait()
	}()

	return results
}

func (wp *WorkerPool) processJob(ctx context.Context, job model.BatchJob, reporter progress.Reporter) (*model.SessionResult, error) {
	sess, err := wp.pipeline.NewSession(job.Options, reporter)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", job.ID, err)
	}

	wp.log.Info("processing batch job",
		zap.String("job_id", job.ID),
		zap.String("session_id", sess.ID()),
		zap.Int("sources", len(job.Sources)),
	)

	result, err := wp.pipeline.Run(ctx, sess, job.Sources...)
	if err != nil {
		wp.log.Error("batch job failed",
			zap.String("job_id", job.ID),
			zap.String("session_id", sess.ID()),
			zap.Error(err),
		)
		return nil, fmt.Errorf("job %s failed: %w", job.ID, err)
	}

	return result, nil
}
