package worker

import (
	"context"
	"sync"

	"assessment-results/internal/logger"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Job func(context.Context) error

type task struct {
	job    Job
	result chan error
}

type WorkerPool struct {
	workerCount int
	jobChan     chan task
	wg          sync.WaitGroup
	log         zerolog.Logger
}

func NewWorkerPool(name string, workerCount int) *WorkerPool {
	return &WorkerPool{
		workerCount: workerCount,
		jobChan:     make(chan task, workerCount*2),
		log:         logger.Component("worker").With().Str("pool", name).Logger(),
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	wp.log.Info().Int("worker_count", wp.workerCount).Msg("Starting worker pool")

	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Stop runs every queued job to completion and waits for the workers.
// Submit must not be called afterwards.
func (wp *WorkerPool) Stop() {
	wp.log.Info().Msg("Stopping worker pool")
	close(wp.jobChan)
	wp.wg.Wait()
	wp.log.Info().Msg("Worker pool stopped")
}

// Submit blocks until the job is queued, so the queue consumer is throttled
// instead of dropping jobs. The returned channel receives the job's error
// once it has run.
func (wp *WorkerPool) Submit(ctx context.Context, job Job) (<-chan error, error) {
	t := task{job: job, result: make(chan error, 1)}
	select {
	case wp.jobChan <- t:
		return t.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Run submits the job and waits for its result.
func (wp *WorkerPool) Run(ctx context.Context, job Job) error {
	result, err := wp.Submit(ctx, job)
	if err != nil {
		return err
	}
	return <-result
}

// worker drains the channel until Stop closes it. A cancelled context is
// handed to the jobs, which fail fast, so every queued job reports back.
func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	log := wp.log.With().Int("worker_id", id).Logger()
	log.Debug().Msg("Worker started")

	for t := range wp.jobChan {
		err := t.job(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Job execution failed")
		}
		t.result <- err
	}
	log.Debug().Msg("Worker stopping due to closed job channel")
}

// Consume runs one queue consumer per worker. Each consumer waits for its
// job's result before popping the next message, so failures reach the
// consumer's dead-letter path.
func (wp *WorkerPool) Consume(ctx context.Context, consume func(ctx context.Context) error) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < wp.workerCount; i++ {
		g.Go(func() error {
			return consume(ctx)
		})
	}
	return g.Wait()
}
