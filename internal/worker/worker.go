package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/itstheanurag/runbox/internal/executor"
	"github.com/itstheanurag/runbox/internal/metrics"
	"github.com/itstheanurag/runbox/internal/queue"
)

type Executor interface {
	Execute(ctx context.Context, opts executor.ExecuteOptions) *executor.ExecutionResult
}

// Recorder persists finished jobs. Failures are logged and otherwise ignored.
type Recorder interface {
	RecordExecution(ctx context.Context, opts executor.ExecuteOptions, res *executor.ExecutionResult) error
}

type Worker struct {
	id       int
	executor Executor
	manager  *queue.Manager
	recorder Recorder
	logger   *zerolog.Logger
}

func NewWorker(id int, exec Executor, manager *queue.Manager, recorder Recorder, logger *zerolog.Logger) *Worker {
	return &Worker{
		id:       id,
		executor: exec,
		manager:  manager,
		recorder: recorder,
		logger:   logger,
	}
}

func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Int("worker_id", w.id).Msg("worker started")
	for {
		select {
		case job := <-w.manager.NextJob():
			w.manager.UpdateQueueMetric()
			metrics.ActiveWorkers.Inc()
			w.processJob(job)
			metrics.ActiveWorkers.Dec()
		case <-ctx.Done():
			w.logger.Info().Int("worker_id", w.id).Msg("worker stopping")
			return
		}
	}
}

func (w *Worker) processJob(job *queue.Job) {
	w.logger.Info().Int("worker_id", w.id).Str("job_id", job.ID).Str("language", job.Options.LanguageID).Msg("processing job")

	// an abandoned request still runs to completion so its workspace is cleaned up here
	jobCtx := context.Background()
	if job.Ctx != nil {
		jobCtx = context.WithoutCancel(job.Ctx)
	}
	startTime := time.Now()
	result := w.executor.Execute(jobCtx, job.Options)

	w.logger.Info().
		Int("worker_id", w.id).
		Str("job_id", job.ID).
		Str("outcome", string(result.Outcome)).
		Dur("took", time.Since(startTime)).
		Msg("job finished")

	job.Result <- result

	if w.recorder != nil {
		// the caller may be gone already; the audit row should still land
		recCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.recorder.RecordExecution(recCtx, job.Options, result); err != nil {
			w.logger.Warn().Err(err).Str("job_id", job.ID).Msg("failed to record execution")
		}
	}
}

// StartPool launches n workers that stop when ctx is cancelled.
func StartPool(ctx context.Context, n int, exec Executor, manager *queue.Manager, recorder Recorder, logger *zerolog.Logger) {
	for i := 1; i <= n; i++ {
		go NewWorker(i, exec, manager, recorder, logger).Start(ctx)
	}
}
