package queue

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/itstheanurag/runbox/internal/executor"
	"github.com/itstheanurag/runbox/internal/metrics"
)

var ErrQueueFull = errors.New("execution queue is full")

type Job struct {
	ID      string
	Options executor.ExecuteOptions
	// Result receives exactly one value. It is buffered so a worker never
	// blocks on a caller that went away.
	Result chan *executor.ExecutionResult
	Ctx    context.Context
}

func NewJob(ctx context.Context, opts executor.ExecuteOptions) *Job {
	return &Job{
		ID:      uuid.NewString(),
		Options: opts,
		Result:  make(chan *executor.ExecutionResult, 1),
		Ctx:     ctx,
	}
}

// Manager is the admission queue in front of the worker pool. Its capacity
// bounds how many accepted jobs may wait for a worker.
type Manager struct {
	jobQueue chan *Job
}

func NewManager(capacity int) *Manager {
	return &Manager{
		jobQueue: make(chan *Job, capacity),
	}
}

// Submit enqueues a job without blocking.
func (m *Manager) Submit(job *Job) error {
	select {
	case m.jobQueue <- job:
		m.UpdateQueueMetric()
		return nil
	default:
		metrics.QueueRejections.Inc()
		return ErrQueueFull
	}
}

// Dispatch submits a job and waits for its result. If ctx ends first the job
// is abandoned; the worker still runs it to completion and cleans it up.
func (m *Manager) Dispatch(ctx context.Context, opts executor.ExecuteOptions) (*executor.ExecutionResult, error) {
	job := NewJob(ctx, opts)
	if err := m.Submit(job); err != nil {
		return nil, err
	}
	select {
	case res := <-job.Result:
		return res, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *Manager) NextJob() <-chan *Job {
	return m.jobQueue
}

func (m *Manager) Len() int {
	return len(m.jobQueue)
}

func (m *Manager) UpdateQueueMetric() {
	metrics.QueueDepth.Set(float64(len(m.jobQueue)))
}
