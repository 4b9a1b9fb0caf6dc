package inmemory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/bank-normalizer/internal/jobs"
)

var errQueueClosed = errors.New("queue is closed")

// Option configures a Queue.
type Option func(*Queue)

// WithWorkers sets the number of concurrent workers. Values below one mean one.
func WithWorkers(n int) Option {
	return func(q *Queue) {
		if n < 1 {
			n = 1
		}
		q.workers = n
	}
}

// WithBackoff sets the delay before retry number n (starting at 1).
func WithBackoff(fn func(retry int) time.Duration) Option {
	return func(q *Queue) { q.backoff = fn }
}

// LinearBackoff waits retry * step before each retry.
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(retry int) time.Duration {
		return time.Duration(retry) * step
	}
}

// Queue is an in-memory implementation of job publisher and consumer.
// It uses channels for job distribution and is safe for concurrent use.
type Queue struct {
	jobChan   chan *jobs.ExportFileJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	pending   sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool

	workers int
	backoff func(int) time.Duration
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can be queued before Publish blocks.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	q := &Queue{
		jobChan:   make(chan *jobs.ExportFileJob, bufferSize),
		closeChan: make(chan struct{}),
		store:     store,
		workers:   5,
		backoff:   LinearBackoff(time.Second),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Publish implements the Publisher interface.
func (q *Queue) Publish(ctx context.Context, job *jobs.ExportFileJob) error {
	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = jobs.DefaultMaxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("failed to save job: %w", err)
		}
	}

	q.pending.Add(1)
	if err := q.enqueue(ctx, job); err != nil {
		q.pending.Done()
		return err
	}
	return nil
}

func (q *Queue) enqueue(ctx context.Context, job *jobs.ExportFileJob) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		return errQueueClosed
	}

	select {
	case q.jobChan <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closeChan:
		return errQueueClosed
	}
}

// Start implements the Consumer interface.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return errQueueClosed
	}
	q.mu.RUnlock()

	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, handler)
	}

	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			if job == nil {
				return
			}

			q.processJob(ctx, job, handler)
		}
	}
}

// processJob runs one attempt. Failed attempts are re-enqueued after a
// backoff until MaxRetries is exhausted; permanent errors fail immediately.
func (q *Queue) processJob(ctx context.Context, job *jobs.ExportFileJob, handler jobs.JobHandler) {
	job.Status = jobs.JobStatusRunning
	now := time.Now()
	job.StartedAt = &now
	q.save(ctx, job)

	err := handler(ctx, job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	if err == nil {
		job.Status = jobs.JobStatusCompleted
		job.Error = ""
		q.settle(ctx, job)
		return
	}

	job.Error = err.Error()
	if jobs.IsPermanent(err) || job.RetryCount >= job.MaxRetries || ctx.Err() != nil {
		job.Status = jobs.JobStatusFailed
		q.settle(ctx, job)
		return
	}

	job.RetryCount++
	job.Status = jobs.JobStatusRetrying
	q.save(ctx, job)

	time.AfterFunc(q.backoff(job.RetryCount), func() {
		job.Status = jobs.JobStatusPending
		job.StartedAt = nil
		job.CompletedAt = nil
		if err := q.enqueue(ctx, job); err != nil {
			job.Status = jobs.JobStatusFailed
			job.Error = fmt.Sprintf("retry not scheduled: %v", err)
			q.settle(ctx, job)
		}
	})
}

func (q *Queue) save(ctx context.Context, job *jobs.ExportFileJob) {
	if q.store != nil {
		_ = q.store.SaveJob(context.WithoutCancel(ctx), job)
	}
}

// settle records a terminal state and releases the job from Wait.
func (q *Queue) settle(ctx context.Context, job *jobs.ExportFileJob) {
	q.save(ctx, job)
	q.pending.Done()
}

// Wait blocks until every published job reached a terminal state.
func (q *Queue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.pending.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop implements the Consumer interface.
// It stops the workers and fails jobs still waiting in the buffer.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for {
		select {
		case job := <-q.jobChan:
			job.Status = jobs.JobStatusFailed
			job.Error = errQueueClosed.Error()
			q.settle(ctx, job)
		default:
			return nil
		}
	}
}

// Close implements the Publisher interface.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
