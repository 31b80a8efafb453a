package scheduler

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/emptyset-io/cloudsweep/telemetry"
	"github.com/emptyset-io/cloudsweep/types"
)

const (
	// DefaultMaxAttempts bounds retries per task: the first attempt plus
	// up to two retries on transient failures.
	DefaultMaxAttempts = 3

	defaultBackoffBase = time.Second
	defaultBackoffCap  = 8 * time.Second
)

// TaskFunc executes a single scan task and returns its findings.
type TaskFunc func(ctx context.Context, task types.ScanTask) ([]types.Finding, error)

// Pool runs scan tasks with a hard cap on concurrent executions. Each
// submitted task produces exactly one TaskResult, retried attempts
// included.
type Pool struct {
	workers     int64
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
	logger      *telemetry.Logger
}

// NewPool creates a pool that never runs more than workers tasks at once.
func NewPool(workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		workers:     int64(workers),
		maxAttempts: DefaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		sleep:       sleepCtx,
		logger:      telemetry.NewLogger("scheduler"),
	}
}

// WithMaxAttempts overrides the per-task attempt ceiling.
func (p *Pool) WithMaxAttempts(n int) *Pool {
	if n > 0 {
		p.maxAttempts = n
	}
	return p
}

// Run executes every task and returns a channel carrying one result per
// task. The channel closes after the last result. Acquiring a worker
// slot blocks task launch, so at most the configured number of tasks is
// in flight at any instant.
func (p *Pool) Run(ctx context.Context, tasks []types.ScanTask, fn TaskFunc) <-chan types.TaskResult {
	results := make(chan types.TaskResult, len(tasks))
	sem := semaphore.NewWeighted(p.workers)

	var wg sync.WaitGroup
	go func() {
		for _, task := range tasks {
			if err := sem.Acquire(ctx, 1); err != nil {
				// Context cancelled while waiting for a slot. The task
				// still owes a result.
				results <- types.TaskResult{
					Task:    task,
					Outcome: types.OutcomeFailure,
					Err:     err,
				}
				continue
			}
			wg.Add(1)
			go func(task types.ScanTask) {
				defer wg.Done()
				defer sem.Release(1)
				results <- p.runTask(ctx, task, fn)
			}(task)
		}
		wg.Wait()
		close(results)
	}()
	return results
}

// runTask drives one task through its attempts. Findings from a failed
// attempt are discarded; only a fully successful attempt reports any.
func (p *Pool) runTask(ctx context.Context, task types.ScanTask, fn TaskFunc) types.TaskResult {
	p.logger.LogTaskStart(ctx, task)
	started := time.Now()

	var lastErr error
	attempts := 0
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		attempts = attempt
		findings, err := fn(ctx, task)
		if err == nil {
			outcome := types.OutcomeSuccess
			if attempt > 1 {
				outcome = types.OutcomePartial
			}
			result := types.TaskResult{
				Task:     task,
				Findings: findings,
				Outcome:  outcome,
				Attempts: attempt,
				Elapsed:  time.Since(started),
			}
			p.logger.LogTaskDone(ctx, result)
			return result
		}
		lastErr = err

		if !isTransient(err) || attempt == p.maxAttempts {
			break
		}
		p.logger.LogTaskRetry(ctx, task, attempt, err)
		if serr := p.sleep(ctx, p.backoff(attempt)); serr != nil {
			lastErr = serr
			break
		}
	}

	result := types.TaskResult{
		Task:     task,
		Outcome:  types.OutcomeFailure,
		Err:      lastErr,
		Attempts: attempts,
		Elapsed:  time.Since(started),
	}
	p.logger.LogTaskDone(ctx, result)
	return result
}

// backoff doubles per attempt, capped: 1s, 2s, 4s, 8s, 8s...
func (p *Pool) backoff(attempt int) time.Duration {
	delay := p.backoffBase << (attempt - 1)
	if delay > p.backoffCap {
		delay = p.backoffCap
	}
	return delay
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
