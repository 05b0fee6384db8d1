// Package scheduler runs periodic tasks under stable identities, retrying
// retryable failures with exponential backoff.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dgraph-io/badger/v4"
	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/metrics"
	"github.com/quantmind-br/photofeed/internal/utils"
)

// TaskFunc is the body of a scheduled task
type TaskFunc func(ctx context.Context) error

// Ensure Scheduler implements domain.Scheduler
var _ domain.Scheduler = (*Scheduler)(nil)

// Scheduler is an in-process periodic scheduler. Each task identity has at
// most one live registration; scheduling with ReplaceExisting swaps it.
type Scheduler struct {
	mu      sync.Mutex
	tasks   map[string]TaskFunc
	entries map[string]*entry
	closed  bool
	wg      sync.WaitGroup

	registry *registry
	retry    RetryOptions
	logger   *utils.Logger
}

type entry struct {
	req    domain.ScheduleRequest
	cancel context.CancelFunc
	done   chan struct{}
}

// RetryOptions controls retries of a single failing execution
type RetryOptions struct {
	MaxRetries      int
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Options configures a Scheduler
type Options struct {
	// DB persists registrations so Resume can restore them; nil disables it
	DB     *badger.DB
	Retry  RetryOptions
	Logger *utils.Logger
}

// New creates a Scheduler
func New(opts Options) *Scheduler {
	if opts.Retry.InitialInterval <= 0 {
		opts.Retry.InitialInterval = 30 * time.Second
	}
	if opts.Retry.MaxInterval < opts.Retry.InitialInterval {
		opts.Retry.MaxInterval = opts.Retry.InitialInterval
	}
	if opts.Retry.MaxRetries < 0 {
		opts.Retry.MaxRetries = 0
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}

	var reg *registry
	if opts.DB != nil {
		reg = &registry{db: opts.DB}
	}

	return &Scheduler{
		tasks:    make(map[string]TaskFunc),
		entries:  make(map[string]*entry),
		registry: reg,
		retry:    opts.Retry,
		logger:   opts.Logger.WithComponent("scheduler"),
	}
}

// Register binds a task body to taskID
func (s *Scheduler) Register(taskID string, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[taskID] = fn
}

// Schedule starts periodic execution of a registered task
func (s *Scheduler) Schedule(ctx context.Context, req domain.ScheduleRequest) error {
	if req.Period <= 0 {
		return domain.NewValidationError("period", "must be positive")
	}
	if req.InitialDelay < 0 {
		req.InitialDelay = 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSchedulerClosed
	}
	fn, ok := s.tasks[req.TaskID]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, req.TaskID)
	}

	prev, exists := s.entries[req.TaskID]
	if exists && !req.ReplaceExisting {
		s.logger.Debug().Str("task", req.TaskID).Msg("Task already scheduled, keeping existing")
		return nil
	}

	if s.registry != nil {
		if err := s.registry.save(req); err != nil {
			return fmt.Errorf("persist %s: %w", req.TaskID, err)
		}
	}

	var prevDone <-chan struct{}
	if exists {
		prev.cancel()
		prevDone = prev.done
	}

	runCtx, cancel := context.WithCancel(context.Background())
	e := &entry{req: req, cancel: cancel, done: make(chan struct{})}
	s.entries[req.TaskID] = e

	s.wg.Add(1)
	go s.loop(runCtx, e, fn, prevDone)

	s.logger.Info().
		Str("task", req.TaskID).
		Dur("period", req.Period).
		Dur("initial_delay", req.InitialDelay).
		Bool("replaced", exists).
		Msg("Task scheduled")
	return nil
}

// Cancel stops the registration for taskID. Cancelling an unknown task is
// not an error.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return domain.ErrSchedulerClosed
	}

	if s.registry != nil {
		if err := s.registry.remove(taskID); err != nil {
			return fmt.Errorf("unpersist %s: %w", taskID, err)
		}
	}

	e, ok := s.entries[taskID]
	if !ok {
		return nil
	}
	e.cancel()
	delete(s.entries, taskID)

	s.logger.Info().Str("task", taskID).Msg("Task cancelled")
	return nil
}

// Resume re-schedules persisted registrations whose task is registered
func (s *Scheduler) Resume(ctx context.Context) (int, error) {
	if s.registry == nil {
		return 0, nil
	}
	reqs, err := s.registry.load()
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, req := range reqs {
		req.ReplaceExisting = true
		if err := s.Schedule(ctx, req); err != nil {
			s.logger.Warn().Err(err).Str("task", req.TaskID).Msg("Could not resume task")
			continue
		}
		resumed++
	}
	return resumed, nil
}

// RunNow executes the given registered tasks once, concurrently, with the
// same retry policy as scheduled runs. Errors are returned per task.
func (s *Scheduler) RunNow(ctx context.Context, taskIDs ...string) []error {
	s.mu.Lock()
	fns := make([]TaskFunc, len(taskIDs))
	for i, id := range taskIDs {
		fns[i] = s.tasks[id]
	}
	s.mu.Unlock()

	idx := make([]int, len(taskIDs))
	for i := range idx {
		idx[i] = i
	}

	return utils.ParallelForEach(ctx, idx, len(idx), func(ctx context.Context, i int) error {
		if fns[i] == nil {
			return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskIDs[i])
		}
		return s.execute(ctx, taskIDs[i], fns[i])
	})
}

// Scheduled returns the live registrations ordered by task ID
func (s *Scheduler) Scheduled() []domain.ScheduleRequest {
	s.mu.Lock()
	defer s.mu.Unlock()

	reqs := make([]domain.ScheduleRequest, 0, len(s.entries))
	for _, e := range s.entries {
		reqs = append(reqs, e.req)
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].TaskID < reqs[j].TaskID })
	return reqs
}

// Close stops every registration and waits for running executions.
// Persisted registrations are kept for the next Resume.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for id, e := range s.entries {
		e.cancel()
		delete(s.entries, id)
	}
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, e *entry, fn TaskFunc, prevDone <-chan struct{}) {
	defer s.wg.Done()
	defer close(e.done)

	// a replaced registration finishes its current execution first, even
	// when this one is itself replaced meanwhile
	if prevDone != nil {
		<-prevDone
	}

	timer := time.NewTimer(e.req.InitialDelay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		if err := s.execute(ctx, e.req.TaskID, fn); err != nil && ctx.Err() == nil {
			s.logger.Warn().Err(err).Str("task", e.req.TaskID).Msg("Task run failed, waiting for next period")
		}
		timer.Reset(e.req.Period)
	}
}

// execute runs fn once, retrying retryable failures
func (s *Scheduler) execute(ctx context.Context, taskID string, fn TaskFunc) error {
	logger := s.logger.WithTask(taskID)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retry.InitialInterval
	b.MaxInterval = s.retry.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()

	attempt := 0
	operation := func() error {
		attempt++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Debug().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("Task failed, retrying")
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.retry.MaxRetries)), ctx), notify)
	if err != nil {
		metrics.IncTaskRun(taskID, metrics.ResultFailed)
		return err
	}
	metrics.IncTaskRun(taskID, metrics.ResultOK)
	logger.Debug().Int("attempts", attempt).Msg("Task run finished")
	return nil
}
