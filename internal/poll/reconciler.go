package poll

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/metrics"
	"github.com/quantmind-br/photofeed/internal/utils"
)

// DefaultPageSize matches the foreground first page
const DefaultPageSize = 30

// Reconciler runs one poll: read snapshot, fetch the first page, diff,
// notify, rewrite. It needs nothing from the foreground session.
type Reconciler struct {
	source   domain.PhotoSource
	store    domain.SnapshotStore
	notifier domain.Notifier
	pageSize int
	logger   *utils.Logger

	mu   sync.Mutex
	last *Result
}

// Options configures a Reconciler
type Options struct {
	PageSize int
	Logger   *utils.Logger
}

// Result describes a finished run
type Result struct {
	RunID   string
	Query   string
	Skipped bool
	Added   []string
}

// NewReconciler creates a Reconciler
func NewReconciler(source domain.PhotoSource, store domain.SnapshotStore, notifier domain.Notifier, opts Options) *Reconciler {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Logger == nil {
		opts.Logger = utils.NewNopLogger()
	}
	return &Reconciler{
		source:   source,
		store:    store,
		notifier: notifier,
		pageSize: opts.PageSize,
		logger:   opts.Logger.WithComponent("reconciler"),
	}
}

// Run performs one reconciliation. Errors are wrapped as retryable; the
// snapshot is left untouched whenever the fetch fails.
func (r *Reconciler) Run(ctx context.Context) (*Result, error) {
	start := time.Now()
	result := &Result{RunID: uuid.NewString()}
	defer r.record(result)
	logger := r.logger.WithRunID(result.RunID)

	prev, err := r.store.Read(ctx)
	if err != nil {
		metrics.ObservePollRun(metrics.ResultFailed, time.Since(start))
		logger.Error().Err(err).Msg("Failed to read snapshot")
		return result, domain.NewRetryableError(fmt.Errorf("read snapshot: %w", err))
	}
	if !prev.IsActive() {
		result.Skipped = true
		metrics.ObservePollRun(metrics.ResultSkipped, time.Since(start))
		logger.Debug().Msg("No active search, nothing to poll")
		return result, nil
	}
	result.Query = prev.Query

	page, err := r.source.FetchPage(ctx, domain.Search(prev.Query), 1, r.pageSize)
	if err != nil {
		metrics.IncFetchFailure(metrics.FetchPoll)
		metrics.ObservePollRun(metrics.ResultFailed, time.Since(start))
		logger.Warn().Err(err).Str("query", prev.Query).Msg("Poll fetch failed")
		return result, domain.NewRetryableError(fmt.Errorf("fetch %q: %w", prev.Query, err))
	}

	next, added := Reconcile(prev, page)
	result.Added = added

	if len(added) > 0 {
		r.notifier.NotifyNewItems(ctx, prev.Query, len(added))
		metrics.AddNewItems(len(added))
	}

	if err := r.store.Write(ctx, next.Query, next.FirstPageIDs); err != nil {
		metrics.ObservePollRun(metrics.ResultFailed, time.Since(start))
		logger.Error().Err(err).Str("query", prev.Query).Msg("Failed to rewrite snapshot")
		return result, domain.NewRetryableError(fmt.Errorf("write snapshot: %w", err))
	}

	metrics.ObservePollRun(metrics.ResultOK, time.Since(start))
	logger.Info().
		Str("query", prev.Query).
		Int("fetched", len(next.FirstPageIDs)).
		Int("added", len(added)).
		Dur("took", time.Since(start)).
		Msg("Poll complete")

	return result, nil
}

// LastResult returns the result of the most recent run, failed or not, or
// nil before the first one
func (r *Reconciler) LastResult() *Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Reconciler) record(result *Result) {
	r.mu.Lock()
	r.last = result
	r.mu.Unlock()
}

// Task adapts Run to the scheduler's task signature
func (r *Reconciler) Task() func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := r.Run(ctx)
		return err
	}
}
