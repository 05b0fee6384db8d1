package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/metrics"
	"github.com/quantmind-br/photofeed/internal/poll"
)

// RunDaemon keeps the poll scheduled without a foreground session. It
// resumes persisted registrations, schedules the poll when an active
// search exists but nothing is registered, and serves metrics when
// enabled. It returns when ctx is done.
func RunDaemon(ctx context.Context, rt *Runtime) error {
	if rt.Reconciler == nil {
		return fmt.Errorf("daemon needs a photo source")
	}
	logger := rt.Logger.WithComponent("daemon")

	n, err := rt.Scheduler.Resume(ctx)
	if err != nil {
		return fmt.Errorf("resume tasks: %w", err)
	}

	if n == 0 {
		snap, err := rt.Store.Read(ctx)
		if err != nil {
			return fmt.Errorf("read snapshot: %w", err)
		}
		if snap.IsActive() {
			err := rt.Scheduler.Schedule(ctx, domain.ScheduleRequest{
				TaskID:          poll.TaskID,
				Period:          rt.Config.Poll.Interval,
				InitialDelay:    rt.Config.Poll.InitialDelay,
				ReplaceExisting: true,
			})
			if err != nil {
				return fmt.Errorf("schedule poll: %w", err)
			}
			n = 1
		}
	}

	if rt.Config.Metrics.Enabled {
		srv := metrics.SetupMetricsEndpoint(rt.Config.Metrics.Address, logger)
		logger.Info().Str("address", rt.Config.Metrics.Address).Msg("Serving metrics")
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn().Err(err).Msg("Metrics endpoint shutdown")
			}
		}()
	}

	for _, req := range rt.Scheduler.Scheduled() {
		logger.Info().Str("task", req.TaskID).Dur("period", req.Period).Msg("Task active")
	}
	logger.Info().Int("tasks", n).Msg("Daemon started")
	<-ctx.Done()
	logger.Info().Msg("Daemon stopping")
	return nil
}

// PollOnce runs the registered poll task once, retrying transient failures
// with the same policy as scheduled runs, and returns the last attempt's
// result.
func PollOnce(ctx context.Context, rt *Runtime) (*poll.Result, error) {
	if rt.Reconciler == nil {
		return nil, errors.New("poll needs a photo source")
	}
	errs := rt.Scheduler.RunNow(ctx, poll.TaskID)
	res, err := rt.Reconciler.LastResult(), errs[0]
	if err == nil && res == nil {
		// cancelled before the first attempt
		err = ctx.Err()
	}
	return res, err
}
