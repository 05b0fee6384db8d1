package app

import (
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/quantmind-br/photofeed/internal/cache"
	"github.com/quantmind-br/photofeed/internal/config"
	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/fetcher"
	"github.com/quantmind-br/photofeed/internal/flickr"
	"github.com/quantmind-br/photofeed/internal/notify"
	"github.com/quantmind-br/photofeed/internal/poll"
	"github.com/quantmind-br/photofeed/internal/scheduler"
	"github.com/quantmind-br/photofeed/internal/snapshot"
	"github.com/quantmind-br/photofeed/internal/utils"
)

// Runtime holds the long-lived dependencies shared by every command. One
// Runtime owns the store database, so only one may be open per store
// directory at a time.
type Runtime struct {
	Config     *config.Config
	Logger     *utils.Logger
	Store      *snapshot.BadgerStore
	Scheduler  *scheduler.Scheduler
	Source     domain.PhotoSource
	Reconciler *poll.Reconciler

	db      *badger.DB
	fetcher domain.Fetcher
	cache   domain.Cache
}

// Options contains options for opening a Runtime
type Options struct {
	Config *config.Config
	Logger *utils.Logger

	// Offline skips the photo source; only store commands work
	Offline bool
	// Source replaces the Flickr adapter
	Source domain.PhotoSource
	// Notifier receives new-item signals in addition to the log
	Notifier domain.Notifier
}

// Open wires the store, scheduler, photo source and reconciler. The poll
// task is registered with the scheduler but nothing is scheduled; call
// Scheduler.Resume to pick up persisted registrations.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = utils.NewLogger(utils.LoggerOptions{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		})
	}

	source := opts.Source
	if source == nil && !opts.Offline {
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
	}

	db, err := snapshot.OpenDB(snapshot.DBOptions{
		Directory: utils.ExpandPath(cfg.Store.Directory),
		InMemory:  cfg.Store.InMemory,
		Logger:    logger,
	})
	if err != nil {
		return nil, err
	}

	rt := &Runtime{
		Config: cfg,
		Logger: logger,
		Store:  snapshot.NewBadgerStore(db, logger),
		Scheduler: scheduler.New(scheduler.Options{
			DB: db,
			Retry: scheduler.RetryOptions{
				MaxRetries:      cfg.Poll.MaxRetries,
				InitialInterval: cfg.Poll.RetryInitial,
				MaxInterval:     cfg.Poll.RetryMax,
			},
			Logger: logger,
		}),
		db: db,
	}

	if source == nil && !opts.Offline {
		source, err = rt.openSource()
		if err != nil {
			rt.Close()
			return nil, err
		}
	}
	rt.Source = source

	if source != nil {
		notifiers := notify.Multi{notify.NewLog(logger)}
		if opts.Notifier != nil {
			notifiers = append(notifiers, opts.Notifier)
		}
		rt.Reconciler = poll.NewReconciler(source, rt.Store, notifiers, poll.Options{
			PageSize: cfg.Feed.PageSize,
			Logger:   logger,
		})
		rt.Scheduler.Register(poll.TaskID, rt.Reconciler.Task())
	}

	return rt, nil
}

func (rt *Runtime) openSource() (domain.PhotoSource, error) {
	cfg := rt.Config

	client, err := fetcher.NewClient(fetcher.ClientOptions{
		Timeout:     cfg.Flickr.Timeout,
		MaxRetries:  cfg.Flickr.MaxRetries,
		EnableCache: cfg.Cache.Enabled,
		CacheTTL:    cfg.Cache.TTL,
		UserAgent:   cfg.Flickr.UserAgent,
		Cacheable:   flickr.Cacheable,
		Logger:      rt.Logger,
	})
	if err != nil {
		return nil, err
	}
	rt.fetcher = client

	if cfg.Cache.Enabled {
		c, err := cache.NewBadgerCache(cache.Options{
			Directory: utils.ExpandPath(cfg.Cache.Directory),
			Logger:    rt.Logger,
		})
		if err != nil {
			// detail lookups still work uncached
			rt.Logger.Warn().Err(err).Msg("Response cache unavailable")
			client.SetCacheEnabled(false)
		} else {
			rt.cache = c
			client.SetCache(c)
		}
	}

	return flickr.NewSource(client, flickr.Options{
		BaseURL:         cfg.Flickr.BaseURL,
		APIKey:          cfg.Flickr.APIKey,
		RequestsPerHour: cfg.Flickr.RateLimit,
		Logger:          rt.Logger,
	})
}

// Close stops scheduled tasks and releases every resource in reverse order
// of acquisition
func (rt *Runtime) Close() error {
	var errs []error
	if err := rt.Scheduler.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := rt.Store.Close(); err != nil {
		errs = append(errs, err)
	}
	if rt.fetcher != nil {
		if err := rt.fetcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.cache != nil {
		if err := rt.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := rt.db.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
