// Package snapshot holds the single persisted "active search" record shared
// by the foreground session and the poll reconciler.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/utils"
)

// Key is where the active search record lives
const Key = "poll:active_search"

// Ensure BadgerStore implements domain.SnapshotStore
var _ domain.SnapshotStore = (*BadgerStore)(nil)

// DBOptions configures the shared badger database
type DBOptions struct {
	Directory string
	InMemory  bool
	// Logger receives badger's own diagnostics; nil keeps badger silent
	Logger *utils.Logger
}

// OpenDB opens the badger database that backs the snapshot store and the
// scheduler registry. Badger holds a directory lock, so one process at a
// time owns a given directory.
func OpenDB(opts DBOptions) (*badger.DB, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if opts.Directory == "" {
			return nil, errors.New("store directory is required")
		}
		if err := os.MkdirAll(opts.Directory, 0755); err != nil {
			return nil, err
		}
		badgerOpts = badger.DefaultOptions(opts.Directory)
	}
	if opts.Logger != nil {
		badgerOpts = badgerOpts.WithLogger(opts.Logger.ForStorage())
	} else {
		badgerOpts = badgerOpts.WithLogger(nil)
	}

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open store %s: %w", opts.Directory, err)
	}
	return db, nil
}

// BadgerStore persists the snapshot as one JSON record
type BadgerStore struct {
	db     *badger.DB
	feed   *feed
	logger *utils.Logger
	now    func() time.Time
}

// NewBadgerStore creates a store over db. The caller keeps ownership of db.
func NewBadgerStore(db *badger.DB, logger *utils.Logger) *BadgerStore {
	if logger == nil {
		logger = utils.NewNopLogger()
	}
	return &BadgerStore{
		db:     db,
		feed:   newFeed(),
		logger: logger.WithComponent("snapshot"),
		now:    time.Now,
	}
}

// Read returns the stored snapshot, or nil when there is none
func (s *BadgerStore) Read(ctx context.Context) (*domain.PollSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read()
}

func (s *BadgerStore) read() (*domain.PollSnapshot, error) {
	var snap *domain.PollSnapshot
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(Key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return nil
			}
			return err
		}
		return item.Value(func(val []byte) error {
			var decoded domain.PollSnapshot
			if err := json.Unmarshal(val, &decoded); err != nil {
				return fmt.Errorf("decode snapshot: %w", err)
			}
			snap = &decoded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Write replaces the record with {query, ids}
func (s *BadgerStore) Write(ctx context.Context, query string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(query) == "" {
		return domain.NewValidationError("query", "must not be blank")
	}

	snap := &domain.PollSnapshot{
		Query:        query,
		FirstPageIDs: append([]string{}, ids...),
		UpdatedAt:    s.now().UTC(),
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	err = s.feed.mutate(func() (*domain.PollSnapshot, error) {
		if err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Set([]byte(Key), data)
		}); err != nil {
			return nil, err
		}
		return snap, nil
	})
	if err != nil {
		s.logger.Error().Err(err).Str("query", query).Msg("Failed to write snapshot")
		return err
	}

	s.logger.Info().Str("query", query).Int("ids", len(ids)).Msg("Snapshot written")
	return nil
}

// Clear removes the record
func (s *BadgerStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.feed.mutate(func() (*domain.PollSnapshot, error) {
		return nil, s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete([]byte(Key))
		})
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to clear snapshot")
		return err
	}

	s.logger.Info().Msg("Snapshot cleared")
	return nil
}

// Changes streams the current record and every later write or clear.
// Intermediate values may be skipped when the reader lags; the latest one is
// always delivered.
func (s *BadgerStore) Changes(ctx context.Context) <-chan *domain.PollSnapshot {
	ch, err := s.feed.subscribe(ctx, s.read)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to subscribe to snapshot changes")
	}
	return ch
}

// Close stops all change feeds. The database itself is closed by its owner.
func (s *BadgerStore) Close() error {
	s.feed.close()
	return nil
}
