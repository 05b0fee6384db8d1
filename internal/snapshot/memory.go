package snapshot

import (
	"context"
	"strings"
	"time"

	"github.com/quantmind-br/photofeed/internal/domain"
)

// Ensure MemoryStore implements domain.SnapshotStore
var _ domain.SnapshotStore = (*MemoryStore)(nil)

// MemoryStore keeps the snapshot in process memory
type MemoryStore struct {
	feed *feed
	// guarded by feed.mu
	current *domain.PollSnapshot
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{feed: newFeed(), now: time.Now}
}

// Read returns the stored snapshot, or nil when there is none
func (s *MemoryStore) Read(ctx context.Context) (*domain.PollSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	return s.current.Clone(), nil
}

// Write replaces the record with {query, ids}
func (s *MemoryStore) Write(ctx context.Context, query string, ids []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(query) == "" {
		return domain.NewValidationError("query", "must not be blank")
	}
	return s.feed.mutate(func() (*domain.PollSnapshot, error) {
		s.current = &domain.PollSnapshot{
			Query:        query,
			FirstPageIDs: append([]string{}, ids...),
			UpdatedAt:    s.now().UTC(),
		}
		return s.current, nil
	})
}

// Clear removes the record
func (s *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.feed.mutate(func() (*domain.PollSnapshot, error) {
		s.current = nil
		return nil, nil
	})
}

// Changes streams the current record and every later write or clear
func (s *MemoryStore) Changes(ctx context.Context) <-chan *domain.PollSnapshot {
	ch, _ := s.feed.subscribe(ctx, func() (*domain.PollSnapshot, error) {
		return s.current.Clone(), nil
	})
	return ch
}

// Close stops all change feeds
func (s *MemoryStore) Close() error {
	s.feed.close()
	return nil
}
