package domain

import (
	"context"
	"net/http"
	"time"
)

// PhotoSource is the remote photo feed
type PhotoSource interface {
	// FetchPage returns one page of the feed addressed by query. An empty
	// page is a successful result, never an error.
	FetchPage(ctx context.Context, query ListQuery, page, pageSize int) (*Page, error)
	// PhotoInfo returns full details for a single photo
	PhotoInfo(ctx context.Context, photoID, secret string) (*PhotoDetail, error)
}

// SnapshotStore is the durable single-slot register holding the active
// search snapshot. It is shared by the foreground session and the poll
// reconciler and holds no domain logic.
type SnapshotStore interface {
	// Read returns the current snapshot, or nil when none is stored
	Read(ctx context.Context) (*PollSnapshot, error)
	// Write replaces the whole record
	Write(ctx context.Context, query string, ids []string) error
	// Clear removes the record
	Clear(ctx context.Context) error
	// Changes delivers the current value immediately, then every subsequent
	// write or clear, until ctx is done. A nil value means no snapshot.
	Changes(ctx context.Context) <-chan *PollSnapshot
	// Close releases store resources
	Close() error
}

// Scheduler runs periodic tasks under a stable identity
type Scheduler interface {
	// Schedule registers a periodic task. With ReplaceExisting a previous
	// registration for the same TaskID is replaced, otherwise it is kept.
	Schedule(ctx context.Context, req ScheduleRequest) error
	// Cancel removes the registration for taskID
	Cancel(ctx context.Context, taskID string) error
}

// Notifier delivers the "new items" signal raised by the poll reconciler
type Notifier interface {
	// NotifyNewItems is fire-and-forget
	NotifyNewItems(ctx context.Context, query string, count int)
}

// Fetcher issues GET requests against the photo API
type Fetcher interface {
	// Get may answer from the response cache. Used for lookups whose
	// answer does not change, such as photo details.
	Get(ctx context.Context, url string) (*Response, error)
	// GetFresh always goes to the network. Feed pages use it.
	GetFresh(ctx context.Context, url string) (*Response, error)
	Close() error
}

// Response is a successful (2xx) API response
type Response struct {
	URL         string
	StatusCode  int
	ContentType string
	Headers     http.Header
	Body        []byte
	// FromCache is set when no request was made
	FromCache bool
}

// Cache stores response bodies keyed by request URL. A missing or expired
// entry reads as ErrCacheMiss.
type Cache interface {
	Get(ctx context.Context, url string) ([]byte, error)
	// Set keeps body for ttl; zero keeps it until deleted
	Set(ctx context.Context, url string, body []byte, ttl time.Duration) error
	Has(ctx context.Context, url string) bool
	Delete(ctx context.Context, url string) error
	Close() error
}
