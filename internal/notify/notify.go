// Package notify delivers the "new items" signal raised by the poll
// reconciler.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/utils"
)

var (
	_ domain.Notifier = (*Log)(nil)
	_ domain.Notifier = (*Writer)(nil)
	_ domain.Notifier = Multi(nil)
)

// Log records notifications as structured log events
type Log struct {
	logger *utils.Logger
}

// NewLog creates a Log notifier
func NewLog(logger *utils.Logger) *Log {
	return &Log{logger: logger.WithComponent("notify")}
}

// NotifyNewItems logs the notification
func (n *Log) NotifyNewItems(ctx context.Context, query string, count int) {
	n.logger.Info().Str("query", query).Int("count", count).Msg("New photos")
}

// Writer prints a human-readable line per notification
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates a Writer notifier on w
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// NotifyNewItems writes the message; write errors are dropped
func (n *Writer) NotifyNewItems(ctx context.Context, query string, count int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, _ = fmt.Fprintln(n.w, Message(query, count))
}

// Multi fans a notification out to every notifier in order
type Multi []domain.Notifier

// NotifyNewItems calls each notifier
func (m Multi) NotifyNewItems(ctx context.Context, query string, count int) {
	for _, n := range m {
		n.NotifyNewItems(ctx, query, count)
	}
}

// Message renders the notification text
func Message(query string, count int) string {
	if count == 1 {
		return fmt.Sprintf("1 new photo for %q", query)
	}
	return fmt.Sprintf("%d new photos for %q", count, query)
}
