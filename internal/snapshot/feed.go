package snapshot

import (
	"context"
	"sync"

	"github.com/quantmind-br/photofeed/internal/domain"
)

// feed fans snapshot changes out to subscribers. Mutations run under the
// feed lock so that a new subscriber's initial value and the stream that
// follows it never skip or reorder a write.
type feed struct {
	mu     sync.Mutex
	subs   map[int]chan *domain.PollSnapshot
	nextID int
	closed bool
	done   chan struct{}
}

func newFeed() *feed {
	return &feed{subs: make(map[int]chan *domain.PollSnapshot), done: make(chan struct{})}
}

// mutate applies fn and publishes its result on success
func (f *feed) mutate(fn func() (*domain.PollSnapshot, error)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return domain.ErrStoreClosed
	}
	next, err := fn()
	if err != nil {
		return err
	}
	for _, ch := range f.subs {
		offer(ch, next.Clone())
	}
	return nil
}

// subscribe registers a subscriber primed with current(). The channel is
// closed when ctx is done or the feed closes.
func (f *feed) subscribe(ctx context.Context, current func() (*domain.PollSnapshot, error)) (<-chan *domain.PollSnapshot, error) {
	ch := make(chan *domain.PollSnapshot, 1)

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(ch)
		return ch, domain.ErrStoreClosed
	}
	initial, err := current()
	if err != nil {
		f.mu.Unlock()
		close(ch)
		return ch, err
	}
	ch <- initial
	id := f.nextID
	f.nextID++
	f.subs[id] = ch
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-f.done:
			return
		}
		f.mu.Lock()
		defer f.mu.Unlock()
		if c, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(c)
		}
	}()

	return ch, nil
}

func (f *feed) close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	close(f.done)
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

// offer replaces any undelivered value with v. Callers hold the feed lock,
// so there is a single producer per channel.
func offer(ch chan *domain.PollSnapshot, v *domain.PollSnapshot) {
	for {
		select {
		case ch <- v:
			return
		default:
			select {
			case <-ch:
			default:
			}
		}
	}
}
