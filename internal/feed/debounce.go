package feed

import (
	"sync"
	"time"
)

// DefaultDebounce is the quiet period before a query edit is committed
const DefaultDebounce = 400 * time.Millisecond

// Commit is a debounced text ready to be applied
type Commit struct {
	Text string
	seq  uint64
}

// Debouncer delays query edits until input has been quiet for the delay.
// Every OnTextChanged supersedes the pending commit. A commit already handed
// to the callback can still be rejected by Claim if it was superseded before
// the consumer got to it.
type Debouncer struct {
	mu     sync.Mutex
	delay  time.Duration
	timer  *time.Timer
	seq    uint64
	commit func(Commit)
}

// NewDebouncer creates a Debouncer calling commit from a timer goroutine
func NewDebouncer(delay time.Duration, commit func(Commit)) *Debouncer {
	if delay <= 0 {
		delay = DefaultDebounce
	}
	return &Debouncer{delay: delay, commit: commit}
}

// OnTextChanged cancels any pending commit and schedules text
func (d *Debouncer) OnTextChanged(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	c := Commit{Text: text, seq: d.seq}
	d.timer = time.AfterFunc(d.delay, func() {
		d.mu.Lock()
		live := c.seq == d.seq
		d.mu.Unlock()
		if live {
			d.commit(c)
		}
	})
}

// Cancel drops the pending commit, including one already delivered but not
// yet claimed
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopLocked()
}

// Claim reports whether c is still the live commit and consumes it, so a
// commit is applied at most once
func (d *Debouncer) Claim(c Commit) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if c.seq != d.seq {
		return false
	}
	d.seq++
	d.timer = nil
	return true
}

// Pending reports whether a commit is scheduled or awaiting Claim
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
}
