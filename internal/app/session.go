package app

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/quantmind-br/photofeed/internal/feed"
)

// detailTimeout bounds a single :open lookup
const detailTimeout = 30 * time.Second

// Session is an interactive, line-driven browse session. The background
// poll runs in-process for as long as the session lives.
type Session struct {
	rt  *Runtime
	in  io.Reader
	out io.Writer
}

// NewSession creates a browse session reading commands from in
func NewSession(rt *Runtime, in io.Reader, out io.Writer) *Session {
	return &Session{rt: rt, in: in, out: out}
}

// Run drives the session until the input ends, :quit is entered or ctx is
// done
func (s *Session) Run(ctx context.Context) error {
	if s.rt.Source == nil {
		return fmt.Errorf("browse needs a photo source")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := s.rt.Logger.WithComponent("session")
	if n, err := s.rt.Scheduler.Resume(ctx); err != nil {
		logger.Warn().Err(err).Msg("Could not resume scheduled tasks")
	} else if n > 0 {
		logger.Debug().Int("tasks", n).Msg("Resumed scheduled tasks")
	}

	cfg := s.rt.Config
	m := feed.NewMachine(s.rt.Source, s.rt.Store, s.rt.Scheduler, feed.Config{
		PageSize:         cfg.Feed.PageSize,
		Debounce:         cfg.Feed.Debounce,
		PollInterval:     cfg.Poll.Interval,
		PollInitialDelay: cfg.Poll.InitialDelay,
		Logger:           s.rt.Logger,
	})

	var wg sync.WaitGroup
	runErr := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr <- m.Run(ctx)
	}()
	defer wg.Wait()
	defer cancel()

	if err := m.Dispatch(feed.LoadInitial{}); err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	r := newRenderer(s.out)
	updates, events := m.Updates(), m.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			if ctx.Err() != nil {
				return nil
			}
			return err
		case st, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			r.render(st)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(ctx, ev)
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			cmd, err := ParseCommand(line)
			switch {
			case err != nil:
				fmt.Fprintln(s.out, err)
			case cmd.Quit:
				return nil
			case cmd.Help:
				fmt.Fprint(s.out, helpText)
			default:
				if err := m.Dispatch(cmd.Action); err != nil {
					return err
				}
			}
		}
	}
}

func (s *Session) handleEvent(ctx context.Context, ev feed.Event) {
	nav, ok := ev.(feed.NavigateToDetail)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, detailTimeout)
	defer cancel()

	detail, err := s.rt.Source.PhotoInfo(ctx, nav.ID, nav.Secret)
	if err != nil {
		fmt.Fprintf(s.out, "Could not load photo %s: %v\n", nav.ID, err)
		return
	}
	renderDetail(s.out, detail)
}

// SyncWriter serialises writes so the session and a notifier can share a
// terminal
func SyncWriter(w io.Writer) io.Writer {
	return &syncWriter{w: w}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
