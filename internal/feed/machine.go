package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/metrics"
	"github.com/quantmind-br/photofeed/internal/poll"
	"github.com/quantmind-br/photofeed/internal/utils"
)

// ErrStopped is returned by Dispatch once the machine has stopped
var ErrStopped = errors.New("feed machine stopped")

// Defaults
const (
	DefaultPageSize     = 30
	DefaultPollInterval = 15 * time.Minute
)

// Config configures a Machine
type Config struct {
	PageSize         int
	Debounce         time.Duration
	PollTaskID       string
	PollInterval     time.Duration
	PollInitialDelay time.Duration
	Logger           *utils.Logger
}

// Machine owns the foreground ListState. All mutations happen on the Run
// goroutine: actions, debounce commits, fetch results and snapshot changes
// are processed as messages in arrival order. Fetches run on their own
// goroutines and post their results back.
type Machine struct {
	source    domain.PhotoSource
	store     domain.SnapshotStore
	scheduler domain.Scheduler
	cfg       Config
	logger    *utils.Logger

	inbox     chan message
	done      chan struct{}
	started   chan struct{}
	startOnce sync.Once
	debouncer *Debouncer
	fetches   sync.WaitGroup

	// owned by the Run goroutine
	state     ListState
	inputText string
	loadSeq   uint64

	// read side
	mu        sync.RWMutex
	published ListState
	input     string
	updates   chan ListState
	events    chan Event
}

type message interface{}

type actionMsg struct{ action Action }

type commitMsg struct{ commit Commit }

type snapshotChanged struct{ snap *domain.PollSnapshot }

type replaceResult struct {
	seq   uint64
	query domain.ListQuery
	page  *domain.Page
	err   error
}

type appendResult struct {
	seq     uint64
	query   domain.ListQuery
	pageNum int
	page    *domain.Page
	err     error
}

// NewMachine creates a Machine in Loading(Recent). Call Run to start it.
// store is required; scheduler may be nil when no background polling is
// wanted.
func NewMachine(source domain.PhotoSource, store domain.SnapshotStore, scheduler domain.Scheduler, cfg Config) *Machine {
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.PollTaskID == "" {
		cfg.PollTaskID = poll.TaskID
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = utils.NewNopLogger()
	}

	initial := Loading{Query: domain.Recent()}
	m := &Machine{
		source:    source,
		store:     store,
		scheduler: scheduler,
		cfg:       cfg,
		logger:    cfg.Logger.WithComponent("machine"),
		inbox:     make(chan message, 64),
		done:      make(chan struct{}),
		started:   make(chan struct{}),
		state:     initial,
		published: initial,
		updates:   make(chan ListState, 1),
		events:    make(chan Event, 16),
	}
	m.debouncer = NewDebouncer(cfg.Debounce, func(c Commit) {
		m.post(commitMsg{commit: c})
	})
	return m
}

// Run processes messages until ctx is done. It also runs the freshness
// watcher for the same lifetime. Updates and Events are closed on return.
func (m *Machine) Run(ctx context.Context) error {
	alreadyStarted := true
	m.startOnce.Do(func() {
		alreadyStarted = false
		close(m.started)
	})
	if alreadyStarted {
		return errors.New("feed machine already running")
	}

	watchCtx, stopWatch := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.watch(watchCtx)
	}()

	defer func() {
		m.debouncer.Cancel()
		close(m.done)
		stopWatch()
		wg.Wait()
		m.fetches.Wait()
		close(m.updates)
		close(m.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-m.inbox:
			m.handle(ctx, msg)
		}
	}
}

// Dispatch queues an action. It blocks only while the inbox is full.
func (m *Machine) Dispatch(action Action) error {
	if !m.post(actionMsg{action: action}) {
		return ErrStopped
	}
	return nil
}

// State returns the latest published state
func (m *Machine) State() ListState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.published
}

// InputText returns the current, possibly uncommitted, query text
func (m *Machine) InputText() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.input
}

// Updates delivers state changes. A slow reader sees the latest state and
// may miss intermediate ones.
func (m *Machine) Updates() <-chan ListState {
	return m.updates
}

// Events delivers navigation events
func (m *Machine) Events() <-chan Event {
	return m.events
}

func (m *Machine) post(msg message) bool {
	select {
	case <-m.done:
		return false
	default:
	}
	select {
	case m.inbox <- msg:
		return true
	case <-m.done:
		return false
	}
}

func (m *Machine) handle(ctx context.Context, msg message) {
	switch msg := msg.(type) {
	case actionMsg:
		m.handleAction(ctx, msg.action)
	case commitMsg:
		if !m.debouncer.Claim(msg.commit) {
			m.logger.Debug().Str("text", msg.commit.Text).Msg("Dropped superseded query commit")
			return
		}
		q := domain.QueryForText(msg.commit.Text)
		m.logger.Debug().Str("query", q.String()).Msg("Query committed")
		m.startReplaceLoad(ctx, q)
	case replaceResult:
		m.applyReplace(ctx, msg)
	case appendResult:
		m.applyAppend(msg)
	case snapshotChanged:
		if q, ok := staleQuery(m.state, msg.snap); ok {
			m.logger.Debug().Str("query", q.String()).Msg("Snapshot drifted from displayed page, reloading")
			m.startReplaceLoad(ctx, q)
		}
	}
}

func (m *Machine) handleAction(ctx context.Context, action Action) {
	switch a := action.(type) {
	case LoadInitial, Retry:
		m.debouncer.Cancel()
		m.startReplaceLoad(ctx, domain.QueryForText(m.inputText))
	case Refresh:
		m.startReplaceLoad(ctx, QueryOf(m.state))
	case QueryChanged:
		m.setInput(a.Text)
		m.debouncer.OnTextChanged(a.Text)
	case SubmitQuery:
		m.debouncer.Cancel()
		m.setInput(a.Text)
		m.startReplaceLoad(ctx, domain.QueryForText(a.Text))
	case LoadNextPage:
		m.startAppend(ctx)
	case OpenItem:
		m.emit(NavigateToDetail{ID: a.ID, Secret: m.secretOf(a.ID)})
	case ClearSearch:
		m.clearSearch(ctx)
	default:
		m.logger.Warn().Msgf("Ignoring unknown action %T", action)
	}
}

func (m *Machine) startReplaceLoad(ctx context.Context, q domain.ListQuery) {
	m.loadSeq++
	seq := m.loadSeq
	m.setState(Loading{Query: q})

	m.fetches.Add(1)
	go func() {
		defer m.fetches.Done()
		page, err := m.source.FetchPage(ctx, q, 1, m.cfg.PageSize)
		m.post(replaceResult{seq: seq, query: q, page: page, err: err})
	}()
}

func (m *Machine) applyReplace(ctx context.Context, res replaceResult) {
	if res.seq != m.loadSeq {
		metrics.IncStaleResponse()
		m.logger.Debug().Err(domain.ErrStaleResponse).Str("query", res.query.String()).Msg("Dropped replace result")
		return
	}

	if res.err != nil {
		metrics.IncFetchFailure(metrics.FetchReplace)
		m.logger.Warn().Err(res.err).Str("query", res.query.String()).Msg("Load failed")
		m.setState(Error{Query: res.query, Cause: res.err})
		return
	}

	items := appendUnique(nil, res.page.Items)
	if len(items) == 0 {
		m.setState(Empty{Query: res.query})
		return
	}

	loaded := Loaded{
		Query:       res.query,
		Items:       items,
		FirstPage:   domain.PhotoIDs(items),
		CurrentPage: res.page.PageNumber,
		TotalPages:  res.page.TotalPages,
	}
	m.setState(loaded)

	if res.query.IsSearch() {
		m.activateSearch(ctx, res.query, loaded.FirstPage)
	}
}

// activateSearch records the first page for the poller and (re)schedules it
func (m *Machine) activateSearch(ctx context.Context, q domain.ListQuery, ids []string) {
	logger := m.logger.WithQuery(q.Text())

	if err := m.store.Write(ctx, q.Text(), ids); err != nil {
		logger.Error().Err(err).Msg("Failed to record active search")
		return
	}
	if m.scheduler == nil {
		return
	}
	err := m.scheduler.Schedule(ctx, domain.ScheduleRequest{
		TaskID:          m.cfg.PollTaskID,
		Period:          m.cfg.PollInterval,
		InitialDelay:    m.cfg.PollInitialDelay,
		ReplaceExisting: true,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to schedule poll")
	}
}

func (m *Machine) startAppend(ctx context.Context) {
	st, ok := m.state.(Loaded)
	if !ok || st.IsLoadingMore || !st.HasMore() {
		return
	}

	st.IsLoadingMore = true
	m.setState(st)

	seq, q, next := m.loadSeq, st.Query, st.CurrentPage+1
	m.fetches.Add(1)
	go func() {
		defer m.fetches.Done()
		page, err := m.source.FetchPage(ctx, q, next, m.cfg.PageSize)
		m.post(appendResult{seq: seq, query: q, pageNum: next, page: page, err: err})
	}()
}

func (m *Machine) applyAppend(res appendResult) {
	st, ok := m.state.(Loaded)
	if !ok || res.seq != m.loadSeq || !st.Query.Equal(res.query) || !st.IsLoadingMore || res.pageNum != st.CurrentPage+1 {
		metrics.IncStaleResponse()
		m.logger.Debug().Err(domain.ErrStaleResponse).Str("query", res.query.String()).Int("page", res.pageNum).Msg("Dropped append result")
		return
	}

	st.IsLoadingMore = false
	if res.err != nil {
		metrics.IncFetchFailure(metrics.FetchAppend)
		m.logger.Warn().Err(res.err).Str("query", res.query.String()).Int("page", res.pageNum).Msg("Load more failed")
		m.setState(st)
		return
	}

	st.Items = appendUnique(st.Items, res.page.Items)
	st.CurrentPage = res.pageNum
	st.TotalPages = res.page.TotalPages
	m.setState(st)
}

func (m *Machine) clearSearch(ctx context.Context) {
	m.debouncer.Cancel()
	m.setInput("")

	// stop the poller first so a run in progress is less likely to write
	// the cleared search back
	if m.scheduler != nil {
		if err := m.scheduler.Cancel(ctx, m.cfg.PollTaskID); err != nil {
			m.logger.Error().Err(err).Msg("Failed to cancel poll")
		}
	}
	if err := m.store.Clear(ctx); err != nil {
		m.logger.Error().Err(err).Msg("Failed to clear active search")
	}

	m.startReplaceLoad(ctx, domain.Recent())
}

func (m *Machine) secretOf(id string) string {
	if st, ok := m.state.(Loaded); ok {
		for _, item := range st.Items {
			if item.ID == id {
				return item.Secret
			}
		}
	}
	return ""
}

func (m *Machine) setInput(text string) {
	m.inputText = text
	m.mu.Lock()
	m.input = text
	m.mu.Unlock()
}

func (m *Machine) setState(s ListState) {
	m.state = s
	m.mu.Lock()
	m.published = s
	m.mu.Unlock()

	metrics.IncStateTransition(StateName(s))
	m.logger.Debug().Str("state", StateName(s)).Str("query", QueryOf(s).String()).Msg("State changed")

	// single producer: replace an unread state with the newer one
	for {
		select {
		case m.updates <- s:
			return
		default:
			select {
			case <-m.updates:
			default:
			}
		}
	}
}

func (m *Machine) emit(e Event) {
	select {
	case m.events <- e:
	default:
		m.logger.Warn().Msgf("Event buffer full, dropping %T", e)
	}
}
