package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quantmind-br/photofeed/internal/cache"
	"github.com/quantmind-br/photofeed/internal/config"
	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/feed"
	"github.com/quantmind-br/photofeed/internal/mocks"
	"github.com/quantmind-br/photofeed/internal/poll"
	"github.com/quantmind-br/photofeed/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Store.InMemory = true
	cfg.Feed.PageSize = 2
	cfg.Feed.Debounce = 10 * time.Millisecond
	cfg.Poll.InitialDelay = time.Hour
	return cfg
}

func openTest(t *testing.T, source domain.PhotoSource) *Runtime {
	t.Helper()
	rt, err := Open(Options{
		Config: testConfig(),
		Logger: utils.NewNopLogger(),
		Source: source,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func summaries(ids ...string) []domain.PhotoSummary {
	items := make([]domain.PhotoSummary, len(ids))
	for i, id := range ids {
		items[i] = domain.PhotoSummary{ID: id, Title: "title " + id, OwnerName: "owner", Secret: "sec" + id}
	}
	return items
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    Command
		wantErr bool
	}{
		{"cats", Command{Action: feed.QueryChanged{Text: "cats"}}, false},
		{"", Command{Action: feed.QueryChanged{Text: ""}}, false},
		{"cats\r\n", Command{Action: feed.QueryChanged{Text: "cats"}}, false},
		{":next", Command{Action: feed.LoadNextPage{}}, false},
		{":n", Command{Action: feed.LoadNextPage{}}, false},
		{":retry", Command{Action: feed.Retry{}}, false},
		{":refresh", Command{Action: feed.Refresh{}}, false},
		{":clear", Command{Action: feed.ClearSearch{}}, false},
		{":search red fox", Command{Action: feed.SubmitQuery{Text: "red fox"}}, false},
		{":open 123", Command{Action: feed.OpenItem{ID: "123"}}, false},
		{":open", Command{}, true},
		{":QUIT", Command{Quit: true}, false},
		{":help", Command{Help: true}, false},
		{":bogus", Command{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderer_Incremental(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)
	q := domain.Search("cats")

	r.render(feed.Loading{Query: q})
	r.render(feed.Loaded{Query: q, Items: summaries("a", "b"), CurrentPage: 1, TotalPages: 2})
	r.render(feed.Loaded{Query: q, Items: summaries("a", "b"), CurrentPage: 1, TotalPages: 2, IsLoadingMore: true})
	r.render(feed.Loaded{Query: q, Items: summaries("a", "b", "c"), CurrentPage: 2, TotalPages: 2})

	text := out.String()
	assert.Contains(t, text, `Loading results for "cats"...`)
	assert.Contains(t, text, `Results for "cats", page 1 of 2:`)
	assert.Contains(t, text, "Type :next for more.")
	assert.Contains(t, text, "Loading more...")
	assert.Contains(t, text, "Showing all 3 photos.")
	assert.Equal(t, 1, strings.Count(text, "title a"))
	assert.Equal(t, 1, strings.Count(text, "title c"))
}

func TestRenderer_ReloadWithoutLoading(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)

	r.render(feed.Loaded{Query: domain.Recent(), Items: summaries("a", "b"), CurrentPage: 1, TotalPages: 1})
	r.render(feed.Loaded{Query: domain.Recent(), Items: summaries("z", "a", "b"), CurrentPage: 1, TotalPages: 1})

	assert.Equal(t, 2, strings.Count(out.String(), "title a"))
	assert.Contains(t, out.String(), "title z")
}

func TestRenderer_EmptyAndError(t *testing.T) {
	var out bytes.Buffer
	r := newRenderer(&out)

	r.render(feed.Empty{Query: domain.Search("zzz")})
	r.render(feed.Error{Query: domain.Recent(), Cause: domain.ErrTimeout})

	assert.Contains(t, out.String(), `No photos match "zzz".`)
	assert.Contains(t, out.String(), "Could not load recent photos")
	assert.Contains(t, out.String(), ":retry")
}

func TestWriteSnapshot(t *testing.T) {
	snap := &domain.PollSnapshot{
		Query:        "cats",
		FirstPageIDs: []string{"1", "2"},
		UpdatedAt:    time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteSnapshot(&out, snap, FormatJSON))
		assert.JSONEq(t, `{"query":"cats","first_page_ids":["1","2"],"updated_at":"2024-05-01T12:00:00Z"}`, out.String())
	})

	t.Run("yaml", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteSnapshot(&out, snap, FormatYAML))
		assert.YAMLEq(t, "query: cats\nfirst_page_ids: [\"1\", \"2\"]\nupdated_at: 2024-05-01T12:00:00Z\n", out.String())
	})

	t.Run("text", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteSnapshot(&out, snap, ""))
		assert.Contains(t, out.String(), `Active search: "cats"`)
		assert.Contains(t, out.String(), "2 photos")
	})

	t.Run("none", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, WriteSnapshot(&out, nil, FormatText))
		assert.Equal(t, "No active search.\n", out.String())

		out.Reset()
		require.NoError(t, WriteSnapshot(&out, nil, FormatJSON))
		assert.Equal(t, "null", strings.TrimSpace(out.String()))
	})

	t.Run("unknown", func(t *testing.T) {
		assert.Error(t, WriteSnapshot(io.Discard, snap, "xml"))
	})
}

func TestWriteCacheStats(t *testing.T) {
	stats := cache.Stats{Entries: 12, LSMBytes: 2048, VlogBytes: 3 << 20}

	var out bytes.Buffer
	require.NoError(t, WriteCacheStats(&out, stats, FormatText))
	assert.Contains(t, out.String(), "Cached responses: 12")
	assert.Contains(t, out.String(), "2.0 KiB")
	assert.Contains(t, out.String(), "3.0 MiB")

	out.Reset()
	require.NoError(t, WriteCacheStats(&out, stats, FormatJSON))
	assert.JSONEq(t, `{"entries":12,"lsm_bytes":2048,"vlog_bytes":3145728}`, out.String())
}

func TestHumanBytes(t *testing.T) {
	assert.Equal(t, "0 B", humanBytes(0))
	assert.Equal(t, "1023 B", humanBytes(1023))
	assert.Equal(t, "1.5 KiB", humanBytes(1536))
	assert.Equal(t, "1.0 GiB", humanBytes(1<<30))
}

func TestOpen(t *testing.T) {
	t.Run("requires config", func(t *testing.T) {
		_, err := Open(Options{})
		assert.Error(t, err)
	})

	t.Run("requires api key", func(t *testing.T) {
		_, err := Open(Options{Config: testConfig(), Logger: utils.NewNopLogger()})
		assert.ErrorIs(t, err, domain.ErrMissingAPIKey)
	})

	t.Run("offline", func(t *testing.T) {
		rt, err := Open(Options{Config: testConfig(), Logger: utils.NewNopLogger(), Offline: true})
		require.NoError(t, err)
		assert.Nil(t, rt.Source)
		assert.Nil(t, rt.Reconciler)

		_, err = PollOnce(context.Background(), rt)
		assert.Error(t, err)
		assert.Error(t, RunDaemon(context.Background(), rt))
		assert.NoError(t, rt.Close())
	})

	t.Run("with source", func(t *testing.T) {
		rt := openTest(t, mocks.NewMockPhotoSource(gomock.NewController(t)))
		assert.NotNil(t, rt.Reconciler)

		res, err := PollOnce(context.Background(), rt)
		require.NoError(t, err)
		assert.True(t, res.Skipped)
	})
}

func TestPollOnce_NewItems(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockPhotoSource(ctrl)
	notifier := mocks.NewMockNotifier(ctrl)

	rt, err := Open(Options{Config: testConfig(), Logger: utils.NewNopLogger(), Source: source, Notifier: notifier})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx := context.Background()
	require.NoError(t, rt.Store.Write(ctx, "cats", []string{"1", "2"}))

	source.EXPECT().FetchPage(gomock.Any(), domain.Search("cats"), 1, 2).
		Return(&domain.Page{Items: summaries("3", "1"), PageNumber: 1, TotalPages: 1}, nil)
	notifier.EXPECT().NotifyNewItems(gomock.Any(), "cats", 1)

	res, err := PollOnce(ctx, rt)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, res.Added)

	snap, err := rt.Store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"3", "1"}, snap.FirstPageIDs)
}

func TestPollOnce_RetriesTransientFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockPhotoSource(ctrl)

	cfg := testConfig()
	cfg.Poll.MaxRetries = 2
	cfg.Poll.RetryInitial = time.Millisecond
	cfg.Poll.RetryMax = time.Millisecond
	rt, err := Open(Options{Config: cfg, Logger: utils.NewNopLogger(), Source: source})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx := context.Background()
	require.NoError(t, rt.Store.Write(ctx, "cats", []string{"1"}))

	gomock.InOrder(
		source.EXPECT().FetchPage(gomock.Any(), domain.Search("cats"), 1, 2).Return(nil, errors.New("connection reset")),
		source.EXPECT().FetchPage(gomock.Any(), domain.Search("cats"), 1, 2).
			Return(&domain.Page{Items: summaries("1"), PageNumber: 1, TotalPages: 1}, nil),
	)

	res, err := PollOnce(ctx, rt)
	require.NoError(t, err)
	assert.Equal(t, "cats", res.Query)
	assert.Empty(t, res.Added)
}

func TestPollOnce_GivesUpAfterRetries(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockPhotoSource(ctrl)

	cfg := testConfig()
	cfg.Poll.MaxRetries = 1
	cfg.Poll.RetryInitial = time.Millisecond
	cfg.Poll.RetryMax = time.Millisecond
	rt, err := Open(Options{Config: cfg, Logger: utils.NewNopLogger(), Source: source})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	ctx := context.Background()
	require.NoError(t, rt.Store.Write(ctx, "cats", []string{"1"}))

	boom := errors.New("connection reset")
	source.EXPECT().FetchPage(gomock.Any(), gomock.Any(), 1, 2).Return(nil, boom).Times(2)

	res, err := PollOnce(ctx, rt)
	assert.ErrorIs(t, err, boom)
	require.NotNil(t, res)
	assert.Equal(t, "cats", res.Query)

	snap, err := rt.Store.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, snap.FirstPageIDs)
}

func TestPollOnce_CancelledBeforeStart(t *testing.T) {
	rt := openTest(t, mocks.NewMockPhotoSource(gomock.NewController(t)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := PollOnce(ctx, rt)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, res)
}

func TestRunDaemon_SchedulesActiveSearch(t *testing.T) {
	rt := openTest(t, mocks.NewMockPhotoSource(gomock.NewController(t)))
	require.NoError(t, rt.Store.Write(context.Background(), "cats", []string{"1"}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- RunDaemon(ctx, rt) }()

	require.Eventually(t, func() bool { return len(rt.Scheduler.Scheduled()) == 1 }, 2*time.Second, 5*time.Millisecond)
	req := rt.Scheduler.Scheduled()[0]
	assert.Equal(t, poll.TaskID, req.TaskID)
	assert.Equal(t, config.DefaultPollInterval, req.Period)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop")
	}
}

func TestRunDaemon_NothingToPoll(t *testing.T) {
	rt := openTest(t, mocks.NewMockPhotoSource(gomock.NewController(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, RunDaemon(ctx, rt))
	assert.Empty(t, rt.Scheduler.Scheduled())
}

func TestSession_BrowseAndOpen(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockPhotoSource(ctrl)
	rt := openTest(t, source)

	source.EXPECT().FetchPage(gomock.Any(), domain.Recent(), 1, 2).
		Return(&domain.Page{Items: summaries("a", "b"), PageNumber: 1, TotalPages: 1}, nil)
	source.EXPECT().PhotoInfo(gomock.Any(), "a", "seca").
		Return(&domain.PhotoDetail{ID: "a", Title: "Sunset", OwnerName: "ann", LargeImageURL: "https://img/a_z.jpg"}, nil)

	in, feedInput := io.Pipe()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- NewSession(rt, in, out).Run(context.Background()) }()

	require.Eventually(t, func() bool { return strings.Contains(out.String(), "title b") }, 2*time.Second, 5*time.Millisecond)

	_, err := io.WriteString(feedInput, ":open a\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return strings.Contains(out.String(), "Sunset") }, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), "https://img/a_z.jpg")

	_, err = io.WriteString(feedInput, ":bogus\n:quit\n")
	require.NoError(t, err)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
	assert.Contains(t, out.String(), "unknown command")
	_ = feedInput.Close()
}

func TestSession_SearchSchedulesPoll(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockPhotoSource(ctrl)
	rt := openTest(t, source)

	source.EXPECT().FetchPage(gomock.Any(), domain.Recent(), 1, 2).
		Return(&domain.Page{Items: summaries("a"), PageNumber: 1, TotalPages: 1}, nil).AnyTimes()
	source.EXPECT().FetchPage(gomock.Any(), domain.Search("cats"), 1, 2).
		Return(&domain.Page{Items: summaries("1", "2"), PageNumber: 1, TotalPages: 3}, nil)

	in, feedInput := io.Pipe()
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() { done <- NewSession(rt, in, out).Run(context.Background()) }()

	_, err := io.WriteString(feedInput, "cats\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rt.Scheduler.Scheduled()) == 1 }, 2*time.Second, 5*time.Millisecond)

	snap, err := rt.Store.Read(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "cats", snap.Query)

	_, err = io.WriteString(feedInput, ":clear\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(rt.Scheduler.Scheduled()) == 0 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, feedInput.Close())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop")
	}
}

func TestSession_RequiresSource(t *testing.T) {
	rt, err := Open(Options{Config: testConfig(), Logger: utils.NewNopLogger(), Offline: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	assert.Error(t, NewSession(rt, strings.NewReader(""), io.Discard).Run(context.Background()))
}

func TestSyncWriter(t *testing.T) {
	var buf bytes.Buffer
	w := SyncWriter(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = w.Write([]byte("line\n"))
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, strings.Count(buf.String(), "line"))
}
