package flickr

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/fetcher"
	"github.com/quantmind-br/photofeed/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

const recentBody = `{
  "photos": {
    "page": 1, "pages": "3", "perpage": 2, "total": "6",
    "photo": [
      {"id": "1", "owner": "11@N01", "secret": "s1", "server": "65535", "title": "Cat", "ownername": "alice", "datetaken": "2024-05-01 10:00:00", "url_s": "https://live.staticflickr.com/65535/1_s1_m.jpg"},
      {"id": "2", "owner": "22@N02", "secret": "s2", "server": "65535", "title": "  "}
    ]
  },
  "stat": "ok"
}`

const infoBody = `{
  "photo": {
    "id": "1", "secret": "s1", "server": "65535",
    "owner": {"nsid": "11@N01", "username": ""},
    "title": {"_content": "Cat"},
    "description": {"_content": " sleeping "},
    "dates": {"taken": "2024-05-01 10:00:00"}
  },
  "stat": "ok"
}`

func newMockSource(t *testing.T) (*Source, *mocks.MockFetcher) {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := mocks.NewMockFetcher(ctrl)
	s, err := NewSource(f, Options{APIKey: "key"})
	require.NoError(t, err)
	return s, f
}

func queryOf(t *testing.T, rawURL string) url.Values {
	t.Helper()

	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	return u.Query()
}

func TestNewSource(t *testing.T) {
	_, err := NewSource(nil, Options{})
	assert.ErrorIs(t, err, domain.ErrMissingAPIKey)

	_, err = NewSource(nil, Options{APIKey: "k", BaseURL: "not a url"})
	assert.ErrorIs(t, err, domain.ErrInvalidURL)

	s, err := NewSource(nil, Options{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultBaseURL, s.baseURL.String())
}

func TestSource_FetchPage_Recent(t *testing.T) {
	s, f := newMockSource(t)
	ctx := context.Background()

	f.EXPECT().GetFresh(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, rawURL string) (*domain.Response, error) {
		q := queryOf(t, rawURL)
		assert.Equal(t, methodGetRecent, q.Get("method"))
		assert.Empty(t, q.Get("text"))
		assert.Equal(t, listExtras, q.Get("extras"))
		assert.Equal(t, "2", q.Get("per_page"))
		assert.Equal(t, "1", q.Get("page"))
		assert.Equal(t, "key", q.Get("api_key"))
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "1", q.Get("nojsoncallback"))
		return &domain.Response{StatusCode: 200, Body: []byte(recentBody)}, nil
	})

	page, err := s.FetchPage(ctx, domain.Recent(), 1, 2)
	require.NoError(t, err)

	assert.Equal(t, 1, page.PageNumber)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 6, page.Total)
	assert.True(t, page.HasMore())
	require.Len(t, page.Items, 2)

	first := page.Items[0]
	assert.Equal(t, "Cat", first.Title)
	assert.Equal(t, "alice", first.OwnerName)
	assert.Equal(t, "2024-05-01 10:00:00", first.DateTaken)
	assert.Equal(t, "https://live.staticflickr.com/65535/1_s1_m.jpg", first.ThumbnailURL)

	second := page.Items[1]
	assert.Equal(t, "Untitled", second.Title)
	assert.Equal(t, "22@N02", second.OwnerName)
	assert.Equal(t, "https://live.staticflickr.com/65535/2_s2_q.jpg", second.ThumbnailURL)
}

func TestSource_FetchPage_Search(t *testing.T) {
	s, f := newMockSource(t)
	ctx := context.Background()

	f.EXPECT().GetFresh(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, rawURL string) (*domain.Response, error) {
		q := queryOf(t, rawURL)
		assert.Equal(t, methodSearch, q.Get("method"))
		assert.Equal(t, "red cats", q.Get("text"))
		assert.Equal(t, "2", q.Get("page"))
		return &domain.Response{Body: []byte(`{"photos":{"page":2,"pages":2,"perpage":30,"total":31,"photo":[]},"stat":"ok"}`)}, nil
	})

	page, err := s.FetchPage(ctx, domain.Search("red cats"), 2, 30)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore())
	assert.Equal(t, 31, page.Total)
}

func TestSource_FetchPage_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("api failure", func(t *testing.T) {
		s, f := newMockSource(t)
		f.EXPECT().GetFresh(ctx, gomock.Any()).Return(&domain.Response{
			Body: []byte(`{"stat":"fail","code":100,"message":"Invalid API Key (Key has invalid format)"}`),
		}, nil)

		_, err := s.FetchPage(ctx, domain.Recent(), 1, 30)
		var apiErr *domain.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, 100, apiErr.Code)
		assert.Equal(t, methodGetRecent, apiErr.Method)
	})

	t.Run("failure without message", func(t *testing.T) {
		s, f := newMockSource(t)
		f.EXPECT().GetFresh(ctx, gomock.Any()).Return(&domain.Response{Body: []byte(`{"stat":"fail"}`)}, nil)

		_, err := s.FetchPage(ctx, domain.Search("x"), 1, 30)
		var apiErr *domain.APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, "Unknown error", apiErr.Message)
	})

	t.Run("malformed body", func(t *testing.T) {
		s, f := newMockSource(t)
		f.EXPECT().GetFresh(ctx, gomock.Any()).Return(&domain.Response{Body: []byte(`<html>`)}, nil)

		_, err := s.FetchPage(ctx, domain.Recent(), 1, 30)
		var apiErr *domain.APIError
		assert.ErrorAs(t, err, &apiErr)
	})

	t.Run("transport failure is wrapped", func(t *testing.T) {
		s, f := newMockSource(t)
		netErr := domain.NewRetryableError(errors.New("connection reset"))
		f.EXPECT().GetFresh(ctx, gomock.Any()).Return(nil, netErr)

		_, err := s.FetchPage(ctx, domain.Recent(), 1, 30)
		assert.ErrorIs(t, err, netErr)
		assert.True(t, domain.IsRetryable(err))
	})
}

func TestSource_PhotoInfo(t *testing.T) {
	s, f := newMockSource(t)
	ctx := context.Background()

	f.EXPECT().Get(ctx, gomock.Any()).DoAndReturn(func(_ context.Context, rawURL string) (*domain.Response, error) {
		q := queryOf(t, rawURL)
		assert.Equal(t, methodGetInfo, q.Get("method"))
		assert.Equal(t, "1", q.Get("photo_id"))
		assert.Equal(t, "s1", q.Get("secret"))
		return &domain.Response{Body: []byte(infoBody)}, nil
	})

	detail, err := s.PhotoInfo(ctx, "1", "s1")
	require.NoError(t, err)

	assert.Equal(t, "Cat", detail.Title)
	assert.Equal(t, "11@N01", detail.OwnerName)
	assert.Equal(t, "sleeping", detail.Description)
	assert.Equal(t, "2024-05-01 10:00:00", detail.DateTaken)
	assert.Equal(t, "https://live.staticflickr.com/65535/1_s1_z.jpg", detail.LargeImageURL)
}

func TestSource_PhotoInfo_Validation(t *testing.T) {
	s, _ := newMockSource(t)

	_, err := s.PhotoInfo(context.Background(), "", "")
	var vErr *domain.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestFlexInt(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected flexInt
	}{
		{"number", `42`, 42},
		{"string", `"42"`, 42},
		{"empty string", `""`, 0},
		{"null", `null`, 0},
		{"garbage", `"many"`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var n flexInt
			require.NoError(t, n.UnmarshalJSON([]byte(tt.input)))
			assert.Equal(t, tt.expected, n)
		})
	}
}

func TestDecodePhotos_PageBounds(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		requested int
		page      int
		total     int
	}{
		{"as reported", `{"stat":"ok","photos":{"page":2,"pages":5,"photo":[]}}`, 2, 2, 5},
		{"empty search", `{"stat":"ok","photos":{"page":1,"pages":0,"total":"0","photo":[]}}`, 1, 1, 1},
		{"page missing", `{"stat":"ok","photos":{"pages":"3","photo":[]}}`, 2, 2, 3},
		{"pages behind page", `{"stat":"ok","photos":{"page":4,"pages":2,"photo":[]}}`, 4, 4, 4},
		{"nothing reported", `{"stat":"ok","photos":{"photo":[]}}`, 1, 1, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := decodePhotos("flickr.photos.search", []byte(tt.body), tt.requested)
			require.NoError(t, err)
			assert.Equal(t, tt.page, page.PageNumber)
			assert.Equal(t, tt.total, page.TotalPages)
		})
	}
}

func TestCacheable(t *testing.T) {
	assert.True(t, Cacheable([]byte(`{"stat":"ok","photos":{}}`)))
	assert.False(t, Cacheable([]byte(`{"stat":"fail","code":100,"message":"Invalid API Key"}`)))
	assert.False(t, Cacheable([]byte(`<html>gateway</html>`)))
	assert.False(t, Cacheable(nil))
}

// TestSource_OverHTTP runs the adapter over the real transport
func TestSource_OverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("method") {
		case methodGetInfo:
			_, _ = w.Write([]byte(infoBody))
		default:
			_, _ = w.Write([]byte(recentBody))
		}
	}))
	defer server.Close()

	client, err := fetcher.NewClient(fetcher.ClientOptions{
		Timeout:    5 * time.Second,
		MaxRetries: 1,
	})
	require.NoError(t, err)
	defer client.Close()

	s, err := NewSource(client, Options{APIKey: "key", BaseURL: server.URL + "/services/rest/"})
	require.NoError(t, err)

	page, err := s.FetchPage(context.Background(), domain.Recent(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, page.IDs())

	detail, err := s.PhotoInfo(context.Background(), "1", "s1")
	require.NoError(t, err)
	assert.Equal(t, "1", detail.ID)
}
