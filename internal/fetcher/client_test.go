package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/quantmind-br/photofeed/internal/domain"
	"github.com/quantmind-br/photofeed/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func newTestClient(t *testing.T, opts ClientOptions) *Client {
	t.Helper()
	client, err := NewClient(opts)
	require.NoError(t, err)
	// keep retry waits short
	client.retrier = fastRetrier(opts.MaxRetries)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestDefaultClientOptions(t *testing.T) {
	opts := DefaultClientOptions()

	assert.Equal(t, 30*time.Second, opts.Timeout)
	assert.Equal(t, 3, opts.MaxRetries)
	assert.True(t, opts.EnableCache)
	assert.Equal(t, 24*time.Hour, opts.CacheTTL)
	assert.Equal(t, DefaultUserAgent, opts.UserAgent)
}

func TestNewClient(t *testing.T) {
	client, err := NewClient(ClientOptions{})
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, DefaultUserAgent, client.agent)
	assert.NotNil(t, client.retrier)
	assert.True(t, client.cache.accept(nil))

	custom, err := NewClient(ClientOptions{UserAgent: "TestAgent/1.0"})
	require.NoError(t, err)
	defer custom.Close()
	assert.Equal(t, "TestAgent/1.0", custom.agent)
}

func TestClient_GetFresh(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stat":"ok"}`))
	}))
	defer server.Close()

	// a cache is configured but never consulted
	cache := mocks.NewMockCache(gomock.NewController(t))
	client := newTestClient(t, ClientOptions{EnableCache: true, Cache: cache})

	resp, err := client.GetFresh(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []byte(`{"stat":"ok"}`), resp.Body)
	assert.Equal(t, "application/json", resp.ContentType)
	assert.False(t, resp.FromCache)
}

func TestClient_Get_CacheHit(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	cache := mocks.NewMockCache(gomock.NewController(t))
	cache.EXPECT().Get(gomock.Any(), server.URL).Return([]byte(`{"cached":true}`), nil)
	client := newTestClient(t, ClientOptions{EnableCache: true, Cache: cache})

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.True(t, resp.FromCache)
	assert.Equal(t, []byte(`{"cached":true}`), resp.Body)
	assert.Zero(t, hits.Load())
}

func TestClient_Get_MissFillsCache(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stat":"ok"}`))
	}))
	defer server.Close()

	cache := mocks.NewMockCache(gomock.NewController(t))
	gomock.InOrder(
		cache.EXPECT().Get(gomock.Any(), server.URL).Return(nil, domain.ErrCacheMiss),
		cache.EXPECT().Set(gomock.Any(), server.URL, []byte(`{"stat":"ok"}`), time.Hour).Return(nil),
	)
	client := newTestClient(t, ClientOptions{EnableCache: true, Cache: cache, CacheTTL: time.Hour})

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.False(t, resp.FromCache)
}

func TestClient_Get_SkipsUncacheableBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"stat":"fail","code":1}`))
	}))
	defer server.Close()

	cache := mocks.NewMockCache(gomock.NewController(t))
	cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, domain.ErrCacheMiss)
	cache.EXPECT().Set(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	client := newTestClient(t, ClientOptions{
		EnableCache: true,
		Cache:       cache,
		Cacheable:   func(body []byte) bool { return !strings.Contains(string(body), "fail") },
	})

	_, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
}

func TestClient_Get_CacheDisabled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("live"))
	}))
	defer server.Close()

	cache := mocks.NewMockCache(gomock.NewController(t))
	client := newTestClient(t, ClientOptions{EnableCache: true, Cache: cache})
	client.SetCacheEnabled(false)

	resp, err := client.Get(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, []byte("live"), resp.Body)
}

func TestClient_StatusHandling(t *testing.T) {
	t.Run("not found is permanent", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := newTestClient(t, ClientOptions{MaxRetries: 3})
		_, err := client.GetFresh(context.Background(), server.URL)

		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.False(t, domain.IsRetryable(err))
		assert.Equal(t, int32(1), hits.Load())
	})

	t.Run("overload is retried", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.Write([]byte(`{"stat":"ok"}`))
		}))
		defer server.Close()

		client := newTestClient(t, ClientOptions{MaxRetries: 3})
		resp, err := client.GetFresh(context.Background(), server.URL)

		require.NoError(t, err)
		assert.Equal(t, []byte(`{"stat":"ok"}`), resp.Body)
		assert.Equal(t, int32(3), hits.Load())
	})

	t.Run("rate limit surfaces after retries", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := newTestClient(t, ClientOptions{MaxRetries: 1})
		_, err := client.GetFresh(context.Background(), server.URL)

		assert.ErrorIs(t, err, domain.ErrRateLimited)
		assert.True(t, domain.IsRetryable(err))
	})
}

func TestClient_TransportFailureIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := newTestClient(t, ClientOptions{MaxRetries: 0})
	_, err := client.GetFresh(context.Background(), url)

	require.Error(t, err)
	assert.True(t, domain.IsRetryable(err))
	var fe *domain.FetchError
	assert.True(t, errors.As(err, &fe))
}

func TestClient_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("late"))
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := newTestClient(t, ClientOptions{MaxRetries: 3})
	_, err := client.GetFresh(ctx, server.URL)
	assert.ErrorIs(t, err, context.Canceled)
}
