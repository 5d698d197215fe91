package upstream

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(srv *httptest.Server, retries int) *Client {
	return New(Options{
		BaseURL:       srv.URL + "/",
		BearerToken:   "secret",
		Timeout:       2 * time.Second,
		Retries:       retries,
		RetryInterval: time.Millisecond,
	})
}

func TestGetSetsHeaders(t *testing.T) {
	var seen http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Header.Clone()
		assert.Equal(t, "/wallet/history", r.URL.Path)
		assert.Equal(t, "bc1q", r.URL.Query().Get("address"))
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, 0)
	res, err := c.GetJSON(context.Background(), "/wallet/history", url.Values{"address": {"bc1q"}})
	require.NoError(t, err)
	assert.True(t, res.Get("data").IsArray())

	assert.NotEmpty(t, seen.Get("User-Agent"))
	assert.NotContains(t, seen.Get("User-Agent"), "Go-http-client")
	assert.Equal(t, "Bearer secret", seen.Get("Authorization"))
	assert.Contains(t, seen.Get("Accept"), "application/json")
}

func TestGetRotatesUserAgent(t *testing.T) {
	var agents []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agents = append(agents, r.Header.Get("User-Agent"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(srv, 0)
	n := 0
	c.userAgent = func() string {
		n++
		return "agent-" + string(rune('a'+n))
	}

	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), "/", nil)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"agent-b", "agent-c", "agent-d"}, agents)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	res, err := newTestClient(srv, 2).GetJSON(context.Background(), "/x", nil)
	require.NoError(t, err)
	assert.True(t, res.Get("ok").Bool())
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetGivesUpAfterRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, 2).Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStatus))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := newTestClient(srv, 3).Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStatus))
	assert.Equal(t, int32(1), calls.Load())
}

func TestGetJSONMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>blocked</html>`))
	}))
	defer srv.Close()

	_, err := newTestClient(srv, 0).GetJSON(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformed))
}

func TestGetHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(srv, 5).Get(ctx, "/x", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGetTimeoutCoversRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(40 * time.Millisecond)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(Options{
		BaseURL:       srv.URL,
		Timeout:       150 * time.Millisecond,
		Retries:       20,
		RetryInterval: 30 * time.Millisecond,
	})

	start := time.Now()
	_, err := c.Get(context.Background(), "/x", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.Less(t, calls.Load(), int32(21))
}
