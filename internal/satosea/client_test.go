package satosea

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/ord-tracker/internal/upstream"
)

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(upstream.New(upstream.Options{BaseURL: srv.URL, Timeout: time.Second}))
}

func TestHotRunes(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/mempool/nextHot", r.URL.Path)
		w.Write([]byte(`{"data":[{"tick":"840000:1","progress":30.25},{"tick":"","progress":99},{"tick":"ABC","progress":"55.1"}]}`))
	})

	runes, err := c.HotRunes(context.Background())
	require.NoError(t, err)
	require.Len(t, runes, 2)
	assert.Equal(t, HotRune{Tick: "840000:1", Progress: 30.25}, runes[0])
	assert.Equal(t, HotRune{Tick: "ABC", Progress: 55.1}, runes[1])
}

func TestRuneInfo(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/rune/info/840000:1", r.URL.Path)
		w.Write([]byte(`{"data":{"id":"840000:1","rune":"ABC","spaced_rune":"A•B•C","symbol":"$","holders":120,"remaining":"700","max_supply":1000}}`))
	})

	d, err := c.RuneInfo(context.Background(), "840000:1")
	require.NoError(t, err)
	assert.Equal(t, "A•B•C", d.SpacedRune)
	assert.Equal(t, int64(120), d.Holders)
	assert.Equal(t, "700", d.Remaining.String())
	assert.Equal(t, "1000", d.MaxSupply.String())
	assert.Equal(t, "0", d.PreminePercentage)
}

func TestRuneInfoMissingData(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":null}`))
	})
	_, err := c.RuneInfo(context.Background(), "x")
	assert.Error(t, err)
}
