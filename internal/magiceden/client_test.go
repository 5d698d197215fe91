package magiceden

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/suspectuso/ord-tracker/internal/upstream"
)

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(upstream.New(upstream.Options{
		BaseURL:       srv.URL,
		BearerToken:   "key",
		Timeout:       time.Second,
		RetryInterval: time.Millisecond,
	}))
}

func TestNormalizeRuneName(t *testing.T) {
	assert.Equal(t, "DOGGOTOTHEMOON", NormalizeRuneName("DOG•GO•TO•THE•MOON"))
	assert.Equal(t, "RSICGENESIS", NormalizeRuneName(" rsic.genesis "))
}

func TestBTCPriceUSDIsCached(t *testing.T) {
	var calls atomic.Int32
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/v2/cryptoTicker/price", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"results":[{"symbol":"ETHUSDT","price":"3000"},{"symbol":"BTCUSDT","price":"64000.5"}]}`))
	})
	now := time.Unix(1_700_000_000, 0)
	c.now = func() time.Time { return now }

	p, err := c.BTCPriceUSD(context.Background())
	require.NoError(t, err)
	assert.True(t, p.Equal(decimal.RequireFromString("64000.5")))

	now = now.Add(30 * time.Second)
	_, err = c.BTCPriceUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())

	now = now.Add(31 * time.Second)
	_, err = c.BTCPriceUSD(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBTCPriceUSDMissingTicker(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})
	_, err := c.BTCPriceUSD(context.Background())
	assert.True(t, errors.Is(err, ErrNoData))
}

func TestRuneFloor(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/ord/btc/runes/market/DOGGOTOTHEMOON/info", r.URL.Path)
		w.Write([]byte(`{"name":"DOG•GO•TO•THE•MOON","symbol":"🐕","floorUnitPrice":{"formatted":"0.732"},"holderCount":74000}`))
	})

	f, err := c.Floor(context.Background(), "rune", "DOG•GO•TO•THE•MOON")
	require.NoError(t, err)
	assert.Equal(t, KindRune, f.Kind)
	assert.Equal(t, "DOGGOTOTHEMOON", f.Slug)
	assert.Equal(t, "0.732", f.FloorSats.String())
	assert.Equal(t, int64(74000), f.Holders)
}

func TestCollectionFloor(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/ord/btc/stat", r.URL.Path)
		assert.Equal(t, "bitcoin-puppets", r.URL.Query().Get("collectionSymbol"))
		w.Write([]byte(`{"floorPrice":"9100000","owners":5000,"totalListed":321}`))
	})

	f, err := c.CollectionFloor(context.Background(), "Bitcoin-Puppets")
	require.NoError(t, err)
	assert.Equal(t, "9100000", f.FloorSats.String())
	assert.Equal(t, int64(321), f.Listed)
}

func TestFloorErrors(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"name":"X"}`))
	})
	_, err := c.RuneFloor(context.Background(), "X")
	assert.True(t, errors.Is(err, ErrNoData))

	_, err = c.Floor(context.Background(), "brc20", "ordi")
	assert.Error(t, err)
}

func TestRuneActivities(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/ord/btc/runes/wallet/activities/bc1pw", r.URL.Path)
		assert.Equal(t, "20", r.URL.Query().Get("offset"))
		w.Write([]byte(`[
			{"kind":"BUYING_BROADCASTED","rune":"DOGGOTOTHEMOON","oldOwner":"a","newOwner":"bc1pw","amount":"1000","listedPrice":"5000"},
			{"kind":"sent","rune":"X","oldOwner":"bc1pw","newOwner":"b"}
		]`))
	})

	acts, err := c.RuneActivities(context.Background(), "bc1pw", 20)
	require.NoError(t, err)
	require.Len(t, acts, 2)
	assert.Equal(t, "buying_broadcasted", acts[0].Kind)
	assert.Equal(t, "1000", acts[0].Amount.String())
	assert.Equal(t, "5000", acts[0].ListedPriceSats.String())
	assert.Equal(t, "1", acts[1].Amount.String(), "missing amount defaults to one unit")
	assert.True(t, acts[1].ListedPriceSats.IsZero())
}

func TestRuneActivitiesNotAList(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"nope"}`))
	})
	acts, err := c.RuneActivities(context.Background(), "bc1pw", 0)
	require.NoError(t, err)
	assert.Empty(t, acts)
}
