package bestinslot

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/suspectuso/ord-tracker/internal/upstream"
)

const salesPage = `{
	"items": [
		{
			"inscription_id": "abc123i0",
			"inscription_name": "Bitcoin Puppet",
			"inscription_number": 71234,
			"from": "bc1pseller",
			"to": "bc1pbuyer",
			"psbt_sale": "150000"
		},
		{
			"inscription_id": "def456i0",
			"inscription_name": null,
			"brc20_info": {"transfer_info": {"tick": "ordi", "amount": "100"}},
			"from": "bc1pbuyer",
			"to": "bc1pother",
			"psbt_sale": 9000
		},
		"not an object",
		{"brc20_info": {"transfer_info": {"tick": null}}}
	]
}`

func newClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(upstream.New(upstream.Options{
		BaseURL:       srv.URL,
		Timeout:       time.Second,
		RetryInterval: time.Millisecond,
	}))
}

func TestParseActivities(t *testing.T) {
	items := ParseActivities(FeedInscriptionSales, gjson.Parse(salesPage))
	require.Len(t, items, 3)

	first := items[0]
	assert.Equal(t, FeedInscriptionSales, first.Feed)
	assert.Equal(t, "abc123i0", first.InscriptionID)
	require.NotNil(t, first.InscriptionName)
	assert.Equal(t, "Bitcoin Puppet", *first.InscriptionName)
	assert.Equal(t, "71234", first.InscriptionNumber)
	assert.Equal(t, "150000", first.PSBTSale)
	assert.Nil(t, first.Transfer)

	second := items[1]
	assert.Nil(t, second.InscriptionName)
	require.NotNil(t, second.Transfer)
	assert.Equal(t, "ordi", second.Transfer.Tick)
	assert.Equal(t, "100", second.Transfer.Amount)
	assert.Equal(t, "9000", second.PSBTSale)
	assert.Nil(t, second.Mint)

	third := items[2]
	assert.Empty(t, third.InscriptionID)
	assert.Nil(t, third.Transfer, "null tick is not a BRC-20 payload")
}

func TestParseActivitiesRune(t *testing.T) {
	page := gjson.Parse(`{"items":[{
		"tx_id": "f00d",
		"wallet_from": "bc1pa",
		"wallet_to": "bc1pb",
		"symbol": "🐕",
		"sale_price_sats": 21000,
		"deploy_txid": "dead",
		"rune": {"spaced_rune_name": "DOG•GO•TO•THE•MOON", "rune_id": "840000:3", "rune_number": 3}
	}]}`)

	items := ParseActivities(FeedRuneTransfers, page)
	require.Len(t, items, 1)
	a := items[0]
	assert.Equal(t, "f00d", a.TxID)
	assert.Equal(t, "21000", a.SalePriceSats)
	require.NotNil(t, a.Rune)
	assert.Equal(t, "DOG•GO•TO•THE•MOON", a.Rune.SpacedName)
	assert.Equal(t, "840000:3", a.Rune.RuneID)
	assert.Equal(t, "3", a.Rune.Number)
}

func TestParseActivitiesMissingItems(t *testing.T) {
	assert.Empty(t, ParseActivities(FeedInscriptions, gjson.Parse(`{"error":"rate limited"}`)))
	assert.Empty(t, ParseActivities(FeedInscriptions, gjson.Parse(`{"items":{}}`)))
}

func TestFetchActivityRequests(t *testing.T) {
	tests := []struct {
		feed      FeedKind
		wantPath  string
		wantQuery map[string]string
	}{
		{FeedInscriptionSales, "/wallet/history", map[string]string{"page": "1", "address": "bc1pw"}},
		{FeedInscriptions, "/wallet/history", map[string]string{"page": "1", "address": "bc1pw", "activity": "1"}},
		{FeedRuneTransfers, "/rune/activity", map[string]string{"page": "1", "address": "bc1pw", "include_rune": "true"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.feed), func(t *testing.T) {
			c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, tt.wantPath, r.URL.Path)
				for k, v := range tt.wantQuery {
					assert.Equal(t, v, r.URL.Query().Get(k), k)
				}
				w.Write([]byte(`{"items":[]}`))
			})

			items, err := c.FetchActivity(context.Background(), "bc1pw", tt.feed, 0)
			require.NoError(t, err)
			assert.Empty(t, items)
		})
	}
}

func TestFetchActivityErrors(t *testing.T) {
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})
	_, err := c.FetchActivity(context.Background(), "bc1pw", FeedInscriptions, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, upstream.ErrStatus))

	c = newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"items": [`))
	})
	_, err = c.FetchActivity(context.Background(), "bc1pw", FeedInscriptions, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, upstream.ErrMalformed))

	_, err = c.FetchActivity(context.Background(), "bc1pw", FeedKind("bogus"), 1)
	assert.Error(t, err)
}

func TestFetchHistoryStopsAtEmptyPage(t *testing.T) {
	var pages []int
	c := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		pages = append(pages, page)
		if page <= 2 {
			w.Write([]byte(`{"items":[{"tx_id":"t` + strconv.Itoa(page) + `"}]}`))
			return
		}
		w.Write([]byte(`{"items":[]}`))
	})

	items, err := c.FetchHistory(context.Background(), "bc1pw", FeedRuneTransfers, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "t1", items[0].TxID)
	assert.Equal(t, "t2", items[1].TxID)
	assert.Equal(t, []int{1, 2, 3}, pages)
}

func TestParseFeedKind(t *testing.T) {
	k, err := ParseFeedKind("rune_transfers")
	require.NoError(t, err)
	assert.Equal(t, FeedRuneTransfers, k)

	_, err = ParseFeedKind("brc20")
	assert.Error(t, err)
}
