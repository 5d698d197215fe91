package magiceden

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/suspectuso/ord-tracker/internal/upstream"
)

const DefaultBaseURL = "https://api-mainnet.magiceden.dev"

var (
	// ErrNoData is returned when a response lacks the field being asked for.
	ErrNoData      = errors.New("no market data")
	ErrUnknownKind = errors.New("unknown floor kind")
)

// Kinds of floor lookups.
const (
	KindRune       = "rune"
	KindCollection = "collection"
)

// Floor is the current floor of a rune or an ordinals collection.
type Floor struct {
	Kind      string          `json:"kind"`
	Slug      string          `json:"slug"`
	Name      string          `json:"name,omitempty"`
	Symbol    string          `json:"symbol,omitempty"`
	FloorSats decimal.Decimal `json:"floor_sats"`
	Holders   int64           `json:"holders,omitempty"`
	Pending   int64           `json:"pending,omitempty"`
	Listed    int64           `json:"listed,omitempty"`
}

// RuneActivity is one entry of a wallet's rune activity list.
type RuneActivity struct {
	Kind            string
	Rune            string
	OldOwner        string
	NewOwner        string
	Amount          decimal.Decimal
	ListedPriceSats decimal.Decimal
}

// Client reads market data. The BTC/USD price is cached for priceTTL.
type Client struct {
	http     *upstream.Client
	priceTTL time.Duration
	now      func() time.Time

	mu        sync.Mutex
	price     decimal.Decimal
	priceTime time.Time
}

func NewClient(c *upstream.Client) *Client {
	return &Client{
		http:     c,
		priceTTL: 60 * time.Second,
		now:      time.Now,
	}
}

// NormalizeRuneName strips spacers and upper-cases a rune name: "DOG•GO" -> "DOGGO".
func NormalizeRuneName(name string) string {
	name = strings.ReplaceAll(name, "•", "")
	name = strings.ReplaceAll(name, ".", "")
	return strings.ToUpper(strings.TrimSpace(name))
}

// BTCPriceUSD returns the BTCUSDT ticker price.
func (c *Client) BTCPriceUSD(ctx context.Context) (decimal.Decimal, error) {
	c.mu.Lock()
	if !c.priceTime.IsZero() && c.now().Sub(c.priceTime) < c.priceTTL {
		p := c.price
		c.mu.Unlock()
		return p, nil
	}
	c.mu.Unlock()

	res, err := c.http.GetJSON(ctx, "/v2/cryptoTicker/price", nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("fetch btc price: %w", err)
	}

	var price decimal.Decimal
	found := false
	res.Get("results").ForEach(func(_, r gjson.Result) bool {
		if r.Get("symbol").String() != "BTCUSDT" {
			return true
		}
		p, err := decimal.NewFromString(r.Get("price").String())
		if err == nil && p.IsPositive() {
			price, found = p, true
		}
		return false
	})
	if !found {
		return decimal.Zero, fmt.Errorf("%w: BTCUSDT ticker", ErrNoData)
	}

	c.mu.Lock()
	c.price, c.priceTime = price, c.now()
	c.mu.Unlock()
	return price, nil
}

// RuneFloor returns the floor unit price of a rune, in sats.
func (c *Client) RuneFloor(ctx context.Context, name string) (*Floor, error) {
	slug := NormalizeRuneName(name)
	if slug == "" {
		return nil, fmt.Errorf("%w: empty rune name", ErrNoData)
	}

	res, err := c.http.GetJSON(ctx, "/v2/ord/btc/runes/market/"+url.PathEscape(slug)+"/info", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch rune %s: %w", slug, err)
	}

	floor, err := decimal.NewFromString(res.Get("floorUnitPrice.formatted").String())
	if err != nil {
		return nil, fmt.Errorf("%w: floor for rune %s", ErrNoData, slug)
	}

	return &Floor{
		Kind:      KindRune,
		Slug:      slug,
		Name:      res.Get("name").String(),
		Symbol:    res.Get("symbol").String(),
		FloorSats: floor,
		Holders:   res.Get("holderCount").Int(),
		Pending:   res.Get("pendingTxnCount").Int(),
	}, nil
}

// CollectionFloor returns the floor of an ordinals collection, in sats.
func (c *Client) CollectionFloor(ctx context.Context, symbol string) (*Floor, error) {
	symbol = strings.ToLower(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("%w: empty collection symbol", ErrNoData)
	}

	res, err := c.http.GetJSON(ctx, "/v2/ord/btc/stat", url.Values{"collectionSymbol": {symbol}})
	if err != nil {
		return nil, fmt.Errorf("fetch collection %s: %w", symbol, err)
	}

	floor, err := decimal.NewFromString(res.Get("floorPrice").String())
	if err != nil {
		return nil, fmt.Errorf("%w: floor for collection %s", ErrNoData, symbol)
	}

	return &Floor{
		Kind:      KindCollection,
		Slug:      symbol,
		Symbol:    symbol,
		FloorSats: floor,
		Holders:   res.Get("owners").Int(),
		Pending:   res.Get("pendingTransactions").Int(),
		Listed:    res.Get("totalListed").Int(),
	}, nil
}

// Floor dispatches on kind.
func (c *Client) Floor(ctx context.Context, kind, slug string) (*Floor, error) {
	switch kind {
	case KindRune, "runes":
		return c.RuneFloor(ctx, slug)
	case KindCollection, "ordinals", "ord":
		return c.CollectionFloor(ctx, slug)
	}
	return nil, fmt.Errorf("%w %q", ErrUnknownKind, kind)
}

// RuneActivities returns one page of a wallet's rune activities. A response that
// is not a list yields no activities.
func (c *Client) RuneActivities(ctx context.Context, wallet string, offset int) ([]RuneActivity, error) {
	res, err := c.http.GetJSON(ctx,
		"/v2/ord/btc/runes/wallet/activities/"+url.PathEscape(wallet),
		url.Values{"offset": {strconv.Itoa(offset)}},
	)
	if err != nil {
		return nil, fmt.Errorf("fetch rune activities for %s: %w", wallet, err)
	}
	if !res.IsArray() {
		return nil, nil
	}

	var out []RuneActivity
	res.ForEach(func(_, item gjson.Result) bool {
		if !item.IsObject() {
			return true
		}
		amount, err := decimal.NewFromString(item.Get("amount").String())
		if err != nil {
			amount = decimal.NewFromInt(1)
		}
		price, err := decimal.NewFromString(item.Get("listedPrice").String())
		if err != nil {
			price = decimal.Zero
		}
		out = append(out, RuneActivity{
			Kind:            strings.ToLower(item.Get("kind").String()),
			Rune:            item.Get("rune").String(),
			OldOwner:        item.Get("oldOwner").String(),
			NewOwner:        item.Get("newOwner").String(),
			Amount:          amount,
			ListedPriceSats: price,
		})
		return true
	})
	return out, nil
}
