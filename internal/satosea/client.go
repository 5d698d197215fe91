package satosea

import (
	"context"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"

	"github.com/suspectuso/ord-tracker/internal/upstream"
)

const DefaultBaseURL = "https://api-runes.satosea.xyz"

// HotRune is a trending rune with its mint progress in percent.
type HotRune struct {
	Tick     string
	Progress float64
}

// RuneDetails is the extended info of a rune.
type RuneDetails struct {
	ID                string
	Rune              string
	SpacedRune        string
	Symbol            string
	Holders           int64
	Remaining         decimal.Decimal
	MaxSupply         decimal.Decimal
	PreminePercentage string
}

// Client reads rune mint data
type Client struct {
	http *upstream.Client
}

func NewClient(c *upstream.Client) *Client {
	return &Client{http: c}
}

// HotRunes returns the trending runes. Entries without a tick are skipped.
func (c *Client) HotRunes(ctx context.Context) ([]HotRune, error) {
	res, err := c.http.GetJSON(ctx, "/api/v1/mempool/nextHot", nil)
	if err != nil {
		return nil, fmt.Errorf("fetch hot runes: %w", err)
	}

	var out []HotRune
	res.Get("data").ForEach(func(_, item gjson.Result) bool {
		tick := item.Get("tick").String()
		if tick == "" {
			return true
		}
		out = append(out, HotRune{Tick: tick, Progress: item.Get("progress").Float()})
		return true
	})
	return out, nil
}

// RuneInfo returns details for a rune id or tick.
func (c *Client) RuneInfo(ctx context.Context, id string) (*RuneDetails, error) {
	res, err := c.http.GetJSON(ctx, "/api/v1/rune/info/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch rune info %s: %w", id, err)
	}

	data := res.Get("data")
	if !data.IsObject() {
		return nil, fmt.Errorf("rune info %s: missing data", id)
	}

	d := &RuneDetails{
		ID:                data.Get("id").String(),
		Rune:              data.Get("rune").String(),
		SpacedRune:        data.Get("spaced_rune").String(),
		Symbol:            data.Get("symbol").String(),
		Holders:           data.Get("holders").Int(),
		Remaining:         dec(data.Get("remaining")),
		MaxSupply:         dec(data.Get("max_supply")),
		PreminePercentage: data.Get("preminePercentage").String(),
	}
	if d.ID == "" {
		d.ID = id
	}
	if d.SpacedRune == "" {
		d.SpacedRune = d.Rune
	}
	if d.PreminePercentage == "" {
		d.PreminePercentage = "0"
	}
	return d, nil
}

func dec(r gjson.Result) decimal.Decimal {
	d, err := decimal.NewFromString(r.String())
	if err != nil {
		return decimal.Zero
	}
	return d
}
