package pnl

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/suspectuso/ord-tracker/internal/bitcoin"
	"github.com/suspectuso/ord-tracker/internal/magiceden"
)

// Trade kinds counted as fills.
var tradeKinds = map[string]bool{
	"buying_broadcasted": true,
	"buy_broadcasted":    true,
}

var (
	sats      = decimal.NewFromInt(bitcoin.SatsPerBTC)
	minBought = decimal.New(1, -12)
	hundred   = decimal.NewFromInt(100)
)

// Market is the market data a Calculator needs.
type Market interface {
	RuneFloor(ctx context.Context, name string) (*magiceden.Floor, error)
	RuneActivities(ctx context.Context, wallet string, offset int) ([]magiceden.RuneActivity, error)
	BTCPriceUSD(ctx context.Context) (decimal.Decimal, error)
}

// WalletActivity ties an activity to the wallet whose list it came from.
type WalletActivity struct {
	Wallet string
	magiceden.RuneActivity
}

// Summary is the profit and loss of a set of wallets in one rune.
type Summary struct {
	Rune      string          `json:"rune"`
	FloorSats decimal.Decimal `json:"floor_sats"`

	Buys           int             `json:"buys"`
	Sells          int             `json:"sells"`
	QuantityBought decimal.Decimal `json:"quantity_bought"`
	QuantitySold   decimal.Decimal `json:"quantity_sold"`
	BoughtBTC      decimal.Decimal `json:"bought_btc"`
	SoldBTC        decimal.Decimal `json:"sold_btc"`

	HoldingQuantity decimal.Decimal `json:"holding_quantity"`
	HoldingBTC      decimal.Decimal `json:"holding_btc"`
	RealizedBTC     decimal.Decimal `json:"realized_btc"`
	UnrealizedBTC   decimal.Decimal `json:"unrealized_btc"`
	PnLBTC          decimal.Decimal `json:"pnl_btc"`
	PnLPercent      decimal.Decimal `json:"pnl_percent"`

	BTCPriceUSD *decimal.Decimal `json:"btc_price_usd,omitempty"`
	PnLUSD      *decimal.Decimal `json:"pnl_usd,omitempty"`
	HoldingUSD  *decimal.Decimal `json:"holding_usd,omitempty"`
}

// Summarize computes PnL for runeName from activities at the given floor (sats per unit).
// Buys are fills received by the wallet; sells are fills it sent to another wallet.
// Activities for other runes and those without a positive price are ignored.
func Summarize(runeName string, activities []WalletActivity, floorSats decimal.Decimal) Summary {
	slug := magiceden.NormalizeRuneName(runeName)
	s := Summary{Rune: slug, FloorSats: floorSats}

	boughtSats, soldSats := decimal.Zero, decimal.Zero
	for _, a := range activities {
		if magiceden.NormalizeRuneName(a.Rune) != slug || !tradeKinds[strings.ToLower(a.Kind)] {
			continue
		}
		if !a.ListedPriceSats.IsPositive() {
			continue
		}

		switch {
		case a.NewOwner == a.Wallet:
			s.Buys++
			s.QuantityBought = s.QuantityBought.Add(a.Amount)
			boughtSats = boughtSats.Add(a.ListedPriceSats)
		case a.OldOwner == a.Wallet && a.NewOwner != a.Wallet:
			s.Sells++
			s.QuantitySold = s.QuantitySold.Add(a.Amount)
			soldSats = soldSats.Add(a.ListedPriceSats)
		}
	}

	s.BoughtBTC = boughtSats.Div(sats)
	s.SoldBTC = soldSats.Div(sats)

	// Quantities are reported in base units with 8 decimals.
	held := s.QuantityBought.Sub(s.QuantitySold)
	if held.IsNegative() {
		held = decimal.Zero
	}
	s.HoldingQuantity = held.Div(sats)
	s.HoldingBTC = s.HoldingQuantity.Mul(floorSats.Div(sats))

	bought := decimal.Max(s.BoughtBTC, minBought)
	switch {
	case s.QuantitySold.IsZero():
		s.UnrealizedBTC = s.HoldingBTC.Sub(bought)
	case s.QuantityBought.IsZero():
		s.UnrealizedBTC = s.HoldingBTC
	default:
		s.RealizedBTC = s.SoldBTC.Sub(s.QuantitySold.Div(s.QuantityBought).Mul(bought))
		s.UnrealizedBTC = s.HoldingBTC.Sub(held.Div(s.QuantityBought).Mul(bought))
	}
	s.PnLBTC = s.RealizedBTC.Add(s.UnrealizedBTC)
	s.PnLPercent = s.PnLBTC.Div(bought).Mul(hundred)

	return s
}

// WithUSD fills the USD fields at the given BTC price.
func (s *Summary) WithUSD(btcUSD decimal.Decimal) {
	pnl := s.PnLBTC.Mul(btcUSD)
	holding := s.HoldingBTC.Mul(btcUSD)
	s.BTCPriceUSD, s.PnLUSD, s.HoldingUSD = &btcUSD, &pnl, &holding
}

// Calculator fetches activities and floors and summarizes them.
type Calculator struct {
	market   Market
	maxPages int
}

func NewCalculator(market Market, maxPages int) *Calculator {
	if maxPages < 1 {
		maxPages = 1
	}
	return &Calculator{market: market, maxPages: maxPages}
}

// Calculate pages every wallet's rune activities and returns the combined PnL.
// A missing USD price leaves the USD fields empty.
func (c *Calculator) Calculate(ctx context.Context, runeName string, wallets []string) (*Summary, error) {
	floor, err := c.market.RuneFloor(ctx, runeName)
	if err != nil {
		return nil, err
	}

	var activities []WalletActivity
	for _, w := range wallets {
		offset := 0
		for page := 0; page < c.maxPages; page++ {
			items, err := c.market.RuneActivities(ctx, w, offset)
			if err != nil {
				return nil, fmt.Errorf("wallet %s: %w", w, err)
			}
			if len(items) == 0 {
				break
			}
			for _, it := range items {
				activities = append(activities, WalletActivity{Wallet: w, RuneActivity: it})
			}
			offset += len(items)
		}
	}

	s := Summarize(runeName, activities, floor.FloorSats)
	if price, err := c.market.BTCPriceUSD(ctx); err == nil {
		s.WithUSD(price)
	}
	return &s, nil
}
