package classifier

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/suspectuso/ord-tracker/internal/bestinslot"
)

// Category of a classified activity.
type Category string

const (
	InscriptionSale Category = "inscription_sale"
	InscriptionMint Category = "inscription_mint"
	BRC20Transfer   Category = "brc20_transfer"
	BRC20Mint       Category = "brc20_mint"
	RuneTransfer    Category = "rune_transfer"
)

// Direction of an activity relative to the tracked wallet.
type Direction string

const (
	Buy  Direction = "buy"
	Sell Direction = "sell"
	Mint Direction = "mint"
)

// Record is a classified activity ready for deduplication.
type Record struct {
	ID           string
	Category     Category
	Direction    Direction
	Counterparty string

	// PriceSats is nil for mints and 0 when the upstream price is missing or unparseable.
	PriceSats *int64

	AssetLabel string
	AssetID    string
	Quantity   *decimal.Decimal

	// ContentID is the inscription whose content renders the asset.
	ContentID string
	Feed      bestinslot.FeedKind
}

var satsPerBTC = decimal.NewFromInt(100_000_000)

// Classify turns an activity into a Record for wallet. It returns false when the
// activity has no canonical id or its direction relative to wallet is indeterminate.
// The result depends only on the arguments.
func Classify(a bestinslot.Activity, wallet string) (Record, bool) {
	if wallet == "" {
		return Record{}, false
	}

	switch {
	case a.InscriptionName == nil && (a.Transfer != nil || a.Mint != nil):
		return classifyBRC20(a, wallet)
	case a.TxID != "":
		return classifyRune(a, wallet)
	case a.Feed == bestinslot.FeedRuneTransfers:
		return Record{}, false
	}
	return classifyInscription(a, wallet)
}

func classifyBRC20(a bestinslot.Activity, wallet string) (Record, bool) {
	if a.InscriptionID == "" {
		return Record{}, false
	}

	// The inscriptions feed reports mints; the sales feed reports transfers.
	phase, category := a.Transfer, BRC20Transfer
	if phase == nil || (a.Feed == bestinslot.FeedInscriptions && a.Mint != nil) {
		phase, category = a.Mint, BRC20Mint
	}

	rec := Record{
		ID:         a.InscriptionID,
		Category:   category,
		AssetLabel: phase.Tick,
		AssetID:    a.InscriptionID,
		ContentID:  a.InscriptionID,
		Feed:       a.Feed,
	}

	if category == BRC20Mint {
		if a.To != wallet && phase.MintWallet != wallet {
			return Record{}, false
		}
		rec.Direction = Mint
		if q, ok := parseDecimal(phase.Amount); ok {
			q = q.Div(satsPerBTC)
			rec.Quantity = &q
		}
		return rec, true
	}

	dir, counterparty, ok := direction(a.From, a.To, wallet)
	if !ok {
		return Record{}, false
	}
	rec.Direction = dir
	rec.Counterparty = counterparty
	rec.PriceSats = sats(a.PSBTSale)
	if q, ok := parseDecimal(phase.Amount); ok {
		rec.Quantity = &q
	}
	return rec, true
}

func classifyRune(a bestinslot.Activity, wallet string) (Record, bool) {
	dir, counterparty, ok := direction(a.WalletFrom, a.WalletTo, wallet)
	if !ok {
		return Record{}, false
	}

	rec := Record{
		ID:           a.TxID,
		Category:     RuneTransfer,
		Direction:    dir,
		Counterparty: counterparty,
		PriceSats:    sats(a.SalePriceSats),
		ContentID:    a.DeployTxID,
		Feed:         a.Feed,
	}

	label := a.Symbol
	if a.Rune != nil {
		label = strings.TrimSpace(a.Rune.SpacedName + " " + a.Symbol)
		if a.Rune.Number != "" {
			label += " #" + a.Rune.Number
		}
		rec.AssetID = a.Rune.RuneID
	}
	rec.AssetLabel = label

	if q, ok := parseDecimal(a.Amount); ok {
		rec.Quantity = &q
	}
	return rec, true
}

func classifyInscription(a bestinslot.Activity, wallet string) (Record, bool) {
	if a.InscriptionID == "" {
		return Record{}, false
	}

	name := "N/A"
	if a.InscriptionName != nil {
		name = *a.InscriptionName
	}
	label := name
	if a.InscriptionNumber != "" {
		label += " #" + a.InscriptionNumber
	}

	rec := Record{
		ID:         a.InscriptionID,
		AssetLabel: label,
		AssetID:    a.InscriptionID,
		ContentID:  a.InscriptionID,
		Feed:       a.Feed,
	}

	if a.Feed == bestinslot.FeedInscriptions {
		if a.To != wallet {
			return Record{}, false
		}
		rec.Category = InscriptionMint
		rec.Direction = Mint
		return rec, true
	}

	dir, counterparty, ok := direction(a.From, a.To, wallet)
	if !ok {
		return Record{}, false
	}
	rec.Category = InscriptionSale
	rec.Direction = dir
	rec.Counterparty = counterparty
	rec.PriceSats = sats(a.PSBTSale)
	return rec, true
}

// direction returns buy when the wallet received, sell when it sent to someone else.
func direction(from, to, wallet string) (Direction, string, bool) {
	switch {
	case to == wallet && from != wallet:
		return Buy, from, true
	case from == wallet && to != wallet && to != "":
		return Sell, to, true
	}
	return "", "", false
}

// sats parses an upstream price. Missing or non-numeric input is 0.
func sats(raw string) *int64 {
	var v int64
	raw = strings.TrimSpace(raw)
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil && n > 0 {
		v = n
	} else if d, err := decimal.NewFromString(raw); err == nil && d.IsPositive() {
		v = d.IntPart()
	}
	return &v
}

func parseDecimal(raw string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}
