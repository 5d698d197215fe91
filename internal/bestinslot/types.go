package bestinslot

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// FeedKind names one of the wallet activity feeds.
type FeedKind string

const (
	FeedInscriptionSales FeedKind = "inscription_sales"
	FeedInscriptions     FeedKind = "inscriptions"
	FeedRuneTransfers    FeedKind = "rune_transfers"
)

// Feeds lists every feed in polling order.
var Feeds = []FeedKind{FeedInscriptionSales, FeedInscriptions, FeedRuneTransfers}

// ParseFeedKind validates a feed name.
func ParseFeedKind(s string) (FeedKind, error) {
	switch k := FeedKind(s); k {
	case FeedInscriptionSales, FeedInscriptions, FeedRuneTransfers:
		return k, nil
	}
	return "", fmt.Errorf("unknown feed %q", s)
}

// BRC20Phase is the transfer_info or mint_info block of a BRC-20 inscription.
type BRC20Phase struct {
	Tick       string
	Amount     string
	MintWallet string
}

// Rune is the nested rune block of a rune activity.
type Rune struct {
	SpacedName string
	RuneID     string
	Number     string
}

// Activity is one item of a wallet activity feed. Absent fields are zero values;
// absent nested blocks are nil.
type Activity struct {
	Feed FeedKind

	// Inscription feeds
	InscriptionID     string
	InscriptionName   *string
	InscriptionNumber string
	From              string
	To                string
	PSBTSale          string
	Transfer          *BRC20Phase
	Mint              *BRC20Phase

	// Rune feed
	TxID          string
	WalletFrom    string
	WalletTo      string
	Symbol        string
	SalePriceSats string
	DeployTxID    string
	Amount        string
	Rune          *Rune
}

// ParseActivities reads the items array of a feed page. Items that are not objects
// are skipped; a page without items yields nil.
func ParseActivities(feed FeedKind, page gjson.Result) []Activity {
	items := page.Get("items")
	if !items.IsArray() {
		return nil
	}

	var out []Activity
	items.ForEach(func(_, item gjson.Result) bool {
		if item.IsObject() {
			out = append(out, parseActivity(feed, item))
		}
		return true
	})
	return out
}

func parseActivity(feed FeedKind, item gjson.Result) Activity {
	a := Activity{
		Feed:              feed,
		InscriptionID:     str(item, "inscription_id"),
		InscriptionName:   optStr(item, "inscription_name"),
		InscriptionNumber: str(item, "inscription_number"),
		From:              str(item, "from"),
		To:                str(item, "to"),
		PSBTSale:          str(item, "psbt_sale"),
		Transfer:          brc20Phase(item.Get("brc20_info.transfer_info")),
		Mint:              brc20Phase(item.Get("brc20_info.mint_info")),

		TxID:          str(item, "tx_id"),
		WalletFrom:    str(item, "wallet_from"),
		WalletTo:      str(item, "wallet_to"),
		Symbol:        str(item, "symbol"),
		SalePriceSats: str(item, "sale_price_sats"),
		DeployTxID:    str(item, "deploy_txid"),
		Amount:        str(item, "amount"),
	}

	if r := item.Get("rune"); r.IsObject() {
		a.Rune = &Rune{
			SpacedName: str(r, "spaced_rune_name"),
			RuneID:     str(r, "rune_id"),
			Number:     str(r, "rune_number"),
		}
	}

	return a
}

// brc20Phase returns nil unless the block is an object with a non-null tick.
func brc20Phase(block gjson.Result) *BRC20Phase {
	if !block.IsObject() {
		return nil
	}
	tick := block.Get("tick")
	if !tick.Exists() || tick.Type == gjson.Null {
		return nil
	}
	return &BRC20Phase{
		Tick:       tick.String(),
		Amount:     str(block, "amount"),
		MintWallet: str(block, "mint_wallet"),
	}
}

func str(r gjson.Result, path string) string {
	v := r.Get(path)
	if v.Type == gjson.Null || v.IsObject() || v.IsArray() {
		return ""
	}
	return v.String()
}

func optStr(r gjson.Result, path string) *string {
	v := r.Get(path)
	if !v.Exists() || v.Type == gjson.Null {
		return nil
	}
	s := v.String()
	return &s
}
