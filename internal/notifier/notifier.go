package notifier

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/suspectuso/ord-tracker/internal/bestinslot"
	"github.com/suspectuso/ord-tracker/internal/classifier"
	"github.com/suspectuso/ord-tracker/internal/satosea"
)

// Notification is one new wallet event to deliver to a channel.
type Notification struct {
	ChannelID    string
	Category     classifier.Category
	Direction    classifier.Direction
	PriceSats    *int64
	PriceUSD     *decimal.Decimal
	Counterparty string
	AssetLabel   string
	CanonicalID  string

	Guild         string
	WalletName    string
	WalletAddress string
	Quantity      *decimal.Decimal
	AssetID       string
	ContentID     string
	Feed          bestinslot.FeedKind
}

// MintNotification announces that a rune crossed a mint threshold.
type MintNotification struct {
	Guild      string
	ChannelID  string
	Token      string
	Threshold  float64
	Percentage float64
	Rune       satosea.RuneDetails
}

// Notifier delivers notifications. Implementations render and send; they never
// decide whether something is new.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	NotifyMint(ctx context.Context, n MintNotification) error
}

// Log writes notifications to a logger instead of a chat.
type Log struct {
	log *slog.Logger
}

func NewLog(log *slog.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(ctx context.Context, n Notification) error {
	attrs := []any{
		"channel_id", n.ChannelID,
		"category", n.Category,
		"direction", n.Direction,
		"wallet", n.WalletAddress,
		"asset", n.AssetLabel,
		"id", n.CanonicalID,
		"counterparty", n.Counterparty,
	}
	if n.PriceSats != nil {
		attrs = append(attrs, "price_sats", *n.PriceSats)
	}
	if n.PriceUSD != nil {
		attrs = append(attrs, "price_usd", n.PriceUSD.StringFixed(2))
	}
	l.log.Info("notification", attrs...)
	return nil
}

func (l *Log) NotifyMint(ctx context.Context, n MintNotification) error {
	l.log.Info("mint notification",
		"guild", n.Guild,
		"channel_id", n.ChannelID,
		"token", n.Token,
		"threshold", n.Threshold,
		"percentage", n.Percentage,
	)
	return nil
}
