package notifier

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-telegram/bot/models"
	"github.com/shopspring/decimal"

	"github.com/suspectuso/ord-tracker/internal/bitcoin"
	"github.com/suspectuso/ord-tracker/internal/classifier"
	"github.com/suspectuso/ord-tracker/internal/magiceden"
	"github.com/suspectuso/ord-tracker/internal/telegram"
)

// Sender is the part of telegram.Bot the sink uses.
type Sender interface {
	SendNotification(ctx context.Context, channel string, text string, keyboard *models.InlineKeyboardMarkup) error
}

// Telegram renders notifications as HTML messages.
type Telegram struct {
	bot Sender
}

func NewTelegram(bot Sender) *Telegram {
	return &Telegram{bot: bot}
}

func (t *Telegram) Notify(ctx context.Context, n Notification) error {
	return t.bot.SendNotification(ctx, n.ChannelID, FormatNotification(n), keyboardFor(n))
}

func (t *Telegram) NotifyMint(ctx context.Context, n MintNotification) error {
	name := n.Rune.Rune
	if name == "" {
		name = magiceden.NormalizeRuneName(n.Rune.SpacedRune)
	}
	kb := telegram.RuneKeyboard(name, n.Rune.SpacedRune, n.Rune.ID)
	return t.bot.SendNotification(ctx, n.ChannelID, FormatMint(n), kb)
}

func keyboardFor(n Notification) *models.InlineKeyboardMarkup {
	switch n.Category {
	case classifier.RuneTransfer:
		spaced := strings.Fields(n.AssetLabel)
		label := ""
		if len(spaced) > 0 {
			label = spaced[0]
		}
		return telegram.RuneKeyboard(magiceden.NormalizeRuneName(label), label, n.AssetID)
	case classifier.BRC20Transfer, classifier.BRC20Mint:
		return telegram.BRC20Keyboard(n.AssetLabel, n.CanonicalID)
	}
	return telegram.InscriptionKeyboard(n.CanonicalID)
}

// FormatNotification renders a wallet event.
func FormatNotification(n Notification) string {
	var emoji, verb string
	switch n.Direction {
	case classifier.Buy:
		emoji, verb = "🟢", "bought"
	case classifier.Sell:
		emoji, verb = "🔴", "sold"
	default:
		emoji, verb = "✨", "minted"
	}

	name := n.WalletName
	if name == "" {
		name = bitcoin.ShortAddr(n.WalletAddress, 4)
	}
	nameLink := fmt.Sprintf("<a href='%s'>%s</a>", telegram.AddressURL(n.WalletAddress), html.EscapeString(name))

	lines := []string{
		fmt.Sprintf("%s <b>%s %s %s</b>", emoji, nameLink, verb, html.EscapeString(n.AssetLabel)),
		fmt.Sprintf("<i>%s</i>", categoryName(n.Category)),
		"",
	}

	if n.PriceSats != nil {
		lines = append(lines, "Price: "+formatPrice(*n.PriceSats, n.PriceUSD))
	}
	if n.Quantity != nil {
		lines = append(lines, "Amount: "+humanize.CommafWithDigits(n.Quantity.Round(2).InexactFloat64(), 2))
	}
	if n.Counterparty != "" {
		lines = append(lines, fmt.Sprintf("Counterparty: <a href='%s'>%s</a>",
			telegram.AddressURL(n.Counterparty), bitcoin.ShortAddr(n.Counterparty, 4)))
	}
	if n.ContentID != "" {
		lines = append(lines, fmt.Sprintf("<a href='%s'>Content</a>", telegram.ContentURL(n.ContentID)))
	}

	lines = append(lines, "", fmt.Sprintf("<code>%s</code>", html.EscapeString(n.CanonicalID)))
	return strings.Join(lines, "\n")
}

// FormatMint renders a mint threshold announcement.
func FormatMint(n MintNotification) string {
	r := n.Rune
	name := r.SpacedRune
	if name == "" {
		name = n.Token
	}

	lines := []string{
		fmt.Sprintf("⛏ <b>%s Mint Update</b>", html.EscapeString(name)),
		fmt.Sprintf("%s has minted %.2f%%!", html.EscapeString(r.Symbol), n.Percentage),
		"",
		"Holders: " + humanize.Comma(r.Holders),
		fmt.Sprintf("Remaining Supply: %s of %s left",
			humanize.BigComma(r.Remaining.BigInt()), humanize.BigComma(r.MaxSupply.BigInt())),
		fmt.Sprintf("Premine Percentage: %s%%", html.EscapeString(r.PreminePercentage)),
	}
	return strings.Join(lines, "\n")
}

// formatPrice renders sats as BTC with a USD value; zero is N/A.
func formatPrice(sats int64, usd *decimal.Decimal) string {
	if sats <= 0 {
		return "N/A"
	}
	s := bitcoin.SatsToBTC(sats).StringFixed(8) + " BTC"
	if usd != nil {
		s += " ($" + humanize.CommafWithDigits(usd.Round(2).InexactFloat64(), 2) + ")"
	}
	return s
}

func categoryName(c classifier.Category) string {
	switch c {
	case classifier.BRC20Transfer, classifier.BRC20Mint:
		return "BRC-20"
	case classifier.RuneTransfer:
		return "Runes"
	}
	return "Inscriptions"
}
