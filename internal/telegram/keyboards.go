package telegram

import (
	"net/url"
	"strings"

	"github.com/go-telegram/bot/models"
)

// ContentURL is the rendered content of an inscription.
func ContentURL(inscriptionID string) string {
	return "https://ord-mirror.magiceden.dev/content/" + url.PathEscape(inscriptionID)
}

// AddressURL links an address on a block explorer.
func AddressURL(address string) string {
	return "https://mempool.space/address/" + url.PathEscape(address)
}

// InscriptionKeyboard links an inscription on marketplaces.
func InscriptionKeyboard(inscriptionID string) *models.InlineKeyboardMarkup {
	id := url.PathEscape(inscriptionID)
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "Magic Eden", URL: "https://magiceden.io/ordinals/item-details/" + id},
				{Text: "ord.io", URL: "https://www.ord.io/" + id},
			},
		},
	}
}

// BRC20Keyboard links a BRC-20 tick.
func BRC20Keyboard(tick, inscriptionID string) *models.InlineKeyboardMarkup {
	t := url.PathEscape(strings.ToLower(tick))
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "UniSat", URL: "https://unisat.io/brc20/" + t},
				{Text: "Magic Eden", URL: "https://magiceden.io/ordinals/item-details/" + url.PathEscape(inscriptionID)},
			},
		},
	}
}

// RuneKeyboard links a rune on marketplaces and explorers. name has no spacers;
// runeID may be empty.
func RuneKeyboard(name, spaced, runeID string) *models.InlineKeyboardMarkup {
	r := url.PathEscape(name)
	rows := [][]models.InlineKeyboardButton{
		{
			{Text: "Magic Eden", URL: "https://magiceden.io/runes/" + r},
			{Text: "Luminex", URL: "https://luminex.io/rune/" + url.PathEscape(spaced)},
		},
		{
			{Text: "GeniiData", URL: "https://geniidata.com/ordinals/runes/" + r},
			{Text: "ord.io", URL: "https://www.ord.io/" + r + "?showcase-tab=minting&tab=mint"},
			{Text: "RuneBlaster", URL: "https://runeblaster.io/" + r},
		},
	}
	if runeID != "" {
		rows[0] = append(rows[0], models.InlineKeyboardButton{
			Text: "Satosea", URL: "https://satosea.xyz/en/rune/" + url.PathEscape(runeID),
		})
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
