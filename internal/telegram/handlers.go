package telegram

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// --- Handlers ---

func (b *Bot) startHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	text := "<b>Ord Tracker</b> 🟠\n\n" +
		"I post wallet activity for Bitcoin ordinals, BRC-20 and runes:\n" +
		"• Inscription sales and mints\n" +
		"• BRC-20 transfers and mints\n" +
		"• Rune transfers\n" +
		"• Rune mint progress\n\n" +
		"Send /chatid to get the id to use as an output channel."

	b.reply(ctx, update.Message.Chat.ID, text)
}

// chatIDHandler tells operators which id to register as an output or mint channel.
func (b *Bot) chatIDHandler(ctx context.Context, tgBot *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	b.reply(ctx, update.Message.Chat.ID, fmt.Sprintf("Chat ID: <code>%d</code>", update.Message.Chat.ID))
}

func (b *Bot) reply(ctx context.Context, chatID int64, text string) {
	_, err := b.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: models.ParseModeHTML,
	})
	if err != nil {
		b.log.Warn("send reply", "chat_id", chatID, "error", err)
	}
}
