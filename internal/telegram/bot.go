package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Bot wraps the telegram bot used for delivery
type Bot struct {
	bot *bot.Bot
	log *slog.Logger
}

// New creates a new telegram bot
func New(token string, log *slog.Logger, opts ...bot.Option) (*Bot, error) {
	tgBot, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	b := &Bot{bot: tgBot, log: log}

	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, b.startHandler)
	tgBot.RegisterHandler(bot.HandlerTypeMessageText, "/chatid", bot.MatchTypePrefix, b.chatIDHandler)

	return b, nil
}

// Start starts the bot polling
func (b *Bot) Start(ctx context.Context) {
	b.bot.Start(ctx)
}

// ChatID converts a stored channel identifier to what the API expects: numeric ids
// as int64, @usernames as strings.
func ChatID(channel string) any {
	if id, err := strconv.ParseInt(channel, 10, 64); err == nil {
		return id
	}
	return channel
}

// SendNotification sends an HTML message to a chat
func (b *Bot) SendNotification(ctx context.Context, channel string, text string, keyboard *models.InlineKeyboardMarkup) error {
	disablePreview := true
	params := &bot.SendMessageParams{
		ChatID:    ChatID(channel),
		Text:      text,
		ParseMode: models.ParseModeHTML,
		LinkPreviewOptions: &models.LinkPreviewOptions{
			IsDisabled: &disablePreview,
		},
	}
	if keyboard != nil {
		params.ReplyMarkup = keyboard
	}

	_, err := b.bot.SendMessage(ctx, params)
	if err != nil {
		return fmt.Errorf("send message to %s: %w", channel, err)
	}
	return nil
}
