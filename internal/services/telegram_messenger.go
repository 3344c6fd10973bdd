package services

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// TelegramMessenger delivers alerts through a Telegram bot.
type TelegramMessenger struct {
	bot *bot.Bot
}

// NewTelegramMessenger wraps an initialised bot.
func NewTelegramMessenger(b *bot.Bot) *TelegramMessenger {
	return &TelegramMessenger{bot: b}
}

// Send posts text to chatID and returns the new message id.
func (m *TelegramMessenger) Send(ctx context.Context, chatID int64, text string) (int, error) {
	msg, err := m.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:    chatID,
		Text:      text,
		ParseMode: tgmodels.ParseModeMarkdownV1,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to send telegram message: %w", err)
	}
	return msg.ID, nil
}

// Edit replaces the text of a previously sent message.
func (m *TelegramMessenger) Edit(ctx context.Context, chatID int64, messageID int, text string) error {
	_, err := m.bot.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:    chatID,
		MessageID: messageID,
		Text:      text,
		ParseMode: tgmodels.ParseModeMarkdownV1,
	})
	if err != nil {
		return fmt.Errorf("failed to edit telegram message: %w", err)
	}
	return nil
}
