// Package telegram mirrors fired stock alerts to a Telegram chat.
package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/mjessen/stockalerts/internal/models"
)

// Client sends alert messages via the Telegram Bot API.
type Client struct {
	bot            *tgbotapi.BotAPI
	chatID         int64
	maxRetries     int
	retryDelayBase time.Duration
	log            zerolog.Logger
}

// NewClient creates a Telegram client.
func NewClient(botToken, chatID string, maxRetries int, retryDelayBase time.Duration, log zerolog.Logger) (*Client, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	chatIDInt, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid chat ID: %w", err)
	}

	if maxRetries <= 0 {
		maxRetries = 3
	}
	if retryDelayBase <= 0 {
		retryDelayBase = time.Second
	}

	return &Client{
		bot:            bot,
		chatID:         chatIDInt,
		maxRetries:     maxRetries,
		retryDelayBase: retryDelayBase,
		log:            log,
	}, nil
}

// SendAlert mirrors one dispatched alert, including the headline titles
// that went into the push notification.
func (c *Client) SendAlert(rec models.AlertRecord, headlines []models.HeadlineItem) error {
	return c.sendMarkdownV2(formatAlert(rec, headlines))
}

// sendMarkdownV2 sends a MarkdownV2 message with linear-backoff retry.
func (c *Client) sendMarkdownV2(text string) error {
	msg := tgbotapi.NewMessage(c.chatID, text)
	msg.ParseMode = "MarkdownV2"

	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if _, err := c.bot.Send(msg); err == nil {
			return nil
		} else {
			lastErr = err
		}
		time.Sleep(c.retryDelayBase * time.Duration(i+1))
	}
	return fmt.Errorf("failed after %d retries: %w", c.maxRetries, lastErr)
}

// formatAlert renders a single alert as a MarkdownV2 message.
func formatAlert(rec models.AlertRecord, headlines []models.HeadlineItem) string {
	icon := "📈"
	if rec.Direction == "down" {
		icon = "📉"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s *%s* %s\n",
		icon,
		escapeMarkdownV2(rec.Ticker),
		escapeMarkdownV2(fmt.Sprintf("%+.2f%%", rec.DeltaPct)),
	)
	fmt.Fprintf(&b, "%s → %s\n",
		escapeMarkdownV2(fmt.Sprintf("%.2f", rec.OpenPrice)),
		escapeMarkdownV2(fmt.Sprintf("%.2f", rec.LastPrice)),
	)

	for _, h := range headlines {
		line := h.Title
		if h.Source != "" {
			line += " (" + h.Source + ")"
		}
		if h.Link != "" {
			fmt.Fprintf(&b, "• [%s](%s)\n", escapeMarkdownV2(line), h.Link)
		} else {
			fmt.Fprintf(&b, "• %s\n", escapeMarkdownV2(line))
		}
	}

	return b.String()
}

// escapeMarkdownV2 escapes special characters for Telegram MarkdownV2.
func escapeMarkdownV2(text string) string {
	var b strings.Builder
	b.Grow(len(text) + len(text)/4)
	for _, char := range text {
		switch char {
		case '_', '*', '[', ']', '(', ')', '~', '`', '>', '#', '+', '-', '=', '|', '{', '}', '.', '!':
			b.WriteByte('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}
