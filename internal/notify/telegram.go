package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const telegramAPI = "https://api.telegram.org"

// TelegramSender posts through the Telegram Bot API.
type TelegramSender struct {
	baseURL string
	token   string
	chatID  string
	client  *resty.Client
}

// NewTelegramSender creates a TelegramSender for a bot token and chat id.
func NewTelegramSender(token, chatID string) *TelegramSender {
	return &TelegramSender{
		baseURL: telegramAPI,
		token:   token,
		chatID:  chatID,
		client:  resty.New().SetTimeout(10 * time.Second),
	}
}

// Send calls sendMessage with Markdown formatting.
func (t *TelegramSender) Send(ctx context.Context, title, message string) error {
	var result struct {
		OK          bool   `json:"ok"`
		Description string `json:"description"`
	}
	resp, err := t.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"chat_id":    t.chatID,
			"text":       fmt.Sprintf("*%s*\n%s", title, message),
			"parse_mode": "Markdown",
		}).
		SetResult(&result).
		SetError(&result).
		Post(fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.token))
	if err != nil {
		return fmt.Errorf("telegram: send: %w", err)
	}
	if resp.IsError() || !result.OK {
		return fmt.Errorf("telegram: status %d: %s", resp.StatusCode(), result.Description)
	}
	return nil
}

// Name returns the sender identifier.
func (t *TelegramSender) Name() string { return "telegram" }
