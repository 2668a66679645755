package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// Discord caps embed titles at 256 and descriptions at 4096 characters.
const (
	discordTitleMax = 256
	discordBodyMax  = 4096
	discordColor    = 0x5865F2
)

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Timestamp   string `json:"timestamp"`
}

type discordPayload struct {
	Username string         `json:"username"`
	Embeds   []discordEmbed `json:"embeds"`
}

// DiscordSender posts each notification as one embed on a channel webhook.
// Requests throttled with 429 are retried after the advertised delay.
type DiscordSender struct {
	webhookURL string
	client     *resty.Client
	now        func() time.Time
}

func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     newDiscordClient(resty.New()),
		now:        time.Now,
	}
}

func newDiscordClient(c *resty.Client) *resty.Client {
	return c.
		SetTimeout(10*time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500*time.Millisecond).
		SetRetryMaxWaitTime(5*time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && r.StatusCode() == http.StatusTooManyRequests
		})
}

func (d *DiscordSender) Send(ctx context.Context, title, message string) error {
	body := discordPayload{
		Username: "MetaMarket",
		Embeds: []discordEmbed{{
			Title:       clip(title, discordTitleMax),
			Description: clip(message, discordBodyMax),
			Color:       discordColor,
			Timestamp:   d.now().UTC().Format(time.RFC3339),
		}},
	}
	resp, err := d.client.R().SetContext(ctx).SetBody(body).Post(d.webhookURL)
	if err != nil {
		return fmt.Errorf("discord: send: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("discord: status %d: %s", resp.StatusCode(), clip(resp.String(), 512))
	}
	return nil
}

func (d *DiscordSender) Name() string { return "discord" }

// clip shortens s to at most n runes.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
