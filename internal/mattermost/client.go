// Package mattermost provides webhook client for sending notifications to Mattermost.
package mattermost

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aimd54/retail-gamification/internal/config"
	"github.com/aimd54/retail-gamification/pkg/logger"
)

const requestTimeout = 10 * time.Second

// Client handles Mattermost webhook notifications.
type Client struct {
	webhookURL string
	channel    string
	enabled    bool
	httpClient *http.Client
	log        *logger.Logger
}

// NewClient creates a new Mattermost client.
func NewClient(cfg *config.MattermostConfig, log *logger.Logger) *Client {
	return &Client{
		webhookURL: cfg.WebhookURL,
		channel:    cfg.Channel,
		enabled:    cfg.Enabled,
		httpClient: &http.Client{Timeout: requestTimeout},
		log:        log.Component("mattermost"),
	}
}

// Enabled reports whether messages are actually sent.
func (c *Client) Enabled() bool {
	return c.enabled
}

// Message represents a Mattermost message payload.
type Message struct {
	Channel     string       `json:"channel,omitempty"`
	Username    string       `json:"username,omitempty"`
	Text        string       `json:"text,omitempty"`
	IconURL     string       `json:"icon_url,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment represents a message attachment.
type Attachment struct {
	Fallback string  `json:"fallback,omitempty"`
	Color    string  `json:"color,omitempty"`
	Pretext  string  `json:"pretext,omitempty"`
	Title    string  `json:"title,omitempty"`
	Text     string  `json:"text,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	ThumbURL string  `json:"thumb_url,omitempty"`
	Footer   string  `json:"footer,omitempty"`
}

// Field represents a message field.
type Field struct {
	Short bool   `json:"short"`
	Title string `json:"title"`
	Value string `json:"value"`
}

// SendMessage sends a message to Mattermost.
func (c *Client) SendMessage(ctx context.Context, msg *Message) error {
	if !c.enabled {
		c.log.Debug().Msg("Mattermost is disabled, skipping message")
		return nil
	}

	if msg.Channel == "" {
		msg.Channel = c.channel
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send message to Mattermost: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mattermost returned status %d", resp.StatusCode)
	}

	c.log.Debug().
		Str("channel", msg.Channel).
		Msg("Sent message to Mattermost")

	return nil
}

// SendSimpleMessage sends a simple text message.
func (c *Client) SendSimpleMessage(ctx context.Context, text string) error {
	return c.SendMessage(ctx, &Message{
		Text: text,
	})
}

// DigestEntry is one user's activity in a notification digest.
type DigestEntry struct {
	Username string
	Store    string
	Titles   []string
	Points   int
}

// SendDigest posts a summary of the notifications created since the previous digest.
func (c *Client) SendDigest(ctx context.Context, since time.Time, entries []DigestEntry) error {
	if len(entries) == 0 {
		c.log.Debug().Msg("No gamification activity, skipping digest")
		return nil
	}

	sorted := make([]DigestEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Points > sorted[j].Points
	})

	var b strings.Builder
	fmt.Fprintf(&b, "### 🏆 Gamification digest\n\nActivity since %s:\n\n", since.Format("2006-01-02 15:04 MST"))
	for _, e := range sorted {
		store := ""
		if e.Store != "" {
			store = fmt.Sprintf(" (%s)", e.Store)
		}
		fmt.Fprintf(&b, "• **@%s**%s %+d points: %s\n", e.Username, store, e.Points, strings.Join(e.Titles, ", "))
	}

	return c.SendMessage(ctx, &Message{
		Username: "Retail Gamification Bot",
		Text:     b.String(),
	})
}
