package discord

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"replay-analyzer/internal/collector"

	json "github.com/goccy/go-json"
)

const (
	// Colors for Discord embeds
	colorRed   = 15158332 // 0xE74C3C - for errors
	colorGreen = 5763719  // 0x57F287 - for success

	// Default timeout for webhook requests
	defaultWebhookTimeout = 10 * time.Second

	// Max retries for rate limiting
	maxRetries = 3
)

// WebhookPayload represents a Discord webhook message
type WebhookPayload struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// Embed represents a Discord embed
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
}

// EmbedField represents a field in a Discord embed
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// EmbedFooter represents the footer of a Discord embed
type EmbedFooter struct {
	Text string `json:"text"`
}

// NewBatchSummaryPayload creates a payload reporting one collection run
func NewBatchSummaryPayload(s collector.Summary) WebhookPayload {
	return WebhookPayload{
		Embeds: []Embed{
			{
				Title: "✅ Collection Run Complete",
				Color: colorGreen,
				Fields: []EmbedField{
					{
						Name:   "Format",
						Value:  s.Format,
						Inline: true,
					},
					{
						Name:   "Battles Stored",
						Value:  formatNumber(int(s.Stored)),
						Inline: true,
					},
					{
						Name:   "Runtime",
						Value:  formatDuration(s.Elapsed),
						Inline: true,
					},
					{
						Name:   "Parse Failures",
						Value:  formatNumber(int(s.ParseFailures)),
						Inline: true,
					},
					{
						Name:   "Duplicates",
						Value:  formatNumber(int(s.Duplicates)),
						Inline: true,
					},
					{
						Name:   "Empty Logs",
						Value:  formatNumber(int(s.EmptyLogs)),
						Inline: true,
					},
				},
				Footer: &EmbedFooter{
					Text: "Next run skips everything already stored",
				},
			},
		},
	}
}

// NewParseFailurePayload creates a payload for one unparseable battle
func NewParseFailurePayload(battleID string, parseErr error) WebhookPayload {
	return WebhookPayload{
		Embeds: []Embed{
			{
				Title:       "⚠️ Battle Failed to Parse",
				Description: parseErr.Error(),
				Color:       colorRed,
				Fields: []EmbedField{
					{
						Name:   "Battle",
						Value:  battleID,
						Inline: true,
					},
				},
				Footer: &EmbedFooter{
					Text: "Raw replay stays in the local cache for reparse",
				},
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			},
		},
	}
}

// WebhookClient sends notifications to Discord webhooks. It implements
// collector.Notifier.
type WebhookClient struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookClient creates a new WebhookClient
func NewWebhookClient(webhookURL string) *WebhookClient {
	return &WebhookClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: defaultWebhookTimeout,
		},
	}
}

// NotifyBatchSummary sends a collection run summary
func (c *WebhookClient) NotifyBatchSummary(ctx context.Context, s collector.Summary) error {
	return c.sendPayload(ctx, NewBatchSummaryPayload(s))
}

// NotifyParseFailure sends a parse failure notification
func (c *WebhookClient) NotifyParseFailure(ctx context.Context, battleID string, parseErr error) error {
	return c.sendPayload(ctx, NewParseFailurePayload(battleID, parseErr))
}

// sendPayload sends a webhook payload with retry on rate limiting
func (c *WebhookClient) sendPayload(ctx context.Context, payload WebhookPayload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		resp.Body.Close()

		// Success - Discord returns 204 No Content
		if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
			return nil
		}

		// Rate limited - wait and retry
		if resp.StatusCode == http.StatusTooManyRequests {
			retryAfter := resp.Header.Get("Retry-After")
			waitDuration := time.Second // Default wait
			if retryAfter != "" {
				if seconds, err := strconv.Atoi(retryAfter); err == nil {
					waitDuration = time.Duration(seconds) * time.Second
				}
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(waitDuration):
				continue
			}
		}

		// Other error
		return fmt.Errorf("webhook request failed with status %d", resp.StatusCode)
	}

	return fmt.Errorf("webhook request failed after %d retries", maxRetries)
}

// formatNumber formats a number with commas (e.g., 47832 -> "47,832")
func formatNumber(n int) string {
	if n < 1000 {
		return strconv.Itoa(n)
	}

	s := strconv.Itoa(n)
	var result bytes.Buffer
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			result.WriteByte(',')
		}
		result.WriteRune(c)
	}
	return result.String()
}

// formatDuration formats a duration as "Xh Ym" (e.g., 18h 32m)
func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
