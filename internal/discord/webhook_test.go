package discord

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"replay-analyzer/internal/collector"
)

func sampleSummary() collector.Summary {
	return collector.Summary{
		Format:        "gen9ou",
		Pages:         5,
		Fetched:       1250,
		Parsed:        1198,
		Stored:        1150,
		Duplicates:    48,
		EmptyLogs:     31,
		ParseFailures: 21,
		Elapsed:       18*time.Hour + 32*time.Minute,
	}
}

func TestBatchSummaryPayload_Format(t *testing.T) {
	payload := NewBatchSummaryPayload(sampleSummary())

	if len(payload.Embeds) != 1 {
		t.Fatalf("Expected 1 embed, got %d", len(payload.Embeds))
	}
	embed := payload.Embeds[0]
	if embed.Color != colorGreen {
		t.Errorf("Expected green color %d, got %d", colorGreen, embed.Color)
	}

	fields := make(map[string]string)
	for _, f := range embed.Fields {
		fields[f.Name] = f.Value
	}
	if fields["Format"] != "gen9ou" {
		t.Errorf("Expected format gen9ou, got %q", fields["Format"])
	}
	if fields["Battles Stored"] != "1,150" {
		t.Errorf("Expected comma formatted count, got %q", fields["Battles Stored"])
	}
	if fields["Runtime"] != "18h 32m" {
		t.Errorf("Expected runtime 18h 32m, got %q", fields["Runtime"])
	}
}

func TestParseFailurePayload_Format(t *testing.T) {
	payload := NewParseFailurePayload("gen9ou-12345", errors.New("turn 4: no move source found"))

	if len(payload.Embeds) != 1 {
		t.Fatalf("Expected 1 embed, got %d", len(payload.Embeds))
	}
	embed := payload.Embeds[0]
	if embed.Color != colorRed {
		t.Errorf("Expected red color %d, got %d", colorRed, embed.Color)
	}
	if !strings.Contains(embed.Description, "no move source") {
		t.Errorf("Expected error in description, got %q", embed.Description)
	}
	if len(embed.Fields) != 1 || embed.Fields[0].Value != "gen9ou-12345" {
		t.Errorf("Expected battle ID field, got %+v", embed.Fields)
	}
	if embed.Timestamp == "" {
		t.Error("Expected timestamp on failure embed")
	}
}

func TestWebhookClient_SendSuccess(t *testing.T) {
	var received WebhookPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &received); err != nil {
			t.Errorf("Failed to decode payload: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewWebhookClient(server.URL)
	if err := client.NotifyBatchSummary(context.Background(), sampleSummary()); err != nil {
		t.Fatalf("NotifyBatchSummary failed: %v", err)
	}
	if len(received.Embeds) != 1 {
		t.Errorf("Server did not receive the embed")
	}
}

func TestWebhookClient_RetriesOnRateLimit(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewWebhookClient(server.URL)
	err := client.NotifyParseFailure(context.Background(), "gen9ou-1", errors.New("boom"))
	if err != nil {
		t.Fatalf("Expected retry to succeed, got %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
}

func TestWebhookClient_FailsOnServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewWebhookClient(server.URL)
	err := client.NotifyParseFailure(context.Background(), "gen9ou-1", errors.New("boom"))
	if err == nil {
		t.Fatal("Expected error on 500 response")
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{47832, "47,832"},
		{1234567, "1,234,567"},
	}
	for _, tt := range tests {
		if got := formatNumber(tt.in); got != tt.want {
			t.Errorf("formatNumber(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
