package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const discordUsername = "rdfetch"

// DiscordSink posts error notifications to a Discord webhook. Delivery is
// asynchronous and failures are only logged.
type DiscordSink struct {
	webhookURL string
	client     *http.Client
	logger     *slog.Logger
	minLevel   Severity
}

// NewDiscordSink returns a sink for webhookURL, or nil when the URL is empty.
func NewDiscordSink(webhookURL string, timeout time.Duration, logger *slog.Logger) *DiscordSink {
	webhookURL = strings.TrimSpace(webhookURL)
	if webhookURL == "" {
		return nil
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DiscordSink{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		logger:     logger,
		minLevel:   SeverityError,
	}
}

// IncludeInfo makes the sink forward info messages too.
func (d *DiscordSink) IncludeInfo() *DiscordSink {
	d.minLevel = SeverityInfo
	return d
}

func (d *DiscordSink) Report(message string, severity Severity) {
	if d == nil {
		return
	}
	if d.minLevel == SeverityError && severity != SeverityError {
		return
	}
	go func() {
		if err := d.Send(context.Background(), message, severity); err != nil {
			d.logger.Warn("discord notification failed", "error", err)
		}
	}()
}

type discordPayload struct {
	Username string `json:"username"`
	Content  string `json:"content"`
}

// Send delivers one message synchronously.
func (d *DiscordSink) Send(ctx context.Context, message string, severity Severity) error {
	prefix := "ℹ️"
	if severity == SeverityError {
		prefix = "❌"
	}
	body, err := json.Marshal(discordPayload{
		Username: discordUsername,
		Content:  prefix + " " + strings.TrimSpace(message),
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	return nil
}
