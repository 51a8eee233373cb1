package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/scranton_condor/internal/models"
)

// LogSink writes every event to the log.
type LogSink struct {
	Log *logrus.Logger
}

func (s LogSink) Name() string { return "log" }

func (s LogSink) Opened(_ context.Context, ev OpenedEvent) error {
	s.Log.WithFields(logrus.Fields{
		"strategy_id": ev.StrategyID,
		"credit":      ev.Credit,
		"target":      ev.ProfitTargetDebit,
		"iv_rank":     ev.IVRank,
	}).Info(ev.Summary())
	return nil
}

func (s LogSink) Closed(_ context.Context, ev ClosedEvent) error {
	s.Log.WithFields(logrus.Fields{
		"strategy_id": ev.StrategyID,
		"status":      ev.Status,
		"reason":      ev.Reason,
		"pl":          ev.PL,
	}).Info(ev.Summary())
	return nil
}

// Embed colors.
const (
	colorOpened = 0x3498db
	colorWin    = 0x2ecc71
	colorLoss   = 0xe74c3c
)

// DiscordSink posts embeds to a Discord webhook.
type DiscordSink struct {
	WebhookURL string
	Client     *http.Client
}

// NewDiscordSink returns a sink with a bounded HTTP client.
func NewDiscordSink(webhookURL string) *DiscordSink {
	return &DiscordSink{
		WebhookURL: webhookURL,
		Client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func (s *DiscordSink) Name() string { return "discord" }

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title     string         `json:"title"`
	Color     int            `json:"color"`
	Fields    []discordField `json:"fields"`
	Timestamp string         `json:"timestamp,omitempty"`
}

type discordPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

func (s *DiscordSink) Opened(ctx context.Context, ev OpenedEvent) error {
	fields := []discordField{
		{Name: "Short Call", Value: ev.ShortCall, Inline: true},
		{Name: "Long Call", Value: ev.LongCall, Inline: true},
		{Name: "Short Put", Value: ev.ShortPut, Inline: true},
		{Name: "Long Put", Value: ev.LongPut, Inline: true},
		{Name: "Credit", Value: fmt.Sprintf("$%.2f (%.1f%% of width)", ev.Credit, ev.CreditPct()), Inline: true},
		{Name: "Profit Target", Value: fmt.Sprintf("$%.2f (close at $%.2f)", ev.ProfitTarget, ev.ProfitTargetDebit), Inline: true},
		{Name: "Wing Width", Value: fmt.Sprintf("%.0f", ev.Width), Inline: true},
		{Name: "IV Rank", Value: fmt.Sprintf("%.1f", ev.IVRank), Inline: true},
	}
	if ev.Spot > 0 {
		fields = append(fields, discordField{Name: "Spot", Value: fmt.Sprintf("%.2f", ev.Spot), Inline: true})
	}
	return s.post(ctx, discordPayload{Embeds: []discordEmbed{{
		Title:     "Opened: " + ev.Strategy,
		Color:     colorOpened,
		Fields:    fields,
		Timestamp: timestamp(ev.Time),
	}}})
}

func (s *DiscordSink) Closed(ctx context.Context, ev ClosedEvent) error {
	color := colorWin
	if ev.PL < 0 {
		color = colorLoss
	}
	fields := []discordField{
		{Name: "Reason", Value: string(ev.Reason), Inline: true},
		{Name: "Credit", Value: fmt.Sprintf("$%.2f", ev.Credit), Inline: true},
		{Name: "Debit", Value: fmt.Sprintf("$%.2f", ev.Debit), Inline: true},
		{Name: "P/L", Value: fmt.Sprintf("$%+.2f", ev.PL), Inline: true},
	}
	if ev.Note != "" {
		fields = append(fields, discordField{Name: "Note", Value: ev.Note})
	}
	title := "Closed: "
	if ev.Status == models.StatusExpired {
		title = "Expired: "
	}
	return s.post(ctx, discordPayload{Embeds: []discordEmbed{{
		Title:     title + ev.Strategy,
		Color:     color,
		Fields:    fields,
		Timestamp: timestamp(ev.Time),
	}}})
}

func (s *DiscordSink) post(ctx context.Context, payload discordPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshalling webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("posting webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook returned %s: %s", resp.Status, bytes.TrimSpace(msg))
	}
	return nil
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
