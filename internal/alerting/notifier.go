package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Alert carries operator-facing failure context.
type Alert struct {
	Kind    string
	Subject string
	Detail  string
	At      time.Time
}

// Notifier delivers operator alerts and user-facing notifications.
type Notifier interface {
	Notify(ctx context.Context, alert Alert) error
	NotifyUser(ctx context.Context, telegramID int64, text string) error
}

// TelegramNotifier pushes messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier. chatID is the
// operator channel for Notify; NotifyUser addresses individual users.
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify posts an operator alert to the configured channel.
func (n *TelegramNotifier) Notify(ctx context.Context, alert Alert) error {
	if err := n.sendMessage(ctx, n.chatID, renderAlert(alert)); err != nil {
		return err
	}
	n.logger.Info().Str("kind", alert.Kind).Str("subject", alert.Subject).Msg("operator alert sent")
	return nil
}

// NotifyUser sends a plain text message to one user.
func (n *TelegramNotifier) NotifyUser(ctx context.Context, telegramID int64, text string) error {
	if err := n.sendMessage(ctx, strconv.FormatInt(telegramID, 10), text); err != nil {
		return err
	}
	n.logger.Info().Int64("telegram_id", telegramID).Msg("user notification sent")
	return nil
}

func (n *TelegramNotifier) sendMessage(ctx context.Context, chatID, text string) error {
	payload := map[string]string{
		"chat_id": chatID,
		"text":    text,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram unexpected status: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}
	return nil
}

func renderAlert(alert Alert) string {
	builder := strings.Builder{}
	builder.WriteString("[skindrop alert]\n")
	builder.WriteString(fmt.Sprintf("Kind: %s\n", alert.Kind))
	builder.WriteString(fmt.Sprintf("Subject: %s\n", alert.Subject))
	if !alert.At.IsZero() {
		builder.WriteString(fmt.Sprintf("At: %s UTC\n", alert.At.UTC().Format(time.RFC3339)))
	}
	if alert.Detail != "" {
		builder.WriteString(alert.Detail)
	}
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
