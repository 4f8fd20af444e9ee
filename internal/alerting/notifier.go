package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gridwatcher/internal/storage"
)

// Notifier delivers fault alerts to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alert storage.Alert) error
}

// TelegramNotifier pushes alert messages through the Telegram Bot API.
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier constructs a Telegram notifier.
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

// Notify sends one alert via the sendMessage API.
func (n *TelegramNotifier) Notify(ctx context.Context, alert storage.Alert) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(alert),
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
		return fmt.Errorf("telegram returned status %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram returned ok=false")
		}
	}

	n.logger.Info().
		Str("subsystem", alert.Subsystem).
		Str("severity", alert.Severity).
		Msg("alert dispatched")
	return nil
}

func renderMessage(alert storage.Alert) string {
	builder := strings.Builder{}
	builder.WriteString("[gridwatcher fault alert]\n")
	builder.WriteString(fmt.Sprintf("Time: %s UTC\n", alert.Timestamp.UTC().Format(time.RFC3339)))
	builder.WriteString(fmt.Sprintf("Subsystem: %s\n", alert.Subsystem))
	builder.WriteString(fmt.Sprintf("Severity: %s\n", alert.Severity))
	builder.WriteString(alert.Message)
	return builder.String()
}

var _ Notifier = (*TelegramNotifier)(nil)
