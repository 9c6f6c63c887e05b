package notify

import (
	"time"

	"binance-futures-bot-go/internal/config"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Notifier is the outbound alert sink. Delivery is best-effort: failures are
// logged and swallowed, never propagated into the trading loop.
type Notifier interface {
	Notify(text string)
}

// TelegramNotifier sends Markdown messages to a Telegram chat.
type TelegramNotifier struct {
	client *resty.Client
	chatID string
	logger *zap.Logger
}

var _ Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier creates a notifier for the configured bot token and
// chat. Returns a no-op notifier when the token is empty so callers never
// have to nil-check.
func NewTelegramNotifier(cfg *config.Telegram, logger *zap.Logger) Notifier {
	if cfg.Token == "" {
		logger.Info("Telegram token not set, notifications disabled")
		return NopNotifier{}
	}

	client := resty.New().
		SetBaseURL("https://api.telegram.org/bot" + cfg.Token).
		SetTimeout(10 * time.Second)

	return &TelegramNotifier{
		client: client,
		chatID: cfg.ChatID,
		logger: logger.Named("telegram"),
	}
}

// Notify posts the message to the chat. Errors are logged and dropped.
func (n *TelegramNotifier) Notify(text string) {
	resp, err := n.client.R().
		SetFormData(map[string]string{
			"chat_id":    n.chatID,
			"text":       text,
			"parse_mode": "Markdown",
		}).
		Post("/sendMessage")
	if err != nil {
		n.logger.Warn("Failed to send notification", zap.Error(err))
		return
	}
	if resp.IsError() {
		n.logger.Warn("Telegram rejected notification",
			zap.Int("status", resp.StatusCode()),
			zap.String("body", resp.String()))
	}
}

// NopNotifier discards all messages. Used when notifications are disabled and
// in tests.
type NopNotifier struct{}

func (NopNotifier) Notify(string) {}
