package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultMSG91URL = "https://api.msg91.com"

// SMSMessage is a rendered SMS ready to send
type SMSMessage struct {
	Mobile string
	Text   string
	// Vars are passed through to the provider template
	Vars map[string]string
}

// SMSSender delivers rendered text messages
type SMSSender interface {
	SendSMS(ctx context.Context, msg SMSMessage) error
}

// MSG91Config holds MSG91 settings. An empty AuthKey switches the sender to
// log-only mode.
type MSG91Config struct {
	AuthKey       string
	BaseURL       string
	SenderID      string
	FlowID        string
	CountryPrefix string // stripped from numbers before sending, e.g. "+91"
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// MSG91 sends SMS through the MSG91 flow API
type MSG91 struct {
	config  MSG91Config
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewMSG91 creates an MSG91 sender
func NewMSG91(config MSG91Config, logger *slog.Logger) *MSG91 {
	if config.BaseURL == "" {
		config.BaseURL = defaultMSG91URL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &MSG91{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: newLimiter(config.RatePerSecond, config.Burst),
		logger:  logger,
	}
}

// SendSMS posts msg to the flow endpoint. Only 200 is success.
func (m *MSG91) SendSMS(ctx context.Context, msg SMSMessage) error {
	if m.config.AuthKey == "" {
		m.logger.Warn("MSG91 auth key not configured, SMS logged only",
			slog.String("mobile", msg.Mobile),
			slog.String("text", msg.Text),
		)
		return nil
	}

	body := make(map[string]string, len(msg.Vars)+4)
	for k, v := range msg.Vars {
		body[k] = v
	}
	body["flow_id"] = m.config.FlowID
	body["sender"] = m.config.SenderID
	body["mobiles"] = strings.TrimPrefix(msg.Mobile, m.config.CountryPrefix)
	body["VAR1"] = msg.Text

	url := strings.TrimRight(m.config.BaseURL, "/") + "/api/v5/flow/"
	headers := map[string]string{"authkey": m.config.AuthKey}

	if err := postJSON(ctx, m.client, m.limiter, url, headers, body, http.StatusOK); err != nil {
		m.logger.Error("Failed to send SMS",
			slog.String("mobile", msg.Mobile),
			slog.Any("error", err),
		)
		return fmt.Errorf("msg91: %w", err)
	}

	m.logger.Info("SMS sent",
		slog.String("mobile", msg.Mobile),
	)
	return nil
}
