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

const defaultSendGridURL = "https://api.sendgrid.com"

// EmailMessage is a rendered email ready to send
type EmailMessage struct {
	To      string
	Subject string
	HTML    string
}

// EmailSender delivers rendered emails
type EmailSender interface {
	SendEmail(ctx context.Context, msg EmailMessage) error
}

// SendGridConfig holds SendGrid settings. An empty APIKey switches the
// sender to log-only mode.
type SendGridConfig struct {
	APIKey        string
	BaseURL       string
	FromEmail     string
	FromName      string
	Timeout       time.Duration
	RatePerSecond float64
	Burst         int
}

// SendGrid sends email through the SendGrid v3 mail API
type SendGrid struct {
	config  SendGridConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewSendGrid creates a SendGrid sender
func NewSendGrid(config SendGridConfig, logger *slog.Logger) *SendGrid {
	if config.BaseURL == "" {
		config.BaseURL = defaultSendGridURL
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &SendGrid{
		config:  config,
		client:  &http.Client{Timeout: config.Timeout},
		limiter: newLimiter(config.RatePerSecond, config.Burst),
		logger:  logger,
	}
}

type sendGridAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type sendGridPersonalization struct {
	To []sendGridAddress `json:"to"`
}

type sendGridContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type sendGridRequest struct {
	Personalizations []sendGridPersonalization `json:"personalizations"`
	From             sendGridAddress           `json:"from"`
	Subject          string                    `json:"subject"`
	Content          []sendGridContent         `json:"content"`
}

// SendEmail posts msg to SendGrid. 200 and 202 are success.
func (s *SendGrid) SendEmail(ctx context.Context, msg EmailMessage) error {
	if s.config.APIKey == "" {
		s.logger.Warn("SendGrid API key not configured, email logged only",
			slog.String("to", msg.To),
			slog.String("subject", msg.Subject),
		)
		return nil
	}

	body := sendGridRequest{
		Personalizations: []sendGridPersonalization{{To: []sendGridAddress{{Email: msg.To}}}},
		From:             sendGridAddress{Email: s.config.FromEmail, Name: s.config.FromName},
		Subject:          msg.Subject,
		Content:          []sendGridContent{{Type: "text/html", Value: msg.HTML}},
	}

	url := strings.TrimRight(s.config.BaseURL, "/") + "/v3/mail/send"
	headers := map[string]string{"Authorization": "Bearer " + s.config.APIKey}

	if err := postJSON(ctx, s.client, s.limiter, url, headers, body, http.StatusOK, http.StatusAccepted); err != nil {
		s.logger.Error("Failed to send email",
			slog.String("to", msg.To),
			slog.Any("error", err),
		)
		return fmt.Errorf("sendgrid: %w", err)
	}

	s.logger.Info("Email sent",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
