// Package notify contains the email and SMS queue consumers. Jobs are
// rendered from per-kind templates and handed to an external provider.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/cuongbtq/cashback-jobs/internal/queue"
	"github.com/cuongbtq/cashback-jobs/internal/worker"
	"github.com/cuongbtq/cashback-jobs/internal/worker/domain"
)

// Dispatcher renders notification jobs and sends them through providers
type Dispatcher struct {
	email  EmailSender
	sms    SMSSender
	brand  string
	logger *slog.Logger
}

// NewDispatcher creates a Dispatcher
func NewDispatcher(email EmailSender, sms SMSSender, brand string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{email: email, sms: sms, brand: brand, logger: logger}
}

// Register adds a handler for every templated kind to the email and sms queues
func (d *Dispatcher) Register(r *worker.Router) {
	for _, kind := range EmailKinds() {
		r.Handle(domain.QueueEmail, kind, worker.HandlerFunc(d.HandleEmail))
	}
	for _, kind := range SMSKinds() {
		r.Handle(domain.QueueSMS, kind, worker.HandlerFunc(d.HandleSMS))
	}
}

// HandleEmail renders and sends one email job
func (d *Dispatcher) HandleEmail(ctx context.Context, env *queue.Envelope) domain.Result {
	if !strings.Contains(env.Target, "@") {
		return domain.Fatal(fmt.Errorf("%w: invalid email address %q", domain.ErrInvalidPayload, env.Target))
	}

	subject, html, err := renderEmail(env.Type, d.templateData(env))
	if err != nil {
		return domain.Fatal(fmt.Errorf("%w: render %s email: %v", domain.ErrInvalidPayload, env.Type, err))
	}

	d.logger.Info("Processing email",
		slog.String("job_id", env.ID),
		slog.String("kind", string(env.Type)),
		slog.String("to", env.Target),
	)

	err = d.email.SendEmail(ctx, EmailMessage{To: env.Target, Subject: subject, HTML: html})
	return domain.ResultFromError(err)
}

// HandleSMS renders and sends one SMS job
func (d *Dispatcher) HandleSMS(ctx context.Context, env *queue.Envelope) domain.Result {
	if strings.TrimSpace(env.Target) == "" {
		return domain.Fatal(fmt.Errorf("%w: missing mobile number", domain.ErrInvalidPayload))
	}

	data := d.templateData(env)
	text, err := renderSMS(env.Type, data)
	if err != nil {
		return domain.Fatal(fmt.Errorf("%w: render %s sms: %v", domain.ErrInvalidPayload, env.Type, err))
	}

	d.logger.Info("Processing SMS",
		slog.String("job_id", env.ID),
		slog.String("kind", string(env.Type)),
		slog.String("mobile", env.Target),
	)

	vars := make(map[string]string, len(env.Data))
	for k, v := range env.Data {
		vars[k] = fmt.Sprint(v)
	}

	err = d.sms.SendSMS(ctx, SMSMessage{Mobile: env.Target, Text: text, Vars: vars})
	return domain.ResultFromError(err)
}

// templateData is the job data plus the brand name
func (d *Dispatcher) templateData(env *queue.Envelope) map[string]interface{} {
	data := make(map[string]interface{}, len(env.Data)+1)
	for k, v := range env.Data {
		data[k] = v
	}
	if _, ok := data["brand"]; !ok {
		data["brand"] = d.brand
	}
	return data
}
