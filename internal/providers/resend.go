package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/resend/resend-go/v2"
	"golang.org/x/time/rate"

	"renewal-service/internal/apperr"
)

// Email is one rendered message ready for a delivery channel.
type Email struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// emailSender is the part of the Resend client used here.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// ResendMailer delivers email through the Resend HTTP API.
type ResendMailer struct {
	emails  emailSender
	limiter *rate.Limiter
}

// NewResendMailer builds the primary channel. With an empty apiKey every Send reports a
// ConfigurationError instead of calling the provider.
func NewResendMailer(apiKey string, ratePerSecond int, timeout time.Duration) *ResendMailer {
	if ratePerSecond < 1 {
		ratePerSecond = 1
	}
	m := &ResendMailer{limiter: rate.NewLimiter(rate.Limit(float64(ratePerSecond)), ratePerSecond)}
	if apiKey != "" {
		client := resend.NewCustomClient(&http.Client{Timeout: timeout}, apiKey)
		m.emails = client.Emails
	}
	return m
}

func (m *ResendMailer) Name() string { return "resend" }

func (m *ResendMailer) Send(ctx context.Context, e Email) (string, error) {
	if m.emails == nil {
		return "", &apperr.ConfigurationError{Setting: "RESEND_API_KEY"}
	}
	if err := m.limiter.Wait(ctx); err != nil {
		return "", &apperr.DeliveryError{Provider: m.Name(), Err: fmt.Errorf("rate limit wait: %w", err)}
	}

	sent, err := m.emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    e.From,
		To:      []string{e.To},
		Subject: e.Subject,
		Html:    e.HTML,
	})
	if err != nil {
		return "", &apperr.DeliveryError{Provider: m.Name(), Err: err}
	}
	return sent.Id, nil
}
