package notification

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"renewal-service/internal/apperr"
	"renewal-service/internal/logging"
	"renewal-service/internal/models"
	"renewal-service/internal/providers"
	"renewal-service/internal/renewal"
)

// Mailer is a delivery channel.
type Mailer interface {
	Name() string
	Send(ctx context.Context, email providers.Email) (string, error)
}

// Reminder is everything needed to render and address one renewal reminder.
type Reminder struct {
	Recipient      string
	Name           string
	Status         renewal.Status
	AnchorDate     time.Time
	ExpirationDate time.Time
}

// Result describes a successful send.
type Result struct {
	Channel   string `json:"channel"`
	MessageID string `json:"message_id"`
	Fallback  bool   `json:"fallback"`
}

type Options struct {
	From         string
	RenewURL     string
	SupportEmail string
	Timeout      time.Duration
}

// Dispatcher sends reminders through a primary channel and falls back to a
// secondary one only when the primary is not configured.
type Dispatcher struct {
	primary  Mailer
	fallback Mailer
	opts     Options
	validate *validator.Validate
	logger   *logging.Logger
}

func NewDispatcher(primary, fallback Mailer, opts Options, logger *logging.Logger) *Dispatcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Dispatcher{
		primary:  primary,
		fallback: fallback,
		opts:     opts,
		validate: validator.New(),
		logger:   logger,
	}
}

// ValidAddress reports whether addr can be delivered to.
func (d *Dispatcher) ValidAddress(addr string) bool {
	return addr != "" && d.validate.Var(addr, "required,email") == nil
}

func (d *Dispatcher) Send(ctx context.Context, r Reminder) (Result, error) {
	if !d.ValidAddress(r.Recipient) {
		return Result{}, &apperr.ValidationError{Field: "recipient", Reason: "not a deliverable email address"}
	}

	subject, html, err := providers.RenderReminder(providers.ReminderData{
		Name:         r.Name,
		Message:      r.Status.Message,
		Expired:      r.Status.Tier == models.TierExpired,
		SubscribedOn: renewal.LongDate(r.AnchorDate),
		ExpiresOn:    renewal.LongDate(r.ExpirationDate),
		RenewURL:     d.opts.RenewURL,
		SupportEmail: d.opts.SupportEmail,
		Year:         r.ExpirationDate.Year(),
	})
	if err != nil {
		return Result{}, err
	}
	email := providers.Email{From: d.opts.From, To: r.Recipient, Subject: subject, HTML: html}

	sendCtx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	id, err := d.primary.Send(sendCtx, email)
	if err == nil {
		return Result{Channel: d.primary.Name(), MessageID: id}, nil
	}

	var cerr *apperr.ConfigurationError
	if !errors.As(err, &cerr) {
		return Result{}, err
	}

	d.logger.WithFields(logrus.Fields{
		"channel": d.fallback.Name(),
		"setting": cerr.Setting,
	}).Warn("Primary delivery channel not configured, using fallback")

	id, err = d.fallback.Send(sendCtx, email)
	if err != nil {
		return Result{}, err
	}
	return Result{Channel: d.fallback.Name(), MessageID: id, Fallback: true}, nil
}
