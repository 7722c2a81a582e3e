package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"renewal-service/internal/apperr"
	"renewal-service/internal/logging"
	"renewal-service/internal/metrics"
	"renewal-service/internal/models"
	"renewal-service/internal/notification"
	"renewal-service/internal/renewal"
)

type SubscriberSource interface {
	ListSubscribers(ctx context.Context) ([]models.Subscriber, error)
}

type Ledger interface {
	ShouldSend(ctx context.Context, subscriberID string, now time.Time) (bool, error)
	Record(ctx context.Context, sub models.Subscriber, daysRemaining int, tier models.Tier, sentAt time.Time) (models.NotificationRecord, error)
}

type Dispatcher interface {
	ValidAddress(addr string) bool
	Send(ctx context.Context, r notification.Reminder) (notification.Result, error)
}

// Publisher receives every recorded reminder, e.g. to push it to connected owners.
type Publisher interface {
	Publish(sub models.Subscriber, rec models.NotificationRecord)
}

// Reporter receives the report of each completed run.
type Reporter interface {
	Report(ctx context.Context, report models.RunReport) error
}

// DefaultReportTimeout bounds how long a run waits on each reporter.
const DefaultReportTimeout = 10 * time.Second

type Option func(*Orchestrator)

// WithWorkers bounds how many subscribers are processed at once.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithReporter(r Reporter) Option {
	return func(o *Orchestrator) { o.reporters = append(o.reporters, r) }
}

// WithReportTimeout bounds each reporter call.
func WithReportTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.reportTimeout = d
		}
	}
}

// WithClock sets the clock used to time runs.
func WithClock(c renewal.Clock) Option {
	return func(o *Orchestrator) { o.clock = c }
}

// Orchestrator runs one pass over every subscriber. Deployments must not run two passes at once.
type Orchestrator struct {
	source     SubscriberSource
	ledger     Ledger
	dispatcher Dispatcher
	logger     *logging.Logger
	clock      renewal.Clock
	workers    int
	publisher  Publisher
	reporters  []Reporter

	reportTimeout time.Duration
}

func New(source SubscriberSource, ledger Ledger, dispatcher Dispatcher, logger *logging.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:     source,
		ledger:     ledger,
		dispatcher: dispatcher,
		logger:     logger,
		clock:      renewal.SystemClock{},
		workers:    1,

		reportTimeout: DefaultReportTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeSent
	outcomeSkipped
	outcomeError
)

// Run classifies every subscriber at now and sends the reminders that are due.
// Per-subscriber failures are counted; only failing to load subscribers fails the run.
func (o *Orchestrator) Run(ctx context.Context, now time.Time) (models.RunReport, error) {
	started := o.clock.Now()
	report := models.RunReport{StartedAt: started, Processed: []models.ProcessedSubscriber{}}

	subscribers, err := o.source.ListSubscribers(ctx)
	if err != nil {
		metrics.SweepRunsTotal.WithLabelValues("failed").Inc()
		return report, fmt.Errorf("failed to load subscribers: %w", err)
	}
	report.TotalEvaluated = len(subscribers)

	outcomes := make([]outcome, len(subscribers))
	var g errgroup.Group
	g.SetLimit(o.workers)
	for i, sub := range subscribers {
		g.Go(func() error {
			outcomes[i] = o.process(ctx, sub, now)
			return nil
		})
	}
	_ = g.Wait()

	for i, res := range outcomes {
		switch res {
		case outcomeSent:
			report.Sent++
			s := subscribers[i]
			report.Processed = append(report.Processed, models.ProcessedSubscriber{ID: s.ID, Name: s.Name, Email: s.Email})
		case outcomeSkipped:
			report.Skipped++
		case outcomeError:
			report.Errors++
		}
	}
	report.FinishedAt = o.clock.Now()

	metrics.SweepRunsTotal.WithLabelValues("completed").Inc()
	metrics.SweepDuration.Observe(report.FinishedAt.Sub(started).Seconds())
	o.logger.WithFields(logrus.Fields{
		"total":   report.TotalEvaluated,
		"sent":    report.Sent,
		"skipped": report.Skipped,
		"errors":  report.Errors,
	}).Info("Subscription sweep finished")

	for _, r := range o.reporters {
		o.report(ctx, r, report)
	}
	return report, nil
}

func (o *Orchestrator) report(ctx context.Context, r Reporter, report models.RunReport) {
	ctx, cancel := context.WithTimeout(ctx, o.reportTimeout)
	defer cancel()
	if err := r.Report(ctx, report); err != nil {
		o.logger.Errorf("Failed to publish sweep report: %v", err)
	}
}

// process handles one subscriber. Nothing here may abort the batch.
func (o *Orchestrator) process(ctx context.Context, sub models.Subscriber, now time.Time) outcome {
	if sub.AnchorDate.IsZero() {
		o.logger.WithField("cliente_id", sub.ID).Warn("Subscriber has no subscription date, skipping")
		return o.count(outcomeSkipped, tierUnknown)
	}
	status := renewal.Classify(sub.AnchorDate, now)
	if status.Tier == models.TierNormal {
		return outcomeNone
	}
	log := o.logger.WithFields(logrus.Fields{"cliente_id": sub.ID, "tier": status.Tier, "dias_restantes": status.DaysRemaining})

	due, err := o.ledger.ShouldSend(ctx, sub.ID, now)
	if err != nil {
		log.Errorf("Ledger lookup failed: %v", err)
		return o.count(outcomeError, status.Tier)
	}
	if !due {
		log.Debug("Reminder already sent inside cooldown")
		return o.count(outcomeNone, status.Tier)
	}

	if !o.dispatcher.ValidAddress(sub.Email) {
		log.Warn("Subscriber has no deliverable email, skipping")
		return o.count(outcomeSkipped, status.Tier)
	}

	res, _, err := o.deliver(ctx, sub, status, now)
	if err != nil {
		log.Errorf("Reminder failed: %v", err)
		return o.count(outcomeError, status.Tier)
	}
	log.WithField("channel", res.Channel).Info("Reminder sent")
	return o.count(outcomeSent, status.Tier)
}

// deliver sends the reminder for status, appends it to the ledger and publishes it.
func (o *Orchestrator) deliver(ctx context.Context, sub models.Subscriber, status renewal.Status, now time.Time) (notification.Result, models.NotificationRecord, error) {
	res, err := o.dispatcher.Send(ctx, notification.Reminder{
		Recipient:      sub.Email,
		Name:           sub.Name,
		Status:         status,
		AnchorDate:     sub.AnchorDate,
		ExpirationDate: renewal.ExpirationDate(sub.AnchorDate),
	})
	if err != nil {
		return res, models.NotificationRecord{}, fmt.Errorf("delivery: %w", err)
	}

	rec, err := o.ledger.Record(ctx, sub, status.DaysRemaining, status.Tier, now)
	if err != nil {
		return res, rec, fmt.Errorf("sent via %s but ledger write failed: %w", res.Channel, err)
	}

	if o.publisher != nil {
		o.publisher.Publish(sub, rec)
	}
	return res, rec, nil
}

// Manual is the result of reminding one subscriber on request.
type Manual struct {
	Status  renewal.Status             `json:"status"`
	Sent    bool                       `json:"sent"`
	Reason  string                     `json:"reason,omitempty"`
	Channel *notification.Result       `json:"channel,omitempty"`
	Record  *models.NotificationRecord `json:"record,omitempty"`
}

// Remind applies the same rules as a run to a single subscriber. Reason is "not_due" for a
// subscriber in the normal tier and "cooldown" when a reminder went out recently.
func (o *Orchestrator) Remind(ctx context.Context, sub models.Subscriber, now time.Time) (Manual, error) {
	if sub.AnchorDate.IsZero() {
		return Manual{}, errNoAnchor
	}
	status := renewal.Classify(sub.AnchorDate, now)
	m := Manual{Status: status}
	if status.Tier == models.TierNormal {
		m.Reason = "not_due"
		return m, nil
	}

	due, err := o.ledger.ShouldSend(ctx, sub.ID, now)
	if err != nil {
		return m, err
	}
	if !due {
		m.Reason = "cooldown"
		return m, nil
	}
	if !o.dispatcher.ValidAddress(sub.Email) {
		return m, &apperr.ValidationError{Field: "email", Reason: "subscriber has no deliverable email"}
	}

	res, rec, err := o.deliver(ctx, sub, status, now)
	if err != nil {
		return m, err
	}
	o.count(outcomeSent, status.Tier)
	m.Sent = true
	m.Channel = &res
	m.Record = &rec
	return m, nil
}

// tierUnknown labels subscribers that cannot be classified.
const tierUnknown models.Tier = "UNKNOWN"

var errNoAnchor = &apperr.ValidationError{Field: "fecha_suscripcion", Reason: "subscriber has no subscription date"}

var outcomeLabels = map[outcome]string{
	outcomeNone:    "cooldown",
	outcomeSent:    "sent",
	outcomeSkipped: "skipped",
	outcomeError:   "error",
}

func (o *Orchestrator) count(res outcome, tier models.Tier) outcome {
	metrics.RemindersTotal.WithLabelValues(outcomeLabels[res], string(tier)).Inc()
	return res
}
