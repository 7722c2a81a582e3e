package sweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renewal-service/internal/apperr"
	"renewal-service/internal/ledger"
	"renewal-service/internal/logging"
	"renewal-service/internal/models"
	"renewal-service/internal/notification"
	"renewal-service/internal/providers"
	"renewal-service/internal/renewal"
)

var now = time.Date(2025, time.June, 15, 9, 0, 0, 0, time.UTC)

func anchorDaysAgo(days int) time.Time {
	return time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -days)
}

type staticSource struct {
	subs []models.Subscriber
	err  error
}

func (s staticSource) ListSubscribers(context.Context) ([]models.Subscriber, error) {
	return s.subs, s.err
}

type ledgerStore struct {
	mu       sync.Mutex
	records  []models.NotificationRecord
	readErr  map[string]error
	writeErr error
}

func (l *ledgerStore) LatestNotificationAt(_ context.Context, id string) (*time.Time, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.readErr[id]; err != nil {
		return nil, err
	}
	var latest *time.Time
	for _, r := range l.records {
		if r.SubscriberID == id && (latest == nil || r.SentAt.After(*latest)) {
			at := r.SentAt
			latest = &at
		}
	}
	return latest, nil
}

func (l *ledgerStore) InsertNotification(_ context.Context, rec models.NotificationRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.writeErr != nil {
		return l.writeErr
	}
	l.records = append(l.records, rec)
	return nil
}

type recordingMailer struct {
	mu      sync.Mutex
	sent    []providers.Email
	failFor map[string]bool
}

func (m *recordingMailer) Name() string { return "resend" }

func (m *recordingMailer) Send(_ context.Context, e providers.Email) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[e.To] {
		return "", &apperr.DeliveryError{Provider: "resend", Err: errors.New("502 bad gateway")}
	}
	m.sent = append(m.sent, e)
	return "re_1", nil
}

type recordingPublisher struct {
	mu   sync.Mutex
	recs []models.NotificationRecord
}

func (p *recordingPublisher) Publish(_ models.Subscriber, rec models.NotificationRecord) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recs = append(p.recs, rec)
}

type recordingReporter struct {
	reports []models.RunReport
	err     error
}

func (r *recordingReporter) Report(_ context.Context, report models.RunReport) error {
	r.reports = append(r.reports, report)
	return r.err
}

type harness struct {
	store     *ledgerStore
	mailer    *recordingMailer
	publisher *recordingPublisher
	reporter  *recordingReporter
	logger    *logging.Logger
}

func newHarness() *harness {
	l, _ := test.NewNullLogger()
	return &harness{
		store:     &ledgerStore{readErr: map[string]error{}},
		mailer:    &recordingMailer{failFor: map[string]bool{}},
		publisher: &recordingPublisher{},
		reporter:  &recordingReporter{},
		logger:    logging.Wrap(l),
	}
}

func (h *harness) orchestrator(src SubscriberSource, opts ...Option) *Orchestrator {
	dispatcher := notification.NewDispatcher(h.mailer, providers.NewLogMailer(h.logger), notification.Options{From: "notificaciones@victoriacrm.com"}, h.logger)
	opts = append([]Option{
		WithPublisher(h.publisher),
		WithReporter(h.reporter),
		WithClock(renewal.ClockFunc(func() time.Time { return now })),
	}, opts...)
	return New(src, ledger.New(h.store, 0), dispatcher, h.logger, opts...)
}

func TestRunSkipsSubscriberWithoutAddress(t *testing.T) {
	h := newHarness()
	src := staticSource{subs: []models.Subscriber{
		{ID: "c1", Name: "Ana", Email: "ana@example.com", AnchorDate: anchorDaysAgo(370), OwnerID: "u1"},
		{ID: "c2", Name: "Luis", Email: "", AnchorDate: anchorDaysAgo(362), OwnerID: "u1"},
		{ID: "c3", Name: "Eva", Email: "eva@example.com", AnchorDate: anchorDaysAgo(360), OwnerID: "u2"},
	}}

	report, err := h.orchestrator(src).Run(context.Background(), now)
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalEvaluated)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, 0, report.Errors)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, []models.ProcessedSubscriber{
		{ID: "c1", Name: "Ana", Email: "ana@example.com"},
		{ID: "c3", Name: "Eva", Email: "eva@example.com"},
	}, report.Processed)

	require.Len(t, h.store.records, 2)
	assert.Equal(t, models.TierExpired, h.store.records[0].Tier)
	assert.Equal(t, 0, h.store.records[0].DaysRemaining)
	assert.Equal(t, models.TierWarning, h.store.records[1].Tier)
	assert.Equal(t, 5, h.store.records[1].DaysRemaining)
	assert.Len(t, h.publisher.recs, 2)
	require.Len(t, h.reporter.reports, 1)
	assert.Equal(t, report, h.reporter.reports[0])
}

func TestRunLeavesNormalTierAlone(t *testing.T) {
	h := newHarness()
	src := staticSource{subs: []models.Subscriber{
		{ID: "c1", Name: "Ana", Email: "ana@example.com", AnchorDate: anchorDaysAgo(30)},
		{ID: "c2", Name: "Luis", Email: "luis@example.com", AnchorDate: anchorDaysAgo(357)},
	}}

	report, err := h.orchestrator(src).Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalEvaluated)
	assert.Equal(t, 0, report.Sent)
	assert.Empty(t, h.mailer.sent)
	assert.Empty(t, report.Processed)
}

func TestRunRespectsCooldown(t *testing.T) {
	h := newHarness()
	src := staticSource{subs: []models.Subscriber{
		{ID: "c1", Name: "Ana", Email: "ana@example.com", AnchorDate: anchorDaysAgo(362)},
	}}
	o := h.orchestrator(src)

	report, err := o.Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)

	report, err = o.Run(context.Background(), now.Add(23*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)
	assert.Equal(t, 0, report.Errors)

	report, err = o.Run(context.Background(), now.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Len(t, h.mailer.sent, 2)
}

func TestRunIsolatesPerSubscriberFailures(t *testing.T) {
	h := newHarness()
	h.store.readErr["c1"] = errors.New("ledger unavailable")
	h.mailer.failFor["luis@example.com"] = true
	src := staticSource{subs: []models.Subscriber{
		{ID: "c1", Name: "Ana", Email: "ana@example.com", AnchorDate: anchorDaysAgo(364)},
		{ID: "c2", Name: "Luis", Email: "luis@example.com", AnchorDate: anchorDaysAgo(364)},
		{ID: "c3", Name: "Eva", Email: "eva@example.com", AnchorDate: anchorDaysAgo(364)},
	}}

	report, err := h.orchestrator(src).Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 2, report.Errors)
	assert.Equal(t, []models.ProcessedSubscriber{{ID: "c3", Name: "Eva", Email: "eva@example.com"}}, report.Processed)
	require.Len(t, h.store.records, 1)
	assert.Equal(t, "c3", h.store.records[0].SubscriberID)
}

func TestRunCountsLedgerWriteFailure(t *testing.T) {
	h := newHarness()
	h.store.writeErr = errors.New("read-only transaction")
	src := staticSource{subs: []models.Subscriber{
		{ID: "c1", Name: "Ana", Email: "ana@example.com", AnchorDate: anchorDaysAgo(364)},
	}}

	report, err := h.orchestrator(src).Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Sent)
	assert.Equal(t, 1, report.Errors)
	assert.Empty(t, h.publisher.recs)
}

func TestRunFailsWhenSubscribersCannotLoad(t *testing.T) {
	h := newHarness()
	_, err := h.orchestrator(staticSource{err: errors.New("timeout")}).Run(context.Background(), now)
	assert.Error(t, err)
	assert.Empty(t, h.reporter.reports)
}

func TestRunReporterFailureDoesNotFailRun(t *testing.T) {
	h := newHarness()
	h.reporter.err = errors.New("telegram down")
	report, err := h.orchestrator(staticSource{}).Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalEvaluated)
	assert.NotNil(t, report.Processed)
}

func TestRunWithWorkersKeepsLoadOrder(t *testing.T) {
	h := newHarness()
	var subs []models.Subscriber
	for i := 0; i < 20; i++ {
		subs = append(subs, models.Subscriber{
			ID:         string(rune('a' + i)),
			Name:       "Cliente",
			Email:      "cliente@example.com",
			AnchorDate: anchorDaysAgo(360 + i%3),
		})
	}

	report, err := h.orchestrator(staticSource{subs: subs}, WithWorkers(4)).Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 20, report.Sent)
	require.Len(t, report.Processed, 20)
	for i, p := range report.Processed {
		assert.Equal(t, subs[i].ID, p.ID)
	}
}

func TestRemindSendsOnceThenHonorsCooldown(t *testing.T) {
	h := newHarness()
	sub := models.Subscriber{ID: "c1", Name: "Ana", Email: "ana@example.com", AnchorDate: anchorDaysAgo(363), OwnerID: "u1"}
	o := h.orchestrator(staticSource{})

	m, err := o.Remind(context.Background(), sub, now)
	require.NoError(t, err)
	assert.True(t, m.Sent)
	assert.Equal(t, 2, m.Status.DaysRemaining)
	require.NotNil(t, m.Channel)
	assert.Equal(t, "resend", m.Channel.Channel)
	require.NotNil(t, m.Record)
	assert.Equal(t, now, m.Record.SentAt)
	assert.Len(t, h.publisher.recs, 1)

	m, err = o.Remind(context.Background(), sub, now.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, m.Sent)
	assert.Equal(t, "cooldown", m.Reason)
	assert.Len(t, h.mailer.sent, 1)
}

func TestRemindNormalTierAndMissingAddress(t *testing.T) {
	h := newHarness()
	o := h.orchestrator(staticSource{})

	m, err := o.Remind(context.Background(), models.Subscriber{ID: "c1", Email: "ana@example.com", AnchorDate: anchorDaysAgo(10)}, now)
	require.NoError(t, err)
	assert.False(t, m.Sent)
	assert.Equal(t, "not_due", m.Reason)

	_, err = o.Remind(context.Background(), models.Subscriber{ID: "c2", AnchorDate: anchorDaysAgo(364)}, now)
	assert.True(t, apperr.IsValidation(err))
	assert.Empty(t, h.mailer.sent)
}

func TestRunCountsSubscriberWithoutAnchorAsSkipped(t *testing.T) {
	h := newHarness()
	src := staticSource{subs: []models.Subscriber{
		{ID: "c1", Name: "Ana", Email: "ana@example.com", AnchorDate: anchorDaysAgo(364)},
		{ID: "c2", Name: "Luis", Email: "luis@example.com"},
	}}

	report, err := h.orchestrator(src).Run(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalEvaluated)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Errors)
	require.Len(t, h.mailer.sent, 1)
	assert.Equal(t, "ana@example.com", h.mailer.sent[0].To)

	_, err = h.orchestrator(src).Remind(context.Background(), src.subs[1], now)
	assert.True(t, apperr.IsValidation(err))
}

type blockingReporter struct {
	err error
}

func (r *blockingReporter) Report(ctx context.Context, _ models.RunReport) error {
	<-ctx.Done()
	r.err = ctx.Err()
	return r.err
}

func TestRunBoundsSlowReporter(t *testing.T) {
	h := newHarness()
	slow := &blockingReporter{}
	o := h.orchestrator(staticSource{}, WithReporter(slow), WithReportTimeout(20*time.Millisecond))

	done := make(chan error, 1)
	go func() {
		_, err := o.Run(context.Background(), now)
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.ErrorIs(t, slow.err, context.DeadlineExceeded)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return while a reporter was stuck")
	}
}
