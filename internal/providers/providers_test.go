package providers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"renewal-service/internal/apperr"
	"renewal-service/internal/logging"
	"renewal-service/internal/models"
)

type fakeSender struct {
	got *resend.SendEmailRequest
	err error
}

func (f *fakeSender) SendWithContext(_ context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error) {
	f.got = params
	if f.err != nil {
		return nil, f.err
	}
	return &resend.SendEmailResponse{Id: "re_123"}, nil
}

func TestResendMailerWithoutKeyIsConfigurationError(t *testing.T) {
	m := NewResendMailer("", 2, time.Second)
	_, err := m.Send(context.Background(), Email{To: "ana@example.com"})

	var cerr *apperr.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "RESEND_API_KEY", cerr.Setting)
}

func TestResendMailerSends(t *testing.T) {
	sender := &fakeSender{}
	m := &ResendMailer{emails: sender, limiter: rate.NewLimiter(rate.Inf, 1)}

	id, err := m.Send(context.Background(), Email{
		From: "notificaciones@victoriacrm.com", To: "ana@example.com", Subject: "hola", HTML: "<p>hola</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_123", id)
	assert.Equal(t, []string{"ana@example.com"}, sender.got.To)
	assert.Equal(t, "<p>hola</p>", sender.got.Html)
}

func TestResendMailerRejectionIsDeliveryError(t *testing.T) {
	m := &ResendMailer{emails: &fakeSender{err: errors.New("422 validation_error")}, limiter: rate.NewLimiter(rate.Inf, 1)}

	_, err := m.Send(context.Background(), Email{To: "ana@example.com"})
	var derr *apperr.DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "resend", derr.Provider)
	assert.False(t, apperr.IsConfiguration(err))
}

func TestLogMailerAlwaysSucceeds(t *testing.T) {
	l, hook := test.NewNullLogger()
	m := NewLogMailer(logging.Wrap(l))

	id, err := m.Send(context.Background(), Email{To: "ana@example.com", Subject: "⚠️ Tu suscripción vence en 3 días"})
	require.NoError(t, err)
	assert.Contains(t, id, "log-")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "ana@example.com", hook.LastEntry().Data["to"])
}

func TestRenderReminder(t *testing.T) {
	tests := []struct {
		name      string
		data      ReminderData
		subject   string
		paragraph string
	}{
		{"upcoming", ReminderData{Name: "Ana", Message: "Tu suscripción vence en 1 día"}, "⚠️ Tu suscripción vence en 1 día", "está próxima a vencer"},
		{"expired", ReminderData{Name: "Ana", Message: "Tu suscripción ha vencido", Expired: true}, "⚠️ Tu suscripción ha vencido", "ha vencido."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subject, html, err := RenderReminder(tt.data)
			require.NoError(t, err)
			assert.Equal(t, tt.subject, subject)
			assert.Contains(t, html, "Hola Ana,")
			assert.Contains(t, html, "<strong>"+tt.data.Message+"</strong>")
			assert.Contains(t, html, tt.paragraph)
		})
	}
}

func TestRenderReminderEscapesName(t *testing.T) {
	_, html, err := RenderReminder(ReminderData{Name: "<script>x</script>", Message: "Tu suscripción vence en 2 días"})
	require.NoError(t, err)
	assert.NotContains(t, html, "<script>x</script>")
}

func TestFormatRunReport(t *testing.T) {
	start := time.Date(2025, time.June, 15, 8, 0, 0, 0, time.UTC)
	text := FormatRunReport(models.RunReport{
		TotalEvaluated: 10, Sent: 3, Errors: 1, Skipped: 2,
		StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond),
	})
	assert.Contains(t, text, "*Notificaciones enviadas:* 3")
	assert.Contains(t, text, "*Errores:* 1")
	assert.Contains(t, text, "1.5s")
}
