package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/time/rate"

	"renewal-service/internal/logging"
	"renewal-service/internal/models"
	"renewal-service/internal/utils"
)

// TelegramReporter posts a summary of each sweep to an operations chat.
type TelegramReporter struct {
	token   string
	chatID  int64
	limiter *rate.Limiter
	logger  *logging.Logger
}

func NewTelegramReporter(token string, chatID int64, logger *logging.Logger) *TelegramReporter {
	return &TelegramReporter{
		token:   token,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		logger:  logger,
	}
}

func (r *TelegramReporter) Report(ctx context.Context, report models.RunReport) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("telegram rate limit exceeded: %w", err)
	}
	text := FormatRunReport(report)

	return utils.Retry(ctx, r.logger, 3, time.Second, func() error {
		b, err := bot.New(r.token)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram bot: %w", err)
		}
		params := &bot.SendMessageParams{
			ChatID:    r.chatID,
			Text:      text,
			ParseMode: "Markdown",
		}
		if _, err := b.SendMessage(ctx, params); err != nil {
			return fmt.Errorf("failed to send Telegram message to chat_id %d: %w", r.chatID, err)
		}
		return nil
	})
}

// FormatRunReport renders a sweep report as a Markdown chat message.
func FormatRunReport(report models.RunReport) string {
	return fmt.Sprintf(
		"*Revisión de suscripciones*\n"+
			"*Clientes evaluados:* %d\n"+
			"*Notificaciones enviadas:* %d\n"+
			"*Omitidos:* %d\n"+
			"*Errores:* %d\n"+
			"*Duración:* %s",
		report.TotalEvaluated,
		report.Sent,
		report.Skipped,
		report.Errors,
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond),
	)
}
