package providers

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"renewal-service/internal/logging"
)

// LogMailer records what would have been sent. It never fails.
type LogMailer struct {
	logger *logging.Logger
}

func NewLogMailer(logger *logging.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Name() string { return "log" }

func (m *LogMailer) Send(_ context.Context, e Email) (string, error) {
	id := "log-" + uuid.NewString()
	m.logger.WithFields(logrus.Fields{
		"message_id": id,
		"from":       e.From,
		"to":         e.To,
		"subject":    e.Subject,
		"html_bytes": len(e.HTML),
	}).Info("Email would have been sent")
	return id, nil
}
