package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"renewal-service/internal/apperr"
	"renewal-service/internal/logging"
	"renewal-service/internal/payments"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
}

// EventHandler applies one payment event payload.
type EventHandler interface {
	Handle(ctx context.Context, payload []byte) (payments.Outcome, error)
}

type reader interface {
	FetchMessage(ctx context.Context) (kafkago.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

const maxBackoff = 30 * time.Second

// Consumer feeds payment events published on a topic through the same reconciliation path as the webhook.
// An offset is committed only once its event was applied or rejected as unusable.
type Consumer struct {
	reader  reader
	handler EventHandler
	logger  *logging.Logger
	backoff time.Duration
}

func NewConsumer(cfg Config, handler EventHandler, logger *logging.Logger) *Consumer {
	r := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(r, handler, logger)
}

func newConsumer(r reader, handler EventHandler, logger *logging.Logger) *Consumer {
	return &Consumer{reader: r, handler: handler, logger: logger, backoff: time.Second}
}

// Start reads until ctx is cancelled or the reader is closed.
func (c *Consumer) Start(ctx context.Context, wg *sync.WaitGroup) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.logger.Info("Kafka consumer started")
		for {
			msg, err := c.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
					c.logger.Info("Kafka consumer stopped")
					return
				}
				c.logger.Errorf("Fetch message failed: %v", err)
				if !c.wait(ctx, c.backoff) {
					return
				}
				continue
			}

			if !c.handle(ctx, msg) {
				c.logger.Info("Kafka consumer stopped")
				return
			}
			if err := c.reader.CommitMessages(ctx, msg); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Errorf("Commit of offset %d failed: %v", msg.Offset, err)
			}
		}
	}()
}

// handle applies msg until it succeeds or is rejected as unusable. It reports false when ctx
// ends first, leaving the offset uncommitted.
func (c *Consumer) handle(ctx context.Context, msg kafkago.Message) bool {
	backoff := c.backoff
	for attempt := 1; ; attempt++ {
		outcome, err := c.handler.Handle(ctx, msg.Value)
		if err == nil {
			c.logger.Infof("Processed payment event at offset %d: %s", msg.Offset, outcome)
			return true
		}
		if apperr.IsValidation(err) {
			c.logger.Errorf("Dropping unusable payment event at offset %d: %v", msg.Offset, err)
			return true
		}

		c.logger.Errorf("Payment event at offset %d failed (attempt %d), retrying in %v: %v", msg.Offset, attempt, backoff, err)
		if !c.wait(ctx, backoff) {
			return false
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Consumer) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
