package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"renewal-service/internal/apperr"
	"renewal-service/internal/logging"
	"renewal-service/internal/payments"
)

type scriptedReader struct {
	mu        sync.Mutex
	steps     []func() (kafkago.Message, error)
	committed []int64
}

func (r *scriptedReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	r.mu.Lock()
	if len(r.steps) == 0 {
		r.mu.Unlock()
		return kafkago.Message{}, io.EOF
	}
	step := r.steps[0]
	r.steps = r.steps[1:]
	r.mu.Unlock()
	return step()
}

func (r *scriptedReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *scriptedReader) Close() error { return nil }

type recordingHandler struct {
	mu       sync.Mutex
	payloads []string
	// failures is how many more times a payload fails with a datastore error.
	failures map[string]int
	// onFailure runs after each datastore failure.
	onFailure func()
}

func (h *recordingHandler) Handle(_ context.Context, payload []byte) (payments.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p := string(payload)
	h.payloads = append(h.payloads, p)
	if p == "bad" {
		return "", &apperr.ValidationError{Field: "body", Reason: "not a JSON object"}
	}
	if h.failures[p] > 0 {
		h.failures[p]--
		if h.onFailure != nil {
			h.onFailure()
		}
		return "", &apperr.PersistenceError{Op: "update subscription status", Err: errors.New("connection refused")}
	}
	return payments.OutcomePaid, nil
}

func message(offset int64, v string) func() (kafkago.Message, error) {
	return func() (kafkago.Message, error) { return kafkago.Message{Offset: offset, Value: []byte(v)}, nil }
}

func newTestConsumer(r reader, h EventHandler) *Consumer {
	l, _ := test.NewNullLogger()
	c := newConsumer(r, h, logging.Wrap(l))
	c.backoff = time.Millisecond
	return c
}

func TestConsumerCommitsAfterHandling(t *testing.T) {
	r := &scriptedReader{steps: []func() (kafkago.Message, error){
		message(1, `{"id":"evt_1"}`),
		func() (kafkago.Message, error) { return kafkago.Message{}, errors.New("broker unavailable") },
		message(2, "bad"),
		message(3, `{"id":"evt_2"}`),
	}}
	h := &recordingHandler{failures: map[string]int{`{"id":"evt_2"}`: 2}}
	c := newTestConsumer(r, h)

	var wg sync.WaitGroup
	c.Start(context.Background(), &wg)
	wg.Wait()

	assert.Equal(t, []string{`{"id":"evt_1"}`, "bad", `{"id":"evt_2"}`, `{"id":"evt_2"}`, `{"id":"evt_2"}`}, h.payloads)
	assert.Equal(t, []int64{1, 2, 3}, r.committed)
}

func TestConsumerLeavesFailedEventUncommitted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := &scriptedReader{steps: []func() (kafkago.Message, error){
		message(7, `{"id":"evt_7"}`),
		message(8, `{"id":"evt_8"}`),
	}}
	attempts := 0
	h := &recordingHandler{failures: map[string]int{`{"id":"evt_7"}`: 100}}
	h.onFailure = func() {
		attempts++
		if attempts == 3 {
			cancel()
		}
	}
	c := newTestConsumer(r, h)

	var wg sync.WaitGroup
	c.Start(ctx, &wg)
	wg.Wait()

	assert.Equal(t, 3, attempts)
	assert.Empty(t, r.committed)
	assert.NotContains(t, h.payloads, `{"id":"evt_8"}`)
}

func TestConsumerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	r := &scriptedReader{steps: []func() (kafkago.Message, error){
		func() (kafkago.Message, error) {
			cancel()
			return kafkago.Message{}, context.Canceled
		},
		message(1, `{"id":"never"}`),
	}}
	h := &recordingHandler{}
	c := newTestConsumer(r, h)

	var wg sync.WaitGroup
	c.Start(ctx, &wg)
	wg.Wait()

	assert.Empty(t, h.payloads)
	require.NoError(t, c.Close())
}
