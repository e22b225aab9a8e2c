// Package worker relays audit outbox rows to the message broker. Rows are
// published at least once, in creation order per batch, and acknowledged only
// after the broker accepted them.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
)

// Record is one outbox row awaiting publication.
type Record struct {
	ID        uuid.UUID
	Key       string
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// Outbox is the durable source of records.
type Outbox interface {
	FetchUnpublished(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID) error
}

// Publisher sends one message to topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Worker polls the outbox and publishes to topic.
type Worker struct {
	outbox    Outbox
	publisher Publisher
	topic     string
	batchSize int
	interval  time.Duration
	logger    *slog.Logger
}

type Option func(*Worker)

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func NewWorker(outbox Outbox, publisher Publisher, topic string, opts ...Option) *Worker {
	w := &Worker{
		outbox:    outbox,
		publisher: publisher,
		topic:     topic,
		batchSize: defaultBatchSize,
		interval:  defaultPollInterval,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.RelayOnce(ctx); err != nil && ctx.Err() == nil {
			w.logger.WarnContext(ctx, "audit outbox relay failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayOnce publishes one batch and returns how many rows were acknowledged.
// Publishing stops at the first failure so later rows are not acknowledged
// ahead of earlier ones.
func (w *Worker) RelayOnce(ctx context.Context) (int, error) {
	records, err := w.outbox.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	published := make([]uuid.UUID, 0, len(records))
	var publishErr error
	for _, r := range records {
		if err := w.publisher.Publish(ctx, w.topic, r.Key, r.Payload); err != nil {
			publishErr = err
			break
		}
		published = append(published, r.ID)
	}
	if err := w.outbox.MarkPublished(ctx, published); err != nil {
		return 0, err
	}
	return len(published), publishErr
}
