package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"aidtrack/pkg/requestcontext"
)

// Store is what the worker needs from an outbox implementation.
type Store interface {
	FetchUnpublished(ctx context.Context, limit int) ([]Entry, error)
	MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

// Publisher delivers one entry. Implementations must be safe to call again for
// an entry that was already delivered; consumers dedupe on Entry.ID.
type Publisher interface {
	Publish(ctx context.Context, e Entry) error
}

// Worker polls the outbox and publishes pending entries in creation order.
type Worker struct {
	store     Store
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
	metrics   *Metrics
}

type WorkerOption func(*Worker)

func WithInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.interval = d
		}
	}
}

func WithBatchSize(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func WithLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) { w.logger = logger }
}

func WithMetrics(m *Metrics) WorkerOption {
	return func(w *Worker) { w.metrics = m }
}

func NewWorker(store Store, publisher Publisher, opts ...WorkerOption) *Worker {
	w := &Worker{
		store:     store,
		publisher: publisher,
		interval:  2 * time.Second,
		batchSize: 100,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run processes batches until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		if _, err := w.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "outbox batch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// ProcessBatch publishes one batch and returns how many entries were published.
// Publishing stops at the first failure so later entries for the same aggregate
// are not delivered ahead of it.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	ctx = requestcontext.WithTime(ctx, time.Now())
	entries, err := w.store.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	published := make([]uuid.UUID, 0, len(entries))
	var publishErr error
	for _, e := range entries {
		if err := w.publisher.Publish(ctx, e); err != nil {
			publishErr = err
			w.metrics.failed()
			w.logger.WarnContext(ctx, "outbox publish failed",
				"outbox_id", e.ID,
				"event_type", e.EventType,
				"attempts", e.Attempts+1,
				"error", err,
			)
			if markErr := w.store.MarkFailed(ctx, e.ID, err.Error()); markErr != nil {
				w.logger.ErrorContext(ctx, "record outbox failure", "outbox_id", e.ID, "error", markErr)
			}
			break
		}
		published = append(published, e.ID)
	}

	if err := w.store.MarkPublished(ctx, published, requestcontext.Now(ctx)); err != nil {
		return 0, err
	}
	w.metrics.published(len(published))
	return len(published), publishErr
}
