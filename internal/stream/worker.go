package stream

import (
	"context"
	"log/slog"

	"fieldops/internal/activity/models"
)

// Worker drains committed addenda from a channel and publishes them. It
// keeps fan-out off the request path; the engine only blocks when the
// buffer is full.
type Worker struct {
	publisher Publisher
	inbox     <-chan models.Addendum
	logger    *slog.Logger
	onError   func()
}

// NewWorker builds a Worker. onError (optional) fires per failed publish.
func NewWorker(publisher Publisher, inbox <-chan models.Addendum, logger *slog.Logger, onError func()) *Worker {
	return &Worker{publisher: publisher, inbox: inbox, logger: logger, onError: onError}
}

// Run consumes until the context ends. Publish failures are logged and
// counted; the addendum is already durable in the docstore, so dropping the
// stream copy is recoverable by replay.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case add := <-w.inbox:
			if err := w.publisher.Publish(ctx, add); err != nil {
				w.logger.ErrorContext(ctx, "addendum publish failed",
					"addendum_id", add.ID,
					"activity_id", add.ActivityID,
					"error", err,
				)
				if w.onError != nil {
					w.onError()
				}
			}
		}
	}
}
