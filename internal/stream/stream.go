// Package stream fans committed addenda out to the per-user update topic.
// Publishing is strictly post-commit and best-effort: the mutation already
// happened, so a broker failure is logged and counted, never surfaced to
// the caller.
package stream

import (
	"context"

	"fieldops/internal/activity/models"
)

// Publisher delivers one addendum to the downstream sync stream.
type Publisher interface {
	Publish(ctx context.Context, add models.Addendum) error
	Close()
}

// Noop discards addenda. Dev mode and unit tests.
type Noop struct{}

func (Noop) Publish(context.Context, models.Addendum) error { return nil }
func (Noop) Close()                                         {}
