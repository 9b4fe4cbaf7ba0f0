// Package invariant enforces cross-record business rules before a draft may
// commit: date conflicts, leave and claim quotas, the check-in anti-fraud
// heuristic, and venue geocoding. Each check is independent and idempotent
// against its own query result, so they fan out concurrently and join before
// the commit builder runs.
package invariant

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"fieldops/internal/activity/models"
	"fieldops/internal/docstore"
	"fieldops/internal/geo"
	"fieldops/internal/office"
	"fieldops/internal/template"
)

// Checker issues the parallel read queries backing every invariant.
type Checker struct {
	store    docstore.Store
	geocoder geo.Geocoder
	logger   *slog.Logger

	// onFraud fires when the anti-fraud heuristic rejects a check-in,
	// after the offense aggregate upsert. Metrics hook.
	onFraud func()
}

// Option configures a Checker.
type Option func(*Checker)

// WithGeocoder enables venue geocoding.
func WithGeocoder(g geo.Geocoder) Option {
	return func(c *Checker) { c.geocoder = g }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) { c.logger = logger }
}

// WithFraudHook registers a callback for anti-fraud rejections.
func WithFraudHook(fn func()) Option {
	return func(c *Checker) { c.onFraud = fn }
}

// New builds a Checker over the given store.
func New(store docstore.Store, opts ...Option) *Checker {
	c := &Checker{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Input carries everything the checks read. Draft may be mutated by the
// geocoding check (resolved venue geopoints).
type Input struct {
	Draft    *models.Activity
	Template *template.Template
	Office   *office.Office
	// Actor is the requester's phone number; quota and conflict scans are
	// scoped to it.
	Actor string
	// Geopoint and Provider describe the action fix for check-ins.
	Geopoint *geo.Point
	Provider string
	Now      time.Time
	// ExcludeID drops the activity being updated from conflict and quota
	// scans so it does not count against itself.
	ExcludeID string
}

// Check runs every check applicable to the draft's template concurrently
// and returns the first failure. Order between checks is irrelevant.
func (c *Checker) Check(ctx context.Context, in Input) error {
	g, gctx := errgroup.WithContext(ctx)

	if in.Template.DateConflict {
		g.Go(func() error { return c.dateConflict(gctx, in) })
	}
	if limit := in.Template.CheckLimit; limit != nil {
		switch limit.Kind {
		case template.LimitKindLeave:
			g.Go(func() error { return c.leaveQuota(gctx, in, limit) })
		case template.LimitKindClaim:
			g.Go(func() error { return c.claimQuota(gctx, in, limit) })
		}
	}
	if in.Template.Report == template.ReportCheckin {
		g.Go(func() error { return c.checkin(gctx, in) })
	}
	if c.geocoder != nil {
		g.Go(func() error { return c.geocodeVenues(gctx, in) })
	}

	return g.Wait()
}

// activeActivities fetches the requester's non-cancelled activities of the
// same template and office. Callers narrow further in code; one employee's
// records for one template are small.
func (c *Checker) activeActivities(ctx context.Context, in Input) ([]models.Activity, error) {
	docs, err := c.store.Query(ctx, docstore.CollectionActivities, []docstore.Filter{
		docstore.Where("template", docstore.OpEq, in.Template.Name),
		docstore.Where("officeId", docstore.OpEq, in.Draft.OfficeID),
		docstore.Where("creator.phoneNumber", docstore.OpEq, in.Actor),
		docstore.Where("status", docstore.OpIn, []string{
			string(models.StatusPending), string(models.StatusConfirmed),
		}),
	}, 0)
	if err != nil {
		return nil, err
	}
	out := make([]models.Activity, 0, len(docs))
	for _, doc := range docs {
		var act models.Activity
		if err := doc.Decode(&act); err != nil {
			return nil, err
		}
		if act.ID == in.ExcludeID {
			continue
		}
		out = append(out, act)
	}
	return out, nil
}
