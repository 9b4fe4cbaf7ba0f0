// Package service orchestrates the activity transaction pipeline:
// normalize -> validate -> invariant check -> commit build -> audit emit ->
// atomic write. Each operation is an independent, stateless unit of work;
// the atomic write is the only synchronization point.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"fieldops/internal/activity/commit"
	"fieldops/internal/activity/invariant"
	"fieldops/internal/activity/models"
	"fieldops/internal/docstore"
	"fieldops/internal/idempotency"
	"fieldops/internal/office"
	"fieldops/internal/platform/metrics"
	"fieldops/internal/template"
	dErrors "fieldops/pkg/domain-errors"
	"fieldops/pkg/platform/sentinel"
	"fieldops/pkg/requestcontext"
)

// Catalog is the template lookup the engine depends on.
type Catalog interface {
	Lookup(ctx context.Context, name string) (*template.Template, error)
}

// Engine implements the four mutation operations.
type Engine struct {
	store   docstore.Store
	catalog Catalog
	offices *office.Loader
	checker *invariant.Checker

	idem    idempotency.Store
	addenda chan<- models.Addendum
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	// quotaLocks serializes quota-checked creates per (phone, template,
	// period) so two concurrent submissions cannot both pass the
	// read-then-write quota validation within this process.
	quotaLocks keyedMutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithIdempotency enables retry-safe creates.
func WithIdempotency(store idempotency.Store) Option {
	return func(e *Engine) { e.idem = store }
}

// WithAddendumStream enqueues committed addenda for fan-out.
func WithAddendumStream(ch chan<- models.Addendum) Option {
	return func(e *Engine) { e.addenda = ch }
}

// WithMetrics wires the prometheus counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New builds an Engine.
func New(store docstore.Store, catalog Catalog, offices *office.Loader, checker *invariant.Checker, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("docstore is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("template catalog is required")
	}
	if offices == nil {
		return nil, fmt.Errorf("office loader is required")
	}
	if checker == nil {
		return nil, fmt.Errorf("invariant checker is required")
	}
	e := &Engine{
		store:   store,
		catalog: catalog,
		offices: offices,
		checker: checker,
		logger:  slog.Default(),
		tracer:  otel.Tracer("fieldops/activity"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// start opens a span and returns a finish func that records the outcome
// metrics. Call as: ctx, finish := e.start(ctx, "Create", tmplName); defer finish(err).
func (e *Engine) start(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := e.tracer.Start(ctx, "engine."+op)
	return ctx, func(err error) {
		if err != nil {
			span.SetAttributes(attribute.String("error.code", string(dErrors.CodeOf(err))))
			if e.metrics != nil {
				e.metrics.MutationsRejected.WithLabelValues(string(dErrors.CodeOf(err))).Inc()
			}
		}
		span.End()
	}
}

// commitBatch runs the atomic write, translating store facts into domain
// errors and observing latency.
func (e *Engine) commitBatch(ctx context.Context, writes []docstore.Write, action models.Action) error {
	started := time.Now()
	err := e.store.AtomicWrite(ctx, writes)
	if e.metrics != nil {
		e.metrics.ObserveCommit(time.Since(started))
	}
	if err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.Wrap(err, dErrors.CodeConflict, "a record with that name already exists")
		}
		return dErrors.Wrap(err, dErrors.CodeStore, "atomic write failed")
	}
	if e.metrics != nil {
		e.metrics.ActivitiesCommitted.WithLabelValues(string(action)).Inc()
	}
	return nil
}

// publish hands the committed addendum to the fan-out worker. Non-blocking:
// the addendum is durable in the docstore, so a full buffer only costs the
// streamed copy.
func (e *Engine) publish(ctx context.Context, add models.Addendum) {
	if e.addenda == nil {
		return
	}
	select {
	case e.addenda <- add:
	default:
		e.logger.WarnContext(ctx, "addendum stream buffer full, dropping",
			"addendum_id", add.ID,
			"activity_id", add.ActivityID,
		)
		if e.metrics != nil {
			e.metrics.StreamPublishErrors.Inc()
		}
	}
}

// loadActivity fetches and decodes one activity.
func (e *Engine) loadActivity(ctx context.Context, id string) (*models.Activity, error) {
	if id == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "activityId is required")
	}
	doc, err := e.store.Get(ctx, docstore.CollectionActivities, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "activity %q not found", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "activity lookup failed")
	}
	var act models.Activity
	if err := doc.Decode(&act); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "activity document malformed")
	}
	return &act, nil
}

// subscriptionInclude returns the include list of the caller's subscription
// for the template within the office, and whether one exists.
func (e *Engine) subscriptionInclude(ctx context.Context, officeID, tmplName, phone string) ([]string, bool, error) {
	doc, err := e.store.Get(ctx, docstore.CollectionSubscriptionIndex,
		commit.SubscriptionDocID(officeID, tmplName, phone))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeStore, "subscription lookup failed")
	}
	var idx commit.SubscriptionIndex
	if err := doc.Decode(&idx); err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "subscription index malformed")
	}
	return idx.Include, true, nil
}

// authorizeEdit enforces the per-assignee canEdit derived at fan-out time.
// Support requests bypass it.
func (e *Engine) authorizeEdit(ctx context.Context, act *models.Activity, phone string, support bool) error {
	if support {
		return nil
	}
	doc, err := e.store.Get(ctx, docstore.CollectionAssignees, models.AssigneeDocID(act.ID, phone))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Newf(dErrors.CodeUnauthorized,
				"%s is not an assignee of this activity", phone)
		}
		return dErrors.Wrap(err, dErrors.CodeStore, "assignee lookup failed")
	}
	var assignee models.Assignee
	if err := doc.Decode(&assignee); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "assignee document malformed")
	}
	if !assignee.CanEdit {
		return dErrors.New(dErrors.CodeUnauthorized, "you may not edit this activity")
	}
	return nil
}

// serverTime pins one wall-clock reading per request.
func serverTime(ctx context.Context) time.Time {
	return requestcontext.Now(ctx)
}

// keyedMutex serializes work per string key. Entries are refcounted and
// evicted once the last holder releases, so period-scoped quota keys do not
// pile up over the process lifetime.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sync.Mutex
	refs int
}

// lock acquires the key's mutex and returns its unlock func.
func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// quotaKey scopes the serialization to the quota resource: the actor, the
// template, and the period the limit covers.
func quotaKey(phone string, tmpl *template.Template, now time.Time) string {
	period := now.Format("2006")
	if tmpl.CheckLimit.Kind == template.LimitKindClaim {
		period = now.Format("2006-01")
	}
	return phone + "|" + tmpl.Name + "|" + period
}
