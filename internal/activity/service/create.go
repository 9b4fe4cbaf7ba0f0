package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"fieldops/internal/activity/addendum"
	"fieldops/internal/activity/commit"
	"fieldops/internal/activity/invariant"
	"fieldops/internal/activity/models"
	"fieldops/internal/activity/normalize"
	"fieldops/internal/activity/validate"
	"fieldops/internal/identity"
	"fieldops/internal/office"
	"fieldops/internal/template"
	dErrors "fieldops/pkg/domain-errors"
	"fieldops/pkg/platform/sentinel"
	"fieldops/pkg/requestcontext"
)

// Create runs the full pipeline for a new activity and returns its id.
func (e *Engine) Create(ctx context.Context, req *models.CreateRequest, auth identity.Auth) (activityID string, err error) {
	ctx, finish := e.start(ctx, "Create")
	defer func() { finish(err) }()

	if auth.PhoneNumber == "" {
		return "", dErrors.New(dErrors.CodeUnauthorized, "caller identity is missing")
	}

	if req.IdempotencyKey != "" && e.idem != nil {
		existing, rerr := e.idem.Reserve(ctx, req.IdempotencyKey)
		if errors.Is(rerr, sentinel.ErrConflict) {
			if existing != "" {
				return existing, nil
			}
			return "", dErrors.New(dErrors.CodeConflict,
				"a create with this idempotency key is already in flight")
		}
		if rerr != nil {
			return "", dErrors.Wrap(rerr, dErrors.CodeStore, "idempotency reservation failed")
		}
		defer func() {
			if err != nil {
				if relErr := e.idem.Release(context.WithoutCancel(ctx), req.IdempotencyKey); relErr != nil {
					e.logger.WarnContext(ctx, "idempotency release failed",
						"key", req.IdempotencyKey, "error", relErr)
				}
			}
		}()
	}

	tmpl, err := e.catalog.Lookup(ctx, req.Template)
	if err != nil {
		return "", err
	}
	now := serverTime(ctx)
	isOffice := tmpl.Name == template.NameOffice

	var (
		off     *office.Office
		include []string
	)
	if !isOffice {
		off, err = e.offices.RequireActive(ctx, req.Office)
		if err != nil {
			return "", err
		}
		inc, subscribed, serr := e.subscriptionInclude(ctx, off.ID, tmpl.Name, auth.PhoneNumber)
		if serr != nil {
			return "", serr
		}
		if tmpl.Hidden && !subscribed && !auth.IsSupportRequest {
			return "", dErrors.Newf(dErrors.CodeUnauthorized,
				"no subscription for template %q in this office", tmpl.Name)
		}
		include = inc
	}

	draft, err := normalize.Activity(req, tmpl, normalize.Strict)
	if err != nil {
		return "", err
	}
	phones, err := validate.Attachment(draft.Attachment, tmpl)
	if err != nil {
		return "", err
	}

	draft.ID = uuid.NewString()
	draft.Creator = models.Identity{
		PhoneNumber: auth.PhoneNumber,
		UID:         auth.UID,
		DisplayName: auth.DisplayName,
	}
	draft.Timestamp = now
	if !draft.Status.Valid() {
		draft.Status = models.StatusPending
	}
	draft.MergeAssignees(auth.PhoneNumber)
	draft.MergeAssignees(phones...)
	draft.MergeAssignees(include...)

	if isOffice {
		// An office activity is its own office: the projection written in
		// the same batch is derived from the draft itself.
		proj := commit.OfficeProjection(draft)
		off = &proj
		draft.OfficeID = draft.ID
		draft.Office = proj.Name
	} else {
		draft.OfficeID = off.ID
		draft.Office = off.Name
	}

	loc := off.Location()
	draft.Recompute(loc)

	if tmpl.CheckLimit != nil {
		unlock := e.quotaLocks.lock(quotaKey(auth.PhoneNumber, tmpl, now))
		defer unlock()
	}

	err = e.checker.Check(ctx, invariant.Input{
		Draft:    draft,
		Template: tmpl,
		Office:   off,
		Actor:    auth.PhoneNumber,
		Geopoint: req.Geopoint,
		Provider: req.Provider,
		Now:      now,
	})
	if err != nil {
		return "", err
	}

	add := addendum.Emit(addendum.Params{
		Snapshot:        *draft,
		Action:          models.ActionCreate,
		Actor:           draft.Creator,
		Location:        req.Geopoint,
		Device:          requestcontext.DeviceInfo(ctx),
		DeviceTimestamp: req.Timestamp,
		ServerTime:      now,
		OfficeLocation:  loc,
	})
	draft.LatestAddendumID = add.ID
	add.Snapshot = *draft

	var checkinState *invariant.CheckinState
	if tmpl.Report == template.ReportCheckin && req.Geopoint != nil && req.Geopoint.Valid() {
		checkinState = &invariant.CheckinState{
			Geopoint:  *req.Geopoint,
			Timestamp: now,
			Provider:  req.Provider,
		}
	}

	writes, err := commit.Build(commit.Plan{
		Activity:     draft,
		Addendum:     add,
		Template:     tmpl,
		Office:       off,
		Include:      include,
		IsCreate:     true,
		CheckinState: checkinState,
	})
	if err != nil {
		return "", err
	}
	if err = e.commitBatch(ctx, writes, models.ActionCreate); err != nil {
		return "", err
	}

	if req.IdempotencyKey != "" && e.idem != nil {
		if bindErr := e.idem.Bind(ctx, req.IdempotencyKey, draft.ID); bindErr != nil {
			e.logger.WarnContext(ctx, "idempotency bind failed",
				"key", req.IdempotencyKey, "error", bindErr)
		}
	}

	e.publish(ctx, add)
	return draft.ID, nil
}
