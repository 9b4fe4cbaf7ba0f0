package service

import (
	"context"
	"time"

	"fieldops/internal/activity/addendum"
	"fieldops/internal/activity/commit"
	"fieldops/internal/activity/invariant"
	"fieldops/internal/activity/models"
	"fieldops/internal/activity/normalize"
	"fieldops/internal/activity/validate"
	"fieldops/internal/geo"
	"fieldops/internal/identity"
	"fieldops/internal/office"
	"fieldops/internal/template"
	dErrors "fieldops/pkg/domain-errors"
	"fieldops/pkg/requestcontext"
)

// mutationContext is the shared preamble of every mutation on an existing
// activity: the record, its template, its active office, and the governing
// subscription's include list.
type mutationContext struct {
	act     *models.Activity
	tmpl    *template.Template
	off     *office.Office
	include []string
}

func (e *Engine) prepareMutation(ctx context.Context, activityID string, auth identity.Auth) (*mutationContext, error) {
	act, err := e.loadActivity(ctx, activityID)
	if err != nil {
		return nil, err
	}
	tmpl, err := e.catalog.Lookup(ctx, act.Template)
	if err != nil {
		return nil, err
	}
	off, err := e.offices.RequireActive(ctx, act.OfficeID)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeEdit(ctx, act, auth.PhoneNumber, auth.IsSupportRequest); err != nil {
		return nil, err
	}
	include, _, err := e.subscriptionInclude(ctx, off.ID, tmpl.Name, act.Creator.PhoneNumber)
	if err != nil {
		return nil, err
	}
	return &mutationContext{act: act, tmpl: tmpl, off: off, include: include}, nil
}

// commitMutation emits the addendum, assembles the batch, and writes it.
func (e *Engine) commitMutation(ctx context.Context, mc *mutationContext, action models.Action, actor identity.Auth, location *geo.Point, deviceTS *time.Time, unshare []string) error {
	now := serverTime(ctx)
	add := addendum.Emit(addendum.Params{
		Snapshot: *mc.act,
		Action:   action,
		Actor: models.Identity{
			PhoneNumber: actor.PhoneNumber,
			UID:         actor.UID,
			DisplayName: actor.DisplayName,
		},
		Location:        location,
		Device:          requestcontext.DeviceInfo(ctx),
		DeviceTimestamp: deviceTS,
		ServerTime:      now,
		OfficeLocation:  mc.off.Location(),
	})
	mc.act.LatestAddendumID = add.ID
	add.Snapshot = *mc.act

	writes, err := commit.Build(commit.Plan{
		Activity: mc.act,
		Addendum: add,
		Template: mc.tmpl,
		Office:   mc.off,
		Include:  mc.include,
		Unshare:  unshare,
	})
	if err != nil {
		return err
	}
	if err := e.commitBatch(ctx, writes, action); err != nil {
		return err
	}
	e.publish(ctx, add)
	return nil
}

// Update patches an existing activity through lenient normalization:
// invalid entries for a slot become placeholders for that slot only.
func (e *Engine) Update(ctx context.Context, req *models.UpdateRequest, auth identity.Auth) (err error) {
	ctx, finish := e.start(ctx, "Update")
	defer func() { finish(err) }()

	if auth.PhoneNumber == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is missing")
	}
	mc, err := e.prepareMutation(ctx, req.ActivityID, auth)
	if err != nil {
		return err
	}
	if mc.act.Status == models.StatusCancelled {
		return dErrors.New(dErrors.CodeConflict, "activity is cancelled")
	}

	if req.Schedule != nil {
		schedule, nerr := normalize.Schedule(req.Schedule, mc.tmpl, normalize.Lenient)
		if nerr != nil {
			return nerr
		}
		mc.act.Schedule = schedule
	}
	if req.Venue != nil {
		venue, nerr := normalize.Venue(req.Venue, mc.tmpl, normalize.Lenient)
		if nerr != nil {
			return nerr
		}
		mc.act.Venue = venue
	}
	if req.Attachment != nil {
		decoded, nerr := normalize.Attachment(req.Attachment, mc.tmpl, normalize.Lenient)
		if nerr != nil {
			return nerr
		}
		// Patch semantics: only fields the caller sent change.
		for name := range req.Attachment {
			if value, ok := decoded[name]; ok {
				mc.act.Attachment[name] = value
			}
		}
	}

	phones, err := validate.Attachment(mc.act.Attachment, mc.tmpl)
	if err != nil {
		return err
	}
	mc.act.MergeAssignees(phones...)
	mc.act.Recompute(mc.off.Location())

	now := serverTime(ctx)
	if mc.tmpl.CheckLimit != nil {
		unlock := e.quotaLocks.lock(quotaKey(mc.act.Creator.PhoneNumber, mc.tmpl, now))
		defer unlock()
	}
	err = e.checker.Check(ctx, invariant.Input{
		Draft:     mc.act,
		Template:  mc.tmpl,
		Office:    mc.off,
		Actor:     mc.act.Creator.PhoneNumber,
		Geopoint:  req.Geopoint,
		Now:       now,
		ExcludeID: mc.act.ID,
	})
	if err != nil {
		return err
	}

	return e.commitMutation(ctx, mc, models.ActionUpdate, auth, req.Geopoint, req.Timestamp, nil)
}
