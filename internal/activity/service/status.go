package service

import (
	"context"

	"fieldops/internal/activity/invariant"
	"fieldops/internal/activity/models"
	"fieldops/internal/identity"
	dErrors "fieldops/pkg/domain-errors"
)

// canTransition encodes the status machine: a pending activity may confirm
// or cancel, a confirmed one may only cancel. Cancellation is handled by the
// caller as its own terminal case.
func canTransition(from, to models.Status) bool {
	switch from {
	case models.StatusPending:
		return to == models.StatusConfirmed || to == models.StatusCancelled
	case models.StatusConfirmed:
		return to == models.StatusCancelled
	}
	return false
}

// ChangeStatus moves an activity between lifecycle states. CANCELLED is
// terminal; confirming re-runs the invariant checks because the record may
// have sat pending while quotas and calendars moved on.
func (e *Engine) ChangeStatus(ctx context.Context, req *models.ChangeStatusRequest, auth identity.Auth) (err error) {
	ctx, finish := e.start(ctx, "ChangeStatus")
	defer func() { finish(err) }()

	if auth.PhoneNumber == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is missing")
	}
	if !req.NewStatus.Valid() {
		return dErrors.Newf(dErrors.CodeValidation, "unknown status %q", req.NewStatus)
	}
	mc, err := e.prepareMutation(ctx, req.ActivityID, auth)
	if err != nil {
		return err
	}
	if mc.act.Status == req.NewStatus {
		return dErrors.Newf(dErrors.CodeConflict, "activity is already %s", req.NewStatus)
	}
	if mc.act.Status == models.StatusCancelled {
		return dErrors.New(dErrors.CodeConflict, "activity is cancelled")
	}
	if !canTransition(mc.act.Status, req.NewStatus) {
		return dErrors.Newf(dErrors.CodeConflict,
			"a %s activity cannot move to %s", mc.act.Status, req.NewStatus)
	}

	mc.act.Status = req.NewStatus
	mc.act.Recompute(mc.off.Location())

	if req.NewStatus == models.StatusConfirmed {
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
	}

	return e.commitMutation(ctx, mc, models.ActionChangeStatus, auth, req.Geopoint, req.Timestamp, nil)
}
