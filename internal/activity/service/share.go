package service

import (
	"context"

	"fieldops/internal/activity/models"
	"fieldops/internal/identity"
	dErrors "fieldops/pkg/domain-errors"
)

// Share widens the assignee set and, for callers with edit rights, narrows
// it. The creator can never be unshared.
func (e *Engine) Share(ctx context.Context, req *models.ShareRequest, auth identity.Auth) (err error) {
	ctx, finish := e.start(ctx, "Share")
	defer func() { finish(err) }()

	if auth.PhoneNumber == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is missing")
	}
	if len(req.Share) == 0 && len(req.Unshare) == 0 {
		return dErrors.New(dErrors.CodeValidation, "share request names nobody")
	}
	mc, err := e.prepareMutation(ctx, req.ActivityID, auth)
	if err != nil {
		return err
	}
	if mc.act.Status == models.StatusCancelled {
		return dErrors.New(dErrors.CodeConflict, "activity is cancelled")
	}

	var unshare []string
	for _, phone := range req.Unshare {
		if phone == mc.act.Creator.PhoneNumber {
			return dErrors.New(dErrors.CodeValidation, "the creator cannot be unshared")
		}
		if mc.act.HasAssignee(phone) {
			unshare = append(unshare, phone)
		}
	}

	mc.act.MergeAssignees(req.Share...)
	mc.act.RemoveAssignees(unshare...)

	return e.commitMutation(ctx, mc, models.ActionShare, auth, req.Geopoint, req.Timestamp, unshare)
}
