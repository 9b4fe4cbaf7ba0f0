// Package addendum snapshots post-mutation activity state into the
// append-only audit entry that per-user update streams replay. A mutation
// has not happened, from a client's perspective, until its addendum commits.
package addendum

import (
	"time"

	"github.com/google/uuid"

	"fieldops/internal/activity/models"
	"fieldops/internal/geo"
	"fieldops/pkg/requestcontext"
)

// Params carries everything Emit needs. DeviceTimestamp falls back to the
// server time when the client sent none.
type Params struct {
	Snapshot        models.Activity
	Action          models.Action
	Actor           models.Identity
	Location        *geo.Point
	Device          requestcontext.Device
	DeviceTimestamp *time.Time
	ServerTime      time.Time
	// OfficeLocation fixes the calendar fields: addenda are dated in the
	// office's timezone, not UTC and not the device's clock.
	OfficeLocation *time.Location
}

// Emit builds the addendum. Pure: the caller commits it alongside the
// activity in one atomic batch.
func Emit(p Params) models.Addendum {
	deviceTS := p.ServerTime
	if p.DeviceTimestamp != nil {
		deviceTS = *p.DeviceTimestamp
	}

	loc := p.OfficeLocation
	if loc == nil {
		loc = time.UTC
	}
	local := p.ServerTime.In(loc)

	return models.Addendum{
		ID:              uuid.NewString(),
		ActivityID:      p.Snapshot.ID,
		Action:          p.Action,
		Actor:           p.Actor,
		DeviceTimestamp: deviceTS,
		ServerTimestamp: p.ServerTime,
		Location:        p.Location,
		Device: models.AddendumDevice{
			UserAgent: p.Device.UserAgent,
			Browser:   p.Device.Browser,
			OS:        p.Device.OS,
			Mobile:    p.Device.Mobile,
		},
		Date:     local.Format(models.DateLayout),
		Month:    local.Format("January"),
		Year:     local.Year(),
		Snapshot: p.Snapshot,
		ShareSet: append([]string{}, p.Snapshot.Assignees...),
	}
}
