package models

import (
	"encoding/json"
	"time"

	"fieldops/internal/geo"
)

// ScheduleInput is one raw schedule entry from the caller.
type ScheduleInput struct {
	Name      string     `json:"name"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}

// VenueInput is one raw venue entry from the caller.
type VenueInput struct {
	Descriptor string     `json:"venueDescriptor"`
	Address    string     `json:"address"`
	Location   string     `json:"location"`
	Geopoint   *geo.Point `json:"geopoint,omitempty"`
}

// CreateRequest creates a new activity. Attachment values arrive untyped;
// the normalizer decodes them against the template's declared field types.
type CreateRequest struct {
	Template   string                     `json:"template"`
	Office     string                     `json:"office"`
	Schedule   []ScheduleInput            `json:"schedule"`
	Venue      []VenueInput               `json:"venue"`
	Attachment map[string]json.RawMessage `json:"attachment"`
	Share      []string                   `json:"share"`
	Geopoint   *geo.Point                 `json:"geopoint,omitempty"`
	Timestamp  *time.Time                 `json:"timestamp,omitempty"`
	// Provider names the client position source ("HTML5" for browser
	// geolocation); the check-in heuristic only trusts HTML5 fixes.
	Provider string `json:"provider,omitempty"`
	// IdempotencyKey, when set, makes the create safely retryable: replays
	// return the originally created activity id.
	IdempotencyKey string `json:"idempotencyKey,omitempty"`
}

// UpdateRequest patches an existing activity. Nil slices/maps mean "leave
// unchanged"; provided entries go through lenient normalization.
type UpdateRequest struct {
	ActivityID string                     `json:"activityId"`
	Schedule   []ScheduleInput            `json:"schedule,omitempty"`
	Venue      []VenueInput               `json:"venue,omitempty"`
	Attachment map[string]json.RawMessage `json:"attachment,omitempty"`
	Geopoint   *geo.Point                 `json:"geopoint,omitempty"`
	Timestamp  *time.Time                 `json:"timestamp,omitempty"`
}

// ChangeStatusRequest moves an activity between lifecycle states.
type ChangeStatusRequest struct {
	ActivityID string     `json:"activityId"`
	NewStatus  Status     `json:"newStatus"`
	Geopoint   *geo.Point `json:"geopoint,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}

// ShareRequest widens (and optionally narrows) the assignee set.
type ShareRequest struct {
	ActivityID string     `json:"activityId"`
	Share      []string   `json:"share"`
	Unshare    []string   `json:"unshare,omitempty"`
	Geopoint   *geo.Point `json:"geopoint,omitempty"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
}
