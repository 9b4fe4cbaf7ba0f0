// Package models defines the activity aggregate and its satellite documents:
// addenda (append-only audit entries), assignees (per-participant records),
// and the typed attachment values templates declare at runtime.
package models

import (
	"sort"
	"time"

	"fieldops/internal/geo"
	"fieldops/internal/template"
)

// Status is the activity lifecycle state. CANCELLED is the terminal
// soft-delete; activities are never physically removed.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return true
	}
	return false
}

// Action names the mutation recorded on an addendum.
type Action string

const (
	ActionCreate       Action = "create"
	ActionUpdate       Action = "update"
	ActionShare        Action = "share"
	ActionChangeStatus Action = "changeStatus"
	ActionComment      Action = "comment"
)

// Identity is the actor snapshot embedded in activities and addenda.
type Identity struct {
	PhoneNumber string `json:"phoneNumber"`
	UID         string `json:"uid,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
}

// ScheduleEntry is one named time range. Unfilled slots keep nil times.
type ScheduleEntry struct {
	Name      string     `json:"name"`
	StartTime *time.Time `json:"startTime"`
	EndTime   *time.Time `json:"endTime"`
}

// VenueEntry is one named place. Unfilled slots keep empty strings.
type VenueEntry struct {
	Descriptor string     `json:"venueDescriptor"`
	Address    string     `json:"address"`
	Location   string     `json:"location"`
	Geopoint   *geo.Point `json:"geopoint,omitempty"`
}

// Activity is the mutable aggregate at the center of the engine.
type Activity struct {
	ID       string `json:"id"`
	Template string `json:"template"`
	Office   string `json:"office"`
	OfficeID string `json:"officeId"`
	Status   Status `json:"status"`

	Schedule   []ScheduleEntry       `json:"schedule"`
	Venue      []VenueEntry          `json:"venue"`
	Attachment map[string]FieldValue `json:"attachment"`

	// Assignees is the participant phone-number set, kept sorted.
	Assignees []string `json:"assignees"`

	Creator     Identity             `json:"creator"`
	CanEditRule template.CanEditRule `json:"canEditRule"`
	Timestamp   time.Time            `json:"timestamp"`

	// Derived fields, recomputed on every mutation.
	Dates        []string  `json:"dates"`
	RelevantTime time.Time `json:"relevantTime"`

	// LatestAddendumID references the most recent audit entry. Written in
	// the same batch as the addendum itself.
	LatestAddendumID string `json:"latestAddendumId"`
}

// HasAssignee reports membership in the assignee set.
func (a *Activity) HasAssignee(phone string) bool {
	for _, p := range a.Assignees {
		if p == phone {
			return true
		}
	}
	return false
}

// MergeAssignees adds phone numbers, dropping empties and duplicates and
// keeping the set sorted.
func (a *Activity) MergeAssignees(phones ...string) {
	seen := make(map[string]bool, len(a.Assignees)+len(phones))
	merged := make([]string, 0, len(a.Assignees)+len(phones))
	for _, p := range append(append([]string{}, a.Assignees...), phones...) {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		merged = append(merged, p)
	}
	sort.Strings(merged)
	a.Assignees = merged
}

// RemoveAssignees drops phone numbers from the set.
func (a *Activity) RemoveAssignees(phones ...string) {
	drop := make(map[string]bool, len(phones))
	for _, p := range phones {
		drop[p] = true
	}
	kept := a.Assignees[:0]
	for _, p := range a.Assignees {
		if !drop[p] {
			kept = append(kept, p)
		}
	}
	a.Assignees = kept
}

// Recompute refreshes the derived fields from the schedule, using the
// office's timezone for calendar dates.
func (a *Activity) Recompute(loc *time.Location) {
	a.Dates = scheduleDates(a.Schedule, loc)
	a.RelevantTime = relevantTime(a.Schedule, a.Timestamp)
}

// scheduleDates expands every filled schedule range into the calendar dates
// it covers, deduplicated and sorted.
func scheduleDates(schedule []ScheduleEntry, loc *time.Location) []string {
	seen := make(map[string]bool)
	var dates []string
	for _, entry := range schedule {
		if entry.StartTime == nil {
			continue
		}
		start := entry.StartTime.In(loc)
		end := start
		if entry.EndTime != nil {
			end = entry.EndTime.In(loc)
		}
		for d := startOfDay(start); !d.After(end); d = d.AddDate(0, 0, 1) {
			key := d.Format(DateLayout)
			if !seen[key] {
				seen[key] = true
				dates = append(dates, key)
			}
		}
	}
	sort.Strings(dates)
	return dates
}

func relevantTime(schedule []ScheduleEntry, fallback time.Time) time.Time {
	earliest := fallback
	found := false
	for _, entry := range schedule {
		if entry.StartTime == nil {
			continue
		}
		if !found || entry.StartTime.Before(earliest) {
			earliest = *entry.StartTime
			found = true
		}
	}
	return earliest
}

// DateLayout is the calendar-date format used across dates, quota scans and
// line items.
const DateLayout = "2006-01-02"

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Assignee is the per-activity participant record fanned out at commit time.
type Assignee struct {
	ActivityID  string `json:"activityId"`
	PhoneNumber string `json:"phoneNumber"`
	CanEdit     bool   `json:"canEdit"`
	// AddToInclude marks subscription participants whose include list
	// widens future assignee sets.
	AddToInclude bool `json:"addToInclude,omitempty"`
}

// AssigneeDocID keys assignee documents by activity and phone number.
func AssigneeDocID(activityID, phone string) string {
	return activityID + "#" + phone
}

// Addendum is the append-only audit entry produced once per mutation and
// replayed by per-user update streams. Never mutated after commit.
type Addendum struct {
	ID         string `json:"id"`
	ActivityID string `json:"activityId"`
	Action     Action `json:"action"`

	Actor           Identity  `json:"actor"`
	DeviceTimestamp time.Time `json:"deviceTimestamp"`
	ServerTimestamp time.Time `json:"serverTimestamp"`

	Location *geo.Point     `json:"locationOfAction,omitempty"`
	Device   AddendumDevice `json:"device"`

	// Calendar fields in the office's timezone, not UTC and not the
	// requester's device time.
	Date  string `json:"date"`
	Month string `json:"month"`
	Year  int    `json:"year"`

	Snapshot Activity `json:"activitySnapshot"`
	ShareSet []string `json:"shareSet"`
}

// AddendumDevice is the device metadata captured with each mutation.
type AddendumDevice struct {
	UserAgent string `json:"userAgent,omitempty"`
	Browser   string `json:"browser,omitempty"`
	OS        string `json:"os,omitempty"`
	Mobile    bool   `json:"mobile,omitempty"`
}
