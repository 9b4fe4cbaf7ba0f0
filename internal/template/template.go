// Package template defines activity templates and the read-only catalog that
// serves them. A template is the runtime schema of an activity: its schedule
// and venue slots, its attachment field types, and its edit policy.
package template

import "strings"

// Reserved template names with engine-level behavior.
const (
	NameOffice       = "office"
	NameSubscription = "subscription"
)

// ReportCheckin tags templates whose submissions run the check-in
// anti-fraud heuristic.
const ReportCheckin = "check-in"

// CanEditRule decides assignee edit rights at fan-out time.
type CanEditRule string

const (
	RuleAll         CanEditRule = "ALL"
	RuleNone        CanEditRule = "NONE"
	RuleCreator     CanEditRule = "CREATOR"
	RuleAdmin       CanEditRule = "ADMIN"
	RuleEmployee    CanEditRule = "EMPLOYEE"
	RuleFromInclude CanEditRule = "FROM_INCLUDE"
)

// FieldType declares an attachment field's value shape. Reference types are
// spelled "<template>-type" and point at sibling activities of that template
// (e.g. "leave-type" for the leave-type records holding annual limits).
type FieldType string

const (
	FieldString    FieldType = "string"
	FieldPhone     FieldType = "phoneNumber"
	FieldNumber    FieldType = "number"
	FieldLineItems FieldType = "lineItems"
)

// IsRef reports whether the type references a sibling template.
func (t FieldType) IsRef() bool {
	return strings.HasSuffix(string(t), "-type")
}

// RefTemplate returns the referenced template name for reference types.
func (t FieldType) RefTemplate() string {
	return string(t)
}

// FieldSpec declares one attachment field.
type FieldSpec struct {
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// CheckLimit configures a cross-record quota the invariant checker enforces.
type CheckLimit struct {
	// Kind is "leave" (annual day count) or "claim" (monthly amount sum).
	Kind string `json:"kind"`
	// TypeField names the attachment field selecting the leave/claim type.
	TypeField string `json:"typeField"`
	// LimitField names the attachment field on the type record carrying the
	// limit ("Annual Limit" / "Monthly Limit").
	LimitField string `json:"limitField"`
	// AmountField names the attachment field carrying the claimed amount.
	// Unused for leave, where the schedule range is the quantity.
	AmountField string `json:"amountField,omitempty"`
	// DefaultLimit applies when no type record is selected.
	DefaultLimit float64 `json:"defaultLimit"`
}

const (
	LimitKindLeave = "leave"
	LimitKindClaim = "claim"
)

// Template is the runtime schema of an activity. Immutable once referenced
// by existing activities except through the template-update path, which is
// out of this engine's scope.
type Template struct {
	Name           string               `json:"name"`
	StatusOnCreate string               `json:"statusOnCreate"`
	CanEditRule    CanEditRule          `json:"canEditRule"`
	Hidden         bool                 `json:"hidden"`
	ScheduleSlots  []string             `json:"scheduleSlots"`
	VenueSlots     []string             `json:"venueSlots"`
	Attachment     map[string]FieldSpec `json:"attachmentFields"`
	Report         string               `json:"report,omitempty"`
	CheckLimit     *CheckLimit          `json:"checkLimit,omitempty"`
	DateConflict   bool                 `json:"dateConflict,omitempty"`
	// RequirePhone rejects submissions whose phone-typed attachment values
	// are all empty.
	RequirePhone bool `json:"requirePhone,omitempty"`
}

// HasScheduleSlot reports whether name is one of the declared slots.
func (t *Template) HasScheduleSlot(name string) bool {
	for _, s := range t.ScheduleSlots {
		if s == name {
			return true
		}
	}
	return false
}

// HasVenueSlot reports whether name is one of the declared venue slots.
func (t *Template) HasVenueSlot(name string) bool {
	for _, s := range t.VenueSlots {
		if s == name {
			return true
		}
	}
	return false
}
