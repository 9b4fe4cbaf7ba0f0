// Package normalize turns raw mutation input into a template-conformant
// draft activity. Every template-declared schedule and venue slot is present
// in the output; the attachment is restricted to declared fields.
//
// Two policies exist and stay separate because callers depend on which one
// runs: Strict (create and explicit client flows) fails the whole request on
// any mismatch, Lenient (update and administrative flows) substitutes a
// null-valued placeholder for the offending slot only.
package normalize

import (
	"encoding/json"
	"fmt"

	"fieldops/internal/activity/models"
	"fieldops/internal/geo"
	"fieldops/internal/template"
	dErrors "fieldops/pkg/domain-errors"
)

// Mode selects the normalization policy.
type Mode int

const (
	Strict Mode = iota
	Lenient
)

// Activity builds a complete draft from a create request. Pure: no reads,
// no writes.
func Activity(req *models.CreateRequest, tmpl *template.Template, mode Mode) (*models.Activity, error) {
	schedule, err := Schedule(req.Schedule, tmpl, mode)
	if err != nil {
		return nil, err
	}
	venue, err := Venue(req.Venue, tmpl, mode)
	if err != nil {
		return nil, err
	}
	attachment, err := Attachment(req.Attachment, tmpl, mode)
	if err != nil {
		return nil, err
	}
	if err := Geopoint(req.Geopoint, mode); err != nil {
		return nil, err
	}

	draft := &models.Activity{
		Template:    tmpl.Name,
		OfficeID:    req.Office,
		Status:      models.Status(tmpl.StatusOnCreate),
		Schedule:    schedule,
		Venue:       venue,
		Attachment:  attachment,
		CanEditRule: tmpl.CanEditRule,
	}
	draft.MergeAssignees(req.Share...)
	return draft, nil
}

// Schedule maps inputs onto the template's slots, one entry per slot in
// template order. The first input matching a slot wins.
func Schedule(inputs []models.ScheduleInput, tmpl *template.Template, mode Mode) ([]models.ScheduleEntry, error) {
	byName := make(map[string]models.ScheduleInput, len(inputs))
	for _, in := range inputs {
		if !tmpl.HasScheduleSlot(in.Name) {
			if mode == Strict {
				return nil, dErrors.Newf(dErrors.CodeValidation,
					"template %q has no schedule slot %q", tmpl.Name, in.Name)
			}
			continue
		}
		if _, dup := byName[in.Name]; !dup {
			byName[in.Name] = in
		}
	}

	out := make([]models.ScheduleEntry, 0, len(tmpl.ScheduleSlots))
	for _, slot := range tmpl.ScheduleSlots {
		entry := models.ScheduleEntry{Name: slot}
		in, ok := byName[slot]
		if ok && in.StartTime != nil {
			if in.EndTime != nil && in.StartTime.After(*in.EndTime) {
				if mode == Strict {
					return nil, dErrors.Newf(dErrors.CodeValidation,
						"schedule slot %q has startTime after endTime", slot)
				}
				// Lenient: placeholder for this slot only.
				out = append(out, entry)
				continue
			}
			entry.StartTime = in.StartTime
			entry.EndTime = in.EndTime
		}
		out = append(out, entry)
	}
	return out, nil
}

// Venue maps inputs onto the template's venue slots, validating geopoints.
func Venue(inputs []models.VenueInput, tmpl *template.Template, mode Mode) ([]models.VenueEntry, error) {
	byName := make(map[string]models.VenueInput, len(inputs))
	for _, in := range inputs {
		if !tmpl.HasVenueSlot(in.Descriptor) {
			if mode == Strict {
				return nil, dErrors.Newf(dErrors.CodeValidation,
					"template %q has no venue slot %q", tmpl.Name, in.Descriptor)
			}
			continue
		}
		if _, dup := byName[in.Descriptor]; !dup {
			byName[in.Descriptor] = in
		}
	}

	out := make([]models.VenueEntry, 0, len(tmpl.VenueSlots))
	for _, slot := range tmpl.VenueSlots {
		entry := models.VenueEntry{Descriptor: slot}
		in, ok := byName[slot]
		if ok {
			if in.Geopoint != nil && !in.Geopoint.Valid() {
				if mode == Strict {
					return nil, dErrors.Newf(dErrors.CodeValidation,
						"venue slot %q has out-of-range geopoint", slot)
				}
				out = append(out, entry)
				continue
			}
			entry.Address = in.Address
			entry.Location = in.Location
			entry.Geopoint = in.Geopoint
		}
		out = append(out, entry)
	}
	return out, nil
}

// Attachment decodes raw values against the template's declared field types.
// The result carries exactly the declared keys: unknown keys are rejected
// (strict) or dropped (lenient), missing keys become empty values.
func Attachment(raw map[string]json.RawMessage, tmpl *template.Template, mode Mode) (map[string]models.FieldValue, error) {
	if mode == Strict {
		for name := range raw {
			if _, declared := tmpl.Attachment[name]; !declared {
				return nil, dErrors.Newf(dErrors.CodeValidation,
					"template %q has no attachment field %q", tmpl.Name, name)
			}
		}
	}

	out := make(map[string]models.FieldValue, len(tmpl.Attachment))
	for name, spec := range tmpl.Attachment {
		value, ok := raw[name]
		if !ok {
			out[name] = emptyValue(spec.Type)
			continue
		}
		decoded, err := decodeValue(value, spec.Type)
		if err != nil {
			if mode == Strict {
				return nil, dErrors.Newf(dErrors.CodeValidation,
					"attachment field %q of template %q: %v", name, tmpl.Name, err)
			}
			out[name] = emptyValue(spec.Type)
			continue
		}
		out[name] = decoded
	}
	return out, nil
}

// Geopoint rejects out-of-range action coordinates in strict mode. Lenient
// callers keep whatever arrived; the invariant checker ignores invalid fixes.
func Geopoint(p *geo.Point, mode Mode) error {
	if mode == Strict && p != nil && !p.Valid() {
		return dErrors.New(dErrors.CodeValidation, "geopoint out of range")
	}
	return nil
}

func emptyValue(t template.FieldType) models.FieldValue {
	if t == template.FieldLineItems {
		return models.ItemsValue(nil)
	}
	return models.TextValue(t, "")
}

func decodeValue(raw json.RawMessage, t template.FieldType) (models.FieldValue, error) {
	if t == template.FieldLineItems {
		var items []models.LineItem
		if err := json.Unmarshal(raw, &items); err != nil {
			return models.FieldValue{}, err
		}
		return models.ItemsValue(items), nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return models.TextValue(t, text), nil
	}
	// Clients send bare numbers for number-typed fields; keep the exact
	// textual form so currency amounts never pass through floats.
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return models.TextValue(t, num.String()), nil
	}
	var wrapped struct {
		Value string `json:"value"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return models.TextValue(t, wrapped.Value), nil
	}
	return models.FieldValue{}, fmt.Errorf("value is not a string")
}
