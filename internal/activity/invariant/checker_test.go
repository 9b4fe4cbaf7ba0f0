package invariant

import (
	"context"
	"time"

	"fieldops/internal/activity/models"
	"fieldops/internal/docstore"
	"fieldops/internal/office"
	"fieldops/internal/template"
)

// Shared fixtures for the invariant suites.

func seedActivity(ctx context.Context, store docstore.Store, act models.Activity) error {
	return store.AtomicWrite(ctx, []docstore.Write{{
		Collection: docstore.CollectionActivities,
		ID:         act.ID,
		Data:       act,
		Merge:      docstore.MergeReplace,
	}})
}

func utcOffice() *office.Office {
	return &office.Office{ID: "o1", Name: "Acme", Status: "CONFIRMED", Timezone: "UTC"}
}

func leaveTemplate() *template.Template {
	return &template.Template{
		Name:          "leave",
		ScheduleSlots: []string{"leave"},
		Attachment: map[string]template.FieldSpec{
			"Type": {Type: "leave-type"},
		},
		CheckLimit: &template.CheckLimit{
			Kind:         template.LimitKindLeave,
			TypeField:    "Type",
			LimitField:   "Annual Limit",
			DefaultLimit: 20,
		},
	}
}

func claimTemplate() *template.Template {
	return &template.Template{
		Name: "claim",
		Attachment: map[string]template.FieldSpec{
			"Type":   {Type: "claim-type"},
			"Amount": {Type: template.FieldNumber},
		},
		CheckLimit: &template.CheckLimit{
			Kind:         template.LimitKindClaim,
			TypeField:    "Type",
			LimitField:   "Monthly Limit",
			AmountField:  "Amount",
			DefaultLimit: 1000,
		},
	}
}

// leaveActivity builds a confirmed leave record spanning [start, end] for the
// given creator.
func leaveActivity(id, phone, typeID string, status models.Status, start, end time.Time) models.Activity {
	act := models.Activity{
		ID:       id,
		Template: "leave",
		OfficeID: "o1",
		Status:   status,
		Creator:  models.Identity{PhoneNumber: phone},
		Schedule: []models.ScheduleEntry{
			{Name: "leave", StartTime: &start, EndTime: &end},
		},
		Attachment: map[string]models.FieldValue{
			"Type": models.TextValue("leave-type", typeID),
		},
	}
	act.Recompute(time.UTC)
	return act
}

func claimActivity(id, phone, typeID, amount string, status models.Status, at time.Time) models.Activity {
	return models.Activity{
		ID:           id,
		Template:     "claim",
		OfficeID:     "o1",
		Status:       status,
		Creator:      models.Identity{PhoneNumber: phone},
		RelevantTime: at,
		Attachment: map[string]models.FieldValue{
			"Type":   models.TextValue("claim-type", typeID),
			"Amount": models.TextValue(template.FieldNumber, amount),
		},
	}
}
