// Package commit assembles the atomic multi-document write for one
// mutation: the activity record, its addendum, the per-assignee fan-out, and
// the denormalized side indices that must stay consistent with the primary
// record. The whole batch succeeds or fails as one unit.
package commit

import (
	"sort"

	"fieldops/internal/activity/invariant"
	"fieldops/internal/activity/models"
	"fieldops/internal/docstore"
	"fieldops/internal/office"
	"fieldops/internal/template"
	dErrors "fieldops/pkg/domain-errors"
)

// Plan is everything the builder needs. Activity must already reference the
// addendum (LatestAddendumID) so both land consistent.
type Plan struct {
	Activity *models.Activity
	Addendum models.Addendum
	Template *template.Template
	Office   *office.Office

	// Include is the governing subscription's include list, consulted by
	// the FROM_INCLUDE edit rule.
	Include []string
	// Unshare lists phone numbers whose assignee records are removed.
	Unshare []string
	// IsCreate adds the create-only uniqueness writes.
	IsCreate bool
	// CheckinState, when set, refreshes the participant's last-fix record
	// in the same batch.
	CheckinState *invariant.CheckinState
}

// Build produces the write batch. Pure: no reads, no side effects.
func Build(p Plan) ([]docstore.Write, error) {
	act := p.Activity
	if act.ID == "" {
		return nil, dErrors.New(dErrors.CodeInternal, "commit plan missing activity id")
	}
	if act.LatestAddendumID != p.Addendum.ID {
		return nil, dErrors.New(dErrors.CodeInternal, "activity does not reference its addendum")
	}

	writes := []docstore.Write{
		{
			Collection: docstore.CollectionActivities,
			ID:         act.ID,
			Data:       act,
			Merge:      docstore.MergeReplace,
		},
		{
			Collection: docstore.CollectionAddenda,
			ID:         p.Addendum.ID,
			Data:       p.Addendum,
			Merge:      docstore.MergeCreate,
		},
	}

	for _, phone := range act.Assignees {
		writes = append(writes, docstore.Write{
			Collection: docstore.CollectionAssignees,
			ID:         models.AssigneeDocID(act.ID, phone),
			Data: models.Assignee{
				ActivityID:   act.ID,
				PhoneNumber:  phone,
				CanEdit:      CanEdit(act.CanEditRule, phone, act.Creator.PhoneNumber, p.Office, p.Include),
				AddToInclude: p.Template.Name == template.NameSubscription,
			},
			Merge: docstore.MergeReplace,
		})
	}
	for _, phone := range p.Unshare {
		writes = append(writes, docstore.Write{
			Collection: docstore.CollectionAssignees,
			ID:         models.AssigneeDocID(act.ID, phone),
			Merge:      docstore.MergeDelete,
		})
	}

	switch p.Template.Name {
	case template.NameOffice:
		writes = append(writes, officeWrites(p)...)
	case template.NameSubscription:
		writes = append(writes, subscriptionWrites(p)...)
	}

	if p.CheckinState != nil {
		writes = append(writes, docstore.Write{
			Collection: docstore.CollectionCheckinState,
			ID:         invariant.CheckinStateDocID(act.OfficeID, act.Creator.PhoneNumber),
			Data:       p.CheckinState,
			Merge:      docstore.MergeReplace,
		})
	}

	return writes, nil
}

// CanEdit resolves an assignee's edit permission from the activity's copied
// rule.
func CanEdit(rule template.CanEditRule, phone, creator string, off *office.Office, include []string) bool {
	switch rule {
	case template.RuleAll:
		return true
	case template.RuleNone:
		return false
	case template.RuleCreator:
		return phone == creator
	case template.RuleAdmin:
		return off != nil && off.IsAdmin(phone)
	case template.RuleEmployee:
		return off != nil && off.IsEmployee(phone)
	case template.RuleFromInclude:
		for _, p := range include {
			if p == phone {
				return true
			}
		}
		return false
	}
	return false
}

// OfficeProjection derives the denormalized office document from an office
// activity: name and timezone from the attachment, admins from its
// phone-typed values, employees from the assignee set.
func OfficeProjection(act *models.Activity) office.Office {
	return office.Office{
		ID:        act.ID,
		Name:      act.Attachment["Name"].Text,
		Status:    string(act.Status),
		Timezone:  act.Attachment["Timezone"].Text,
		Admins:    phoneValues(act.Attachment),
		Employees: append([]string{}, act.Assignees...),
	}
}

// officeWrites keeps the office projection and the name-uniqueness index in
// the same batch as the office activity itself.
func officeWrites(p Plan) []docstore.Write {
	act := p.Activity
	proj := OfficeProjection(act)

	writes := []docstore.Write{{
		Collection: docstore.CollectionOffices,
		ID:         act.ID,
		Data:       proj,
		Merge:      docstore.MergeReplace,
	}}
	if p.IsCreate && proj.Name != "" {
		writes = append(writes, docstore.Write{
			Collection: docstore.CollectionOfficeNames,
			ID:         proj.Name,
			Data:       map[string]string{"officeId": act.ID},
			Merge:      docstore.MergeCreate,
		})
	}
	return writes
}

// SubscriptionIndex grants a participant visibility of one template within
// one office and carries the include list that widens assignee sets.
type SubscriptionIndex struct {
	ActivityID string   `json:"activityId"`
	OfficeID   string   `json:"officeId"`
	Template   string   `json:"template"`
	Phone      string   `json:"phone"`
	Include    []string `json:"include"`
}

// SubscriptionDocID keys the index by office, template and participant.
func SubscriptionDocID(officeID, tmplName, phone string) string {
	return officeID + "#" + tmplName + "#" + phone
}

// subscriptionWrites maintains one index document per subscriber. The
// subscribed template comes from the subscription's "Template" attachment
// field; the include list is its phone-typed values.
func subscriptionWrites(p Plan) []docstore.Write {
	act := p.Activity
	target := act.Attachment["Template"].Text
	if target == "" {
		return nil
	}
	include := phoneValues(act.Attachment)

	var writes []docstore.Write
	for _, phone := range act.Assignees {
		writes = append(writes, docstore.Write{
			Collection: docstore.CollectionSubscriptionIndex,
			ID:         SubscriptionDocID(act.OfficeID, target, phone),
			Data: SubscriptionIndex{
				ActivityID: act.ID,
				OfficeID:   act.OfficeID,
				Template:   target,
				Phone:      phone,
				Include:    include,
			},
			Merge: docstore.MergeReplace,
		})
	}
	for _, phone := range p.Unshare {
		writes = append(writes, docstore.Write{
			Collection: docstore.CollectionSubscriptionIndex,
			ID:         SubscriptionDocID(act.OfficeID, target, phone),
			Merge:      docstore.MergeDelete,
		})
	}
	return writes
}

// phoneValues collects non-empty phone-typed attachment values, sorted.
func phoneValues(attachment map[string]models.FieldValue) []string {
	var phones []string
	for _, value := range attachment {
		if value.Type == template.FieldPhone && value.Text != "" {
			phones = append(phones, value.Text)
		}
	}
	sort.Strings(phones)
	return phones
}
