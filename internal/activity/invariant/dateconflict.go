package invariant

import (
	"context"

	"fieldops/internal/activity/models"
	"fieldops/internal/docstore"
	dErrors "fieldops/pkg/domain-errors"
)

// dateConflict rejects the draft when the requester already holds a
// CONFIRMED activity of the same template and office on any of the draft's
// dates.
func (c *Checker) dateConflict(ctx context.Context, in Input) error {
	for _, date := range in.Draft.Dates {
		docs, err := c.store.Query(ctx, docstore.CollectionActivities, []docstore.Filter{
			docstore.Where("template", docstore.OpEq, in.Template.Name),
			docstore.Where("officeId", docstore.OpEq, in.Draft.OfficeID),
			docstore.Where("creator.phoneNumber", docstore.OpEq, in.Actor),
			docstore.Where("status", docstore.OpEq, string(models.StatusConfirmed)),
			docstore.Where("dates", docstore.OpArrayContains, date),
		}, 2)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeStore, "date conflict scan failed")
		}
		for _, doc := range docs {
			if doc.ID == in.ExcludeID {
				continue
			}
			return dErrors.Newf(dErrors.CodeConflict,
				"a confirmed %s already exists on %s", in.Template.Name, date)
		}
	}
	return nil
}
