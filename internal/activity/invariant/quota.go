package invariant

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"fieldops/internal/activity/models"
	"fieldops/internal/docstore"
	"fieldops/internal/template"
	dErrors "fieldops/pkg/domain-errors"
	"fieldops/pkg/platform/sentinel"
)

// pastGraceMonths bounds how far back a leave request may start.
const pastGraceMonths = 2

// leaveQuota enforces the annual day-count limit sourced from the selected
// leave-type record, defaulting when no type is selected.
func (c *Checker) leaveQuota(ctx context.Context, in Input, cfg *template.CheckLimit) error {
	loc := in.Office.Location()

	requested := scheduleDays(in.Draft.Schedule, loc)
	if requested == 0 {
		return nil
	}

	start := earliestStart(in.Draft.Schedule)
	if start != nil && start.In(loc).Before(in.Now.In(loc).AddDate(0, -pastGraceMonths, 0)) {
		return dErrors.Newf(dErrors.CodeConflict,
			"leave starting %s is more than %d months in the past",
			start.In(loc).Format(models.DateLayout), pastGraceMonths)
	}

	selectedType := in.Draft.Attachment[cfg.TypeField].Text
	limit, err := c.limitFromTypeRecord(ctx, selectedType, cfg)
	if err != nil {
		return err
	}

	year := in.Now.In(loc).Year()
	if start != nil {
		year = start.In(loc).Year()
	}

	prior, err := c.activeActivities(ctx, in)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStore, "leave quota scan failed")
	}

	used := 0
	for _, act := range prior {
		if act.Attachment[cfg.TypeField].Text != selectedType {
			continue
		}
		if s := earliestStart(act.Schedule); s == nil || s.In(loc).Year() != year {
			continue
		}
		used += scheduleDays(act.Schedule, loc)
	}

	limitDays := int(limit.IntPart())
	if used+requested > limitDays {
		return dErrors.Newf(dErrors.CodeConflict,
			"annual leave limit of %d days exceeded by %d day(s)",
			limitDays, used+requested-limitDays)
	}
	return nil
}

// claimQuota enforces the monthly amount limit for the selected claim type.
// Amounts are fixed-point throughout; no float arithmetic.
func (c *Checker) claimQuota(ctx context.Context, in Input, cfg *template.CheckLimit) error {
	amount, err := claimAmount(in.Draft.Attachment, cfg.AmountField)
	if err != nil {
		return err
	}
	if amount.IsZero() {
		return nil
	}

	selectedType := in.Draft.Attachment[cfg.TypeField].Text
	limit, err := c.limitFromTypeRecord(ctx, selectedType, cfg)
	if err != nil {
		return err
	}

	loc := in.Office.Location()
	anchor := in.Now
	if !in.Draft.RelevantTime.IsZero() {
		anchor = in.Draft.RelevantTime
	}
	year, month := anchor.In(loc).Year(), anchor.In(loc).Month()

	prior, err := c.activeActivities(ctx, in)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeStore, "claim quota scan failed")
	}

	total := decimal.Zero
	for _, act := range prior {
		if act.Attachment[cfg.TypeField].Text != selectedType {
			continue
		}
		t := act.RelevantTime.In(loc)
		if t.Year() != year || t.Month() != month {
			continue
		}
		prev, err := claimAmount(act.Attachment, cfg.AmountField)
		if err != nil {
			continue // malformed historical record; not this request's fault
		}
		total = total.Add(prev)
	}

	if total.Add(amount).GreaterThan(limit) {
		return dErrors.Newf(dErrors.CodeConflict,
			"monthly claim limit of %s exceeded by %s",
			limit.String(), total.Add(amount).Sub(limit).String())
	}
	return nil
}

// limitFromTypeRecord resolves the quota limit from the referenced type
// activity's attachment, falling back to the template default when no type
// is selected or the record carries no usable limit.
func (c *Checker) limitFromTypeRecord(ctx context.Context, typeID string, cfg *template.CheckLimit) (decimal.Decimal, error) {
	fallback := decimal.NewFromFloat(cfg.DefaultLimit)
	if typeID == "" {
		return fallback, nil
	}

	doc, err := c.store.Get(ctx, docstore.CollectionActivities, typeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return fallback, nil
		}
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeStore, "quota type record lookup failed")
	}

	var record models.Activity
	if err := doc.Decode(&record); err != nil {
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeInternal, "quota type record malformed")
	}
	text := record.Attachment[cfg.LimitField].Text
	if text == "" {
		return fallback, nil
	}
	limit, err := decimal.NewFromString(text)
	if err != nil {
		return fallback, nil
	}
	return limit, nil
}

func claimAmount(attachment map[string]models.FieldValue, field string) (decimal.Decimal, error) {
	text := attachment[field].Text
	if text == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Zero, dErrors.Newf(dErrors.CodeValidation,
			"claim amount field %q is not a number", field)
	}
	return amount, nil
}

// scheduleDays counts the calendar days covered by every filled range:
// endOfDay(end) minus startOfDay(start), in the office's timezone.
func scheduleDays(schedule []models.ScheduleEntry, loc *time.Location) int {
	days := 0
	for _, entry := range schedule {
		if entry.StartTime == nil {
			continue
		}
		start := entry.StartTime.In(loc)
		end := start
		if entry.EndTime != nil {
			end = entry.EndTime.In(loc)
		}
		startDay := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc)
		endDay := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, loc)
		days += int(endDay.Sub(startDay).Hours()/24) + 1
	}
	return days
}

func earliestStart(schedule []models.ScheduleEntry) *time.Time {
	var earliest *time.Time
	for _, entry := range schedule {
		if entry.StartTime == nil {
			continue
		}
		if earliest == nil || entry.StartTime.Before(*earliest) {
			earliest = entry.StartTime
		}
	}
	return earliest
}
