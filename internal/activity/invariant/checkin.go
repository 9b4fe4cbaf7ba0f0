package invariant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fieldops/internal/docstore"
	"fieldops/internal/geo"
	dErrors "fieldops/pkg/domain-errors"
	"fieldops/pkg/platform/sentinel"
)

const (
	// checkinGrace is the window inside which successive check-ins are
	// always accepted regardless of distance.
	checkinGrace = 5 * time.Minute
	// maxSpeedKmh is the plausibility ceiling for travel between fixes.
	maxSpeedKmh = 40.0
	// trustedProvider is the only position source precise enough to judge.
	trustedProvider = "HTML5"
)

// CheckinState is the last accepted fix for one participant in one office.
// The commit builder refreshes it in the same batch as the check-in itself.
type CheckinState struct {
	Geopoint  geo.Point `json:"geopoint"`
	Timestamp time.Time `json:"timestamp"`
	Provider  string    `json:"provider"`
}

// CheckinStateDocID keys check-in state by office and participant.
func CheckinStateDocID(officeID, phone string) string {
	return officeID + "#" + phone
}

// checkin runs the anti-fraud speed heuristic against the last recorded fix.
func (c *Checker) checkin(ctx context.Context, in Input) error {
	if in.Geopoint == nil || !in.Geopoint.Valid() {
		return nil
	}

	doc, err := c.store.Get(ctx, docstore.CollectionCheckinState,
		CheckinStateDocID(in.Draft.OfficeID, in.Actor))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil // first check-in, nothing to compare
		}
		return dErrors.Wrap(err, dErrors.CodeStore, "check-in state lookup failed")
	}
	var state CheckinState
	if err := doc.Decode(&state); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "check-in state malformed")
	}

	elapsed := in.Now.Sub(state.Timestamp)
	if state.Provider != trustedProvider || elapsed < checkinGrace {
		return nil
	}

	var reason string
	if state.Geopoint.Latitude == in.Geopoint.Latitude &&
		state.Geopoint.Longitude == in.Geopoint.Longitude {
		reason = "identical coordinates"
	} else {
		distanceKm := geo.HaversineKm(state.Geopoint, *in.Geopoint)
		speed := distanceKm / elapsed.Hours()
		if speed > maxSpeedKmh {
			reason = fmt.Sprintf("implausible travel speed %.1f km/h", speed)
		}
	}
	if reason == "" {
		return nil
	}

	c.recordOffense(ctx, in, reason)
	if c.onFraud != nil {
		c.onFraud()
	}
	return dErrors.Newf(dErrors.CodeConflict, "check-in rejected: %s", reason)
}

// offenseAggregate is the per-day monitoring record keyed by
// (date, month, year, message), counting offenses per phone number.
type offenseAggregate struct {
	Date     string         `json:"date"`
	Month    string         `json:"month"`
	Year     int            `json:"year"`
	Message  string         `json:"message"`
	Offenses map[string]int `json:"offenses"`
}

// recordOffense upserts the daily aggregate. Best-effort: a failure here is
// logged and never masks the underlying rejection.
func (c *Checker) recordOffense(ctx context.Context, in Input, message string) {
	day := in.Now.In(in.Office.Location())
	agg := offenseAggregate{
		Date:     day.Format("2006-01-02"),
		Month:    day.Format("January"),
		Year:     day.Year(),
		Message:  message,
		Offenses: map[string]int{},
	}
	id := agg.Date + "#" + message

	if doc, err := c.store.Get(ctx, docstore.CollectionCheckinErrors, id); err == nil {
		var existing offenseAggregate
		if doc.Decode(&existing) == nil && existing.Offenses != nil {
			agg.Offenses = existing.Offenses
		}
	}
	agg.Offenses[in.Actor]++

	err := c.store.AtomicWrite(ctx, []docstore.Write{{
		Collection: docstore.CollectionCheckinErrors,
		ID:         id,
		Data:       agg,
		Merge:      docstore.MergeSet,
	}})
	if err != nil {
		c.logger.WarnContext(ctx, "check-in offense upsert failed",
			"phone", in.Actor,
			"message", message,
			"error", err,
		)
	}
}
