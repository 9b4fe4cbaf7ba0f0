package invariant

import (
	"context"
	"errors"

	"fieldops/internal/geo"
	dErrors "fieldops/pkg/domain-errors"
)

// geocodeVenues resolves coordinates for venue entries that arrived with an
// address but no geopoint. An unresolvable address rejects the draft before
// anything is written.
func (c *Checker) geocodeVenues(ctx context.Context, in Input) error {
	for i := range in.Draft.Venue {
		entry := &in.Draft.Venue[i]
		if entry.Address == "" || entry.Geopoint != nil {
			continue
		}
		point, err := c.geocoder.Geocode(ctx, entry.Address)
		if err != nil {
			if errors.Is(err, geo.ErrNoResult) {
				return dErrors.Newf(dErrors.CodeConflict,
					"%s doesn't look like a real address", entry.Address)
			}
			return dErrors.Wrap(err, dErrors.CodeStore, "geocoding failed")
		}
		entry.Geopoint = &point
	}
	return nil
}
