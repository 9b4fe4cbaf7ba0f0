// Package office projects the per-office facts the engine consults on every
// mutation: lifecycle status, timezone, and the admin/employee membership
// sets that drive canEdit resolution.
package office

import (
	"context"
	"errors"
	"time"

	"fieldops/internal/docstore"
	dErrors "fieldops/pkg/domain-errors"
	"fieldops/pkg/platform/sentinel"
)

// Office is the denormalized projection written by the commit builder when
// an office activity is created or updated.
type Office struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Status   string `json:"status"`
	Timezone string `json:"timezone"`
	// Admins and Employees are phone-number sets.
	Admins    []string `json:"admins"`
	Employees []string `json:"employees"`
}

// IsAdmin reports admin-set membership.
func (o *Office) IsAdmin(phone string) bool {
	return contains(o.Admins, phone)
}

// IsEmployee reports employee-index membership.
func (o *Office) IsEmployee(phone string) bool {
	return contains(o.Employees, phone)
}

// Location resolves the office timezone, falling back to UTC when the name
// does not load.
func (o *Office) Location() *time.Location {
	if o.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(o.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func contains(set []string, member string) bool {
	for _, s := range set {
		if s == member {
			return true
		}
	}
	return false
}

// Loader reads office projections from the docstore.
type Loader struct {
	store     docstore.Store
	defaultTZ string
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithDefaultTimezone applies to offices that never declared a timezone.
func WithDefaultTimezone(tz string) LoaderOption {
	return func(l *Loader) { l.defaultTZ = tz }
}

// NewLoader builds a Loader.
func NewLoader(store docstore.Store, opts ...LoaderOption) *Loader {
	l := &Loader{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Get returns the office or a not-found domain error.
func (l *Loader) Get(ctx context.Context, officeID string) (*Office, error) {
	if officeID == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "office is required")
	}
	doc, err := l.store.Get(ctx, docstore.CollectionOffices, officeID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "office %q not found", officeID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeStore, "office lookup failed")
	}
	var o Office
	if err := doc.Decode(&o); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "office document malformed")
	}
	if o.Timezone == "" {
		o.Timezone = l.defaultTZ
	}
	return &o, nil
}

// RequireActive returns the office and rejects CANCELLED offices, which are
// inactive for every mutation.
func (l *Loader) RequireActive(ctx context.Context, officeID string) (*Office, error) {
	o, err := l.Get(ctx, officeID)
	if err != nil {
		return nil, err
	}
	if o.Status == "CANCELLED" {
		return nil, dErrors.Newf(dErrors.CodeUnauthorized, "office %q is inactive", o.Name)
	}
	return o, nil
}
