// Package validate checks a draft activity's attachment against its
// template's declared field-type table. One uniform interpreter replaces the
// original system's per-template validator closures.
package validate

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"fieldops/internal/activity/models"
	"fieldops/internal/template"
	dErrors "fieldops/pkg/domain-errors"
)

// Attachment validates every field value against its declared type and
// returns all phone-typed values; the caller widens the assignee set with
// them. Errors name the offending template and field.
func Attachment(attachment map[string]models.FieldValue, tmpl *template.Template) ([]string, error) {
	if err := checkKeys(attachment, tmpl); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(tmpl.Attachment))
	for name := range tmpl.Attachment {
		names = append(names, name)
	}
	sort.Strings(names)

	var phoneNumbers []string
	phoneFieldsSeen := false
	phonePopulated := false

	for _, name := range names {
		spec := tmpl.Attachment[name]
		value := attachment[name]

		if value.Type != spec.Type {
			return nil, dErrors.Newf(dErrors.CodeValidation,
				"attachment field %q of template %q carries type %q, declared %q",
				name, tmpl.Name, value.Type, spec.Type)
		}
		if spec.Required && value.Empty() {
			return nil, dErrors.Newf(dErrors.CodeValidation,
				"attachment field %q of template %q is required", name, tmpl.Name)
		}

		switch spec.Type {
		case template.FieldPhone:
			phoneFieldsSeen = true
			if value.Text != "" {
				phonePopulated = true
				phoneNumbers = append(phoneNumbers, value.Text)
			}
		case template.FieldNumber:
			if value.Text != "" {
				if _, err := decimal.NewFromString(value.Text); err != nil {
					return nil, dErrors.Newf(dErrors.CodeValidation,
						"attachment field %q of template %q is not a number", name, tmpl.Name)
				}
			}
		case template.FieldLineItems:
			if err := lineItems(value.Items, name, tmpl.Name); err != nil {
				return nil, err
			}
		}
	}

	if tmpl.RequirePhone && phoneFieldsSeen && !phonePopulated {
		return nil, dErrors.Newf(dErrors.CodeValidation,
			"template %q requires at least one phone number", tmpl.Name)
	}
	return phoneNumbers, nil
}

// checkKeys enforces the invariant that attachment keys equal the template's
// declared field keys exactly.
func checkKeys(attachment map[string]models.FieldValue, tmpl *template.Template) error {
	for name := range attachment {
		if _, declared := tmpl.Attachment[name]; !declared {
			return dErrors.Newf(dErrors.CodeValidation,
				"template %q has no attachment field %q", tmpl.Name, name)
		}
	}
	for name := range tmpl.Attachment {
		if _, present := attachment[name]; !present {
			return dErrors.Newf(dErrors.CodeValidation,
				"attachment field %q of template %q is missing", name, tmpl.Name)
		}
	}
	return nil
}

func lineItems(items []models.LineItem, field, tmplName string) error {
	for i, item := range items {
		if item.Date != "" {
			if _, err := time.Parse(models.DateLayout, item.Date); err != nil {
				return dErrors.Newf(dErrors.CodeValidation,
					"line item %d of field %q of template %q has invalid date %q",
					i, field, tmplName, item.Date)
			}
		}
		if item.Quantity != "" {
			if _, err := strconv.Atoi(item.Quantity); err != nil {
				return dErrors.Newf(dErrors.CodeValidation,
					"line item %d of field %q of template %q has non-integer quantity %q",
					i, field, tmplName, item.Quantity)
			}
		}
		if item.Rate != "" {
			if _, err := decimal.NewFromString(item.Rate); err != nil {
				return dErrors.Newf(dErrors.CodeValidation,
					"line item %d of field %q of template %q has non-numeric rate %q",
					i, field, tmplName, item.Rate)
			}
		}
	}
	return nil
}
