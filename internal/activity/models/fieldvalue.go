package models

import (
	"encoding/json"
	"fmt"

	"fieldops/internal/template"
)

// FieldValue is the typed sum an attachment field holds. The template's
// declared type decides which arm is populated:
//
//	string / phoneNumber / number / <template>-type -> Text
//	lineItems                                       -> Items
//
// Numbers stay textual until the validator parses them so currency amounts
// never round-trip through floats.
type FieldValue struct {
	Type  template.FieldType `json:"-"`
	Text  string             `json:"-"`
	Items []LineItem         `json:"-"`
}

// LineItem is one row of an array-of-line-item attachment value. Fields stay
// raw; the schema validator enforces date/quantity/rate shapes.
type LineItem struct {
	Date        string `json:"date"`
	Description string `json:"description,omitempty"`
	Quantity    string `json:"quantity"`
	Rate        string `json:"rate"`
}

// Empty reports whether the value carries no content.
func (v FieldValue) Empty() bool {
	if v.Type == template.FieldLineItems {
		return len(v.Items) == 0
	}
	return v.Text == ""
}

// TextValue builds a scalar field value.
func TextValue(t template.FieldType, text string) FieldValue {
	return FieldValue{Type: t, Text: text}
}

// ItemsValue builds a line-item field value.
func ItemsValue(items []LineItem) FieldValue {
	return FieldValue{Type: template.FieldLineItems, Items: items}
}

// fieldValueDoc is the persisted form: {"type": ..., "value": ...}.
type fieldValueDoc struct {
	Type  template.FieldType `json:"type"`
	Value json.RawMessage    `json:"value"`
}

// MarshalJSON encodes the populated arm under "value" alongside the type tag.
func (v FieldValue) MarshalJSON() ([]byte, error) {
	var (
		value []byte
		err   error
	)
	if v.Type == template.FieldLineItems {
		items := v.Items
		if items == nil {
			items = []LineItem{}
		}
		value, err = json.Marshal(items)
	} else {
		value, err = json.Marshal(v.Text)
	}
	if err != nil {
		return nil, fmt.Errorf("encode field value: %w", err)
	}
	return json.Marshal(fieldValueDoc{Type: v.Type, Value: value})
}

// UnmarshalJSON decodes the arm selected by the stored type tag.
func (v *FieldValue) UnmarshalJSON(raw []byte) error {
	var doc fieldValueDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decode field value: %w", err)
	}
	v.Type = doc.Type
	v.Text = ""
	v.Items = nil

	if len(doc.Value) == 0 || string(doc.Value) == "null" {
		return nil
	}
	if doc.Type == template.FieldLineItems {
		if err := json.Unmarshal(doc.Value, &v.Items); err != nil {
			return fmt.Errorf("decode line items: %w", err)
		}
		return nil
	}
	if err := json.Unmarshal(doc.Value, &v.Text); err != nil {
		return fmt.Errorf("decode field text: %w", err)
	}
	return nil
}
