package uiclient

import (
	"fmt"
	"slices"
)

// FormKind classifies a form opened by the application.
type FormKind string

const (
	KindPage   FormKind = "page"
	KindDialog FormKind = "dialog"
	KindLookup FormKind = "lookup"
)

// DialogStyle tells a warning apart from a prompt that needs an explicit answer.
type DialogStyle string

const (
	DialogConfirm DialogStyle = "confirm"
	DialogWarning DialogStyle = "warning"
	DialogError   DialogStyle = "error"
)

// Form is a snapshot of a page, dialog or lookup as last reported by the
// application. Snapshots are replaced wholesale by newer responses.
type Form struct {
	ID       string            `json:"id"`
	PageID   int               `json:"pageId,omitempty"`
	Kind     FormKind          `json:"kind"`
	Style    DialogStyle       `json:"style,omitempty"`
	Caption  string            `json:"caption,omitempty"`
	Message  string            `json:"message,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
	Actions  []string          `json:"actions,omitempty"`
	Repeater *Repeater         `json:"repeater,omitempty"`
	Errors   []FieldError      `json:"errors,omitempty"`
}

// HasAction reports whether the form exposes the named action.
func (f *Form) HasAction(name string) bool {
	return slices.Contains(f.Actions, name)
}

// Field returns a header field value.
func (f *Form) Field(name string) (string, bool) {
	v, ok := f.Fields[name]
	return v, ok
}

func (f *Form) String() string {
	if f == nil {
		return "<nil form>"
	}
	return fmt.Sprintf("%s %s(page %d, %q)", f.Kind, f.ID, f.PageID, f.Caption)
}

// Repeater is a windowed view over a row-based sub-table. Only rows inside the
// viewport are materialized and addressable.
type Repeater struct {
	Offset       int   `json:"offset"`
	ViewportSize int   `json:"viewportSize"`
	Total        int   `json:"total"`
	Viewport     []Row `json:"viewport"`
}

// Contains reports whether the absolute row index lies inside the viewport.
func (r *Repeater) Contains(index int) bool {
	return index >= r.Offset && index < r.Offset+len(r.Viewport)
}

// End returns the first absolute index after the materialized viewport.
func (r *Repeater) End() int {
	return r.Offset + len(r.Viewport)
}

// Row returns the materialized row at the absolute index.
func (r *Repeater) Row(index int) (Row, bool) {
	if !r.Contains(index) {
		return Row{}, false
	}
	return r.Viewport[index-r.Offset], true
}

// Row is one materialized repeater row.
type Row struct {
	Index  int               `json:"index"`
	Values map[string]string `json:"values"`
}

// FieldError is a business-rule rejection reported for a field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}
