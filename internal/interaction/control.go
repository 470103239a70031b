package interaction

import (
	"fmt"

	"github.com/wesleyorama2/formload/internal/uiclient"
)

// ControlRef addresses a control on a form, either in the header or in a
// repeater row identified by its absolute index.
type ControlRef struct {
	Form    *uiclient.Form
	Control string
	InRow   bool
	Row     int
}

// Field addresses a header control.
func Field(form *uiclient.Form, control string) ControlRef {
	return ControlRef{Form: form, Control: control}
}

// RowField addresses a control in repeater row index.
func RowField(form *uiclient.Form, index int, control string) ControlRef {
	return ControlRef{Form: form, Control: control, InRow: true, Row: index}
}

func (r ControlRef) String() string {
	if r.InRow {
		return fmt.Sprintf("%s row %d %q", r.Form.ID, r.Row, r.Control)
	}
	return fmt.Sprintf("%s %q", r.Form.ID, r.Control)
}

func (r ControlRef) interaction(kind uiclient.InteractionKind) uiclient.Interaction {
	return uiclient.Interaction{
		Kind:    kind,
		FormID:  r.Form.ID,
		InRow:   r.InRow,
		Row:     r.Row,
		Control: r.Control,
	}
}

// ReadField reads a control value from a snapshot.
func ReadField(form *uiclient.Form, ref ControlRef) (string, error) {
	if !ref.InRow {
		if v, ok := form.Field(ref.Control); ok {
			return v, nil
		}
		return "", fmt.Errorf("%w: %s", ErrNoSuchControl, ref)
	}
	if form.Repeater == nil {
		return "", ErrNoRepeater
	}
	row, ok := form.Repeater.Row(ref.Row)
	if !ok {
		return "", fmt.Errorf("%w: row %d outside viewport", ErrNoSuchControl, ref.Row)
	}
	v, ok := row.Values[ref.Control]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoSuchControl, ref)
	}
	return v, nil
}
