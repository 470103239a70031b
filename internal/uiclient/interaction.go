package uiclient

import "fmt"

// InteractionKind identifies the operation carried by an Interaction.
type InteractionKind string

const (
	OpenForm       InteractionKind = "open-form"
	InvokeAction   InteractionKind = "invoke-action"
	Activate       InteractionKind = "activate"
	SaveValue      InteractionKind = "save-value"
	Lookup         InteractionKind = "lookup"
	ScrollRepeater InteractionKind = "scroll-repeater"
	Validate       InteractionKind = "validate"
	CloseForm      InteractionKind = "close-form"
)

// Interaction is a single request sent to a session.
type Interaction struct {
	Kind    InteractionKind `json:"kind"`
	FormID  string          `json:"formId,omitempty"`
	PageID  int             `json:"pageId,omitempty"`
	InRow   bool            `json:"inRow,omitempty"`
	Row     int             `json:"row,omitempty"`
	Control string          `json:"control,omitempty"`
	Action  string          `json:"action,omitempty"`
	Value   string          `json:"value,omitempty"`
	Delta   int             `json:"delta,omitempty"`
}

func (in Interaction) String() string {
	target := in.FormID
	if in.Kind == OpenForm {
		target = fmt.Sprintf("page %d", in.PageID)
	}
	if in.Control != "" {
		if in.InRow {
			target += fmt.Sprintf("/row %d/%s", in.Row, in.Control)
		} else {
			target += "/" + in.Control
		}
	}
	if in.Action != "" {
		target += "!" + in.Action
	}
	return string(in.Kind) + " " + target
}

// Response is what the application reports back for one interaction.
type Response struct {
	// Forms holds fresh snapshots of every form the interaction touched.
	Forms []*Form `json:"forms,omitempty"`

	// Opened is set when the interaction opened a page, dialog or lookup.
	Opened *Form `json:"opened,omitempty"`

	// Closed lists forms closed as a consequence of the interaction.
	Closed []string `json:"closed,omitempty"`
}

// Form returns the snapshot for id carried by the response, if any.
func (r *Response) Form(id string) (*Form, bool) {
	if r == nil {
		return nil, false
	}
	for _, f := range r.Forms {
		if f.ID == id {
			return f, true
		}
	}
	if r.Opened != nil && r.Opened.ID == id {
		return r.Opened, true
	}
	return nil, false
}

// WasClosed reports whether the response closed the given form.
func (r *Response) WasClosed(id string) bool {
	if r == nil {
		return false
	}
	for _, c := range r.Closed {
		if c == id {
			return true
		}
	}
	return false
}
