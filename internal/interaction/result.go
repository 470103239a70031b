package interaction

import "github.com/wesleyorama2/formload/internal/uiclient"

// ResultKind tags the branch an action invocation resolved to.
type ResultKind int

const (
	// ResultNone means the application showed no new form.
	ResultNone ResultKind = iota
	// ResultNewPage means a page or lookup was opened.
	ResultNewPage
	// ResultDialog means a modal dialog was raised.
	ResultDialog
	// ResultTimedOut means no answer arrived within the dispatcher timeout.
	ResultTimedOut
)

func (k ResultKind) String() string {
	switch k {
	case ResultNone:
		return "no change"
	case ResultNewPage:
		return "new page"
	case ResultDialog:
		return "dialog"
	case ResultTimedOut:
		return "timeout"
	default:
		return "unknown"
	}
}

// ActionResult is the resolved outcome of one invocation.
type ActionResult struct {
	Kind ResultKind

	// Form is the page or dialog opened, nil for ResultNone and ResultTimedOut.
	Form *uiclient.Form

	// Source is the freshest snapshot of the form the action was invoked on.
	Source *uiclient.Form

	// Closed lists forms the application closed while answering.
	Closed []string
}

// classify turns a raw response into a tagged result.
func classify(resp *uiclient.Response, source *uiclient.Form) ActionResult {
	res := ActionResult{Kind: ResultNone, Source: latest(resp, source), Closed: resp.Closed}
	if resp.Opened == nil {
		return res
	}
	res.Form = resp.Opened
	if resp.Opened.Kind == uiclient.KindDialog {
		res.Kind = ResultDialog
	} else {
		res.Kind = ResultNewPage
	}
	return res
}

// latest returns the snapshot of current carried by resp, or current itself.
func latest(resp *uiclient.Response, current *uiclient.Form) *uiclient.Form {
	if current == nil {
		return nil
	}
	if f, ok := resp.Form(current.ID); ok {
		return f
	}
	return current
}
