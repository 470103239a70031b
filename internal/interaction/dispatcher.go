// Package interaction sends UI interactions to a session and resolves the
// application's polymorphic answer: nothing, a new page, a dialog, or no answer
// within the timeout.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/formload/internal/uiclient"
)

// Policy decides how dialogs raised by field writes are answered.
type Policy struct {
	// DismissWarnings allows advisory warnings to be acknowledged when the
	// call site opts in with WriteOptions.IgnoreWarning (default: true).
	DismissWarnings *bool

	// WarningLabel is the button that acknowledges a warning (default: "OK").
	WarningLabel string

	// ConfirmLabel is the button that accepts a prompt (default: "OK").
	ConfirmLabel string
}

// Config configures a Dispatcher.
type Config struct {
	// Timeout bounds every remote call (default: 60s).
	Timeout time.Duration

	// WriteDelay is the pause applied by WriteFieldWithDelay.
	WriteDelay time.Duration

	Policy Policy
}

// DefaultConfig returns the defaults used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Timeout:    60 * time.Second,
		WriteDelay: 100 * time.Millisecond,
		Policy: Policy{
			DismissWarnings: boolPtr(true),
			WarningLabel:    "OK",
			ConfirmLabel:    "OK",
		},
	}
}

// Dispatcher issues interactions against sessions. It holds no per-session
// state and is safe for concurrent use across sessions.
type Dispatcher struct {
	config Config
	logger *zap.Logger
}

// NewDispatcher creates a dispatcher. Zero fields in config take defaults.
func NewDispatcher(config Config, logger *zap.Logger) *Dispatcher {
	def := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.Policy.DismissWarnings == nil {
		config.Policy.DismissWarnings = def.Policy.DismissWarnings
	}
	if config.Policy.WarningLabel == "" {
		config.Policy.WarningLabel = def.Policy.WarningLabel
	}
	if config.Policy.ConfirmLabel == "" {
		config.Policy.ConfirmLabel = def.Policy.ConfirmLabel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{config: config, logger: logger}
}

func boolPtr(b bool) *bool { return &b }

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.config
}

// send performs one bounded remote call.
func (d *Dispatcher) send(ctx context.Context, s uiclient.Session, in uiclient.Interaction) (*uiclient.Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, d.config.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := s.Invoke(callCtx, in)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			after := d.config.Timeout
			if callCtx.Err() == nil {
				// A shorter transport deadline fired first.
				after = elapsed
			}
			err = &TimeoutError{Interaction: in, After: after}
		}
		d.logger.Debug("interaction failed",
			zap.String("session", s.ID()),
			zap.Stringer("interaction", in),
			zap.Duration("duration", elapsed),
			zap.Error(err))
		return nil, err
	}
	if resp == nil {
		resp = &uiclient.Response{}
	}

	d.logger.Debug("interaction",
		zap.String("session", s.ID()),
		zap.Stringer("interaction", in),
		zap.Duration("duration", elapsed))
	return resp, nil
}

// OpenPage opens a page by id and requires a page to open.
func (d *Dispatcher) OpenPage(ctx context.Context, s uiclient.Session, pageID int) (*uiclient.Form, error) {
	resp, err := d.send(ctx, s, uiclient.Interaction{Kind: uiclient.OpenForm, PageID: pageID})
	if err != nil {
		return nil, err
	}
	res := classify(resp, nil)
	if res.Kind != ResultNewPage {
		return nil, &UnexpectedResponseError{Action: fmt.Sprintf("open page %d", pageID), Want: ResultNewPage, Got: res.Kind, Opened: res.Form}
	}
	return res.Form, nil
}

// InvokeAction invokes an action on a form and classifies the answer.
//
// A timeout yields ResultTimedOut together with a *TimeoutError.
func (d *Dispatcher) InvokeAction(ctx context.Context, s uiclient.Session, form *uiclient.Form, action string) (ActionResult, error) {
	return d.invoke(ctx, s, form, uiclient.Interaction{Kind: uiclient.InvokeAction, FormID: form.ID, Action: action})
}

// InvokeRowAction invokes an action scoped to a repeater row.
func (d *Dispatcher) InvokeRowAction(ctx context.Context, s uiclient.Session, form *uiclient.Form, row int, action string) (ActionResult, error) {
	return d.invoke(ctx, s, form, uiclient.Interaction{Kind: uiclient.InvokeAction, FormID: form.ID, InRow: true, Row: row, Action: action})
}

func (d *Dispatcher) invoke(ctx context.Context, s uiclient.Session, form *uiclient.Form, in uiclient.Interaction) (ActionResult, error) {
	resp, err := d.send(ctx, s, in)
	if err != nil {
		if errors.Is(err, ErrTimeout) {
			return ActionResult{Kind: ResultTimedOut, Source: form}, err
		}
		return ActionResult{Source: form}, err
	}
	return classify(resp, form), nil
}

// InvokeExpectingDialog invokes an action that should raise a dialog.
//
// When no dialog appears the error is an *UnexpectedResponseError; callers
// decide whether that absence is a legitimate business variation.
func (d *Dispatcher) InvokeExpectingDialog(ctx context.Context, s uiclient.Session, form *uiclient.Form, action string) (*uiclient.Form, error) {
	return d.expect(ctx, s, form, action, ResultDialog)
}

// InvokeExpectingForm invokes an action that should open a page.
func (d *Dispatcher) InvokeExpectingForm(ctx context.Context, s uiclient.Session, form *uiclient.Form, action string) (*uiclient.Form, error) {
	return d.expect(ctx, s, form, action, ResultNewPage)
}

func (d *Dispatcher) expect(ctx context.Context, s uiclient.Session, form *uiclient.Form, action string, want ResultKind) (*uiclient.Form, error) {
	res, err := d.InvokeAction(ctx, s, form, action)
	if err != nil {
		return nil, err
	}
	if res.Kind != want {
		return nil, &UnexpectedResponseError{Action: action, Want: want, Got: res.Kind, Opened: res.Form}
	}
	return res.Form, nil
}

// Activate moves focus to a control. Activating the new-line row of a
// repeater creates the row.
func (d *Dispatcher) Activate(ctx context.Context, s uiclient.Session, ref ControlRef) (*uiclient.Form, error) {
	resp, err := d.send(ctx, s, ref.interaction(uiclient.Activate))
	if err != nil {
		return nil, err
	}
	return latest(resp, ref.Form), nil
}

// Lookup opens the lookup behind a field.
func (d *Dispatcher) Lookup(ctx context.Context, s uiclient.Session, ref ControlRef) (*uiclient.Form, error) {
	resp, err := d.send(ctx, s, ref.interaction(uiclient.Lookup))
	if err != nil {
		return nil, err
	}
	res := classify(resp, ref.Form)
	if res.Kind != ResultNewPage {
		return nil, &UnexpectedResponseError{Action: "lookup " + ref.Control, Want: ResultNewPage, Got: res.Kind, Opened: res.Form}
	}
	return res.Form, nil
}

// ValidateForm asks the application to validate the whole form. Any reported
// field error yields a *ValidationError.
func (d *Dispatcher) ValidateForm(ctx context.Context, s uiclient.Session, form *uiclient.Form) (*uiclient.Form, error) {
	resp, err := d.send(ctx, s, uiclient.Interaction{Kind: uiclient.Validate, FormID: form.ID})
	if err != nil {
		return nil, err
	}
	fresh := latest(resp, form)
	if len(fresh.Errors) > 0 {
		return fresh, &ValidationError{Form: fresh, Errors: fresh.Errors}
	}
	return fresh, nil
}

// ClosePage closes a page, lookup or dialog.
func (d *Dispatcher) ClosePage(ctx context.Context, s uiclient.Session, form *uiclient.Form) error {
	_, err := d.send(ctx, s, uiclient.Interaction{Kind: uiclient.CloseForm, FormID: form.ID})
	return err
}

// Think waits for d or until ctx is done.
func (d *Dispatcher) Think(ctx context.Context, dur time.Duration) error {
	if dur <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
