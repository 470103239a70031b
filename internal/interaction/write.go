package interaction

import (
	"context"

	"go.uber.org/zap"

	"github.com/wesleyorama2/formload/internal/uiclient"
)

// WriteOptions lets a call site opt in to answering dialogs raised by a write.
// The button labels come from the dispatcher Policy, never from the call site.
type WriteOptions struct {
	// IgnoreWarning acknowledges an advisory warning, provided the policy
	// allows warnings to be dismissed.
	IgnoreWarning bool

	// ConfirmPrompt accepts a prompt with Policy.ConfirmLabel.
	ConfirmPrompt bool
}

// WriteField saves value into the addressed control and returns the freshest
// snapshot of the owning form.
//
// Dialogs raised by the write are answered according to opts and the policy:
// warnings are acknowledged only when both opt in, prompts are accepted only
// when the call site asks for it, and error dialogs are dismissed and reported
// as a *ValidationError. Anything else leaves the dialog open and returns an
// *UnhandledDialogError.
func (d *Dispatcher) WriteField(ctx context.Context, s uiclient.Session, ref ControlRef, value string, opts WriteOptions) (*uiclient.Form, error) {
	in := ref.interaction(uiclient.SaveValue)
	in.Value = value

	resp, err := d.send(ctx, s, in)
	if err != nil {
		return nil, err
	}
	form := latest(resp, ref.Form)

	if dlg := resp.Opened; dlg != nil && dlg.Kind == uiclient.KindDialog {
		var label string
		switch {
		case dlg.Style == uiclient.DialogWarning && opts.IgnoreWarning && *d.config.Policy.DismissWarnings:
			label = d.config.Policy.WarningLabel
			d.logger.Info("acknowledging advisory warning",
				zap.String("session", s.ID()),
				zap.String("control", ref.Control),
				zap.String("message", dlg.Message))
		case dlg.Style == uiclient.DialogConfirm && opts.ConfirmPrompt && dlg.HasAction(d.config.Policy.ConfirmLabel):
			label = d.config.Policy.ConfirmLabel
		case dlg.Style == uiclient.DialogError && len(dlg.Actions) > 0:
			if _, err := d.send(ctx, s, uiclient.Interaction{Kind: uiclient.InvokeAction, FormID: dlg.ID, Action: dlg.Actions[0]}); err != nil {
				return form, err
			}
			return form, &ValidationError{Form: form, Errors: []uiclient.FieldError{{Field: ref.Control, Message: dlg.Message}}}
		default:
			return form, &UnhandledDialogError{Control: ref.Control, Dialog: dlg}
		}

		answer, err := d.send(ctx, s, uiclient.Interaction{Kind: uiclient.InvokeAction, FormID: dlg.ID, Action: label})
		if err != nil {
			return form, err
		}
		form = latest(answer, form)
	}

	for _, fe := range form.Errors {
		if fe.Field == ref.Control {
			return form, &ValidationError{Form: form, Errors: []uiclient.FieldError{fe}}
		}
	}
	return form, nil
}

// WriteFieldWithDelay writes the value, then pauses for the configured write
// delay to model a user moving between fields.
func (d *Dispatcher) WriteFieldWithDelay(ctx context.Context, s uiclient.Session, ref ControlRef, value string, opts WriteOptions) (*uiclient.Form, error) {
	form, err := d.WriteField(ctx, s, ref, value, opts)
	if err != nil {
		return form, err
	}
	return form, d.Think(ctx, d.config.WriteDelay)
}
