package interaction

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wesleyorama2/formload/internal/uiclient"
)

var (
	// ErrTimeout is matched by every TimeoutError.
	ErrTimeout = errors.New("interaction: timed out")

	// ErrUnexpectedResponse is matched by every UnexpectedResponseError.
	ErrUnexpectedResponse = errors.New("interaction: unexpected response")

	// ErrValidation is matched by every ValidationError.
	ErrValidation = errors.New("interaction: validation failed")

	// ErrUnhandledDialog is matched by every UnhandledDialogError.
	ErrUnhandledDialog = errors.New("interaction: unhandled dialog")

	// ErrNoRepeater is returned when a form has no repeater to scroll.
	ErrNoRepeater = errors.New("interaction: form has no repeater")

	// ErrNoSuchControl is returned when a control cannot be read from a snapshot.
	ErrNoSuchControl = fmt.Errorf("interaction: no such control: %w", uiclient.ErrNotFound)
)

// TimeoutError reports an interaction that exceeded the dispatcher timeout.
// It is terminal for the call and never retried by the dispatcher.
type TimeoutError struct {
	Interaction uiclient.Interaction
	After       time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("interaction: %s timed out after %v", e.Interaction, e.After)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// UnexpectedResponseError reports that an invocation resolved to a different
// branch than the caller required.
type UnexpectedResponseError struct {
	Action string
	Want   ResultKind
	Got    ResultKind
	Opened *uiclient.Form
}

func (e *UnexpectedResponseError) Error() string {
	msg := fmt.Sprintf("interaction: %q expected %s, got %s", e.Action, e.Want, e.Got)
	if e.Opened != nil {
		msg += " (" + e.Opened.String() + ")"
	}
	return msg
}

func (e *UnexpectedResponseError) Is(target error) bool { return target == ErrUnexpectedResponse }

// ValidationError carries business-rule rejections reported by the application.
type ValidationError struct {
	Form   *uiclient.Form
	Errors []uiclient.FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.String())
	}
	return fmt.Sprintf("interaction: validation failed on %s: %s", e.Form, strings.Join(parts, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// UnhandledDialogError reports a dialog raised by a write that the caller did
// not opt in to answering. The dialog stays open.
type UnhandledDialogError struct {
	Control string
	Dialog  *uiclient.Form
}

func (e *UnhandledDialogError) Error() string {
	return fmt.Sprintf("interaction: writing %q raised %s dialog %q", e.Control, e.Dialog.Style, e.Dialog.Message)
}

func (e *UnhandledDialogError) Is(target error) bool { return target == ErrUnhandledDialog }
