package session

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/wesleyorama2/formload/internal/uiclient"
)

// OpenForm is a form the handle has seen opened and not yet closed.
type OpenForm struct {
	ID   string
	Kind uiclient.FormKind
}

// Handle wraps a remote session. It remembers which forms are open so a
// runner can sweep them, and refuses every call once closed.
//
// A call that runs out of time leaves the remote state unknown: the
// application may still open a form the handle never hears about. Such a
// handle is stale and the manager replaces it on the next Acquire.
type Handle struct {
	id     string
	actor  string
	remote uiclient.Session

	mu     sync.Mutex
	closed bool
	stale  bool
	open   []OpenForm
}

func newHandle(actor string, remote uiclient.Session) *Handle {
	id := remote.ID()
	if id == "" {
		id = uuid.NewString()
	}
	return &Handle{id: id, actor: actor, remote: remote}
}

// ID returns the session id.
func (h *Handle) ID() string { return h.id }

// Actor returns the actor the session belongs to.
func (h *Handle) Actor() string { return h.actor }

// RoleCenter returns the landing page.
func (h *Handle) RoleCenter() *uiclient.Form { return h.remote.RoleCenter() }

// Closed reports whether the handle has been closed.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Invoke forwards in and records forms opened or closed by the answer.
func (h *Handle) Invoke(ctx context.Context, in uiclient.Interaction) (*uiclient.Response, error) {
	if h.Closed() {
		return nil, ErrSessionClosed
	}
	resp, err := h.remote.Invoke(ctx, in)
	if err != nil {
		if errors.Is(err, uiclient.ErrSessionClosed) {
			h.markClosed()
			return nil, ErrSessionClosed
		}
		if errors.Is(err, context.DeadlineExceeded) {
			h.mu.Lock()
			h.stale = true
			h.mu.Unlock()
		}
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if resp.Opened != nil {
		h.open = append(h.open, OpenForm{ID: resp.Opened.ID, Kind: resp.Opened.Kind})
	}
	for _, id := range resp.Closed {
		h.forget(id)
	}
	if in.Kind == uiclient.CloseForm {
		h.forget(in.FormID)
	}
	return resp, nil
}

// Stale reports whether a call timed out, leaving forms the handle may not
// know about.
func (h *Handle) Stale() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stale
}

// OpenForms returns the forms still open, most recently opened first.
func (h *Handle) OpenForms() []OpenForm {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]OpenForm, 0, len(h.open))
	for i := len(h.open) - 1; i >= 0; i-- {
		out = append(out, h.open[i])
	}
	return out
}

// Close ends the remote session. A second Close returns ErrSessionClosed.
func (h *Handle) Close(ctx context.Context) error {
	if !h.markClosed() {
		return ErrSessionClosed
	}
	if err := h.remote.Close(ctx); err != nil && !errors.Is(err, uiclient.ErrSessionClosed) {
		return err
	}
	return nil
}

// markClosed flips the handle to closed and reports whether it was open.
func (h *Handle) markClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.closed = true
	h.open = nil
	return true
}

func (h *Handle) forget(id string) {
	for i, f := range h.open {
		if f.ID == id {
			h.open = append(h.open[:i], h.open[i+1:]...)
			return
		}
	}
}

var _ uiclient.Session = (*Handle)(nil)
