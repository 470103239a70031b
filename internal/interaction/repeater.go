package interaction

import (
	"context"
	"fmt"

	"github.com/wesleyorama2/formload/internal/uiclient"
)

// ScrollRepeater moves the repeater window of form by pages viewports
// (negative scrolls back) and returns the re-materialized snapshot.
func (d *Dispatcher) ScrollRepeater(ctx context.Context, s uiclient.Session, form *uiclient.Form, pages int) (*uiclient.Form, error) {
	if form.Repeater == nil {
		return nil, ErrNoRepeater
	}
	resp, err := d.send(ctx, s, uiclient.Interaction{Kind: uiclient.ScrollRepeater, FormID: form.ID, Delta: pages})
	if err != nil {
		return nil, err
	}
	fresh := latest(resp, form)
	if fresh.Repeater == nil {
		return nil, ErrNoRepeater
	}
	return fresh, nil
}

// EnsureRowVisible scrolls until the absolute row index lies inside
// [Offset, Offset+len(Viewport)) and returns that snapshot. Viewport bounds are
// re-read after every scroll.
func (d *Dispatcher) EnsureRowVisible(ctx context.Context, s uiclient.Session, form *uiclient.Form, index int) (*uiclient.Form, error) {
	if form.Repeater == nil {
		return nil, ErrNoRepeater
	}
	for !form.Repeater.Contains(index) {
		pages := 1
		if index < form.Repeater.Offset {
			pages = -1
		}
		next, err := d.ScrollRepeater(ctx, s, form, pages)
		if err != nil {
			return nil, err
		}
		if next.Repeater.Offset == form.Repeater.Offset && !next.Repeater.Contains(index) {
			return nil, fmt.Errorf("%w: row %d unreachable, viewport stuck at [%d,%d)",
				uiclient.ErrNotFound, index, next.Repeater.Offset, next.Repeater.End())
		}
		form = next
	}
	return form, nil
}
