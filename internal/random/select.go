package random

import (
	"context"
	"errors"
	"fmt"

	"github.com/wesleyorama2/formload/internal/interaction"
	"github.com/wesleyorama2/formload/internal/uiclient"
)

// ErrNotFound is returned when there is no row to select from.
var ErrNotFound = errors.New("random: no row to select")

// Selector picks random records from list pages and lookups.
type Selector struct {
	dispatcher *interaction.Dispatcher
	source     *Source
}

// NewSelector creates a selector.
func NewSelector(d *interaction.Dispatcher, src *Source) *Selector {
	return &Selector{dispatcher: d, source: src}
}

// SelectRandomRowFromList opens the list page, returns column of one
// materialized row picked uniformly, and closes the page again.
func (sel *Selector) SelectRandomRowFromList(ctx context.Context, s uiclient.Session, pageID int, column string) (string, error) {
	list, err := sel.dispatcher.OpenPage(ctx, s, pageID)
	if err != nil {
		return "", fmt.Errorf("open list page %d: %w", pageID, err)
	}
	value, pickErr := sel.pick(list, column)
	if err := sel.dispatcher.ClosePage(ctx, s, list); err != nil && pickErr == nil {
		return "", fmt.Errorf("close list page %d: %w", pageID, err)
	}
	return value, pickErr
}

// SelectRandomRowFromLookup opens the lookup behind a field, returns column of
// one row picked uniformly, and closes the lookup without selecting.
func (sel *Selector) SelectRandomRowFromLookup(ctx context.Context, s uiclient.Session, ref interaction.ControlRef, column string) (string, error) {
	lookup, err := sel.dispatcher.Lookup(ctx, s, ref)
	if err != nil {
		return "", fmt.Errorf("lookup %s: %w", ref, err)
	}
	value, pickErr := sel.pick(lookup, column)
	if err := sel.dispatcher.ClosePage(ctx, s, lookup); err != nil && pickErr == nil {
		return "", fmt.Errorf("close lookup %s: %w", ref, err)
	}
	return value, pickErr
}

// PickRow returns the values of one materialized row of form picked uniformly.
func (sel *Selector) PickRow(form *uiclient.Form) (uiclient.Row, error) {
	if form.Repeater == nil || len(form.Repeater.Viewport) == 0 {
		return uiclient.Row{}, fmt.Errorf("%w on %s", ErrNotFound, form)
	}
	rows := form.Repeater.Viewport
	return rows[sel.source.Intn(len(rows))], nil
}

func (sel *Selector) pick(form *uiclient.Form, column string) (string, error) {
	row, err := sel.PickRow(form)
	if err != nil {
		return "", err
	}
	value, ok := row.Values[column]
	if !ok {
		return "", fmt.Errorf("%w: column %q missing on %s", ErrNotFound, column, form)
	}
	return value, nil
}
