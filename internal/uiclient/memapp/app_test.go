package memapp

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/formload/internal/uiclient"
)

func invoke(t *testing.T, s *Session, in uiclient.Interaction) *uiclient.Response {
	t.Helper()
	resp, err := s.Invoke(context.Background(), in)
	require.NoError(t, err, in.String())
	return resp
}

func TestAuthenticate(t *testing.T) {
	app := New(Options{
		Users:   map[string]string{"admin": "secret"},
		Tenants: []string{"default"},
	})

	tests := []struct {
		name    string
		creds   uiclient.Credentials
		wantErr bool
	}{
		{"password ok", uiclient.Credentials{Scheme: uiclient.AuthPassword, Username: "admin", Password: "secret"}, false},
		{"wrong password", uiclient.Credentials{Username: "admin", Password: "nope"}, true},
		{"tenant ok", uiclient.Credentials{Scheme: uiclient.AuthTenant, Tenant: "default", Username: "admin", Password: "secret"}, false},
		{"unknown tenant", uiclient.Credentials{Scheme: uiclient.AuthTenant, Tenant: "other", Username: "admin", Password: "secret"}, true},
		{"integrated", uiclient.Credentials{Scheme: uiclient.AuthIntegrated, Username: "operator"}, false},
		{"integrated without identity", uiclient.Credentials{Scheme: uiclient.AuthIntegrated}, true},
		{"wrong role center", uiclient.Credentials{Username: "admin", Password: "secret", RoleCenterID: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := app.OpenSession(context.Background(), tt.creds)
			if (err != nil) != tt.wantErr {
				t.Errorf("OpenSession() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSession_ModalDialogBlocksOtherForms(t *testing.T) {
	app := New(DefaultOptions())
	s, err := app.Open(context.Background(), uiclient.Credentials{Username: "admin"})
	require.NoError(t, err)

	order := invoke(t, s, uiclient.Interaction{Kind: uiclient.OpenForm, PageID: PageSalesOrder}).Opened
	dlg := invoke(t, s, uiclient.Interaction{Kind: uiclient.InvokeAction, FormID: order.ID, Action: "Post..."}).Opened
	require.Equal(t, uiclient.KindDialog, dlg.Kind)
	require.Equal(t, uiclient.DialogError, dlg.Style)

	_, err = s.Invoke(context.Background(), uiclient.Interaction{Kind: uiclient.CloseForm, FormID: order.ID})
	var rej *uiclient.RejectedError
	assert.ErrorAs(t, err, &rej)

	resp := invoke(t, s, uiclient.Interaction{Kind: uiclient.InvokeAction, FormID: dlg.ID, Action: "OK"})
	assert.True(t, resp.WasClosed(dlg.ID))
	invoke(t, s, uiclient.Interaction{Kind: uiclient.CloseForm, FormID: order.ID})
	assert.Empty(t, s.OpenForms())
}

func TestSession_PostChain(t *testing.T) {
	app := New(DefaultOptions())
	s, err := app.Open(context.Background(), uiclient.Credentials{Username: "admin"})
	require.NoError(t, err)
	cust := app.opts.Catalog.Customers[0]

	order := invoke(t, s, uiclient.Interaction{Kind: uiclient.InvokeAction, FormID: s.RoleCenter().ID, Action: "Sales Order"}).Opened
	invoke(t, s, uiclient.Interaction{Kind: uiclient.SaveValue, FormID: order.ID, Control: "Customer Name", Value: cust.Name})
	invoke(t, s, uiclient.Interaction{Kind: uiclient.Activate, FormID: order.ID, InRow: true, Row: 0, Control: "Type"})
	invoke(t, s, uiclient.Interaction{Kind: uiclient.SaveValue, FormID: order.ID, InRow: true, Row: 0, Control: "Type", Value: "Item"})
	invoke(t, s, uiclient.Interaction{Kind: uiclient.SaveValue, FormID: order.ID, InRow: true, Row: 0, Control: "No.", Value: "1001"})
	resp := invoke(t, s, uiclient.Interaction{Kind: uiclient.SaveValue, FormID: order.ID, InRow: true, Row: 0, Control: "Quantity", Value: "3"})
	row, ok := resp.Forms[0].Repeater.Row(0)
	require.True(t, ok)
	assert.Equal(t, "Item 1", row.Values["Description"])
	assert.Equal(t, 1, app.RowsAppended())

	confirm := invoke(t, s, uiclient.Interaction{Kind: uiclient.InvokeAction, FormID: order.ID, Action: "Post..."}).Opened
	require.Equal(t, uiclient.DialogConfirm, confirm.Style)
	assert.Equal(t, []string{"OK", "Cancel"}, confirm.Actions)

	resp = invoke(t, s, uiclient.Interaction{Kind: uiclient.InvokeAction, FormID: confirm.ID, Action: "OK"})
	assert.True(t, resp.WasClosed(confirm.ID))
	openInvoice := resp.Opened
	require.NotNil(t, openInvoice)
	assert.Equal(t, []string{"Yes", "No"}, openInvoice.Actions)

	invoice := invoke(t, s, uiclient.Interaction{Kind: uiclient.InvokeAction, FormID: openInvoice.ID, Action: "Yes"}).Opened
	require.NotNil(t, invoice)
	assert.Equal(t, PagePostedInvoice, invoice.PageID)
	assert.Equal(t, "PSI000001", invoice.Fields["No."])
	assert.Equal(t, []string{order.Fields["No."]}, app.PostedOrders())

	_, err = s.Invoke(context.Background(), uiclient.Interaction{Kind: uiclient.SaveValue, FormID: order.ID, Control: "External Document No.", Value: "x"})
	assert.Error(t, err, "posted orders are read-only")
}

func TestSession_Calls(t *testing.T) {
	app := New(DefaultOptions())
	s, err := app.Open(context.Background(), uiclient.Credentials{Username: "admin"})
	require.NoError(t, err)

	list := invoke(t, s, uiclient.Interaction{Kind: uiclient.OpenForm, PageID: PageItemList}).Opened
	invoke(t, s, uiclient.Interaction{Kind: uiclient.ScrollRepeater, FormID: list.ID, Delta: 1})
	invoke(t, s, uiclient.Interaction{Kind: uiclient.CloseForm, FormID: list.ID})

	assert.Equal(t, 1, app.Calls(uiclient.OpenForm, ""))
	assert.Equal(t, 1, app.Calls(uiclient.ScrollRepeater, ""))
	assert.Equal(t, 0, app.Calls(uiclient.SaveValue, "Quantity"))
}

func TestSession_Close(t *testing.T) {
	app := New(DefaultOptions())
	s, err := app.Open(context.Background(), uiclient.Credentials{Username: "admin"})
	require.NoError(t, err)
	assert.Equal(t, 1, app.OpenSessions())

	require.NoError(t, s.Close(context.Background()))
	assert.ErrorIs(t, s.Close(context.Background()), uiclient.ErrSessionClosed)
	_, err = s.Invoke(context.Background(), uiclient.Interaction{Kind: uiclient.OpenForm, PageID: PageItemList})
	assert.ErrorIs(t, err, uiclient.ErrSessionClosed)
	assert.Equal(t, 0, app.OpenSessions())
}
