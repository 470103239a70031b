package session

import (
	"context"
	"errors"
	"os/user"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/formload/internal/uiclient"
	"github.com/wesleyorama2/formload/internal/uiclient/memapp"
)

func newManager(t *testing.T, opts memapp.Options) (*Manager, *memapp.App) {
	t.Helper()
	app := memapp.New(opts)
	return NewManager(app, PasswordAuth{Username: "admin", Password: "secret"}, nil), app
}

func TestAcquire_AffinePerActor(t *testing.T) {
	m, app := newManager(t, memapp.DefaultOptions())
	ctx := context.Background()

	first, err := m.Acquire(ctx, "order/vu-1")
	require.NoError(t, err)
	id := first.Session().ID()
	first.Release()

	again, err := m.Acquire(ctx, "order/vu-1")
	require.NoError(t, err)
	assert.Equal(t, id, again.Session().ID(), "same actor must get the same session")
	again.Release()

	other, err := m.Acquire(ctx, "order/vu-2")
	require.NoError(t, err)
	assert.NotEqual(t, id, other.Session().ID())
	other.Release()

	assert.Equal(t, 2, m.Len())
	assert.Equal(t, 2, app.OpenSessions())
}

func TestAcquire_ExclusiveUntilRelease(t *testing.T) {
	m, _ := newManager(t, memapp.DefaultOptions())

	lease, err := m.Acquire(context.Background(), "vu")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx, "vu")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	lease.Release()
	lease.Release() // idempotent

	next, err := m.Acquire(context.Background(), "vu")
	require.NoError(t, err)
	next.Release()
}

func TestAcquire_ConcurrentFirstUseOpensOnce(t *testing.T) {
	m, app := newManager(t, memapp.DefaultOptions())

	var wg sync.WaitGroup
	ids := make([]string, 10)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			lease, err := m.Acquire(context.Background(), "shared")
			if !assert.NoError(t, err) {
				return
			}
			ids[i] = lease.Session().ID()
			lease.Release()
		}(i)
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Equal(t, 1, app.OpenSessions())
}

func TestAcquire_AuthenticationFailureIsNotCached(t *testing.T) {
	opts := memapp.DefaultOptions()
	opts.Users = map[string]string{"admin": "secret"}
	app := memapp.New(opts)

	bad := NewManager(app, PasswordAuth{Username: "admin", Password: "wrong"}, nil)
	_, err := bad.Acquire(context.Background(), "vu")
	require.ErrorIs(t, err, uiclient.ErrAuthentication)
	assert.Equal(t, 0, bad.Len())

	good := NewManager(app, PasswordAuth{Username: "admin", Password: "secret"}, nil)
	lease, err := good.Acquire(context.Background(), "vu")
	require.NoError(t, err)
	lease.Release()
}

func TestCloseAll(t *testing.T) {
	m, app := newManager(t, memapp.DefaultOptions())
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "vu-1")
	require.NoError(t, err)
	handle := lease.Session()
	lease.Release()
	_, err = m.Acquire(ctx, "vu-2")
	require.NoError(t, err)

	require.NoError(t, m.CloseAll(ctx))
	assert.Equal(t, 0, app.OpenSessions())

	_, err = handle.Invoke(ctx, uiclient.Interaction{Kind: uiclient.OpenForm, PageID: memapp.PageCustomerList})
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.ErrorIs(t, err, uiclient.ErrSessionClosed)

	_, err = m.Acquire(ctx, "vu-1")
	assert.ErrorIs(t, err, ErrManagerClosed)

	assert.NoError(t, m.CloseAll(ctx), "second CloseAll must be a no-op")
}

func TestCloseAll_SkipsSessionsAlreadyClosed(t *testing.T) {
	m, _ := newManager(t, memapp.DefaultOptions())
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "vu")
	require.NoError(t, err)
	require.NoError(t, lease.Session().Close(ctx))
	lease.Release()

	assert.NoError(t, m.CloseAll(ctx))
}

type failingClose struct{ uiclient.Session }

func (failingClose) Close(context.Context) error { return errors.New("connection reset") }

type wrapClient struct{ app *memapp.App }

func (c wrapClient) OpenSession(ctx context.Context, creds uiclient.Credentials) (uiclient.Session, error) {
	s, err := c.app.OpenSession(ctx, creds)
	if err != nil {
		return nil, err
	}
	return failingClose{s}, nil
}

func TestCloseAll_JoinsTransportErrors(t *testing.T) {
	app := memapp.New(memapp.DefaultOptions())
	m := NewManager(wrapClient{app}, PasswordAuth{Username: "admin"}, nil)
	ctx := context.Background()

	for _, actor := range []string{"a", "b"} {
		lease, err := m.Acquire(ctx, actor)
		require.NoError(t, err)
		lease.Release()
	}

	err := m.CloseAll(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, m.CloseAll(ctx))
}

func TestAcquire_ReopensSessionClosedByApplication(t *testing.T) {
	m, app := newManager(t, memapp.DefaultOptions())
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "vu")
	require.NoError(t, err)
	old := lease.Session()
	remote, ok := app.Session(old.ID())
	require.True(t, ok)
	require.NoError(t, remote.Close(ctx))

	_, err = old.Invoke(ctx, uiclient.Interaction{Kind: uiclient.OpenForm, PageID: memapp.PageItemList})
	require.ErrorIs(t, err, ErrSessionClosed)
	lease.Release()

	fresh, err := m.Acquire(ctx, "vu")
	require.NoError(t, err)
	assert.NotEqual(t, old.ID(), fresh.Session().ID())
	fresh.Release()
}

// lateReply applies every call on the application but answers the client as
// if its deadline had passed first.
type lateReply struct{ uiclient.Session }

func (s lateReply) Invoke(_ context.Context, in uiclient.Interaction) (*uiclient.Response, error) {
	if _, err := s.Session.Invoke(context.Background(), in); err != nil {
		return nil, err
	}
	return nil, context.DeadlineExceeded
}

type lateClient struct {
	app  *memapp.App
	late bool
}

func (c *lateClient) OpenSession(ctx context.Context, creds uiclient.Credentials) (uiclient.Session, error) {
	s, err := c.app.OpenSession(ctx, creds)
	if err != nil || !c.late {
		return s, err
	}
	return lateReply{s}, nil
}

func TestAcquire_ReplacesSessionAfterTimeout(t *testing.T) {
	app := memapp.New(memapp.DefaultOptions())
	client := &lateClient{app: app, late: true}
	m := NewManager(client, PasswordAuth{Username: "admin"}, nil)
	ctx := context.Background()
	defer m.CloseAll(ctx)

	lease, err := m.Acquire(ctx, "vu")
	require.NoError(t, err)
	old := lease.Session()

	// The order page opens on the application, but the reply never arrives.
	_, err = old.Invoke(ctx, uiclient.Interaction{Kind: uiclient.OpenForm, PageID: memapp.PageSalesOrder})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, old.Stale())
	assert.Empty(t, old.OpenForms(), "the late form is unknown to the handle")
	remote, ok := app.Session(old.ID())
	require.True(t, ok)
	assert.Len(t, remote.OpenForms(), 1)
	lease.Release()

	client.late = false
	fresh, err := m.Acquire(ctx, "vu")
	require.NoError(t, err)
	defer fresh.Release()
	assert.NotEqual(t, old.ID(), fresh.Session().ID())
	assert.False(t, fresh.Session().Stale())
	assert.True(t, old.Closed(), "the stale session is closed")
	assert.Equal(t, 1, app.OpenSessions())
}

func TestHandle_CancelledCallIsNotStale(t *testing.T) {
	m, _ := newManager(t, memapp.DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	lease, err := m.Acquire(ctx, "vu")
	require.NoError(t, err)
	defer lease.Release()

	cancel()
	_, err = lease.Session().Invoke(ctx, uiclient.Interaction{Kind: uiclient.OpenForm, PageID: memapp.PageItemList})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, lease.Session().Stale())
}

func TestHandle_TracksOpenForms(t *testing.T) {
	m, _ := newManager(t, memapp.DefaultOptions())
	ctx := context.Background()

	lease, err := m.Acquire(ctx, "vu")
	require.NoError(t, err)
	defer lease.Release()
	h := lease.Session()

	resp, err := h.Invoke(ctx, uiclient.Interaction{Kind: uiclient.OpenForm, PageID: memapp.PageSalesOrder})
	require.NoError(t, err)
	order := resp.Opened

	resp, err = h.Invoke(ctx, uiclient.Interaction{Kind: uiclient.Lookup, FormID: order.ID, Control: "Customer Name"})
	require.NoError(t, err)
	lookup := resp.Opened

	open := h.OpenForms()
	require.Len(t, open, 2)
	assert.Equal(t, lookup.ID, open[0].ID, "most recent first")
	assert.Equal(t, uiclient.KindLookup, open[0].Kind)

	_, err = h.Invoke(ctx, uiclient.Interaction{Kind: uiclient.InvokeAction, FormID: lookup.ID, Action: "Cancel"})
	require.NoError(t, err)
	_, err = h.Invoke(ctx, uiclient.Interaction{Kind: uiclient.CloseForm, FormID: order.ID})
	require.NoError(t, err)
	assert.Empty(t, h.OpenForms())
}

func TestNewAuthenticator(t *testing.T) {
	tests := []struct {
		name    string
		creds   uiclient.Credentials
		want    uiclient.AuthScheme
		wantErr bool
	}{
		{"default is password", uiclient.Credentials{Username: "u"}, uiclient.AuthPassword, false},
		{"tenant", uiclient.Credentials{Scheme: uiclient.AuthTenant, Tenant: "default", Username: "u"}, uiclient.AuthTenant, false},
		{"tenant without tenant", uiclient.Credentials{Scheme: uiclient.AuthTenant, Username: "u"}, "", true},
		{"password without user", uiclient.Credentials{Scheme: uiclient.AuthPassword}, "", true},
		{"unknown", uiclient.Credentials{Scheme: "kerberos"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			auth, err := NewAuthenticator(tt.creds)
			if err == nil {
				var creds uiclient.Credentials
				creds, err = auth.Credentials(context.Background(), "vu")
				if err == nil && creds.Scheme != tt.want {
					t.Errorf("Scheme = %q, want %q", creds.Scheme, tt.want)
				}
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIntegratedAuth(t *testing.T) {
	auth := IntegratedAuth{RoleCenterID: 9006, current: func() (*user.User, error) {
		return &user.User{Username: `CONTOSO\operator`}, nil
	}}
	creds, err := auth.Credentials(context.Background(), "vu")
	require.NoError(t, err)
	assert.Equal(t, uiclient.AuthIntegrated, creds.Scheme)
	assert.Equal(t, `CONTOSO\operator`, creds.Username)
	assert.Empty(t, creds.Password)
}
