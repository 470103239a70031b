package session

import (
	"context"
	"fmt"
	"os/user"

	"github.com/wesleyorama2/formload/internal/uiclient"
)

// Authenticator produces the credentials used to open a session for an actor.
type Authenticator interface {
	Credentials(ctx context.Context, actor string) (uiclient.Credentials, error)
}

// PasswordAuth authenticates every actor as the same user name and password.
type PasswordAuth struct {
	Username     string
	Password     string
	RoleCenterID int
}

func (a PasswordAuth) Credentials(ctx context.Context, actor string) (uiclient.Credentials, error) {
	if a.Username == "" {
		return uiclient.Credentials{}, fmt.Errorf("%w: password auth needs a user name", uiclient.ErrAuthentication)
	}
	return uiclient.Credentials{
		Scheme:       uiclient.AuthPassword,
		Username:     a.Username,
		Password:     a.Password,
		RoleCenterID: a.RoleCenterID,
	}, nil
}

// IntegratedAuth authenticates as the operating system user running the
// process. No password is sent.
type IntegratedAuth struct {
	RoleCenterID int

	// current overrides the user lookup in tests.
	current func() (*user.User, error)
}

func (a IntegratedAuth) Credentials(ctx context.Context, actor string) (uiclient.Credentials, error) {
	lookup := a.current
	if lookup == nil {
		lookup = user.Current
	}
	u, err := lookup()
	if err != nil {
		return uiclient.Credentials{}, fmt.Errorf("resolve current user: %w", err)
	}
	return uiclient.Credentials{
		Scheme:       uiclient.AuthIntegrated,
		Username:     u.Username,
		RoleCenterID: a.RoleCenterID,
	}, nil
}

// TenantAuth authenticates a user name and password inside one tenant of a
// multi-tenant deployment.
type TenantAuth struct {
	Tenant       string
	Username     string
	Password     string
	RoleCenterID int
}

func (a TenantAuth) Credentials(ctx context.Context, actor string) (uiclient.Credentials, error) {
	if a.Tenant == "" {
		return uiclient.Credentials{}, fmt.Errorf("%w: tenant auth needs a tenant", uiclient.ErrAuthentication)
	}
	return uiclient.Credentials{
		Scheme:       uiclient.AuthTenant,
		Username:     a.Username,
		Password:     a.Password,
		Tenant:       a.Tenant,
		RoleCenterID: a.RoleCenterID,
	}, nil
}

// NewAuthenticator picks the authenticator matching the scheme of creds.
func NewAuthenticator(creds uiclient.Credentials) (Authenticator, error) {
	switch creds.Scheme {
	case uiclient.AuthPassword, "":
		return PasswordAuth{Username: creds.Username, Password: creds.Password, RoleCenterID: creds.RoleCenterID}, nil
	case uiclient.AuthIntegrated:
		return IntegratedAuth{RoleCenterID: creds.RoleCenterID}, nil
	case uiclient.AuthTenant:
		return TenantAuth{Tenant: creds.Tenant, Username: creds.Username, Password: creds.Password, RoleCenterID: creds.RoleCenterID}, nil
	default:
		return nil, fmt.Errorf("unknown auth scheme %q", creds.Scheme)
	}
}
