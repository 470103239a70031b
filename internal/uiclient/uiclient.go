// Package uiclient defines the remote UI-client protocol used to drive a
// form-based application: authenticate, invoke interactions against forms and
// repeater rows, and close forms and sessions.
//
// The protocol is transport neutral. The httpclient subpackage speaks it over
// HTTP/JSON and the memapp subpackage implements it in memory.
package uiclient

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned by any call on a session that was closed.
	ErrSessionClosed = errors.New("uiclient: session is closed")

	// ErrNotFound is returned when a form, control, action or row does not exist.
	ErrNotFound = errors.New("uiclient: not found")

	// ErrAuthentication is returned when credentials are rejected.
	ErrAuthentication = errors.New("uiclient: authentication failed")
)

// Client opens authenticated sessions against the target application.
type Client interface {
	OpenSession(ctx context.Context, creds Credentials) (Session, error)
}

// Session is one authenticated, stateful connection to the application.
//
// A Session is not safe for concurrent workflows; callers must serialize use.
type Session interface {
	// ID returns the session identifier assigned by the remote application.
	ID() string

	// RoleCenter returns the landing page opened at login.
	RoleCenter() *Form

	// Invoke sends one interaction and waits for the application's response.
	Invoke(ctx context.Context, in Interaction) (*Response, error)

	// Close ends the session. Closing twice returns ErrSessionClosed.
	Close(ctx context.Context) error
}

// AuthScheme identifies how credentials are presented.
type AuthScheme string

const (
	AuthPassword   AuthScheme = "password"
	AuthIntegrated AuthScheme = "integrated"
	AuthTenant     AuthScheme = "tenant"
)

// Credentials are passed opaquely from configuration into OpenSession.
type Credentials struct {
	Scheme       AuthScheme `json:"scheme"`
	Username     string     `json:"username,omitempty"`
	Password     string     `json:"password,omitempty"`
	Tenant       string     `json:"tenant,omitempty"`
	RoleCenterID int        `json:"roleCenterId"`
}

// String hides the password.
func (c Credentials) String() string {
	return fmt.Sprintf("%s:%s@%s (role center %d)", c.Scheme, c.Username, c.Tenant, c.RoleCenterID)
}
