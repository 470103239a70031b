package memapp

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/wesleyorama2/formload/internal/uiclient"
)

// Options configures the simulated application.
type Options struct {
	// Catalog is the master data served by list and lookup pages.
	Catalog Catalog

	// ViewportSize is the number of repeater rows materialized at once (default: 8).
	ViewportSize int

	// Latency is added to every interaction. Waits honour the caller's context.
	Latency time.Duration

	// Post selects how "Post..." answers (default: PostConfirmChain).
	Post PostBehavior

	// ConfirmQtyToShip raises an OK/Cancel prompt when "Qty. to Ship" is written.
	ConfirmQtyToShip bool

	// Users maps user names to passwords. An empty map accepts any credentials.
	Users map[string]string

	// Tenants lists accepted tenants for tenant authentication. Empty accepts any.
	Tenants []string
}

// DefaultOptions returns options suitable for local runs.
func DefaultOptions() Options {
	return Options{
		Catalog:          DefaultCatalog(40, 60),
		ViewportSize:     8,
		Post:             PostConfirmChain,
		ConfirmQtyToShip: true,
	}
}

// App is the in-memory application. It is safe for concurrent use by many
// sessions.
type App struct {
	opts Options

	mu          sync.Mutex
	nextOrder   int
	nextInvoice int
	orders      []map[string]string
	sessions    map[string]*Session

	callsMu sync.Mutex
	calls   map[callKey]int

	appended atomic.Int64
}

type callKey struct {
	kind    uiclient.InteractionKind
	control string
}

// New creates an application.
func New(opts Options) *App {
	if opts.ViewportSize <= 0 {
		opts.ViewportSize = 8
	}
	if opts.Post == "" {
		opts.Post = PostConfirmChain
	}
	if len(opts.Catalog.Customers) == 0 && len(opts.Catalog.Items) == 0 {
		opts.Catalog = DefaultCatalog(40, 60)
	}
	return &App{
		opts:     opts,
		sessions: make(map[string]*Session),
		calls:    make(map[callKey]int),
	}
}

// OpenSession authenticates and returns a new session positioned on the
// role center page.
func (a *App) OpenSession(ctx context.Context, creds uiclient.Credentials) (uiclient.Session, error) {
	s, err := a.Open(ctx, creds)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Open is OpenSession returning the concrete type.
func (a *App) Open(ctx context.Context, creds uiclient.Credentials) (*Session, error) {
	if err := a.delay(ctx); err != nil {
		return nil, err
	}
	if err := a.authenticate(creds); err != nil {
		return nil, err
	}
	if creds.RoleCenterID != 0 && creds.RoleCenterID != PageRoleCenter {
		return nil, fmt.Errorf("%w: role center %d", uiclient.ErrNotFound, creds.RoleCenterID)
	}

	s := newSession(a, uuid.NewString(), creds.Username)

	a.mu.Lock()
	a.sessions[s.id] = s
	a.mu.Unlock()

	return s, nil
}

func (a *App) authenticate(creds uiclient.Credentials) error {
	switch creds.Scheme {
	case uiclient.AuthIntegrated:
		if creds.Username == "" {
			return fmt.Errorf("%w: no integrated identity", uiclient.ErrAuthentication)
		}
		return nil
	case uiclient.AuthTenant:
		if len(a.opts.Tenants) > 0 && !slices.Contains(a.opts.Tenants, creds.Tenant) {
			return fmt.Errorf("%w: unknown tenant %q", uiclient.ErrAuthentication, creds.Tenant)
		}
	case uiclient.AuthPassword, "":
	default:
		return fmt.Errorf("%w: unsupported scheme %q", uiclient.ErrAuthentication, creds.Scheme)
	}
	if len(a.opts.Users) == 0 {
		return nil
	}
	if pw, ok := a.opts.Users[creds.Username]; !ok || pw != creds.Password {
		return fmt.Errorf("%w: bad user name or password", uiclient.ErrAuthentication)
	}
	return nil
}

// Session returns an open session by id.
func (a *App) Session(id string) (*Session, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.sessions[id]
	return s, ok
}

// OpenSessions returns the number of sessions not yet closed.
func (a *App) OpenSessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sessions)
}

// Calls returns how many interactions of kind hit control. An empty control
// counts every interaction of that kind.
func (a *App) Calls(kind uiclient.InteractionKind, control string) int {
	a.callsMu.Lock()
	defer a.callsMu.Unlock()
	if control != "" {
		return a.calls[callKey{kind, control}]
	}
	total := 0
	for k, n := range a.calls {
		if k.kind == kind {
			total += n
		}
	}
	return total
}

// RowsAppended returns how many repeater rows were created.
func (a *App) RowsAppended() int {
	return int(a.appended.Load())
}

// PostedOrders returns the numbers of posted orders.
func (a *App) PostedOrders() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []string
	for _, o := range a.orders {
		if o["Status"] == "Posted" {
			out = append(out, o["No."])
		}
	}
	return out
}

func (a *App) count(in uiclient.Interaction) {
	a.callsMu.Lock()
	a.calls[callKey{in.Kind, in.Control}]++
	a.callsMu.Unlock()
}

func (a *App) delay(ctx context.Context) error {
	if a.opts.Latency <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(a.opts.Latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (a *App) newOrderNo() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextOrder++
	no := fmt.Sprintf("SO%06d", a.nextOrder)
	a.orders = append(a.orders, map[string]string{"No.": no, "Status": "Open"})
	return no
}

func (a *App) updateOrder(no string, fields map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, o := range a.orders {
		if o["No."] == no {
			for k, v := range fields {
				o[k] = v
			}
			return
		}
	}
}

func (a *App) newInvoiceNo() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.nextInvoice++
	return fmt.Sprintf("PSI%06d", a.nextInvoice)
}

func (a *App) orderRows() []map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	rows := make([]map[string]string, 0, len(a.orders))
	for _, o := range a.orders {
		rows = append(rows, map[string]string{
			"No.":           o["No."],
			"Customer Name": o["Customer Name"],
			"Status":        o["Status"],
		})
	}
	return rows
}

func (a *App) forget(id string) {
	a.mu.Lock()
	delete(a.sessions, id)
	a.mu.Unlock()
}
