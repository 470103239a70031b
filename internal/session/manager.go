// Package session owns the authenticated sessions of a load run. Each actor
// gets its own session, created on first use and held exclusively by one
// lease at a time.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wesleyorama2/formload/internal/uiclient"
)

var (
	// ErrSessionClosed is returned by a handle after it was closed. It matches
	// uiclient.ErrSessionClosed.
	ErrSessionClosed = fmt.Errorf("session: %w", uiclient.ErrSessionClosed)

	// ErrManagerClosed is returned by Acquire after CloseAll.
	ErrManagerClosed = errors.New("session: manager is closed")
)

// Manager maps actors to sessions.
type Manager struct {
	client uiclient.Client
	auth   Authenticator
	logger *zap.Logger

	mu      sync.Mutex
	closed  bool
	entries map[string]*entry
}

type entry struct {
	ready  chan struct{} // closed once creation finished
	handle *Handle
	err    error
	sem    chan struct{}
}

// NewManager creates a manager opening sessions through client.
func NewManager(client uiclient.Client, auth Authenticator, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		client:  client,
		auth:    auth,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Lease grants exclusive use of an actor's session until Release.
type Lease struct {
	handle *Handle
	once   sync.Once
	sem    chan struct{}
}

// Session returns the leased session.
func (l *Lease) Session() *Handle { return l.handle }

// Release returns the session to the manager. Calling it again is a no-op.
func (l *Lease) Release() {
	l.once.Do(func() { <-l.sem })
}

// Acquire returns a lease on the session of actor, opening it on first use.
// It waits for a concurrent holder of the same session to release it, and
// gives up when ctx is done. A session closed by the application or left
// stale by a timed out call is replaced with a new one.
func (m *Manager) Acquire(ctx context.Context, actor string) (*Lease, error) {
	for {
		e, err := m.entry(ctx, actor)
		if err != nil {
			return nil, err
		}

		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		if !e.handle.Closed() && !e.handle.Stale() {
			return &Lease{handle: e.handle, sem: e.sem}, nil
		}
		if !e.handle.Closed() {
			// A timed out call may have left a form open that nothing can
			// sweep; start over on a fresh session.
			m.logger.Info("session state unknown after timeout, replacing",
				zap.String("actor", actor), zap.String("session", e.handle.ID()))
			if err := e.handle.Close(ctx); err != nil {
				m.logger.Warn("closing stale session failed",
					zap.String("actor", actor), zap.String("session", e.handle.ID()), zap.Error(err))
			}
		}
		// The session is gone; drop it and log in again.
		<-e.sem
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrManagerClosed
		}
		if m.entries[actor] == e {
			delete(m.entries, actor)
		}
		m.mu.Unlock()
		m.logger.Info("session lost, reopening", zap.String("actor", actor), zap.String("session", e.handle.ID()))
	}
}

// entry returns the ready entry for actor, creating the session if needed.
// Creation for one actor happens once; concurrent callers wait for it.
func (m *Manager) entry(ctx context.Context, actor string) (*entry, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrManagerClosed
	}
	e, ok := m.entries[actor]
	if !ok {
		e = &entry{ready: make(chan struct{}), sem: make(chan struct{}, 1)}
		m.entries[actor] = e
	}
	m.mu.Unlock()

	if ok {
		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		return e, nil
	}

	e.handle, e.err = m.open(ctx, actor)
	if e.err != nil {
		m.mu.Lock()
		if m.entries[actor] == e {
			delete(m.entries, actor)
		}
		m.mu.Unlock()
	}
	close(e.ready)
	return e, e.err
}

func (m *Manager) open(ctx context.Context, actor string) (*Handle, error) {
	creds, err := m.auth.Credentials(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("credentials for %s: %w", actor, err)
	}
	remote, err := m.client.OpenSession(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("open session for %s: %w", actor, err)
	}
	h := newHandle(actor, remote)

	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		_ = h.Close(ctx)
		return nil, ErrManagerClosed
	}

	m.logger.Debug("session opened",
		zap.String("actor", actor),
		zap.String("session", h.ID()),
		zap.Stringer("credentials", creds))
	return h, nil
}

// Len returns the number of actors with a session.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// CloseAll closes every session and refuses further Acquire calls. It is
// idempotent. Sessions already closed are skipped; transport failures are
// joined into the returned error.
func (m *Manager) CloseAll(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	entries := make(map[string]*entry, len(m.entries))
	for actor, e := range m.entries {
		entries[actor] = e
	}
	m.entries = make(map[string]*entry)
	m.mu.Unlock()

	var errs []error
	for actor, e := range entries {
		select {
		case <-e.ready:
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("close session for %s: %w", actor, ctx.Err()))
			continue
		}
		if e.handle == nil {
			continue
		}
		if err := e.handle.Close(ctx); err != nil && !errors.Is(err, ErrSessionClosed) {
			m.logger.Warn("closing session failed",
				zap.String("actor", actor),
				zap.String("session", e.handle.ID()),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("close session %s for %s: %w", e.handle.ID(), actor, err))
		}
	}
	m.logger.Debug("sessions closed", zap.Int("count", len(entries)), zap.Int("failed", len(errs)))
	return errors.Join(errs...)
}
