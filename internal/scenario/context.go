// Package scenario runs scenario functions against leased sessions and holds
// the order-processor scenario library.
package scenario

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wesleyorama2/formload/internal/transaction"
)

// InconclusiveError marks a run whose result cannot be judged, such as an
// expected dialog that did not appear.
type InconclusiveError struct {
	Reason string
}

func (e *InconclusiveError) Error() string { return "inconclusive: " + e.Reason }

// Inconclusive lets transaction.Classify recognise the error.
func (e *InconclusiveError) Inconclusive() bool { return true }

// Inconclusive returns an *InconclusiveError with a formatted reason.
func Inconclusive(format string, args ...any) error {
	return &InconclusiveError{Reason: fmt.Sprintf(format, args...)}
}

// IsInconclusive reports whether err carries an inconclusive verdict.
func IsInconclusive(err error) bool {
	var ie *InconclusiveError
	return errors.As(err, &ie)
}

// TestContext is the named unit a scenario run reports into. Log lines are
// kept in memory and mirrored to the logger.
type TestContext struct {
	name   string
	logger *zap.Logger

	mu        sync.Mutex
	logs      []string
	outcome   transaction.Outcome
	err       error
	sessionID string
	attempts  int
	duration  time.Duration
}

// NewTestContext creates a context for one scenario run.
func NewTestContext(name string, logger *zap.Logger) *TestContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TestContext{name: name, logger: logger.With(zap.String("scenario", name))}
}

// Name returns the scenario name.
func (tc *TestContext) Name() string { return tc.name }

// Logf records a diagnostic line.
func (tc *TestContext) Logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	tc.mu.Lock()
	tc.logs = append(tc.logs, line)
	session := tc.sessionID
	tc.mu.Unlock()
	tc.logger.Info(line, zap.String("session", session))
}

// Logs returns the recorded lines.
func (tc *TestContext) Logs() []string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return append([]string(nil), tc.logs...)
}

// Outcome returns the final outcome, empty while the run is in progress.
func (tc *TestContext) Outcome() transaction.Outcome {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.outcome
}

// Err returns the error that decided the outcome.
func (tc *TestContext) Err() error {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.err
}

// SessionID returns the id of the session the last attempt ran on.
func (tc *TestContext) SessionID() string {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.sessionID
}

// Attempts returns how many times the scenario function was invoked.
func (tc *TestContext) Attempts() int {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.attempts
}

// Duration returns the wall time of the whole run, retries included.
func (tc *TestContext) Duration() time.Duration {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.duration
}

func (tc *TestContext) begin(sessionID string) {
	tc.mu.Lock()
	tc.sessionID = sessionID
	tc.attempts++
	tc.mu.Unlock()
}

func (tc *TestContext) finish(err error, d time.Duration) transaction.Outcome {
	outcome := transaction.Classify(err)
	tc.mu.Lock()
	tc.outcome = outcome
	tc.err = err
	tc.duration = d
	tc.mu.Unlock()
	return outcome
}
