// Package auth runs the Real-Debrid device authorization flow and owns the
// persisted enabled flag.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Zerr0-C00L/rdfetch/internal/metrics"
	"github.com/Zerr0-C00L/rdfetch/internal/notify"
	"github.com/Zerr0-C00L/rdfetch/internal/services/debrid"
	"github.com/Zerr0-C00L/rdfetch/internal/services/tasks"
)

// State is a step of the device authorization flow.
type State string

const (
	StateUnauthenticated      State = "unauthenticated"
	StateAwaitingVerification State = "awaiting_verification"
	StatePolling              State = "polling"
	StateAuthenticated        State = "authenticated"
	StateFailed               State = "failed"
	StateCancelled            State = "cancelled"
)

// Active reports whether an attempt is in flight in this state.
func (s State) Active() bool {
	return s == StateAwaitingVerification || s == StatePolling
}

// Client is the slice of debrid.Client used by the coordinator.
type Client interface {
	RequestDeviceCode(ctx context.Context) (*debrid.DeviceCode, error)
	PollForCredentials(ctx context.Context, deviceCode string) (*debrid.Credentials, error)
	DeleteCredentials(ctx context.Context) error
}

// Store persists the credential blob and the enabled flag.
type Store interface {
	Enabled(ctx context.Context) (bool, error)
	SetEnabled(ctx context.Context, enabled bool) error
	SaveCredentials(ctx context.Context, creds *debrid.Credentials) error
}

// Session is a snapshot of the coordinator. The verification fields are only
// set while an attempt is active.
type Session struct {
	AttemptID       string     `json:"attemptId,omitempty"`
	State           State      `json:"state"`
	VerificationURL string     `json:"verificationUrl,omitempty"`
	UserCode        string     `json:"userCode,omitempty"`
	DeviceCode      string     `json:"-"`
	ExpiresAt       *time.Time `json:"expiresAt,omitempty"`
	Enabled         bool       `json:"enabled"`
	Error           string     `json:"error,omitempty"`
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithVerificationHandler is called once the user code is known.
func WithVerificationHandler(fn func(Session)) Option {
	return func(c *Coordinator) { c.onVerification = fn }
}

// WithStateHandler is called after every state change.
func WithStateHandler(fn func(Session)) Option {
	return func(c *Coordinator) { c.onStateChange = fn }
}

// Coordinator drives device authorization. At most one attempt runs at a time.
type Coordinator struct {
	client Client
	store  Store
	sink   notify.Sink
	logger *slog.Logger
	sup    tasks.Supervisor
	now    func() time.Time

	startMu sync.Mutex

	onVerification func(Session)
	onStateChange  func(Session)

	mu      sync.Mutex
	session Session
}

func NewCoordinator(client Client, store Store, sink notify.Sink, logger *slog.Logger, opts ...Option) *Coordinator {
	if sink == nil {
		sink = notify.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		client:  client,
		store:   store,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
		session: Session{State: StateUnauthenticated},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load reads the persisted enabled flag.
func (c *Coordinator) Load(ctx context.Context) error {
	enabled, err := c.store.Enabled(ctx)
	if err != nil {
		return fmt.Errorf("load enabled flag: %w", err)
	}
	c.mu.Lock()
	c.session.Enabled = enabled
	if enabled && c.session.State == StateUnauthenticated {
		c.session.State = StateAuthenticated
	}
	c.mu.Unlock()
	return nil
}

// Session returns the current snapshot.
func (c *Coordinator) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Coordinator) State() State {
	return c.Session().State
}

func (c *Coordinator) Enabled() bool {
	return c.Session().Enabled
}

// InProgress reports whether an attempt is running.
func (c *Coordinator) InProgress() bool {
	return c.sup.Running() || c.State().Active()
}

// Start runs Authenticate in the background, cancelling any previous
// attempt first. It returns the new attempt id.
func (c *Coordinator) Start(ctx context.Context) string {
	c.startMu.Lock()
	defer c.startMu.Unlock()

	id := uuid.NewString()
	c.claim(id)
	c.sup.Start(ctx, func(ctx context.Context) {
		_ = c.authenticate(ctx, id)
	})
	return id
}

// Wait blocks until the running attempt, if any, has finished.
func (c *Coordinator) Wait(ctx context.Context) error {
	done := c.sup.Done()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel aborts the running attempt. Calling it while idle is a no-op.
func (c *Coordinator) Cancel() {
	c.sup.Cancel()
}

// Authenticate runs one attempt and blocks until it finishes. The attempt is
// supervised like one from Start, so Cancel, Logout and a later Start stop it.
func (c *Coordinator) Authenticate(ctx context.Context) error {
	c.startMu.Lock()
	id := uuid.NewString()
	c.claim(id)
	var err error
	done := c.sup.Start(ctx, func(ctx context.Context) {
		err = c.authenticate(ctx, id)
	})
	c.startMu.Unlock()

	<-done
	return err
}

// claim hands the session to attempt id; older attempts stop publishing.
// The state stays unauthenticated until a device code has been issued.
func (c *Coordinator) claim(id string) {
	c.update(id, true, func(s *Session) {
		*s = Session{AttemptID: id, State: StateUnauthenticated, Enabled: s.Enabled}
	})
}

func (c *Coordinator) authenticate(ctx context.Context, id string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := c.logger.With("attempt", id)

	code, err := c.client.RequestDeviceCode(ctx)
	if err != nil {
		return c.fail(ctx, logger, id, err)
	}

	session := c.update(id, false, func(s *Session) {
		s.State = StateAwaitingVerification
		s.VerificationURL = code.PresentationURL()
		s.UserCode = code.UserCode
		s.DeviceCode = code.DeviceCode
		if code.ExpiresIn > 0 {
			expires := c.now().Add(code.ExpiresIn).UTC()
			s.ExpiresAt = &expires
		}
	})
	logger.Info("device code issued", "verification_url", session.VerificationURL, "user_code", session.UserCode)
	if c.onVerification != nil && session.AttemptID == id {
		c.onVerification(session)
	}

	c.update(id, false, func(s *Session) { s.State = StatePolling })

	creds, err := c.client.PollForCredentials(ctx, code.DeviceCode)
	if err != nil {
		return c.fail(ctx, logger, id, err)
	}
	if err := c.store.SaveCredentials(ctx, creds); err != nil {
		return c.fail(ctx, logger, id, fmt.Errorf("save credentials: %w", err))
	}
	if err := c.store.SetEnabled(ctx, true); err != nil {
		return c.fail(ctx, logger, id, fmt.Errorf("persist enabled flag: %w", err))
	}

	c.update(id, false, func(s *Session) {
		*s = Session{AttemptID: id, State: StateAuthenticated, Enabled: true}
	})
	metrics.AuthAttemptsTotal.WithLabelValues("granted").Inc()
	logger.Info("device authorization granted")
	return nil
}

func (c *Coordinator) fail(ctx context.Context, logger *slog.Logger, id string, err error) error {
	err = debrid.Classify("device authorization", err)
	if debrid.IsCancelled(err) || ctx.Err() != nil {
		if !debrid.IsCancelled(err) {
			err = fmt.Errorf("device authorization: %w", debrid.ErrCancelled)
		}
		c.update(id, false, func(s *Session) {
			*s = Session{AttemptID: id, State: StateCancelled, Enabled: s.Enabled}
		})
		metrics.AuthAttemptsTotal.WithLabelValues("cancelled").Inc()
		logger.Info("device authorization cancelled", "superseded", tasks.Superseded(ctx))
		return err
	}

	outcome := "error"
	switch {
	case errors.Is(err, debrid.ErrAuthorizationDenied):
		outcome = "denied"
	case errors.Is(err, debrid.ErrAuthorizationExpired):
		outcome = "expired"
	}
	metrics.AuthAttemptsTotal.WithLabelValues(outcome).Inc()

	current := c.update(id, false, func(s *Session) {
		*s = Session{AttemptID: id, State: StateFailed, Enabled: s.Enabled, Error: err.Error()}
	})
	logger.Error("device authorization failed", "error", err)
	if current.AttemptID == id {
		c.sink.Report(fmt.Sprintf("RealDebrid authentication error: %v", err), notify.SeverityError)
	}
	return err
}

// Logout deletes the stored credentials and clears the enabled flag. On
// failure the flag is left untouched.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.sup.Cancel()

	if err := c.client.DeleteCredentials(ctx); err != nil {
		err = debrid.Classify("logout", err)
		c.logger.Error("logout failed", "error", err)
		c.sink.Report(fmt.Sprintf("RealDebrid logout error: %v", err), notify.SeverityError)
		return err
	}
	if err := c.store.SetEnabled(ctx, false); err != nil {
		err = fmt.Errorf("clear enabled flag: %w", err)
		c.logger.Error("logout failed", "error", err)
		c.sink.Report(fmt.Sprintf("RealDebrid logout error: %v", err), notify.SeverityError)
		return err
	}

	c.update("", true, func(s *Session) {
		*s = Session{State: StateUnauthenticated}
	})
	c.logger.Info("logged out of real-debrid")
	return nil
}

// update applies fn when id owns the session, or unconditionally when claim
// is set, and notifies the state handler. It returns the resulting snapshot.
func (c *Coordinator) update(id string, claim bool, fn func(*Session)) Session {
	c.mu.Lock()
	if !claim && c.session.AttemptID != id {
		s := c.session
		c.mu.Unlock()
		return s
	}
	fn(&c.session)
	s := c.session
	c.mu.Unlock()

	if c.onStateChange != nil {
		c.onStateChange(s)
	}
	return s
}
