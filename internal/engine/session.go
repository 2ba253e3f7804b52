package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/richvergo/subtract-sub005/internal/retry"
	"github.com/richvergo/subtract-sub005/internal/store"
	"github.com/richvergo/subtract-sub005/internal/target"
	"github.com/richvergo/subtract-sub005/pkg/api"
	"github.com/richvergo/subtract-sub005/pkg/log"
)

type (
	// SessionOutcome classifies the result of an authentication attempt
	SessionOutcome string

	// Session establishes an authenticated session on a run's target before
	// any workflow step executes
	Session struct {
		creds   store.CredentialStore
		target  target.Target
		policy  retry.Policy
		timeout time.Duration
	}
)

const (
	OutcomeSuccess            SessionOutcome = "success"
	OutcomeCredentialsInvalid SessionOutcome = "credentials_invalid"
	OutcomeTargetUnreachable  SessionOutcome = "target_unreachable"
	OutcomeUnknown            SessionOutcome = "unknown"
)

var (
	ErrSessionNotInitialized = errors.New("session not initialized")
	ErrSessionTargetChanged  = errors.New("session bound to another target")
	ErrNoCredentialStore     = errors.New("no credential store configured")
)

// NewSession creates a session that resolves credentials from creds and
// retries target interactions under policy, bounding each attempt by
// timeout
func NewSession(
	creds store.CredentialStore, policy retry.Policy, timeout time.Duration,
) *Session {
	return &Session{
		creds:   creds,
		policy:  policy,
		timeout: timeout,
	}
}

// Initialize binds the session to its target. Repeated calls with the same
// target are no-ops
func (s *Session) Initialize(_ context.Context, t target.Target) error {
	switch {
	case s.target == nil:
		s.target = t
		return nil
	case s.target == t:
		return nil
	default:
		return ErrSessionTargetChanged
	}
}

// IsAuthenticated reports whether the login's success marker is present on
// the target. A login without a marker is never considered authenticated
// before the form has been submitted
func (s *Session) IsAuthenticated(
	ctx context.Context, login *api.LoginRequirement,
) (bool, error) {
	if s.target == nil {
		return false, ErrSessionNotInitialized
	}
	if login.SuccessMarker == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.target.Exists(ctx, login.SuccessMarker)
}

// Authenticate drives the target through the login form described by login
// and confirms the success marker appears. Failures are classified rather
// than returned bare: the error, when present, explains the outcome
func (s *Session) Authenticate(
	ctx context.Context, login *api.LoginRequirement,
) (SessionOutcome, error) {
	if s.target == nil {
		return OutcomeUnknown, ErrSessionNotInitialized
	}
	if s.creds == nil {
		return OutcomeCredentialsInvalid, ErrNoCredentialStore
	}

	creds, err := s.creds.GetCredentials(ctx, login.CredentialsRef)
	if err != nil {
		if errors.Is(err, store.ErrCredentialsNotFound) ||
			errors.Is(err, store.ErrUnseal) {
			return OutcomeCredentialsInvalid, err
		}
		return OutcomeUnknown, err
	}

	if err := s.attempt(ctx, func(ctx context.Context) error {
		return s.target.Navigate(ctx, login.URL)
	}); err != nil {
		return s.classify(err, OutcomeTargetUnreachable), err
	}

	if ok, err := s.IsAuthenticated(ctx, login); err == nil && ok {
		slog.Info("Session already authenticated",
			slog.String("url", login.URL))
		return OutcomeSuccess, nil
	}

	user, pass, submit := login.Selectors()
	if err := s.attempt(ctx, func(ctx context.Context) error {
		if err := s.target.Type(ctx, user, creds.Username); err != nil {
			return err
		}
		if err := s.target.Type(ctx, pass, creds.Password); err != nil {
			return err
		}
		return s.target.Click(ctx, submit)
	}); err != nil {
		return s.classify(err, OutcomeUnknown), err
	}

	if login.SuccessMarker == "" {
		return OutcomeSuccess, nil
	}
	if err := s.attempt(ctx, func(ctx context.Context) error {
		return s.target.WaitFor(ctx, login.SuccessMarker)
	}); err != nil {
		slog.Warn("Login success marker not found",
			slog.String("marker", login.SuccessMarker),
			log.Error(err))
		return s.classify(err, OutcomeCredentialsInvalid), err
	}
	return OutcomeSuccess, nil
}

func (s *Session) attempt(
	ctx context.Context, fn func(context.Context) error,
) error {
	out := retry.Do(ctx, s.policy, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, s.timeout)
		defer cancel()
		return fn(ctx)
	}, func(err error, _ int) bool {
		return target.IsTransient(err)
	})
	return out.Err
}

func (s *Session) classify(err error, fallback SessionOutcome) SessionOutcome {
	if errors.Is(err, retry.ErrCancelled) || errors.Is(err, ErrCancelled) {
		return OutcomeUnknown
	}
	if errors.Is(err, target.ErrUnreachable) {
		return OutcomeTargetUnreachable
	}
	return fallback
}

// authenticate runs the session for a run and converts any non-success
// outcome into an ErrSessionAuth failure
func (s *Session) authenticate(
	ctx context.Context, t target.Target, login *api.LoginRequirement,
) error {
	if err := s.Initialize(ctx, t); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSessionAuth, OutcomeUnknown, err)
	}
	outcome, err := s.Authenticate(ctx, login)
	if outcome == OutcomeSuccess {
		return nil
	}
	if ctx.Err() != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
	}
	if err == nil {
		return fmt.Errorf("%w: %s", ErrSessionAuth, outcome)
	}
	return fmt.Errorf("%w: %s: %w", ErrSessionAuth, outcome, err)
}
