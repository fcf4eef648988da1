package auth

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// Authenticator resolves credentials to a principal and opens sessions
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (Principal, error)
	Login(ctx context.Context, email, password string) (Principal, string, error)
	Logout(ctx context.Context, id Identity)
}

type Auther struct {
	repo            RepositoryManager
	hasher          PasswordAuthenticator
	sessions        *SessionIssuer
	logger          Logger
	activitySink    ActivitySink
	now             func() time.Time
	trackAttempts   bool
	lockoutAttempts int
	lockoutWindow   time.Duration
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator. Lockout is read from cfg and
// stays off when the attempt limit is zero.
func NewAuthenticator(repo RepositoryManager, cfg Config) *Auther {
	return &Auther{
		repo:            repo,
		hasher:          BcryptHasher{},
		sessions:        NewSessionIssuer(cfg),
		logger:          defLogger{},
		activitySink:    noopActivitySink{},
		now:             time.Now,
		trackAttempts:   true,
		lockoutAttempts: cfg.GetLockoutAttempts(),
		lockoutWindow:   cfg.GetLockoutWindow(),
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
		s.sessions.WithLogger(logger)
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithPasswordAuthenticator replaces the bcrypt hasher
func (s *Auther) WithPasswordAuthenticator(h PasswordAuthenticator) *Auther {
	if h != nil {
		s.hasher = h
	}
	return s
}

func (s *Auther) WithClock(now func() time.Time) *Auther {
	if now != nil {
		s.now = now
		s.sessions.WithClock(now)
	}
	return s
}

// WithLockout blocks a record after maxAttempts failures inside window.
// Zero attempts disables the check.
func (s *Auther) WithLockout(maxAttempts int, window time.Duration) *Auther {
	s.lockoutAttempts = maxAttempts
	s.lockoutWindow = window
	return s
}

// WithAttemptTracking toggles writing login attempt counters
func (s *Auther) WithAttemptTracking(enabled bool) *Auther {
	s.trackAttempts = enabled
	return s
}

// SessionIssuer returns the issuer used by Login
func (s *Auther) SessionIssuer() *SessionIssuer {
	return s.sessions
}

// Authenticate walks LoginPrecedence and returns the first principal whose
// stored hash verifies. Records that exist but do not verify are skipped.
func (s *Auther) Authenticate(ctx context.Context, email, password string) (Principal, error) {
	if email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	found := false
	for _, kind := range LoginPrecedence {
		p, err := s.repo.Principals().FindByEmail(ctx, kind, email)
		if err != nil {
			if IsPrincipalNotFound(err) {
				continue
			}
			s.logger.Error("authenticate lookup failed", "kind", string(kind), "error", err)
			return nil, err
		}
		found = true

		cred := p.Credential()
		if err := s.hasher.ComparePasswordAndHash(password, cred.PasswordHash); err != nil {
			s.trackAttempt(ctx, p, false)
			continue
		}

		// only a caller holding the password learns about the lock
		if s.isLockedOut(cred) {
			return nil, ErrAccountLocked.Clone().WithMetadata(map[string]any{"kind": string(kind)})
		}

		if !cred.IsActive {
			return nil, inactiveError(kind)
		}

		s.trackAttempt(ctx, p, true)
		return p, nil
	}

	if !found {
		_ = s.hasher.ComparePasswordAndHash(password, dummyHash())
	}

	return nil, ErrInvalidCredentials
}

// Login authenticates and issues a session token for the principal
func (s *Auther) Login(ctx context.Context, email, password string) (Principal, string, error) {
	p, err := s.Authenticate(ctx, email, password)
	if err != nil {
		kind, _ := ErrorPrincipalKind(err)
		s.logger.Warn("login failed", "email", email, "error", err)
		recordLogin(kind, outcomeFor(err))
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: ActorTypeAnonymous}, "", kind, map[string]any{
			"email":  email,
			"reason": ErrorKind(err),
		})
		return nil, "", err
	}

	token, err := s.sessions.IssueSession(p)
	if err != nil {
		s.logger.Error("login failed to issue session", "error", err)
		recordLogin(p.Kind(), OutcomeError)
		return nil, "", err
	}

	recordLogin(p.Kind(), OutcomeSuccess)
	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, ActorFromIdentity(p), p.ID(), p.Kind(), map[string]any{
		"email": email,
	})

	return p, token, nil
}

// Logout records the end of a session. Sessions are not tracked server side,
// so there is nothing to revoke.
func (s *Auther) Logout(ctx context.Context, id Identity) {
	if id == nil {
		return
	}
	kind, _ := KindForRole(UserRole(id.Role()))
	s.emitAuthEvent(ctx, ActivityEventLogout, ActorFromIdentity(id), id.ID(), kind, map[string]any{
		"email": id.Email(),
	})
}

func (s *Auther) isLockedOut(cred Credential) bool {
	if s.lockoutAttempts <= 0 || cred.LoginAttempts < s.lockoutAttempts {
		return false
	}
	if cred.LoginAttemptAt == nil {
		return true
	}
	if s.lockoutWindow <= 0 {
		return true
	}
	return IsWithinThresholdPeriod(*cred.LoginAttemptAt, s.lockoutWindow, s.now())
}

func (s *Auther) trackAttempt(ctx context.Context, p Principal, success bool) {
	if !s.trackAttempts {
		return
	}
	err := s.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return s.repo.Principals().TrackLoginAttemptTx(ctx, tx, p, success, s.now())
	})
	if err != nil {
		s.logger.Warn("failed to track login attempt", "kind", string(p.Kind()), "error", err)
	}
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, principalID string, kind PrincipalKind, metadata map[string]any) {
	recordActivity(ctx, s.activitySink, s.logger, s.now, ActivityEvent{
		EventType:   eventType,
		Actor:       actor,
		PrincipalID: principalID,
		Kind:        kind,
		Metadata:    metadata,
	})
}
