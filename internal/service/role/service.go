package role

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/medtrack/server/internal/cache"
	"github.com/medtrack/server/internal/model"
	apperrors "github.com/medtrack/server/pkg/errors"
	"github.com/medtrack/server/pkg/logger"
	"github.com/medtrack/server/pkg/metrics"
)

// State of the resolution machine.
type State int

const (
	Unauthenticated State = iota
	TokenAcquired
	RoleResolving
	RoleResolved
	RoleFallback
)

func (s State) String() string {
	switch s {
	case Unauthenticated:
		return "unauthenticated"
	case TokenAcquired:
		return "token_acquired"
	case RoleResolving:
		return "role_resolving"
	case RoleResolved:
		return "role_resolved"
	case RoleFallback:
		return "role_fallback"
	}
	return "unknown"
}

// Resolution is the terminal outcome for a session. Fallback marks the role
// as provisional: the backend never confirmed it.
type Resolution struct {
	State    State
	Role     string
	Fallback bool
	User     *model.User
}

// TokenSource yields the current identity token; nil means absent.
type TokenSource interface {
	GetToken(ctx context.Context) (*model.Token, error)
}

// UserLookup resolves the backend user for an identity-provider id.
type UserLookup interface {
	ResolveTenant(ctx context.Context, identityID string) (*model.User, error)
}

// Service classifies the current identity into an authorization domain.
// When the backend cannot confirm a role the session falls back to the least
// privileged one (patient) instead of blocking; that is deliberate policy.
// RoleResolved and RoleFallback are terminal until Refresh or a new sign-in.
type Service struct {
	tokens  TokenSource
	users   UserLookup
	store   cache.Store
	logger  *logger.Logger
	metrics *metrics.Metrics

	retryDelay time.Duration

	mu       sync.Mutex
	terminal *Resolution
}

func NewService(tokens TokenSource, users UserLookup, store cache.Store, log *logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		tokens:     tokens,
		users:      users,
		store:      store,
		logger:     log,
		metrics:    m,
		retryDelay: 500 * time.Millisecond,
	}
}

// Resolve runs the machine to a terminal state, memoizing the result for the
// session.
func (s *Service) Resolve(ctx context.Context) (*Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.terminal != nil {
		return s.terminal, nil
	}

	token, err := s.tokens.GetToken(ctx)
	if err != nil && !apperrors.IsCode(err, apperrors.ErrAuthExpired) {
		return nil, err
	}
	if token == nil || err != nil {
		// Not terminal: the caller is sent to authenticate and resolution
		// runs again afterwards.
		return &Resolution{State: Unauthenticated}, nil
	}

	identityID := subjectOf(token.Value)
	if identityID == "" {
		return s.fallbackLocked(ctx, "token carried no subject"), nil
	}

	resolution := s.resolveLocked(ctx, identityID)
	s.terminal = resolution
	s.countResolution(resolution.State)
	s.persistRole(ctx, resolution.Role)
	return resolution, nil
}

// Refresh discards the memoized terminal state so the next Resolve consults
// the backend again.
func (s *Service) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.terminal = nil
}

func (s *Service) resolveLocked(ctx context.Context, identityID string) *Resolution {
	// One bounded retry, then fall back; resolution must never hang on a
	// backend outage.
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return s.fallbackResolution(ctx.Err())
			case <-time.After(s.retryDelay):
			}
		}

		user, err := s.users.ResolveTenant(ctx, identityID)
		if err == nil && model.ValidRole(user.Role) {
			return &Resolution{State: RoleResolved, Role: user.Role, User: user}
		}
		if err == nil {
			lastErr = apperrors.ValidationFailed("backend returned unknown role", nil)
			break
		}
		if apperrors.IsCode(err, apperrors.ErrNotFound) {
			// No backend record yet: under-scope rather than error.
			lastErr = err
			break
		}
		lastErr = err
	}
	return s.fallbackResolution(lastErr)
}

func (s *Service) fallbackLocked(ctx context.Context, reason string) *Resolution {
	s.logger.Warn("role resolution fell back to least privilege", "reason", reason)
	res := &Resolution{State: RoleFallback, Role: model.RolePatient, Fallback: true}
	s.terminal = res
	s.countResolution(res.State)
	s.persistRole(ctx, res.Role)
	return res
}

func (s *Service) fallbackResolution(cause error) *Resolution {
	s.logger.Warn("role resolution fell back to least privilege", "error", errString(cause))
	return &Resolution{State: RoleFallback, Role: model.RolePatient, Fallback: true}
}

func (s *Service) countResolution(state State) {
	if s.metrics != nil {
		s.metrics.RoleResolutions.WithLabelValues(state.String()).Inc()
	}
}

func (s *Service) persistRole(ctx context.Context, role string) {
	if role == "" {
		return
	}
	if err := s.store.Set(ctx, cache.KeyResolvedRole, []byte(role), 0); err != nil {
		s.logger.Error(err, "failed to cache resolved role")
	}
}

// subjectOf extracts the identity id from the token without verifying it;
// verification already happened where the token was issued or accepted.
func subjectOf(tokenValue string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenValue, claims); err != nil {
		return ""
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
