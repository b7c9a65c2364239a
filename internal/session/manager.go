package session

import (
	"context"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"manimate/internal/api"
)

// AuthAPI is the slice of the remote API the session manager needs.
type AuthAPI interface {
	Login(ctx context.Context, email, password string) (api.AuthResult, error)
	Register(ctx context.Context, email, password, name string) (api.AuthResult, error)
	Validate(ctx context.Context, token string) (api.User, error)
}

// Manager holds the process-wide session: token and user are set together on
// a successful login/register/validate and cleared together on logout. It
// implements api.TokenSource so job clients always read the live token.
type Manager struct {
	auth   AuthAPI
	keys   *Keystore
	logger zerolog.Logger

	mu    sync.RWMutex
	token string
	user  *api.User
}

// NewManager creates an unauthenticated session manager.
func NewManager(auth AuthAPI, keys *Keystore, logger zerolog.Logger) *Manager {
	return &Manager{auth: auth, keys: keys, logger: logger}
}

// Token returns the current bearer token, "" when unauthenticated.
func (m *Manager) Token() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// User returns the validated identity, if any.
func (m *Manager) User() (api.User, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.user == nil {
		return api.User{}, false
	}
	return *m.user, true
}

// IsAuthenticated reports whether a validated token is present.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != "" && m.user != nil
}

// Login exchanges credentials for a session. Server rejections surface as
// AuthError carrying the server's message; transport failures stay
// NetworkError so callers can tell the two apart.
func (m *Manager) Login(ctx context.Context, email, password string) (api.User, error) {
	result, err := m.auth.Login(ctx, email, password)
	if err != nil {
		return api.User{}, asAuthError(err)
	}
	m.setSession(result.Token, result.User)
	return result.User, nil
}

// Register creates an account and starts a session in one step. Password
// confirmation equality is a form-level concern and is not re-checked here.
func (m *Manager) Register(ctx context.Context, email, password, name string) (api.User, error) {
	result, err := m.auth.Register(ctx, email, password, name)
	if err != nil {
		return api.User{}, asAuthError(err)
	}
	m.setSession(result.Token, result.User)
	return result.User, nil
}

// Restore validates the persisted token at startup. Any failure — missing
// key, expired claims, server rejection, transport error — degrades to an
// unauthenticated session and clears the persisted token, so a stale
// credential never blocks startup. The diagnostic goes to the log only.
func (m *Manager) Restore(ctx context.Context) bool {
	token, err := m.keys.Load()
	if err != nil {
		m.logger.Warn().Err(err).Msg("could not read persisted token")
		return false
	}
	if token == "" {
		return false
	}

	// Expired tokens are dropped without a round-trip. The claims are not
	// signature-checked locally; the server remains the authority.
	if tokenExpired(token) {
		m.logger.Debug().Msg("persisted token expired, discarding")
		m.discardPersisted()
		return false
	}

	user, err := m.auth.Validate(ctx, token)
	if err != nil {
		m.logger.Debug().Err(err).Msg("persisted token rejected, discarding")
		m.discardPersisted()
		return false
	}

	m.setSession(token, user)
	return true
}

// Logout clears the session and the persisted key. Idempotent and
// unconditional.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.token = ""
	m.user = nil
	m.mu.Unlock()

	if err := m.keys.Clear(); err != nil {
		m.logger.Warn().Err(err).Msg("could not clear persisted token")
	}
}

func (m *Manager) setSession(token string, user api.User) {
	m.mu.Lock()
	m.token = token
	u := user
	m.user = &u
	m.mu.Unlock()

	if err := m.keys.Save(token); err != nil {
		// The in-memory session stays usable; only persistence across
		// restarts is lost.
		m.logger.Warn().Err(err).Msg("could not persist token")
	}
}

func (m *Manager) discardPersisted() {
	if err := m.keys.Clear(); err != nil {
		m.logger.Warn().Err(err).Msg("could not clear persisted token")
	}
}

// asAuthError folds server rejections (non-2xx, malformed bodies) into
// AuthError for the form layer, leaving validation and transport errors
// untouched.
func asAuthError(err error) error {
	if reqErr, ok := api.IsRequestError(err); ok {
		return &api.AuthError{Reason: reqErr.Message}
	}
	return err
}

// tokenExpired decodes the JWT claims without verifying the signature and
// reports whether exp has passed. Unparseable tokens are not treated as
// expired; the server decides their fate.
func tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
