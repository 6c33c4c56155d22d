package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rl1809/storeflow/internal/logger"
	"github.com/rl1809/storeflow/internal/port"
)

const sessionIssuer = "storeflow"

// AuthConfig configures the simulated one-time-code login.
type AuthConfig struct {
	EmailDomain    string // required suffix, e.g. "@cavitak.com"
	Code           string // fixed verification code
	ResendCooldown time.Duration
	SessionSecret  string
	SessionTTL     time.Duration
}

type SessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// CooldownError carries the wait before another code may be requested.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%v, retry in %ds", ErrResendCooldown, int(e.Remaining.Round(time.Second)/time.Second))
}

func (e *CooldownError) Unwrap() error { return ErrResendCooldown }

// AuthService is a login stub: a domain check plus a fixed code. It is not a
// security boundary.
type AuthService struct {
	store *StateStore
	cfg   AuthConfig
	clock port.Clock

	mu      sync.Mutex
	pending map[string]time.Time // email -> when the code was sent
}

func NewAuthService(store *StateStore, cfg AuthConfig, clock port.Clock) *AuthService {
	if clock == nil {
		clock = systemClock{}
	}
	cfg.EmailDomain = strings.ToLower(cfg.EmailDomain)
	return &AuthService{
		store:   store,
		cfg:     cfg,
		clock:   clock,
		pending: make(map[string]time.Time),
	}
}

// RequestCode issues the verification code for email. The code goes to the log only.
func (a *AuthService) RequestCode(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return ErrEmailRequired
	}
	if !strings.HasSuffix(email, a.cfg.EmailDomain) {
		return fmt.Errorf("%w: only %s addresses are allowed", ErrEmailDomain, a.cfg.EmailDomain)
	}

	now := a.clock.Now()

	a.mu.Lock()
	defer a.mu.Unlock()

	if sentAt, ok := a.pending[email]; ok {
		if wait := a.cfg.ResendCooldown - now.Sub(sentAt); wait > 0 {
			return &CooldownError{Remaining: wait}
		}
	}
	a.pending[email] = now

	logger.Logger.Info().
		Str("email", email).
		Str("code", a.cfg.Code).
		Msg("verification code issued (dev mode)")
	return nil
}

// Verify checks the code, records email as the current user and returns a session token.
func (a *AuthService) Verify(ctx context.Context, email, code string) (string, error) {
	email = normalizeEmail(email)

	a.mu.Lock()
	_, ok := a.pending[email]
	a.mu.Unlock()
	if !ok {
		return "", ErrNoPendingCode
	}

	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(code)), []byte(a.cfg.Code)) != 1 {
		logger.Logger.Warn().Str("email", email).Msg("invalid verification code")
		return "", ErrInvalidCode
	}

	if err := a.store.SetCurrentUser(ctx, email); err != nil {
		return "", err
	}

	a.mu.Lock()
	delete(a.pending, email)
	a.mu.Unlock()

	token, err := a.issue(email)
	if err != nil {
		return "", err
	}

	logger.Logger.Info().Str("email", email).Msg("user signed in")
	return token, nil
}

// Authenticate validates a session token and returns its email. Tokens of a
// user who is no longer the current user are rejected.
func (a *AuthService) Authenticate(ctx context.Context, token string) (string, error) {
	claims := &SessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(a.cfg.SessionSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(a.clock.Now),
	)
	if err != nil || !parsed.Valid {
		return "", fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}

	current, err := a.store.CurrentUser(ctx)
	if err != nil {
		return "", err
	}
	if current == "" || current != claims.Email {
		return "", fmt.Errorf("%w: session ended", ErrUnauthorized)
	}
	return claims.Email, nil
}

func (a *AuthService) CurrentUser(ctx context.Context) (string, error) {
	return a.store.CurrentUser(ctx)
}

func (a *AuthService) Logout(ctx context.Context) error {
	user, _ := a.store.CurrentUser(ctx)
	if err := a.store.ClearCurrentUser(ctx); err != nil {
		return err
	}
	logger.Logger.Info().Str("email", user).Msg("user signed out")
	return nil
}

func (a *AuthService) issue(email string) (string, error) {
	now := a.clock.Now()
	claims := SessionClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    sessionIssuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.SessionTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(a.cfg.SessionSecret))
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsAuthError reports whether err should surface as an authentication failure.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrInvalidCode) ||
		errors.Is(err, ErrNoPendingCode)
}
