// Package service implements the wallet session lifecycle: issue on a verified signature,
// resolve through the token cache, and invalidate on logout.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"fleet-control-plane/internal/allowlist"
	"fleet-control-plane/internal/challenge"
	"fleet-control-plane/internal/security"
	"fleet-control-plane/internal/session/domain"
	"fleet-control-plane/internal/tokencache"
	userdomain "fleet-control-plane/internal/user/domain"
	userrepo "fleet-control-plane/internal/user/repository"
)

// Sentinel errors for the session manager; handlers map them to HTTP statuses.
var (
	ErrMissingCredentials = errors.New("address, message and signature are required")
	ErrSignatureInvalid   = errors.New("signature invalid")
	ErrChallengeInvalid   = errors.New("login challenge missing, expired or already used")
	ErrAddressNotAllowed  = errors.New("address not allowed")
	ErrTokenMissing       = errors.New("token missing")
	ErrTokenInvalid       = errors.New("token invalid or expired")
	ErrInvalidationFailed = errors.New("session invalidation failed")
	ErrPersistence        = errors.New("session store unavailable")
)

// UserRepo is the minimal user repository needed by the session manager.
type UserRepo interface {
	GetByAddress(ctx context.Context, address string) (*userdomain.User, error)
	Create(ctx context.Context, u *userdomain.User) error
}

// SessionRepo is the minimal session repository needed by the session manager.
type SessionRepo interface {
	Create(ctx context.Context, s *domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	Delete(ctx context.Context, tokenHash string) (bool, error)
}

// LoginRequest is a signed wallet login attempt.
type LoginRequest struct {
	Address   string
	Message   string
	Signature string
	Nonce     string
}

// IssueResult is the outcome of a successful login.
type IssueResult struct {
	Token     string
	ExpiresAt time.Time
	Principal domain.Principal
}

// Manager issues, resolves, and invalidates session tokens.
type Manager struct {
	users        UserRepo
	sessions     SessionRepo
	cache        tokencache.Cache
	allow        *allowlist.List
	verifier     security.WalletVerifier
	tokens       *security.TokenProvider
	challenges   challenge.Store
	requireNonce bool
	admins       map[string]struct{}
	nowF         func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithChallenges makes login consume a nonce from store. When required is true, a login
// without a valid nonce fails; otherwise the nonce is checked only when supplied.
func WithChallenges(store challenge.Store, required bool) Option {
	return func(m *Manager) {
		m.challenges = store
		m.requireNonce = required
	}
}

// WithAdminWallets grants admin to these addresses when their user record is first created.
func WithAdminWallets(addresses []string) Option {
	return func(m *Manager) {
		for _, a := range addresses {
			if a = strings.ToLower(strings.TrimSpace(a)); a != "" {
				m.admins[a] = struct{}{}
			}
		}
	}
}

// WithClock overrides the clock used for session expiry checks.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.nowF = now }
}

// NewManager returns a Manager. verifier defaults to PersonalSignVerifier when nil.
func NewManager(
	users UserRepo,
	sessions SessionRepo,
	cache tokencache.Cache,
	allow *allowlist.List,
	verifier security.WalletVerifier,
	tokens *security.TokenProvider,
	opts ...Option,
) *Manager {
	if verifier == nil {
		verifier = security.PersonalSignVerifier{}
	}
	m := &Manager{
		users:    users,
		sessions: sessions,
		cache:    cache,
		allow:    allow,
		verifier: verifier,
		tokens:   tokens,
		admins:   make(map[string]struct{}),
		nowF:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AllowList returns the allow-list the manager gates on.
func (m *Manager) AllowList() *allowlist.List {
	return m.allow
}

// Issue verifies a wallet signature and creates a session for the signer.
func (m *Manager) Issue(ctx context.Context, req LoginRequest) (*IssueResult, error) {
	address := strings.TrimSpace(req.Address)
	if address == "" || req.Message == "" || strings.TrimSpace(req.Signature) == "" {
		return nil, ErrMissingCredentials
	}
	if err := m.verifier.Verify(address, req.Message, req.Signature); err != nil {
		return nil, ErrSignatureInvalid
	}
	// The nonce is consumed only after the signature verifies so a third party cannot burn it.
	if m.challenges != nil && (m.requireNonce || req.Nonce != "") {
		if req.Nonce == "" || !strings.Contains(req.Message, req.Nonce) {
			return nil, ErrChallengeInvalid
		}
		if !m.challenges.Consume(ctx, address, req.Nonce) {
			return nil, ErrChallengeInvalid
		}
	}
	if !m.allow.IsAllowed(address) {
		return nil, ErrAddressNotAllowed
	}

	user, err := m.findOrCreateUser(ctx, address)
	if err != nil {
		return nil, err
	}
	token, _, expiresAt, err := m.tokens.IssueSession(user.ID, user.Address, user.IsAdmin)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	rec := &domain.Session{
		TokenHash: security.HashToken(token),
		UserID:    user.ID,
		Address:   user.Address,
		IsAdmin:   user.IsAdmin,
		ExpiresAt: expiresAt,
		CreatedAt: m.nowF().UTC(),
	}
	if err := m.sessions.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	p := domain.Principal{
		Address: user.Address,
		UserID:  user.ID,
		IsAdmin: user.IsAdmin,
		Allowed: true,
	}
	m.cache.Set(token, toEntry(p))
	return &IssueResult{Token: token, ExpiresAt: expiresAt, Principal: p}, nil
}

// Resolve returns the principal for token, consulting the cache before the session store.
// The allowed flag is re-derived from the allow-list on every store lookup; callers decide
// what a resolved but not-allowed principal may do.
func (m *Manager) Resolve(ctx context.Context, token string) (domain.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Principal{}, ErrTokenMissing
	}
	if e, ok := m.cache.Get(token); ok {
		if !e.Valid {
			return domain.Principal{}, ErrTokenInvalid
		}
		return fromEntry(e), nil
	}

	claims, err := m.tokens.ValidateSession(token)
	if err != nil {
		// Unparseable or foreign tokens are not cached; they would only fill the cache.
		return domain.Principal{}, ErrTokenInvalid
	}
	// gen is read before the store so an Invalidate that lands during the lookup keeps
	// this resolution out of the cache.
	gen := m.cache.Generation(token)
	rec, err := m.sessions.GetByTokenHash(ctx, security.HashToken(token))
	if err != nil {
		return domain.Principal{}, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if rec == nil || rec.IsExpired(m.nowF()) || rec.UserID != claims.Subject {
		m.cache.Set(token, tokencache.Entry{Valid: false})
		return domain.Principal{}, ErrTokenInvalid
	}

	p := domain.Principal{
		Address: rec.Address,
		UserID:  rec.UserID,
		IsAdmin: rec.IsAdmin,
		Allowed: m.allow.IsAllowed(rec.Address),
	}
	m.cache.SetIfGeneration(token, gen, toEntry(p))
	return p, nil
}

// Invalidate deletes the session record for token and always clears its cache entry,
// even when the delete fails. The clear follows the delete, so a Resolve that read the
// record before the delete cannot cache it afterwards. Invalidating an unknown or already-invalidated token succeeds.
func (m *Manager) Invalidate(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrTokenMissing
	}
	defer m.cache.Clear(token)
	if _, err := m.sessions.Delete(ctx, security.HashToken(token)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidationFailed, err)
	}
	return nil
}

func (m *Manager) findOrCreateUser(ctx context.Context, address string) (*userdomain.User, error) {
	user, err := m.users.GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if user != nil {
		return user, nil
	}
	now := m.nowF().UTC()
	_, isAdmin := m.admins[strings.ToLower(address)]
	user = &userdomain.User{
		ID:        uuid.New().String(),
		Address:   address,
		IsAdmin:   isAdmin,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.users.Create(ctx, user); err != nil {
		if !errors.Is(err, userrepo.ErrDuplicateAddress) {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		// Lost a race with a concurrent first login for the same address.
		existing, gerr := m.users.GetByAddress(ctx, address)
		if gerr != nil || existing == nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		return existing, nil
	}
	return user, nil
}

func toEntry(p domain.Principal) tokencache.Entry {
	return tokencache.Entry{
		Valid:   true,
		Address: p.Address,
		UserID:  p.UserID,
		Allowed: p.Allowed,
		IsAdmin: p.IsAdmin,
	}
}

func fromEntry(e tokencache.Entry) domain.Principal {
	return domain.Principal{
		Address: e.Address,
		UserID:  e.UserID,
		IsAdmin: e.IsAdmin,
		Allowed: e.Allowed,
	}
}
