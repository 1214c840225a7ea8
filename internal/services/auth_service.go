package services

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type AdminStore interface {
	FindAdminByEmail(ctx context.Context, email string) (*Admin, error)
	InsertAdmin(ctx context.Context, a *Admin) error
	CountAdmins(ctx context.Context) (int, error)
}

type TokenSigner func(uid, email string, ttl time.Duration) (string, error)

type AuthService struct {
	store     AdminStore
	now       func() time.Time
	idGen     func(prefix string, n int) string
	signToken TokenSigner
	tokenTTL  time.Duration
}

type AuthResult struct {
	Token   string `json:"token"`
	AdminID string `json:"adminId"`
	Email   string `json:"email"`
}

func NewAuthService(store AdminStore, signer TokenSigner, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &AuthService{
		store:     store,
		now:       func() time.Time { return time.Now().UTC() },
		idGen:     func(prefix string, n int) string { return prefix + shortID(n) },
		signToken: signer,
		tokenTTL:  ttl,
	}
}

// Bootstrap creates the first admin account. It is refused once any admin exists.
func (s *AuthService) Bootstrap(ctx context.Context, email, password string) (*AuthResult, error) {
	n, err := s.store.CountAdmins(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return nil, NewForbiddenError("already initialized")
	}
	a, err := s.CreateAdmin(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return s.issue(a)
}

// CreateAdmin adds an admin account without signing a token.
func (s *AuthService) CreateAdmin(ctx context.Context, email, password string) (*Admin, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	if len(password) < 8 {
		return nil, NewFieldError("password", "must be at least 8 characters")
	}
	existing, err := s.store.FindAdminByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, NewConflictError("email exists")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	a := &Admin{ID: s.idGen("a", 7), Email: email, PassHash: hash, CreatedAt: s.now()}
	if err := s.store.InsertAdmin(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || strings.TrimSpace(password) == "" {
		return nil, NewInvalidError("email/password required")
	}
	a, err := s.store.FindAdminByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if a == nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(a.PassHash, []byte(password)); err != nil {
		return nil, NewUnauthorizedError("invalid credentials")
	}
	return s.issue(a)
}

func (s *AuthService) issue(a *Admin) (*AuthResult, error) {
	if s.signToken == nil {
		return nil, NewInvalidError("token signer not configured")
	}
	token, err := s.signToken(a.ID, a.Email, s.tokenTTL)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Token: token, AdminID: a.ID, Email: a.Email}, nil
}

func (s *AuthService) TokenTTL() time.Duration {
	return s.tokenTTL
}
