// Package users holds the user record model, its stores and the
// registration, login and external sign-in flows built on them.
package users

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmitrijs2005/chatgate/internal/common"
	"github.com/dmitrijs2005/chatgate/internal/logging"
	"github.com/dmitrijs2005/chatgate/internal/server/auth"
)

const tracerName = "github.com/dmitrijs2005/chatgate/internal/server/users"

// PasswordHasher is satisfied by *passwords.Hasher.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hashed string) bool
}

// TokenIssuer is satisfied by *auth.TokenService.
type TokenIssuer interface {
	Issue(id auth.Identity) (string, error)
}

// LoginResult is a successful login: a session token and the user it
// belongs to, without the password hash.
type LoginResult struct {
	Token string
	User  *User
}

// Health is a snapshot of the store for readiness reporting.
type Health struct {
	Users          int
	SkippedRecords int64
}

type Service struct {
	repo   Repository
	hasher PasswordHasher
	tokens TokenIssuer
	logger logging.Logger
	tracer trace.Tracer

	now   func() time.Time
	newID func() (string, error)

	dummyOnce sync.Once
	dummyHash string
}

func NewService(repo Repository, hasher PasswordHasher, tokens TokenIssuer, logger logging.Logger) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		tokens: tokens,
		logger: logger,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		newID:  newUUID,
	}
}

func newUUID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Register validates in, rejects a taken email or mobile, and appends a new
// local user. The returned user carries no hash.
func (s *Service) Register(ctx context.Context, in RegisterInput) (_ *User, err error) {
	ctx, span := s.tracer.Start(ctx, "users.Register")
	defer func() { endSpan(span, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	if err := s.ensureAvailable(ctx, in.Email, in.Mobile); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %w", common.ErrorInternal, err)
	}

	u, err := s.newUser(ProviderLocal, in.Name, in.Email)
	if err != nil {
		return nil, err
	}
	u.Mobile = in.Mobile
	u.CompanyName = in.CompanyName
	u.PasswordHash = hash

	// Create re-checks uniqueness atomically; a concurrent registration
	// that won the race surfaces here as a duplicate error.
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("user.id", u.ID))
	s.logger.Info(ctx, "user registered", "user_id", u.ID, "provider", u.Provider)
	return u.withoutSecret(), nil
}

func (s *Service) ensureAvailable(ctx context.Context, email, mobile string) error {
	if _, err := s.repo.GetByEmail(ctx, email); err == nil {
		return ErrDuplicateEmail
	} else if !errors.Is(err, common.ErrorNotFound) {
		return storageError("lookup email", err)
	}

	if _, err := s.repo.GetByMobile(ctx, mobile); err == nil {
		return ErrDuplicateMobile
	} else if !errors.Is(err, common.ErrorNotFound) {
		return storageError("lookup mobile", err)
	}
	return nil
}

// Login checks the credentials and issues a session token. An unknown email
// and a wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, in LoginInput) (_ *LoginResult, err error) {
	ctx, span := s.tracer.Start(ctx, "users.Login")
	defer func() { endSpan(span, err) }()

	if err := in.Validate(); err != nil {
		return nil, err
	}

	if err := s.checkInitialized(ctx); err != nil {
		return nil, err
	}

	u, err := s.repo.GetByEmail(ctx, in.Email)
	if errors.Is(err, common.ErrorNotFound) {
		s.burnVerify(in.Password)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, storageError("lookup email", err)
	}

	if u.PasswordHash == "" {
		// external users have no password to log in with
		s.burnVerify(in.Password)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(in.Password, u.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(identityOf(u))
	if err != nil {
		return nil, fmt.Errorf("%w: issue token: %w", common.ErrorInternal, err)
	}

	span.SetAttributes(attribute.String("user.id", u.ID))
	s.logger.Info(ctx, "user logged in", "user_id", u.ID)
	return &LoginResult{Token: token, User: u.withoutSecret()}, nil
}

// checkInitialized reports ErrNoUsersYet for a store that has never been
// written to or cannot be read. An existing but empty store is initialized.
func (s *Service) checkInitialized(ctx context.Context) error {
	if ic, ok := s.repo.(InitChecker); ok {
		initialized, err := ic.Initialized(ctx)
		if err != nil {
			s.logger.Error(ctx, "user store unreadable at login", "error", err)
			return ErrNoUsersYet
		}
		if !initialized {
			return ErrNoUsersYet
		}
	}
	if _, err := s.repo.Count(ctx); err != nil {
		s.logger.Error(ctx, "user store unreadable at login", "error", err)
		return ErrNoUsersYet
	}
	return nil
}

// burnVerify spends roughly the time of a real verification so that
// misses are not distinguishable by latency.
func (s *Service) burnVerify(password string) {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.Hash(hex.EncodeToString(common.GenerateRandByteArray(16)))
		if err == nil {
			s.dummyHash = h
		}
	})
	if s.dummyHash != "" {
		_ = s.hasher.Verify(password, s.dummyHash)
	}
}

// MergeExternal returns the user stored under id.Email, creating an
// external-provider record (no password, no mobile, no company) on first
// sight. Existing records are never modified. created reports whether a
// record was appended.
func (s *Service) MergeExternal(ctx context.Context, id ExternalIdentity) (_ *User, created bool, err error) {
	ctx, span := s.tracer.Start(ctx, "users.MergeExternal")
	defer func() { endSpan(span, err) }()

	if err := id.Validate(); err != nil {
		return nil, false, err
	}

	existing, err := s.repo.GetByEmail(ctx, id.Email)
	if err == nil {
		return existing.withoutSecret(), false, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, false, storageError("lookup email", err)
	}

	u, err := s.newUser(ProviderExternal, id.Name, id.Email)
	if err != nil {
		return nil, false, err
	}

	err = s.repo.Create(ctx, u)
	if errors.Is(err, ErrDuplicateEmail) {
		// lost a race with another first sign-in for the same email
		existing, err := s.repo.GetByEmail(ctx, id.Email)
		if err != nil {
			return nil, false, storageError("lookup email", err)
		}
		return existing.withoutSecret(), false, nil
	}
	if err != nil {
		return nil, false, err
	}

	span.SetAttributes(attribute.String("user.id", u.ID))
	s.logger.Info(ctx, "external user merged", "user_id", u.ID, "provider", u.Provider)
	return u.withoutSecret(), true, nil
}

// List returns every stored user without hashes, in store order.
func (s *Service) List(ctx context.Context) ([]*User, error) {
	all, err := s.repo.All(ctx)
	if err != nil {
		return nil, storageError("list users", err)
	}
	out := make([]*User, 0, len(all))
	for _, u := range all {
		out = append(out, u.withoutSecret())
	}
	return out, nil
}

// Health reports the number of readable records; a read failure is returned
// as-is so probes can mark the service unavailable.
func (s *Service) Health(ctx context.Context) (Health, error) {
	n, err := s.repo.Count(ctx)
	if err != nil {
		return Health{}, err
	}
	h := Health{Users: n}
	if sc, ok := s.repo.(SkipCounter); ok {
		h.SkippedRecords = sc.SkippedRecords()
	}
	return h, nil
}

func (s *Service) newUser(p Provider, name, email string) (*User, error) {
	id, err := s.newID()
	if err != nil {
		return nil, fmt.Errorf("%w: generate id: %w", common.ErrorInternal, err)
	}
	return &User{
		ID:        id,
		Name:      name,
		Email:     email,
		CreatedAt: s.now().UTC().Truncate(time.Millisecond),
		Provider:  p,
	}, nil
}

func identityOf(u *User) auth.Identity {
	return auth.Identity{
		UserID:      u.ID,
		Email:       u.Email,
		Name:        u.Name,
		CompanyName: u.CompanyName,
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
