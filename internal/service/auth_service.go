package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/empowerfin/auth-service/internal/auth"
	"github.com/empowerfin/auth-service/internal/config"
	"github.com/empowerfin/auth-service/internal/domain"
	"github.com/empowerfin/auth-service/internal/events"
	"github.com/empowerfin/auth-service/internal/ratelimit"
	"github.com/empowerfin/auth-service/internal/repository"
	apperrors "github.com/empowerfin/auth-service/pkg/util/errorutil"
)

// Limiter bounds how often a key may trigger token issuance.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// JobRunner runs work detached from the request. worker.Runner satisfies it.
type JobRunner interface {
	Go(name string, fn func(ctx context.Context) error)
}

// AuthDependencies encapsulates collaborators for the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Dispatcher events.Dispatcher
	Limiter    Limiter
	Runner     JobRunner
	Logger     *zap.Logger
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User    *domain.User
	Session domain.Session
}

// ResetTokenStatus describes a pending reset token.
type ResetTokenStatus struct {
	Valid     bool
	Email     string
	ExpiresAt time.Time
}

// AuthService coordinates registration, login and the token flows.
type AuthService struct {
	users      repository.UserRepository
	tokens     *TokenService
	tokenMgr   *auth.TokenManager
	passwords  auth.SecretHasher
	dispatcher events.Dispatcher
	limiter    Limiter
	runner     JobRunner
	logger     *zap.Logger

	strictVerification bool
	autoVerify         bool

	// comparisonHash is checked against on unknown emails so a login miss
	// costs the same bcrypt work as a wrong password.
	comparisonHash string
}

// NewAuthService builds the service.
func NewAuthService(cfg config.Config, deps AuthDependencies) (*AuthService, error) {
	if deps.UserRepo == nil {
		return nil, errors.New("auth service: user repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	passwords := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	comparisonHash, err := passwords.Hash("not-a-real-password")
	if err != nil {
		return nil, fmt.Errorf("auth service: comparison hash: %w", err)
	}

	return &AuthService{
		users:              deps.UserRepo,
		tokens:             NewTokenService(cfg, deps.UserRepo, deps.Dispatcher, logger),
		tokenMgr:           auth.NewTokenManager(cfg.Auth),
		passwords:          passwords,
		dispatcher:         deps.Dispatcher,
		limiter:            deps.Limiter,
		runner:             deps.Runner,
		logger:             logger,
		strictVerification: cfg.Auth.StrictEmailVerification,
		autoVerify:         cfg.Auth.AutoVerifyEmail,
		comparisonHash:     comparisonHash,
	}, nil
}

// Register creates an account and returns it with a session.
func (s *AuthService) Register(ctx context.Context, name, email, password, rawRole string) (*AuthResult, error) {
	role, ok := domain.ParseRole(rawRole)
	if !ok {
		return nil, apperrors.NewValidationError("invalid role", map[string]any{
			"allowedRoles": domain.AllowedRoles(),
		})
	}
	name = strings.TrimSpace(name)
	email = domain.NormalizeEmail(email)
	if name == "" || email == "" {
		return nil, apperrors.NewValidationError("name and email are required", nil)
	}
	if err := auth.ValidatePassword(password); err != nil {
		return nil, apperrors.NewWeakPassword(err.Error())
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewEmailTaken()
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Name:          name,
		Email:         email,
		PasswordHash:  hash,
		Role:          role,
		EmailVerified: s.autoVerify,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.NewEmailTaken()
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if !user.EmailVerified {
		// The account exists either way; the user can ask for a resend.
		if _, err := s.tokens.Request(ctx, user, domain.TokenPurposeVerifyEmail); err != nil {
			s.logger.Warn("verification token not issued at registration",
				zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return &AuthResult{User: user, Session: session}, nil
}

// Login checks credentials and returns a session.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = domain.NormalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.passwords.Verify(password, s.comparisonHash)
			return nil, apperrors.NewInvalidCredentials()
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if !s.passwords.Verify(password, user.PasswordHash) {
		return nil, apperrors.NewInvalidCredentials()
	}
	if s.strictVerification && !user.EmailVerified {
		return nil, apperrors.NewEmailNotVerified()
	}

	session, err := s.issueSession(user)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, Session: session}, nil
}

// ForgotPassword issues a reset token when the email belongs to an account.
// It reports nothing back so callers cannot tell whether it did.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) {
	email = domain.NormalizeEmail(email)
	s.background(ctx, "forgot_password", func(ctx context.Context) error {
		user, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("lookup user: %w", err)
		}
		if !s.allow(ctx, domain.TokenPurposeReset, email) {
			return nil
		}
		_, err = s.tokens.Request(ctx, user, domain.TokenPurposeReset)
		return err
	})
}

// VerifyResetToken reports whether a reset token is still usable.
func (s *AuthService) VerifyResetToken(ctx context.Context, raw string) (*ResetTokenStatus, error) {
	user, err := s.tokens.Verify(ctx, domain.TokenPurposeReset, raw)
	if err != nil {
		return nil, err
	}
	status := &ResetTokenStatus{Valid: true, Email: user.Email}
	if user.ResetPasswordExpiresAt != nil {
		status.ExpiresAt = *user.ResetPasswordExpiresAt
	}
	return status, nil
}

// ResetPassword sets a new password using a reset token.
func (s *AuthService) ResetPassword(ctx context.Context, raw, newPassword, confirmPassword string) error {
	if newPassword != confirmPassword {
		return apperrors.NewValidationError("passwords do not match", nil)
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return apperrors.NewWeakPassword(err.Error())
	}
	if err := auth.CheckOpaqueToken(raw); err != nil {
		return apperrors.NewInvalidOrExpiredToken()
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	user, err := s.tokens.ConsumeReset(ctx, raw, hash)
	if err != nil {
		return err
	}

	s.logger.Info("password reset", zap.String("user_id", user.ID))
	s.publish(ctx, events.EventPasswordChanged, user)
	return nil
}

// ResendVerification issues a new verification token for an unverified
// account. Like ForgotPassword it reveals nothing.
func (s *AuthService) ResendVerification(ctx context.Context, email string) {
	email = domain.NormalizeEmail(email)
	s.background(ctx, "resend_verification", func(ctx context.Context) error {
		user, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return fmt.Errorf("lookup user: %w", err)
		}
		if user.EmailVerified {
			return nil
		}
		if !s.allow(ctx, domain.TokenPurposeVerifyEmail, email) {
			return nil
		}
		_, err = s.tokens.Request(ctx, user, domain.TokenPurposeVerifyEmail)
		return err
	})
}

// VerifyEmail consumes a verification token.
func (s *AuthService) VerifyEmail(ctx context.Context, raw string) (alreadyVerified bool, err error) {
	user, alreadyVerified, err := s.tokens.ConsumeVerification(ctx, raw)
	if err != nil {
		return false, err
	}
	if !alreadyVerified {
		s.logger.Info("email verified", zap.String("user_id", user.ID))
		s.publish(ctx, events.EventEmailVerified, user)
	}
	return alreadyVerified, nil
}

// ChangePassword verifies the current password before storing the new one.
// Any pending reset token is dropped.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperrors.NewUnauthorized("user not found")
		}
		return fmt.Errorf("lookup user: %w", err)
	}
	if !s.passwords.Verify(currentPassword, user.PasswordHash) {
		return apperrors.NewValidationError("current password is incorrect", nil)
	}
	if err := auth.ValidatePassword(newPassword); err != nil {
		return apperrors.NewWeakPassword(err.Error())
	}

	hash, err := s.passwords.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.publish(ctx, events.EventPasswordChanged, user)
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

// Tokens exposes the one-time token lifecycle.
func (s *AuthService) Tokens() *TokenService {
	return s.tokens
}

func (s *AuthService) issueSession(user *domain.User) (domain.Session, error) {
	token, exp, err := s.tokenMgr.GenerateToken(user.ID, user.Role)
	if err != nil {
		return domain.Session{}, fmt.Errorf("issue session: %w", err)
	}
	return domain.Session{Token: token, ExpiresAt: exp}, nil
}

// allow fails open: a limiter outage must not block password recovery.
func (s *AuthService) allow(ctx context.Context, purpose domain.TokenPurpose, email string) bool {
	if s.limiter == nil {
		return true
	}
	ok, err := s.limiter.Allow(ctx, ratelimit.Key(string(purpose), email))
	if err != nil {
		s.logger.Warn("rate limiter unavailable", zap.String("purpose", string(purpose)), zap.Error(err))
		return true
	}
	if !ok {
		s.logger.Info("token request rate limited", zap.String("purpose", string(purpose)))
	}
	return ok
}

// background runs fn on the job runner, or inline when none is set.
func (s *AuthService) background(ctx context.Context, name string, fn func(ctx context.Context) error) {
	if s.runner != nil {
		s.runner.Go(name, fn)
		return
	}
	if err := fn(ctx); err != nil {
		s.logger.Warn("job failed", zap.String("job", name), zap.Error(err))
	}
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, user *domain.User) {
	if s.dispatcher == nil {
		return
	}
	event := events.NewEvent(eventType, user.ID, user.Email, events.AccountPayload{Name: user.Name})
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("notification failed", zap.String("event_type", string(eventType)), zap.Error(err))
	}
}
