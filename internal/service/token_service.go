package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/empowerfin/auth-service/internal/auth"
	"github.com/empowerfin/auth-service/internal/config"
	"github.com/empowerfin/auth-service/internal/domain"
	"github.com/empowerfin/auth-service/internal/events"
	"github.com/empowerfin/auth-service/internal/repository"
	apperrors "github.com/empowerfin/auth-service/pkg/util/errorutil"
)

// TokenService issues, checks and consumes one-time reset and verification
// tokens. Only SHA-256 digests of the tokens are ever stored.
type TokenService struct {
	users       repository.UserRepository
	dispatcher  events.Dispatcher
	logger      *zap.Logger
	hasher      auth.TokenHasher
	frontendURL string
	resetTTL    time.Duration
	verifyTTL   time.Duration

	// NowFunc is the clock; tests replace it.
	NowFunc func() time.Time
}

// NewTokenService builds the service.
func NewTokenService(cfg config.Config, users repository.UserRepository, dispatcher events.Dispatcher, logger *zap.Logger) *TokenService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TokenService{
		users:       users,
		dispatcher:  dispatcher,
		logger:      logger,
		frontendURL: cfg.App.FrontendURL,
		resetTTL:    cfg.Auth.PasswordResetTTL(),
		verifyTTL:   cfg.Auth.EmailVerificationTTL(),
		NowFunc:     time.Now,
	}
}

// Request issues a fresh token for purpose, replacing any pending one, and
// publishes the mail event. A delivery failure is logged and the stored token
// stays valid.
func (s *TokenService) Request(ctx context.Context, user *domain.User, purpose domain.TokenPurpose) (*domain.IssuedToken, error) {
	if user == nil {
		return nil, errors.New("token request: nil user")
	}
	if !purpose.Valid() {
		return nil, fmt.Errorf("unknown token purpose %q", purpose)
	}

	raw, err := auth.GenerateOpaqueToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	digest := auth.HashToken(raw)
	now := s.NowFunc()

	var (
		expiresAt time.Time
		eventType events.EventType
		path      string
	)
	switch purpose {
	case domain.TokenPurposeReset:
		expiresAt = now.Add(s.resetTTL)
		eventType = events.EventPasswordResetRequested
		path = "/auth/reset-password"
		err = s.users.SetResetToken(ctx, user.ID, digest, expiresAt)
	case domain.TokenPurposeVerifyEmail:
		expiresAt = now.Add(s.verifyTTL)
		eventType = events.EventEmailVerificationRequested
		path = "/auth/verify-email"
		err = s.users.SetVerificationToken(ctx, user.ID, digest, expiresAt)
	default:
		return nil, fmt.Errorf("unknown token purpose %q", purpose)
	}
	if err != nil {
		return nil, fmt.Errorf("store %s token: %w", purpose, err)
	}

	issued := &domain.IssuedToken{
		Purpose:   purpose,
		UserID:    user.ID,
		Email:     user.Email,
		Raw:       raw,
		ExpiresAt: expiresAt,
	}

	if s.dispatcher != nil {
		payload := events.TokenIssuedPayload{
			Name:      user.Name,
			Link:      s.link(path, raw),
			ExpiresAt: expiresAt,
		}
		if err := s.dispatcher.Publish(ctx, events.NewEvent(eventType, user.ID, user.Email, payload)); err != nil {
			s.logger.Warn("token mail delivery failed",
				zap.String("purpose", string(purpose)),
				zap.String("user_id", user.ID),
				zap.Error(err))
		}
	}

	return issued, nil
}

// Verify resolves a pending, unexpired token without consuming it.
func (s *TokenService) Verify(ctx context.Context, purpose domain.TokenPurpose, raw string) (*domain.User, error) {
	if err := auth.CheckOpaqueToken(raw); err != nil {
		return nil, apperrors.NewInvalidOrExpiredToken()
	}
	digest := auth.HashToken(raw)
	now := s.NowFunc()

	var (
		user   *domain.User
		stored *string
		err    error
	)
	switch purpose {
	case domain.TokenPurposeReset:
		user, err = s.users.GetByResetTokenHash(ctx, digest, now)
		if user != nil {
			stored = user.ResetPasswordTokenHash
		}
	case domain.TokenPurposeVerifyEmail:
		user, err = s.users.GetByVerificationTokenHash(ctx, digest, now)
		if user != nil {
			stored = user.EmailVerificationTokenHash
		}
	default:
		return nil, fmt.Errorf("unknown token purpose %q", purpose)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewInvalidOrExpiredToken()
		}
		return nil, fmt.Errorf("lookup %s token: %w", purpose, err)
	}
	if stored == nil || !s.hasher.Verify(raw, *stored) {
		return nil, apperrors.NewInvalidOrExpiredToken()
	}
	return user, nil
}

// ConsumeReset swaps in passwordHash and clears the reset token in one write.
func (s *TokenService) ConsumeReset(ctx context.Context, raw, passwordHash string) (*domain.User, error) {
	if err := auth.CheckOpaqueToken(raw); err != nil {
		return nil, apperrors.NewInvalidOrExpiredToken()
	}
	user, err := s.users.ConsumeResetToken(ctx, auth.HashToken(raw), s.NowFunc(), passwordHash)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperrors.NewInvalidOrExpiredToken()
		}
		return nil, fmt.Errorf("consume reset token: %w", err)
	}
	return user, nil
}

// ConsumeVerification marks the email verified and clears the verification
// token in one write. alreadyVerified reports the state before the write.
func (s *TokenService) ConsumeVerification(ctx context.Context, raw string) (*domain.User, bool, error) {
	if err := auth.CheckOpaqueToken(raw); err != nil {
		return nil, false, apperrors.NewInvalidOrExpiredToken()
	}
	user, alreadyVerified, err := s.users.ConsumeVerificationToken(ctx, auth.HashToken(raw), s.NowFunc())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, false, apperrors.NewInvalidOrExpiredToken()
		}
		return nil, false, fmt.Errorf("consume verification token: %w", err)
	}
	return user, alreadyVerified, nil
}

func (s *TokenService) link(path, raw string) string {
	return s.frontendURL + path + "?token=" + url.QueryEscape(raw)
}
