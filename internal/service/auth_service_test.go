package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/empowerfin/auth-service/internal/config"
	"github.com/empowerfin/auth-service/internal/domain"
	"github.com/empowerfin/auth-service/internal/events"
	"github.com/empowerfin/auth-service/internal/mail"
	"github.com/empowerfin/auth-service/internal/repository"
	apperrors "github.com/empowerfin/auth-service/pkg/util/errorutil"
)

var tokenInLink = regexp.MustCompile(`token=([0-9a-f]{64})`)

type authFixture struct {
	svc    *AuthService
	users  *repository.MemoryUserRepository
	sender *mail.MemorySender
	now    time.Time
}

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (l *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	l.keys = append(l.keys, key)
	return l.allow, l.err
}

func testConfig() config.Config {
	return config.Config{
		App: config.AppConfig{FrontendURL: "https://app.example.org"},
		Auth: config.AuthConfig{
			JWTSecret:                 "test-secret",
			AccessTokenTTLMinutes:     60,
			PasswordResetTTLMinutes:   15,
			EmailVerificationTTLHours: 24,
			BcryptCost:                4,
		},
	}
}

func newAuthFixture(t *testing.T, mutate func(cfg *config.Config, deps *AuthDependencies)) *authFixture {
	t.Helper()
	cfg := testConfig()

	f := &authFixture{
		users:  repository.NewMemoryUserRepository(),
		sender: mail.NewMemorySender(),
		now:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	dispatcher := events.NewInMemoryDispatcher()
	deps := AuthDependencies{
		UserRepo:   f.users,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
	}
	if mutate != nil {
		mutate(&cfg, &deps)
	}
	NewNotificationService(dispatcher, f.sender, zap.NewNop(), cfg.Auth).RegisterHandlers()

	svc, err := NewAuthService(cfg, deps)
	require.NoError(t, err)
	svc.tokens.NowFunc = func() time.Time { return f.now }
	f.svc = svc
	return f
}

func (f *authFixture) register(t *testing.T, email, password string) *domain.User {
	t.Helper()
	res, err := f.svc.Register(context.Background(), "Test User", email, password, "beneficiary")
	require.NoError(t, err)
	return res.User
}

// lastToken pulls the raw token out of the most recent email.
func (f *authFixture) lastToken(t *testing.T) string {
	t.Helper()
	msg, ok := f.sender.Last()
	require.True(t, ok, "no mail sent")
	m := tokenInLink.FindStringSubmatch(msg.Body)
	require.Len(t, m, 2, "no token in mail body")
	return m[1]
}

func (f *authFixture) requestReset(t *testing.T, email string) string {
	t.Helper()
	before := len(f.sender.Messages())
	f.svc.ForgotPassword(context.Background(), email)
	require.Len(t, f.sender.Messages(), before+1)
	return f.lastToken(t)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func TestRegister_InvalidRole(t *testing.T) {
	f := newAuthFixture(t, nil)

	_, err := f.svc.Register(context.Background(), "n", "a@example.com", "longenough1", "superuser")
	require.Error(t, err)

	de := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidation, de.Code)
	assert.Equal(t, 400, de.HTTPStatus)
	assert.Equal(t, domain.AllowedRoles(), de.Details["allowedRoles"])
}

func TestRegister_NormalizesAndRejectsDuplicates(t *testing.T) {
	f := newAuthFixture(t, nil)

	u := f.register(t, "  A@Example.COM ", "longenough1")
	assert.Equal(t, "a@example.com", u.Email)

	_, err := f.svc.Register(context.Background(), "n", "a@EXAMPLE.com", "longenough1", "donor")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEmailTaken))
}

func TestRegister_WeakPassword(t *testing.T) {
	f := newAuthFixture(t, nil)

	_, err := f.svc.Register(context.Background(), "n", "a@example.com", "short", "donor")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeWeakPassword))

	_, err = f.users.GetByEmail(context.Background(), "a@example.com")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRegister_VerificationModes(t *testing.T) {
	t.Run("lenient sends verification", func(t *testing.T) {
		f := newAuthFixture(t, nil)
		res, err := f.svc.Register(context.Background(), "n", "a@example.com", "longenough1", "beneficiary")
		require.NoError(t, err)

		assert.False(t, res.User.EmailVerified)
		assert.NotEmpty(t, res.Session.Token)
		msg, ok := f.sender.Last()
		require.True(t, ok)
		assert.Contains(t, msg.Body, "https://app.example.org/auth/verify-email?token=")
	})

	t.Run("auto verify", func(t *testing.T) {
		f := newAuthFixture(t, func(cfg *config.Config, _ *AuthDependencies) {
			cfg.Auth.AutoVerifyEmail = true
		})
		res, err := f.svc.Register(context.Background(), "n", "a@example.com", "longenough1", "beneficiary")
		require.NoError(t, err)

		assert.True(t, res.User.EmailVerified)
		assert.Empty(t, f.sender.Messages())
	})
}

func TestLogin_IdenticalFailures(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.register(t, "a@example.com", "longenough1")

	_, unknown := f.svc.Login(context.Background(), "nobody@example.com", "longenough1")
	_, wrong := f.svc.Login(context.Background(), "a@example.com", "wrongpassword")

	require.Error(t, unknown)
	require.Error(t, wrong)
	assert.Equal(t, apperrors.ToDomainError(unknown), apperrors.ToDomainError(wrong))
	assert.Equal(t, 401, apperrors.ToDomainError(wrong).HTTPStatus)
}

func TestLogin_StrictVerification(t *testing.T) {
	f := newAuthFixture(t, func(cfg *config.Config, _ *AuthDependencies) {
		cfg.Auth.StrictEmailVerification = true
	})
	f.register(t, "a@example.com", "longenough1")
	raw := f.lastToken(t)

	_, err := f.svc.Login(context.Background(), "a@example.com", "longenough1")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEmailNotVerified))

	already, err := f.svc.VerifyEmail(context.Background(), raw)
	require.NoError(t, err)
	assert.False(t, already)

	res, err := f.svc.Login(context.Background(), "a@example.com", "longenough1")
	require.NoError(t, err)
	assert.True(t, res.User.EmailVerified)
}

func TestResetToken_SingleUse(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.register(t, "a@example.com", "longenough1")
	raw := f.requestReset(t, "a@example.com")

	require.NoError(t, f.svc.ResetPassword(context.Background(), raw, "newlongpass1", "newlongpass1"))

	err := f.svc.ResetPassword(context.Background(), raw, "otherpass12", "otherpass12")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidOrExpiredToken))

	_, err = f.svc.VerifyResetToken(context.Background(), raw)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidOrExpiredToken))
}

func TestResetToken_Expiry(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.register(t, "a@example.com", "longenough1")
	raw := f.requestReset(t, "a@example.com")

	f.now = f.now.Add(15 * time.Minute)
	_, err := f.svc.VerifyResetToken(context.Background(), raw)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidOrExpiredToken), "expiry must be strictly in the future")

	f.now = f.now.Add(time.Second)
	err = f.svc.ResetPassword(context.Background(), raw, "newlongpass1", "newlongpass1")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidOrExpiredToken))
}

func TestResetToken_Supersession(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.register(t, "a@example.com", "longenough1")
	first := f.requestReset(t, "a@example.com")
	f.now = f.now.Add(time.Minute)
	second := f.requestReset(t, "a@example.com")
	require.NotEqual(t, first, second)

	err := f.svc.ResetPassword(context.Background(), first, "newlongpass1", "newlongpass1")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidOrExpiredToken))

	require.NoError(t, f.svc.ResetPassword(context.Background(), second, "newlongpass1", "newlongpass1"))
}

func TestVerifyResetToken_DoesNotConsume(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.register(t, "a@example.com", "longenough1")
	raw := f.requestReset(t, "a@example.com")

	for i := 0; i < 2; i++ {
		status, err := f.svc.VerifyResetToken(context.Background(), raw)
		require.NoError(t, err)
		assert.True(t, status.Valid)
		assert.Equal(t, "a@example.com", status.Email)
		assert.Equal(t, f.now.Add(15*time.Minute), status.ExpiresAt)
	}
	require.NoError(t, f.svc.ResetPassword(context.Background(), raw, "newlongpass1", "newlongpass1"))
}

func TestResetPassword_ValidationKeepsToken(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.register(t, "a@example.com", "longenough1")
	raw := f.requestReset(t, "a@example.com")

	err := f.svc.ResetPassword(context.Background(), raw, "newlongpass1", "different12")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	err = f.svc.ResetPassword(context.Background(), raw, "short", "short")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeWeakPassword))

	err = f.svc.ResetPassword(context.Background(), "not-a-token", "newlongpass1", "newlongpass1")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidOrExpiredToken))

	require.NoError(t, f.svc.ResetPassword(context.Background(), raw, "newlongpass1", "newlongpass1"))
}

func TestResetPassword_ConcurrentConsume(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.register(t, "a@example.com", "longenough1")
	raw := f.requestReset(t, "a@example.com")

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := f.svc.ResetPassword(context.Background(), raw, "newlongpass1", "newlongpass1"); err == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, successes)
}

func TestHashOnlyStorage(t *testing.T) {
	f := newAuthFixture(t, nil)
	const password = "longenough1"
	f.register(t, "a@example.com", password)
	verifyRaw := f.lastToken(t)
	resetRaw := f.requestReset(t, "a@example.com")

	stored, err := f.users.GetByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)

	fields := []string{
		stored.ID, stored.Name, stored.Email, stored.PasswordHash, string(stored.Role),
		deref(stored.ResetPasswordTokenHash), deref(stored.EmailVerificationTokenHash),
	}
	for _, field := range fields {
		assert.NotContains(t, field, password)
		assert.NotContains(t, field, verifyRaw)
		assert.NotContains(t, field, resetRaw)
	}
	assert.NotEmpty(t, deref(stored.ResetPasswordTokenHash))
	assert.NotEmpty(t, deref(stored.EmailVerificationTokenHash))
}

func TestForgotPassword_UnknownEmailIsSilent(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.svc.ForgotPassword(context.Background(), "nobody@example.com")
	assert.Empty(t, f.sender.Messages())
}

func TestForgotPassword_RateLimited(t *testing.T) {
	limiter := &stubLimiter{allow: false}
	f := newAuthFixture(t, func(_ *config.Config, deps *AuthDependencies) {
		deps.Limiter = limiter
	})
	f.register(t, "a@example.com", "longenough1")
	before := len(f.sender.Messages())

	f.svc.ForgotPassword(context.Background(), "A@example.com")

	assert.Len(t, f.sender.Messages(), before)
	assert.Equal(t, []string{"reset:a@example.com"}, limiter.keys)
	stored, err := f.users.GetByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.Nil(t, stored.ResetPasswordTokenHash)
}

func TestForgotPassword_LimiterErrorFailsOpen(t *testing.T) {
	f := newAuthFixture(t, func(_ *config.Config, deps *AuthDependencies) {
		deps.Limiter = &stubLimiter{err: errors.New("redis down")}
	})
	f.register(t, "a@example.com", "longenough1")
	f.requestReset(t, "a@example.com")
}

func TestForgotPassword_MailFailureKeepsToken(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.register(t, "a@example.com", "longenough1")
	f.sender.Err = errors.New("relay down")

	f.svc.ForgotPassword(context.Background(), "a@example.com")

	stored, err := f.users.GetByEmail(context.Background(), "a@example.com")
	require.NoError(t, err)
	assert.NotNil(t, stored.ResetPasswordTokenHash)
	assert.NotNil(t, stored.ResetPasswordExpiresAt)
}

func TestResendVerification(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.register(t, "a@example.com", "longenough1")
	first := f.lastToken(t)

	f.svc.ResendVerification(context.Background(), "a@example.com")
	second := f.lastToken(t)
	require.NotEqual(t, first, second)

	_, err := f.svc.VerifyEmail(context.Background(), first)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidOrExpiredToken))

	already, err := f.svc.VerifyEmail(context.Background(), second)
	require.NoError(t, err)
	assert.False(t, already)

	before := len(f.sender.Messages())
	f.svc.ResendVerification(context.Background(), "a@example.com")
	f.svc.ResendVerification(context.Background(), "nobody@example.com")
	assert.Len(t, f.sender.Messages(), before, "verified and unknown accounts get nothing")
}

func TestVerifyEmail_AlreadyVerifiedAndReplay(t *testing.T) {
	f := newAuthFixture(t, func(cfg *config.Config, _ *AuthDependencies) {
		cfg.Auth.AutoVerifyEmail = true
	})
	u := f.register(t, "a@example.com", "longenough1")

	issued, err := f.svc.Tokens().Request(context.Background(), u, domain.TokenPurposeVerifyEmail)
	require.NoError(t, err)

	already, err := f.svc.VerifyEmail(context.Background(), issued.Raw)
	require.NoError(t, err)
	assert.True(t, already)

	_, err = f.svc.VerifyEmail(context.Background(), issued.Raw)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidOrExpiredToken))
}

func TestVerifyEmail_Expired(t *testing.T) {
	f := newAuthFixture(t, nil)
	f.register(t, "a@example.com", "longenough1")
	raw := f.lastToken(t)

	f.now = f.now.Add(24*time.Hour + time.Second)
	_, err := f.svc.VerifyEmail(context.Background(), raw)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidOrExpiredToken))
}

func TestChangePassword(t *testing.T) {
	f := newAuthFixture(t, nil)
	u := f.register(t, "a@example.com", "longenough1")
	resetRaw := f.requestReset(t, "a@example.com")

	err := f.svc.ChangePassword(context.Background(), u.ID, "wrongpassword", "newlongpass1")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeValidation))

	err = f.svc.ChangePassword(context.Background(), u.ID, "longenough1", "short")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeWeakPassword))

	require.NoError(t, f.svc.ChangePassword(context.Background(), u.ID, "longenough1", "newlongpass1"))

	_, err = f.svc.Login(context.Background(), "a@example.com", "newlongpass1")
	require.NoError(t, err)

	err = f.svc.ResetPassword(context.Background(), resetRaw, "another1234", "another1234")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidOrExpiredToken), "changing the password drops pending resets")

	msg, ok := f.sender.Last()
	require.True(t, ok)
	assert.Equal(t, "Password Changed Successfully", msg.Subject)
}

func TestRegisterLoginResetScenario(t *testing.T) {
	f := newAuthFixture(t, func(cfg *config.Config, _ *AuthDependencies) {
		cfg.Auth.StrictEmailVerification = true
	})
	ctx := context.Background()

	res, err := f.svc.Register(ctx, "Ada", "a@example.com", "longenough1", "beneficiary")
	require.NoError(t, err)
	assert.False(t, res.User.EmailVerified)
	assert.Equal(t, domain.RoleBeneficiary, res.User.Role)

	_, err = f.svc.Login(ctx, "a@example.com", "longenough1")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeEmailNotVerified))

	raw := f.requestReset(t, "a@example.com")
	stored, err := f.users.GetByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, raw, deref(stored.ResetPasswordTokenHash))
	assert.False(t, strings.Contains(deref(stored.ResetPasswordTokenHash), raw))

	require.NoError(t, f.svc.ResetPassword(ctx, raw, "newlongpass1", "newlongpass1"))

	_, err = f.svc.VerifyEmail(ctx, tokenInLink.FindStringSubmatch(f.sender.Messages()[0].Body)[1])
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "a@example.com", "longenough1")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidCredentials))

	_, err = f.svc.Login(ctx, "a@example.com", "newlongpass1")
	require.NoError(t, err)
}
