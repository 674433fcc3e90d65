package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empowerfin/auth-service/internal/domain"
)

func seedUser(t *testing.T, repo *MemoryUserRepository, email string) *domain.User {
	t.Helper()
	user := &domain.User{Name: "Ada", Email: email, PasswordHash: "old", Role: domain.RoleBeneficiary}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestMemory_CreateRejectsDuplicateEmail(t *testing.T) {
	repo := NewMemoryUserRepository()
	seedUser(t, repo, "a@example.com")

	err := repo.Create(context.Background(), &domain.User{Email: "a@example.com"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	repo := NewMemoryUserRepository()
	user := seedUser(t, repo, "a@example.com")

	got, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	got.Role = domain.RoleAdmin

	again, err := repo.GetByID(context.Background(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleBeneficiary, again.Role)
}

func TestMemory_TokenLookupHonoursExpiry(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	user := seedUser(t, repo, "a@example.com")
	now := time.Now()

	require.NoError(t, repo.SetResetToken(ctx, user.ID, "digest", now.Add(time.Minute)))

	_, err := repo.GetByResetTokenHash(ctx, "digest", now)
	require.NoError(t, err)

	_, err = repo.GetByResetTokenHash(ctx, "digest", now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrNotFound, "expiry equal to now is expired")
}

func TestMemory_SetTokenOverwrites(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	user := seedUser(t, repo, "a@example.com")
	exp := time.Now().Add(time.Hour)

	require.NoError(t, repo.SetVerificationToken(ctx, user.ID, "first", exp))
	require.NoError(t, repo.SetVerificationToken(ctx, user.ID, "second", exp))

	_, err := repo.GetByVerificationTokenHash(ctx, "first", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = repo.GetByVerificationTokenHash(ctx, "second", time.Now())
	assert.NoError(t, err)
}

func TestMemory_ConcurrentConsumeSucceedsOnce(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	user := seedUser(t, repo, "a@example.com")
	require.NoError(t, repo.SetResetToken(ctx, user.ID, "digest", time.Now().Add(time.Hour)))

	var (
		wg        sync.WaitGroup
		successes atomic.Int32
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.ConsumeResetToken(ctx, "digest", time.Now(), "new"); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	stored, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", stored.PasswordHash)
	assert.Nil(t, stored.ResetPasswordTokenHash)
	assert.Nil(t, stored.ResetPasswordExpiresAt)
}

func TestMemory_ConsumeVerificationReportsPriorState(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	user := seedUser(t, repo, "a@example.com")
	require.NoError(t, repo.SetVerificationToken(ctx, user.ID, "digest", time.Now().Add(time.Hour)))

	got, already, err := repo.ConsumeVerificationToken(ctx, "digest", time.Now())
	require.NoError(t, err)
	assert.False(t, already)
	assert.True(t, got.EmailVerified)

	_, _, err = repo.ConsumeVerificationToken(ctx, "digest", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_UpdatePasswordClearsResetToken(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	user := seedUser(t, repo, "a@example.com")
	require.NoError(t, repo.SetResetToken(ctx, user.ID, "digest", time.Now().Add(time.Hour)))

	require.NoError(t, repo.UpdatePassword(ctx, user.ID, "changed"))

	_, err := repo.GetByResetTokenHash(ctx, "digest", time.Now())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemory_StatsAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryUserRepository()
	a := seedUser(t, repo, "a@example.com")
	seedUser(t, repo, "b@example.com")

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalUsers)
	assert.Equal(t, int64(2), stats.ByRole[domain.RoleBeneficiary])

	require.NoError(t, repo.Delete(ctx, a.ID))
	assert.ErrorIs(t, repo.Delete(ctx, a.ID), ErrNotFound)
}
