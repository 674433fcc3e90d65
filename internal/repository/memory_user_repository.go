package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/empowerfin/auth-service/internal/domain"
)

// MemoryUserRepository keeps credential records in process memory. It is
// used when no Postgres DSN is configured and by tests. Every read returns a
// copy, and consume operations hold the lock across check and clear.
type MemoryUserRepository struct {
	mu    sync.Mutex
	users map[string]*domain.User
	now   func() time.Time
}

// NewMemoryUserRepository constructs an empty store.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{users: make(map[string]*domain.User), now: time.Now}
}

func (r *MemoryUserRepository) Create(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing.Email == user.Email {
			return ErrDuplicateEmail
		}
	}

	now := r.now()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now
	r.users[user.ID] = cloneUser(user)
	return nil
}

func (r *MemoryUserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, user := range r.users {
		if user.Email == email {
			return cloneUser(user), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryUserRepository) GetByResetTokenHash(_ context.Context, hash string, now time.Time) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.findResetLocked(hash, now)
	if user == nil {
		return nil, ErrNotFound
	}
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) GetByVerificationTokenHash(_ context.Context, hash string, now time.Time) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.findVerificationLocked(hash, now)
	if user == nil {
		return nil, ErrNotFound
	}
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) SetResetToken(_ context.Context, userID, hash string, expiresAt time.Time) error {
	return r.update(userID, func(u *domain.User) {
		u.ResetPasswordTokenHash = &hash
		u.ResetPasswordExpiresAt = &expiresAt
	})
}

func (r *MemoryUserRepository) SetVerificationToken(_ context.Context, userID, hash string, expiresAt time.Time) error {
	return r.update(userID, func(u *domain.User) {
		u.EmailVerificationTokenHash = &hash
		u.EmailVerificationExpiresAt = &expiresAt
	})
}

func (r *MemoryUserRepository) ConsumeResetToken(_ context.Context, hash string, now time.Time, passwordHash string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.findResetLocked(hash, now)
	if user == nil {
		return nil, ErrNotFound
	}
	user.PasswordHash = passwordHash
	user.ResetPasswordTokenHash = nil
	user.ResetPasswordExpiresAt = nil
	user.UpdatedAt = now
	return cloneUser(user), nil
}

func (r *MemoryUserRepository) ConsumeVerificationToken(_ context.Context, hash string, now time.Time) (*domain.User, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	user := r.findVerificationLocked(hash, now)
	if user == nil {
		return nil, false, ErrNotFound
	}
	alreadyVerified := user.EmailVerified
	user.EmailVerified = true
	user.EmailVerificationTokenHash = nil
	user.EmailVerificationExpiresAt = nil
	user.UpdatedAt = now
	return cloneUser(user), alreadyVerified, nil
}

func (r *MemoryUserRepository) UpdateProfile(_ context.Context, id, name string) (*domain.User, error) {
	var updated *domain.User
	err := r.update(id, func(u *domain.User) {
		u.Name = name
		updated = cloneUser(u)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *MemoryUserRepository) UpdatePassword(_ context.Context, id, passwordHash string) error {
	return r.update(id, func(u *domain.User) {
		u.PasswordHash = passwordHash
		u.ResetPasswordTokenHash = nil
		u.ResetPasswordExpiresAt = nil
	})
}

func (r *MemoryUserRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[id]; !ok {
		return ErrNotFound
	}
	delete(r.users, id)
	return nil
}

func (r *MemoryUserRepository) Stats(_ context.Context) (*domain.UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := &domain.UserStats{ByRole: map[domain.Role]int64{}}
	for _, user := range r.users {
		stats.TotalUsers++
		stats.ByRole[user.Role]++
		if user.EmailVerified {
			stats.VerifiedUsers++
		}
	}
	return stats, nil
}

func (r *MemoryUserRepository) update(id string, fn func(u *domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	user, ok := r.users[id]
	if !ok {
		return ErrNotFound
	}
	fn(user)
	user.UpdatedAt = r.now()
	return nil
}

func (r *MemoryUserRepository) findResetLocked(hash string, now time.Time) *domain.User {
	for _, user := range r.users {
		if user.ResetPasswordTokenHash != nil && *user.ResetPasswordTokenHash == hash &&
			user.ResetPasswordExpiresAt != nil && user.ResetPasswordExpiresAt.After(now) {
			return user
		}
	}
	return nil
}

func (r *MemoryUserRepository) findVerificationLocked(hash string, now time.Time) *domain.User {
	for _, user := range r.users {
		if user.EmailVerificationTokenHash != nil && *user.EmailVerificationTokenHash == hash &&
			user.EmailVerificationExpiresAt != nil && user.EmailVerificationExpiresAt.After(now) {
			return user
		}
	}
	return nil
}

func cloneUser(u *domain.User) *domain.User {
	out := *u
	if u.EmailVerificationTokenHash != nil {
		v := *u.EmailVerificationTokenHash
		out.EmailVerificationTokenHash = &v
	}
	if u.EmailVerificationExpiresAt != nil {
		v := *u.EmailVerificationExpiresAt
		out.EmailVerificationExpiresAt = &v
	}
	if u.ResetPasswordTokenHash != nil {
		v := *u.ResetPasswordTokenHash
		out.ResetPasswordTokenHash = &v
	}
	if u.ResetPasswordExpiresAt != nil {
		v := *u.ResetPasswordExpiresAt
		out.ResetPasswordExpiresAt = &v
	}
	return &out
}

var _ UserRepository = (*MemoryUserRepository)(nil)
