package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/empowerfin/auth-service/internal/config"
	"github.com/empowerfin/auth-service/internal/events"
	"github.com/empowerfin/auth-service/internal/mail"
	"github.com/empowerfin/auth-service/internal/service"
)

func TestRunner_WaitsForJobs(t *testing.T) {
	r := NewRunner(time.Second, zap.NewNop())
	var done atomic.Int32

	for i := 0; i < 5; i++ {
		r.Go("count", func(ctx context.Context) error {
			done.Add(1)
			return nil
		})
	}
	r.Wait()
	assert.Equal(t, int32(5), done.Load())
}

func TestRunner_SurvivesErrorsAndPanics(t *testing.T) {
	r := NewRunner(time.Second, zap.NewNop())
	r.Go("fails", func(ctx context.Context) error { return errors.New("boom") })
	r.Go("panics", func(ctx context.Context) error { panic("boom") })
	r.Wait()
}

func TestRunner_AppliesTimeout(t *testing.T) {
	r := NewRunner(10*time.Millisecond, zap.NewNop())
	var deadline atomic.Bool
	r.Go("slow", func(ctx context.Context) error {
		<-ctx.Done()
		deadline.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	})
	r.Wait()
	assert.True(t, deadline.Load())
}

func TestStart_DeliversMailThroughRunner(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher()
	sender := mail.NewMemorySender()
	notifications := service.NewNotificationService(dispatcher, sender, zap.NewNop(), config.AuthConfig{EmailVerificationTTLHours: 24})

	r := Start(notifications, time.Second, zap.NewNop())
	r.Go("verify-mail", func(ctx context.Context) error {
		return dispatcher.Publish(ctx, events.NewEvent(
			events.EventEmailVerificationRequested, "u1", "a@example.com",
			events.TokenIssuedPayload{Name: "Ada", Link: "https://app/auth/verify-email?token=abc", ExpiresAt: time.Now()},
		))
	})
	r.Wait()

	msg, ok := sender.Last()
	require.True(t, ok)
	assert.Equal(t, "a@example.com", msg.To)
	assert.Contains(t, msg.Body, "token=abc")
}

func TestStart_NilNotifications(t *testing.T) {
	r := Start(nil, 0, nil)
	require.NotNil(t, r)
	r.Wait()
}
