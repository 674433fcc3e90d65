package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/empowerfin/auth-service/internal/config"
	"github.com/empowerfin/auth-service/internal/events"
	"github.com/empowerfin/auth-service/internal/mail"
)

// NotificationService turns auth events into emails.
type NotificationService struct {
	dispatcher events.Dispatcher
	sender     mail.Sender
	logger     *zap.Logger
	cfg        config.AuthConfig
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, sender mail.Sender, logger *zap.Logger, cfg config.AuthConfig) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		sender:     sender,
		logger:     logger,
		cfg:        cfg,
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil || n.sender == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventPasswordResetRequested, n.handlePasswordResetRequested)
	n.dispatcher.Subscribe(events.EventEmailVerificationRequested, n.handleEmailVerificationRequested)
	n.dispatcher.Subscribe(events.EventPasswordChanged, n.handlePasswordChanged)
	n.dispatcher.Subscribe(events.EventEmailVerified, n.handleEmailVerified)
}

func (n *NotificationService) handlePasswordResetRequested(ctx context.Context, event events.Event) error {
	return n.sendTokenMail(ctx, event, mail.TemplatePasswordReset, n.cfg.PasswordResetTTL())
}

func (n *NotificationService) handleEmailVerificationRequested(ctx context.Context, event events.Event) error {
	return n.sendTokenMail(ctx, event, mail.TemplateEmailVerification, n.cfg.EmailVerificationTTL())
}

func (n *NotificationService) handlePasswordChanged(ctx context.Context, event events.Event) error {
	return n.sendAccountMail(ctx, event, mail.TemplatePasswordChanged)
}

func (n *NotificationService) handleEmailVerified(ctx context.Context, event events.Event) error {
	return n.sendAccountMail(ctx, event, mail.TemplateEmailVerified)
}

func (n *NotificationService) sendTokenMail(ctx context.Context, event events.Event, tmpl string, ttl time.Duration) error {
	payload, ok := event.Payload.(events.TokenIssuedPayload)
	if !ok {
		return fmt.Errorf("%s: unexpected payload %T", event.Type, event.Payload)
	}
	msg, err := mail.Render(tmpl, event.Email, map[string]string{
		"Name":      payload.Name,
		"Link":      payload.Link,
		"ExpiresIn": humanDuration(ttl),
	})
	if err != nil {
		return err
	}
	return n.deliver(ctx, event, msg)
}

func (n *NotificationService) sendAccountMail(ctx context.Context, event events.Event, tmpl string) error {
	payload, _ := event.Payload.(events.AccountPayload)
	msg, err := mail.Render(tmpl, event.Email, map[string]string{"Name": payload.Name})
	if err != nil {
		return err
	}
	return n.deliver(ctx, event, msg)
}

func (n *NotificationService) deliver(ctx context.Context, event events.Event, msg mail.Message) error {
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send %s mail: %w", event.Type, err)
	}
	n.logger.Debug("notification sent",
		zap.String("event_type", string(event.Type)),
		zap.String("user_id", event.UserID))
	return nil
}

func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	case d >= time.Minute:
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	default:
		return d.String()
	}
}
