package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	netmail "net/mail"
	"net/url"

	"github.com/dajohi/goemail"

	"github.com/empowerfin/auth-service/internal/config"
)

// SMTPSender delivers mail through an SMTPS relay.
type SMTPSender struct {
	client      *goemail.SMTP
	fromName    string
	fromAddress string
}

// NewSMTPSender builds a sender from config. It returns (nil, nil) when no
// SMTP host is configured so the caller can fall back to another sender.
func NewSMTPSender(cfg config.MailConfig) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.User == "" || cfg.Password == "" {
		return nil, nil
	}

	from, err := netmail.ParseAddress(cfg.From)
	if err != nil {
		return nil, fmt.Errorf("parse SMTP_FROM: %w", err)
	}

	u := url.URL{
		Scheme: "smtps",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
	}
	client, err := goemail.NewSMTP(u.String(), &tls.Config{ServerName: cfg.Host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}

	return &SMTPSender{
		client:      client,
		fromName:    from.Name,
		fromAddress: from.Address,
	}, nil
}

// Send delivers a single message. goemail has no context support, so a
// cancelled context is only honoured before the dial.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := goemail.NewMessage(s.fromAddress, msg.Subject, msg.Body)
	m.SetName(s.fromName)
	m.AddTo(msg.To)
	if err := s.client.Send(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}
