// Package mail delivers one-time passcodes over the email side-channel.
package mail

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gomail "github.com/wneessen/go-mail"
)

// ErrNotConfigured is returned when SMTP settings are absent. The
// verification flow reports it to the user as an invalid email, which keeps
// the session correctable.
var ErrNotConfigured = errors.New("email delivery not configured")

const otpSubject = "Your OTP for Historical Monuments Bot"

const otpBodyFormat = `Hello,

Thank you for your interest in historical monuments!

Your OTP for email verification is: %s

Please enter this code in our chat to complete the verification.

Best Regards,
Historical Monuments Bot
`

// Sender dispatches an OTP to an email address.
type Sender interface {
	SendOTP(ctx context.Context, to, code string) error
}

// SMTPSender sends OTP mail through an SMTP relay with STARTTLS.
type SMTPSender struct {
	client *gomail.Client
	from   string
}

// Config holds SMTP relay settings.
type Config struct {
	Host        string
	Port        int
	User        string
	AppPassword string
}

// NewSMTPSender builds a sender for the given relay. Returns
// ErrNotConfigured when host or user is empty so callers can fall back to a
// disabled sender.
func NewSMTPSender(cfg Config) (*SMTPSender, error) {
	if cfg.Host == "" || cfg.User == "" {
		return nil, ErrNotConfigured
	}

	client, err := gomail.NewClient(cfg.Host,
		gomail.WithPort(cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.User),
		gomail.WithPassword(cfg.AppPassword),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &SMTPSender{client: client, from: cfg.User}, nil
}

// SendOTP delivers the code to the address. An SMTP error or a rejected
// address both surface as an error; the caller decides how to recover.
func (s *SMTPSender) SendOTP(ctx context.Context, to, code string) error {
	msg := gomail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("set sender address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set recipient address: %w", err)
	}
	msg.Subject(otpSubject)
	msg.SetBodyString(gomail.TypeTextPlain, fmt.Sprintf(otpBodyFormat, code))

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send otp email: %w", err)
	}

	slog.Info("OTP email sent", "to", to)
	return nil
}

// DisabledSender always fails with ErrNotConfigured. Used when the relay is
// not set up so the rest of the system behaves as if every address were
// invalid.
type DisabledSender struct{}

// SendOTP implements Sender.
func (DisabledSender) SendOTP(_ context.Context, to, _ string) error {
	slog.Warn("OTP email requested but delivery is not configured", "to", to)
	return ErrNotConfigured
}
