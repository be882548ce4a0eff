// Package email implements the email notification channel over SMTP. It is
// the most reliable fallback: it has no phone-format dependency and is always
// attempted last in the fixed channel order.
package email

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Tjuaco/Molaris-sub001/internal/notify"
	"github.com/Tjuaco/Molaris-sub001/internal/providers/smtp"
)

// Mailer is the SMTP surface this sender needs.
type Mailer interface {
	Send(ctx context.Context, payload smtp.Payload) error
}

// Sender delivers appointment notifications as plain email.
type Sender struct {
	mailer Mailer // nil when SMTP is not configured
	logger zerolog.Logger
}

// New constructs the email sender. mailer may be nil; the channel then
// degrades to unavailable.
func New(mailer Mailer, logger zerolog.Logger) *Sender {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Sender{mailer: mailer, logger: logger}
}

func (s *Sender) Channel() notify.Channel { return notify.ChannelEmail }

// Eligible requires an email address on the contact.
func (s *Sender) Eligible(contact notify.ContactInfo) (bool, string) {
	if strings.TrimSpace(contact.Email) == "" {
		return false, "no email address on contact"
	}
	return true, ""
}

func (s *Sender) Send(ctx context.Context, contact notify.ContactInfo, msg notify.Message) notify.ChannelOutcome {
	if s.mailer == nil {
		return s.failed("email transport not configured")
	}

	err := s.mailer.Send(ctx, smtp.Payload{
		To:      contact.Email,
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		detail := err.Error()
		if code, smtpMsg := smtp.ClassifyError(err); code > 0 {
			detail = fmt.Sprintf("smtp %d: %s", code, smtpMsg)
		}
		s.logger.Warn().
			Str("to", contact.Email).
			Err(err).
			Msg("email send failed")
		return s.failed(detail)
	}

	s.logger.Info().Str("to", contact.Email).Msg("email sent")
	return notify.ChannelOutcome{
		Channel: notify.ChannelEmail,
		Status:  notify.StatusDelivered,
	}
}

func (s *Sender) failed(detail string) notify.ChannelOutcome {
	return notify.ChannelOutcome{
		Channel: notify.ChannelEmail,
		Status:  notify.StatusFailed,
		Detail:  detail,
	}
}
