// Package sms implements the SMS notification channel. A direct Twilio path
// is preferred when configured; the carrier email-to-SMS gateway is the
// fallback. Both paths are attempted before the channel is declared failed.
package sms

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Tjuaco/Molaris-sub001/internal/carrier"
	"github.com/Tjuaco/Molaris-sub001/internal/notify"
	"github.com/Tjuaco/Molaris-sub001/internal/phone"
	"github.com/Tjuaco/Molaris-sub001/internal/providers/smtp"
	"github.com/Tjuaco/Molaris-sub001/internal/providers/twilio"
)

// TwilioClient is the direct-provider surface.
type TwilioClient interface {
	SendMessage(ctx context.Context, from, to, body string) (*twilio.Response, error)
}

// Mailer is the email transport used for the gateway path.
type Mailer interface {
	Send(ctx context.Context, payload smtp.Payload) error
}

// Sender delivers appointment notifications as SMS.
type Sender struct {
	twilio TwilioClient // nil when not configured
	from   string
	mailer Mailer // nil when SMTP is not configured
	logger zerolog.Logger
}

// New constructs the SMS sender. Either transport may be nil; the channel is
// only unavailable when both are.
func New(twilioClient TwilioClient, from string, mailer Mailer, logger zerolog.Logger) *Sender {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Sender{
		twilio: twilioClient,
		from:   strings.TrimSpace(from),
		mailer: mailer,
		logger: logger,
	}
}

func (s *Sender) Channel() notify.Channel { return notify.ChannelSMS }

// Eligible requires a phone number on the contact.
func (s *Sender) Eligible(contact notify.ContactInfo) (bool, string) {
	if strings.TrimSpace(contact.Phone) == "" {
		return false, "no phone number on contact"
	}
	return true, ""
}

// Send tries the direct provider first, then the email-to-SMS gateway. The
// failure detail aggregates the reasons from every path that was tried.
func (s *Sender) Send(ctx context.Context, contact notify.ContactInfo, msg notify.Message) notify.ChannelOutcome {
	normalized, err := phone.Normalize(contact.Phone)
	if err != nil {
		return s.failed(err.Error())
	}

	var reasons []string

	if s.twilio != nil && s.from != "" {
		resp, err := s.twilio.SendMessage(ctx, s.from, normalized.E164(), msg.Body)
		if err == nil {
			s.logger.Info().
				Str("to", normalized.E164()).
				Str("sid", resp.SID).
				Msg("sms sent via direct provider")
			return notify.ChannelOutcome{
				Channel: notify.ChannelSMS,
				Status:  notify.StatusDelivered,
				Detail:  fmt.Sprintf("direct sid=%s", resp.SID),
			}
		}
		s.logger.Warn().
			Str("to", normalized.E164()).
			Err(err).
			Msg("direct sms failed, trying email-to-sms gateway")
		reasons = append(reasons, fmt.Sprintf("direct: %v", err))
	} else {
		reasons = append(reasons, "direct: provider not configured")
	}

	outcome := s.sendViaGateway(ctx, normalized, msg, reasons)
	return outcome
}

func (s *Sender) sendViaGateway(ctx context.Context, normalized phone.NormalizedPhone, msg notify.Message, reasons []string) notify.ChannelOutcome {
	if s.mailer == nil {
		reasons = append(reasons, "gateway: smtp not configured")
		return s.failed(strings.Join(reasons, "; "))
	}

	gateway, err := carrier.Resolve(normalized)
	if err != nil {
		// No prefix match is a terminal outcome for this sub-path, not a
		// retryable fault.
		reasons = append(reasons, fmt.Sprintf("gateway: %v", err))
		return s.failed(strings.Join(reasons, "; "))
	}

	err = s.mailer.Send(ctx, smtp.Payload{
		To:      gateway.Address(),
		Subject: msg.Subject,
		Body:    msg.Body,
	})
	if err != nil {
		s.logger.Warn().
			Str("gateway", gateway.Address()).
			Err(err).
			Msg("email-to-sms gateway send failed")
		reasons = append(reasons, fmt.Sprintf("gateway %s: %v", gateway.Address(), err))
		return s.failed(strings.Join(reasons, "; "))
	}

	s.logger.Info().
		Str("gateway", gateway.Address()).
		Str("carrier", gateway.Carrier).
		Msg("sms sent via email-to-sms gateway")
	return notify.ChannelOutcome{
		Channel: notify.ChannelSMS,
		Status:  notify.StatusDelivered,
		Detail:  fmt.Sprintf("gateway %s", gateway.Address()),
	}
}

func (s *Sender) failed(detail string) notify.ChannelOutcome {
	return notify.ChannelOutcome{
		Channel: notify.ChannelSMS,
		Status:  notify.StatusFailed,
		Detail:  detail,
	}
}
