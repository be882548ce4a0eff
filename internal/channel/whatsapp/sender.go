// Package whatsapp implements the WhatsApp notification channel over Twilio.
package whatsapp

import (
	"context"
	"fmt"
	"reflect"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Tjuaco/Molaris-sub001/internal/notify"
	"github.com/Tjuaco/Molaris-sub001/internal/phone"
	"github.com/Tjuaco/Molaris-sub001/internal/providers/twilio"
)

// Client is the Twilio surface this sender needs.
type Client interface {
	SendMessage(ctx context.Context, from, to, body string) (*twilio.Response, error)
}

// Sender delivers appointment notifications over WhatsApp. When no Twilio
// client is configured and dev echo is enabled, message bodies are logged and
// reported as delivered so local development is not blocked by missing
// credentials.
type Sender struct {
	client  Client
	from    string
	devEcho bool
	logger  zerolog.Logger
}

// New constructs the WhatsApp sender. client may be nil when Twilio is not
// configured; the channel then degrades to unavailable (or to dev echo).
func New(client Client, from string, devEcho bool, logger zerolog.Logger) *Sender {
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	return &Sender{
		client:  client,
		from:    twilio.WhatsAppAddress(from),
		devEcho: devEcho,
		logger:  logger,
	}
}

func (s *Sender) Channel() notify.Channel { return notify.ChannelWhatsApp }

// Eligible requires a phone number on the contact.
func (s *Sender) Eligible(contact notify.ContactInfo) (bool, string) {
	if strings.TrimSpace(contact.Phone) == "" {
		return false, "no phone number on contact"
	}
	return true, ""
}

// Send normalizes the phone and submits the message. All ordinary failures
// map to a Failed outcome.
func (s *Sender) Send(ctx context.Context, contact notify.ContactInfo, msg notify.Message) notify.ChannelOutcome {
	normalized, err := phone.Normalize(contact.Phone)
	if err != nil {
		return s.failed(err.Error())
	}

	if s.client == nil {
		if s.devEcho {
			s.logger.Info().
				Str("to", normalized.E164()).
				Str("body", msg.Body).
				Msg("dev echo: whatsapp message logged instead of sent")
			return notify.ChannelOutcome{
				Channel: notify.ChannelWhatsApp,
				Status:  notify.StatusDelivered,
				Detail:  "dev echo: logged only",
			}
		}
		return s.failed("whatsapp transport not configured")
	}

	to := twilio.WhatsAppAddress(normalized.E164())
	resp, err := s.client.SendMessage(ctx, s.from, to, msg.Body)
	if err != nil {
		detail := err.Error()
		if ctx.Err() != nil {
			detail = fmt.Sprintf("timeout: %v", err)
		}
		s.logger.Warn().
			Str("to", to).
			Err(err).
			Msg("whatsapp send failed")
		return s.failed(detail)
	}

	s.logger.Info().
		Str("to", to).
		Str("sid", resp.SID).
		Str("status", resp.Status).
		Msg("whatsapp message sent")
	return notify.ChannelOutcome{
		Channel: notify.ChannelWhatsApp,
		Status:  notify.StatusDelivered,
		Detail:  fmt.Sprintf("sid=%s", resp.SID),
	}
}

func (s *Sender) failed(detail string) notify.ChannelOutcome {
	return notify.ChannelOutcome{
		Channel: notify.ChannelWhatsApp,
		Status:  notify.StatusFailed,
		Detail:  detail,
	}
}
