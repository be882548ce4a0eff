// Package notify implements appointment notification dispatch across the
// WhatsApp, SMS and email channels.
package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Tjuaco/Molaris-sub001/internal/models"
)

// Channel identifies one notification transport.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelSMS      Channel = "sms"
	ChannelEmail    Channel = "email"
)

// EventKind is the appointment event being notified.
type EventKind string

const (
	EventConfirmed EventKind = "confirmed"
	EventCancelled EventKind = "cancelled"
)

// OutcomeStatus is the per-channel delivery status.
type OutcomeStatus string

const (
	// StatusDelivered means the transport accepted the message.
	StatusDelivered OutcomeStatus = "delivered"
	// StatusFailed means the channel was attempted and did not deliver.
	StatusFailed OutcomeStatus = "failed"
	// StatusSkipped means the channel was ineligible for this contact.
	StatusSkipped OutcomeStatus = "skipped"
)

// ErrNoContact is the terminal precondition failure: a contact with neither
// phone nor email cannot be notified on any channel.
var ErrNoContact = errors.New("contact has neither phone nor email")

// ContactInfo is the resolved contact data for one patient. Locale and
// timezone are fixed to the clinic's country.
type ContactInfo struct {
	Name  string
	Phone string
	Email string
}

// HasAny reports whether any delivery attempt can proceed.
func (c ContactInfo) HasAny() bool {
	return strings.TrimSpace(c.Phone) != "" || strings.TrimSpace(c.Email) != ""
}

// DisplayName returns the patient name with the source's fallback.
func (c ContactInfo) DisplayName() string {
	if name := strings.TrimSpace(c.Name); name != "" {
		return name
	}
	return "Paciente"
}

// AppointmentEvent is the immutable appointment data a dispatch call renders.
// The timestamp is stored UTC and displayed in clinic-local time.
type AppointmentEvent struct {
	Kind          EventKind
	AppointmentID string
	ScheduledAt   time.Time
	DentistName   string
	ServiceName   string
	Price         decimal.Decimal
}

// Message is a composed, channel-ready body. Subject is only meaningful for
// the email channel.
type Message struct {
	Subject string
	Body    string
}

// ChannelOutcome records the result of one channel attempt.
type ChannelOutcome struct {
	Channel Channel
	Status  OutcomeStatus
	Detail  string
}

// DeliveryResult is the ordered per-channel outcome of one dispatch call.
// It is created once per call and never mutated after construction.
type DeliveryResult struct {
	Outcomes []ChannelOutcome
}

// AnySucceeded reports whether at least one channel delivered.
func (r DeliveryResult) AnySucceeded() bool {
	for _, o := range r.Outcomes {
		if o.Status == StatusDelivered {
			return true
		}
	}
	return false
}

// Outcome returns the outcome for the given channel, if present.
func (r DeliveryResult) Outcome(ch Channel) (ChannelOutcome, bool) {
	for _, o := range r.Outcomes {
		if o.Channel == ch {
			return o, true
		}
	}
	return ChannelOutcome{}, false
}

// Summary renders a short per-channel digest, e.g.
// "whatsapp=failed sms=delivered email=delivered".
func (r DeliveryResult) Summary() string {
	parts := make([]string, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		parts = append(parts, string(o.Channel)+"="+string(o.Status))
	}
	return strings.Join(parts, " ")
}

// Records converts the result to its wire representation.
func (r DeliveryResult) Records() []models.OutcomeRecord {
	out := make([]models.OutcomeRecord, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		out = append(out, models.OutcomeRecord{
			Channel: string(o.Channel),
			Status:  string(o.Status),
			Detail:  o.Detail,
		})
	}
	return out
}

// ChannelSender delivers one message via one transport. Implementations never
// return Go errors for ordinary failure modes; everything maps to a
// ChannelOutcome so one channel's problem cannot prevent the others from
// being attempted.
type ChannelSender interface {
	Channel() Channel
	// Eligible reports whether the contact carries the field this channel
	// requires, with a human-readable reason when it does not.
	Eligible(contact ContactInfo) (bool, string)
	Send(ctx context.Context, contact ContactInfo, msg Message) ChannelOutcome
}
