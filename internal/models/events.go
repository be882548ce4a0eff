package models

import "time"

// Notification event kinds accepted on the request topic.
const (
	EventConfirmed = "confirmed"
	EventCancelled = "cancelled"
)

// Status event type constants emitted by the notification worker.
const (
	StatusEventReceived  = "received"
	StatusEventAttempt   = "attempt"
	StatusEventDelivered = "delivered"
	StatusEventFailed    = "failed"
	StatusEventDLQ       = "dlq"
)

// NotificationRequest is the payload consumed from the request topic. One
// request covers all channel attempts for one appointment event.
type NotificationRequest struct {
	MessageID   string            `json:"message_id"`
	Event       string            `json:"event"`
	Appointment AppointmentRecord `json:"appointment"`
	TraceID     string            `json:"trace_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// OutcomeRecord is the serialized form of a single channel outcome.
type OutcomeRecord struct {
	Channel string `json:"channel"`
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
}

// DeliveryStatusEvent represents lifecycle events emitted for a notification
// request as it moves through the worker.
type DeliveryStatusEvent struct {
	MessageID     string          `json:"message_id"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	Event         string          `json:"event,omitempty"`
	EventType     string          `json:"event_type"`
	Attempt       int             `json:"attempt,omitempty"`
	Outcomes      []OutcomeRecord `json:"outcomes,omitempty"`
	AnySucceeded  bool            `json:"any_succeeded,omitempty"`
	Error         string          `json:"error,omitempty"`
	TraceID       string          `json:"trace_id,omitempty"`
	Timestamp     time.Time       `json:"timestamp"`
}

// DLQ failure classifications.
const (
	FailureValidation = "validation"
	FailureExhausted  = "exhausted"
	FailureNoContact  = "no_contact"
)

// DLQRecord captures a request that could not be delivered after the
// configured attempts, together with enough context to replay it.
type DLQRecord struct {
	MessageID     string          `json:"message_id"`
	AppointmentID string          `json:"appointment_id,omitempty"`
	Event         string          `json:"event,omitempty"`
	FailureType   string          `json:"failure_type"`
	Attempts      int             `json:"attempts"`
	LastError     string          `json:"last_error,omitempty"`
	Outcomes      []OutcomeRecord `json:"outcomes,omitempty"`
	RawPayload    []byte          `json:"raw_payload,omitempty"`
	FirstFailedAt time.Time       `json:"first_failed_at"`
	LastAttemptAt time.Time       `json:"last_attempt_at"`
}
