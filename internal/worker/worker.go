// Package worker consumes notification requests from Kafka and drives them
// through the dispatcher with retries, status events, DLQ handling and offset
// commits.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/Tjuaco/Molaris-sub001/internal/kafka"
	"github.com/Tjuaco/Molaris-sub001/internal/models"
	"github.com/Tjuaco/Molaris-sub001/internal/notify"
	"github.com/Tjuaco/Molaris-sub001/internal/store"
)

// Config contains the runtime settings the engine relies on to orchestrate
// processing, retries and DLQ handling.
type Config struct {
	MsgMaxBytes int
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	Concurrency int
}

// Dispatcher sends one appointment event across all configured channels. It
// is satisfied by *notify.Dispatcher.
type Dispatcher interface {
	DispatchConfirmation(ctx context.Context, event notify.AppointmentEvent, contact notify.ContactInfo) (notify.DeliveryResult, error)
	DispatchCancellation(ctx context.Context, event notify.AppointmentEvent, contact notify.ContactInfo) (notify.DeliveryResult, error)
}

// StatusPublisher emits lifecycle events for a notification request.
type StatusPublisher interface {
	PublishStatus(ctx context.Context, event models.DeliveryStatusEvent) error
}

// DLQPublisher writes undeliverable requests to the dead-letter topic.
type DLQPublisher interface {
	PublishDLQ(ctx context.Context, record models.DLQRecord) error
}

// Committer commits Kafka offsets after processing.
type Committer interface {
	Commit(ctx context.Context, record *kafka.Record) error
}

// DeliveryStore persists dispatch attempts for auditing. It is satisfied by
// *store.DeliveryLog and may be left nil when no database is configured.
type DeliveryStore interface {
	Insert(ctx context.Context, row store.DeliveryRow) error
}

// Dependencies collects the runtime collaborators required by the engine.
type Dependencies struct {
	Dispatcher      Dispatcher
	StatusPublisher StatusPublisher
	DLQPublisher    DLQPublisher
	Committer       Committer
	Store           DeliveryStore
	Logger          zerolog.Logger
	Now             func() time.Time
}

// Engine orchestrates validation, dispatch, retries, backoff, DLQ handling
// and offset commits for inbound notification requests.
type Engine struct {
	cfg             Config
	dispatcher      Dispatcher
	statusPublisher StatusPublisher
	dlqPublisher    DLQPublisher
	committer       Committer
	store           DeliveryStore
	logger          zerolog.Logger

	semaphore *semaphore.Weighted

	now func() time.Time

	randMu sync.Mutex
	rnd    *rand.Rand
}

// NewEngine constructs a worker engine using the supplied configuration and
// collaborators. The configuration and dependencies are validated to prevent
// misconfiguration at startup.
func NewEngine(cfg Config, deps Dependencies) (*Engine, error) {
	if cfg.MaxAttempts < 1 {
		return nil, errors.New("worker: max attempts must be >= 1")
	}
	if cfg.Concurrency < 1 {
		return nil, errors.New("worker: concurrency must be >= 1")
	}
	if cfg.MsgMaxBytes < 0 {
		return nil, errors.New("worker: msg max bytes cannot be negative")
	}
	if deps.Dispatcher == nil {
		return nil, errors.New("worker: dispatcher dependency is required")
	}
	if deps.StatusPublisher == nil {
		return nil, errors.New("worker: status publisher dependency is required")
	}
	if deps.DLQPublisher == nil {
		return nil, errors.New("worker: DLQ publisher dependency is required")
	}
	if deps.Committer == nil {
		return nil, errors.New("worker: committer dependency is required")
	}

	logger := deps.Logger
	if reflect.ValueOf(logger).IsZero() {
		logger = zerolog.Nop()
	}
	logger = logger.With().Str("component", "notify_worker").Logger()

	nowFunc := deps.Now
	if nowFunc == nil {
		nowFunc = time.Now
	}

	eng := &Engine{
		cfg:             cfg,
		dispatcher:      deps.Dispatcher,
		statusPublisher: deps.StatusPublisher,
		dlqPublisher:    deps.DLQPublisher,
		committer:       deps.Committer,
		store:           deps.Store,
		logger:          logger,
		semaphore:       semaphore.NewWeighted(int64(cfg.Concurrency)),
		now:             nowFunc,
		rnd:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	return eng, nil
}

// KafkaHandler returns a kafka.Handler that delegates inbound records to the
// engine.
func KafkaHandler(engine *Engine) kafka.Handler {
	return func(ctx context.Context, rec *kafka.Record) error {
		if engine == nil || rec == nil {
			return nil
		}
		engine.HandleRecord(ctx, rec)
		return nil
	}
}

// HandleRecord performs upfront validation for record size, parses the
// payload and triggers asynchronous processing with retry handling.
func (e *Engine) HandleRecord(ctx context.Context, record *kafka.Record) {
	if record == nil {
		return
	}

	if e.cfg.MsgMaxBytes > 0 && len(record.Value) > e.cfg.MsgMaxBytes {
		err := fmt.Errorf("payload exceeds maximum size: got %d bytes, limit %d bytes", len(record.Value), e.cfg.MsgMaxBytes)
		e.rejectRecord(ctx, record, string(record.Key), "", err)
		return
	}

	req, err := e.parseRequest(record)
	if err != nil {
		messageID := ""
		if req != nil {
			messageID = req.MessageID
		}
		if messageID == "" {
			messageID = string(record.Key)
		}
		e.rejectRecord(ctx, record, messageID, requestAppointmentID(req), err)
		return
	}

	if err := e.semaphore.Acquire(ctx, 1); err != nil {
		e.logger.Error().
			Str("message_id", req.MessageID).
			Err(err).
			Msg("worker: failed to acquire concurrency semaphore")
		return
	}

	go e.processRequest(ctx, record.Clone(), req)
}

// parseRequest decodes and validates an inbound notification request. A
// partially populated request may be returned alongside the error so callers
// can enrich status and DLQ events.
func (e *Engine) parseRequest(record *kafka.Record) (*models.NotificationRequest, error) {
	var req models.NotificationRequest
	if err := json.Unmarshal(record.Value, &req); err != nil {
		return nil, fmt.Errorf("worker: decode request: %w", err)
	}

	if req.MessageID == "" {
		req.MessageID = string(record.Key)
	}
	if _, err := uuid.Parse(req.MessageID); err != nil {
		return &req, fmt.Errorf("worker: message id %q is not a valid UUID: %w", req.MessageID, err)
	}

	switch req.Event {
	case models.EventConfirmed, models.EventCancelled:
	default:
		return &req, fmt.Errorf("worker: unknown event kind %q", req.Event)
	}

	if req.Appointment.ID == "" {
		return &req, errors.New("worker: appointment id is required")
	}
	if req.Appointment.ScheduledAt.IsZero() {
		return &req, errors.New("worker: appointment scheduled_at is required")
	}

	return &req, nil
}

// rejectRecord handles a request that failed validation: the failure is
// terminal, so the record goes straight to the DLQ and is committed.
func (e *Engine) rejectRecord(ctx context.Context, record *kafka.Record, messageID, appointmentID string, cause error) {
	now := e.now()
	e.logger.Warn().
		Str("message_id", messageID).
		Err(cause).
		Msg("worker: validation failed for record")

	e.publishStatus(ctx, models.DeliveryStatusEvent{
		MessageID:     messageID,
		AppointmentID: appointmentID,
		EventType:     models.StatusEventFailed,
		Error:         cause.Error(),
		Timestamp:     now,
	})
	e.publishDLQ(ctx, models.DLQRecord{
		MessageID:     messageID,
		AppointmentID: appointmentID,
		FailureType:   models.FailureValidation,
		LastError:     cause.Error(),
		RawPayload:    record.Value,
		FirstFailedAt: now,
		LastAttemptAt: now,
	})
	e.commitRecord(ctx, record)
}

func (e *Engine) processRequest(ctx context.Context, record *kafka.Record, req *models.NotificationRequest) {
	defer e.semaphore.Release(1)

	if ctx.Err() != nil {
		e.logger.Warn().
			Str("message_id", req.MessageID).
			Msg("worker: context cancelled before processing began")
		return
	}

	e.publishStatus(ctx, e.statusEvent(req, models.StatusEventReceived, 0))

	contact := notify.ResolveContact(req.Appointment)
	if !contact.HasAny() {
		now := e.now()
		e.logger.Warn().
			Str("message_id", req.MessageID).
			Str("appointment_id", req.Appointment.ID).
			Msg("worker: appointment has no contact information")
		failed := e.statusEvent(req, models.StatusEventFailed, 0)
		failed.Error = notify.ErrNoContact.Error()
		e.publishStatus(ctx, failed)
		e.publishDLQ(ctx, models.DLQRecord{
			MessageID:     req.MessageID,
			AppointmentID: req.Appointment.ID,
			Event:         req.Event,
			FailureType:   models.FailureNoContact,
			LastError:     notify.ErrNoContact.Error(),
			RawPayload:    record.Value,
			FirstFailedAt: now,
			LastAttemptAt: now,
		})
		e.commitRecord(ctx, record)
		return
	}

	kind := notify.EventConfirmed
	if req.Event == models.EventCancelled {
		kind = notify.EventCancelled
	}
	event := notify.EventFromRecord(kind, req.Appointment)

	attempt := 1
	firstFailedAt := time.Time{}

	for {
		e.publishStatus(ctx, e.statusEvent(req, models.StatusEventAttempt, attempt))

		start := e.now()
		result, err := e.dispatch(ctx, kind, event, contact)
		duration := e.now().Sub(start)

		logEvent := e.logger.With().
			Str("message_id", req.MessageID).
			Str("appointment_id", req.Appointment.ID).
			Int("attempt", attempt).
			Dur("duration", duration).
			Logger()

		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logEvent.Warn().Err(err).Msg("worker: context cancelled during dispatch; deferring commit for reprocessing")
				return
			}
			// Precondition errors from the dispatcher are terminal.
			now := e.now()
			logEvent.Warn().Err(err).Msg("worker: dispatch rejected the request")
			failed := e.statusEvent(req, models.StatusEventFailed, attempt)
			failed.Error = err.Error()
			e.publishStatus(ctx, failed)
			e.publishDLQ(ctx, models.DLQRecord{
				MessageID:     req.MessageID,
				AppointmentID: req.Appointment.ID,
				Event:         req.Event,
				FailureType:   models.FailureNoContact,
				Attempts:      attempt,
				LastError:     err.Error(),
				RawPayload:    record.Value,
				FirstFailedAt: now,
				LastAttemptAt: now,
			})
			e.commitRecord(ctx, record)
			return
		}

		e.recordDelivery(ctx, req, attempt, result)

		if result.AnySucceeded() {
			logEvent.Info().Str("outcomes", result.Summary()).Msg("worker: notification delivered")
			delivered := e.statusEvent(req, models.StatusEventDelivered, attempt)
			delivered.Outcomes = result.Records()
			delivered.AnySucceeded = true
			e.publishStatus(ctx, delivered)
			e.commitRecord(ctx, record)
			return
		}

		lastError := failureDetail(result)
		logEvent.Warn().Str("outcomes", result.Summary()).Msg("worker: all channels failed for attempt")

		now := e.now()
		if firstFailedAt.IsZero() {
			firstFailedAt = now
		}

		failed := e.statusEvent(req, models.StatusEventFailed, attempt)
		failed.Outcomes = result.Records()
		failed.Error = lastError
		e.publishStatus(ctx, failed)

		if attempt >= e.cfg.MaxAttempts {
			dlq := e.statusEvent(req, models.StatusEventDLQ, attempt)
			dlq.Error = lastError
			e.publishStatus(ctx, dlq)
			e.publishDLQ(ctx, models.DLQRecord{
				MessageID:     req.MessageID,
				AppointmentID: req.Appointment.ID,
				Event:         req.Event,
				FailureType:   models.FailureExhausted,
				Attempts:      attempt,
				LastError:     lastError,
				Outcomes:      result.Records(),
				RawPayload:    record.Value,
				FirstFailedAt: firstFailedAt,
				LastAttemptAt: now,
			})
			e.commitRecord(ctx, record)
			return
		}

		backoff := e.computeBackoff(attempt)
		if backoff > 0 {
			logEvent.Info().Dur("backoff", backoff).Msg("worker: scheduling retry")
		}

		if !e.wait(ctx, backoff) {
			e.logger.Warn().
				Str("message_id", req.MessageID).
				Int("attempt", attempt).
				Msg("worker: context cancelled while waiting for retry; message will be retried on next poll")
			return
		}

		attempt++
	}
}

func (e *Engine) dispatch(ctx context.Context, kind notify.EventKind, event notify.AppointmentEvent, contact notify.ContactInfo) (notify.DeliveryResult, error) {
	if kind == notify.EventCancelled {
		return e.dispatcher.DispatchCancellation(ctx, event, contact)
	}
	return e.dispatcher.DispatchConfirmation(ctx, event, contact)
}

func (e *Engine) statusEvent(req *models.NotificationRequest, eventType string, attempt int) models.DeliveryStatusEvent {
	return models.DeliveryStatusEvent{
		MessageID:     req.MessageID,
		AppointmentID: req.Appointment.ID,
		Event:         req.Event,
		EventType:     eventType,
		Attempt:       attempt,
		TraceID:       req.TraceID,
		Timestamp:     e.now(),
	}
}

func (e *Engine) recordDelivery(ctx context.Context, req *models.NotificationRequest, attempt int, result notify.DeliveryResult) {
	if e.store == nil {
		return
	}
	row := store.DeliveryRow{
		MessageID:     req.MessageID,
		AppointmentID: req.Appointment.ID,
		Event:         req.Event,
		Attempt:       attempt,
		Outcomes:      result.Records(),
		AnySucceeded:  result.AnySucceeded(),
		CreatedAt:     e.now(),
	}
	if err := e.store.Insert(ctx, row); err != nil {
		e.logger.Error().
			Str("message_id", req.MessageID).
			Err(err).
			Msg("worker: failed to persist delivery record")
	}
}

func (e *Engine) computeBackoff(attempt int) time.Duration {
	if e.cfg.BaseBackoff <= 0 {
		return 0
	}

	multiplier := math.Pow(2, float64(attempt-1))
	raw := time.Duration(float64(e.cfg.BaseBackoff) * multiplier)
	if e.cfg.MaxBackoff > 0 && raw > e.cfg.MaxBackoff {
		raw = e.cfg.MaxBackoff
	}

	return e.fullJitter(raw)
}

func (e *Engine) fullJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	e.randMu.Lock()
	defer e.randMu.Unlock()

	n := e.rnd.Int63n(int64(max) + 1)
	return time.Duration(n)
}

func (e *Engine) wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (e *Engine) publishStatus(ctx context.Context, event models.DeliveryStatusEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	if err := e.statusPublisher.PublishStatus(ctx, event); err != nil {
		e.logger.Error().
			Str("message_id", event.MessageID).
			Str("event_type", event.EventType).
			Err(err).
			Msg("worker: failed to publish status event")
	}
}

func (e *Engine) publishDLQ(ctx context.Context, record models.DLQRecord) {
	if record.FirstFailedAt.IsZero() {
		record.FirstFailedAt = e.now()
	}
	if record.LastAttemptAt.IsZero() {
		record.LastAttemptAt = record.FirstFailedAt
	}
	if err := e.dlqPublisher.PublishDLQ(ctx, record); err != nil {
		e.logger.Error().
			Str("message_id", record.MessageID).
			Err(err).
			Msg("worker: failed to publish DLQ record")
	}
}

func (e *Engine) commitRecord(ctx context.Context, record *kafka.Record) {
	if record == nil {
		return
	}
	if err := e.committer.Commit(ctx, record); err != nil {
		e.logger.Error().
			Str("topic", record.Topic).
			Int32("partition", record.Partition).
			Int64("offset", record.Offset).
			Err(err).
			Msg("worker: failed to commit record offset")
	}
}

func requestAppointmentID(req *models.NotificationRequest) string {
	if req == nil {
		return ""
	}
	return req.Appointment.ID
}

// failureDetail collapses the failed channel outcomes into one error string
// for status and DLQ events.
func failureDetail(result notify.DeliveryResult) string {
	parts := make([]string, 0, len(result.Outcomes))
	for _, o := range result.Outcomes {
		if o.Status != notify.StatusFailed {
			continue
		}
		detail := o.Detail
		if detail == "" {
			detail = "failed"
		}
		parts = append(parts, fmt.Sprintf("%s: %s", o.Channel, detail))
	}
	if len(parts) == 0 {
		return "no channel delivered"
	}
	return strings.Join(parts, "; ")
}
