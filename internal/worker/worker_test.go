package worker_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Tjuaco/Molaris-sub001/internal/kafka"
	"github.com/Tjuaco/Molaris-sub001/internal/models"
	"github.com/Tjuaco/Molaris-sub001/internal/notify"
	"github.com/Tjuaco/Molaris-sub001/internal/store"
	"github.com/Tjuaco/Molaris-sub001/internal/worker"
)

const testMessageID = "b0c9c2b0-1f3a-4d2d-9e3f-123456789abc"

type dispatcherStub struct {
	mu            sync.Mutex
	results       []notify.DeliveryResult
	index         int
	confirmations int
	cancellations int
}

func (d *dispatcherStub) next() notify.DeliveryResult {
	if len(d.results) == 0 {
		return notify.DeliveryResult{}
	}
	if d.index >= len(d.results) {
		return d.results[len(d.results)-1]
	}
	res := d.results[d.index]
	d.index++
	return res
}

func (d *dispatcherStub) DispatchConfirmation(context.Context, notify.AppointmentEvent, notify.ContactInfo) (notify.DeliveryResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.confirmations++
	return d.next(), nil
}

func (d *dispatcherStub) DispatchCancellation(context.Context, notify.AppointmentEvent, notify.ContactInfo) (notify.DeliveryResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancellations++
	return d.next(), nil
}

func (d *dispatcherStub) calls() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.confirmations, d.cancellations
}

type statusCollector struct {
	mu     sync.Mutex
	events []models.DeliveryStatusEvent
}

func (s *statusCollector) PublishStatus(_ context.Context, event models.DeliveryStatusEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *statusCollector) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type dlqCollector struct {
	mu      sync.Mutex
	records []models.DLQRecord
}

func (d *dlqCollector) PublishDLQ(_ context.Context, record models.DLQRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.records = append(d.records, record)
	return nil
}

func (d *dlqCollector) all() []models.DLQRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.DLQRecord(nil), d.records...)
}

type committerStub struct {
	done chan *kafka.Record
}

func newCommitterStub() *committerStub {
	return &committerStub{done: make(chan *kafka.Record, 1)}
}

func (c *committerStub) Commit(_ context.Context, record *kafka.Record) error {
	c.done <- record
	return nil
}

func (c *committerStub) wait(t *testing.T) *kafka.Record {
	t.Helper()
	select {
	case rec := <-c.done:
		return rec
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for offset commit")
		return nil
	}
}

type storeStub struct {
	mu   sync.Mutex
	rows []store.DeliveryRow
}

func (s *storeStub) Insert(_ context.Context, row store.DeliveryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func (s *storeStub) all() []store.DeliveryRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.DeliveryRow(nil), s.rows...)
}

func successResult() notify.DeliveryResult {
	return notify.DeliveryResult{Outcomes: []notify.ChannelOutcome{
		{Channel: notify.ChannelWhatsApp, Status: notify.StatusDelivered},
		{Channel: notify.ChannelSMS, Status: notify.StatusFailed, Detail: "direct: provider not configured"},
		{Channel: notify.ChannelEmail, Status: notify.StatusDelivered},
	}}
}

func failureResult() notify.DeliveryResult {
	return notify.DeliveryResult{Outcomes: []notify.ChannelOutcome{
		{Channel: notify.ChannelWhatsApp, Status: notify.StatusFailed, Detail: "twilio down"},
		{Channel: notify.ChannelEmail, Status: notify.StatusFailed, Detail: "smtp down"},
	}}
}

type engineEnv struct {
	engine    *worker.Engine
	dispatch  *dispatcherStub
	statuses  *statusCollector
	dlq       *dlqCollector
	committer *committerStub
	store     *storeStub
}

func newEngineEnv(t *testing.T, cfg worker.Config, dispatch *dispatcherStub) *engineEnv {
	t.Helper()
	env := &engineEnv{
		dispatch:  dispatch,
		statuses:  &statusCollector{},
		dlq:       &dlqCollector{},
		committer: newCommitterStub(),
		store:     &storeStub{},
	}
	engine, err := worker.NewEngine(cfg, worker.Dependencies{
		Dispatcher:      dispatch,
		StatusPublisher: env.statuses,
		DLQPublisher:    env.dlq,
		Committer:       env.committer,
		Store:           env.store,
		Logger:          zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	env.engine = engine
	return env
}

func defaultConfig() worker.Config {
	return worker.Config{
		MaxAttempts: 3,
		Concurrency: 2,
		// zero backoff keeps retry tests fast and deterministic
	}
}

func requestRecord(t *testing.T, event string) *kafka.Record {
	t.Helper()
	req := models.NotificationRequest{
		MessageID: testMessageID,
		Event:     event,
		Appointment: models.AppointmentRecord{
			ID:           "apt-7",
			ScheduledAt:  time.Date(2024, 6, 15, 22, 0, 0, 0, time.UTC),
			DentistName:  "Dr. Soto",
			ServiceName:  "Limpieza",
			Price:        decimal.NewFromInt(20000),
			PatientName:  "Ana Pérez",
			PatientPhone: "912345678",
			PatientEmail: "ana@example.com",
		},
		CreatedAt: time.Now().UTC(),
	}
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return &kafka.Record{
		Topic: "clinic.notifications.request",
		Key:   []byte(testMessageID),
		Value: payload,
	}
}

func TestHandleRecordDelivers(t *testing.T) {
	dispatch := &dispatcherStub{results: []notify.DeliveryResult{successResult()}}
	env := newEngineEnv(t, defaultConfig(), dispatch)

	env.engine.HandleRecord(context.Background(), requestRecord(t, models.EventConfirmed))
	env.committer.wait(t)

	confirmations, cancellations := dispatch.calls()
	if confirmations != 1 || cancellations != 0 {
		t.Fatalf("dispatch calls = (%d, %d), want (1, 0)", confirmations, cancellations)
	}

	types := env.statuses.types()
	want := []string{models.StatusEventReceived, models.StatusEventAttempt, models.StatusEventDelivered}
	if len(types) != len(want) {
		t.Fatalf("status events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("status events = %v, want %v", types, want)
		}
	}

	if len(env.dlq.all()) != 0 {
		t.Fatalf("unexpected DLQ records: %+v", env.dlq.all())
	}

	rows := env.store.all()
	if len(rows) != 1 {
		t.Fatalf("expected 1 delivery row, got %d", len(rows))
	}
	if !rows[0].AnySucceeded || rows[0].MessageID != testMessageID || rows[0].Attempt != 1 {
		t.Fatalf("unexpected delivery row: %+v", rows[0])
	}
	if len(rows[0].Outcomes) != 3 {
		t.Fatalf("expected 3 outcome records, got %d", len(rows[0].Outcomes))
	}
}

func TestHandleRecordCancellation(t *testing.T) {
	dispatch := &dispatcherStub{results: []notify.DeliveryResult{successResult()}}
	env := newEngineEnv(t, defaultConfig(), dispatch)

	env.engine.HandleRecord(context.Background(), requestRecord(t, models.EventCancelled))
	env.committer.wait(t)

	confirmations, cancellations := dispatch.calls()
	if confirmations != 0 || cancellations != 1 {
		t.Fatalf("dispatch calls = (%d, %d), want (0, 1)", confirmations, cancellations)
	}
}

func TestHandleRecordRetriesThenDLQ(t *testing.T) {
	dispatch := &dispatcherStub{results: []notify.DeliveryResult{failureResult()}}
	cfg := defaultConfig()
	cfg.MaxAttempts = 2
	env := newEngineEnv(t, cfg, dispatch)

	env.engine.HandleRecord(context.Background(), requestRecord(t, models.EventConfirmed))
	env.committer.wait(t)

	confirmations, _ := dispatch.calls()
	if confirmations != 2 {
		t.Fatalf("expected 2 dispatch attempts, got %d", confirmations)
	}

	records := env.dlq.all()
	if len(records) != 1 {
		t.Fatalf("expected 1 DLQ record, got %d", len(records))
	}
	rec := records[0]
	if rec.FailureType != models.FailureExhausted {
		t.Fatalf("FailureType = %q, want %q", rec.FailureType, models.FailureExhausted)
	}
	if rec.Attempts != 2 {
		t.Fatalf("Attempts = %d, want 2", rec.Attempts)
	}
	if rec.LastError == "" || len(rec.RawPayload) == 0 {
		t.Fatalf("DLQ record missing context: %+v", rec)
	}

	// each failed attempt still leaves an audit row
	if rows := env.store.all(); len(rows) != 2 {
		t.Fatalf("expected 2 delivery rows, got %d", len(rows))
	}
}

func TestHandleRecordSucceedsOnRetry(t *testing.T) {
	dispatch := &dispatcherStub{results: []notify.DeliveryResult{failureResult(), successResult()}}
	env := newEngineEnv(t, defaultConfig(), dispatch)

	env.engine.HandleRecord(context.Background(), requestRecord(t, models.EventConfirmed))
	env.committer.wait(t)

	confirmations, _ := dispatch.calls()
	if confirmations != 2 {
		t.Fatalf("expected 2 dispatch attempts, got %d", confirmations)
	}
	if len(env.dlq.all()) != 0 {
		t.Fatal("successful retry must not reach the DLQ")
	}
	types := env.statuses.types()
	if types[len(types)-1] != models.StatusEventDelivered {
		t.Fatalf("last status = %q, want delivered", types[len(types)-1])
	}
}

func TestHandleRecordRejectsMalformedPayload(t *testing.T) {
	dispatch := &dispatcherStub{}
	env := newEngineEnv(t, defaultConfig(), dispatch)

	rec := &kafka.Record{Key: []byte(testMessageID), Value: []byte("{not json")}
	env.engine.HandleRecord(context.Background(), rec)
	env.committer.wait(t)

	if confirmations, cancellations := dispatch.calls(); confirmations+cancellations != 0 {
		t.Fatal("dispatcher must not run for malformed payloads")
	}
	records := env.dlq.all()
	if len(records) != 1 || records[0].FailureType != models.FailureValidation {
		t.Fatalf("expected validation DLQ record, got %+v", records)
	}
}

func TestHandleRecordRejectsUnknownEvent(t *testing.T) {
	dispatch := &dispatcherStub{}
	env := newEngineEnv(t, defaultConfig(), dispatch)

	env.engine.HandleRecord(context.Background(), requestRecord(t, "rescheduled"))
	env.committer.wait(t)

	records := env.dlq.all()
	if len(records) != 1 || records[0].FailureType != models.FailureValidation {
		t.Fatalf("expected validation DLQ record, got %+v", records)
	}
}

func TestHandleRecordRejectsOversizedPayload(t *testing.T) {
	dispatch := &dispatcherStub{}
	cfg := defaultConfig()
	cfg.MsgMaxBytes = 10
	env := newEngineEnv(t, cfg, dispatch)

	env.engine.HandleRecord(context.Background(), requestRecord(t, models.EventConfirmed))
	env.committer.wait(t)

	records := env.dlq.all()
	if len(records) != 1 || records[0].FailureType != models.FailureValidation {
		t.Fatalf("expected validation DLQ record, got %+v", records)
	}
	if confirmations, cancellations := dispatch.calls(); confirmations+cancellations != 0 {
		t.Fatal("dispatcher must not run for oversized payloads")
	}
}

func TestHandleRecordNoContact(t *testing.T) {
	dispatch := &dispatcherStub{}
	env := newEngineEnv(t, defaultConfig(), dispatch)

	req := models.NotificationRequest{
		MessageID: testMessageID,
		Event:     models.EventConfirmed,
		Appointment: models.AppointmentRecord{
			ID:          "apt-7",
			ScheduledAt: time.Date(2024, 6, 15, 22, 0, 0, 0, time.UTC),
			PatientName: "Ana Pérez",
		},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	env.engine.HandleRecord(context.Background(), &kafka.Record{Key: []byte(testMessageID), Value: payload})
	env.committer.wait(t)

	if confirmations, cancellations := dispatch.calls(); confirmations+cancellations != 0 {
		t.Fatal("dispatcher must not run without contact data")
	}
	records := env.dlq.all()
	if len(records) != 1 || records[0].FailureType != models.FailureNoContact {
		t.Fatalf("expected no_contact DLQ record, got %+v", records)
	}
}

func TestNewEngineValidation(t *testing.T) {
	deps := worker.Dependencies{
		Dispatcher:      &dispatcherStub{},
		StatusPublisher: &statusCollector{},
		DLQPublisher:    &dlqCollector{},
		Committer:       newCommitterStub(),
	}

	if _, err := worker.NewEngine(worker.Config{MaxAttempts: 0, Concurrency: 1}, deps); err == nil {
		t.Fatal("expected error for zero max attempts")
	}
	if _, err := worker.NewEngine(worker.Config{MaxAttempts: 1, Concurrency: 0}, deps); err == nil {
		t.Fatal("expected error for zero concurrency")
	}

	bad := deps
	bad.Dispatcher = nil
	if _, err := worker.NewEngine(worker.Config{MaxAttempts: 1, Concurrency: 1}, bad); err == nil {
		t.Fatal("expected error for nil dispatcher")
	}
}
