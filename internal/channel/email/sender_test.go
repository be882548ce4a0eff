package email_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Tjuaco/Molaris-sub001/internal/channel/email"
	"github.com/Tjuaco/Molaris-sub001/internal/notify"
	"github.com/Tjuaco/Molaris-sub001/internal/providers/smtp"
)

type mailerStub struct {
	err     error
	calls   int
	payload smtp.Payload
}

func (m *mailerStub) Send(_ context.Context, payload smtp.Payload) error {
	m.calls++
	m.payload = payload
	return m.err
}

func TestEligibleRequiresEmail(t *testing.T) {
	s := email.New(&mailerStub{}, zerolog.Nop())
	if ok, _ := s.Eligible(notify.ContactInfo{Phone: "912345678"}); ok {
		t.Fatal("contact without email must be ineligible")
	}
	if ok, _ := s.Eligible(notify.ContactInfo{Email: "ana@example.com"}); !ok {
		t.Fatal("contact with email must be eligible")
	}
}

func TestSendSuccess(t *testing.T) {
	mailer := &mailerStub{}
	s := email.New(mailer, zerolog.Nop())

	msg := notify.Message{Subject: "Confirmación de Cita", Body: "hola"}
	outcome := s.Send(context.Background(), notify.ContactInfo{Email: "ana@example.com"}, msg)
	if outcome.Status != notify.StatusDelivered {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if mailer.payload.To != "ana@example.com" || mailer.payload.Subject != msg.Subject {
		t.Fatalf("unexpected payload: %+v", mailer.payload)
	}
}

func TestSendFailure(t *testing.T) {
	mailer := &mailerStub{err: errors.New("connection refused")}
	s := email.New(mailer, zerolog.Nop())

	outcome := s.Send(context.Background(), notify.ContactInfo{Email: "ana@example.com"}, notify.Message{Body: "hola"})
	if outcome.Status != notify.StatusFailed {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if !strings.Contains(outcome.Detail, "connection refused") {
		t.Fatalf("Detail = %q", outcome.Detail)
	}
}

func TestSendUnconfigured(t *testing.T) {
	s := email.New(nil, zerolog.Nop())
	outcome := s.Send(context.Background(), notify.ContactInfo{Email: "ana@example.com"}, notify.Message{Body: "hola"})
	if outcome.Status != notify.StatusFailed {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if !strings.Contains(outcome.Detail, "not configured") {
		t.Fatalf("Detail = %q", outcome.Detail)
	}
}
