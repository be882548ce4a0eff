package sms_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Tjuaco/Molaris-sub001/internal/channel/sms"
	"github.com/Tjuaco/Molaris-sub001/internal/notify"
	"github.com/Tjuaco/Molaris-sub001/internal/providers/smtp"
	"github.com/Tjuaco/Molaris-sub001/internal/providers/twilio"
)

type twilioStub struct {
	resp  *twilio.Response
	err   error
	calls int
	to    string
}

func (s *twilioStub) SendMessage(_ context.Context, _, to, _ string) (*twilio.Response, error) {
	s.calls++
	s.to = to
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

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

func TestSendDirectSuccess(t *testing.T) {
	tw := &twilioStub{resp: &twilio.Response{SID: "SM55"}}
	mailer := &mailerStub{}
	s := sms.New(tw, "+12025550100", mailer, zerolog.Nop())

	outcome := s.Send(context.Background(), notify.ContactInfo{Phone: "912345678"}, notify.Message{Body: "hola"})
	if outcome.Status != notify.StatusDelivered {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Detail != "direct sid=SM55" {
		t.Fatalf("Detail = %q", outcome.Detail)
	}
	if tw.to != "+56912345678" {
		t.Fatalf("to = %q", tw.to)
	}
	if mailer.calls != 0 {
		t.Fatal("gateway must not run after a direct success")
	}
}

func TestSendFallsBackToGateway(t *testing.T) {
	tw := &twilioStub{err: errors.New("twilio: http 500: upstream")}
	mailer := &mailerStub{}
	s := sms.New(tw, "+12025550100", mailer, zerolog.Nop())

	outcome := s.Send(context.Background(), notify.ContactInfo{Phone: "912345678"}, notify.Message{Subject: "Cita", Body: "hola"})
	if outcome.Status != notify.StatusDelivered {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if outcome.Detail != "gateway 912345678@movistar.cl" {
		t.Fatalf("Detail = %q", outcome.Detail)
	}
	if mailer.payload.To != "912345678@movistar.cl" {
		t.Fatalf("gateway address = %q", mailer.payload.To)
	}
}

func TestSendGatewayOnlyWhenDirectUnconfigured(t *testing.T) {
	mailer := &mailerStub{}
	s := sms.New(nil, "", mailer, zerolog.Nop())

	outcome := s.Send(context.Background(), notify.ContactInfo{Phone: "912345678"}, notify.Message{Body: "hola"})
	if outcome.Status != notify.StatusDelivered {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if mailer.calls != 1 {
		t.Fatalf("mailer calls = %d, want 1", mailer.calls)
	}
}

func TestSendAggregatesFailureReasons(t *testing.T) {
	tw := &twilioStub{err: errors.New("twilio: http 500: upstream")}
	mailer := &mailerStub{err: errors.New("smtp dial refused")}
	s := sms.New(tw, "+12025550100", mailer, zerolog.Nop())

	outcome := s.Send(context.Background(), notify.ContactInfo{Phone: "912345678"}, notify.Message{Body: "hola"})
	if outcome.Status != notify.StatusFailed {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	for _, want := range []string{"direct:", "upstream", "gateway", "smtp dial refused"} {
		if !strings.Contains(outcome.Detail, want) {
			t.Fatalf("Detail %q missing %q", outcome.Detail, want)
		}
	}
}

func TestSendBothTransportsUnconfigured(t *testing.T) {
	s := sms.New(nil, "", nil, zerolog.Nop())
	outcome := s.Send(context.Background(), notify.ContactInfo{Phone: "912345678"}, notify.Message{Body: "hola"})
	if outcome.Status != notify.StatusFailed {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	for _, want := range []string{"direct: provider not configured", "gateway: smtp not configured"} {
		if !strings.Contains(outcome.Detail, want) {
			t.Fatalf("Detail %q missing %q", outcome.Detail, want)
		}
	}
}

func TestSendNoCarrierMatch(t *testing.T) {
	mailer := &mailerStub{}
	s := sms.New(nil, "", mailer, zerolog.Nop())

	// 6-leading nationals have no gateway table entry.
	outcome := s.Send(context.Background(), notify.ContactInfo{Phone: "612345678"}, notify.Message{Body: "hola"})
	if outcome.Status != notify.StatusFailed {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if !strings.Contains(outcome.Detail, "no carrier gateway") {
		t.Fatalf("Detail = %q", outcome.Detail)
	}
	if mailer.calls != 0 {
		t.Fatal("mailer must not run without a gateway match")
	}
}

func TestSendInvalidPhone(t *testing.T) {
	tw := &twilioStub{resp: &twilio.Response{SID: "SM55"}}
	s := sms.New(tw, "+12025550100", &mailerStub{}, zerolog.Nop())

	outcome := s.Send(context.Background(), notify.ContactInfo{Phone: "12"}, notify.Message{Body: "hola"})
	if outcome.Status != notify.StatusFailed {
		t.Fatalf("unexpected outcome: %+v", outcome)
	}
	if tw.calls != 0 {
		t.Fatal("no transport should run for an unparseable phone")
	}
}

func TestEligibleRequiresPhone(t *testing.T) {
	s := sms.New(nil, "", nil, zerolog.Nop())
	if ok, reason := s.Eligible(notify.ContactInfo{Email: "a@b.cl"}); ok || reason == "" {
		t.Fatal("contact without phone must be ineligible with a reason")
	}
}
