// Command notify-send dispatches a single appointment notification from the
// command line. It is meant for verifying channel configuration against real
// providers without going through Kafka.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Tjuaco/Molaris-sub001/internal/channel/email"
	"github.com/Tjuaco/Molaris-sub001/internal/channel/sms"
	"github.com/Tjuaco/Molaris-sub001/internal/channel/whatsapp"
	"github.com/Tjuaco/Molaris-sub001/internal/config"
	"github.com/Tjuaco/Molaris-sub001/internal/logger"
	"github.com/Tjuaco/Molaris-sub001/internal/notify"
	"github.com/Tjuaco/Molaris-sub001/internal/providers/smtp"
	"github.com/Tjuaco/Molaris-sub001/internal/providers/twilio"
)

func main() {
	var (
		event       = flag.String("event", "confirmed", "event kind: confirmed or cancelled")
		patientName = flag.String("name", "", "patient name")
		phone       = flag.String("phone", "", "patient phone (any Chilean format)")
		emailAddr   = flag.String("email", "", "patient email")
		when        = flag.String("when", "", "appointment time, RFC3339 (default: tomorrow 10:00 UTC)")
		dentist     = flag.String("dentist", "", "dentist name")
		service     = flag.String("service", "", "service name")
		price       = flag.String("price", "0", "service price in CLP")
		timeout     = flag.Duration("timeout", 2*time.Minute, "overall dispatch timeout")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New("notify-send", cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "notify-send").Logger()

	scheduledAt := time.Now().Add(24 * time.Hour).Truncate(time.Hour)
	if *when != "" {
		scheduledAt, err = time.Parse(time.RFC3339, *when)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid -when value")
		}
	}

	amount, err := decimal.NewFromString(*price)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid -price value")
	}

	kind := notify.EventConfirmed
	switch *event {
	case "confirmed":
	case "cancelled":
		kind = notify.EventCancelled
	default:
		log.Fatal().Str("event", *event).Msg("event must be confirmed or cancelled")
	}

	dispatcher, err := buildDispatcher(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise dispatcher")
	}

	contact := notify.ContactInfo{
		Name:  *patientName,
		Phone: *phone,
		Email: *emailAddr,
	}
	appt := notify.AppointmentEvent{
		Kind:        kind,
		ScheduledAt: scheduledAt,
		DentistName: *dentist,
		ServiceName: *service,
		Price:       amount,
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var result notify.DeliveryResult
	if kind == notify.EventCancelled {
		result, err = dispatcher.DispatchCancellation(ctx, appt, contact)
	} else {
		result, err = dispatcher.DispatchConfirmation(ctx, appt, contact)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("dispatch failed")
	}

	fmt.Println(result.Summary())
	for _, o := range result.Outcomes {
		if o.Detail != "" {
			fmt.Printf("  %s: %s\n", o.Channel, o.Detail)
		}
	}
	if !result.AnySucceeded() {
		os.Exit(1)
	}
}

func buildDispatcher(cfg *config.Config, log zerolog.Logger) (*notify.Dispatcher, error) {
	composer, err := notify.NewComposer(notify.ClinicProfile{
		Name:    cfg.Clinic.Name,
		Address: cfg.Clinic.Address,
		Phone:   cfg.Clinic.Phone,
		Email:   cfg.Clinic.Email,
		Website: cfg.Clinic.Website,
		MapURL:  cfg.Clinic.MapURL,
		Hours:   cfg.Clinic.Hours,
	}, cfg.Clinic.Timezone)
	if err != nil {
		return nil, err
	}

	var waClient whatsapp.Client
	var smsClient sms.TwilioClient
	if cfg.Twilio.Configured() {
		tw, err := twilio.New(cfg.Twilio, log.With().Str("component", "twilio").Logger())
		if err != nil {
			return nil, err
		}
		waClient = tw
		smsClient = tw
	}

	var smsMailer sms.Mailer
	var emailMailer email.Mailer
	if cfg.SMTP.Configured() {
		mailer, err := smtp.New(cfg.SMTP, log.With().Str("component", "smtp").Logger())
		if err != nil {
			return nil, err
		}
		smsMailer = mailer
		emailMailer = mailer
	}

	senders := []notify.ChannelSender{
		whatsapp.New(waClient, cfg.Twilio.WhatsAppFrom, cfg.Notify.DevModeEcho, log.With().Str("component", "whatsapp-sender").Logger()),
		sms.New(smsClient, cfg.Twilio.SMSFrom, smsMailer, log.With().Str("component", "sms-sender").Logger()),
		email.New(emailMailer, log.With().Str("component", "email-sender").Logger()),
	}

	return notify.NewDispatcher(composer, senders,
		log.With().Str("component", "dispatcher").Logger(),
		notify.WithChannelTimeout(time.Duration(cfg.Notify.ChannelTimeoutSeconds)*time.Second),
	)
}

func fail(stage string, err error) {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	logger.Fatal().Err(err).Str("stage", stage).Msg("notify send init failed")
}
