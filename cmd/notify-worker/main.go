package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/Tjuaco/Molaris-sub001/internal/channel/email"
	"github.com/Tjuaco/Molaris-sub001/internal/channel/sms"
	"github.com/Tjuaco/Molaris-sub001/internal/channel/whatsapp"
	"github.com/Tjuaco/Molaris-sub001/internal/config"
	"github.com/Tjuaco/Molaris-sub001/internal/kafka"
	"github.com/Tjuaco/Molaris-sub001/internal/logger"
	"github.com/Tjuaco/Molaris-sub001/internal/notify"
	"github.com/Tjuaco/Molaris-sub001/internal/providers/smtp"
	"github.com/Tjuaco/Molaris-sub001/internal/providers/twilio"
	"github.com/Tjuaco/Molaris-sub001/internal/store"
	"github.com/Tjuaco/Molaris-sub001/internal/worker"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fail("config load", err)
	}

	baseLogger, err := logger.New("notify-worker", cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		fail("logger init", err)
	}
	log := baseLogger.With().Str("service", "notify-worker").Logger()

	if !cfg.Kafka.Configured() {
		log.Fatal().Msg("KAFKA_BROKERS must be set for the notification worker")
	}

	kafkaLogger := log.With().Str("component", "kafka").Logger()
	prod, err := kafka.NewProducer(cfg.Kafka.Brokers, kafkaLogger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka producer")
	}
	defer func() {
		if err := prod.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka producer")
		}
	}()

	consumerLogger := log.With().Str("component", "consumer").Logger()
	cons, err := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, consumerLogger, true)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create kafka consumer")
	}
	defer func() {
		if err := cons.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close kafka consumer")
		}
	}()

	statusPublisher := kafka.NewDeliveryPublisher(prod, cfg.Kafka.StatusTopic, log.With().Str("component", "status-publisher").Logger())
	if statusPublisher == nil {
		log.Fatal().Msg("failed to create status publisher")
	}
	dlqPublisher := kafka.NewDLQPublisher(prod, cfg.Kafka.DLQTopic, log.With().Str("component", "dlq-publisher").Logger())
	if dlqPublisher == nil {
		log.Fatal().Msg("failed to create dlq publisher")
	}

	dispatcher, err := buildDispatcher(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise dispatcher")
	}

	var deliveryStore worker.DeliveryStore
	if cfg.Database.Configured() {
		dbLog, err := store.Open(ctx, cfg.Database.URL, log.With().Str("component", "delivery-log").Logger())
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open delivery log store")
		}
		defer dbLog.Close()
		deliveryStore = dbLog
	} else {
		log.Info().Msg("DATABASE_URL not set; delivery records will not be persisted")
	}

	engineCfg := worker.Config{
		MsgMaxBytes: cfg.Retry.MsgMaxBytes,
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseBackoff: time.Duration(cfg.Retry.BaseBackoffSeconds) * time.Second,
		MaxBackoff:  time.Duration(cfg.Retry.MaxBackoffSeconds) * time.Second,
		Concurrency: cfg.Retry.WorkerConcurrency,
	}

	engine, err := worker.NewEngine(engineCfg, worker.Dependencies{
		Dispatcher:      dispatcher,
		StatusPublisher: statusPublisher,
		DLQPublisher:    dlqPublisher,
		Committer:       cons,
		Store:           deliveryStore,
		Logger:          log.With().Str("component", "worker-engine").Logger(),
		Now:             time.Now,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialise worker engine")
	}

	topics := []string{cfg.Kafka.RequestTopic}
	handler := worker.KafkaHandler(engine)

	errCh := make(chan error, 1)
	go func() {
		if err := cons.Consume(ctx, topics, handler); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Info().Str("request_topic", cfg.Kafka.RequestTopic).Msg("notification worker started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("consumer terminated with error")
		}
	}
}

// buildDispatcher assembles the composer and the three channel senders from
// configuration. Channels whose transport is not configured degrade to
// runtime failures on their own channel instead of blocking startup.
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
	} else {
		log.Warn().Msg("twilio credentials not set; whatsapp and direct sms are unavailable")
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
	} else {
		log.Warn().Msg("smtp not configured; email and gateway sms are unavailable")
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
	logger.Fatal().Err(err).Str("stage", stage).Msg("notify worker init failed")
}
