package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config captures all runtime configuration for the notification service.
// It is built once at startup and passed explicitly into every component so
// channel availability is computable without ambient settings lookups.
type Config struct {
	App      AppConfig
	Clinic   ClinicConfig
	Notify   NotifyConfig
	SMTP     SMTPConfig
	Twilio   TwilioConfig
	Kafka    KafkaConfig
	Database DatabaseConfig
	Retry    RetryConfig
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	LogLevel string
}

// ClinicConfig holds the clinic profile used for message composition.
type ClinicConfig struct {
	Name     string
	Address  string
	Phone    string
	Email    string
	Website  string
	MapURL   string
	Hours    string
	Timezone string
}

// NotifyConfig tunes dispatch behaviour.
type NotifyConfig struct {
	// DevModeEcho makes the WhatsApp channel log message bodies and report
	// success when Twilio credentials are absent, instead of failing the
	// channel. Meant for local development only.
	DevModeEcho           bool
	ChannelTimeoutSeconds int
}

// SMTPConfig stores SMTP credentials for email and email-to-SMS delivery.
// An empty host means the email transport is unavailable.
type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

// Configured reports whether the SMTP transport can be constructed.
func (c SMTPConfig) Configured() bool {
	return strings.TrimSpace(c.Host) != "" && c.Port > 0 && strings.TrimSpace(c.From) != ""
}

// TwilioConfig stores Twilio credentials for SMS and WhatsApp delivery.
// Missing credentials degrade those channels to unavailable.
type TwilioConfig struct {
	AccountSID   string
	AuthToken    string
	SMSFrom      string
	WhatsAppFrom string
}

// Configured reports whether the Twilio client can be constructed.
func (c TwilioConfig) Configured() bool {
	return strings.TrimSpace(c.AccountSID) != "" && strings.TrimSpace(c.AuthToken) != ""
}

// KafkaConfig defines broker information and the topics used by the
// notification worker. Empty brokers disable the worker entirely.
type KafkaConfig struct {
	Brokers       []string
	RequestTopic  string
	StatusTopic   string
	DLQTopic      string
	ConsumerGroup string
}

// Configured reports whether the Kafka worker can be started.
func (c KafkaConfig) Configured() bool {
	return len(c.Brokers) > 0
}

// DatabaseConfig holds the optional Postgres connection for the delivery log.
type DatabaseConfig struct {
	URL string
}

// Configured reports whether the delivery log store can be opened.
func (c DatabaseConfig) Configured() bool {
	return strings.TrimSpace(c.URL) != ""
}

// RetryConfig controls worker retry and backoff behaviour.
type RetryConfig struct {
	MaxAttempts        int
	BaseBackoffSeconds int
	MaxBackoffSeconds  int
	WorkerConcurrency  int
	MsgMaxBytes        int
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)

	cfg.Clinic.Name = ldr.getString("CLINIC_NAME", "Clínica Dental San Felipe", false)
	cfg.Clinic.Address = ldr.getString("CLINIC_ADDRESS", "", false)
	cfg.Clinic.Phone = ldr.getString("CLINIC_PHONE", "", false)
	cfg.Clinic.Email = ldr.getString("CLINIC_EMAIL", "", false)
	cfg.Clinic.Website = ldr.getString("CLINIC_WEBSITE", "", false)
	cfg.Clinic.MapURL = ldr.getString("CLINIC_MAP_URL", "", false)
	cfg.Clinic.Hours = ldr.getString("CLINIC_HOURS", "", false)
	cfg.Clinic.Timezone = ldr.getString("CLINIC_TIMEZONE", "America/Santiago", false)

	cfg.Notify.DevModeEcho = ldr.getBool("NOTIFY_DEV_MODE_ECHO", false, false)
	cfg.Notify.ChannelTimeoutSeconds = ldr.getInt("NOTIFY_CHANNEL_TIMEOUT_SECONDS", 30, false)

	cfg.SMTP.Host = ldr.getString("SMTP_HOST", "", false)
	cfg.SMTP.Port = ldr.getInt("SMTP_PORT", 587, false)
	cfg.SMTP.User = ldr.getString("SMTP_USER", "", false)
	cfg.SMTP.Pass = ldr.getString("SMTP_PASS", "", false)
	cfg.SMTP.From = ldr.getString("SMTP_FROM", cfg.SMTP.User, false)

	cfg.Twilio.AccountSID = ldr.getString("TWILIO_ACCOUNT_SID", "", false)
	cfg.Twilio.AuthToken = ldr.getString("TWILIO_AUTH_TOKEN", "", false)
	cfg.Twilio.SMSFrom = ldr.getString("TWILIO_SMS_FROM", "", false)
	cfg.Twilio.WhatsAppFrom = ldr.getString("TWILIO_WHATSAPP_FROM", "whatsapp:+14155238886", false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	cfg.Kafka.RequestTopic = ldr.getString("KAFKA_NOTIFY_REQUEST_TOPIC", "clinic.notifications.request", false)
	cfg.Kafka.StatusTopic = ldr.getString("KAFKA_NOTIFY_STATUS_TOPIC", "clinic.notifications.status", false)
	cfg.Kafka.DLQTopic = ldr.getString("KAFKA_NOTIFY_DLQ_TOPIC", "clinic.notifications.dlq", false)
	cfg.Kafka.ConsumerGroup = ldr.getString("NOTIFY_CONSUMER_GROUP", "clinic-notify-worker", false)

	cfg.Database.URL = ldr.getString("DATABASE_URL", "", false)

	cfg.Retry.MaxAttempts = ldr.getInt("MAX_ATTEMPTS", 3, false)
	cfg.Retry.BaseBackoffSeconds = ldr.getInt("BASE_BACKOFF_SECONDS", 10, false)
	cfg.Retry.MaxBackoffSeconds = ldr.getInt("MAX_BACKOFF_SECONDS", 120, false)
	cfg.Retry.WorkerConcurrency = ldr.getInt("WORKER_CONCURRENCY", 10, false)
	cfg.Retry.MsgMaxBytes = ldr.getInt("MSG_MAX_BYTES", 200000, false)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid boolean", key))
			return def
		}
		return parsed
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		if required {
			return nil
		}
		return []string{}
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
