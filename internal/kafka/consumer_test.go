package kafka_test

import (
	"testing"

	"github.com/IBM/sarama"
	"github.com/rs/zerolog"

	"github.com/Tjuaco/Molaris-sub001/internal/kafka"
)

func TestNewConsumerValidation(t *testing.T) {
	if _, err := kafka.NewConsumer(nil, "group", zerolog.Nop(), true); err == nil {
		t.Fatalf("expected error for missing brokers")
	}
	if _, err := kafka.NewConsumer([]string{"127.0.0.1:1"}, "", zerolog.Nop(), true); err == nil {
		t.Fatalf("expected error for missing group id")
	}
}

func TestNewConsumerDoesNotMutateSuppliedConfig(t *testing.T) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	// The broker is unreachable so construction fails, but the supplied
	// config must still belong to the caller untouched.
	_, err := kafka.NewConsumer([]string{"127.0.0.1:1"}, "clinic-notify", zerolog.Nop(), true, kafka.WithConsumerConfig(cfg))
	if err == nil {
		t.Fatalf("expected connection error for unreachable broker")
	}

	if !cfg.Consumer.Offsets.AutoCommit.Enable {
		t.Fatalf("supplied config was mutated: AutoCommit.Enable flipped to false")
	}
}
