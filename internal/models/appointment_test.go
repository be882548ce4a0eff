package models_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/Tjuaco/Molaris-sub001/internal/models"
)

func TestAppointmentRecordPriceAlwaysSerialized(t *testing.T) {
	// decimal.Decimal is a struct, so the price field is emitted even when
	// no price was set. Downstream consumers rely on the key being present.
	raw, err := json.Marshal(models.AppointmentRecord{ID: "apt-7"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(raw), `"price":"0"`) {
		t.Fatalf("expected zero price in payload, got %s", raw)
	}
}
