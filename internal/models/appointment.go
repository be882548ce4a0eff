package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PatientRecord is the linked patient row an appointment may reference.
type PatientRecord struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// AppointmentRecord mirrors the appointment data produced by the scheduling
// system. Patient contact details may come from the linked patient record or
// from the denormalized fields on the appointment itself; callers should go
// through notify.ResolveContact rather than reading the fields directly.
type AppointmentRecord struct {
	ID          string          `json:"id"`
	ScheduledAt time.Time       `json:"scheduled_at"`
	Status      string          `json:"status,omitempty"`
	DentistName string          `json:"dentist_name,omitempty"`
	ServiceName string          `json:"service_name,omitempty"`
	Price       decimal.Decimal `json:"price"`

	Patient *PatientRecord `json:"patient,omitempty"`

	// Denormalized fallbacks, populated when the appointment was booked
	// without a patient account.
	PatientName  string `json:"patient_name,omitempty"`
	PatientPhone string `json:"patient_phone,omitempty"`
	PatientEmail string `json:"patient_email,omitempty"`
}
