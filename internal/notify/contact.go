package notify

import (
	"strings"

	"github.com/Tjuaco/Molaris-sub001/internal/models"
)

// ResolveContact extracts patient contact data from an appointment record
// using a fixed fallback order: the linked patient record first, then the
// denormalized fields on the appointment itself. Field-by-field, so a linked
// record missing its email still falls back to the denormalized one.
func ResolveContact(rec models.AppointmentRecord) ContactInfo {
	contact := ContactInfo{
		Name:  strings.TrimSpace(rec.PatientName),
		Phone: strings.TrimSpace(rec.PatientPhone),
		Email: strings.TrimSpace(rec.PatientEmail),
	}

	if rec.Patient != nil {
		if name := strings.TrimSpace(rec.Patient.Name); name != "" {
			contact.Name = name
		}
		if phone := strings.TrimSpace(rec.Patient.Phone); phone != "" {
			contact.Phone = phone
		}
		if email := strings.TrimSpace(rec.Patient.Email); email != "" {
			contact.Email = email
		}
	}

	return contact
}

// EventFromRecord builds the immutable dispatch input from an appointment
// record and an event kind.
func EventFromRecord(kind EventKind, rec models.AppointmentRecord) AppointmentEvent {
	return AppointmentEvent{
		Kind:          kind,
		AppointmentID: rec.ID,
		ScheduledAt:   rec.ScheduledAt,
		DentistName:   strings.TrimSpace(rec.DentistName),
		ServiceName:   strings.TrimSpace(rec.ServiceName),
		Price:         rec.Price,
	}
}
