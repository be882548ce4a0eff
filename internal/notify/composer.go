package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ClinicProfile is the clinic information rendered into message bodies. It is
// fetched once per process from configuration; message composition itself has
// no side effects.
type ClinicProfile struct {
	Name    string
	Address string
	Phone   string
	Email   string
	Website string
	MapURL  string
	Hours   string
}

// DisplayName falls back to a generic clinic name when unset.
func (p ClinicProfile) DisplayName() string {
	if name := strings.TrimSpace(p.Name); name != "" {
		return name
	}
	return "Clínica Dental"
}

// Composer builds channel-appropriate message bodies for appointment events.
// Compose is a pure function of (event, contact, channel): rendering the
// appointment time in the clinic's timezone is deterministic for a given
// timestamp regardless of whether the stored value was UTC-naive or aware.
type Composer struct {
	clinic ClinicProfile
	loc    *time.Location
}

// NewComposer constructs a Composer for the given clinic and IANA timezone
// name (typically America/Santiago).
func NewComposer(clinic ClinicProfile, timezone string) (*Composer, error) {
	if strings.TrimSpace(timezone) == "" {
		timezone = "America/Santiago"
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("composer: load timezone %q: %w", timezone, err)
	}
	return &Composer{clinic: clinic, loc: loc}, nil
}

// Compose renders the message for one channel. WhatsApp gets the long form
// with bold markers, SMS a compact plain-text form, email a subject/body pair.
func (c *Composer) Compose(event AppointmentEvent, contact ContactInfo, ch Channel) Message {
	switch event.Kind {
	case EventCancelled:
		return c.composeCancellation(event, contact, ch)
	default:
		return c.composeConfirmation(event, contact, ch)
	}
}

// LocalTime converts the event timestamp to the clinic's timezone. Timestamps
// stored without zone information are treated as UTC.
func (c *Composer) LocalTime(ts time.Time) time.Time {
	return ts.In(c.loc)
}

func (c *Composer) composeConfirmation(event AppointmentEvent, contact ContactInfo, ch Channel) Message {
	local := c.LocalTime(event.ScheduledAt)
	name := contact.DisplayName()
	clinic := c.clinic.DisplayName()
	price := FormatPriceCLP(event.Price)

	switch ch {
	case ChannelWhatsApp:
		var b strings.Builder
		fmt.Fprintf(&b, "🦷 *%s*\n\n", clinic)
		fmt.Fprintf(&b, "Hola %s, gracias por reservar tu cita con nosotros.\n\n", name)
		b.WriteString("*INFORMACIÓN DE TU CITA*\n")
		fmt.Fprintf(&b, "Fecha: %s\n", local.Format("02/01/2006"))
		fmt.Fprintf(&b, "Hora: %s\n", local.Format("15:04"))
		if event.DentistName != "" {
			fmt.Fprintf(&b, "Dentista: %s\n", event.DentistName)
		}
		if event.ServiceName != "" {
			fmt.Fprintf(&b, "Servicio: %s\n", event.ServiceName)
		}
		if price != "" {
			fmt.Fprintf(&b, "Precio: %s\n", price)
		}
		b.WriteString("\nRecomendación: Llega 10 minutos antes para facilitar la atención.\n\n")
		if c.clinic.Address != "" || c.clinic.MapURL != "" {
			b.WriteString("*UBICACIÓN*\n")
			if c.clinic.Address != "" {
				fmt.Fprintf(&b, "Dirección: %s\n", c.clinic.Address)
			}
			if c.clinic.MapURL != "" {
				fmt.Fprintf(&b, "Cómo llegar: %s\n", c.clinic.MapURL)
			}
			b.WriteString("\n")
		}
		if c.clinic.Phone != "" || c.clinic.Email != "" || c.clinic.Website != "" {
			b.WriteString("*CONTACTO*\n")
			if c.clinic.Phone != "" {
				fmt.Fprintf(&b, "Teléfono: %s\n", c.clinic.Phone)
			}
			if c.clinic.Email != "" {
				fmt.Fprintf(&b, "Email: %s\n", c.clinic.Email)
			}
			if c.clinic.Website != "" {
				fmt.Fprintf(&b, "Sitio web: %s\n", c.clinic.Website)
			}
			b.WriteString("\n")
		}
		b.WriteString("*IMPORTANTE*\n")
		b.WriteString("• Si deseas cambiar o cancelar tu cita, contáctanos con anticipación.\n")
		b.WriteString("• Mantén tu teléfono disponible para recordatorios.\n\n")
		b.WriteString("Esperamos verte y cuidar tu sonrisa.")
		return Message{Body: b.String()}

	case ChannelSMS:
		var b strings.Builder
		fmt.Fprintf(&b, "%s\n\n", clinic)
		fmt.Fprintf(&b, "Hola %s! Tu cita ha sido agendada.\n\n", name)
		fmt.Fprintf(&b, "Fecha: %s\n", local.Format("02/01/2006"))
		fmt.Fprintf(&b, "Hora: %s", local.Format("15:04"))
		if event.DentistName != "" {
			fmt.Fprintf(&b, "\nDentista: %s", event.DentistName)
		}
		if event.ServiceName != "" {
			fmt.Fprintf(&b, "\nServicio: %s", event.ServiceName)
		}
		if price != "" {
			fmt.Fprintf(&b, "\nPrecio: %s", price)
		}
		b.WriteString("\n\nRecomendacion: Llega 10 minutos antes.")
		if c.clinic.Address != "" {
			fmt.Fprintf(&b, "\n\nDireccion: %s", c.clinic.Address)
		}
		if c.clinic.Phone != "" {
			fmt.Fprintf(&b, "\nContacto: %s", c.clinic.Phone)
		}
		if c.clinic.Hours != "" {
			fmt.Fprintf(&b, "\nHorario: %s", strings.ReplaceAll(c.clinic.Hours, "\n", " "))
		}
		b.WriteString("\n\nSi necesitas cambiar o cancelar, contactanos con anticipacion.")
		b.WriteString("\n\nEsperamos verte!")
		// The subject travels with the body on the email-to-SMS path; most
		// gateways drop it.
		return Message{
			Subject: fmt.Sprintf("Cita %s", local.Format("02/01 15:04")),
			Body:    b.String(),
		}

	default: // ChannelEmail
		var b strings.Builder
		fmt.Fprintf(&b, "%s\n\n", clinic)
		fmt.Fprintf(&b, "Hola %s!\n\n", name)
		b.WriteString("Tu cita ha sido agendada exitosamente.\n\n")
		b.WriteString("INFORMACIÓN DE TU CITA:\n")
		b.WriteString("------------------------\n")
		fmt.Fprintf(&b, "Fecha: %s\n", local.Format("02/01/2006"))
		fmt.Fprintf(&b, "Hora: %s\n", local.Format("15:04"))
		if event.DentistName != "" {
			fmt.Fprintf(&b, "Dentista: %s\n", event.DentistName)
		}
		if event.ServiceName != "" {
			fmt.Fprintf(&b, "Servicio: %s\n", event.ServiceName)
		}
		if price != "" {
			fmt.Fprintf(&b, "Precio: %s\n", price)
		}
		b.WriteString("\nRecomendación: Llega 10 minutos antes para facilitar la atención.\n")
		if c.clinic.Address != "" {
			fmt.Fprintf(&b, "Dirección: %s\n", c.clinic.Address)
		}
		if c.clinic.Phone != "" {
			fmt.Fprintf(&b, "Contacto: %s\n", c.clinic.Phone)
		}
		if c.clinic.Email != "" {
			fmt.Fprintf(&b, "Email: %s\n", c.clinic.Email)
		}
		if c.clinic.Hours != "" {
			fmt.Fprintf(&b, "Horario de Atención:\n%s\n", c.clinic.Hours)
		}
		b.WriteString("\nRecuerda:\n")
		b.WriteString("- Si deseas cambiar o cancelar tu cita, contáctanos con anticipación.\n")
		b.WriteString("- Mantén tu teléfono disponible para recordatorios.\n\n")
		b.WriteString("¡Esperamos verte y cuidar tu sonrisa!\n\n")
		fmt.Fprintf(&b, "Saludos,\n%s\n", clinic)
		return Message{
			Subject: fmt.Sprintf("Confirmación de Cita - %s", clinic),
			Body:    b.String(),
		}
	}
}

func (c *Composer) composeCancellation(event AppointmentEvent, contact ContactInfo, ch Channel) Message {
	local := c.LocalTime(event.ScheduledAt)
	name := contact.DisplayName()
	clinic := c.clinic.DisplayName()

	switch ch {
	case ChannelWhatsApp, ChannelSMS:
		body := fmt.Sprintf(
			"%s: tu cita del %s ha sido cancelada. Si fue un error, por favor contáctanos para reagendar.",
			clinic, local.Format("02/01/2006 15:04"),
		)
		return Message{
			Subject: fmt.Sprintf("Cita cancelada %s", local.Format("02/01 15:04")),
			Body:    body,
		}

	default: // ChannelEmail
		var b strings.Builder
		fmt.Fprintf(&b, "Cancelación de Cita - %s\n\n", clinic)
		fmt.Fprintf(&b, "Hola %s,\n\n", name)
		b.WriteString("Te informamos que tu cita ha sido cancelada.\n\n")
		b.WriteString("INFORMACIÓN DE LA CITA CANCELADA:\n")
		fmt.Fprintf(&b, "Fecha: %s\n", local.Format("02/01/2006"))
		fmt.Fprintf(&b, "Hora: %s\n", local.Format("15:04"))
		if event.DentistName != "" {
			fmt.Fprintf(&b, "Dentista: %s\n", event.DentistName)
		}
		if event.ServiceName != "" {
			fmt.Fprintf(&b, "Servicio: %s\n", event.ServiceName)
		}
		b.WriteString("\nSi fue un error o deseas reagendar, por favor contáctanos.\n")
		if c.clinic.Phone != "" {
			fmt.Fprintf(&b, "Contacto: %s\n", c.clinic.Phone)
		}
		if c.clinic.Email != "" {
			fmt.Fprintf(&b, "Email: %s\n", c.clinic.Email)
		}
		fmt.Fprintf(&b, "\nSaludos,\n%s\n", clinic)
		return Message{
			Subject: fmt.Sprintf("Cancelación de Cita - %s", clinic),
			Body:    b.String(),
		}
	}
}

// FormatPriceCLP renders a CLP amount with the Chilean thousands separator
// ($20.000). Zero and negative amounts render empty, matching how optional
// prices are displayed.
func FormatPriceCLP(price decimal.Decimal) string {
	if price.LessThanOrEqual(decimal.Zero) {
		return ""
	}
	digits := price.Round(0).IntPart()
	s := fmt.Sprintf("%d", digits)
	var b strings.Builder
	b.WriteByte('$')
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String()
}
