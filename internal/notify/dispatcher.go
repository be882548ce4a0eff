package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultChannelTimeout = 30 * time.Second

// channelOrder is the fixed priority: WhatsApp carries the richest formatting
// and is free for the clinic, SMS is the most universally reachable, email is
// the most reliable fallback. Every eligible channel is attempted regardless
// of earlier success; patients cannot be assumed to monitor any single one.
var channelOrder = map[Channel]int{
	ChannelWhatsApp: 0,
	ChannelSMS:      1,
	ChannelEmail:    2,
}

// DispatcherOption customises dispatcher behaviour.
type DispatcherOption func(*Dispatcher)

// WithChannelTimeout overrides the per-channel send timeout.
func WithChannelTimeout(d time.Duration) DispatcherOption {
	return func(dp *Dispatcher) {
		if d > 0 {
			dp.channelTimeout = d
		}
	}
}

// Dispatcher routes one appointment event to every eligible channel and
// aggregates the per-channel outcomes into a DeliveryResult.
type Dispatcher struct {
	composer       *Composer
	senders        []ChannelSender
	logger         zerolog.Logger
	channelTimeout time.Duration
}

// NewDispatcher constructs a dispatcher over the supplied senders. A
// dispatcher with no senders is a fatal misconfiguration and is rejected
// here; per-channel configuration problems are soft failures handled by the
// senders themselves.
func NewDispatcher(composer *Composer, senders []ChannelSender, logger zerolog.Logger, opts ...DispatcherOption) (*Dispatcher, error) {
	if composer == nil {
		return nil, errors.New("dispatcher: composer is required")
	}
	if len(senders) == 0 {
		return nil, errors.New("dispatcher: at least one channel sender is required")
	}
	seen := make(map[Channel]bool, len(senders))
	for _, s := range senders {
		if s == nil {
			return nil, errors.New("dispatcher: nil channel sender")
		}
		if seen[s.Channel()] {
			return nil, fmt.Errorf("dispatcher: duplicate sender for channel %s", s.Channel())
		}
		seen[s.Channel()] = true
	}

	d := &Dispatcher{
		composer:       composer,
		senders:        senders,
		logger:         logger,
		channelTimeout: defaultChannelTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d, nil
}

// DispatchConfirmation notifies the patient that the appointment was booked.
func (d *Dispatcher) DispatchConfirmation(ctx context.Context, event AppointmentEvent, contact ContactInfo) (DeliveryResult, error) {
	event.Kind = EventConfirmed
	return d.dispatch(ctx, event, contact)
}

// DispatchCancellation notifies the patient that the appointment was cancelled.
func (d *Dispatcher) DispatchCancellation(ctx context.Context, event AppointmentEvent, contact ContactInfo) (DeliveryResult, error) {
	event.Kind = EventCancelled
	return d.dispatch(ctx, event, contact)
}

func (d *Dispatcher) dispatch(ctx context.Context, event AppointmentEvent, contact ContactInfo) (DeliveryResult, error) {
	if !contact.HasAny() {
		return DeliveryResult{}, fmt.Errorf("%w (appointment %s)", ErrNoContact, event.AppointmentID)
	}

	outcomes := make([]ChannelOutcome, len(d.senders))
	var wg sync.WaitGroup

	for i, sender := range d.senders {
		if ok, reason := sender.Eligible(contact); !ok {
			outcomes[i] = ChannelOutcome{Channel: sender.Channel(), Status: StatusSkipped, Detail: reason}
			continue
		}

		wg.Add(1)
		go func(i int, sender ChannelSender) {
			defer wg.Done()
			outcomes[i] = d.attempt(ctx, sender, event, contact)
		}(i, sender)
	}

	wg.Wait()

	sort.SliceStable(outcomes, func(a, b int) bool {
		return channelOrder[outcomes[a].Channel] < channelOrder[outcomes[b].Channel]
	})

	result := DeliveryResult{Outcomes: outcomes}
	d.logger.Info().
		Str("appointment_id", event.AppointmentID).
		Str("event", string(event.Kind)).
		Bool("any_succeeded", result.AnySucceeded()).
		Str("summary", result.Summary()).
		Msg("dispatch completed")

	return result, nil
}

// attempt runs one channel with its own timeout and panic isolation so a
// crash or hang in one transport cannot cancel or corrupt the others.
func (d *Dispatcher) attempt(ctx context.Context, sender ChannelSender, event AppointmentEvent, contact ContactInfo) (outcome ChannelOutcome) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().
				Str("channel", string(sender.Channel())).
				Interface("panic", r).
				Msg("channel sender panicked")
			outcome = ChannelOutcome{
				Channel: sender.Channel(),
				Status:  StatusFailed,
				Detail:  fmt.Sprintf("panic: %v", r),
			}
		}
	}()

	sendCtx, cancel := context.WithTimeout(ctx, d.channelTimeout)
	defer cancel()

	msg := d.composer.Compose(event, contact, sender.Channel())
	outcome = sender.Send(sendCtx, contact, msg)

	if outcome.Status == StatusFailed && sendCtx.Err() != nil && outcome.Detail == "" {
		outcome.Detail = "timeout"
	}
	return outcome
}
