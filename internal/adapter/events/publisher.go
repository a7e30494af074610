// Package events delivers committed booking events to brokers and live clients.
package events

import (
	"context"
	"errors"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
)

// Multi fans an event out to every publisher and joins their errors.
type Multi []port.EventPublisher

func (m Multi) Publish(ctx context.Context, ev domain.Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type Nop struct{}

func (Nop) Publish(context.Context, domain.Event) error { return nil }

// routingKey maps booking.status_changed to booking.driver_reached and so on,
// so consumers can bind to the statuses they care about.
func routingKey(ev domain.Event) string {
	if ev.Type == domain.EventBookingProgress {
		return "booking." + string(ev.Status)
	}
	return string(ev.Type)
}
