package parking

import (
	"context"
	"errors"
	"time"
)

type EventType string

const (
	EventBookingCreated   EventType = "booking.created"
	EventBookingCompleted EventType = "booking.completed"
	EventPaymentCompleted EventType = "payment.completed"
	EventStatusChanged    EventType = "status.changed"
)

// Event is emitted after a core operation has been persisted. Status is set
// whenever the operation changed the status record.
type Event struct {
	Type    EventType     `json:"type"`
	UserID  string        `json:"userId,omitempty"`
	Booking *Booking      `json:"booking,omitempty"`
	Payment *Payment      `json:"payment,omitempty"`
	Status  *StatusRecord `json:"status,omitempty"`
	At      time.Time     `json:"at"`
}

// Publisher delivers events to one subscriber.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, event Event) error

func (f PublisherFunc) Publish(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Fanout publishes to every subscriber and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
