package port

import (
	"context"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
)

// EventPublisher delivers committed lifecycle events to the outside world.
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}
