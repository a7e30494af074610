package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vantutran2k1/haulbook/internal/core/domain"
	"github.com/vantutran2k1/haulbook/internal/core/port"
	"go.uber.org/zap"
)

// runTx executes fn in one store transaction bounded by timeout.
func runTx(ctx context.Context, store port.Store, timeout time.Duration, fn func(ctx context.Context, q port.Querier) error) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := store.ExecTx(ctx, func(q port.Querier) error {
		return fn(ctx, q)
	})
	return asUnavailable(ctx, err)
}

// read runs a single non-transactional store call bounded by timeout.
func read[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(ctx)
	return v, asUnavailable(ctx, err)
}

func asUnavailable(ctx context.Context, err error) error {
	if err == nil || errors.Is(err, domain.ErrUnavailable) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: store timeout: %v", domain.ErrUnavailable, err)
	}
	if domain.KindOf(err) == "internal_error" && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: store timeout: %v", domain.ErrUnavailable, err)
	}
	return err
}

func publish(ctx context.Context, events port.EventPublisher, logger *zap.Logger, ev domain.Event) {
	if events == nil {
		return
	}
	if err := events.Publish(ctx, ev); err != nil {
		logger.Warn("failed to publish booking event",
			zap.String("type", string(ev.Type)),
			zap.String("booking_id", ev.BookingID),
			zap.Error(err))
	}
}
