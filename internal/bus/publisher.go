package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/allisson/courier/internal/event"
)

// EventPublisher publishes event envelopes onto the bus, one topic per event
// type. Publishes are bounded by a timeout and protected by a circuit breaker
// so a stuck broker fails fast instead of holding outbox leases.
type EventPublisher struct {
	publisher message.Publisher
	breaker   *gobreaker.CircuitBreaker[any]
	timeout   time.Duration
}

// NewEventPublisher wraps a watermill publisher with timeout and circuit
// breaker protection. A zero timeout disables the publish deadline.
func NewEventPublisher(publisher message.Publisher, timeout time.Duration) *EventPublisher {
	breaker := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:    "bus-publisher",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &EventPublisher{
		publisher: publisher,
		breaker:   breaker,
		timeout:   timeout,
	}
}

// Publish sends the envelope to the topic named after its event type.
func (p *EventPublisher) Publish(ctx context.Context, env *event.Envelope) error {
	msg, err := env.ToMessage()
	if err != nil {
		return err
	}

	_, err = p.breaker.Execute(func() (any, error) {
		return nil, p.publishWithTimeout(ctx, env.EventType, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", env.EventType, err)
	}
	return nil
}

// publishWithTimeout runs the blocking publish call and abandons it when the
// deadline or the caller's context expires. An abandoned publish counts as a
// failure toward the breaker and the outbox retry ceiling.
func (p *EventPublisher) publishWithTimeout(ctx context.Context, topic string, msg *message.Message) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	done := make(chan error, 1)
	go func() {
		done <- p.publisher.Publish(topic, msg)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("publish to %s: %w", topic, ctx.Err())
	}
}
