package bus

import (
	"context"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"

	"github.com/allisson/courier/internal/event"
)

// DispatchFunc hands a decoded envelope to the application (normally the
// idempotent consumer wrapper). Returning an error nacks the message so the
// bus redelivers it.
type DispatchFunc func(ctx context.Context, env *event.Envelope) error

// NewRouter builds a watermill router that subscribes one topic per registered
// event type and forwards each parsed envelope to dispatch. Malformed payloads
// are acked and dropped with a warning; they would never parse on redelivery.
func NewRouter(
	subscriber message.Subscriber,
	eventTypes []string,
	dispatch DispatchFunc,
	logger *slog.Logger,
) (*message.Router, error) {
	router, err := message.NewRouter(message.RouterConfig{}, watermill.NewSlogLogger(logger))
	if err != nil {
		return nil, err
	}

	router.AddMiddleware(middleware.Recoverer)

	for _, eventType := range eventTypes {
		eventType := eventType
		router.AddNoPublisherHandler(
			"consume_"+eventType,
			eventType,
			subscriber,
			func(msg *message.Message) error {
				env, err := event.FromMessage(msg)
				if err != nil {
					if logger != nil {
						logger.Warn("dropping malformed message",
							slog.String("topic", eventType),
							slog.String("message_id", msg.UUID),
							slog.Any("error", err),
						)
					}
					return nil
				}
				return dispatch(msg.Context(), env)
			},
		)
	}

	return router, nil
}
