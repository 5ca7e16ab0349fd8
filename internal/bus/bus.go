// Package bus provides the message bus abstraction used to publish and consume
// event envelopes. Two backends are supported: an in-process channel Pub/Sub for
// development and tests, and NATS JetStream for production.
package bus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmnats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	natsgo "github.com/nats-io/nats.go"
)

// Driver names accepted by the configuration.
const (
	DriverChannel = "channel"
	DriverNATS    = "nats"
)

// Config holds message bus configuration.
type Config struct {
	Driver         string
	NATSURL        string
	PublishTimeout time.Duration
}

// Bus bundles a publisher and subscriber sharing one backend.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close shuts down both sides of the bus.
func (b *Bus) Close() error {
	var pubErr, subErr error
	if b.Publisher != nil {
		pubErr = b.Publisher.Close()
	}
	if b.Subscriber != nil {
		subErr = b.Subscriber.Close()
	}
	if pubErr != nil {
		return pubErr
	}
	return subErr
}

// New creates a bus for the configured driver.
func New(cfg Config, logger *slog.Logger) (*Bus, error) {
	switch cfg.Driver {
	case DriverChannel, "":
		return newChannelBus(logger), nil
	case DriverNATS:
		return newNATSBus(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown bus driver: %q", cfg.Driver)
	}
}

// newChannelBus creates an in-process Pub/Sub where publisher and subscriber
// share the same gochannel instance.
func newChannelBus(logger *slog.Logger) *Bus {
	pubSub := gochannel.NewGoChannel(
		gochannel.Config{
			// Buffer publishes so a slow consumer does not block the outbox processor.
			OutputChannelBuffer: 64,
		},
		watermill.NewSlogLogger(logger),
	)

	return &Bus{
		Publisher:  pubSub,
		Subscriber: pubSub,
	}
}

// newNATSBus creates a NATS JetStream backed bus with reconnect handling.
func newNATSBus(cfg Config, logger *slog.Logger) (*Bus, error) {
	wmLogger := watermill.NewSlogLogger(logger)

	natsOptions := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(time.Second),
		natsgo.DisconnectErrHandler(func(nc *natsgo.Conn, err error) {
			if err != nil && logger != nil {
				logger.Warn("nats disconnected", slog.Any("error", err))
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			if logger != nil {
				logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrl()))
			}
		}),
	}

	marshaler := &wmnats.NATSMarshaler{}
	jetStream := wmnats.JetStreamConfig{
		AutoProvision: true,
		// The envelope id doubles as Nats-Msg-Id for broker-side deduplication.
		TrackMsgId: true,
	}

	publisher, err := wmnats.NewPublisher(wmnats.PublisherConfig{
		URL:         cfg.NATSURL,
		NatsOptions: natsOptions,
		Marshaler:   marshaler,
		JetStream:   jetStream,
	}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create nats publisher: %w", err)
	}

	subscriber, err := wmnats.NewSubscriber(wmnats.SubscriberConfig{
		URL:            cfg.NATSURL,
		NatsOptions:    natsOptions,
		Unmarshaler:    marshaler,
		JetStream:      jetStream,
		AckWaitTimeout: 30 * time.Second,
	}, wmLogger)
	if err != nil {
		_ = publisher.Close()
		return nil, fmt.Errorf("failed to create nats subscriber: %w", err)
	}

	return &Bus{
		Publisher:  publisher,
		Subscriber: subscriber,
	}, nil
}
