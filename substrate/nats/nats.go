// Package nats provides the core NATS substrate. Core NATS has no
// acknowledgements, so nothing is redelivered: the consumer dead-letters
// transient failures instead of nacking them. Use jetstream for retries.
package nats

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/docflow/substrate"
)

// Name is the registered substrate name.
const Name = "nats"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg nats.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return nats.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg nats.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return nats.NewSubscriber(cfg, logger)
}

// Register adds the NATS substrate to the default registry. The substrates
// package calls it; import that package instead of calling this directly.
func Register() {
	substrate.Register(Name, Build, substrate.NATSCapabilities)
}

// Build creates a NATS substrate.
func Build(ctx context.Context, cfg substrate.Config, logger watermill.LoggerAdapter) (substrate.Substrate, error) {
	url := cfg.GetNATSURL()
	marshaler := &nats.NATSMarshaler{}

	publisher, err := PublisherFactory(
		nats.PublisherConfig{
			URL:       url,
			Marshaler: marshaler,
		},
		logger,
	)
	if err != nil {
		return substrate.Substrate{}, err
	}

	subscriber, err := SubscriberFactory(
		nats.SubscriberConfig{
			URL:         url,
			Unmarshaler: marshaler,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return substrate.Substrate{}, err
	}

	return substrate.Substrate{
		Publisher:    publisher,
		Subscriber:   subscriber,
		Capabilities: substrate.NATSCapabilities,
	}, nil
}
