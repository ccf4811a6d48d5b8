// Package kafka provides the Kafka substrate. Consumer groups give each
// middleware its own cursor over the input topic.
package kafka

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v3/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/docflow/substrate"
)

// Name is the registered substrate name.
const Name = "kafka"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg kafka.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return kafka.NewPublisher(cfg, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg kafka.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return kafka.NewSubscriber(cfg, logger)
}

// Register adds the Kafka substrate to the default registry.
func Register() {
	substrate.Register(Name, Build, substrate.KafkaCapabilities)
}

// Build creates a Kafka substrate.
func Build(ctx context.Context, cfg substrate.Config, logger watermill.LoggerAdapter) (substrate.Substrate, error) {
	brokers := cfg.GetKafkaBrokers()

	pubSarama := kafka.DefaultSaramaSyncPublisherConfig()
	subSarama := kafka.DefaultSaramaSubscriberConfig()
	if clientID := cfg.GetKafkaClientID(); clientID != "" {
		pubSarama.ClientID = clientID
		subSarama.ClientID = clientID
	}
	pubSarama.Producer.MaxMessageBytes = int(substrate.KafkaCapabilities.MaxMessageSize)

	publisher, err := PublisherFactory(
		kafka.PublisherConfig{
			Brokers:               brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: pubSarama,
		},
		logger,
	)
	if err != nil {
		return substrate.Substrate{}, err
	}

	subscriber, err := SubscriberFactory(
		kafka.SubscriberConfig{
			Brokers:               brokers,
			Unmarshaler:           kafka.DefaultMarshaler{},
			ConsumerGroup:         cfg.GetKafkaConsumerGroup(),
			OverwriteSaramaConfig: subSarama,
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
		Capabilities: substrate.KafkaCapabilities,
	}, nil
}
