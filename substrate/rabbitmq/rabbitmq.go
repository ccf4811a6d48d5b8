// Package rabbitmq provides the RabbitMQ substrate. Every topic is a durable
// fanout exchange with one durable queue of the same name, shared by all
// replicas of the middleware consuming it.
package rabbitmq

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-amqp/v3/pkg/amqp"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/docflow/substrate"
)

// Name is the registered substrate name.
const Name = "rabbitmq"

// DefaultPrefetch bounds the unacknowledged deliveries a consumer holds, so
// one slow replica does not hoard the queue.
const DefaultPrefetch = 64

// ConnectionFactory allows overriding the connection creation for testing.
var ConnectionFactory = func(cfg amqp.ConnectionConfig, logger watermill.LoggerAdapter) (*amqp.ConnectionWrapper, error) {
	return amqp.NewConnection(cfg, logger)
}

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Publisher, error) {
	return amqp.NewPublisherWithConnection(cfg, logger, conn)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(cfg amqp.Config, logger watermill.LoggerAdapter, conn *amqp.ConnectionWrapper) (message.Subscriber, error) {
	return amqp.NewSubscriberWithConnection(cfg, logger, conn)
}

// Register adds the RabbitMQ substrate to the default registry.
func Register() {
	substrate.Register(Name, Build, substrate.RabbitMQCapabilities)
}

// AMQPConfig returns the exchange and queue layout for url.
//
// Classic queues do not count redeliveries, so nacked messages must be
// requeued for the consumer to retry them and dead-letter them by receive
// count.
func AMQPConfig(url string) amqp.Config {
	cfg := amqp.NewDurablePubSubConfig(url, amqp.GenerateQueueNameTopicName)
	cfg.Consume.NoRequeueOnNack = false
	cfg.Consume.Qos.PrefetchCount = DefaultPrefetch
	return cfg
}

// Build creates a RabbitMQ substrate. The publisher and subscriber share one
// reconnecting connection.
func Build(ctx context.Context, cfg substrate.Config, logger watermill.LoggerAdapter) (substrate.Substrate, error) {
	url := cfg.GetRabbitMQURL()
	amqpConfig := AMQPConfig(url)

	conn, err := ConnectionFactory(amqp.ConnectionConfig{
		AmqpURI:   url,
		Reconnect: amqp.DefaultReconnectConfig(),
	}, logger)
	if err != nil {
		return substrate.Substrate{}, err
	}

	publisher, err := PublisherFactory(amqpConfig, logger, conn)
	if err != nil {
		_ = conn.Close()
		return substrate.Substrate{}, err
	}

	subscriber, err := SubscriberFactory(amqpConfig, logger, conn)
	if err != nil {
		_ = publisher.Close()
		_ = conn.Close()
		return substrate.Substrate{}, err
	}

	return substrate.Substrate{
		Publisher:    publisher,
		Subscriber:   subscriber,
		Capabilities: substrate.RabbitMQCapabilities,
	}, nil
}
