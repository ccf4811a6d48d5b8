// Package substrate defines the delivery substrate contract: an
// at-least-once queue/topic pair with per-message ack and nack. Each
// implementation lives in its own sub-package and registers a Builder with
// the registry under the name used by the "substrate" config key.
package substrate

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
)

// ErrMessageTooLarge is returned when an encoded event exceeds the
// substrate's MaxMessageSize. Large payloads should be offloaded to the
// pointer store.
var ErrMessageTooLarge = errors.New("docflow: message exceeds substrate size limit")

// Substrate combines the publisher and subscriber produced by a Builder.
type Substrate struct {
	Publisher    message.Publisher
	Subscriber   message.Subscriber
	Capabilities Capabilities
}

// Close closes both halves, returning every error.
func (s Substrate) Close() error {
	var errs []error
	if s.Subscriber != nil {
		errs = append(errs, s.Subscriber.Close())
	}
	if s.Publisher != nil && any(s.Publisher) != any(s.Subscriber) {
		errs = append(errs, s.Publisher.Close())
	}
	return errors.Join(errs...)
}

// Builder creates a substrate from config.
type Builder func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Substrate, error)

// Factory builds substrates. *Registry implements it; tests substitute
// their own.
type Factory interface {
	Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Substrate, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Substrate, error)

func (f FactoryFunc) Build(ctx context.Context, cfg Config, logger watermill.LoggerAdapter) (Substrate, error) {
	return f(ctx, cfg, logger)
}

// Config provides the values substrates need without depending on the full
// config package.
type Config interface {
	// GetSubstrate returns the registered substrate name.
	GetSubstrate() string

	// Kafka
	GetKafkaBrokers() []string
	GetKafkaClientID() string
	GetKafkaConsumerGroup() string

	// RabbitMQ
	GetRabbitMQURL() string

	// NATS
	GetNATSURL() string

	// HTTP
	GetHTTPServerAddress() string
	GetHTTPPublisherURL() string

	// AWS
	GetAWSRegion() string
	GetAWSAccountID() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetAWSEndpoint() string
}

// CheckSize returns ErrMessageTooLarge when size exceeds the limit of caps.
func CheckSize(caps Capabilities, size int) error {
	if caps.MaxMessageSize > 0 && int64(size) > caps.MaxMessageSize {
		return fmt.Errorf("%w: %d bytes, %s allows %d", ErrMessageTooLarge, size, caps.Name, caps.MaxMessageSize)
	}
	return nil
}
