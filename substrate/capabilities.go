package substrate

// Capabilities describes what a substrate supports.
type Capabilities struct {
	Name string

	// SupportsDelay indicates the substrate can delay redelivery natively.
	SupportsDelay bool
	// SupportsNativeDLQ indicates the substrate configures a broker-side
	// redrive policy, so the consumer leaves receive counting to the broker.
	// Only set it when Build provisions that policy.
	SupportsNativeDLQ bool
	// SupportsOrdering indicates messages of a partition arrive in order.
	SupportsOrdering bool
	// SupportsAck and SupportsNack indicate per-message acknowledgement.
	SupportsAck  bool
	SupportsNack bool

	// MaxMessageSize is the largest accepted payload in bytes, 0 meaning
	// unlimited.
	MaxMessageSize int64
}

// SupportsReliableDelivery reports whether unacknowledged items are
// redelivered.
func (c Capabilities) SupportsReliableDelivery() bool {
	return c.SupportsAck && c.SupportsNack
}

var (
	ChannelCapabilities = Capabilities{
		Name:             "channel",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
	}

	// AWSCapabilities covers SNS fan-out into SQS queues. Queues are created
	// without a redrive policy, so the consumer dead-letters by receive count.
	AWSCapabilities = Capabilities{
		Name:           "aws",
		SupportsDelay:  true,
		SupportsAck:    true,
		SupportsNack:   true,
		MaxMessageSize: 262144,
	}

	KafkaCapabilities = Capabilities{
		Name:             "kafka",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		MaxMessageSize:   1000000,
	}

	// RabbitMQCapabilities covers classic durable queues. Nacked messages
	// are requeued and the consumer dead-letters by receive count.
	RabbitMQCapabilities = Capabilities{
		Name:             "rabbitmq",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		MaxMessageSize:   134217728,
	}

	// NATSCapabilities covers core NATS, which has no acknowledgements.
	// Transient failures are dead-lettered instead of retried.
	NATSCapabilities = Capabilities{
		Name:           "nats",
		MaxMessageSize: 1048576,
	}

	// JetStreamCapabilities covers durable pull consumers. Redeliveries are
	// unlimited on the broker; the consumer dead-letters by receive count.
	JetStreamCapabilities = Capabilities{
		Name:             "jetstream",
		SupportsOrdering: true,
		SupportsAck:      true,
		SupportsNack:     true,
		MaxMessageSize:   1048576,
	}

	// HTTPCapabilities covers webhook-style trigger sources. Delivery is
	// acknowledged through the HTTP response; nothing is redelivered, so
	// transient failures are dead-lettered.
	HTTPCapabilities = Capabilities{
		Name:        "http",
		SupportsAck: true,
	}
)

// GetCapabilities returns the capabilities registered for name.
func GetCapabilities(name string) Capabilities {
	return DefaultRegistry.GetCapabilities(name)
}
