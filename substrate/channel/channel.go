// Package channel provides the in-memory Watermill gochannel substrate, for
// tests and single-process pipelines. Nacked messages are redelivered
// immediately.
package channel

import (
	"context"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/drblury/docflow/substrate"
)

// Name is the registered substrate name.
const Name = "channel"

// OutputBuffer is the per-subscriber channel buffer.
const OutputBuffer = 64

// Factory allows overriding the gochannel creation for testing.
var Factory = func(cfg gochannel.Config, logger watermill.LoggerAdapter) (message.Publisher, message.Subscriber) {
	pubSub := gochannel.NewGoChannel(cfg, logger)
	return pubSub, pubSub
}

// Register adds the gochannel substrate to the default registry.
func Register() {
	substrate.Register(Name, Build, substrate.ChannelCapabilities)
}

// Build creates a gochannel substrate. Published messages are kept for
// subscribers that join later, so a pipeline can start consumers after its
// first publish.
func Build(ctx context.Context, cfg substrate.Config, logger watermill.LoggerAdapter) (substrate.Substrate, error) {
	pub, sub := Factory(gochannel.Config{
		OutputChannelBuffer: OutputBuffer,
		Persistent:          true,
	}, logger)
	return substrate.Substrate{
		Publisher:    pub,
		Subscriber:   sub,
		Capabilities: substrate.ChannelCapabilities,
	}, nil
}

// New builds a standalone gochannel substrate without going through the
// registry.
func New(logger watermill.LoggerAdapter) substrate.Substrate {
	sub, _ := Build(context.Background(), nil, logger)
	return sub
}
