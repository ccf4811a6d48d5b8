// Package http provides a webhook-style substrate: events are POSTed to
// <publisher URL><topic> and received on <server address>/<topic>.
package http

import (
	"context"
	nethttp "net/http"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-http/v2/pkg/http"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/drblury/docflow/substrate"
)

// Name is the registered substrate name.
const Name = "http"

// PublisherFactory allows overriding the publisher creation for testing.
var PublisherFactory = func(config http.PublisherConfig, logger watermill.LoggerAdapter) (message.Publisher, error) {
	return http.NewPublisher(config, logger)
}

// SubscriberFactory allows overriding the subscriber creation for testing.
var SubscriberFactory = func(addr string, config http.SubscriberConfig, logger watermill.LoggerAdapter) (message.Subscriber, error) {
	return http.NewSubscriber(addr, config, logger)
}

// Register adds the HTTP substrate to the default registry.
func Register() {
	substrate.Register(Name, Build, substrate.HTTPCapabilities)
}

// Build creates an HTTP substrate. The subscriber's server is started in
// the background once it has been built.
func Build(ctx context.Context, cfg substrate.Config, logger watermill.LoggerAdapter) (substrate.Substrate, error) {
	serverAddr := cfg.GetHTTPServerAddress()
	publisherURL := cfg.GetHTTPPublisherURL()

	publisher, err := PublisherFactory(
		http.PublisherConfig{
			MarshalMessageFunc: func(topic string, msg *message.Message) (*nethttp.Request, error) {
				return http.DefaultMarshalMessageFunc(TopicURL(publisherURL, topic), msg)
			},
		},
		logger,
	)
	if err != nil {
		return substrate.Substrate{}, err
	}

	subscriber, err := SubscriberFactory(
		serverAddr,
		http.SubscriberConfig{
			UnmarshalMessageFunc: http.DefaultUnmarshalMessageFunc,
		},
		logger,
	)
	if err != nil {
		_ = publisher.Close()
		return substrate.Substrate{}, err
	}

	if s, ok := subscriber.(*http.Subscriber); ok && serverAddr != "" {
		go func() {
			if err := s.StartHTTPServer(); err != nil && err != nethttp.ErrServerClosed {
				logger.Error("Failed to start HTTP subscriber server", err, watermill.LogFields{"address": serverAddr})
			}
		}()
	}

	return substrate.Substrate{
		Publisher:    publisher,
		Subscriber:   subscriber,
		Capabilities: substrate.HTTPCapabilities,
	}, nil
}

// TopicURL joins the publisher base URL and a topic with exactly one slash.
func TopicURL(base, topic string) string {
	if base == "" {
		return topic
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(topic, "/")
}
