package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/require"

	configpkg "github.com/drblury/docflow/internal/runtime/config"
	"github.com/drblury/docflow/internal/runtime/event"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
	"github.com/drblury/docflow/internal/runtime/reference"
	"github.com/drblury/docflow/substrate"
	"github.com/drblury/docflow/substrate/channel"
	"github.com/drblury/docflow/substrate/substratetest"
)

func newTestConfig() *configpkg.Config {
	return &configpkg.Config{
		Substrate:         "channel",
		BatchSize:         4,
		BatchWindow:       10 * time.Millisecond,
		InvocationTimeout: time.Second,
		MaxReceiveCount:   2,
		RedeliveryDelay:   5 * time.Millisecond,
	}
}

func newTestService(t *testing.T, conf *configpkg.Config, deps ServiceDependencies) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), conf, loggingpkg.Discard(), deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// fakeSubstrate returns a factory handing out recording fakes.
func fakeSubstrate(caps substrate.Capabilities) (*substratetest.Publisher, substrate.Factory) {
	pub := &substratetest.Publisher{}
	factory := substrate.FactoryFunc(func(context.Context, substrate.Config, watermill.LoggerAdapter) (substrate.Substrate, error) {
		return substrate.Substrate{Publisher: pub, Subscriber: &substratetest.Subscriber{}, Capabilities: caps}, nil
	})
	return pub, factory
}

// channelSubstrate returns a factory for an in-memory substrate reporting
// caps, so delivery policy can be exercised per broker.
func channelSubstrate(caps substrate.Capabilities) substrate.Factory {
	return substrate.FactoryFunc(func(_ context.Context, _ substrate.Config, logger watermill.LoggerAdapter) (substrate.Substrate, error) {
		sub := channel.New(logger)
		sub.Capabilities = caps
		return sub, nil
	})
}

// startService runs svc until the test ends.
func startService(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Start(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Start returned %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("service did not stop")
		}
	})
}

func subscribe(t *testing.T, svc *Service, topic string) <-chan *message.Message {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	ch, err := svc.subscriber.Subscribe(ctx, topic)
	require.NoError(t, err)
	return ch
}

func receive(t *testing.T, ch <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a message")
		return nil
	}
}

func assertNoMessage(t *testing.T, ch <-chan *message.Message, wait time.Duration) {
	t.Helper()
	select {
	case msg := <-ch:
		msg.Ack()
		t.Fatalf("unexpected message %s: %s", msg.UUID, msg.Payload)
	case <-time.After(wait):
	}
}

func textEvent(text, mime string) event.Event {
	return event.New(event.DocumentCreated, event.Document{
		URL:  reference.EncodeDataURI(mime, []byte(text)),
		Type: mime,
		Size: int64(len(text)),
	})
}

func mustMessage(t *testing.T, evt event.Event) *message.Message {
	t.Helper()
	msg, err := NewMessage(evt)
	require.NoError(t, err)
	return msg
}
