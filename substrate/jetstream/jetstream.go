// Package jetstream provides a NATS JetStream substrate with durable pull
// consumers and explicit acknowledgement.
package jetstream

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/nats-io/nats.go"

	"github.com/drblury/docflow/internal/runtime/headers"
	"github.com/drblury/docflow/substrate"
)

// Name is the registered substrate name.
const Name = "jetstream"

const (
	DefaultStreamName = "DOCFLOW"
	DefaultAckWait    = 30 * time.Second
	DefaultFetchBatch = 10
)

// Connect opens the NATS connection. Tests replace it.
var Connect = func(url string) (*nats.Conn, error) {
	return nats.Connect(url)
}

// Register adds the JetStream substrate to the default registry.
func Register() {
	substrate.Register(Name, Build, substrate.JetStreamCapabilities)
}

// Build connects to cfg's NATS URL and ensures the stream exists.
func Build(ctx context.Context, cfg substrate.Config, logger watermill.LoggerAdapter) (substrate.Substrate, error) {
	s, err := New(Config{URL: cfg.GetNATSURL()}, logger)
	if err != nil {
		return substrate.Substrate{}, err
	}
	return substrate.Substrate{
		Publisher:    s,
		Subscriber:   s,
		Capabilities: substrate.JetStreamCapabilities,
	}, nil
}

// Config holds the JetStream settings.
type Config struct {
	URL        string
	StreamName string
	// MaxDeliver caps redeliveries on the broker. Zero leaves them
	// unlimited so the consumer's receive count decides when to
	// dead-letter.
	MaxDeliver int
	AckWait    time.Duration
	Replicas   int
	FetchBatch int
}

func (c Config) withDefaults() Config {
	if c.StreamName == "" {
		c.StreamName = DefaultStreamName
	}
	if c.MaxDeliver <= 0 {
		c.MaxDeliver = -1
	}
	if c.AckWait <= 0 {
		c.AckWait = DefaultAckWait
	}
	if c.Replicas <= 0 {
		c.Replicas = 1
	}
	if c.FetchBatch <= 0 {
		c.FetchBatch = DefaultFetchBatch
	}
	return c
}

// Substrate publishes to and pulls from one JetStream stream. Topics map
// to subjects under the stream name.
type Substrate struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	config Config
	logger watermill.LoggerAdapter

	subsMu sync.Mutex
	subs   []*nats.Subscription

	closeOnce sync.Once
	closing   chan struct{}
}

// New connects and creates or updates the stream.
func New(cfg Config, logger watermill.LoggerAdapter) (*Substrate, error) {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = watermill.NopLogger{}
	}
	if cfg.URL == "" {
		return nil, errors.New("jetstream: NATS URL is required")
	}

	nc, err := Connect(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("jetstream: connect: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream: context: %w", err)
	}

	s := &Substrate{nc: nc, js: js, config: cfg, logger: logger, closing: make(chan struct{})}
	if err := s.ensureStream(); err != nil {
		nc.Close()
		return nil, err
	}
	return s, nil
}

func (s *Substrate) ensureStream() error {
	streamCfg := &nats.StreamConfig{
		Name:      s.config.StreamName,
		Subjects:  []string{s.config.StreamName + ".>"},
		Retention: nats.WorkQueuePolicy,
		MaxAge:    7 * 24 * time.Hour,
		Replicas:  s.config.Replicas,
	}
	if _, err := s.js.AddStream(streamCfg); err != nil {
		if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return fmt.Errorf("jetstream: add stream %s: %w", s.config.StreamName, err)
		}
		if _, err := s.js.UpdateStream(streamCfg); err != nil {
			return fmt.Errorf("jetstream: update stream %s: %w", s.config.StreamName, err)
		}
	}
	return nil
}

// Publish implements message.Publisher. The message UUID becomes the
// Nats-Msg-Id so duplicates within the stream's window are dropped.
func (s *Substrate) Publish(topic string, messages ...*message.Message) error {
	if s.isClosed() {
		return errors.New("jetstream: substrate is closed")
	}
	subject := s.subject(topic)
	for _, msg := range messages {
		natsMsg := nats.NewMsg(subject)
		natsMsg.Data = msg.Payload
		for k, v := range msg.Metadata {
			natsMsg.Header.Set(k, v)
		}
		if _, err := s.js.PublishMsg(natsMsg, nats.MsgId(msg.UUID), nats.Context(msg.Context())); err != nil {
			return fmt.Errorf("jetstream: publish to %s: %w", subject, err)
		}
	}
	return nil
}

// Subscribe implements message.Subscriber with a durable pull consumer per
// topic. The output channel closes when ctx is done or the substrate
// closes.
func (s *Substrate) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	if s.isClosed() {
		return nil, errors.New("jetstream: substrate is closed")
	}
	subject := s.subject(topic)
	durable := consumerName(topic)

	sub, err := s.js.PullSubscribe(subject, durable,
		nats.BindStream(s.config.StreamName),
		nats.AckExplicit(),
		nats.AckWait(s.config.AckWait),
		nats.MaxDeliver(s.config.MaxDeliver),
		nats.DeliverAll(),
	)
	if err != nil {
		return nil, fmt.Errorf("jetstream: subscribe %s: %w", subject, err)
	}
	s.subsMu.Lock()
	s.subs = append(s.subs, sub)
	s.subsMu.Unlock()

	out := make(chan *message.Message)
	go s.pull(ctx, sub, out, topic)
	return out, nil
}

func (s *Substrate) pull(ctx context.Context, sub *nats.Subscription, out chan<- *message.Message, topic string) {
	defer close(out)
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			return
		default:
		}

		batch, err := sub.Fetch(s.config.FetchBatch, nats.MaxWait(time.Second))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if s.isClosed() || errors.Is(err, nats.ErrConnectionClosed) || errors.Is(err, nats.ErrBadSubscription) {
				return
			}
			s.logger.Error("JetStream fetch failed", err, watermill.LogFields{"topic": topic})
			continue
		}
		for _, natsMsg := range batch {
			msg := toMessage(natsMsg)
			select {
			case out <- msg:
			case <-ctx.Done():
				_ = natsMsg.Nak()
				return
			}
			go s.settle(ctx, natsMsg, msg)
		}
	}
}

// settle forwards the consumer's ack or nack to the broker. An item that
// is neither settled before shutdown is redelivered after AckWait.
func (s *Substrate) settle(ctx context.Context, natsMsg *nats.Msg, msg *message.Message) {
	var err error
	select {
	case <-msg.Acked():
		err = natsMsg.Ack()
	case <-msg.Nacked():
		err = natsMsg.Nak()
	case <-ctx.Done():
		return
	case <-s.closing:
		return
	}
	if err != nil {
		s.logger.Error("JetStream settle failed", err, watermill.LogFields{"uuid": msg.UUID})
	}
}

// toMessage converts a fetched message. The UUID is the event id header,
// and the broker's delivery count seeds the receive count.
func toMessage(natsMsg *nats.Msg) *message.Message {
	uuid := natsMsg.Header.Get(headers.EventID)
	if uuid == "" {
		uuid = natsMsg.Header.Get(nats.MsgIdHdr)
	}
	if uuid == "" {
		uuid = watermill.NewUUID()
	}

	msg := message.NewMessage(uuid, natsMsg.Data)
	for k, v := range natsMsg.Header {
		if len(v) > 0 && k != nats.MsgIdHdr {
			msg.Metadata.Set(k, v[0])
		}
	}
	if meta, err := natsMsg.Metadata(); err == nil && meta.NumDelivered > 1 {
		msg.Metadata.Set(headers.ReceiveCount, strconv.FormatUint(meta.NumDelivered-1, 10))
	}
	return msg
}

func (s *Substrate) subject(topic string) string {
	return s.config.StreamName + "." + topic
}

// consumerName derives a durable name; JetStream rejects dots and
// wildcards in it.
func consumerName(topic string) string {
	return "docflow_" + strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_").Replace(topic)
}

func (s *Substrate) isClosed() bool {
	select {
	case <-s.closing:
		return true
	default:
		return false
	}
}

// Close unsubscribes every consumer and drains the connection.
func (s *Substrate) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closing)
		s.subsMu.Lock()
		for _, sub := range s.subs {
			_ = sub.Unsubscribe()
		}
		s.subs = nil
		s.subsMu.Unlock()
		err = s.nc.Drain()
	})
	return err
}
