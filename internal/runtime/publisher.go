package runtime

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/event"
	"github.com/drblury/docflow/internal/runtime/headers"
	"github.com/drblury/docflow/substrate"
)

// Publisher emits events on a substrate, enforcing its size limit.
type Publisher struct {
	pub  message.Publisher
	caps substrate.Capabilities
}

// NewPublisher wraps a Watermill publisher. caps.MaxMessageSize bounds the
// encoded event size; zero means unbounded.
func NewPublisher(pub message.Publisher, caps substrate.Capabilities) *Publisher {
	return &Publisher{pub: pub, caps: caps}
}

// Capabilities returns the capabilities of the underlying substrate.
func (p *Publisher) Capabilities() substrate.Capabilities { return p.caps }

// NewMessage encodes evt into a Watermill message carrying the standard
// headers. The message UUID is the event id.
func NewMessage(evt event.Event) (*message.Message, error) {
	payload, err := event.Serialize(evt)
	if err != nil {
		return nil, err
	}
	msg := message.NewMessage(evt.ID.String(), payload)
	msg.Metadata = headers.ToWatermill(headers.New(
		headers.EventID, evt.ID.String(),
		headers.EventType, evt.Type.String(),
		headers.ChainID, evt.ChainID.String(),
		headers.Sequence, strconv.FormatInt(evt.Sequence, 10),
	))
	return msg, nil
}

// Publish sends events to topic as one substrate call. Invalid or oversized
// events fail the whole call with a fatal error before anything is sent;
// substrate failures are transient.
func (p *Publisher) Publish(ctx context.Context, topic string, events ...event.Event) error {
	if p == nil || p.pub == nil {
		return errspkg.ErrPublisherRequired
	}
	if topic == "" {
		return errspkg.ErrTopicRequired
	}
	if len(events) == 0 {
		return nil
	}

	msgs := make([]*message.Message, 0, len(events))
	for _, evt := range events {
		msg, err := NewMessage(evt)
		if err != nil {
			return errspkg.Fatal(fmt.Errorf("encode event %s: %w", evt.ID, err))
		}
		if err := substrate.CheckSize(p.caps, len(msg.Payload)); err != nil {
			return errspkg.Fatal(fmt.Errorf("event %s: %w (offload large values to the pointer store)", evt.ID, err))
		}
		if ctx != nil {
			msg.SetContext(ctx)
		}
		msgs = append(msgs, msg)
	}

	if ctx != nil {
		if err := ctx.Err(); err != nil {
			return errspkg.Transient(fmt.Errorf("publish to %s: %w", topic, context.Cause(ctx)))
		}
	}
	if err := p.pub.Publish(topic, msgs...); err != nil {
		return errspkg.Transient(fmt.Errorf("publish to %s: %w", topic, err))
	}
	return nil
}
