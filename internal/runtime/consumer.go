package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/harness"
	"github.com/drblury/docflow/internal/runtime/headers"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
)

// Dead-letter reasons, used as the metrics label.
const (
	reasonFatal           = "fatal"
	reasonReceiveExceeded = "max_receive_count"
	reasonNoRedelivery    = "no_redelivery"
)

// consumer feeds one middleware from its input queue.
type consumer struct {
	svc     *Service
	rm      *registeredMiddleware
	harness *harness.Harness
	tracker *deliveryTracker
	log     loggingpkg.ServiceLogger

	pending sync.WaitGroup
}

func (s *Service) newConsumer(rm *registeredMiddleware) *consumer {
	log := s.Logger.With(loggingpkg.LogFields{
		loggingpkg.FieldMiddleware: rm.Name,
		loggingpkg.FieldTopic:      rm.InputQueue,
	})
	return &consumer{
		svc: s,
		rm:  rm,
		harness: harness.New(
			harness.WithMaxConcurrency(s.Conf.MaxConcurrency),
			harness.WithItemTimeout(s.Conf.InvocationTimeout),
			harness.WithLogger(log),
			harness.WithObserver(s.observe(rm)),
		),
		tracker: newDeliveryTracker(),
		log:     log,
	}
}

// run consumes until ctx is done or the subscription closes. Delayed nacks
// still pending are flushed before it returns.
func (c *consumer) run(ctx context.Context) error {
	messages, err := c.svc.subscriber.Subscribe(ctx, c.rm.InputQueue)
	if err != nil {
		return fmt.Errorf("subscribe %s for %s: %w", c.rm.InputQueue, c.rm.Name, err)
	}
	defer c.pending.Wait()

	c.log.Info("Consumer started", loggingpkg.LogFields{
		"batch_size":   c.svc.Conf.BatchSize,
		"batch_window": c.svc.Conf.BatchWindow.String(),
	})
	for {
		batch, open := c.collect(ctx, messages)
		if ctx.Err() != nil {
			for _, msg := range batch {
				msg.Nack()
			}
			return nil
		}
		if len(batch) > 0 {
			c.process(ctx, batch)
		}
		if !open {
			c.log.Info("Subscription closed", nil)
			return nil
		}
	}
}

// collect blocks for a first message, then gathers more until the batch is
// full or the batch window elapses. The bool is false once messages is
// closed or ctx is done.
func (c *consumer) collect(ctx context.Context, messages <-chan *message.Message) ([]*message.Message, bool) {
	var batch []*message.Message
	select {
	case <-ctx.Done():
		return nil, false
	case msg, ok := <-messages:
		if !ok {
			return nil, false
		}
		batch = append(batch, msg)
	}

	window := time.NewTimer(c.svc.Conf.BatchWindow)
	defer window.Stop()
	for len(batch) < c.svc.Conf.BatchSize {
		select {
		case <-ctx.Done():
			return batch, false
		case msg, ok := <-messages:
			if !ok {
				return batch, false
			}
			batch = append(batch, msg)
		case <-window.C:
			return batch, true
		}
	}
	return batch, true
}

// process runs a batch through the harness and settles every message. The
// batch is bounded by the visibility timeout.
func (c *consumer) process(ctx context.Context, msgs []*message.Message) {
	batchCtx, cancel := context.WithTimeout(ctx, c.svc.Conf.VisibilityTimeout)
	defer cancel()

	items := make([]harness.Item, len(msgs))
	for i, msg := range msgs {
		items[i] = harness.Item{ID: msg.UUID, Body: msg.Payload}
	}
	result := c.harness.ProcessBatch(batchCtx, items, c.svc.itemHandler(c.rm))

	c.rm.stats.batchProcessed()
	c.svc.metrics.observeBatch(c.rm.Name, len(msgs))
	for _, res := range result.Items {
		c.settle(ctx, msgs[res.Index], res)
	}
}

func (c *consumer) settle(ctx context.Context, msg *message.Message, res harness.ItemResult) {
	receiveCount := c.tracker.observe(msg)

	switch res.Outcome {
	case harness.Success, harness.Skipped:
		c.tracker.forget(msg.UUID)
		msg.Ack()
	case harness.FatalFailure:
		c.deadLetter(ctx, msg, res.Err, reasonFatal, receiveCount)
	case harness.TransientFailure:
		caps := c.svc.caps
		limit := c.svc.Conf.MaxReceiveCount
		switch {
		case !caps.SupportsReliableDelivery():
			// A nack would drop the item.
			c.deadLetter(ctx, msg, res.Err, reasonNoRedelivery, receiveCount)
		case !caps.SupportsNativeDLQ && limit > 0 && receiveCount >= limit:
			// Substrates with a native dead-letter queue count receives
			// themselves.
			c.deadLetter(ctx, msg, res.Err, reasonReceiveExceeded, receiveCount)
		default:
			c.redeliver(ctx, msg, res.Err)
		}
	}
}

// deadLetter moves msg to the dead-letter queue and acks it. If the copy
// cannot be published msg is left for redelivery so it is not lost.
func (c *consumer) deadLetter(ctx context.Context, msg *message.Message, cause error, reason string, receiveCount int) {
	if !c.publishDeadLetter(ctx, msg, cause, reason, receiveCount) {
		c.redeliver(ctx, msg, nil)
		return
	}
	c.tracker.forget(msg.UUID)
	msg.Ack()
}

// publishDeadLetter publishes a copy of msg carrying the failure headers.
func (c *consumer) publishDeadLetter(ctx context.Context, msg *message.Message, cause error, reason string, receiveCount int) bool {
	errText := reason
	if cause != nil {
		errText = cause.Error()
	}
	h := headers.FromWatermill(msg.Metadata).
		WithAll(headers.New(
			headers.Error, errText,
			headers.OriginalTopic, c.rm.InputQueue,
			headers.Middleware, c.rm.Name,
		)).
		WithTime(headers.FailedAt, time.Now()).
		WithInt(headers.ReceiveCount, receiveCount)

	dead := message.NewMessage(msg.UUID, msg.Payload)
	dead.Metadata = headers.ToWatermill(h)
	dead.SetContext(ctx)

	fields := loggingpkg.LogFields{
		loggingpkg.FieldItemID: msg.UUID,
		"dead_letter_queue":    c.rm.dlqTopic,
		"reason":               reason,
		"receive_count":        receiveCount,
	}
	if err := c.svc.publisher.pub.Publish(c.rm.dlqTopic, dead); err != nil {
		c.log.Error("Dead-letter publish failed, leaving item for redelivery", err, fields)
		return false
	}

	c.rm.stats.deadLettered()
	c.svc.metrics.observeDeadLetter(c.rm.Name, c.rm.dlqTopic, reason, receiveCount)
	c.log.Info("Item dead-lettered", fields)
	return true
}

// redeliver nacks msg after the configured delay, or the delay cause asks
// for. Shutdown nacks at once.
func (c *consumer) redeliver(ctx context.Context, msg *message.Message, cause error) {
	delay := c.svc.Conf.RedeliveryDelay
	if requested, ok := errspkg.RetryDelay(cause); ok {
		delay = requested
	}
	if delay <= 0 {
		msg.Nack()
		return
	}
	c.pending.Go(func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
		}
		msg.Nack()
	})
}

// maxTrackedDeliveries bounds the tracker. Entries of items that were
// picked up by another process are never forgotten, so the map is reset
// when it grows past this.
const maxTrackedDeliveries = 10_000

// deliveryTracker counts deliveries per message UUID. Substrates that hand
// back a copy on redelivery lose header changes, so counts are kept here and
// seeded from the receive-count header of the first delivery seen.
type deliveryTracker struct {
	mu     sync.Mutex
	counts map[string]int
}

func newDeliveryTracker() *deliveryTracker {
	return &deliveryTracker{counts: make(map[string]int)}
}

// observe records a delivery of msg and returns its delivery number,
// starting at 1.
func (t *deliveryTracker) observe(msg *message.Message) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.counts[msg.UUID]
	if !ok {
		prev = headers.FromWatermill(msg.Metadata).Int(headers.ReceiveCount, 0)
		if len(t.counts) >= maxTrackedDeliveries {
			clear(t.counts)
		}
	}
	t.counts[msg.UUID] = prev + 1
	return prev + 1
}

func (t *deliveryTracker) forget(uuid string) {
	t.mu.Lock()
	delete(t.counts, uuid)
	t.mu.Unlock()
}
