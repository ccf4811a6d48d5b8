package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/drblury/docflow/internal/runtime/condition"
	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/event"
	"github.com/drblury/docflow/internal/runtime/harness"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
	"github.com/drblury/docflow/internal/runtime/reference"
)

// registeredMiddleware is a validated middleware plus its runtime state.
type registeredMiddleware struct {
	Middleware

	gate     condition.Expr
	settings map[string]reference.Reference
	dlqTopic string
	hooks    ItemHooks
	stats    *statsRecorder
}

func (rm *registeredMiddleware) info() MiddlewareInfo {
	cond := "always"
	if rm.gate != nil {
		cond = rm.gate.String()
	}
	return MiddlewareInfo{
		Name:                rm.Name,
		Description:         rm.Description,
		Version:             rm.Version,
		InputQueue:          rm.InputQueue,
		OutputTopic:         rm.OutputTopic,
		DeadLetterQueue:     rm.dlqTopic,
		SupportedInputTypes: rm.SupportedInputTypes,
		Condition:           cond,
		Stats:               rm.stats.snapshot(),
	}
}

func (rm *registeredMiddleware) itemContext(evt event.Event, started time.Time) ItemContext {
	return ItemContext{
		Middleware: rm.Name,
		Topic:      rm.InputQueue,
		EventID:    evt.ID.String(),
		ChainID:    evt.ChainID.String(),
		Sequence:   evt.Sequence,
		StartedAt:  started,
	}
}

// itemHandler runs one parsed event through rm inside a span.
func (s *Service) itemHandler(rm *registeredMiddleware) harness.Handler {
	return func(ctx context.Context, evt event.Event) ([]event.Event, error) {
		ctx, span := s.tracer.Start(ctx, "docflow.item "+rm.Name,
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(
				attribute.String("docflow.middleware", rm.Name),
				attribute.String("docflow.event_id", evt.ID.String()),
				attribute.String("docflow.chain_id", evt.ChainID.String()),
				attribute.Int64("docflow.sequence", evt.Sequence),
				attribute.String("docflow.document_type", evt.Document.Type),
			),
		)
		defer span.End()

		rm.stats.itemStarted()
		rm.hooks.start(rm.itemContext(evt, time.Now()))

		exec := newExecution()
		outputs, err := s.execute(ctx, rm, evt, exec)
		span.SetAttributes(attribute.String("docflow.state", exec.State().String()))
		if err != nil && !errors.Is(err, harness.ErrSkipped) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return outputs, err
	}
}

// execute walks exec through the item states. Outputs are published before
// the item is considered acked.
func (s *Service) execute(ctx context.Context, rm *registeredMiddleware, evt event.Event, exec *execution) ([]event.Event, error) {
	fail := func(err error) ([]event.Event, error) {
		exec.fail()
		return nil, err
	}

	if err := exec.advance(StateEvaluating); err != nil {
		return fail(errspkg.Fatal(err))
	}
	ok, err := condition.Check(rm.gate, evt)
	if err != nil {
		return fail(err)
	}
	if !ok {
		if err := exec.advance(StateSkipped); err != nil {
			return fail(errspkg.Fatal(err))
		}
		return nil, harness.ErrSkipped
	}

	if err := exec.advance(StateExecuting); err != nil {
		return fail(errspkg.Fatal(err))
	}
	log := s.Logger.With(loggingpkg.ItemFields(rm.Name, "", evt.ID.String(), evt.ChainID.String()))
	outputs, err := rm.Unit.Process(ctx, Invocation{
		Event:      evt,
		Middleware: rm.Name,
		Resolver:   s.resolver,
		Store:      s.store,
		Logger:     log,
		settings:   rm.settings,
	})
	if err != nil {
		return fail(err)
	}

	if err := exec.advance(StatePublishing); err != nil {
		return fail(errspkg.Fatal(err))
	}
	for i, out := range outputs {
		if err := out.Validate(); err != nil {
			return fail(errspkg.Fatal(fmt.Errorf("output %d of %s: %w", i, rm.Name, err)))
		}
	}
	// Past this point the harness waits for the publish result instead of
	// abandoning the item, so the publish runs to completion.
	if !harness.Commit(ctx) {
		return fail(errspkg.Transient(fmt.Errorf("item deadline reached before publishing: %w", context.Cause(ctx))))
	}
	switch {
	case rm.OutputTopic != "":
		if err := s.publisher.Publish(context.WithoutCancel(ctx), rm.OutputTopic, outputs...); err != nil {
			return fail(err)
		}
	case len(outputs) > 0:
		log.Debug("Sink middleware dropped outputs", loggingpkg.LogFields{"count": len(outputs)})
	}

	if err := exec.advance(StateAcked); err != nil {
		return fail(errspkg.Fatal(err))
	}
	return outputs, nil
}

// observe is the harness observer of rm: stats, metrics and hooks.
func (s *Service) observe(rm *registeredMiddleware) func(harness.ItemResult) {
	return func(res harness.ItemResult) {
		rm.stats.itemFinished(res, res.Parsed)
		s.metrics.observeItem(rm.Name, res.Outcome, res.Duration)
		if !res.Parsed {
			return
		}
		ic := rm.itemContext(res.Event, time.Now().Add(-res.Duration))
		ic.ItemID = res.ID
		ic.Duration = res.Duration
		rm.hooks.finish(ic, res)
	}
}
