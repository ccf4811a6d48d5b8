/*
Package runtime runs document-processing middlewares on a delivery substrate.

# Architecture Overview

A middleware consumes document events from its input queue, decides with a
condition whether an event concerns it, runs a compute unit and publishes
the unit's events on its output topic. Middlewares never call each other;
they are chained through topics, and every event of a chain shares the
chain id of the first one.

# Package Structure

## Service (service.go)

The Service wires together:
  - the substrate publisher and subscriber (built from the substrate registry)
  - the pointer store and the reference resolver bound to it
  - Prometheus collectors and the OpenTelemetry tracer
  - HTTP servers for the admin API and metrics

## Middleware (middleware.go, unit.go)

A Middleware names its queues, the input mime types it supports, an
optional condition and the ComputeUnit to run. Units receive an Invocation
carrying the event, the resolver, the store and a scoped logger. Next turns
a function returning a single event into a unit emitting it as the next
step of the chain. Units implementing Bindable receive long-lived
resources at registration.

## Item execution (item.go, execution.go)

Each item walks the states

	received -> evaluating -> skipped
	                       -> executing -> publishing -> acked
	(any non-terminal state) -> failed

An execution value enforces the order. Before publishing, an item commits
with the harness. An item that reaches its deadline before committing never
publishes; a committed item is awaited and reports the outcome its publish
actually had.

## Consumer (consumer.go)

A consumer collects up to BatchSize messages or waits BatchWindow, bounds
the batch by the visibility timeout and hands it to the harness. Results
are settled per item:
  - success and skipped items are acked
  - fatal items are dead-lettered, then acked
  - transient items are nacked after RedeliveryDelay, and dead-lettered once
    they reach MaxReceiveCount deliveries (unless the substrate provisions
    its own dead-letter queue)
  - transient items on substrates that do not redeliver nacked messages are
    dead-lettered at once

A dead letter that cannot be published leaves the item for redelivery.

## Observability (metrics.go, stats.go, hooks.go, admin.go)

Metrics are registered on the service's Prometheus registry. Per-middleware
stats (outcome counters, latency percentiles, throughput) are served on
/api/middlewares. ItemHooks expose item start and completion for custom
instrumentation.

# Usage Example

	svc, err := runtime.NewService(ctx, conf, logger, runtime.ServiceDependencies{})
	if err != nil {
		return err
	}
	defer svc.Close()

	err = svc.Register(ctx, runtime.Middleware{
		Name:                "text-uppercase",
		InputQueue:          "documents",
		OutputTopic:         "documents-uppercased",
		SupportedInputTypes: []string{"text/plain"},
		Condition:           condition.Type("document-created"),
		Unit: runtime.Next(func(ctx context.Context, inv runtime.Invocation) (event.Event, error) {
			text, err := inv.Document(ctx)
			if err != nil {
				return event.Event{}, err
			}
			doc, err := inv.StoreDocument(ctx, "text/plain", bytes.ToUpper(text))
			if err != nil {
				return event.Event{}, err
			}
			return event.Event{Document: doc}, nil
		}),
	})
	if err != nil {
		return err
	}
	return svc.Start(ctx)
*/
package runtime
