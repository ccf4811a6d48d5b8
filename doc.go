// Package docflow runs document-processing pipelines on top of Watermill.
//
// A pipeline is a set of middlewares chained through topics. Each
// middleware consumes document events from its input queue, checks a
// condition against the event, runs a compute unit and publishes the
// unit's events on its output topic. Every event of a pipeline run shares
// the chain id of the event that started it; sequence numbers increase by
// one per step.
//
// Large values never travel inside events. Documents and settings above
// the offload threshold are written to a pointer store (memory, SQLite,
// PostgreSQL, NATS object store or S3) and referenced by cache:// pointers.
// References are resolved lazily, only when a unit reads them.
//
// # Substrates
//
// The delivery substrate is read from Config:
//   - channel: in-memory Go channels for tests and single-process runs
//   - kafka: consumer groups on Kafka
//   - rabbitmq: durable AMQP queues, nacked messages requeued
//   - aws: SNS fan-out into SQS queues
//   - nats: NATS core subjects
//   - jetstream: durable NATS JetStream pull consumers
//   - http: webhook triggers
//
// # Failures
//
// Failed items are classified. Transient failures are redelivered after a
// delay and dead-lettered once they reach MaxReceiveCount deliveries. Fatal
// failures, including malformed envelopes, are dead-lettered at once, and so
// are transient failures on substrates that cannot redeliver (nats, http). Wrap
// errors with Transient, Fatal or RetryAfter to choose explicitly; anything
// else is retried.
//
// # Observability
//
// Metrics are exported on /metrics, middleware statistics on
// /api/middlewares and every item runs in an OpenTelemetry span. ItemHooks
// expose item start and completion for custom instrumentation.
package docflow
