// Package harness processes delivery batches with per-item failure
// isolation. Every item is parsed, handled and classified on its own; the
// BatchResult tells the substrate which items to acknowledge, which to leave
// for redelivery and which to dead-letter.
package harness

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/event"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
)

const (
	DefaultMaxConcurrency = 5
	DefaultItemTimeout    = 2 * time.Minute
)

// ErrSkipped is returned by a Handler whose condition did not hold. The item
// is acknowledged and nothing is published.
var ErrSkipped = errors.New("docflow: condition not met")

// Item is one raw delivery.
type Item struct {
	ID   string
	Body []byte
}

// Handler runs the middleware for one parsed event.
type Handler func(ctx context.Context, evt event.Event) ([]event.Event, error)

// Harness runs batches through a Handler. The zero value is not usable; use
// New.
type Harness struct {
	maxConcurrency int
	itemTimeout    time.Duration
	logger         loggingpkg.ServiceLogger
	observers      []func(ItemResult)
}

// Option configures a Harness.
type Option func(*Harness)

// WithMaxConcurrency bounds how many items of a batch run at once.
func WithMaxConcurrency(n int) Option {
	return func(h *Harness) {
		if n > 0 {
			h.maxConcurrency = n
		}
	}
}

// WithItemTimeout bounds each handler invocation. Zero disables the timeout.
func WithItemTimeout(d time.Duration) Option {
	return func(h *Harness) {
		if d >= 0 {
			h.itemTimeout = d
		}
	}
}

// WithLogger sets the logger used for item outcomes.
func WithLogger(log loggingpkg.ServiceLogger) Option {
	return func(h *Harness) {
		if log != nil {
			h.logger = log
		}
	}
}

// WithObserver registers fn to be called with every item result.
func WithObserver(fn func(ItemResult)) Option {
	return func(h *Harness) {
		if fn != nil {
			h.observers = append(h.observers, fn)
		}
	}
}

// New builds a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		maxConcurrency: DefaultMaxConcurrency,
		itemTimeout:    DefaultItemTimeout,
		logger:         loggingpkg.Discard(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ProcessBatch handles every item and returns one result per item, in input
// order. A failing item never affects the outcome of another.
func (h *Harness) ProcessBatch(ctx context.Context, items []Item, handler Handler) BatchResult {
	results := make([]ItemResult, len(items))

	var g errgroup.Group
	g.SetLimit(h.maxConcurrency)
	for i, item := range items {
		g.Go(func() error {
			results[i] = h.processItem(ctx, i, item, handler)
			return nil
		})
	}
	_ = g.Wait()

	return BatchResult{Items: results}
}

// ProcessRaw is ProcessBatch for bare bodies. Item IDs are the positions in
// bodies.
func (h *Harness) ProcessRaw(ctx context.Context, bodies [][]byte, handler Handler) BatchResult {
	items := make([]Item, len(bodies))
	for i, body := range bodies {
		items[i] = Item{ID: strconv.Itoa(i), Body: body}
	}
	return h.ProcessBatch(ctx, items, handler)
}

func (h *Harness) processItem(ctx context.Context, index int, item Item, handler Handler) ItemResult {
	start := time.Now()
	res := ItemResult{ID: item.ID, Index: index}

	evt, err := event.Parse(item.Body)
	if err != nil {
		res.Outcome = FatalFailure
		res.Err = err
		return h.finish(res, start)
	}
	res.Event = evt
	res.Parsed = true

	itemCtx := ctx
	if h.itemTimeout > 0 {
		var cancel context.CancelFunc
		itemCtx, cancel = context.WithTimeout(ctx, h.itemTimeout)
		defer cancel()
	}

	inv := invoke(itemCtx, evt, handler)
	res.Outcome, res.Err = classify(itemCtx, inv)
	if res.Outcome == Success {
		res.Outputs = inv.outputs
	}
	return h.finish(res, start)
}

type invocation struct {
	outputs   []event.Event
	err       error
	committed bool
}

// invoke runs handler on its own goroutine so a handler that ignores its
// context cannot hold the item past the deadline. Late results are dropped,
// unless the handler committed before the deadline: then its real result is
// awaited.
func invoke(ctx context.Context, evt event.Event, handler Handler) invocation {
	ctx, gate := withCommitGate(ctx)
	done := make(chan invocation, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- invocation{err: errspkg.Fatal(fmt.Errorf("handler panic: %v\n%s", r, debug.Stack()))}
			}
		}()
		outputs, err := handler(ctx, evt)
		done <- invocation{outputs: outputs, err: err}
	}()

	select {
	case result := <-done:
		result.committed = gate.isCommitted()
		return result
	case <-ctx.Done():
		if gate.abandon() {
			return invocation{err: errspkg.Transient(fmt.Errorf("item abandoned: %w", context.Cause(ctx)))}
		}
		result := <-done
		result.committed = true
		return result
	}
}

func classify(ctx context.Context, inv invocation) (Outcome, error) {
	err := inv.err
	switch {
	case err == nil && ctx.Err() != nil && !inv.committed:
		// Finished, but too late for its outputs to be trusted.
		return TransientFailure, errspkg.Transient(fmt.Errorf("item abandoned: %w", context.Cause(ctx)))
	case err == nil:
		return Success, nil
	case errors.Is(err, ErrSkipped):
		return Skipped, nil
	}
	if errspkg.Classify(err) == errspkg.ClassFatal {
		return FatalFailure, err
	}
	return TransientFailure, err
}

func (h *Harness) finish(res ItemResult, start time.Time) ItemResult {
	res.Duration = time.Since(start)

	fields := loggingpkg.LogFields{
		loggingpkg.FieldItemID:  res.ID,
		loggingpkg.FieldOutcome: res.Outcome.String(),
		"duration_ms":           res.Duration.Milliseconds(),
	}
	if res.Parsed {
		fields[loggingpkg.FieldEventID] = res.Event.ID.String()
		fields[loggingpkg.FieldChainID] = res.Event.ChainID.String()
		fields[loggingpkg.FieldSequence] = res.Event.Sequence
	}
	switch res.Outcome {
	case FatalFailure, TransientFailure:
		h.logger.Error("Item failed", res.Err, fields)
	default:
		h.logger.Debug("Item processed", fields)
	}

	for _, observe := range h.observers {
		observe(res)
	}
	return res
}
