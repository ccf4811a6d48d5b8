package runtime

import (
	"time"

	"github.com/drblury/docflow/internal/runtime/harness"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
)

// ItemContext describes one item to hooks.
type ItemContext struct {
	Middleware string
	Topic      string
	ItemID     string
	EventID    string
	ChainID    string
	Sequence   int64
	StartedAt  time.Time
	// Duration is only set for OnItemDone and OnItemError.
	Duration time.Duration
}

// ItemHooks are optional callbacks around item processing. Nil hooks are
// skipped. Hooks run on the item's goroutine and must be safe for
// concurrent use.
type ItemHooks struct {
	// OnItemStart is called once the event is parsed, before the condition
	// is evaluated.
	OnItemStart func(ic ItemContext)
	// OnItemDone is called for acknowledged items: success or skipped.
	OnItemDone func(ic ItemContext, outcome harness.Outcome)
	// OnItemError is called for transient and fatal failures.
	OnItemError func(ic ItemContext, outcome harness.Outcome, err error)
}

// Merge returns hooks calling h first, then other.
func (h ItemHooks) Merge(other ItemHooks) ItemHooks {
	return ItemHooks{
		OnItemStart: chainStartHooks(h.OnItemStart, other.OnItemStart),
		OnItemDone:  chainDoneHooks(h.OnItemDone, other.OnItemDone),
		OnItemError: chainErrorHooks(h.OnItemError, other.OnItemError),
	}
}

func chainStartHooks(a, b func(ItemContext)) func(ItemContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ic ItemContext) {
		a(ic)
		b(ic)
	}
}

func chainDoneHooks(a, b func(ItemContext, harness.Outcome)) func(ItemContext, harness.Outcome) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ic ItemContext, outcome harness.Outcome) {
		a(ic, outcome)
		b(ic, outcome)
	}
}

func chainErrorHooks(a, b func(ItemContext, harness.Outcome, error)) func(ItemContext, harness.Outcome, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ic ItemContext, outcome harness.Outcome, err error) {
		a(ic, outcome, err)
		b(ic, outcome, err)
	}
}

func (h ItemHooks) start(ic ItemContext) {
	if h.OnItemStart != nil {
		h.OnItemStart(ic)
	}
}

func (h ItemHooks) finish(ic ItemContext, res harness.ItemResult) {
	if res.Outcome == harness.Success || res.Outcome == harness.Skipped {
		if h.OnItemDone != nil {
			h.OnItemDone(ic, res.Outcome)
		}
		return
	}
	if h.OnItemError != nil {
		h.OnItemError(ic, res.Outcome, res.Err)
	}
}

// LoggingHooks logs item lifecycle events at debug level, and failures as
// errors.
func LoggingHooks(logger loggingpkg.ServiceLogger) ItemHooks {
	fields := func(ic ItemContext) loggingpkg.LogFields {
		return loggingpkg.ItemFields(ic.Middleware, ic.ItemID, ic.EventID, ic.ChainID)
	}
	return ItemHooks{
		OnItemStart: func(ic ItemContext) {
			logger.Debug("Item started", fields(ic))
		},
		OnItemDone: func(ic ItemContext, outcome harness.Outcome) {
			f := fields(ic)
			f[loggingpkg.FieldOutcome] = outcome.String()
			f["duration_ms"] = ic.Duration.Milliseconds()
			logger.Debug("Item done", f)
		},
		OnItemError: func(ic ItemContext, outcome harness.Outcome, err error) {
			f := fields(ic)
			f[loggingpkg.FieldOutcome] = outcome.String()
			f["duration_ms"] = ic.Duration.Milliseconds()
			logger.Error("Item failed", err, f)
		},
	}
}

// AlertingHooks calls alert for every fatal item.
func AlertingHooks(alert func(ic ItemContext, err error)) ItemHooks {
	return ItemHooks{
		OnItemError: func(ic ItemContext, outcome harness.Outcome, err error) {
			if outcome == harness.FatalFailure {
				alert(ic, err)
			}
		},
	}
}
