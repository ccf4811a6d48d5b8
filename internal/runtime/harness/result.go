package harness

import (
	"fmt"
	"time"

	"github.com/drblury/docflow/internal/runtime/event"
)

// Outcome is the per-item result of a batch.
type Outcome int

const (
	Success Outcome = iota
	Skipped
	TransientFailure
	FatalFailure
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case TransientFailure:
		return "transient_failure"
	case FatalFailure:
		return "fatal_failure"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Acknowledge reports whether the item is removed from the queue. Fatal
// failures are acknowledged too; they are surfaced through DeadLetters.
func (o Outcome) Acknowledge() bool {
	return o != TransientFailure
}

// ItemResult is the outcome of one item.
type ItemResult struct {
	ID       string
	Index    int
	Outcome  Outcome
	Err      error
	Duration time.Duration

	// Event is the parsed input; Parsed is false when the body was invalid.
	Event  event.Event
	Parsed bool
	// Outputs are the events the handler returned, set on Success only.
	Outputs []event.Event
}

// BatchResult holds one ItemResult per input item, in input order.
type BatchResult struct {
	Items []ItemResult
}

// Acknowledged returns the items to remove from the queue.
func (b BatchResult) Acknowledged() []ItemResult {
	return b.filter(func(r ItemResult) bool { return r.Outcome.Acknowledge() })
}

// Unacknowledged returns the items left for substrate redelivery.
func (b BatchResult) Unacknowledged() []ItemResult {
	return b.filter(func(r ItemResult) bool { return !r.Outcome.Acknowledge() })
}

// DeadLetters returns the fatal failures.
func (b BatchResult) DeadLetters() []ItemResult {
	return b.filter(func(r ItemResult) bool { return r.Outcome == FatalFailure })
}

// ItemFailures is the partial batch failure report: the IDs of the items the
// substrate must redeliver.
func (b BatchResult) ItemFailures() []string {
	failed := b.Unacknowledged()
	ids := make([]string, len(failed))
	for i, r := range failed {
		ids[i] = r.ID
	}
	return ids
}

// Count returns how many items ended with outcome.
func (b BatchResult) Count(outcome Outcome) int {
	n := 0
	for _, r := range b.Items {
		if r.Outcome == outcome {
			n++
		}
	}
	return n
}

func (b BatchResult) filter(keep func(ItemResult) bool) []ItemResult {
	var out []ItemResult
	for _, r := range b.Items {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}
