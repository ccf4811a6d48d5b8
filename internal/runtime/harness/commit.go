package harness

import (
	"context"
	"sync"
)

type commitKey struct{}

// commitGate decides, once, whether an item is abandoned at its deadline or
// committed to its side effects.
type commitGate struct {
	mu        sync.Mutex
	committed bool
	abandoned bool
}

func withCommitGate(ctx context.Context) (context.Context, *commitGate) {
	gate := &commitGate{}
	return context.WithValue(ctx, commitKey{}, gate), gate
}

// Commit claims the item for an irreversible step such as publishing its
// outputs. It reports false when the item context is done or the harness has
// already given up on the item; the caller must then skip the step. After a
// successful Commit the harness waits for the handler to return and reports
// its real result, even past the item deadline.
//
// Outside a harness Commit only checks ctx.
func Commit(ctx context.Context) bool {
	gate, ok := ctx.Value(commitKey{}).(*commitGate)
	if !ok {
		return ctx.Err() == nil
	}
	gate.mu.Lock()
	defer gate.mu.Unlock()
	if gate.abandoned || ctx.Err() != nil {
		return false
	}
	gate.committed = true
	return true
}

// abandon gives up on the item unless it has committed.
func (g *commitGate) abandon() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.committed {
		return false
	}
	g.abandoned = true
	return true
}

func (g *commitGate) isCommitted() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.committed
}
