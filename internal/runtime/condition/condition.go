// Package condition implements the boolean expression trees that gate
// whether a middleware runs for an event. Evaluation is pure and total:
// paths missing from the event never raise, they simply fail the test.
package condition

import (
	"fmt"
	"strings"

	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/event"
)

// Op is an attribute test operator.
type Op string

const (
	OpEquals    Op = "equals"
	OpNotEquals Op = "notEquals"
	OpIncludes  Op = "includes"
	OpExists    Op = "exists"
	OpMatches   Op = "matches"
)

// Valid reports whether op is a known operator.
func (op Op) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpIncludes, OpExists, OpMatches:
		return true
	default:
		return false
	}
}

// Expr is a node of a condition tree. A nil Expr always holds.
type Expr interface {
	Eval(evt event.Event) bool
	String() string
}

// Evaluate reports whether expr holds for evt.
func Evaluate(expr Expr, evt event.Event) bool {
	if expr == nil {
		return true
	}
	return expr.Eval(evt)
}

// Check is Evaluate for callers that must not crash on a broken custom Expr.
// A panic during evaluation is returned as a *errors.ConditionEvaluationError.
func Check(expr Expr, evt event.Event) (ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = &errspkg.ConditionEvaluationError{Cause: fmt.Errorf("panic evaluating %v: %v", expr, r)}
		}
	}()
	return Evaluate(expr, evt), nil
}

// Test compares the value found at Path with Value.
type Test struct {
	Path  string
	Op    Op
	Value any
}

func (t Test) Eval(evt event.Event) bool {
	actual, found := event.Lookup(evt, t.Path)
	return apply(t.Op, actual, found, t.Value)
}

func (t Test) String() string {
	if t.Op == OpExists {
		return fmt.Sprintf("exists(%s)", t.Path)
	}
	return fmt.Sprintf("%s(%s, %v)", t.Op, t.Path, t.Value)
}

// AndExpr holds when every child holds. An empty AndExpr is true.
type AndExpr []Expr

func (a AndExpr) Eval(evt event.Event) bool {
	for _, child := range a {
		if !Evaluate(child, evt) {
			return false
		}
	}
	return true
}

func (a AndExpr) String() string { return "and(" + joinExprs(a) + ")" }

// OrExpr holds when any child holds. An empty OrExpr is false.
type OrExpr []Expr

func (o OrExpr) Eval(evt event.Event) bool {
	for _, child := range o {
		if Evaluate(child, evt) {
			return true
		}
	}
	return false
}

func (o OrExpr) String() string { return "or(" + joinExprs(o) + ")" }

// NotExpr negates its child.
type NotExpr struct {
	Expr Expr
}

func (n NotExpr) Eval(evt event.Event) bool {
	return !Evaluate(n.Expr, evt)
}

func (n NotExpr) String() string {
	if n.Expr == nil {
		return "not(always)"
	}
	return "not(" + n.Expr.String() + ")"
}

// And combines exprs conjunctively.
func And(exprs ...Expr) Expr { return AndExpr(exprs) }

// Or combines exprs disjunctively.
func Or(exprs ...Expr) Expr { return OrExpr(exprs) }

// Not negates expr.
func Not(expr Expr) Expr { return NotExpr{Expr: expr} }

// Always is the condition every middleware gets by default.
func Always() Expr { return AndExpr{} }

// Never never holds.
func Never() Expr { return OrExpr{} }

func joinExprs(exprs []Expr) string {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		if e == nil {
			parts[i] = "always"
			continue
		}
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}
