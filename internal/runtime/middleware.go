package runtime

import (
	"errors"
	"fmt"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/drblury/docflow/internal/runtime/condition"
	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/pointer"
	"github.com/drblury/docflow/internal/runtime/reference"
)

// Middleware describes one processing step: where it reads from, which
// events it accepts and what it runs.
type Middleware struct {
	// Name identifies the middleware in logs, metrics and dead letters. It
	// doubles as the pointer store namespace of the middleware, so it must
	// be a valid namespace.
	Name        string
	Description string
	Version     string

	// InputQueue is the topic consumed by the middleware.
	InputQueue string
	// OutputTopic receives the unit's events. Empty makes the middleware a
	// sink: outputs are dropped.
	OutputTopic string
	// DeadLetterQueue overrides the service-wide dead-letter destination.
	DeadLetterQueue string

	// SupportedInputTypes lists mime type globs ("image/*"). Empty accepts
	// every document.
	SupportedInputTypes []string
	// Condition is evaluated after the input type gate. Nil always holds.
	Condition condition.Expr

	// Settings are resolved lazily through Invocation.Setting. Large
	// literal values are moved to the pointer store at registration.
	Settings map[string]reference.Reference

	Unit  ComputeUnit
	Hooks ItemHooks
}

// Validate checks that the middleware can be registered.
func (m Middleware) Validate() error {
	var errs []error
	if strings.TrimSpace(m.Name) == "" {
		errs = append(errs, errspkg.ErrMiddlewareNameRequired)
	} else if err := pointer.ValidateNamespace(m.Name); err != nil {
		errs = append(errs, fmt.Errorf("middleware name: %w", err))
	}
	if strings.TrimSpace(m.InputQueue) == "" {
		errs = append(errs, errspkg.ErrInputQueueRequired)
	}
	if m.Unit == nil {
		errs = append(errs, errspkg.ErrUnitRequired)
	}
	if m.OutputTopic != "" && m.OutputTopic == m.InputQueue {
		errs = append(errs, fmt.Errorf("middleware %s: output topic must differ from input queue", m.Name))
	}
	for _, pattern := range m.SupportedInputTypes {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("middleware %s: invalid input type pattern %q", m.Name, pattern))
		}
	}
	return errors.Join(errs...)
}

// Gate is the full acceptance test: input type gate AND condition.
func (m Middleware) Gate() condition.Expr {
	return condition.Gate(m.SupportedInputTypes, m.Condition)
}

func (m Middleware) deadLetterTopic(fallback string) string {
	switch {
	case m.DeadLetterQueue != "":
		return m.DeadLetterQueue
	case fallback != "":
		return fallback
	default:
		return m.InputQueue + ".dlq"
	}
}

// MiddlewareInfo is the public description served by the admin API.
type MiddlewareInfo struct {
	Name                string          `json:"name"`
	Description         string          `json:"description,omitempty"`
	Version             string          `json:"version,omitempty"`
	InputQueue          string          `json:"input_queue"`
	OutputTopic         string          `json:"output_topic,omitempty"`
	DeadLetterQueue     string          `json:"dead_letter_queue"`
	SupportedInputTypes []string        `json:"supported_input_types,omitempty"`
	Condition           string          `json:"condition"`
	Stats               MiddlewareStats `json:"stats"`
}
