package docflow

import (
	"log/slog"

	runtimepkg "github.com/drblury/docflow/internal/runtime"
	"github.com/drblury/docflow/internal/runtime/condition"
	configpkg "github.com/drblury/docflow/internal/runtime/config"
	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/event"
	"github.com/drblury/docflow/internal/runtime/harness"
	idspkg "github.com/drblury/docflow/internal/runtime/ids"
	"github.com/drblury/docflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
	"github.com/drblury/docflow/internal/runtime/pointer"
	"github.com/drblury/docflow/internal/runtime/reference"
	"github.com/drblury/docflow/substrate"
)

type (
	Config              = configpkg.Config
	Service             = runtimepkg.Service
	ServiceDependencies = runtimepkg.ServiceDependencies

	Middleware      = runtimepkg.Middleware
	MiddlewareInfo  = runtimepkg.MiddlewareInfo
	MiddlewareStats = runtimepkg.MiddlewareStats
	ComputeUnit     = runtimepkg.ComputeUnit
	UnitFunc        = runtimepkg.UnitFunc
	Invocation      = runtimepkg.Invocation
	Resources       = runtimepkg.Resources
	Bindable        = runtimepkg.Bindable
	Publisher       = runtimepkg.Publisher
	State           = runtimepkg.State

	// Item lifecycle hooks
	ItemContext = runtimepkg.ItemContext
	ItemHooks   = runtimepkg.ItemHooks

	// Direct batch delivery
	Item        = harness.Item
	ItemResult  = harness.ItemResult
	BatchResult = harness.BatchResult
	Outcome     = harness.Outcome

	Event     = event.Event
	EventType = event.Type
	Document  = event.Document
	Metadata  = event.Metadata

	Expr = condition.Expr

	Reference = reference.Reference
	Resolver  = reference.Resolver
	Fetcher   = reference.Fetcher

	Pointer      = pointer.Pointer
	PointerStore = pointer.Store

	Capabilities     = substrate.Capabilities
	SubstrateFactory = substrate.Factory

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger

	ErrorClass      = errspkg.Class
	ValidationError = errspkg.ValidationError
	ResolutionError = errspkg.ResolutionError
	RetryAfterError = errspkg.RetryAfterError
)

const (
	DocumentCreated = event.DocumentCreated
	DocumentUpdated = event.DocumentUpdated
	DocumentDeleted = event.DocumentDeleted

	Success          = harness.Success
	Skipped          = harness.Skipped
	TransientFailure = harness.TransientFailure
	FatalFailure     = harness.FatalFailure

	KindText  = event.KindText
	KindImage = event.KindImage
	KindAudio = event.KindAudio
	KindVideo = event.KindVideo
)

var (
	NewService     = runtimepkg.NewService
	LoadConfig     = configpkg.LoadFile
	ParseConfig    = configpkg.Parse
	ValidateConfig = configpkg.ValidateConfig
	NewPublisher   = runtimepkg.NewPublisher
	NewMessage     = runtimepkg.NewMessage
	Next           = runtimepkg.Next

	LoggingHooks  = runtimepkg.LoggingHooks
	AlertingHooks = runtimepkg.AlertingHooks

	// Events
	NewEvent       = event.New
	DeriveEvent    = event.Derive
	ParseEvent     = event.Parse
	SerializeEvent = event.Serialize
	WithMetadata   = event.WithMetadata
	DeepMerge      = event.DeepMerge
	KindPatch      = event.KindPatch
	Lookup         = event.Lookup
	NewEventID     = idspkg.NewEventID

	// Conditions
	When             = condition.When
	And              = condition.And
	Or               = condition.Or
	Not              = condition.Not
	Always           = condition.Always
	Never            = condition.Never
	TypeIs           = condition.Type
	DocumentType     = condition.DocumentType
	KindIs           = condition.Kind
	MimeTypes        = condition.MimeTypes
	Evaluate         = condition.Evaluate
	ParseCondition   = condition.Parse
	MarshalCondition = condition.Marshal

	// References
	Value         = reference.Value
	PointerRef    = reference.Pointer
	URL           = reference.URL
	Attribute     = reference.Attribute
	NewResolver   = reference.NewResolver
	WithFetcher   = reference.WithFetcher
	WithS3        = reference.WithS3
	FileFetcher   = reference.FileFetcher
	Offload       = reference.Offload
	StoreDocument = reference.StoreDocument
	EncodeDataURI = reference.EncodeDataURI

	// Pointer stores
	OpenStore      = pointer.Open
	NewMemoryStore = pointer.NewMemoryStore
	IsPointer      = pointer.IsPointer
	ParsePointer   = pointer.Parse

	// Failure classification
	Transient   = errspkg.Transient
	Fatal       = errspkg.Fatal
	RetryAfter  = errspkg.RetryAfter
	Classify    = errspkg.Classify
	IsTransient = errspkg.IsTransient
	IsFatal     = errspkg.IsFatal

	GetCapabilities   = substrate.GetCapabilities
	RegisterSubstrate = substrate.Register

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	DiscardLogger        = loggingpkg.Discard

	ErrServiceRequired     = errspkg.ErrServiceRequired
	ErrUnitRequired        = errspkg.ErrUnitRequired
	ErrInputQueueRequired  = errspkg.ErrInputQueueRequired
	ErrDuplicateMiddleware = errspkg.ErrDuplicateMiddleware
	ErrPublisherRequired   = errspkg.ErrPublisherRequired
	ErrTopicRequired       = errspkg.ErrTopicRequired
	ErrConfigRequired      = errspkg.ErrConfigRequired
	ErrLoggerRequired      = errspkg.ErrLoggerRequired
	ErrSkipped             = harness.ErrSkipped
	ErrPointerNotFound     = pointer.ErrNotFound
	ErrMessageTooLarge     = substrate.ErrMessageTooLarge
)

// NewLogger builds a ServiceLogger writing to stdout in the given format
// ("json" or "text") and level.
func NewLogger(format, level string) ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(loggingpkg.NewLogger(format, level))
}

// NewSlogLogger is NewLogger for callers that want the slog.Logger itself.
func NewSlogLogger(format, level string) *slog.Logger {
	return loggingpkg.NewLogger(format, level)
}
