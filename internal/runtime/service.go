package runtime

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	wmetrics "github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	configpkg "github.com/drblury/docflow/internal/runtime/config"
	errspkg "github.com/drblury/docflow/internal/runtime/errors"
	"github.com/drblury/docflow/internal/runtime/event"
	"github.com/drblury/docflow/internal/runtime/harness"
	loggingpkg "github.com/drblury/docflow/internal/runtime/logging"
	"github.com/drblury/docflow/internal/runtime/pointer"
	"github.com/drblury/docflow/internal/runtime/reference"
	"github.com/drblury/docflow/substrate"
	_ "github.com/drblury/docflow/substrate/substrates"
)

const (
	tracerName      = "github.com/drblury/docflow"
	shutdownTimeout = 10 * time.Second
)

// openStore is swapped in tests.
var openStore = pointer.Open

// ServiceDependencies holds optional collaborators. Nil fields fall back to
// what the config selects.
type ServiceDependencies struct {
	// Substrates builds the delivery substrate. Defaults to the registry of
	// built-in substrates.
	Substrates substrate.Factory
	// Store overrides the configured pointer store. The service does not
	// close a store it was given.
	Store pointer.Store
	// ResolverOptions customise reference fetching (HTTP client, S3 client,
	// extra schemes).
	ResolverOptions []reference.Option
	// Registry receives the Prometheus collectors. Defaults to a fresh
	// registry served on /metrics.
	Registry *prometheus.Registry
	// Tracer defaults to the global OpenTelemetry tracer provider.
	Tracer trace.Tracer
	// Hooks apply to every middleware, before the middleware's own hooks.
	Hooks ItemHooks
}

// Service runs registered middlewares against one substrate and pointer
// store.
type Service struct {
	Conf   *configpkg.Config
	Logger loggingpkg.ServiceLogger

	substrate  substrate.Substrate
	caps       substrate.Capabilities
	subscriber message.Subscriber
	publisher  *Publisher

	store     pointer.Store
	ownsStore bool
	resolver  *reference.Resolver

	registry *prometheus.Registry
	metrics  *Metrics
	tracer   trace.Tracer
	hooks    ItemHooks
	sampler  *resourceTracker

	middlewares   []*registeredMiddleware
	middlewaresMu sync.RWMutex

	httpServers   map[int]*chi.Mux
	httpServersMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
}

// NewService builds a Service from conf. Defaults are applied to a copy of
// conf; the copy is exposed as Conf. Register middlewares before Start.
func NewService(ctx context.Context, conf *configpkg.Config, log loggingpkg.ServiceLogger, deps ServiceDependencies) (*Service, error) {
	if conf == nil {
		return nil, errspkg.ErrConfigRequired
	}
	if log == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	withDefaults := conf.WithDefaults()
	conf = &withDefaults
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	wmLogger := loggingpkg.NewWatermillAdapter(log)
	log.Info("Creating docflow service", loggingpkg.LogFields{
		"substrate": conf.Substrate,
		"store":     conf.StoreProvider,
		"config":    conf.String(),
	})

	s := &Service{
		Conf:     conf,
		Logger:   log,
		registry: deps.Registry,
		tracer:   deps.Tracer,
		hooks:    deps.Hooks,
		sampler:  newResourceTracker(),
	}
	if s.registry == nil {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: metricsNamespace}),
		)
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	s.metrics = NewMetrics(s.registry)
	if err := s.metrics.Register(); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	factory := deps.Substrates
	if factory == nil {
		factory = substrate.DefaultRegistry
	}
	sub, err := factory.Build(ctx, conf, wmLogger)
	if err != nil {
		return nil, err
	}
	s.substrate = sub
	s.caps = sub.Capabilities
	if !s.caps.SupportsReliableDelivery() {
		log.Info("Substrate does not redeliver nacked messages, transient failures will be dead-lettered", loggingpkg.LogFields{
			"substrate": s.caps.Name,
		})
	}
	pub, subscriber := sub.Publisher, sub.Subscriber
	if conf.MetricsEnabled {
		builder := wmetrics.NewPrometheusMetricsBuilder(s.registry, metricsNamespace, "substrate")
		if pub, err = builder.DecoratePublisher(pub); err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("instrument publisher: %w", err)
		}
		if subscriber, err = builder.DecorateSubscriber(subscriber); err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("instrument subscriber: %w", err)
		}
	}
	s.subscriber = subscriber
	s.publisher = NewPublisher(pub, sub.Capabilities)

	s.store = deps.Store
	if s.store == nil {
		if s.store, err = openStore(ctx, conf, wmLogger); err != nil {
			_ = sub.Close()
			return nil, fmt.Errorf("open pointer store: %w", err)
		}
		s.ownsStore = true
	}
	s.resolver = reference.NewResolver(s.store, deps.ResolverOptions...)

	return s, nil
}

// Register validates mw, offloads its large settings, binds its unit and
// adds it to the service. Names must be unique.
func (s *Service) Register(ctx context.Context, mw Middleware) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	if err := mw.Validate(); err != nil {
		return err
	}

	s.middlewaresMu.Lock()
	defer s.middlewaresMu.Unlock()

	for _, existing := range s.middlewares {
		if existing.Name == mw.Name {
			return fmt.Errorf("%w: %s", errspkg.ErrDuplicateMiddleware, mw.Name)
		}
	}

	settings, err := reference.OffloadAll(ctx, s.store, mw.Name, mw.Settings, s.Conf.OffloadThreshold)
	if err != nil {
		return fmt.Errorf("offload settings of %s: %w", mw.Name, err)
	}
	err = bindUnit(mw.Unit, Resources{
		Store:     s.store,
		Resolver:  s.resolver,
		Publisher: s.publisher,
		Logger:    s.Logger.With(loggingpkg.LogFields{loggingpkg.FieldMiddleware: mw.Name}),
	})
	if err != nil {
		return fmt.Errorf("bind %s: %w", mw.Name, err)
	}

	rm := &registeredMiddleware{
		Middleware: mw,
		gate:       mw.Gate(),
		settings:   settings,
		dlqTopic:   mw.deadLetterTopic(s.Conf.DeadLetterQueue),
		hooks:      s.hooks.Merge(mw.Hooks),
		stats:      newStatsRecorder(s.sampler),
	}
	s.middlewares = append(s.middlewares, rm)

	info := rm.info()
	s.Logger.Info("Registered middleware", loggingpkg.LogFields{
		loggingpkg.FieldMiddleware: info.Name,
		"input_queue":              info.InputQueue,
		"output_topic":             info.OutputTopic,
		"dead_letter_queue":        info.DeadLetterQueue,
		"condition":                info.Condition,
	})
	return nil
}

// Middlewares describes every registered middleware, in registration order.
func (s *Service) Middlewares() []MiddlewareInfo {
	s.middlewaresMu.RLock()
	defer s.middlewaresMu.RUnlock()

	out := make([]MiddlewareInfo, len(s.middlewares))
	for i, rm := range s.middlewares {
		out[i] = rm.info()
	}
	return out
}

func (s *Service) lookup(name string) (*registeredMiddleware, bool) {
	s.middlewaresMu.RLock()
	defer s.middlewaresMu.RUnlock()
	for _, rm := range s.middlewares {
		if rm.Name == name {
			return rm, true
		}
	}
	return nil, false
}

// Start consumes every registered middleware's input queue and serves the
// admin and metrics endpoints until ctx is cancelled or a consumer fails.
func (s *Service) Start(ctx context.Context) error {
	s.middlewaresMu.RLock()
	middlewares := append([]*registeredMiddleware(nil), s.middlewares...)
	s.middlewaresMu.RUnlock()

	if s.Conf.AdminEnabled {
		s.RegisterHTTPHandler(s.Conf.AdminPort, "/", s.adminRouter())
	}
	if s.Conf.MetricsEnabled && (!s.Conf.AdminEnabled || s.Conf.MetricsPort != s.Conf.AdminPort) {
		s.RegisterHTTPHandler(s.Conf.MetricsPort, "/metrics", s.metricsHandler())
	}

	g, ctx := errgroup.WithContext(ctx)
	s.startHTTPServers(ctx, g)
	for _, rm := range middlewares {
		c := s.newConsumer(rm)
		g.Go(func() error {
			return c.run(ctx)
		})
	}
	return g.Wait()
}

// Publish sends events to topic, for example to trigger a pipeline.
func (s *Service) Publish(ctx context.Context, topic string, events ...event.Event) error {
	if s == nil {
		return errspkg.ErrServiceRequired
	}
	return s.publisher.Publish(ctx, topic, events...)
}

// ProcessBatch runs bodies through the named middleware without the
// substrate, for deployments where the platform delivers batches itself.
// The result's ItemFailures lists the items the platform must redeliver;
// fatal items are dead-lettered here.
func (s *Service) ProcessBatch(ctx context.Context, name string, items []harness.Item) (harness.BatchResult, error) {
	rm, ok := s.lookup(name)
	if !ok {
		return harness.BatchResult{}, fmt.Errorf("docflow: unknown middleware %q", name)
	}
	c := s.newConsumer(rm)
	result := c.harness.ProcessBatch(ctx, items, s.itemHandler(rm))
	rm.stats.batchProcessed()
	s.metrics.observeBatch(rm.Name, len(items))

	for i, res := range result.Items {
		if res.Outcome != harness.FatalFailure {
			continue
		}
		msg := message.NewMessage(res.ID, items[res.Index].Body)
		if !c.publishDeadLetter(ctx, msg, res.Err, reasonFatal, 1) {
			result.Items[i].Outcome = harness.TransientFailure
		}
	}
	return result, nil
}

// Store returns the pointer store.
func (s *Service) Store() pointer.Store { return s.store }

// Resolver returns the reference resolver bound to the store.
func (s *Service) Resolver() *reference.Resolver { return s.resolver }

// Capabilities reports what the substrate supports.
func (s *Service) Capabilities() substrate.Capabilities { return s.caps }

// Close releases the substrate and, when the service opened it, the store.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		errs := []error{s.substrate.Close()}
		if s.ownsStore && s.store != nil {
			errs = append(errs, s.store.Close())
		}
		s.closeErr = errors.Join(errs...)
	})
	return s.closeErr
}

// RegisterHTTPHandler mounts handler on the server listening on port.
// Servers start with Start.
func (s *Service) RegisterHTTPHandler(port int, pattern string, handler http.Handler) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	if s.httpServers == nil {
		s.httpServers = make(map[int]*chi.Mux)
	}
	mux, ok := s.httpServers[port]
	if !ok {
		mux = chi.NewRouter()
		s.httpServers[port] = mux
	}
	if pattern == "/" {
		mux.Mount(pattern, handler)
		return
	}
	mux.Handle(pattern, handler)
}

func (s *Service) startHTTPServers(ctx context.Context, g *errgroup.Group) {
	s.httpServersMu.Lock()
	defer s.httpServersMu.Unlock()

	for port, mux := range s.httpServers {
		srv := &http.Server{
			Addr:              net.JoinHostPort("", strconv.Itoa(port)),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": srv.Addr})
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server %s: %w", srv.Addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}
}
