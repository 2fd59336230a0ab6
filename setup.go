package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-billing/core"
	"github.com/goliatone/go-billing/reconcile"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

type serviceBuilder struct {
	runtimeConfig     core.Config
	logger            core.Logger
	loggerProvider    core.LoggerProvider
	errorFactory      core.ErrorFactory
	errorMapper       core.ErrorMapper
	persistenceClient any
	repositoryFactory any
	configProvider    core.ConfigProvider
	optionsResolver   core.OptionsResolver
	storeProvider     core.StoreProvider
	eventStore        core.EventStore
	orderStore        core.OrderStore
	subscriptionStore core.SubscriptionStore
	entitlementStore  core.EntitlementStore
	retryPolicy       reconcile.RetryPolicy
}

type Option func(*serviceBuilder)

func WithLogger(logger core.Logger) Option {
	return func(b *serviceBuilder) {
		b.logger = logger
	}
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(b *serviceBuilder) {
		b.loggerProvider = provider
	}
}

func WithErrorFactory(factory core.ErrorFactory) Option {
	return func(b *serviceBuilder) {
		b.errorFactory = factory
	}
}

func WithErrorMapper(mapper core.ErrorMapper) Option {
	return func(b *serviceBuilder) {
		b.errorMapper = mapper
	}
}

func WithPersistenceClient(client any) Option {
	return func(b *serviceBuilder) {
		b.persistenceClient = client
	}
}

func WithRepositoryFactory(factory any) Option {
	return func(b *serviceBuilder) {
		b.repositoryFactory = factory
	}
}

func WithConfigProvider(provider core.ConfigProvider) Option {
	return func(b *serviceBuilder) {
		b.configProvider = provider
	}
}

func WithOptionsResolver(resolver core.OptionsResolver) Option {
	return func(b *serviceBuilder) {
		b.optionsResolver = resolver
	}
}

func WithStoreProvider(provider core.StoreProvider) Option {
	return func(b *serviceBuilder) {
		b.storeProvider = provider
	}
}

func WithEventStore(store core.EventStore) Option {
	return func(b *serviceBuilder) {
		b.eventStore = store
	}
}

func WithOrderStore(store core.OrderStore) Option {
	return func(b *serviceBuilder) {
		b.orderStore = store
	}
}

func WithSubscriptionStore(store core.SubscriptionStore) Option {
	return func(b *serviceBuilder) {
		b.subscriptionStore = store
	}
}

func WithEntitlementStore(store core.EntitlementStore) Option {
	return func(b *serviceBuilder) {
		b.entitlementStore = store
	}
}

func WithRetryPolicy(policy reconcile.RetryPolicy) Option {
	return func(b *serviceBuilder) {
		b.retryPolicy = policy
	}
}

// Service is the wired billing pipeline: durable event intake, the batch
// reconcile processor, and the read paths the command/query packages serve.
type Service struct {
	config         core.Config
	logger         core.Logger
	loggerProvider core.LoggerProvider
	errorFactory   core.ErrorFactory
	errorMapper    core.ErrorMapper

	events        core.EventStore
	orders        core.OrderStore
	subscriptions core.SubscriptionStore
	entitlements  core.EntitlementStore
	processor     *reconcile.Processor
}

type ServiceDependencies struct {
	Logger            core.Logger
	LoggerProvider    core.LoggerProvider
	ErrorFactory      core.ErrorFactory
	ErrorMapper       core.ErrorMapper
	EventStore        core.EventStore
	OrderStore        core.OrderStore
	SubscriptionStore core.SubscriptionStore
	EntitlementStore  core.EntitlementStore
	Processor         *reconcile.Processor
}

func defaultServiceBuilder(runtime core.Config) serviceBuilder {
	loggerProvider, logger := glog.Resolve("billing", nil, nil)
	return serviceBuilder{
		runtimeConfig:   runtime,
		loggerProvider:  loggerProvider,
		logger:          logger,
		errorFactory:    goerrors.New,
		errorMapper:     defaultErrorMapper,
		configProvider:  core.NewCfgxConfigProvider(nil),
		optionsResolver: core.GoOptionsResolver{},
	}
}

func defaultErrorMapper(err error) *goerrors.Error {
	return core.MapError(err)
}

func NewService(cfg core.Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("billing", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("billing"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.errorFactory == nil {
		builder.errorFactory = goerrors.New
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = core.NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = core.GoOptionsResolver{}
	}

	defaults := core.DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	if err := resolveStores(&builder); err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	service := &Service{
		config:         finalConfig,
		logger:         logger,
		loggerProvider: provider,
		errorFactory:   builder.errorFactory,
		errorMapper:    builder.errorMapper,
		events:         builder.eventStore,
		orders:         builder.orderStore,
		subscriptions:  builder.subscriptionStore,
		entitlements:   builder.entitlementStore,
	}

	if service.events != nil && service.orders != nil &&
		service.subscriptions != nil && service.entitlements != nil {
		processor, buildErr := buildProcessor(finalConfig, builder, service, logger)
		if buildErr != nil {
			return nil, mapBuildError(builder.errorMapper, buildErr)
		}
		service.processor = processor
	}

	return service, nil
}

// Setup wires persistence client, store factory, reconcilers, and processor
// in one call.
func Setup(cfg core.Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func resolveStores(builder *serviceBuilder) error {
	provider := builder.storeProvider
	if provider == nil && builder.repositoryFactory != nil {
		if factory, ok := builder.repositoryFactory.(core.RepositoryStoreFactory); ok {
			built, err := factory.BuildStores(builder.persistenceClient)
			if err != nil {
				return err
			}
			provider = built
		} else if direct, ok := builder.repositoryFactory.(core.StoreProvider); ok {
			provider = direct
		} else {
			return fmt.Errorf("billing: unsupported repository factory type %T", builder.repositoryFactory)
		}
	}
	if provider != nil {
		if builder.eventStore == nil {
			builder.eventStore = provider.EventStore()
		}
		if builder.orderStore == nil {
			builder.orderStore = provider.OrderStore()
		}
		if builder.subscriptionStore == nil {
			builder.subscriptionStore = provider.SubscriptionStore()
		}
		if builder.entitlementStore == nil {
			builder.entitlementStore = provider.EntitlementStore()
		}
	}
	return nil
}

func buildProcessor(
	cfg core.Config,
	builder serviceBuilder,
	service *Service,
	logger core.Logger,
) (*reconcile.Processor, error) {
	orderReconciler, err := reconcile.NewOrderReconciler(service.orders, logger)
	if err != nil {
		return nil, err
	}
	subscriptionReconciler, err := reconcile.NewSubscriptionReconciler(service.subscriptions, logger)
	if err != nil {
		return nil, err
	}
	entitlementReconciler, err := reconcile.NewEntitlementReconciler(service.entitlements, logger)
	if err != nil {
		return nil, err
	}

	processor := reconcile.NewProcessor(
		service.events,
		orderReconciler,
		subscriptionReconciler,
		entitlementReconciler,
	)
	processor.Logger = logger
	if cfg.Processor.BatchSize > 0 {
		processor.BatchSize = cfg.Processor.BatchSize
	}
	if cfg.Processor.MaxAttempts > 0 {
		processor.MaxAttempts = cfg.Processor.MaxAttempts
	}
	if cfg.Processor.ClaimLease > 0 {
		processor.ClaimLease = cfg.Processor.ClaimLease
	}
	if cfg.Processor.EventTimeout > 0 {
		processor.EventTimeout = cfg.Processor.EventTimeout
	}
	if builder.retryPolicy != nil {
		processor.RetryPolicy = builder.retryPolicy
	} else {
		processor.RetryPolicy = reconcile.ExponentialRetryPolicy{
			Initial: cfg.Processor.RetryInitial,
			Max:     cfg.Processor.RetryMax,
		}
	}
	return processor, nil
}

func mapBuildError(mapper core.ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() core.Config {
	if s == nil {
		return core.Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:            s.logger,
		LoggerProvider:    s.loggerProvider,
		ErrorFactory:      s.errorFactory,
		ErrorMapper:       s.errorMapper,
		EventStore:        s.events,
		OrderStore:        s.orders,
		SubscriptionStore: s.subscriptions,
		EntitlementStore:  s.entitlements,
		Processor:         s.processor,
	}
}

// AppendEvent stores one provider webhook receipt. A duplicate
// (provider, event_id) pair returns the stored event with Deduped set.
func (s *Service) AppendEvent(ctx context.Context, in core.AppendEventInput) (core.AppendEventResult, error) {
	if s == nil || s.events == nil {
		return core.AppendEventResult{}, s.mapError(fmt.Errorf("billing: event store is not configured"))
	}
	result, err := s.events.Append(ctx, in)
	if err != nil {
		return core.AppendEventResult{}, s.mapError(err)
	}
	return result, nil
}

// ProcessOutstanding runs one reconcile batch. batchSize <= 0 uses the
// configured default.
func (s *Service) ProcessOutstanding(ctx context.Context, batchSize int) (core.RunSummary, error) {
	if s == nil || s.processor == nil {
		return core.RunSummary{}, s.mapError(fmt.Errorf("billing: processor is not configured"))
	}
	summary, err := s.processor.ProcessOutstanding(ctx, batchSize)
	if err != nil {
		return core.RunSummary{}, s.mapError(err)
	}
	return summary, nil
}

// ReplayEvent resets a failed or dead-letter event to pending.
func (s *Service) ReplayEvent(ctx context.Context, provider string, eventID string) (core.WebhookEvent, error) {
	if s == nil || s.processor == nil {
		return core.WebhookEvent{}, s.mapError(fmt.Errorf("billing: processor is not configured"))
	}
	event, err := s.processor.ReplayEvent(ctx, provider, eventID)
	if err != nil {
		return core.WebhookEvent{}, s.mapError(err)
	}
	return event, nil
}

func (s *Service) GetEvent(ctx context.Context, provider string, eventID string) (core.WebhookEvent, error) {
	if s == nil || s.events == nil {
		return core.WebhookEvent{}, s.mapError(fmt.Errorf("billing: event store is not configured"))
	}
	event, err := s.events.Get(ctx, provider, eventID)
	if err != nil {
		return core.WebhookEvent{}, s.mapError(err)
	}
	return event, nil
}

// ListOutstandingEvents reads non-terminal events without claiming them.
func (s *Service) ListOutstandingEvents(ctx context.Context, limit int) ([]core.WebhookEvent, error) {
	if s == nil || s.events == nil {
		return nil, s.mapError(fmt.Errorf("billing: event store is not configured"))
	}
	events, err := s.events.ListOutstanding(ctx, limit)
	if err != nil {
		return nil, s.mapError(err)
	}
	return events, nil
}

func (s *Service) GetOrderByCheckoutID(ctx context.Context, providerCheckoutID string) (core.Order, error) {
	if s == nil || s.orders == nil {
		return core.Order{}, s.mapError(fmt.Errorf("billing: order store is not configured"))
	}
	order, err := s.orders.GetByCheckoutID(ctx, providerCheckoutID)
	if err != nil {
		return core.Order{}, s.mapError(err)
	}
	return order, nil
}

func (s *Service) GetSubscription(ctx context.Context, providerSubscriptionID string) (core.Subscription, error) {
	if s == nil || s.subscriptions == nil {
		return core.Subscription{}, s.mapError(fmt.Errorf("billing: subscription store is not configured"))
	}
	subscription, err := s.subscriptions.GetBySubscriptionID(ctx, providerSubscriptionID)
	if err != nil {
		return core.Subscription{}, s.mapError(err)
	}
	return subscription, nil
}

// HasEntitlement is the paywall check. A blank scope defaults to the
// whole-book scope.
func (s *Service) HasEntitlement(ctx context.Context, userID string, novelID string, scope string) (bool, error) {
	if s == nil || s.entitlements == nil {
		return false, s.mapError(fmt.Errorf("billing: entitlement store is not configured"))
	}
	if strings.TrimSpace(scope) == "" {
		scope = core.EntitlementScopeWholeBook
	}
	has, err := s.entitlements.Has(ctx, userID, novelID, scope)
	if err != nil {
		return false, s.mapError(err)
	}
	return has, nil
}

func (s *Service) ListEntitlements(ctx context.Context, userID string) ([]core.Entitlement, error) {
	if s == nil || s.entitlements == nil {
		return nil, s.mapError(fmt.Errorf("billing: entitlement store is not configured"))
	}
	listed, err := s.entitlements.ListByUser(ctx, userID)
	if err != nil {
		return nil, s.mapError(err)
	}
	return listed, nil
}

// Processor exposes the wired batch processor, mainly for trigger wiring.
func (s *Service) Processor() *reconcile.Processor {
	if s == nil {
		return nil
	}
	return s.processor
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
