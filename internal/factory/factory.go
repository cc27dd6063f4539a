package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"authlog-service/internal/bucketing"
	"authlog-service/internal/client"
	"authlog-service/internal/config"
	"authlog-service/internal/device"
	"authlog-service/internal/fingerprint"
	"authlog-service/internal/geo"
	"authlog-service/internal/handler"
	"authlog-service/internal/models"
	"authlog-service/internal/notification"
	"authlog-service/internal/repository"
	redisrepo "authlog-service/internal/repository/redis"
	"authlog-service/internal/repository/scylla"
	"authlog-service/internal/service"
	"authlog-service/internal/tls"
	"authlog-service/internal/util"
)

// Factory manages the lifecycle of all application dependencies
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	// Clients
	redisClient   *client.RedisClient
	scyllaClient  *scylla.Client
	kafkaProducer *client.KafkaProducer
	directory     *client.DirectoryClient

	// Enrichment
	geoResolver *geo.Resolver
	devices     *device.Parser
	engine      *fingerprint.Engine
	buckets     *bucketing.Manager

	// Stores
	activityStore    repository.ActivityStore
	lockoutStore     repository.LockoutStore
	fingerprintStore repository.FingerprintStore

	// Services
	limiter       *service.LoginRateLimiter
	hooks         *service.HookExecutor
	subjects      *service.SubjectRegistry
	blockHandlers *service.BlockHandlerRegistry
	notifier      *notification.Notifier
	processor     *service.EventProcessor
	retention     *service.RetentionService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies. Anything
// that would make the service silently misbehave later, a block handler or
// hook name that does not resolve, fails here instead.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	factory := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		factory.tlsManager = tls.NewManager(&tls.Config{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := factory.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	factory.initializeEnrichment()
	factory.initializeStores()
	if err := factory.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.String("activity_store", cfg.ActivityStore),
		util.String("lockout_store", cfg.LockoutStore),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kafka_enabled", cfg.Kafka.Enabled),
	)

	return factory, nil
}

// initializeClients initializes external service clients with health checks.
// Only the backends the configuration selects are dialed.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if f.config.LockoutStore == "redis" {
		if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = redisClient
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
			} else {
				util.Info("Redis client initialized and healthy")
			}
		}
	}

	if f.config.ActivityStore == "scylla" {
		if scyllaClient, err := scylla.NewClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else {
			f.scyllaClient = scyllaClient
			if err := f.scyllaClient.HealthCheck(); err != nil {
				initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
			} else {
				util.Info("ScyllaDB client initialized and healthy")
			}
		}
	}

	if f.config.Kafka.Enabled {
		if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = producer
			util.Info("Kafka producer initialized")
		}
	}

	if f.config.Directory.Enabled {
		if directory, err := client.NewDirectoryClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("directory: %w", err))
		} else {
			f.directory = directory
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeEnrichment() {
	f.devices = device.NewParser()
	f.engine = fingerprint.NewEngine(f.config.SessionTrack.PlatformMarker)
	f.buckets = bucketing.NewManager(f.config.Scylla.SubjectBuckets)

	var provider geo.Provider
	if f.config.Geo.Enabled {
		maxmind, err := geo.NewMaxMindProvider(f.config.Geo.CityDBPath)
		if err != nil {
			util.Warn("Geo database unavailable - records will carry IP only",
				util.String("path", f.config.Geo.CityDBPath),
				util.ErrorField(err))
		} else {
			provider = maxmind
		}
	}
	if provider != nil {
		f.geoResolver = geo.NewResolver(provider, f.config.Geo.Timeout, util.Get())
	}
}

func (f *Factory) initializeStores() {
	if f.config.ActivityStore == "scylla" && f.scyllaClient != nil {
		f.activityStore = scylla.NewActivityRepository(f.scyllaClient, f.buckets, util.Get())
	} else {
		f.activityStore = repository.NewMemoryStore()
	}

	if f.config.LockoutStore == "redis" && f.redisClient != nil {
		f.lockoutStore = redisrepo.NewLockoutCache(f.redisClient, f.config.Lockout.KeyPrefix)
		f.fingerprintStore = redisrepo.NewFingerprintCache(f.redisClient)
	} else {
		f.lockoutStore = repository.NewMemoryLockoutStore()
		f.fingerprintStore = repository.NewMemoryFingerprintStore()
	}
}

func (f *Factory) initializeServices() error {
	cfg := f.config

	f.limiter = service.NewLoginRateLimiter(f.lockoutStore, cfg.Lockout, util.Get())

	f.subjects = service.NewSubjectRegistry()
	if f.directory != nil && cfg.PreAuth.SubjectType != "" {
		subjectType := cfg.PreAuth.SubjectType
		f.subjects.Register(subjectType, func(ctx context.Context, identifier string) (models.Subject, error) {
			return f.directory.LookupSubject(ctx, subjectType, identifier)
		})
	}

	f.hooks = service.NewHookExecutor(util.Get())
	f.hooks.RegisterHandler("log", logEventHook)
	if err := f.bindConfiguredHooks(); err != nil {
		return err
	}

	f.blockHandlers = service.NewBlockHandlerRegistry()
	var blockHandler service.BlockHandler
	if cfg.Suspicion.BlockEnabled {
		resolved, err := f.blockHandlers.Resolve(cfg.Suspicion.BlockHandler)
		if err != nil {
			// Blocking that cannot produce a response is miswired; refuse to start.
			return err
		}
		blockHandler = resolved
	}

	var resolver notification.RecipientResolver
	if f.directory != nil {
		resolver = f.directory.Recipient
	}
	f.notifier = notification.NewNotifier(cfg, f.buildSenders(), notification.NewWebhookSender(), resolver, util.Get())

	var publisher service.ActivityPublisher
	if f.kafkaProducer != nil {
		publisher = service.NewKafkaActivityPublisher(f.kafkaProducer, cfg.Kafka.Topic)
	}

	f.processor = service.NewEventProcessor(service.ProcessorDeps{
		Config:       cfg,
		Store:        f.activityStore,
		Fingerprints: f.fingerprintStore,
		GeoResolver:  f.geoResolver,
		Devices:      f.devices,
		Engine:       f.engine,
		Buckets:      f.buckets,
		Limiter:      f.limiter,
		Hooks:        f.hooks,
		Notifier:     f.notifier,
		Publisher:    publisher,
		BlockHandler: blockHandler,
		Logger:       util.Get(),
	})

	f.retention = service.NewRetentionService(f.activityStore, f.geoResolver, cfg.Retention, util.Get())

	return nil
}

func (f *Factory) bindConfiguredHooks() error {
	bindings := map[models.EventLevel]string{
		models.EventLogin:           f.config.Hooks.OnLogin,
		models.EventLogout:          f.config.Hooks.OnLogout,
		models.EventFailed:          f.config.Hooks.OnFailed,
		models.EventPasswordReset:   f.config.Hooks.OnPasswordReset,
		models.EventReAuthenticated: f.config.Hooks.OnReAuthenticated,
	}
	for level, name := range bindings {
		if err := f.hooks.BindNamed(level, name); err != nil {
			return err
		}
	}
	return nil
}

func (f *Factory) buildSenders() []notification.Sender {
	var senders []notification.Sender
	cfg := f.config.Notification

	if cfg.Mail.Enabled {
		senders = append(senders, notification.NewMailSender(cfg.Mail))
	}
	if cfg.Slack.Enabled && cfg.Slack.Webhook != "" {
		senders = append(senders, notification.NewSlackSender(cfg.Slack.Webhook))
	}
	if cfg.SMS.Enabled {
		senders = append(senders, notification.NewSMSSender(util.Get()))
	}
	return senders
}

// Router builds the fully wired HTTP router.
func (f *Factory) Router() chi.Router {
	events := handler.NewEventHandler(f.processor, f.activityStore, util.Get())
	admin := handler.NewAdminHandler(f.retention, util.Get())

	return handler.NewRouter(handler.RouterDeps{
		Config:    f.config,
		Events:    events,
		Admin:     admin,
		Processor: f.processor,
		Subjects:  f.subjects,
		Resolver:  handler.HeaderPrincipalResolver{},
		Logger:    util.Get(),
	})
}

// HealthCheck probes every wired backend.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.config.LockoutStore == "redis" {
		if f.redisClient != nil {
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				healthErrors["redis"] = err
			}
		} else {
			healthErrors["redis"] = fmt.Errorf("redis client not initialized")
		}
	}

	if f.activityStore != nil {
		if err := f.activityStore.HealthCheck(ctx); err != nil {
			healthErrors["activity_store"] = err
		}
	} else {
		healthErrors["activity_store"] = fmt.Errorf("activity store not initialized")
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			} else {
				util.Info("Kafka producer closed")
			}
		}

		if f.geoResolver != nil {
			if err := f.geoResolver.Close(); err != nil {
				util.Error("Failed to close geo resolver", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
			util.Info("ScyllaDB client closed")
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}

func (f *Factory) Processor() *service.EventProcessor {
	return f.processor
}

func (f *Factory) Retention() *service.RetentionService {
	return f.retention
}

func (f *Factory) Subjects() *service.SubjectRegistry {
	return f.subjects
}

// logEventHook is the built-in named hook: it writes one structured log
// line per event, useful as a wiring smoke test.
func logEventHook(_ context.Context, record *models.AuthLog) {
	util.Info("auth event hook",
		util.String("event", string(record.EventLevel)),
		util.String("subject", record.Subject().String()),
		util.String("location", record.FormattedLocation()),
		util.Bool("new_device", record.IsNewDevice),
		util.Bool("new_location", record.IsNewLocation),
	)
}
