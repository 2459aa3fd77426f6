package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/formhive/formhive/pkg/access"
	"github.com/formhive/formhive/pkg/audit"
	"github.com/formhive/formhive/pkg/auth"
	"github.com/formhive/formhive/pkg/config"
	"github.com/formhive/formhive/pkg/forms"
	"github.com/formhive/formhive/pkg/middleware"
	"github.com/formhive/formhive/pkg/observability"
	"github.com/formhive/formhive/pkg/orgs"
	"github.com/formhive/formhive/pkg/storage/postgres"
	"github.com/formhive/formhive/pkg/webhooks"
)

func main() {
	logger := setupLogger()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}
	logger.SetLevel(logrusLevel(cfg.Observability.LogLevel))

	if err := run(cfg, logger); err != nil {
		logger.Fatalf("Server exited with error: %v", err)
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database
	cm, err := postgres.NewConnectionManager(postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: postgres.ParseReplicaURLs(cfg.Database.ReplicaURLs),
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		MaxLifetime: time.Hour,
		MaxIdleTime: 10 * time.Minute,
	})
	if err != nil {
		return err
	}
	defer cm.Close()
	db := cm.Primary()

	migrateCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()
	if err := orgs.RunMigrations(migrateCtx, db); err != nil {
		return err
	}
	if err := access.RunMigrations(migrateCtx, db); err != nil {
		return err
	}
	logger.Info("Database migrations applied")

	// Redis is optional; without it the decision cache degrades to direct
	// reads and the form cache falls back to process memory.
	var redisClient *postgres.RedisClient
	if cfg.Redis.URL != "" {
		redisClient, err = postgres.NewRedisClient(postgres.RedisConfig{
			URL:        cfg.Redis.URL,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
			PoolSize:   cfg.Redis.PoolSize,
		})
		if err != nil {
			return err
		}
		defer redisClient.Close()
		logger.Info("Connected to Redis")
	}

	// OpenTelemetry
	obsLogger := observability.NewLogger("formhive")
	if cfg.Observability.OTelEnabled {
		providers, err := observability.InitOTel(ctx, observability.OTelConfig{
			Enabled:        true,
			Endpoint:       cfg.Observability.OTelEndpoint,
			ServiceName:    cfg.Observability.OTelServiceName,
			ServiceVersion: cfg.Observability.OTelServiceVersion,
			Insecure:       cfg.Observability.OTelInsecure,
		}, obsLogger)
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			observability.ShutdownOTel(shutdownCtx, providers, obsLogger)
		}()
	}

	// Audit logging: database always, file log when configured
	dbAudit, err := audit.NewDBLogger(db)
	if err != nil {
		return err
	}
	auditLoggers := []audit.Logger{dbAudit}
	if cfg.Audit.FileLogPath != "" {
		fileAudit, err := audit.NewFileLogger(audit.FileLoggerConfig{
			BasePath: cfg.Audit.FileLogPath,
			Rotate:   true,
		})
		if err != nil {
			return err
		}
		defer fileAudit.Close()
		auditLoggers = append(auditLoggers, fileAudit)
	}
	auditLog := audit.NewMultiLogger(auditLoggers...)

	// Core services
	tokenManager := auth.NewTokenManager(db)
	orgsService := orgs.NewPostgresService(db)

	accessStore := access.NewPostgresStore(db)
	var decisionCache access.DecisionCache
	checkerOpts := []access.CheckerOption{}
	if redisClient != nil && cfg.Access.DecisionCacheEnabled {
		decisionCache = access.NewRedisDecisionCacheWithClient(
			redisClient.GetClient(), cfg.Access.DecisionCacheTTL)
		checkerOpts = append(checkerOpts, access.WithDecisionCache(decisionCache))
	}
	checker := access.NewChecker(accessStore, checkerOpts...)

	// Webhooks fan out form and sharing events to registered subscribers.
	webhookManager := webhooks.NewWebhookManager()
	webhookManager.StartRetryWorker(ctx)
	defer webhookManager.StopRetryWorker()

	categories, err := forms.LoadCategories(cfg.Forms.CategoriesFile)
	if err != nil {
		return err
	}
	var formCache forms.Cache
	if redisClient != nil {
		formCache = forms.NewRedisCache(redisClient, cfg.Forms.CacheTTL)
	} else {
		formCache = forms.NewLRUCache(cfg.Forms.CacheSize, cfg.Forms.CacheTTL)
	}

	sharingOpts := []access.SharingOption{
		access.WithSharingAuditLogger(auditLog),
		access.WithSharingEvents(webhookManager),
		access.WithSharingRecordCache(formCache),
	}
	if decisionCache != nil {
		sharingOpts = append(sharingOpts, access.WithSharingCache(decisionCache))
	}
	sharing := access.NewSharingService(accessStore, checker, sharingOpts...)
	formsOpts := []forms.Option{
		forms.WithCache(formCache),
		forms.WithAuditLogger(auditLog),
		forms.WithEvents(webhookManager),
	}
	if decisionCache != nil {
		formsOpts = append(formsOpts, forms.WithDecisionCache(decisionCache))
	}
	formsService := forms.NewService(forms.NewPostgresStore(db), checker, categories, formsOpts...)

	// Metrics share the default registry with the per-package collectors.
	registry := prometheus.DefaultRegisterer.(*prometheus.Registry)
	metrics := observability.NewMetrics(registry)

	// With Redis available the rate limit is shared across instances;
	// otherwise each instance enforces its own.
	var rateLimitHandler func(http.Handler) http.Handler
	if redisClient != nil {
		rateLimitHandler = middleware.NewDistributedRateLimitMiddleware(redisClient.GetClient()).Handler
	} else {
		rateLimitHandler = middleware.NewRateLimitMiddleware().Handler
	}

	// HTTP API
	router := mux.NewRouter()
	router.Use(
		observability.HTTPMetricsMiddleware(metrics),
		middleware.NewAuthMiddleware(tokenManager, false).Handler,
		rateLimitHandler,
		middleware.OrgContextMiddleware(orgsService),
		middleware.QuotaCheckMiddleware(orgsService, "form"),
		audit.NewMiddleware(auditLog, cfg.Audit.LogAllRequests).Handler,
	)

	access.NewHandlers(checker, sharing).RegisterRoutes(router)
	forms.NewHandlers(formsService).RegisterRoutes(router)
	orgs.NewHandlers(orgsService).RegisterRoutes(router)

	auditStore := audit.NewDBStore(dbAudit)
	auditRouter := router.PathPrefix("/api/v1").Subrouter()
	auditRouter.Use(middleware.RequireScope(auth.ScopeAuditRead))
	audit.NewHandlers(auditStore).RegisterRoutes(auditRouter)

	webhookRouter := router.PathPrefix("/api/v1").Subrouter()
	webhookRouter.Use(middleware.RequireScope(auth.ScopeFormWrite))
	webhooks.NewWebhookHandlers(webhookManager).RegisterRoutes(webhookRouter)

	apiServer := &http.Server{
		Addr:         cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:      otelhttp.NewHandler(router, "formhive-api"),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Health and metrics on a separate port for probes
	var redisForHealth *redis.Client
	if redisClient != nil {
		redisForHealth = redisClient.GetClient()
	}
	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db, redisForHealth))
	observability.RegisterMetricsEndpoint(healthMux, registry)
	healthServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.HealthPort,
		Handler: healthMux,
	}

	// Background maintenance
	cm.StartHealthCheckRoutine(ctx, 30*time.Second)
	scheduler := startScheduler(ctx, cfg, logger, tokenManager, auditStore)
	defer scheduler.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("API server shutdown: %v", err)
		}
		if err := healthServer.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Health server shutdown: %v", err)
		}
		return nil
	})

	return g.Wait()
}

// startScheduler runs the nightly maintenance jobs: expired token cleanup
// and the audit retention sweep.
func startScheduler(ctx context.Context, cfg *config.Config, logger *logrus.Logger, tokenManager *auth.TokenManager, auditStore audit.Store) *cron.Cron {
	c := cron.New()

	if _, err := c.AddFunc("0 3 * * *", func() {
		removed, err := tokenManager.CleanupExpiredTokens(ctx)
		if err != nil {
			logger.Errorf("Expired token cleanup failed: %v", err)
			return
		}
		logger.Infof("Expired token cleanup removed %d tokens", removed)
	}); err != nil {
		logger.Errorf("Failed to schedule expired token cleanup: %v", err)
	}

	if _, err := c.AddFunc("30 3 * * *", func() {
		policy := audit.RetentionPolicy{RetentionDays: cfg.Audit.RetentionDays}
		removed, err := auditStore.Cleanup(ctx, policy)
		if err != nil {
			logger.Errorf("Audit retention sweep failed: %v", err)
			return
		}
		logger.Infof("Audit retention sweep removed %d events", removed)
	}); err != nil {
		logger.Errorf("Failed to schedule audit retention sweep: %v", err)
	}

	c.Start()
	return c
}

func setupLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	logger.SetLevel(logrus.InfoLevel)
	return logger
}

func logrusLevel(level observability.LogLevel) logrus.Level {
	switch level {
	case observability.DebugLevel:
		return logrus.DebugLevel
	case observability.WarnLevel:
		return logrus.WarnLevel
	case observability.ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}
