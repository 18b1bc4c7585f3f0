package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netra-labs/netra/internal/api"
	"github.com/netra-labs/netra/internal/cache"
	"github.com/netra-labs/netra/internal/connmon"
	"github.com/netra-labs/netra/internal/costs"
	"github.com/netra-labs/netra/internal/database"
	"github.com/netra-labs/netra/internal/startup"
	"github.com/netra-labs/netra/internal/vpcmon"
	"github.com/netra-labs/netra/pkg/config"
	"github.com/netra-labs/netra/pkg/health"
	"github.com/netra-labs/netra/pkg/logging"
	"github.com/netra-labs/netra/pkg/metrics"
	"github.com/netra-labs/netra/pkg/resilience"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		ServiceName: "netra-api",
		Version:     version(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobalLogger(logger)

	logger.Info("Starting Netra API server",
		"environment", string(cfg.Environment),
		"connection_timeout", cfg.Database.Timeouts.Connection.String(),
	)

	m := metrics.NewMetrics(metrics.DefaultConfig())

	alerts := resilience.NewAlertManager()
	alerts.AddHandler(resilience.NewLoggingAlertHandler())

	connMonitor := connmon.NewMonitor(cfg.Monitor,
		connmon.WithMetrics(m),
		connmon.WithAlertManager(alerts),
	)

	app := &application{
		cfg:         cfg,
		logger:      logger,
		metrics:     m,
		alerts:      alerts,
		connMonitor: connMonitor,
	}

	// The connector monitor exists before the database so connection
	// attempts during boot already get capacity-scaled timeouts. Its
	// metrics source reads the pool lazily once the pool is up.
	app.vpcMonitor = vpcmon.NewMonitor(cfg.Connector, &poolMetricsSource{app: app},
		vpcmon.WithMetrics(m),
		vpcmon.WithAlertManager(alerts),
		vpcmon.WithBaseTimeout(cfg.Database.Timeouts.Connection),
	)

	state := startup.NewAppState()
	report, err := app.boot(state)
	if err != nil {
		logger.Error("Startup failed", "error", err.Error())
		app.shutdown()
		os.Exit(1)
	}
	app.report = report

	app.startConnectorMonitor()

	err = app.serve(state)
	app.shutdown()
	if err != nil {
		logger.Error("Server error", "error", err.Error())
		os.Exit(1)
	}
}

// application holds the wired subsystems so startup phases and shutdown
// can share them
type application struct {
	cfg     *config.Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	alerts  *resilience.AlertManager

	connMonitor *connmon.Monitor
	vpcMonitor  *vpcmon.Monitor

	db          *database.DB
	redis       *cache.RedisClient
	cacheSvc    *cache.Service
	statsCache  *cache.StatsCache
	sessionRepo database.SessionRepositoryInterface

	report *startup.Report

	stopBackground context.CancelFunc
}

// boot runs the phased startup sequence. Only the database is required;
// everything else degrades.
func (app *application) boot(state *startup.AppState) (*startup.Report, error) {
	orchestrator := startup.NewOrchestrator(state,
		startup.WithMetrics(app.metrics),
		startup.WithAlertManager(app.alerts),
	)

	dbRetry := resilience.DatabaseRetryConfig()

	orchestrator.AddPhase(startup.Phase{
		Name:     startup.PhaseDatabase,
		Required: true,
		Timeout:  app.cfg.Database.Timeouts.Initialization,
		Retry:    &dbRetry,
		Run:      app.initDatabase,
	})
	orchestrator.AddPhase(startup.Phase{
		Name:          startup.PhaseCache,
		FallbackLevel: startup.LevelDegraded,
		Timeout:       30 * time.Second,
		Run:           app.initCache,
	})
	orchestrator.AddPhase(startup.Phase{
		Name:          startup.PhaseServices,
		FallbackLevel: startup.LevelMinimal,
		Timeout:       30 * time.Second,
		Run:           app.initServices,
	})
	orchestrator.AddPhase(startup.Phase{
		Name:          startup.PhaseValidation,
		FallbackLevel: startup.LevelDegraded,
		Timeout:       app.cfg.Database.Timeouts.Query,
		Run:           app.validate,
	})

	return orchestrator.Run(context.Background())
}

// initDatabase connects the pool and applies pending migrations
func (app *application) initDatabase(ctx context.Context) error {
	db, err := database.Connect(ctx, app.cfg,
		database.WithAttemptRecorder(app.connMonitor),
		database.WithTimeoutScaler(app.vpcMonitor),
	)
	if err != nil {
		return err
	}
	app.db = db

	migrator, err := database.NewMigrator(&app.cfg.Database, migrationsPath())
	if err != nil {
		return err
	}
	defer migrator.Close()

	return migrator.Up()
}

// initCache connects Redis. A missing cache degrades snapshot endpoints
// and session counters but nothing else.
func (app *application) initCache(ctx context.Context) error {
	redis, err := cache.NewRedisClient(&app.cfg.Redis)
	if err != nil {
		return err
	}

	app.redis = redis
	app.cacheSvc = cache.NewService(redis, cache.DefaultConfig())
	app.statsCache = cache.NewStatsCache(app.cacheSvc)
	return nil
}

// initServices wires the repositories and primes the connector monitor
func (app *application) initServices(ctx context.Context) error {
	app.sessionRepo = database.NewSessionRepository(app.db)
	app.vpcMonitor.Poll(ctx)
	return nil
}

// validate performs one end-to-end check of the wired subsystems
func (app *application) validate(ctx context.Context) error {
	if err := app.db.Health(ctx); err != nil {
		return err
	}

	if _, err := app.sessionRepo.CountActiveSessions(ctx); err != nil {
		return err
	}

	if app.redis != nil {
		if err := app.redis.Health(ctx); err != nil {
			return err
		}
	}

	return nil
}

// startConnectorMonitor starts the VPC poll loop and the background
// stats publisher
func (app *application) startConnectorMonitor() {
	ctx, cancel := context.WithCancel(context.Background())
	app.stopBackground = cancel

	if app.vpcMonitor != nil {
		app.vpcMonitor.Start(ctx)
	}

	go app.publishStats(ctx)
}

// publishStats periodically snapshots monitor state into the cache and
// refreshes pool gauges
func (app *application) publishStats(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if app.db != nil {
			stats := app.db.Stats()
			app.metrics.UpdateDatabaseConnections(stats.OpenConnections, stats.Idle, stats.MaxOpenConnections)
		}
		if app.redis != nil {
			pool := app.redis.Stats()
			app.metrics.UpdateRedisConnections(int(pool.TotalConns), int(pool.IdleConns), int(pool.StaleConns))
		}

		if app.statsCache == nil {
			continue
		}
		for env, stats := range app.connMonitor.AllStats() {
			if err := app.statsCache.SetConnectionStats(ctx, env, stats); err != nil {
				app.logger.Debug("Failed to cache connection stats", "error", err.Error())
			}
		}
		if app.vpcMonitor != nil {
			if err := app.statsCache.SetConnectorSnapshot(ctx, app.vpcMonitor.Snapshot()); err != nil {
				app.logger.Debug("Failed to cache connector snapshot", "error", err.Error())
			}
		}
	}
}

// serve runs the HTTP server until SIGINT or SIGTERM
func (app *application) serve(state *startup.AppState) error {
	healthService := health.NewService(app.logger, health.DefaultConfig())
	healthService.RegisterChecker("database", health.NewDatabaseChecker(app.db, "database"))
	if app.redis != nil {
		healthService.RegisterChecker("redis", health.NewRedisChecker(app.redis, "redis"))
	}

	var counter api.SessionCounter
	if app.statsCache != nil {
		counter = app.statsCache
	}

	// No repository means the services phase failed; the session API
	// stays unmounted and monitoring tells the operator why
	var sessions *api.SessionHandler
	if app.sessionRepo != nil {
		sessions = api.NewSessionHandler(app.sessionRepo, counter, app.metrics, app.cfg.Environment)
	}

	router := api.NewRouter(api.RouterConfig{
		Config:        app.cfg,
		Logger:        app.logger,
		Metrics:       app.metrics,
		HealthService: healthService,
		State:         state,
		Sessions:      sessions,
		Monitoring:    api.NewMonitoringHandler(app.connMonitor, app.vpcMonitor, state, app.report),
		Costs:         api.NewCostHandler(costs.NewAnalyzer(), app.connMonitor, app.db, app.cfg.Environment),
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", app.cfg.Server.Host, app.cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  app.cfg.Server.ReadTimeout,
		WriteTimeout: app.cfg.Server.WriteTimeout,
		IdleTimeout:  app.cfg.Server.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		app.logger.Info("HTTP server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-quit:
		app.logger.Info("Shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return server.Shutdown(shutdownCtx)
}

// shutdown releases subsystems in reverse startup order
func (app *application) shutdown() {
	if app.stopBackground != nil {
		app.stopBackground()
	}
	if app.vpcMonitor != nil {
		app.vpcMonitor.Stop()
	}
	if app.redis != nil {
		if err := app.redis.Close(); err != nil {
			app.logger.Warn("Failed to close Redis", "error", err.Error())
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Warn("Failed to close database", "error", err.Error())
		}
	}
}

// poolMetricsSource derives connector observations from the local pool
// when no cloud monitoring API is configured. Utilization follows pool
// saturation; latency follows the rolling average connection time.
type poolMetricsSource struct {
	app *application
}

func (s *poolMetricsSource) Fetch(ctx context.Context) (vpcmon.ConnectorMetrics, error) {
	observation := vpcmon.ConnectorMetrics{Timestamp: time.Now()}
	if s.app.db == nil {
		return observation, nil
	}

	stats := s.app.db.Stats()
	observation.Instances = stats.OpenConnections
	observation.MaxInstances = stats.MaxOpenConnections
	if stats.MaxOpenConnections > 0 {
		observation.Utilization = float64(stats.OpenConnections) / float64(stats.MaxOpenConnections)
	}
	if conn, ok := s.app.connMonitor.StatsFor(s.app.cfg.Environment); ok {
		observation.Latency = conn.AvgDuration
	}

	return observation, nil
}

func migrationsPath() string {
	if path := os.Getenv("MIGRATIONS_PATH"); path != "" {
		return path
	}
	return "migrations"
}

// version is stamped at build time via -ldflags
var buildVersion = "dev"

func version() string {
	return buildVersion
}
