package admin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloo-solutions/botstudio/internal/api/handlers"
	"github.com/cloo-solutions/botstudio/internal/config"
	"github.com/cloo-solutions/botstudio/internal/database"
	"github.com/cloo-solutions/botstudio/internal/domain"
	"github.com/cloo-solutions/botstudio/internal/jobs"
	"github.com/cloo-solutions/botstudio/internal/scheduler"
	"github.com/cloo-solutions/botstudio/internal/server"
	"github.com/cloo-solutions/botstudio/internal/service"
	"github.com/cloo-solutions/botstudio/internal/telemetry"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const (
	indexPollInterval = 10 * time.Second
	relayPollInterval = 30 * time.Second
	relayGrace        = time.Minute
	generationTimeout = time.Hour
	limiterIdle       = 30 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the botstudio API server together with the indexing worker, the generation relay and the maintenance scheduler",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (overrides BOTSTUDIO_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	cfg, log := e.cfg, e.log

	if port, _ := cmd.Flags().GetString("port"); port != "" {
		cfg.Port = port
	}

	shutdownTelemetry := initTelemetry(cfg, log)
	defer shutdownTelemetry()

	if noMigrate, _ := cmd.Flags().GetBool("no-migrate"); !noMigrate {
		if err := database.Migrate(cfg.DatabaseURL, cfg.MigrationsDir, log); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	a, err := newApp(ctx, cfg, log, e.pool)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.billing.SeedPlans(ctx); err != nil {
		return fmt.Errorf("failed to seed plans: %w", err)
	}
	if cfg.InitWorkspaceName != "" {
		if err := bootstrapWorkspace(ctx, cfg, a, log); err != nil {
			return fmt.Errorf("failed to bootstrap workspace: %w", err)
		}
	}

	workers := startBackground(ctx, a, log)

	sched := scheduler.New(log)
	if err := scheduler.RegisterMaintenance(sched, scheduler.MaintenanceConfig{
		Billing:               a.billing,
		Notifications:         a.notifications,
		Generations:           a.generation,
		NotificationRetention: cfg.NotificationRetention(),
		GenerationTimeout:     generationTimeout,
	}); err != nil {
		return fmt.Errorf("failed to schedule maintenance: %w", err)
	}
	sched.Start()

	router := server.NewRouter(server.RouterConfig{
		AuthValidator: a.auth,
		Log:           log,
		Metrics:       a.metrics,
		Health:        e.pool.Ping,

		WorkspaceHandler:    handlers.NewWorkspaceHandler(a.workspaces),
		APIKeyHandler:       handlers.NewAPIKeyHandler(a.auth),
		BotHandler:          handlers.NewBotHandler(a.bots),
		WidgetHandler:       handlers.NewWidgetHandler(a.widgets),
		KnowledgeHandler:    handlers.NewKnowledgeHandler(a.knowledge),
		CatalogHandler:      handlers.NewCatalogHandler(a.catalog),
		GenerationHandler:   handlers.NewGenerationHandler(a.generation),
		NotificationHandler: handlers.NewNotificationHandler(a.notifications, a.hub, log),
		BillingHandler:      handlers.NewBillingHandler(a.billing),
		ChatHandler:         handlers.NewChatHandler(a.chat),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("port", cfg.Port).Info("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	sched.Stop(shutdownCtx)
	for _, w := range workers {
		w.Stop()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info("server exited")
	return nil
}

// startBackground launches the in-process workers of the API server.
func startBackground(ctx context.Context, a *app, log logrus.FieldLogger) []*jobs.Worker {
	var workers []*jobs.Worker

	if a.indexing != nil {
		w := jobs.NewWorker("indexing", jobs.NewIndexWorker(a.indexJobs, a.indexing, log), indexPollInterval, log)
		go w.Start(ctx)
		workers = append(workers, w)
		log.Info("indexing worker started")
	} else {
		log.Warn("OpenAI is not configured: documents will not be indexed and search is disabled")
	}

	if a.queue != nil {
		w := jobs.NewWorker("generation_relay", jobs.NewGenerationRelay(a.generation, relayGrace, log), relayPollInterval, log)
		go w.Start(ctx)
		workers = append(workers, w)
	} else {
		log.Warn("Redis is not configured: generation jobs stay pending and crawling is disabled")
	}

	if a.bus != nil {
		go func() {
			if err := a.bus.Run(ctx, a.hub); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("notification bus stopped")
			}
		}()
	}

	a.limiter.StartCleanup(ctx, time.Minute, limiterIdle)
	return workers
}

func initTelemetry(cfg *config.Config, log logrus.FieldLogger) func() {
	if cfg.SentryDSN == "" {
		return func() {}
	}

	// 10% of transactions in production, all of them elsewhere
	sampleRate := 1.0
	if cfg.Environment == "production" {
		sampleRate = 0.1
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		TracesSampleRate: sampleRate,
		Debug:            cfg.Debug,
	}, log)
	if err != nil {
		log.WithError(err).Warn("telemetry init failed, continuing without tracing")
		return func() {}
	}
	return shutdown
}

// bootstrapWorkspace creates the configured initial workspace and API key once.
func bootstrapWorkspace(ctx context.Context, cfg *config.Config, a *app, log logrus.FieldLogger) error {
	if cfg.InitOwnerID == "" {
		return errors.New("BOTSTUDIO_INIT_OWNER_ID is required with BOTSTUDIO_INIT_WORKSPACE_NAME")
	}
	log = log.WithField("component", "bootstrap")

	var ws *domain.Workspace
	existing, err := a.workspaces.ListWorkspacesForUser(ctx, cfg.InitOwnerID)
	if err != nil {
		return err
	}
	for _, w := range existing {
		if w.Name == cfg.InitWorkspaceName {
			ws = w
			break
		}
	}

	if ws == nil {
		ws, err = a.workspaces.CreateWorkspace(ctx, cfg.InitWorkspaceName, cfg.InitOwnerID)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{"workspace_id": ws.ID, "slug": ws.Slug}).Info("created workspace")
	} else {
		log.WithField("workspace_id", ws.ID).Info("workspace already exists")
	}

	if cfg.InitAPIKey == "" {
		return nil
	}
	if !service.IsValidAPIToken(cfg.InitAPIKey) {
		return errors.New("invalid BOTSTUDIO_INIT_API_KEY format (expected bst_<64 hex chars>)")
	}

	p, err := a.auth.ValidateAPIKey(ctx, cfg.InitAPIKey)
	switch {
	case err == nil:
		if p.WorkspaceID != ws.ID {
			return fmt.Errorf("BOTSTUDIO_INIT_API_KEY belongs to another workspace (%s)", p.WorkspaceID)
		}
		log.Info("api key already exists")
		return nil
	case !errors.Is(err, domain.ErrInvalidAPIKey):
		return err
	}

	if err := a.auth.CreateAPIKeyWithToken(ctx, ws.ID, cfg.InitOwnerID, "bootstrap", cfg.InitAPIKey); err != nil {
		return err
	}
	log.Info("created api key")
	return nil
}
