package admin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cloo-solutions/botstudio/internal/queue"
	"github.com/spf13/cobra"
)

// WorkerCmd returns the worker command
func WorkerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the background task worker",
		Long:  "Consume generation and crawl tasks from the Redis-backed queue",
		RunE:  runWorker,
	}

	cmd.Flags().IntP("concurrency", "c", 0, "Number of tasks processed in parallel (overrides BOTSTUDIO_WORKER_CONCURRENCY)")

	return cmd
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := loadEnv(ctx)
	if err != nil {
		return err
	}
	defer e.Close()
	cfg, log := e.cfg, e.log

	if !cfg.HasRedis() {
		return errors.New("the worker needs a task queue: set BOTSTUDIO_REDIS_ADDR")
	}
	if n, _ := cmd.Flags().GetInt("concurrency"); n > 0 {
		cfg.WorkerConcurrency = n
	}

	shutdownTelemetry := initTelemetry(cfg, log)
	defer shutdownTelemetry()

	a, err := newApp(ctx, cfg, log, e.pool)
	if err != nil {
		return err
	}
	defer a.Close()

	taskHandlers := queue.Handlers{Generation: a.generation, Crawl: a.knowledge, Log: log}
	if a.llm == nil {
		log.Warn("OpenAI is not configured: generation tasks will fail")
	}

	srv := queue.NewServer(queue.ServerConfig{
		Redis:       queue.RedisConfig{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB},
		Concurrency: cfg.WorkerConcurrency,
	}, log)

	if err := srv.Start(queue.NewServeMux(taskHandlers)); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}
	log.WithField("concurrency", cfg.WorkerConcurrency).Info("worker started")

	<-ctx.Done()
	log.Info("shutting down worker")
	srv.Shutdown()
	return nil
}
