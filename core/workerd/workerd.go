package workerd

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/workbridge-io/workbridge/core/credentials"
	"github.com/workbridge-io/workbridge/core/infra/config"
	"github.com/workbridge-io/workbridge/core/infra/logging"
	"github.com/workbridge-io/workbridge/core/infra/metrics"
	"github.com/workbridge-io/workbridge/core/infra/redisutil"
	"github.com/workbridge-io/workbridge/core/mapping"
	"github.com/workbridge-io/workbridge/core/queue"
	"github.com/workbridge-io/workbridge/core/registry"
	"github.com/workbridge-io/workbridge/core/worker"
	"github.com/workbridge-io/workbridge/core/workflow"
)

const (
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 5 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 3 * time.Second
)

// Run starts one worker process: queue poll loop, workflow engine, and
// the health/metrics HTTP endpoint. Blocks until SIGINT/SIGTERM, then
// drains in-flight jobs.
func Run(cfg *config.Config, reg *registry.Registry) error {
	if cfg == nil {
		cfg = config.Load()
	}
	if reg == nil {
		reg = registry.New()
	}

	workerCfg, err := config.LoadWorkerConfig(cfg.WorkerConfigPath)
	if err != nil {
		return fmt.Errorf("load worker config: %w", err)
	}
	// Env overrides win over the YAML file.
	if cfg.Concurrency > 0 {
		workerCfg.Concurrency = cfg.Concurrency
	}
	if cfg.PollInterval > 0 {
		workerCfg.PollInterval = cfg.PollInterval
	}

	client, err := redisutil.Connect(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer client.Close()

	prom := metrics.NewProm("workbridge")

	store := workflow.NewRedisStoreWithClient(client)
	creds := credentials.New(client)
	executor := workflow.NewStepExecutor(reg, creds, mapping.NewEngine(), store, prom)
	engine := workflow.NewEngine(store, executor, prom)

	q := queue.New(client, cfg.QueueName,
		queue.WithLease(workerCfg.Lease),
		queue.WithMaxRetries(workerCfg.MaxRetries),
		queue.WithMetrics(prom),
	)

	w := worker.New(q, engine, prom, worker.Config{
		Concurrency:     workerCfg.Concurrency,
		PollInterval:    workerCfg.PollInterval,
		ReclaimInterval: workerCfg.ReclaimInterval,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := startHTTPServer(cfg.HTTPAddr)
	logging.Info("WORKERD", "started",
		"http", cfg.HTTPAddr, "queue", cfg.QueueName,
		"concurrency", workerCfg.Concurrency, "poll_interval", workerCfg.PollInterval.String())

	err = w.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	logging.Info("WORKERD", "stopped")
	return err
}

func startHTTPServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("WORKERD", "http server error", "error", err)
		}
	}()
	return srv
}
