// Conveyor server — HTTP API и оркестратор ETL-пайплайнов в одном
// процессе.
//
// Конфигурация через окружение:
//
//	API_PORT      порт HTTP API (default: 8080)
//	DB_URL        DSN Postgres; пусто — in-memory state store
//	RABBITMQ_URL  URL RabbitMQ; пусто — события не публикуются
//	STAGING_DIR   директория материализации Dataset'ов builtin-коннекторов
//	MAX_WORKERS   размер пула воркеров на run (default: 4)
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ravskel/conveyor/internal/api"
	"github.com/ravskel/conveyor/internal/connector"
	"github.com/ravskel/conveyor/internal/connector/builtin"
	"github.com/ravskel/conveyor/internal/events"
	"github.com/ravskel/conveyor/internal/mq"
	"github.com/ravskel/conveyor/internal/orchestrator"
	"github.com/ravskel/conveyor/internal/state"
	"github.com/ravskel/conveyor/internal/telemetry"
)

var startTime = time.Now()

func main() {
	logger := telemetry.SetupLogger("conveyor-server")
	logger.Info("starting conveyor-server")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// State store: Postgres при заданном DB_URL, иначе in-memory.
	var store state.Store
	if os.Getenv("DB_URL") != "" {
		pool, err := state.NewPool(ctx)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		pg := state.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		store = pg
		logger.Info("connected to database")
	} else {
		logger.Warn("DB_URL not set, using in-memory state store")
		store = state.NewMemoryStore()
	}

	// События: метрики всегда, публикация в RabbitMQ — при наличии.
	sinks := events.Fanout{telemetry.NewMetricsSink()}
	if os.Getenv("RABBITMQ_URL") != "" {
		conn, err := mq.NewConnection(mq.URLFromEnv(), logger)
		if err != nil {
			logger.Warn("rabbitmq unavailable, events will not be published", "error", err)
		} else {
			defer conn.Close()
			if err := mq.SetupTopology(conn); err != nil {
				logger.Error("failed to set up rabbitmq topology", "error", err)
				os.Exit(1)
			}
			sinks = append(sinks, mq.NewPublisher(conn, logger))
			logger.Info("connected to rabbitmq")
		}
	}
	emitter := events.NewEmitter(sinks, logger)

	// Builtin-коннекторы поверх staging-директории.
	staging, err := builtin.NewStaging(os.Getenv("STAGING_DIR"))
	if err != nil {
		logger.Error("failed to create staging dir", "error", err)
		os.Exit(1)
	}
	registry := connector.NewRegistry()
	builtin.Register(registry, staging)

	workers := 0
	if v := os.Getenv("MAX_WORKERS"); v != "" {
		workers, _ = strconv.Atoi(v)
	}

	controller := orchestrator.New(orchestrator.Config{
		Store:      store,
		Registry:   registry,
		Checker:    builtin.NewRulesChecker(),
		Emitter:    emitter,
		Logger:     logger,
		MaxWorkers: workers,
	})

	handler := api.NewHandler(api.Config{
		Controller: controller,
		Logger:     logger,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "ok %s", time.Since(startTime))
	})
	mux.Handle("/metrics", promhttp.Handler())
	handler.RegisterRoutes(mux)

	addr := ":8080"
	if v := os.Getenv("API_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	// Активные runs прерываются; их задачи вернутся в PENDING
	// и будут подхвачены resume после рестарта.
	controller.Stop()

	logger.Info("stopped")
}
