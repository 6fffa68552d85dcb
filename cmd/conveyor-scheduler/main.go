// Conveyor scheduler — демон, запускающий пайплайны по расписанию.
//
// Триггеры объявляются в JSON-файле (TRIGGERS_FILE) и отправляются
// через HTTP API сервера. При заданном DB_URL несколько экземпляров
// демона договариваются о лидерстве через advisory lock Postgres:
// тикает только лидер, остальные ждут его падения.
//
// Конфигурация через окружение:
//
//	TRIGGERS_FILE  файл деклараций триггеров (default: triggers.json)
//	API_URL        адрес conveyor-server (default: http://localhost:8080)
//	DB_URL         DSN Postgres для leader election; пусто — без выборов
//	SCHED_PORT     порт /healthz и /metrics (default: 8081)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ravskel/conveyor/internal/cli"
	"github.com/ravskel/conveyor/internal/domain"
	"github.com/ravskel/conveyor/internal/scheduler"
	"github.com/ravskel/conveyor/internal/state"
	"github.com/ravskel/conveyor/internal/telemetry"
)

// schedLockKey — ключ advisory lock лидера.
const schedLockKey int64 = 424242

func main() {
	logger := telemetry.SetupLogger("conveyor-scheduler")
	logger.Info("starting conveyor-scheduler")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	triggersFile := os.Getenv("TRIGGERS_FILE")
	if triggersFile == "" {
		triggersFile = "triggers.json"
	}
	triggers, err := scheduler.LoadTriggers(triggersFile)
	if err != nil {
		logger.Error("failed to load triggers", "file", triggersFile, "error", err)
		os.Exit(1)
	}

	apiURL := os.Getenv("API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}

	sched, err := scheduler.New(scheduler.Config{
		Submitter: &apiSubmitter{client: cli.NewClient(apiURL)},
		Triggers:  triggers,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	// Leader election: при нескольких экземплярах тикает только тот,
	// кто держит advisory lock.
	var pool *pgxpool.Pool
	if os.Getenv("DB_URL") != "" {
		pool, err = state.NewPool(ctx)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		logger.Info("leader election enabled")
	}

	go tickLoop(ctx, sched, pool, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":8081"
	if v := os.Getenv("SCHED_PORT"); v != "" {
		addr = ":" + v
	}

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("listening", "addr", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	logger.Info("stopped")
}

// tickLoop тикает планировщик раз в секунду, удерживая лидерство,
// если оно включено.
func tickLoop(ctx context.Context, sched *scheduler.Scheduler, pool *pgxpool.Pool, logger *slog.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var hasLock bool
	defer func() {
		if hasLock && pool != nil {
			_, _ = pool.Exec(context.Background(), "select pg_advisory_unlock($1)", schedLockKey)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if pool != nil && !hasLock {
				if err := pool.QueryRow(ctx, "select pg_try_advisory_lock($1)", schedLockKey).Scan(&hasLock); err != nil {
					logger.Warn("leader lock attempt failed", "error", err)
					continue
				}
			}
			if pool != nil && !hasLock {
				continue
			}
			sched.Tick(ctx)
		}
	}
}

// apiSubmitter отправляет пайплайны через HTTP API сервера.
type apiSubmitter struct {
	client *cli.Client
}

// Submit реализует scheduler.Submitter.
func (s *apiSubmitter) Submit(_ context.Context, spec *domain.PipelineSpec) (uuid.UUID, error) {
	raw, err := json.Marshal(spec)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode pipeline spec: %w", err)
	}

	resp, err := s.client.SubmitRun(raw)
	if err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(resp.RunID)
}
