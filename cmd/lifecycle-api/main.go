package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"github.com/tasklife/project/internal/app/publisher"
	"github.com/tasklife/project/internal/app/query"
	"github.com/tasklife/project/internal/app/scheduler"
	"github.com/tasklife/project/internal/ledger"
	"github.com/tasklife/project/internal/platform/dbpool"
	"github.com/tasklife/project/internal/platform/env"
	"github.com/tasklife/project/internal/platform/jobrunner"
	"github.com/tasklife/project/internal/platform/metrics"
	"github.com/tasklife/project/internal/platform/natsutil"
)

func main() {
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := env.String("LIFECYCLE_API_ADDR", env.DefaultLifecycleAddr)
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	jobRunnerURL := env.String("JOB_RUNNER_URL", env.DefaultJobRunnerURL)
	callbackURL := env.String("REMINDER_CALLBACK_URL", "http://lifecycle-api:8080/internal/jobs/reminder-trigger")
	shutdownTimeout := env.Duration("SHUTDOWN_TIMEOUT", 10*time.Second)

	pool, err := dbpool.New(runCtx, pgURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	reminderRepo := scheduler.NewPostgresRepository(pool)
	fireGuard := ledger.New(pool, scheduler.ServiceName)
	if err := waitForSchema(runCtx, pool, reminderRepo, fireGuard, 30*time.Second); err != nil {
		log.Fatal(err)
	}

	client, err := natsutil.ConnectJetStreamWithRetry(env.String("NATS_URL", env.DefaultNATSURL), 20*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	busPublisher := natsutil.JetStreamPublisher{JS: client.JS}
	dispatcher := publisher.NewDispatcher(busPublisher.Publish,
		env.Int("PUBLISH_WORKERS", 4), env.Int("PUBLISH_QUEUE_SIZE", 1024))
	defer dispatcher.Stop()
	publishHandler := publisher.NewHandler(publisher.NewService(dispatcher))

	taskReader := query.NewTaskRepository(pool)
	jobs := jobrunner.NewClient(jobRunnerURL, callbackURL)
	schedulerSvc := scheduler.NewService(reminderRepo, taskReader, jobs, busPublisher.Publish, fireGuard)
	schedulerHandler := scheduler.NewHandler(schedulerSvc)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := checkReadiness(r.Context(), pool, client.Conn); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.Handle("/internal/events/tasks", publishHandler.Router())
	mux.Handle("/internal/", schedulerHandler.Router())
	mux.Handle("/api/v1/tasks/", schedulerHandler.Router())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Infof("lifecycle API listening on %s", addr)
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		log.Fatal(err)
	case <-runCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("lifecycle API graceful shutdown failed: %v", err)
	}
}

func waitForSchema(
	ctx context.Context,
	pool *pgxpool.Pool,
	reminders *scheduler.PostgresRepository,
	guard *ledger.Ledger,
	timeout time.Duration,
) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		if lastErr == nil {
			lastErr = reminders.EnsureSchema(attemptCtx)
		}
		if lastErr == nil {
			lastErr = guard.EnsureSchema(attemptCtx)
		}
		cancel()

		if lastErr == nil {
			return nil
		}
		log.Warnf("waiting for postgres readiness: %v", lastErr)
		time.Sleep(500 * time.Millisecond)
	}
	return lastErr
}

func checkReadiness(ctx context.Context, pool *pgxpool.Pool, conn *nats.Conn) error {
	if conn == nil {
		return errors.New("nats connection is nil")
	}
	if conn.Status() != nats.CONNECTED {
		return fmt.Errorf("nats is not connected: %s", conn.Status().String())
	}

	checkCtx, cancel := context.WithTimeout(ctx, 1500*time.Millisecond)
	defer cancel()
	if err := pool.Ping(checkCtx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}
