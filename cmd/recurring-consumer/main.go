package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"github.com/tasklife/project/internal/app/recurring"
	"github.com/tasklife/project/internal/contracts"
	"github.com/tasklife/project/internal/ledger"
	"github.com/tasklife/project/internal/platform/dbpool"
	"github.com/tasklife/project/internal/platform/env"
	"github.com/tasklife/project/internal/platform/metrics"
	"github.com/tasklife/project/internal/platform/natsutil"
	"github.com/tasklife/project/internal/sharding"
	"github.com/tasklife/project/internal/taskgateway"
)

func main() {
	ctx := context.Background()

	natsURL := env.String("NATS_URL", env.DefaultNATSURL)
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	taskAPIURL := env.String("TASK_API_URL", env.DefaultTaskAPIURL)
	metricsAddr := env.String("METRICS_ADDR", ":9091")

	pool, err := dbpool.New(ctx, pgURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	guard := ledger.New(pool, recurring.ServiceName)
	if err := waitForPostgres(ctx, pool, guard, 30*time.Second); err != nil {
		log.Fatal(err)
	}
	service := recurring.NewService(guard, taskgateway.NewClient(taskAPIURL))

	client, err := natsutil.ConnectJetStreamWithRetry(natsURL, 20*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	filter := sharding.TopicFilter(contracts.TopicTaskEvents)
	sub, err := client.JS.QueueSubscribe(filter, recurring.ServiceName, func(msg *nats.Msg) {
		handleCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
		defer cancel()
		if err := service.Handle(handleCtx, msg.Data); err != nil {
			if errors.Is(err, recurring.ErrInvalidEventPayload) {
				log.Warnf("discarding invalid event payload: %v", err)
				_ = msg.Term()
				return
			}
			if errors.Is(err, recurring.ErrUnsupportedEventType) {
				log.Warnf("discarding unsupported event type: %v", err)
				_ = msg.Term()
				return
			}
			log.Errorf("recurring handling failed: %v", err)
			_ = msg.Nak()
			return
		}

		_ = msg.Ack()
	}, nats.ManualAck())
	if err != nil {
		log.Fatal(err)
	}

	log.Infof("recurring consumer listening on subject: %s", sub.Subject)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	log.Fatal(http.ListenAndServe(metricsAddr, mux))
}

func waitForPostgres(ctx context.Context, pool *pgxpool.Pool, guard *ledger.Ledger, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
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
