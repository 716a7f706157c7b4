package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"
	"github.com/tasklife/project/internal/app/audit"
	"github.com/tasklife/project/internal/contracts"
	"github.com/tasklife/project/internal/ledger"
	"github.com/tasklife/project/internal/platform/dbpool"
	"github.com/tasklife/project/internal/platform/env"
	"github.com/tasklife/project/internal/platform/metrics"
	"github.com/tasklife/project/internal/platform/natsutil"
	"github.com/tasklife/project/internal/sharding"
)

func main() {
	ctx := context.Background()

	natsURL := env.String("NATS_URL", env.DefaultNATSURL)
	pgURL := env.String("DATABASE_URL", env.DefaultDatabaseURL)
	addr := env.String("AUDIT_ADDR", env.DefaultAuditAddr)

	pool, err := dbpool.New(ctx, pgURL)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	repository := audit.NewPostgresRepository(pool)
	guard := ledger.New(pool, audit.ServiceName)
	if err := waitForPostgres(ctx, pool, repository, guard, 30*time.Second); err != nil {
		log.Fatal(err)
	}
	service := audit.NewService(guard, repository)

	client, err := natsutil.ConnectJetStreamWithRetry(natsURL, 20*time.Second)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()

	filter := sharding.TopicFilter(contracts.TopicTaskEvents)
	sub, err := client.JS.QueueSubscribe(filter, audit.ServiceName, func(msg *nats.Msg) {
		handleCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := service.Handle(handleCtx, msg.Data); err != nil {
			if errors.Is(err, audit.ErrInvalidEventPayload) {
				log.Warnf("discarding invalid event payload: %v", err)
				_ = msg.Term()
				return
			}
			if errors.Is(err, audit.ErrUnsupportedEventType) {
				log.Warnf("discarding unsupported event type: %v", err)
				_ = msg.Term()
				return
			}
			log.Errorf("audit append failed: %v", err)
			_ = msg.Nak()
			return
		}

		_ = msg.Ack()
	}, nats.ManualAck())
	if err != nil {
		log.Fatal(err)
	}

	log.Infof("audit consumer listening on subject: %s", sub.Subject)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metrics.DefaultHandler())
	mux.Handle("/api/v1/audit", audit.NewHandler(repository).Router())
	log.Fatal(http.ListenAndServe(addr, mux))
}

func waitForPostgres(
	ctx context.Context,
	pool *pgxpool.Pool,
	repository *audit.PostgresRepository,
	guard *ledger.Ledger,
	timeout time.Duration,
) error {
	deadline := time.Now().Add(timeout)
	var lastErr error
	for time.Now().Before(deadline) {
		attemptCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		lastErr = pool.Ping(attemptCtx)
		if lastErr == nil {
			lastErr = repository.EnsureSchema(attemptCtx)
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
