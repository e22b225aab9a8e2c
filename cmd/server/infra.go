package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"kycflow/internal/cases/lock"
	"kycflow/internal/cases/service"
	casestore "kycflow/internal/cases/store/cases"
	docstore "kycflow/internal/cases/store/document"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/kafka"
	"kycflow/internal/platform/postgres"
	"kycflow/internal/platform/redis"
	audit "kycflow/pkg/platform/audit"
	auditmemory "kycflow/pkg/platform/audit/store/memory"
	auditpostgres "kycflow/pkg/platform/audit/store/postgres"
	"kycflow/pkg/platform/tx"
)

// infra holds the storage, lock and messaging backends selected by config.
// Unset URLs fall back to in-process implementations.
type infra struct {
	db     *sql.DB
	redis  *redis.Client
	kafka  *kafka.Producer
	outbox *auditpostgres.Outbox

	cases     service.CaseStore
	documents service.DocumentStore
	audit     audit.Store
	tx        tx.Runner
	locker    lock.Locker
}

func openInfra(ctx context.Context, cfg config.Server, logger *slog.Logger) (*infra, error) {
	in := &infra{}

	if cfg.Postgres.URL != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		in.db = db
		if err := postgres.Migrate(ctx, db); err != nil {
			in.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		in.cases = casestore.NewPostgres(db)
		in.documents = docstore.NewPostgres(db)
		in.audit = auditpostgres.New(db)
		in.outbox = auditpostgres.NewOutbox(db)
		in.tx = tx.NewPostgres(db)
		logger.InfoContext(ctx, "using postgres stores")
	} else {
		in.cases = casestore.NewInMemory()
		in.documents = docstore.NewInMemory()
		in.audit = auditmemory.NewInMemoryStore()
		in.tx = tx.NewMemory()
		logger.WarnContext(ctx, "DATABASE_URL not set, using in-memory stores")
	}

	rc, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}
	if rc != nil {
		in.redis = rc
		in.locker = lock.NewRedis(rc.Client, lock.WithTTL(cfg.Redis.LockTTL), lock.WithLogger(logger))
		logger.InfoContext(ctx, "using redis case lock")
	} else {
		in.locker = lock.NewMemory()
	}

	producer, err := kafka.New(cfg.Kafka, logger)
	if err != nil {
		in.Close()
		return nil, err
	}
	if producer != nil {
		in.kafka = producer
		if err := producer.EnsureTopics(ctx, cfg.Kafka.AuditTopic, cfg.Kafka.NotificationTopic); err != nil {
			logger.WarnContext(ctx, "kafka topic bootstrap failed", "error", err)
		}
	}
	return in, nil
}

// checks returns the named health probes for configured backends.
func (in *infra) checks() map[string]func(context.Context) error {
	out := map[string]func(context.Context) error{}
	if in.db != nil {
		out["postgres"] = in.db.PingContext
	}
	if in.redis != nil {
		out["redis"] = in.redis.Health
	}
	if in.kafka != nil {
		out["kafka"] = in.kafka.Health
	}
	return out
}

func (in *infra) Close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.db != nil {
		_ = in.db.Close()
	}
}
