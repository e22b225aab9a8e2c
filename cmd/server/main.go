package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"kycflow/internal/agents"
	"kycflow/internal/cases/handler"
	casemetrics "kycflow/internal/cases/metrics"
	"kycflow/internal/cases/models"
	"kycflow/internal/cases/pipeline"
	"kycflow/internal/cases/service"
	jwttoken "kycflow/internal/jwt_token"
	"kycflow/internal/notify"
	"kycflow/internal/platform/config"
	"kycflow/internal/platform/httpserver"
	"kycflow/internal/platform/logger"
	"kycflow/internal/platform/metrics"
	"kycflow/internal/validation"
	"kycflow/pkg/platform/audit/recorder"
	"kycflow/pkg/platform/audit/worker"
	"kycflow/pkg/platform/httputil"
	"kycflow/pkg/platform/middleware/admin"
	"kycflow/pkg/platform/middleware/auth"
	"kycflow/pkg/platform/middleware/metadata"
	"kycflow/pkg/platform/middleware/requesttime"
	"kycflow/pkg/requestcontext"
)

const shutdownTimeout = 10 * time.Second

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal packages.
func main() {
	if err := run(); err != nil {
		slog.Error("kycflow exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, err := openInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.Close()

	caseMetrics := casemetrics.New(prometheus.DefaultRegisterer)
	httpMetrics := metrics.New(prometheus.DefaultRegisterer)

	registry, err := buildRegistry(cfg.Agents, log)
	if err != nil {
		return err
	}
	gateway := agents.NewGateway(registry,
		agents.WithTimeout(cfg.Pipeline.StageTimeout),
		agents.WithRetryBackoff(cfg.Pipeline.RetryBackoff),
		agents.WithLogger(log),
		agents.WithMetrics(caseMetrics),
	)

	validatorOpts := []validation.Option{
		validation.WithLogger(log),
		validation.WithMetrics(caseMetrics),
		validation.WithConcurrency(cfg.Pipeline.ValidationConcurrency),
	}
	if gateway.Has(models.AgentDocumentValidation) {
		validatorOpts = append(validatorOpts, validation.WithPrimary(validation.NewAgentComparator(gateway)))
	}
	validator := validation.New(validation.NewRuleComparator(cfg.Pipeline.FallbackCeiling), validatorOpts...)

	var sender notify.Sender = notify.NewLogSender(log)
	if in.kafka != nil {
		sender = notify.NewKafkaSender(in.kafka, cfg.Kafka.NotificationTopic)
	}
	notifier := notify.New(sender,
		notify.WithLogger(log),
		notify.WithMetrics(caseMetrics),
		notify.WithCompanyName(cfg.Notify.CompanyName),
	)

	rec := recorder.New(in.audit, recorder.WithLogger(log), recorder.WithMetrics(recorder.NewMetrics()))

	levels, err := screeningLevels(cfg.Pipeline.SanctionScreeningLevels)
	if err != nil {
		return err
	}
	coordinator, err := pipeline.New(in.cases, in.documents, gateway, validator, in.locker, rec,
		pipeline.WithLogger(log),
		pipeline.WithMetrics(caseMetrics),
		pipeline.WithTx(in.tx),
		pipeline.WithNotifier(notifier),
		pipeline.WithScreeningLevels(levels...),
		pipeline.WithRejectBelow(cfg.Pipeline.ValidationRejectBelow),
	)
	if err != nil {
		return err
	}

	svc, err := service.New(in.cases, in.documents, validator, coordinator, in.locker, rec,
		service.WithLogger(log),
		service.WithMetrics(caseMetrics),
		service.WithTx(in.tx),
		service.WithNotifier(notifier),
		service.WithAutoAdvance(cfg.Pipeline.AutoAdvance),
	)
	if err != nil {
		return err
	}

	checks := in.checks()
	for _, t := range registry.Types() {
		a, _ := registry.Get(t)
		checks["agent:"+string(t)] = a.Health
	}

	router := newRouter(cfg, log, handler.New(svc, log), healthHandler(httpMetrics, checks, gateway.BreakerState), httpMetrics)
	srv := httpserver.New(cfg.Addr, router, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(gctx, "starting kycflow", "addr", cfg.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	if in.outbox != nil && in.kafka != nil {
		relay := worker.NewWorker(in.outbox, in.kafka, cfg.Kafka.AuditTopic,
			worker.WithPollInterval(cfg.Kafka.OutboxPollInterval),
			worker.WithLogger(log),
		)
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newRouter(cfg config.Server, log *slog.Logger, h *handler.Handler, health http.HandlerFunc, m *metrics.Metrics) http.Handler {
	r := chi.NewRouter()
	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(middleware.Recoverer)
	r.Use(m.Middleware)

	r.Get("/health", health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(h.RegisterPortal)
		r.Group(func(r chi.Router) {
			if cfg.Auth.Disabled {
				log.Warn("staff authentication disabled", "actor", cfg.Auth.DevActor)
				r.Use(devActor(cfg.Auth.DevActor))
			} else {
				jwt := jwttoken.NewJWTService(cfg.Auth.JWTSigningKey, cfg.Auth.Issuer, cfg.Auth.Audience)
				r.Use(auth.RequireAuth(jwt.Validator(), log))
			}
			if len(cfg.Auth.StaffRoles) > 0 {
				r.Use(admin.RequireRole(log, cfg.Auth.StaffRoles...))
			}
			h.RegisterStaff(r)
		})
	})
	return r
}

func devActor(actor string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := requestcontext.WithActor(r.Context(), actor, "reviewer")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type healthResponse struct {
	Status       string                      `json:"status"`
	Dependencies map[string]string           `json:"dependencies"`
	Breakers     map[models.AgentType]string `json:"agent_breakers,omitempty"`
}

// healthHandler probes every dependency and answers 503 when any is down.
// Agent breaker positions are reported without affecting the status.
func healthHandler(m *metrics.Metrics, checks map[string]func(context.Context) error, breakers func() map[models.AgentType]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		res := healthResponse{Status: "ok", Dependencies: map[string]string{}}
		for name, check := range checks {
			up := check(ctx) == nil
			m.SetDependencyUp(name, up)
			if up {
				res.Dependencies[name] = "up"
				continue
			}
			res.Dependencies[name] = "down"
			res.Status = "degraded"
		}
		if breakers != nil {
			res.Breakers = breakers()
		}
		status := http.StatusOK
		if res.Status != "ok" {
			status = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, status, res)
	}
}

func screeningLevels(values []string) ([]models.RiskLevel, error) {
	out := make([]models.RiskLevel, 0, len(values))
	for _, v := range values {
		l, err := models.ParseRiskLevel(v)
		if err != nil {
			return nil, fmt.Errorf("SANCTION_SCREENING_LEVELS: %w", err)
		}
		out = append(out, l)
	}
	return out, nil
}
