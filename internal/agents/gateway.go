package agents

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"kycflow/internal/cases/models"
	"kycflow/pkg/platform/circuit"
)

const tracerName = "kycflow/agents"

// Metrics records agent call outcomes. Implementations must be nil-safe.
type Metrics interface {
	ObserveAgentInvocation(agent models.AgentType, outcome string, duration time.Duration)
}

// Result is a normalised agent answer.
type Result struct {
	AgentID  string
	Payload  json.RawMessage
	Attempts int
	Duration time.Duration
}

// Gateway is the single call path to external agents.
type Gateway struct {
	registry     *Registry
	timeout      time.Duration
	retryBackoff time.Duration
	logger       *slog.Logger
	metrics      Metrics
	tracer       trace.Tracer
	breakerOpts  []circuit.Option

	mu       sync.Mutex
	breakers map[models.AgentType]*circuit.Breaker
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithRetryBackoff sets the pause before the single automatic retry.
func WithRetryBackoff(d time.Duration) GatewayOption {
	return func(g *Gateway) {
		g.retryBackoff = d
	}
}

func WithLogger(logger *slog.Logger) GatewayOption {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithMetrics(m Metrics) GatewayOption {
	return func(g *Gateway) {
		g.metrics = m
	}
}

// WithBreakerOptions configures the per-agent circuit breakers.
func WithBreakerOptions(opts ...circuit.Option) GatewayOption {
	return func(g *Gateway) {
		g.breakerOpts = append(g.breakerOpts, opts...)
	}
}

func NewGateway(registry *Registry, opts ...GatewayOption) *Gateway {
	g := &Gateway{
		registry:     registry,
		timeout:      30 * time.Second,
		retryBackoff: 200 * time.Millisecond,
		logger:       slog.Default(),
		tracer:       otel.Tracer(tracerName),
		breakers:     make(map[models.AgentType]*circuit.Breaker),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Has reports whether an agent is registered for t.
func (g *Gateway) Has(t models.AgentType) bool {
	_, ok := g.registry.Get(t)
	return ok
}

// Invoke calls the agent registered for agentType with payload marshalled as
// JSON. A transient failure is retried exactly once; permanent failures and a
// second transient failure are returned as *AgentError.
func (g *Gateway) Invoke(ctx context.Context, agentType models.AgentType, payload any) (*Result, error) {
	agent, ok := g.registry.Get(agentType)
	if !ok {
		return nil, NewAgentError(ErrorNotConfigured, agentType, "no agent registered", ErrAgentNotFound)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, NewAgentError(ErrorInternal, agentType, "encode payload", err)
	}

	ctx, span := g.tracer.Start(ctx, "agents.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("agent.type", string(agentType)),
			attribute.String("agent.id", agent.ID()),
		),
	)
	defer span.End()

	breaker := g.breaker(agentType)
	if !breaker.Allow() {
		aerr := NewAgentError(ErrorUnavailable, agentType, "circuit open", nil)
		aerr.AgentID = agent.ID()
		span.SetStatus(codes.Error, aerr.Message)
		g.observe(agentType, "circuit_open", 0)
		return nil, aerr
	}

	start := time.Now()
	var lastErr *AgentError
	for attempt := 1; attempt <= 2; attempt++ {
		raw, err := g.attempt(ctx, agent, body)
		if err == nil {
			breaker.RecordSuccess()
			duration := time.Since(start)
			span.SetAttributes(attribute.Int("agent.attempts", attempt))
			g.observe(agentType, "success", duration)
			return &Result{AgentID: agent.ID(), Payload: raw, Attempts: attempt, Duration: duration}, nil
		}

		lastErr = normalize(err, agentType, agent.ID())
		lastErr.Attempts = attempt
		if _, change := breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "agent circuit opened",
				"agent_type", agentType,
				"agent_id", agent.ID(),
			)
		}
		if !lastErr.Retryable || attempt == 2 || ctx.Err() != nil {
			break
		}

		g.logger.InfoContext(ctx, "retrying agent call after transient failure",
			"agent_type", agentType,
			"agent_id", agent.ID(),
			"category", lastErr.Category,
			"error", lastErr.Err,
		)
		if !sleep(ctx, g.retryBackoff) {
			break
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, string(lastErr.Category))
	g.observe(agentType, string(lastErr.Category), time.Since(start))
	return nil, lastErr
}

func (g *Gateway) attempt(ctx context.Context, agent Agent, body json.RawMessage) (json.RawMessage, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := agent.Invoke(callCtx, body)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			return nil, NewAgentError(ErrorTimeout, agent.Type(), "agent call timed out", err)
		}
		return nil, err
	}
	if !json.Valid(raw) || len(raw) == 0 || raw[0] != '{' {
		return nil, NewAgentError(ErrorBadResponse, agent.Type(), "response is not a JSON object", nil)
	}
	return raw, nil
}

func (g *Gateway) breaker(t models.AgentType) *circuit.Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.breakers[t]
	if !ok {
		b = circuit.New(string(t), g.breakerOpts...)
		g.breakers[t] = b
	}
	return b
}

// BreakerState exposes breaker positions for health reporting.
func (g *Gateway) BreakerState() map[models.AgentType]string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[models.AgentType]string, len(g.breakers))
	for t, b := range g.breakers {
		out[t] = b.State().String()
	}
	return out
}

func (g *Gateway) observe(t models.AgentType, outcome string, d time.Duration) {
	if g.metrics != nil {
		g.metrics.ObserveAgentInvocation(t, outcome, d)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
