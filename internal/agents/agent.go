// Package agents is the uniform call contract to external specialised
// capabilities (document validation, risk scoring, sanction screening,
// compliance checks). The Gateway wraps every call with a timeout, at most one
// retry on transient failure, a circuit breaker and response normalisation.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"kycflow/internal/cases/models"
)

// Agent is the universal interface for an external capability.
type Agent interface {
	// ID identifies the agent instance (e.g. "risk-llm-v2").
	ID() string
	// Type is the stage kind this agent serves.
	Type() models.AgentType
	// Invoke sends payload and returns the raw structured answer.
	Invoke(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
	// Health checks the agent is reachable.
	Health(ctx context.Context) error
}

// Registry maps stage kinds to agents. One agent per type.
type Registry struct {
	mu     sync.RWMutex
	agents map[models.AgentType]Agent
}

func NewRegistry() *Registry {
	return &Registry{agents: make(map[models.AgentType]Agent)}
}

func (r *Registry) Register(a Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.agents[a.Type()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicate, a.Type())
	}
	r.agents[a.Type()] = a
	return nil
}

func (r *Registry) Get(t models.AgentType) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[t]
	return a, ok
}

// Types lists registered stage kinds in stable order.
func (r *Registry) Types() []models.AgentType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.AgentType, 0, len(r.agents))
	for t := range r.agents {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Health checks every agent and returns failures keyed by type.
func (r *Registry) Health(ctx context.Context) map[models.AgentType]error {
	r.mu.RLock()
	agents := make([]Agent, 0, len(r.agents))
	for _, a := range r.agents {
		agents = append(agents, a)
	}
	r.mu.RUnlock()

	failures := make(map[models.AgentType]error)
	for _, a := range agents {
		if err := a.Health(ctx); err != nil {
			failures[a.Type()] = err
		}
	}
	return failures
}

// FuncAgent adapts a function to the Agent interface.
type FuncAgent struct {
	AgentID   string
	AgentType models.AgentType
	Fn        func(ctx context.Context, payload json.RawMessage) (json.RawMessage, error)
}

func (f *FuncAgent) ID() string             { return f.AgentID }
func (f *FuncAgent) Type() models.AgentType { return f.AgentType }
func (f *FuncAgent) Health(context.Context) error {
	return nil
}

func (f *FuncAgent) Invoke(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	return f.Fn(ctx, payload)
}
