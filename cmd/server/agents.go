package main

import (
	"fmt"
	"log/slog"
	"slices"

	"kycflow/internal/agents"
	"kycflow/internal/agents/httpagent"
	"kycflow/internal/agents/local"
	"kycflow/internal/cases/models"
	"kycflow/internal/platform/config"
)

// buildRegistry registers one agent per stage. Configured endpoints win;
// risk, compliance and sanction stages otherwise run in-process. Document
// validation has no local agent and falls back to the rule comparator.
func buildRegistry(cfg config.AgentsConfig, logger *slog.Logger) (*agents.Registry, error) {
	reg := agents.NewRegistry()

	for _, ep := range cfg.Endpoints {
		t := models.AgentType(ep.Type)
		if !slices.Contains(models.StageOrder, t) || t == models.AgentDecisionSynthesis {
			return nil, fmt.Errorf("agent %s: unsupported type %q", ep.ID, ep.Type)
		}
		var opts []httpagent.Option
		if ep.Token != "" {
			opts = append(opts, httpagent.WithBearerToken(ep.Token))
		}
		if ep.HealthURL != "" {
			opts = append(opts, httpagent.WithHealthURL(ep.HealthURL))
		}
		if err := reg.Register(httpagent.New(ep.ID, t, ep.URL, opts...)); err != nil {
			return nil, err
		}
		logger.Info("remote agent registered", "agent", t, "id", ep.ID, "url", ep.URL)
	}

	var watchlist []local.WatchlistEntry
	if cfg.WatchlistFile != "" {
		entries, err := local.LoadWatchlist(cfg.WatchlistFile)
		if err != nil {
			return nil, err
		}
		watchlist = entries
	}

	fallbacks := []agents.Agent{
		local.NewRiskAgent(),
		local.NewComplianceAgent(),
		local.NewSanctionsAgent(watchlist),
	}
	for _, a := range fallbacks {
		if _, ok := reg.Get(a.Type()); ok {
			continue
		}
		if err := reg.Register(a); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
