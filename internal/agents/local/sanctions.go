package local

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"kycflow/internal/agents"
	"kycflow/internal/cases/models"
)

// WatchlistEntry is one listed person.
type WatchlistEntry struct {
	Name    string   `yaml:"name"`
	Aliases []string `yaml:"aliases"`
	List    string   `yaml:"list"`
	PEP     bool     `yaml:"pep"`
	Reason  string   `yaml:"reason"`
}

type watchlistFile struct {
	Entries []WatchlistEntry `yaml:"watchlist"`
}

// ParseWatchlist reads a YAML document with a top-level "watchlist" sequence.
func ParseWatchlist(data []byte) ([]WatchlistEntry, error) {
	var f watchlistFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse watchlist: %w", err)
	}
	for i, e := range f.Entries {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("watchlist entry %d: name is required", i)
		}
	}
	return f.Entries, nil
}

// LoadWatchlist reads and parses a watchlist file.
func LoadWatchlist(path string) ([]WatchlistEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read watchlist: %w", err)
	}
	return ParseWatchlist(data)
}

// NewSanctionsAgent screens the customer name against entries. Entries flagged
// pep report a PEP match; all others are sanction hits.
func NewSanctionsAgent(entries []WatchlistEntry) agents.Agent {
	index := make(map[string]WatchlistEntry)
	for _, e := range entries {
		index[nameKey(e.Name)] = e
		for _, a := range e.Aliases {
			index[nameKey(a)] = e
		}
	}
	return &base{
		id:        "local-sanctions",
		agentType: models.AgentSanctionScreening,
		handle: func(_ context.Context, req agents.CaseRequest) (any, error) {
			resp := agents.SanctionScreeningResponse{}
			e, ok := index[nameKey(req.Customer.Name)]
			if !ok {
				return resp, nil
			}
			resp.Matches = []agents.WatchlistMatch{{
				Name:   e.Name,
				List:   e.List,
				Score:  100,
				IsPEP:  e.PEP,
				Reason: e.Reason,
			}}
			if e.PEP {
				resp.PEPMatch = true
			} else {
				resp.SanctionHit = true
			}
			return resp, nil
		},
	}
}

// nameKey makes matching insensitive to case, spacing and token order.
func nameKey(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	for i, f := range fields {
		fields[i] = strings.Trim(f, ".,'-")
	}
	slices.Sort(fields)
	return strings.Join(fields, " ")
}
