// Package local provides in-process stage agents so the engine can run with no
// external agent infrastructure. They answer with the same wire contracts as
// remote agents and are registered through the same Registry.
package local

import (
	"context"
	"encoding/json"

	"kycflow/internal/agents"
	"kycflow/internal/cases/models"
)

type handler func(ctx context.Context, req agents.CaseRequest) (any, error)

// base decodes CaseRequest payloads and encodes the handler answer.
type base struct {
	id        string
	agentType models.AgentType
	handle    handler
}

func (b *base) ID() string                   { return b.id }
func (b *base) Type() models.AgentType       { return b.agentType }
func (b *base) Health(context.Context) error { return nil }

func (b *base) Invoke(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var req agents.CaseRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, agents.NewAgentError(agents.ErrorRejected, b.agentType, "decode request", err)
	}
	out, err := b.handle(ctx, req)
	if err != nil {
		return nil, err
	}
	return json.Marshal(out)
}

func documentTypes(docs []agents.DocumentRef) []models.DocumentType {
	out := make([]models.DocumentType, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Type)
	}
	return out
}

func toDocuments(refs []agents.DocumentRef) []*models.Document {
	out := make([]*models.Document, 0, len(refs))
	for _, r := range refs {
		out = append(out, &models.Document{
			Type:             r.Type,
			ValidationStatus: r.ValidationStatus,
			ExtractedData:    r.ExtractedData,
		})
	}
	return out
}
