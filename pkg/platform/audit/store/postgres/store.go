package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "kycflow/pkg/domain"
	audit "kycflow/pkg/platform/audit"
	txcontext "kycflow/pkg/platform/tx"
)

// Store implements audit.Store with the transactional outbox pattern. Each
// Append writes the queryable audit_log row and an outbox row in the same
// transaction as the case mutation; the relay worker publishes the outbox to
// Kafka.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// outboxPayload is the JSON structure published to Kafka.
type outboxPayload struct {
	LogID         string         `json:"log_id"`
	CaseID        string         `json:"case_id"`
	Action        string         `json:"action_type"`
	PerformedBy   string         `json:"performed_by"`
	Timestamp     string         `json:"timestamp"`
	Details       map[string]any `json:"details,omitempty"`
	IPAddress     string         `json:"ip_address,omitempty"`
	ClientContext string         `json:"client_context,omitempty"`
	RequestID     string         `json:"request_id,omitempty"`
}

func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	exec := s.execer(ctx)

	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_log (
			log_id, case_id, action_type, performed_by, timestamp,
			details, ip_address, client_context, request_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.UUID(entry.LogID),
		uuid.UUID(entry.CaseID),
		string(entry.Action),
		entry.PerformedBy,
		entry.Timestamp,
		details,
		entry.IPAddress,
		entry.ClientContext,
		entry.RequestID,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload, err := json.Marshal(outboxPayload{
		LogID:         entry.LogID.String(),
		CaseID:        entry.CaseID.String(),
		Action:        string(entry.Action),
		PerformedBy:   entry.PerformedBy,
		Timestamp:     entry.Timestamp.Format(time.RFC3339Nano),
		Details:       entry.Details,
		IPAddress:     entry.IPAddress,
		ClientContext: entry.ClientContext,
		RequestID:     entry.RequestID,
	})
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}
	_, err = exec.ExecContext(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		uuid.New(),
		"case",
		entry.CaseID.String(),
		string(entry.Action),
		payload,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// History returns a case's entries in append order. seq breaks timestamp ties.
func (s *Store) History(ctx context.Context, caseID id.CaseID, q audit.Query) ([]audit.Entry, error) {
	query := `
		SELECT log_id, case_id, action_type, performed_by, timestamp,
			   details, ip_address, client_context, request_id
		FROM audit_log
		WHERE case_id = $1 AND ($2::timestamptz IS NULL OR timestamp > $2)
		ORDER BY timestamp ASC, seq ASC
	`
	var since *time.Time
	if !q.Since.IsZero() {
		since = &q.Since
	}
	args := []any{uuid.UUID(caseID), since}
	if q.Limit > 0 {
		query += " LIMIT $3"
		args = append(args, q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			e       audit.Entry
			logID   uuid.UUID
			caseID  uuid.UUID
			action  string
			details []byte
		)
		if err := rows.Scan(
			&logID,
			&caseID,
			&action,
			&e.PerformedBy,
			&e.Timestamp,
			&details,
			&e.IPAddress,
			&e.ClientContext,
			&e.RequestID,
		); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.LogID = id.LogID(logID)
		e.CaseID = id.CaseID(caseID)
		e.Action = audit.ActionType(action)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &e.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
