package cases

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"kycflow/internal/cases/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
	txcontext "kycflow/pkg/platform/tx"
)

const uniqueViolation = "23505"

// PostgresStore persists cases and their processing steps.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// inTx joins the caller's transaction or opens a short one, so the case row
// and its steps are always written together.
func (s *PostgresStore) inTx(ctx context.Context, fn func(dbExecutor) error) error {
	if tx, ok := txcontext.From(ctx); ok {
		return fn(tx)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin case tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

const caseColumns = `
	case_id, customer_id, customer, status, risk_level, pep_flag,
	customer_type, estimated_risk_level, current_stage, document_ids::text,
	validation_summary, warnings, created_at, updated_at, completed_at, version`

func (s *PostgresStore) Create(ctx context.Context, c *models.Case) error {
	row, err := toRow(c)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(exec dbExecutor) error {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO cases (
				case_id, customer_id, customer, status, risk_level, pep_flag,
				customer_type, estimated_risk_level, current_stage, document_ids,
				validation_summary, warnings, created_at, updated_at, completed_at, version
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::text::uuid[], $11, $12, $13, $14, $15, 1)
		`,
			row.id, row.customerID, row.customer, row.status, row.riskLevel, row.pepFlag,
			row.customerType, row.estimatedRisk, row.currentStage, row.documentIDs,
			row.summary, row.warnings, c.CreatedAt, c.UpdatedAt, nullTime(c.CompletedAt),
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrConflict)
			}
			return fmt.Errorf("insert case: %w", err)
		}
		if err := syncSteps(ctx, exec, c); err != nil {
			return err
		}
		c.Version = 1
		return nil
	})
}

func (s *PostgresStore) Save(ctx context.Context, c *models.Case) error {
	row, err := toRow(c)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(exec dbExecutor) error {
		res, err := exec.ExecContext(ctx, `
			UPDATE cases SET
				customer = $3, status = $4, risk_level = $5, pep_flag = $6,
				customer_type = $7, estimated_risk_level = $8, current_stage = $9,
				document_ids = $10::text::uuid[], validation_summary = $11, warnings = $12,
				updated_at = $13, completed_at = $14, version = version + 1
			WHERE case_id = $1 AND version = $2
		`,
			row.id, c.Version, row.customer, row.status, row.riskLevel, row.pepFlag,
			row.customerType, row.estimatedRisk, row.currentStage, row.documentIDs,
			row.summary, row.warnings, c.UpdatedAt, nullTime(c.CompletedAt),
		)
		if err != nil {
			return fmt.Errorf("update case: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("update case rows: %w", err)
		}
		if n == 0 {
			var exists bool
			if err := exec.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM cases WHERE case_id = $1)`, row.id).Scan(&exists); err != nil {
				return fmt.Errorf("check case: %w", err)
			}
			if !exists {
				return fmt.Errorf("case %s: %w", c.ID, sentinel.ErrNotFound)
			}
			return fmt.Errorf("case %s version %d: %w", c.ID, c.Version, sentinel.ErrConflict)
		}
		if err := syncSteps(ctx, exec, c); err != nil {
			return err
		}
		c.Version++
		return nil
	})
}

// syncSteps inserts steps the table has not seen and drops the error steps a
// retry cleared. Sealed rows are never rewritten; a cleared step's record
// stays in audit_log.
func syncSteps(ctx context.Context, exec dbExecutor, c *models.Case) error {
	rows, err := exec.QueryContext(ctx, `SELECT step_id, seq FROM processing_steps WHERE case_id = $1`, uuid.UUID(c.ID))
	if err != nil {
		return fmt.Errorf("query step ids: %w", err)
	}
	stored := make(map[uuid.UUID]bool)
	next := 0
	for rows.Next() {
		var (
			stepID uuid.UUID
			seq    int
		)
		if err := rows.Scan(&stepID, &seq); err != nil {
			_ = rows.Close()
			return fmt.Errorf("scan step id: %w", err)
		}
		stored[stepID] = true
		if seq >= next {
			next = seq + 1
		}
	}
	if err := rows.Close(); err != nil {
		return fmt.Errorf("close step ids: %w", err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read step ids: %w", err)
	}

	var fresh []models.ProcessingStep
	for _, st := range c.Steps {
		if stored[uuid.UUID(st.ID)] {
			delete(stored, uuid.UUID(st.ID))
			continue
		}
		fresh = append(fresh, st)
	}

	if len(stored) > 0 {
		cleared := make([]string, 0, len(stored))
		for stepID := range stored {
			cleared = append(cleared, stepID.String())
		}
		_, err := exec.ExecContext(ctx, `
			DELETE FROM processing_steps
			WHERE case_id = $1 AND status = $2 AND step_id = ANY($3::text::uuid[])
		`, uuid.UUID(c.ID), string(models.StepError), pq.Array(cleared))
		if err != nil {
			return fmt.Errorf("clear error steps: %w", err)
		}
	}

	for _, st := range fresh {
		var response any
		if len(st.Response) > 0 {
			response = []byte(st.Response)
		}
		_, err := exec.ExecContext(ctx, `
			INSERT INTO processing_steps (
				step_id, case_id, seq, agent_type, agent_id, status, outcome,
				attempts, started_at, duration_ms, response, error_message
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`,
			uuid.UUID(st.ID), uuid.UUID(c.ID), next, string(st.AgentType), st.AgentID,
			string(st.Status), string(st.Outcome), st.Attempts, st.StartedAt,
			st.Duration.Milliseconds(), response, st.ErrorMessage,
		)
		if err != nil {
			return fmt.Errorf("insert step: %w", err)
		}
		next++
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, caseID id.CaseID) (*models.Case, error) {
	exec := s.execer(ctx)
	c, err := scanCase(exec.QueryRowContext(ctx, `SELECT `+caseColumns+` FROM cases WHERE case_id = $1`, uuid.UUID(caseID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("case %s: %w", caseID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find case: %w", err)
	}
	if err := s.loadSteps(ctx, exec, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) loadSteps(ctx context.Context, exec dbExecutor, c *models.Case) error {
	rows, err := exec.QueryContext(ctx, `
		SELECT step_id, agent_type, agent_id, status, outcome, attempts,
			   started_at, duration_ms, response, error_message
		FROM processing_steps
		WHERE case_id = $1
		ORDER BY seq ASC
	`, uuid.UUID(c.ID))
	if err != nil {
		return fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	c.Steps = []models.ProcessingStep{}
	for rows.Next() {
		var (
			st         models.ProcessingStep
			stepID     uuid.UUID
			agentType  string
			status     string
			outcome    string
			durationMS int64
			response   []byte
		)
		if err := rows.Scan(&stepID, &agentType, &st.AgentID, &status, &outcome, &st.Attempts,
			&st.StartedAt, &durationMS, &response, &st.ErrorMessage); err != nil {
			return fmt.Errorf("scan step: %w", err)
		}
		st.ID = id.StepID(stepID)
		st.CaseID = c.ID
		st.AgentType = models.AgentType(agentType)
		st.Status = models.StepStatus(status)
		st.Outcome = models.StageOutcome(outcome)
		st.Duration = time.Duration(durationMS) * time.Millisecond
		if len(response) > 0 {
			st.Response = json.RawMessage(response)
		}
		c.Steps = append(c.Steps, st)
	}
	return rows.Err()
}

// List returns cases newest first without their steps.
func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*models.Case, error) {
	exec := s.execer(ctx)
	rows, err := exec.QueryContext(ctx, `
		SELECT `+caseColumns+`
		FROM cases
		WHERE ($1::text = '' OR status = $1::text)
		ORDER BY created_at DESC
		LIMIT $2
	`, string(f.Status), f.limit())
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	var out []*models.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan case: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) LatestForCustomer(ctx context.Context, customerID id.CustomerID) (*models.Case, error) {
	var caseID uuid.UUID
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT case_id FROM cases WHERE customer_id = $1 ORDER BY created_at DESC LIMIT 1
	`, string(customerID)).Scan(&caseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", customerID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find latest case: %w", err)
	}
	return s.FindByID(ctx, id.CaseID(caseID))
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[models.Status]int, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT status, COUNT(*) FROM cases GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count cases: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.Status]int, len(models.AllStatuses))
	for _, st := range models.AllStatuses {
		counts[st] = 0
	}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[models.Status(status)] = n
	}
	return counts, rows.Err()
}

type caseRow struct {
	id            uuid.UUID
	customerID    string
	customer      []byte
	status        string
	riskLevel     string
	pepFlag       bool
	customerType  string
	estimatedRisk string
	currentStage  string
	documentIDs   any
	summary       string
	warnings      []byte
}

func toRow(c *models.Case) (caseRow, error) {
	customer, err := json.Marshal(c.Customer)
	if err != nil {
		return caseRow{}, fmt.Errorf("marshal customer: %w", err)
	}
	warnings := c.Warnings
	if warnings == nil {
		warnings = []models.ValidationWarning{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return caseRow{}, fmt.Errorf("marshal warnings: %w", err)
	}
	docIDs := make([]string, len(c.DocumentIDs))
	for i, d := range c.DocumentIDs {
		docIDs[i] = d.String()
	}
	return caseRow{
		id:            uuid.UUID(c.ID),
		customerID:    string(c.CustomerID),
		customer:      customer,
		status:        string(c.Status),
		riskLevel:     string(c.RiskLevel),
		pepFlag:       c.PEPFlag,
		customerType:  c.CustomerType,
		estimatedRisk: string(c.EstimatedRiskLevel),
		currentStage:  string(c.CurrentStage),
		documentIDs:   pq.Array(docIDs),
		summary:       c.ValidationSummary,
		warnings:      warningsJSON,
	}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(r rowScanner) (*models.Case, error) {
	var (
		c             models.Case
		caseID        uuid.UUID
		customerID    string
		customer      []byte
		status        string
		riskLevel     string
		estimatedRisk string
		currentStage  string
		docIDs        pq.StringArray
		warnings      []byte
		completedAt   sql.NullTime
	)
	err := r.Scan(&caseID, &customerID, &customer, &status, &riskLevel, &c.PEPFlag,
		&c.CustomerType, &estimatedRisk, &currentStage, &docIDs,
		&c.ValidationSummary, &warnings, &c.CreatedAt, &c.UpdatedAt, &completedAt, &c.Version)
	if err != nil {
		return nil, err
	}
	c.ID = id.CaseID(caseID)
	c.CustomerID = id.CustomerID(customerID)
	c.Status = models.Status(status)
	c.RiskLevel = models.RiskLevel(riskLevel)
	c.EstimatedRiskLevel = models.RiskLevel(estimatedRisk)
	c.CurrentStage = models.AgentType(currentStage)
	if err := json.Unmarshal(customer, &c.Customer); err != nil {
		return nil, fmt.Errorf("decode customer: %w", err)
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &c.Warnings); err != nil {
			return nil, fmt.Errorf("decode warnings: %w", err)
		}
		if len(c.Warnings) == 0 {
			c.Warnings = nil
		}
	}
	for _, raw := range docIDs {
		docID, err := id.ParseDocumentID(raw)
		if err != nil {
			return nil, fmt.Errorf("decode document id: %w", err)
		}
		c.DocumentIDs = append(c.DocumentIDs, docID)
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	c.Steps = []models.ProcessingStep{}
	return &c, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
