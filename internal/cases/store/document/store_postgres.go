package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"kycflow/internal/cases/models"
	id "kycflow/pkg/domain"
	"kycflow/pkg/platform/sentinel"
	txcontext "kycflow/pkg/platform/tx"
)

// PostgresStore persists document metadata. Raw files stay with the storage
// collaborator.
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

const documentColumns = `
	document_id, case_id, document_type, filename, locator, validation_status,
	validated_by, extracted_data, superseded_by, uploaded_at`

func (s *PostgresStore) Create(ctx context.Context, d *models.Document) error {
	extracted, err := json.Marshal(d.ExtractedData)
	if err != nil {
		return fmt.Errorf("marshal extracted data: %w", err)
	}
	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO documents (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(d.ID), nullCase(d.CaseID), string(d.Type), d.Filename, d.Locator,
		string(d.ValidationStatus), d.ValidatedBy, extracted, nullDoc(d.SupersededBy), d.UploadedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, docID id.DocumentID) (*models.Document, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_id = $1`, uuid.UUID(docID))
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("document %s: %w", docID, sentinel.ErrNotFound)
		}
		return nil, fmt.Errorf("find document: %w", err)
	}
	return d, nil
}

// FindByIDs returns documents in the order requested; any missing ID fails the
// whole lookup.
func (s *PostgresStore) FindByIDs(ctx context.Context, ids []id.DocumentID) ([]*models.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, v := range ids {
		keys[i] = v.String()
	}
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE document_id = ANY($1::text::uuid[])`,
		pq.Array(keys),
	)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	found, err := scanDocuments(rows)
	if err != nil {
		return nil, err
	}
	byID := make(map[id.DocumentID]*models.Document, len(found))
	for _, d := range found {
		byID[d.ID] = d
	}
	out := make([]*models.Document, 0, len(ids))
	for _, docID := range ids {
		d, ok := byID[docID]
		if !ok {
			return nil, fmt.Errorf("document %s: %w", docID, sentinel.ErrNotFound)
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *PostgresStore) ListByCase(ctx context.Context, caseID id.CaseID) ([]*models.Document, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE case_id = $1 ORDER BY uploaded_at ASC`,
		uuid.UUID(caseID),
	)
	if err != nil {
		return nil, fmt.Errorf("query case documents: %w", err)
	}
	return scanDocuments(rows)
}

// Save updates the mutable columns. Type, locator and upload time never change.
func (s *PostgresStore) Save(ctx context.Context, d *models.Document) error {
	extracted, err := json.Marshal(d.ExtractedData)
	if err != nil {
		return fmt.Errorf("marshal extracted data: %w", err)
	}
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE documents SET
			case_id = $2, validation_status = $3, validated_by = $4,
			extracted_data = $5, superseded_by = $6
		WHERE document_id = $1
	`,
		uuid.UUID(d.ID), nullCase(d.CaseID), string(d.ValidationStatus), d.ValidatedBy,
		extracted, nullDoc(d.SupersededBy),
	)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update document rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("document %s: %w", d.ID, sentinel.ErrNotFound)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocuments(rows *sql.Rows) ([]*models.Document, error) {
	defer rows.Close()
	var out []*models.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func scanDocument(r rowScanner) (*models.Document, error) {
	var (
		d            models.Document
		docID        uuid.UUID
		caseID       uuid.NullUUID
		docType      string
		status       string
		extracted    []byte
		supersededBy uuid.NullUUID
	)
	err := r.Scan(&docID, &caseID, &docType, &d.Filename, &d.Locator, &status,
		&d.ValidatedBy, &extracted, &supersededBy, &d.UploadedAt)
	if err != nil {
		return nil, err
	}
	d.ID = id.DocumentID(docID)
	if caseID.Valid {
		d.CaseID = id.CaseID(caseID.UUID)
	}
	d.Type = models.DocumentType(docType)
	d.ValidationStatus = models.DocumentStatus(status)
	d.ExtractedData = map[string]string{}
	if len(extracted) > 0 {
		if err := json.Unmarshal(extracted, &d.ExtractedData); err != nil {
			return nil, fmt.Errorf("decode extracted data: %w", err)
		}
	}
	if supersededBy.Valid {
		next := id.DocumentID(supersededBy.UUID)
		d.SupersededBy = &next
	}
	return &d, nil
}

func nullCase(caseID id.CaseID) uuid.NullUUID {
	if caseID.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(caseID), Valid: true}
}

func nullDoc(docID *id.DocumentID) uuid.NullUUID {
	if docID == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*docID), Valid: true}
}
