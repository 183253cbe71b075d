package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ledger-intake/internal/model"
)

// GetDocument loads a document with its tenant context. Returns nil, nil
// when the document does not exist.
func (s *PostgresStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var (
		d       model.Document
		docType string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT d.id, d.tenant_id, d.file_path, COALESCE(d.file_type, ''), COALESCE(d.document_type, ''),
		       d.status, COALESCE(d.uploaded_by, ''), d.updated_at,
		       t.name, t.owner_id, COALESCE(t.currency, ''), COALESCE(t.locale, ''), t.default_tax_rate,
		       COALESCE((SELECT array_agg(ti.value ORDER BY ti.created_at) FROM tenant_identifiers ti
		                 WHERE ti.tenant_id = t.id AND ti.type = 'NAME_ALIAS'), '{}')
		FROM documents d
		JOIN tenants t ON t.id = d.tenant_id
		WHERE d.id = $1`, id,
	).Scan(&d.ID, &d.TenantID, &d.FilePath, &d.FileType, &docType,
		&d.Status, &d.UploadedBy, &d.UpdatedAt,
		&d.Tenant.Name, &d.Tenant.OwnerID, &d.Tenant.Currency, &d.Tenant.Locale, &d.Tenant.DefaultTaxRate,
		&d.Tenant.Aliases)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get document %s", id)
	}
	d.Tenant.ID = d.TenantID
	if docType != "" {
		d.DocumentType = model.DocumentType(docType)
	}
	return &d, nil
}

// UpdateDocument applies the non-nil fields of u. updated_at is always
// bumped.
func (s *PostgresStore) UpdateDocument(ctx context.Context, id string, u model.DocumentUpdate) error {
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.Status != nil {
		add("status", string(*u.Status))
	}
	if u.ValidationStatus != nil {
		add("validation_status", string(*u.ValidationStatus))
	}
	if u.ValidationFlags != nil {
		flags := make([]string, len(u.ValidationFlags))
		for i, f := range u.ValidationFlags {
			flags[i] = string(f)
		}
		add("validation_flags", flags)
	}
	if u.ContentHash != nil {
		add("content_hash", *u.ContentHash)
	}
	if u.ErrorMessage != nil {
		add("error_message", *u.ErrorMessage)
	}
	if u.DocumentType != nil {
		add("document_type", string(*u.DocumentType))
	}
	add("updated_at", time.Now().UTC())
	args = append(args, id)

	sql := fmt.Sprintf("UPDATE documents SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return eris.Wrapf(err, "store: update document %s", id)
	}
	return nil
}

// FindByTenantAndHash returns the ids of other documents in the tenant with
// the same content hash, oldest first.
func (s *PostgresStore) FindByTenantAndHash(ctx context.Context, tenantID, hash, excludeID string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id FROM documents
		WHERE tenant_id = $1 AND content_hash = $2 AND id <> $3
		ORDER BY created_at`,
		tenantID, hash, excludeID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "store: find by hash")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrap(err, "store: scan duplicate ids")
	}
	return ids, nil
}

// FindTransactionByDocumentID returns the id of the ledger transaction
// created from a document, or "" when there is none.
func (s *PostgresStore) FindTransactionByDocumentID(ctx context.Context, documentID string) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `SELECT id FROM transactions WHERE document_id = $1 ORDER BY created_at LIMIT 1`, documentID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "store: find transaction for %s", documentID)
	}
	return id, nil
}

// UpsertDocumentData stores the canonical extraction and the raw provider
// payload, keyed by document id.
func (s *PostgresStore) UpsertDocumentData(ctx context.Context, documentID string, doc *model.ExtractedDocument, raw map[string]any) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return eris.Wrap(err, "store: marshal document data")
	}
	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return eris.Wrap(err, "store: marshal raw extraction")
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO document_data (document_id, data, raw, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (document_id) DO UPDATE
		SET data = EXCLUDED.data, raw = EXCLUDED.raw, updated_at = now()`,
		documentID, data, rawJSON,
	)
	return eris.Wrapf(err, "store: upsert document data %s", documentID)
}
