package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ledger-intake/internal/model"
)

const platformPolicyKey = "tenant_mismatch_policy"

// ResolveProvider returns the tenant's configured provider when it is still
// active, otherwise the platform default.
func (s *PostgresStore) ResolveProvider(ctx context.Context, tenantID string) (*model.ProviderConfig, error) {
	p, err := s.scanProvider(ctx, `
		SELECT p.id, p.name, p.model, COALESCE(p.api_key_ref, ''), p.is_default
		FROM tenant_ai_settings s
		JOIN ai_providers p ON p.id = s.provider_id
		WHERE s.tenant_id = $1 AND p.is_active`, tenantID)
	if err != nil || p != nil {
		return p, err
	}

	p, err = s.scanProvider(ctx, `
		SELECT id, name, model, COALESCE(api_key_ref, ''), is_default
		FROM ai_providers
		WHERE is_default AND is_active
		ORDER BY created_at LIMIT 1`)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, ErrNoDefaultProvider
	}
	return p, nil
}

func (s *PostgresStore) scanProvider(ctx context.Context, sql string, args ...any) (*model.ProviderConfig, error) {
	var p model.ProviderConfig
	err := s.pool.QueryRow(ctx, sql, args...).Scan(&p.ID, &p.Name, &p.Model, &p.APIKeyRef, &p.IsDefault)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: resolve provider")
	}
	return &p, nil
}

// MismatchPolicy layers the tenant's stored policy over the platform one.
func (s *PostgresStore) MismatchPolicy(ctx context.Context, tenantID string) (model.MismatchPolicy, error) {
	platform, err := s.policyBlob(ctx, `SELECT value FROM platform_settings WHERE key = $1`, platformPolicyKey)
	if err != nil {
		return model.DefaultMismatchPolicy(), err
	}
	tenant, err := s.policyBlob(ctx, `SELECT mismatch_policy FROM tenants WHERE id = $1`, tenantID)
	if err != nil {
		return model.ResolvePolicy(platform, nil), err
	}
	return model.ResolvePolicy(platform, tenant), nil
}

func (s *PostgresStore) policyBlob(ctx context.Context, sql string, arg string) (*model.PolicyOverride, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, sql, arg).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && len(raw) == 0) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: load mismatch policy")
	}
	var o model.PolicyOverride
	if err := json.Unmarshal(raw, &o); err != nil {
		return nil, eris.Wrap(err, "store: decode mismatch policy")
	}
	return &o, nil
}

// AccessibleTenantIDs lists the tenants a user is a member of.
func (s *PostgresStore) AccessibleTenantIDs(ctx context.Context, userID string) ([]string, error) {
	if userID == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `SELECT tenant_id FROM memberships WHERE user_id = $1 ORDER BY tenant_id`, userID)
	if err != nil {
		return nil, eris.Wrap(err, "store: list memberships")
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrap(err, "store: scan memberships")
	}
	return ids, nil
}

// LogUsage appends one AI usage row.
func (s *PostgresStore) LogUsage(ctx context.Context, r model.UsageRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO ai_usage_logs (tenant_id, document_id, provider_id, provider, model,
		                           input_tokens, output_tokens, estimated_cost_usd, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)`,
		r.TenantID, r.DocumentID, r.ProviderID, r.Provider, r.Model,
		r.InputTokens, r.OutputTokens, r.EstimatedCostUSD, r.CreatedAt,
	)
	return eris.Wrap(err, "store: log usage")
}
