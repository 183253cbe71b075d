package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ledger-intake/internal/db"
	"github.com/sells-group/ledger-intake/internal/model"
	"github.com/sells-group/ledger-intake/internal/normalize"
)

// ErrSlugTaken is returned by CreateTenant when the slug is already in use.
var ErrSlugTaken = eris.New("tenant: slug already taken")

const uniqueViolation = "23505"

// PostgresStore implements IdentifierStore and the tenant directory used by
// attribution.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// FindIdentifiers implements IdentifierStore.
func (s *PostgresStore) FindIdentifiers(ctx context.Context, typ model.IdentifierType, values, tenantIDs []string) ([]IdentifierMatch, error) {
	if len(values) == 0 || len(tenantIDs) == 0 {
		return nil, nil
	}
	valueExpr := "lower(trim(ti.value))"
	if typ == model.IdentifierTaxID {
		valueExpr = "upper(regexp_replace(ti.value, '[^A-Za-z0-9]', '', 'g'))"
	}
	rows, err := s.pool.Query(ctx, `
		SELECT ti.tenant_id, t.name, ti.value
		FROM tenant_identifiers ti
		JOIN tenants t ON t.id = ti.tenant_id
		WHERE ti.type = $1 AND ti.tenant_id = ANY($2) AND `+valueExpr+` = ANY($3)
		ORDER BY ti.created_at`,
		string(typ), tenantIDs, values,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "tenant: find %s identifiers", typ)
	}
	return collectMatches(rows)
}

// SearchAliases implements IdentifierStore. An alias also matches when the
// term contains it, so "Acme Incorporated" finds the alias "Acme".
func (s *PostgresStore) SearchAliases(ctx context.Context, term string, tenantIDs []string) ([]IdentifierMatch, error) {
	if strings.TrimSpace(term) == "" || len(tenantIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT ti.tenant_id, t.name, ti.value
		FROM tenant_identifiers ti
		JOIN tenants t ON t.id = ti.tenant_id
		WHERE ti.type = 'NAME_ALIAS' AND ti.tenant_id = ANY($1)
		  AND (ti.value ILIKE '%' || $2 || '%' ESCAPE '\'
		       OR (length(ti.value) >= 3 AND position(lower(ti.value) in lower($3)) > 0))
		LIMIT 20`,
		tenantIDs, escapeLike(term), term,
	)
	if err != nil {
		return nil, eris.Wrap(err, "tenant: search aliases")
	}
	return collectMatches(rows)
}

// SearchTenantNames implements IdentifierStore. The term is quoted before
// being used as a case-insensitive regular expression.
func (s *PostgresStore) SearchTenantNames(ctx context.Context, term string, tenantIDs []string) ([]IdentifierMatch, error) {
	if strings.TrimSpace(term) == "" || len(tenantIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name, t.name
		FROM tenants t
		WHERE t.id = ANY($1) AND t.name ~* $2
		LIMIT 20`,
		tenantIDs, regexp.QuoteMeta(term),
	)
	if err != nil {
		return nil, eris.Wrap(err, "tenant: search names")
	}
	return collectMatches(rows)
}

// SearchBankAccounts implements IdentifierStore. Masked numbers stored as
// "****1234" match a full extracted number ending in 1234.
func (s *PostgresStore) SearchBankAccounts(ctx context.Context, fragment string, tenantIDs []string) ([]IdentifierMatch, error) {
	fragment = normalize.CleanTaxID(fragment)
	if fragment == "" || len(tenantIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT ba.tenant_id, t.name, ba.account_number
		FROM bank_accounts ba
		JOIN tenants t ON t.id = ba.tenant_id
		WHERE ba.tenant_id = ANY($1)
		  AND (upper(regexp_replace(ba.account_number, '[^A-Za-z0-9]', '', 'g')) LIKE '%' || $2 || '%'
		       OR (length(regexp_replace(ba.account_number, '[^A-Za-z0-9]', '', 'g')) >= 4
		           AND position(upper(regexp_replace(ba.account_number, '[^A-Za-z0-9]', '', 'g')) in $2) > 0))
		LIMIT 20`,
		tenantIDs, fragment,
	)
	if err != nil {
		return nil, eris.Wrap(err, "tenant: search bank accounts")
	}
	return collectMatches(rows)
}

func collectMatches(rows pgx.Rows) ([]IdentifierMatch, error) {
	defer rows.Close()
	var out []IdentifierMatch
	for rows.Next() {
		var m IdentifierMatch
		if err := rows.Scan(&m.TenantID, &m.TenantName, &m.Value); err != nil {
			return nil, eris.Wrap(err, "tenant: scan match")
		}
		out = append(out, m)
	}
	return out, eris.Wrap(rows.Err(), "tenant: iterate matches")
}

// HasBankAccount reports whether the tenant has a bank account whose number
// matches the extracted one, ignoring separators.
func (s *PostgresStore) HasBankAccount(ctx context.Context, tenantID, accountNumber string) (bool, error) {
	acct := normalize.CleanTaxID(accountNumber)
	if acct == "" {
		return false, nil
	}
	matches, err := s.SearchBankAccounts(ctx, acct, []string{tenantID})
	if err != nil {
		return false, err
	}
	return len(matches) > 0, nil
}

// GetTenant loads a tenant with its aliases. Returns nil, nil when missing.
func (s *PostgresStore) GetTenant(ctx context.Context, id string) (*model.TenantContext, error) {
	t, err := scanTenant(s.pool.QueryRow(ctx, tenantSelect+` WHERE t.id = $1 GROUP BY t.id`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "tenant: get %s", id)
	}
	return t, nil
}

// FindOwnedTenantByName returns a tenant owned by ownerID whose name or one
// of whose aliases normalizes to the same key as name. Returns nil, nil when
// none does.
func (s *PostgresStore) FindOwnedTenantByName(ctx context.Context, ownerID, name string) (*model.TenantContext, error) {
	key := normalize.CompanyName(name)
	raw := strings.ToLower(strings.TrimSpace(name))
	if raw == "" {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, tenantSelect+` WHERE t.owner_id = $1 GROUP BY t.id ORDER BY min(t.created_at)`, ownerID)
	if err != nil {
		return nil, eris.Wrap(err, "tenant: list owned tenants")
	}
	defer rows.Close()

	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, eris.Wrap(err, "tenant: scan owned tenant")
		}
		for _, n := range t.Names() {
			if strings.ToLower(strings.TrimSpace(n)) == raw || (key != "" && normalize.CompanyName(n) == key) {
				return t, nil
			}
		}
	}
	return nil, eris.Wrap(rows.Err(), "tenant: iterate owned tenants")
}

const tenantSelect = `
		SELECT t.id, t.name, t.owner_id, t.currency, t.locale, t.default_tax_rate,
		       COALESCE(array_agg(ti.value) FILTER (WHERE ti.value IS NOT NULL), '{}')
		FROM tenants t
		LEFT JOIN tenant_identifiers ti ON ti.tenant_id = t.id AND ti.type = 'NAME_ALIAS'`

func scanTenant(row pgx.Row) (*model.TenantContext, error) {
	var t model.TenantContext
	if err := row.Scan(&t.ID, &t.Name, &t.OwnerID, &t.Currency, &t.Locale, &t.DefaultTaxRate, &t.Aliases); err != nil {
		return nil, err
	}
	return &t, nil
}

// CreateTenant inserts a tenant and returns its id. A slug collision returns
// ErrSlugTaken; plan-limit rejections raised by the database come back with
// their message intact.
func (s *PostgresStore) CreateTenant(ctx context.Context, t model.NewTenant) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO tenants (name, slug, owner_id, currency, locale)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		t.Name, t.Slug, t.OwnerID, t.Currency, t.Locale,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && strings.Contains(pgErr.ConstraintName, "slug") {
			return "", ErrSlugTaken
		}
		return "", eris.Wrapf(err, "tenant: create %q", t.Name)
	}
	return id, nil
}

// AddMembership grants userID a role on tenantID. Existing memberships are
// left as they are.
func (s *PostgresStore) AddMembership(ctx context.Context, tenantID, userID, role string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memberships (tenant_id, user_id, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, user_id) DO NOTHING`,
		tenantID, userID, role,
	)
	return eris.Wrapf(err, "tenant: add membership %s/%s", tenantID, userID)
}

// AddIdentifier records an identifier for a tenant.
func (s *PostgresStore) AddIdentifier(ctx context.Context, tenantID string, typ model.IdentifierType, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenant_identifiers (tenant_id, type, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id, type, value) DO NOTHING`,
		tenantID, string(typ), value,
	)
	return eris.Wrapf(err, "tenant: add %s identifier", typ)
}

// TransferDocument moves a document to another tenant through the
// transfer_document_tenant database function, which is atomic with respect
// to document ownership.
func (s *PostgresStore) TransferDocument(ctx context.Context, documentID, targetTenantID string) error {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT transfer_document_tenant($1, $2, 'MOVE')`, documentID, targetTenantID).Scan(&raw)
	if err != nil {
		return eris.Wrapf(err, "tenant: transfer document %s", documentID)
	}
	var out struct {
		Error string `json:"error"`
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &out); err != nil {
			return eris.Wrap(err, "tenant: decode transfer result")
		}
	}
	if out.Error != "" {
		return eris.Errorf("tenant: transfer document %s: %s", documentID, out.Error)
	}
	return nil
}

var candidateColumns = []string{"document_id", "tenant_id", "tenant_name", "confidence", "reasons", "created_at"}

// SaveCandidates replaces the stored candidates of a document.
func (s *PostgresStore) SaveCandidates(ctx context.Context, documentID string, candidates []model.TenantCandidate) error {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, []any{documentID, c.TenantID, c.TenantName, c.Confidence, c.Reasons, now})
	}
	if _, err := db.ReplaceRows(ctx, s.pool, "tenant_candidates", "document_id", documentID, candidateColumns, rows); err != nil {
		return eris.Wrap(err, "tenant: save candidates")
	}
	return nil
}

// escapeLike escapes LIKE wildcards so term is matched literally.
func escapeLike(term string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(term)
}
