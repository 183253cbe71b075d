package tenant

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ledger-intake/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresStore(mock), mock
}

func TestFindIdentifiers_TaxID(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`regexp_replace\(ti.value`).
		WithArgs("TAX_ID", []string{"t-b"}, []string{"12345678"}).
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id", "name", "value"}).
			AddRow("t-b", "Beta Corp", "12-345-678"))

	got, err := s.FindIdentifiers(context.Background(), model.IdentifierTaxID, []string{"12345678"}, []string{"t-b"})
	require.NoError(t, err)
	assert.Equal(t, []IdentifierMatch{{TenantID: "t-b", TenantName: "Beta Corp", Value: "12-345-678"}}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindIdentifiers_EmptyInputSkipsQuery(t *testing.T) {
	s, mock := newMockStore(t)

	got, err := s.FindIdentifiers(context.Background(), model.IdentifierDomain, nil, []string{"t-b"})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchAliases_EscapesWildcards(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`NAME_ALIAS`).
		WithArgs([]string{"t-b"}, `100\% Pure\_Co`, "100% Pure_Co").
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id", "name", "value"}))

	got, err := s.SearchAliases(context.Background(), "100% Pure_Co", []string{"t-b"})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSearchTenantNames_QuotesRegexp(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`t.name ~\* \$2`).
		WithArgs([]string{"t-b"}, `Beta \(HK\) Ltd\.`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "name"}).
			AddRow("t-b", "Beta (HK) Ltd.", "Beta (HK) Ltd."))

	got, err := s.SearchTenantNames(context.Background(), "Beta (HK) Ltd.", []string{"t-b"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "t-b", got[0].TenantID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasBankAccount(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM bank_accounts`).
		WithArgs([]string{"t-a"}, "001234567890").
		WillReturnRows(pgxmock.NewRows([]string{"tenant_id", "name", "account_number"}).
			AddRow("t-a", "Alpha", "****7890"))

	ok, err := s.HasBankAccount(context.Background(), "t-a", "0012 3456 7890")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasBankAccount(context.Background(), "t-a", "--")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func tenantRows() *pgxmock.Rows {
	rate := 0.05
	return pgxmock.NewRows([]string{"id", "name", "owner_id", "currency", "locale", "default_tax_rate", "aliases"}).
		AddRow("t-b", "Beta Corp", "u-1", "USD", "en-US", &rate, []string{"Beta", "贝塔"})
}

func TestGetTenant(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM tenants t`).WithArgs("t-b").WillReturnRows(tenantRows())

	got, err := s.GetTenant(context.Background(), "t-b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Beta Corp", got.Name)
	assert.Equal(t, []string{"Beta", "贝塔"}, got.Aliases)
	require.NotNil(t, got.DefaultTaxRate)
	assert.InDelta(t, 0.05, *got.DefaultTaxRate, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTenant_NotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`FROM tenants t`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	got, err := s.GetTenant(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestFindOwnedTenantByName_MatchesAlias(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`WHERE t.owner_id = \$1`).WithArgs("u-1").WillReturnRows(tenantRows())

	got, err := s.FindOwnedTenantByName(context.Background(), "u-1", "  贝塔 ")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t-b", got.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOwnedTenantByName_NormalizedKey(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`WHERE t.owner_id = \$1`).WithArgs("u-1").WillReturnRows(tenantRows())

	got, err := s.FindOwnedTenantByName(context.Background(), "u-1", "BETA  CORP")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "t-b", got.ID)
}

func TestFindOwnedTenantByName_NoMatch(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`WHERE t.owner_id = \$1`).WithArgs("u-1").WillReturnRows(tenantRows())

	got, err := s.FindOwnedTenantByName(context.Background(), "u-1", "Gamma Holdings")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCreateTenant(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO tenants`).
		WithArgs("Beta Corp", "beta-corp", "u-1", "USD", "en-US").
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("t-new"))

	id, err := s.CreateTenant(context.Background(), model.NewTenant{
		Name: "Beta Corp", Slug: "beta-corp", OwnerID: "u-1", Currency: "USD", Locale: "en-US",
	})
	require.NoError(t, err)
	assert.Equal(t, "t-new", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateTenant_SlugTaken(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO tenants`).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "tenants_slug_key"})

	_, err := s.CreateTenant(context.Background(), model.NewTenant{Name: "Beta Corp", Slug: "beta-corp"})
	assert.ErrorIs(t, err, ErrSlugTaken)
}

func TestCreateTenant_LimitMessagePreserved(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO tenants`).
		WillReturnError(&pgconn.PgError{Code: "P0001", Message: "Tenant limit reached for plan"})

	_, err := s.CreateTenant(context.Background(), model.NewTenant{Name: "Beta Corp", Slug: "beta-corp"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tenant limit reached")
}

func TestAddMembershipAndIdentifier(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`INSERT INTO memberships`).
		WithArgs("t-b", "u-1", model.RoleOwner).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO tenant_identifiers`).
		WithArgs("t-b", "NAME_ALIAS", "Beta").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.AddMembership(context.Background(), "t-b", "u-1", model.RoleOwner))
	require.NoError(t, s.AddIdentifier(context.Background(), "t-b", model.IdentifierNameAlias, "Beta"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferDocument(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT transfer_document_tenant`).
		WithArgs("doc-1", "t-b").
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow([]byte(`{"success": true}`)))

	require.NoError(t, s.TransferDocument(context.Background(), "doc-1", "t-b"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferDocument_FunctionError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT transfer_document_tenant`).
		WithArgs("doc-1", "t-b").
		WillReturnRows(pgxmock.NewRows([]string{"result"}).AddRow([]byte(`{"error": "target tenant not accessible"}`)))

	err := s.TransferDocument(context.Background(), "doc-1", "t-b")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "target tenant not accessible")
}

func TestSaveCandidates(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM "tenant_candidates"`).
		WithArgs("doc-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"tenant_candidates"}, candidateColumns).WillReturnResult(1)
	mock.ExpectCommit()

	err := s.SaveCandidates(context.Background(), "doc-1", []model.TenantCandidate{
		{TenantID: "t-b", TenantName: "Beta Corp", Confidence: 0.95, Reasons: []string{"Tax ID matches"}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
