// Package tenant finds which tenants an extracted document may belong to and
// persists tenant records, identifiers and memberships.
package tenant

import (
	"context"

	"github.com/sells-group/ledger-intake/internal/model"
)

// IdentifierMatch is one row returned by an identifier lookup.
type IdentifierMatch struct {
	TenantID   string
	TenantName string
	Value      string
}

// IdentifierStore is the read side used by the Matcher. Every method must
// restrict results to tenantIDs.
type IdentifierStore interface {
	// FindIdentifiers returns exact matches of typ against values. Tax IDs
	// are compared without separators, domains case-insensitively.
	FindIdentifiers(ctx context.Context, typ model.IdentifierType, values, tenantIDs []string) ([]IdentifierMatch, error)
	// SearchAliases returns NAME_ALIAS rows containing term, ignoring case.
	SearchAliases(ctx context.Context, term string, tenantIDs []string) ([]IdentifierMatch, error)
	// SearchTenantNames returns tenants whose primary name contains term.
	SearchTenantNames(ctx context.Context, term string, tenantIDs []string) ([]IdentifierMatch, error)
	// SearchBankAccounts returns bank accounts whose number contains
	// fragment, ignoring case and separators.
	SearchBankAccounts(ctx context.Context, fragment string, tenantIDs []string) ([]IdentifierMatch, error)
}
