package model

// TenantContext is the subset of a tenant needed during processing.
type TenantContext struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	OwnerID        string   `json:"owner_id"`
	Currency       string   `json:"currency"`
	Locale         string   `json:"locale"`
	Aliases        []string `json:"aliases,omitempty"`
	DefaultTaxRate *float64 `json:"default_tax_rate,omitempty"`
}

// Names returns the tenant's canonical name followed by its aliases.
func (t TenantContext) Names() []string {
	out := make([]string, 0, len(t.Aliases)+1)
	if t.Name != "" {
		out = append(out, t.Name)
	}
	return append(out, t.Aliases...)
}

// IdentifierType classifies a tenant identifier row.
type IdentifierType string

const (
	IdentifierTaxID     IdentifierType = "TAX_ID"
	IdentifierDomain    IdentifierType = "DOMAIN"
	IdentifierNameAlias IdentifierType = "NAME_ALIAS"
)

// TenantCandidate is a tenant the document may belong to.
type TenantCandidate struct {
	TenantID   string   `json:"tenantId"`
	Confidence float64  `json:"confidence"`
	Reasons    []string `json:"reasons"`
	TenantName string   `json:"tenantName,omitempty"`
}

// TenantMatchResult is the matcher's verdict for one document.
type TenantMatchResult struct {
	Candidates          []TenantCandidate `json:"candidates"`
	IsMultiTenant       bool              `json:"isMultiTenant"`
	SuggestedTenantName string            `json:"suggestedTenantName,omitempty"`
}

// Best returns the highest-confidence candidate, or nil.
func (r TenantMatchResult) Best() *TenantCandidate {
	if len(r.Candidates) == 0 {
		return nil
	}
	return &r.Candidates[0]
}

// MismatchPolicy decides how a detected tenant mismatch is resolved.
type MismatchPolicy struct {
	AllowAutoTenantCreation bool    `json:"allow_auto_tenant_creation"`
	AllowAutoReassignment   bool    `json:"allow_auto_reassignment"`
	MinConfidence           float64 `json:"min_confidence"`
}

// DefaultMismatchPolicy is used when the platform has no stored policy.
func DefaultMismatchPolicy() MismatchPolicy {
	return MismatchPolicy{MinConfidence: 0.9}
}

// PolicyOverride is a stored policy blob in which every field is optional.
type PolicyOverride struct {
	AllowAutoTenantCreation *bool    `json:"allow_auto_tenant_creation,omitempty"`
	AllowAutoReassignment   *bool    `json:"allow_auto_reassignment,omitempty"`
	MinConfidence           *float64 `json:"min_confidence,omitempty"`
}

// Apply returns p with every field present in o overriding it.
func (p MismatchPolicy) Apply(o *PolicyOverride) MismatchPolicy {
	if o == nil {
		return p
	}
	if o.AllowAutoTenantCreation != nil {
		p.AllowAutoTenantCreation = *o.AllowAutoTenantCreation
	}
	if o.AllowAutoReassignment != nil {
		p.AllowAutoReassignment = *o.AllowAutoReassignment
	}
	if o.MinConfidence != nil {
		p.MinConfidence = *o.MinConfidence
	}
	return p
}

// ResolvePolicy layers the tenant override on top of the platform policy.
func ResolvePolicy(platform, tenant *PolicyOverride) MismatchPolicy {
	return DefaultMismatchPolicy().Apply(platform).Apply(tenant)
}

// CorrectionAction is the single terminal outcome of a tenant correction.
type CorrectionAction string

const (
	CorrectionNone               CorrectionAction = "NONE"
	CorrectionReassigned         CorrectionAction = "REASSIGNED"
	CorrectionCreated            CorrectionAction = "CREATED"
	CorrectionLimitReached       CorrectionAction = "LIMIT_REACHED"
	CorrectionSkippedMultiTenant CorrectionAction = "SKIPPED_MULTI_TENANT"
	CorrectionFailed             CorrectionAction = "FAILED"
)

// NeedsReview reports whether the action leaves the document flagged.
func (a CorrectionAction) NeedsReview() bool {
	switch a {
	case CorrectionReassigned, CorrectionCreated:
		return false
	default:
		return true
	}
}

// Corrected reports whether the document was moved to another tenant.
func (a CorrectionAction) Corrected() bool {
	return !a.NeedsReview()
}

// TenantCorrection records what the attribution engine did about a mismatch.
type TenantCorrection struct {
	ActionTaken  CorrectionAction `json:"actionTaken"`
	FromTenantID string           `json:"fromTenantId"`
	ToTenantID   string           `json:"toTenantId,omitempty"`
	ToTenantName string           `json:"toTenantName,omitempty"`
	Message      string           `json:"message,omitempty"`
}

// Actor is the authenticated user that triggered processing.
type Actor struct {
	UserID string
	Role   string
}

// NewTenant holds the fields for an auto-created tenant.
type NewTenant struct {
	Name     string
	Slug     string
	OwnerID  string
	Currency string
	Locale   string
}

// Membership roles written on tenant auto-creation.
const (
	RoleOwner = "OWNER"
	RoleAdmin = "ADMIN"
)
