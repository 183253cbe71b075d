// Package attribution decides whether an extracted document belongs to the
// tenant that uploaded it and, when it does not, tries to move it to the
// right tenant or flags it for review.
package attribution

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/ledger-intake/internal/model"
	"github.com/sells-group/ledger-intake/internal/tenant"
)

// DefaultConfidenceThreshold is the extraction confidence above which the
// model's own ownership verdict is trusted.
const DefaultConfidenceThreshold = 0.8

// Config holds engine settings.
type Config struct {
	DebugEnabled        bool    `yaml:"debug" mapstructure:"debug"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
}

// CandidateFinder ranks other tenants a document may belong to.
type CandidateFinder interface {
	FindCandidates(ctx context.Context, q tenant.Query) model.TenantMatchResult
}

// TenantDirectory reads and writes tenants on behalf of the engine.
type TenantDirectory interface {
	HasBankAccount(ctx context.Context, tenantID, accountNumber string) (bool, error)
	GetTenant(ctx context.Context, id string) (*model.TenantContext, error)
	FindOwnedTenantByName(ctx context.Context, ownerID, name string) (*model.TenantContext, error)
	CreateTenant(ctx context.Context, t model.NewTenant) (string, error)
	AddMembership(ctx context.Context, tenantID, userID, role string) error
	AddIdentifier(ctx context.Context, tenantID string, typ model.IdentifierType, value string) error
	TransferDocument(ctx context.Context, documentID, targetTenantID string) error
	SaveCandidates(ctx context.Context, documentID string, candidates []model.TenantCandidate) error
}

// Locker serializes tenant creation across processes. Acquire returns a
// release func.
type Locker interface {
	Acquire(ctx context.Context, key string) (func(), error)
}

// Input is everything the engine needs for one document.
type Input struct {
	Document            *model.ExtractedDocument
	DocumentID          string
	Tenant              model.TenantContext
	Policy              model.MismatchPolicy
	Actor               model.Actor
	AccessibleTenantIDs []string
}

// Outcome is the engine's verdict.
type Outcome struct {
	BelongsToTenant bool
	Investigated    bool
	Match           *model.TenantMatchResult
	Correction      *model.TenantCorrection
	FlagWrongTenant bool

	// Tenant is the tenant the document belongs to after any correction.
	Tenant model.TenantContext
}

// Corrected reports whether the document was moved to another tenant.
func (o Outcome) Corrected() bool {
	return o.Correction != nil && o.Correction.ActionTaken.Corrected()
}

// Engine runs ownership checks and tenant corrections.
type Engine struct {
	cfg     Config
	matcher CandidateFinder
	dir     TenantDirectory
	locker  Locker
}

// NewEngine creates an Engine. locker may be nil.
func NewEngine(cfg Config, matcher CandidateFinder, dir TenantDirectory, locker Locker) *Engine {
	if cfg.ConfidenceThreshold <= 0 || cfg.ConfidenceThreshold > 1 {
		cfg.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	return &Engine{cfg: cfg, matcher: matcher, dir: dir, locker: locker}
}

// Attribute decides ownership and, when the document looks misfiled,
// resolves it according to the policy.
func (e *Engine) Attribute(ctx context.Context, in Input) Outcome {
	out := Outcome{BelongsToTenant: true, Tenant: in.Tenant}
	doc := in.Document
	if doc == nil {
		return out
	}

	ev := gather(doc, in.Tenant)
	out.BelongsToTenant = e.belongs(ctx, doc, in.Tenant, ev)
	if out.BelongsToTenant {
		return out
	}
	if !shouldInvestigate(doc, ev) {
		e.debug("ownership mismatch below investigation gate",
			zap.String("document_id", in.DocumentID), zap.String("type", string(doc.DocumentType)))
		return out
	}
	out.Investigated = true

	match := e.matcher.FindCandidates(ctx, tenant.Query{
		Document:            doc,
		CurrentTenant:       in.Tenant,
		AccessibleTenantIDs: in.AccessibleTenantIDs,
	})
	out.Match = &match

	corr, target := e.resolve(ctx, in, match)
	out.Correction = corr
	if target != nil {
		out.Tenant = *target
	}
	if corr.ActionTaken.NeedsReview() {
		out.FlagWrongTenant = true
		e.saveCandidates(ctx, in.DocumentID, match.Candidates)
	}

	zap.L().Info("attribution: tenant mismatch resolved",
		zap.String("document_id", in.DocumentID),
		zap.String("from_tenant", in.Tenant.ID),
		zap.String("action", string(corr.ActionTaken)),
		zap.Int("candidates", len(match.Candidates)),
		zap.Bool("multi_tenant", match.IsMultiTenant),
	)
	return out
}

func (e *Engine) debug(msg string, fields ...zap.Field) {
	if e.cfg.DebugEnabled {
		zap.L().Debug(msg, fields...)
	}
}
