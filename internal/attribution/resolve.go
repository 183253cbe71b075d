package attribution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/ledger-intake/internal/model"
	"github.com/sells-group/ledger-intake/internal/normalize"
	"github.com/sells-group/ledger-intake/internal/resilience"
	"github.com/sells-group/ledger-intake/internal/tenant"
)

const slugRetries = 3

// resolve applies the first permitted correction: stop on multi-tenant
// documents, reassign to a confident candidate, reuse or create a tenant,
// or leave the document for review.
func (e *Engine) resolve(ctx context.Context, in Input, match model.TenantMatchResult) (*model.TenantCorrection, *model.TenantContext) {
	corr := &model.TenantCorrection{ActionTaken: model.CorrectionNone, FromTenantID: in.Tenant.ID}

	if match.IsMultiTenant {
		corr.ActionTaken = model.CorrectionSkippedMultiTenant
		corr.Message = "Document references more than one tenant; review required"
		return corr, nil
	}

	policy := in.Policy
	if best := match.Best(); best != nil && policy.AllowAutoReassignment && best.Confidence >= policy.MinConfidence {
		e.debug("attribution: reassigning", zap.String("target", best.TenantID), zap.Float64("confidence", best.Confidence))
		return e.reassign(ctx, in, corr, best.TenantID, best.TenantName, "")
	}

	if policy.AllowAutoTenantCreation && match.SuggestedTenantName != "" && in.Actor.UserID != "" {
		return e.createOrReuse(ctx, in, corr, match.SuggestedTenantName)
	}

	e.debug("attribution: no automatic correction permitted",
		zap.Bool("allow_reassignment", policy.AllowAutoReassignment),
		zap.Bool("allow_creation", policy.AllowAutoTenantCreation))
	return corr, nil
}

func (e *Engine) reassign(ctx context.Context, in Input, corr *model.TenantCorrection, targetID, targetName, note string) (*model.TenantCorrection, *model.TenantContext) {
	corr.ToTenantID = targetID
	corr.ToTenantName = targetName
	if err := e.dir.TransferDocument(ctx, in.DocumentID, targetID); err != nil {
		corr.ActionTaken = model.CorrectionFailed
		corr.Message = fmt.Sprintf("Transfer to %s failed: %v", targetID, err)
		return corr, nil
	}
	corr.ActionTaken = model.CorrectionReassigned
	corr.Message = note
	return corr, e.targetTenant(ctx, in.Tenant, targetID, targetName)
}

// targetTenant loads the tenant the document moved to, falling back to the
// current tenant's currency and locale when the lookup fails.
func (e *Engine) targetTenant(ctx context.Context, current model.TenantContext, id, name string) *model.TenantContext {
	t, err := e.dir.GetTenant(ctx, id)
	if err == nil && t != nil {
		return t
	}
	if err != nil {
		zap.L().Warn("attribution: load target tenant failed", zap.String("tenant_id", id), zap.Error(err))
	}
	return &model.TenantContext{
		ID:       id,
		Name:     name,
		OwnerID:  current.OwnerID,
		Currency: current.Currency,
		Locale:   current.Locale,
	}
}

func (e *Engine) createOrReuse(ctx context.Context, in Input, corr *model.TenantCorrection, name string) (*model.TenantCorrection, *model.TenantContext) {
	owner := in.Tenant.OwnerID
	if owner == "" {
		owner = in.Actor.UserID
	}

	if e.locker != nil {
		key := "tenant:" + owner + ":" + normalize.CompanyName(name)
		release, err := e.locker.Acquire(ctx, key)
		if err != nil {
			zap.L().Warn("attribution: creation lock unavailable, continuing unlocked", zap.String("key", key), zap.Error(err))
		} else {
			defer release()
		}
	}

	existing, err := e.dir.FindOwnedTenantByName(ctx, owner, name)
	if err != nil {
		zap.L().Warn("attribution: existing tenant lookup failed", zap.String("owner_id", owner), zap.Error(err))
	}
	if existing != nil {
		if existing.ID == in.Tenant.ID {
			corr.Message = fmt.Sprintf("Suggested tenant %q is the current tenant", name)
			return corr, nil
		}
		return e.reassign(ctx, in, corr, existing.ID, existing.Name,
			fmt.Sprintf("Reused existing tenant %q instead of creating a duplicate", existing.Name))
	}

	id, err := e.createTenant(ctx, model.NewTenant{
		Name:     name,
		Slug:     normalize.Slug(name),
		OwnerID:  owner,
		Currency: in.Tenant.Currency,
		Locale:   in.Tenant.Locale,
	})
	if err != nil {
		corr.ActionTaken = model.CorrectionFailed
		if isLimitError(err) {
			corr.ActionTaken = model.CorrectionLimitReached
		}
		corr.ToTenantName = name
		corr.Message = err.Error()
		return corr, nil
	}
	corr.ToTenantID = id
	corr.ToTenantName = name

	if err := e.dir.AddMembership(ctx, id, owner, model.RoleOwner); err != nil {
		corr.ActionTaken = model.CorrectionFailed
		corr.Message = fmt.Sprintf("Tenant %q created but owner membership failed: %v", name, err)
		return corr, nil
	}
	if in.Actor.UserID != owner {
		if err := e.dir.AddMembership(ctx, id, in.Actor.UserID, model.RoleAdmin); err != nil {
			corr.ActionTaken = model.CorrectionFailed
			corr.Message = fmt.Sprintf("Tenant %q created but actor membership failed: %v", name, err)
			return corr, nil
		}
	}
	resilience.Attempt(ctx, "attribution.add_alias", func(ctx context.Context) error {
		return e.dir.AddIdentifier(ctx, id, model.IdentifierNameAlias, name)
	}, zap.String("tenant_id", id))

	if err := e.dir.TransferDocument(ctx, in.DocumentID, id); err != nil {
		corr.ActionTaken = model.CorrectionFailed
		corr.Message = fmt.Sprintf("Tenant %q created but transfer failed: %v", name, err)
		return corr, nil
	}
	corr.ActionTaken = model.CorrectionCreated
	return corr, &model.TenantContext{
		ID:       id,
		Name:     name,
		OwnerID:  owner,
		Currency: in.Tenant.Currency,
		Locale:   in.Tenant.Locale,
	}
}

// createTenant inserts the tenant, adding a random suffix to the slug when
// it collides.
func (e *Engine) createTenant(ctx context.Context, t model.NewTenant) (string, error) {
	base := t.Slug
	for attempt := 0; ; attempt++ {
		id, err := e.dir.CreateTenant(ctx, t)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, tenant.ErrSlugTaken) || attempt >= slugRetries {
			return "", err
		}
		t.Slug = base + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
		e.debug("attribution: slug taken, retrying", zap.String("slug", t.Slug))
	}
}

var limitMarkers = []string{"limit reached", "limit exceeded", "tenant limit", "plan limit", "maximum number of"}

// isLimitError reports whether a creation failure is a plan or tenant-count
// limit rather than a fault.
func isLimitError(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, m := range limitMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

func (e *Engine) saveCandidates(ctx context.Context, documentID string, candidates []model.TenantCandidate) {
	if e.dir == nil || documentID == "" {
		return
	}
	resilience.Attempt(ctx, "attribution.save_candidates", func(ctx context.Context) error {
		return e.dir.SaveCandidates(ctx, documentID, candidates)
	}, zap.String("document_id", documentID))
}
