package attribution

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/ledger-intake/internal/model"
	"github.com/sells-group/ledger-intake/internal/normalize"
)

// evidence is the result of comparing the document's party names with the
// tenant's names.
type evidence struct {
	vendorMatch   bool
	customerMatch bool
	holderMatch   bool
}

func gather(doc *model.ExtractedDocument, t model.TenantContext) evidence {
	names := t.Names()
	return evidence{
		vendorMatch:   normalize.NamesMatch(doc.VendorName, names),
		customerMatch: normalize.NamesMatch(doc.CustomerName, names),
		holderMatch:   normalize.NamesMatch(doc.AccountHolderName, names),
	}
}

func (ev evidence) nameMatch() bool {
	return ev.vendorMatch || ev.customerMatch
}

// mismatch reports whether some named party does not match the tenant.
func (ev evidence) mismatch(doc *model.ExtractedDocument) bool {
	return (doc.VendorName != "" && !ev.vendorMatch) ||
		(doc.CustomerName != "" && !ev.customerMatch) ||
		(doc.AccountHolderName != "" && !ev.holderMatch)
}

// belongs decides whether the document is the tenant's. The model's explicit
// verdict only counts when confidence is high or the names back it up;
// otherwise the name heuristics decide.
func (e *Engine) belongs(ctx context.Context, doc *model.ExtractedDocument, t model.TenantContext, ev evidence) bool {
	confident := doc.ConfidenceScore >= e.cfg.ConfidenceThreshold

	if hint := doc.IsBelongsToTenant; hint != nil {
		switch {
		case *hint && (confident || ev.nameMatch() || ev.holderMatch):
			e.debug("ownership: trusting explicit true", zap.Float64("confidence", doc.ConfidenceScore))
			return true
		case !*hint && (confident || (ev.mismatch(doc) && !ev.nameMatch() && !ev.holderMatch)):
			e.debug("ownership: trusting explicit false", zap.Float64("confidence", doc.ConfidenceScore))
			return false
		default:
			e.debug("ownership: explicit verdict not corroborated, using heuristics",
				zap.Bool("hint", *hint), zap.Float64("confidence", doc.ConfidenceScore))
		}
	}

	if doc.IsBankStatement() {
		return e.bankStatementBelongs(ctx, doc, t, ev)
	}
	return ev.nameMatch()
}

// bankStatementBelongs checks the account holder, then the account number,
// then whether the tenant name leaked into vendor or customer. A statement
// without a holder name is accepted.
func (e *Engine) bankStatementBelongs(ctx context.Context, doc *model.ExtractedDocument, t model.TenantContext, ev evidence) bool {
	if ev.holderMatch {
		return true
	}
	if doc.AccountNumber != "" && e.dir != nil {
		ok, err := e.dir.HasBankAccount(ctx, t.ID, doc.AccountNumber)
		if err != nil {
			zap.L().Warn("attribution: bank account lookup failed", zap.String("tenant_id", t.ID), zap.Error(err))
		} else if ok {
			return true
		}
	}
	if ev.nameMatch() {
		return true
	}
	return doc.AccountHolderName == ""
}

// shouldInvestigate gates candidate matching on a document that does not
// look like the tenant's. Receipts often omit the buyer, so they need a
// stronger signal than invoices.
func shouldInvestigate(doc *model.ExtractedDocument, ev evidence) bool {
	explicitNo := doc.IsBelongsToTenant != nil && !*doc.IsBelongsToTenant

	switch doc.DocumentType {
	case model.DocumentTypeReceipt:
		if explicitNo {
			return true
		}
		// A named customer that is not the tenant also covers the case where
		// both parties are named and neither matches.
		return doc.CustomerName != "" && !ev.customerMatch
	case model.DocumentTypeInvoice, model.DocumentTypeCreditNote:
		return doc.VendorName != "" || doc.CustomerName != ""
	case model.DocumentTypeBankStatement:
		return true
	default:
		return explicitNo
	}
}
