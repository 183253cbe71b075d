package document

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ledger-intake/internal/attribution"
	"github.com/sells-group/ledger-intake/internal/ledger"
	"github.com/sells-group/ledger-intake/internal/model"
	"github.com/sells-group/ledger-intake/internal/normalize"
	"github.com/sells-group/ledger-intake/internal/provider"
	"github.com/sells-group/ledger-intake/internal/resilience"
	"github.com/sells-group/ledger-intake/internal/sanitize"
)

// runState is what one run has learned so far.
type runState struct {
	validation     model.Validation
	duplicate      bool
	existingTxID   string
	extracted      *model.ExtractedDocument
	outcome        attribution.Outcome
	recordsCreated bool
}

func (s *runState) result() model.ProcessingResult {
	r := model.ProcessingResult{
		Success:          true,
		ValidationStatus: s.validation.Status(),
		ValidationFlags:  s.validation.Flags(),
		TenantCorrection: s.outcome.Correction,
		RecordsCreated:   s.recordsCreated,
	}
	if m := s.outcome.Match; m != nil {
		r.TenantCandidates = m.Candidates
		r.IsMultiTenant = m.IsMultiTenant
	}
	return r
}

func (p *Processor) run(ctx context.Context, doc *model.Document, log *zap.Logger) (*runState, error) {
	st := &runState{}

	data, err := p.Blobs.Download(ctx, doc.FilePath)
	if err != nil {
		return nil, eris.Wrapf(err, "document: download %s", doc.FilePath)
	}
	hash := ContentHash(data)

	if err := p.detectDuplicate(ctx, doc, hash, st); err != nil {
		return nil, err
	}
	vs := st.validation.Status()
	if err := p.Documents.UpdateDocument(ctx, doc.ID, model.DocumentUpdate{
		ContentHash:      &hash,
		ValidationStatus: &vs,
		ValidationFlags:  st.validation.Flags(),
	}); err != nil {
		return nil, eris.Wrap(err, "document: persist hash")
	}

	cfg, err := p.Settings.ResolveProvider(ctx, doc.TenantID)
	if err != nil {
		return nil, eris.Wrap(err, "document: resolve provider")
	}

	if err := p.checkRateLimit(ctx, doc.TenantID, log); err != nil {
		return nil, err
	}

	ext, err := p.Extractor.Extract(ctx, provider.Request{
		Provider:   cfg.Name,
		Model:      cfg.Model,
		Data:       data,
		MimeType:   MimeType(doc.FileType, doc.FilePath, data),
		TenantName: doc.Tenant.Name,
		Locale:     doc.Tenant.Locale,
		Aliases:    doc.Tenant.Aliases,
	})
	if err != nil {
		return nil, err
	}

	st.extracted = p.normalize(ext.Raw, doc)
	p.logUsage(ctx, doc, cfg, ext)

	st.outcome = p.attribute(ctx, doc, st.extracted, log)
	if st.outcome.FlagWrongTenant {
		st.validation.Add(model.FlagWrongTenant)
	}

	if err := p.Documents.UpsertDocumentData(ctx, doc.ID, st.extracted, ext.Raw); err != nil {
		return nil, eris.Wrap(err, "document: save extracted data")
	}

	if err := p.materialize(ctx, doc, st, log); err != nil {
		return nil, err
	}
	return st, nil
}

// ContentHash is the hex SHA-256 of the file bytes.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// detectDuplicate flags the document when another upload in the tenant has
// the same bytes, and finds a transaction that reprocessing should update:
// this document's own, or else the original duplicate's.
func (p *Processor) detectDuplicate(ctx context.Context, doc *model.Document, hash string, st *runState) error {
	var (
		dups  []string
		ownTx string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := p.Documents.FindByTenantAndHash(gctx, doc.TenantID, hash, doc.ID)
		dups = ids
		return eris.Wrap(err, "document: duplicate lookup")
	})
	g.Go(func() error {
		id, err := p.Documents.FindTransactionByDocumentID(gctx, doc.ID)
		ownTx = id
		return eris.Wrap(err, "document: transaction lookup")
	})
	if err := g.Wait(); err != nil {
		return err
	}

	st.existingTxID = ownTx
	if len(dups) == 0 {
		return nil
	}
	st.duplicate = true
	st.validation.Add(model.FlagDuplicateDocument)
	if st.existingTxID != "" {
		return nil
	}
	for _, id := range dups {
		txID, err := p.Documents.FindTransactionByDocumentID(ctx, id)
		if err != nil {
			return eris.Wrap(err, "document: original transaction lookup")
		}
		if txID != "" {
			st.existingTxID = txID
			return nil
		}
	}
	return nil
}

// checkRateLimit fails open when the limiter itself errors.
func (p *Processor) checkRateLimit(ctx context.Context, tenantID string, log *zap.Logger) error {
	d, err := p.Limiter.Allow(ctx, tenantID)
	if err != nil {
		log.Warn("document: rate limit check failed, continuing", zap.Error(err))
		return nil
	}
	if !d.Allowed {
		return &RateLimitError{Decision: d}
	}
	return nil
}

// normalize sanitizes the raw extraction, picks locale-preferred names and
// fills a missing tax amount from the tenant's default rate.
func (p *Processor) normalize(raw map[string]any, doc *model.Document) *model.ExtractedDocument {
	ex := sanitize.Sanitize(raw)
	if ex.DocumentType == model.DocumentTypeOther && doc.DocumentType != "" && doc.DocumentType != model.DocumentTypeOther {
		ex.DocumentType = doc.DocumentType
	}

	locale := doc.Tenant.Locale
	for _, name := range []*string{&ex.VendorName, &ex.CustomerName, &ex.AccountHolderName} {
		if v := normalize.ChooseLocalePreferredName(*name, locale); v != "" {
			*name = v
		}
	}

	ApplyTaxDefault(ex, doc.Tenant.DefaultTaxRate)
	return ex
}

// ApplyTaxDefault sets tax_amount = round(total * rate, 2) when the
// extraction has none, the total is positive and 0 < rate <= 1.
func ApplyTaxDefault(ex *model.ExtractedDocument, rate *float64) {
	if ex.TaxAmount.Valid || rate == nil || *rate <= 0 || *rate > 1 {
		return
	}
	if !ex.TotalAmount.Valid || !ex.TotalAmount.Decimal.IsPositive() {
		return
	}
	tax := ex.TotalAmount.Decimal.Mul(decimal.NewFromFloat(*rate)).Round(2)
	ex.TaxAmount = decimal.NewNullDecimal(tax)
}

func (p *Processor) logUsage(ctx context.Context, doc *model.Document, cfg *model.ProviderConfig, ext *provider.Extraction) {
	if p.Usage == nil {
		return
	}
	modelName := ext.Model
	if modelName == "" {
		modelName = cfg.Model
	}
	rec := model.UsageRecord{
		TenantID:     doc.TenantID,
		DocumentID:   doc.ID,
		ProviderID:   cfg.ID,
		Provider:     cfg.Name,
		Model:        modelName,
		InputTokens:  ext.InputTokens,
		OutputTokens: ext.OutputTokens,
		CreatedAt:    time.Now().UTC(),
	}
	if p.Costs != nil {
		rec.EstimatedCostUSD = p.Costs.Estimate(cfg.Name, modelName, ext.InputTokens, ext.OutputTokens)
	}
	resilience.Attempt(ctx, "document.log_usage", func(ctx context.Context) error {
		return p.Usage.LogUsage(ctx, rec)
	}, zap.String("document_id", doc.ID))
}

func (p *Processor) attribute(ctx context.Context, doc *model.Document, ex *model.ExtractedDocument, log *zap.Logger) attribution.Outcome {
	policy, err := p.Settings.MismatchPolicy(ctx, doc.TenantID)
	if err != nil {
		log.Warn("document: load mismatch policy failed, using defaults", zap.Error(err))
	}

	actor, ok := ActorFrom(ctx)
	if !ok {
		actor = model.Actor{UserID: doc.UploadedBy}
	}
	accessible, err := p.Settings.AccessibleTenantIDs(ctx, actor.UserID)
	if err != nil {
		log.Warn("document: list accessible tenants failed", zap.Error(err))
	}

	return p.Attributor.Attribute(ctx, attribution.Input{
		Document:            ex,
		DocumentID:          doc.ID,
		Tenant:              doc.Tenant,
		Policy:              policy,
		Actor:               actor,
		AccessibleTenantIDs: accessible,
	})
}

// materialize writes draft ledger records unless the document is a
// duplicate or misfiled with nothing to update.
func (p *Processor) materialize(ctx context.Context, doc *model.Document, st *runState, log *zap.Logger) error {
	hasTx := st.existingTxID != ""
	wrongTenant := st.validation.Has(model.FlagWrongTenant) && !st.outcome.Corrected()
	if (st.duplicate && !hasTx) || (wrongTenant && !hasTx) {
		log.Info("document: skipping ledger records",
			zap.Bool("duplicate", st.duplicate), zap.Bool("wrong_tenant", wrongTenant))
		return nil
	}

	owner := st.outcome.Tenant
	if owner.ID == "" {
		owner = doc.Tenant
	}

	if st.extracted.IsBankStatement() {
		header, lines := p.builder.Statement(st.extracted, owner, doc.ID)
		if _, err := p.Ledger.SaveStatement(ctx, header, lines); err != nil {
			return eris.Wrap(err, "document: save bank statement")
		}
		st.recordsCreated = true
		return nil
	}

	tx, err := p.builder.Transaction(st.extracted, owner, doc.ID)
	if errors.Is(err, ledger.ErrNoAmount) {
		log.Info("document: no amount extracted, no transaction created")
		return nil
	}
	if err != nil {
		return err
	}
	if hasTx {
		if err := p.Ledger.ReplaceTransaction(ctx, st.existingTxID, tx); err != nil {
			return eris.Wrap(err, "document: update transaction")
		}
	} else if _, err := p.Ledger.CreateTransaction(ctx, tx); err != nil {
		return eris.Wrap(err, "document: create transaction")
	}
	st.recordsCreated = true
	return nil
}
