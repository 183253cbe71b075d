// Package document runs the end-to-end processing of one uploaded document:
// download, duplicate detection, AI extraction, tenant attribution and
// draft ledger materialization.
package document

import (
	"context"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/ledger-intake/internal/attribution"
	"github.com/sells-group/ledger-intake/internal/blob"
	"github.com/sells-group/ledger-intake/internal/cost"
	"github.com/sells-group/ledger-intake/internal/ledger"
	"github.com/sells-group/ledger-intake/internal/model"
	"github.com/sells-group/ledger-intake/internal/provider"
	"github.com/sells-group/ledger-intake/internal/ratelimit"
)

// ErrRateLimited marks a run rejected by the tenant's rate limit.
var ErrRateLimited = eris.New("document: rate limited")

// RateLimitError carries the rejected decision. It matches ErrRateLimited
// with errors.Is.
type RateLimitError struct {
	Decision ratelimit.Decision
}

func (e *RateLimitError) Error() string { return e.Decision.Message() }

// Is implements errors.Is.
func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// DocumentStore reads and updates documents.
type DocumentStore interface {
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	UpdateDocument(ctx context.Context, id string, u model.DocumentUpdate) error
	FindByTenantAndHash(ctx context.Context, tenantID, hash, excludeID string) ([]string, error)
	FindTransactionByDocumentID(ctx context.Context, documentID string) (string, error)
	UpsertDocumentData(ctx context.Context, documentID string, doc *model.ExtractedDocument, raw map[string]any) error
}

// LedgerStore writes draft ledger records.
type LedgerStore interface {
	CreateTransaction(ctx context.Context, tx ledger.Transaction) (string, error)
	ReplaceTransaction(ctx context.Context, id string, tx ledger.Transaction) error
	SaveStatement(ctx context.Context, st ledger.Statement, lines []ledger.StatementLine) (string, error)
}

// SettingsStore resolves per-tenant configuration.
type SettingsStore interface {
	ResolveProvider(ctx context.Context, tenantID string) (*model.ProviderConfig, error)
	MismatchPolicy(ctx context.Context, tenantID string) (model.MismatchPolicy, error)
	AccessibleTenantIDs(ctx context.Context, userID string) ([]string, error)
}

// UsageSink records AI usage.
type UsageSink interface {
	LogUsage(ctx context.Context, r model.UsageRecord) error
}

// Extractor runs a vision provider. *provider.Registry implements it.
type Extractor interface {
	Extract(ctx context.Context, req provider.Request) (*provider.Extraction, error)
}

// Attributor decides tenant ownership. *attribution.Engine implements it.
type Attributor interface {
	Attribute(ctx context.Context, in attribution.Input) attribution.Outcome
}

// Deps are the collaborators of a Processor. Limiter and Costs are
// optional.
type Deps struct {
	Documents  DocumentStore
	Ledger     LedgerStore
	Settings   SettingsStore
	Usage      UsageSink
	Blobs      blob.Downloader
	Extractor  Extractor
	Attributor Attributor
	Limiter    ratelimit.Limiter
	Costs      *cost.Calculator
}

// Processor processes documents one at a time. It is safe for concurrent
// use on different documents.
type Processor struct {
	Deps
	builder *ledger.Builder
}

// NewProcessor creates a Processor.
func NewProcessor(d Deps) *Processor {
	if d.Limiter == nil {
		d.Limiter = ratelimit.None{}
	}
	return &Processor{Deps: d, builder: ledger.NewBuilder()}
}

// ProcessDocument runs the full pipeline for one document. A missing
// document returns a 404 result without touching state; any later failure
// leaves the document FAILED with the error message stored.
func (p *Processor) ProcessDocument(ctx context.Context, id string) model.ProcessingResult {
	log := zap.L().With(zap.String("document_id", id))

	doc, err := p.Documents.GetDocument(ctx, id)
	if err != nil {
		log.Error("document: fetch failed", zap.Error(err))
		return model.FailedResult(err.Error(), http.StatusInternalServerError)
	}
	if doc == nil {
		return model.NotFoundResult("Document not found")
	}
	log = log.With(zap.String("tenant_id", doc.TenantID))

	lc := model.NewLifecycle(doc.Status)
	if err := lc.Begin(); err != nil {
		return model.FailedResult(err.Error(), http.StatusConflict)
	}
	processing := model.StatusProcessing
	if err := p.Documents.UpdateDocument(ctx, id, model.DocumentUpdate{Status: &processing}); err != nil {
		log.Error("document: mark processing failed", zap.Error(err))
		return model.FailedResult(err.Error(), http.StatusInternalServerError)
	}

	st, err := p.run(ctx, doc, log)
	if err == nil {
		err = p.finish(ctx, doc.ID, lc, st)
	}
	if err != nil {
		return p.fail(ctx, doc.ID, lc, err, log)
	}

	log.Info("document: processed",
		zap.String("validation_status", string(st.validation.Status())),
		zap.Bool("records_created", st.recordsCreated),
	)
	return st.result()
}

func (p *Processor) finish(ctx context.Context, id string, lc *model.Lifecycle, st *runState) error {
	if err := lc.Finish(model.StatusProcessed); err != nil {
		return err
	}
	status := model.StatusProcessed
	vs := st.validation.Status()
	empty := ""
	err := p.Documents.UpdateDocument(ctx, id, model.DocumentUpdate{
		Status:           &status,
		ValidationStatus: &vs,
		ValidationFlags:  st.validation.Flags(),
		DocumentType:     &st.extracted.DocumentType,
		ErrorMessage:     &empty,
	})
	return eris.Wrap(err, "document: mark processed")
}

// fail moves the document to FAILED and builds the failure result. Rate
// limit rejections map to 429.
func (p *Processor) fail(ctx context.Context, id string, lc *model.Lifecycle, err error, log *zap.Logger) model.ProcessingResult {
	code := http.StatusInternalServerError
	var rl *RateLimitError
	if errors.As(err, &rl) || errors.Is(err, ErrRateLimited) {
		code = http.StatusTooManyRequests
	}
	msg := err.Error()
	log.Error("document: processing failed", zap.Int("status_code", code), zap.Error(err))

	if lc.Status() == model.StatusProcessing {
		_ = lc.Finish(model.StatusFailed)
	}
	failed := model.StatusFailed
	if uerr := p.Documents.UpdateDocument(ctx, id, model.DocumentUpdate{Status: &failed, ErrorMessage: &msg}); uerr != nil {
		log.Error("document: mark failed", zap.Error(uerr))
	}
	return model.FailedResult(msg, code)
}
