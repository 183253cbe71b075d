package document

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ledger-intake/internal/model"
)

// BatchResult pairs a document id with its processing result.
type BatchResult struct {
	DocumentID string                 `json:"document_id"`
	Result     model.ProcessingResult `json:"result"`
}

// ProcessBatch processes ids with at most concurrency documents in flight.
// Results are returned in input order.
func (p *Processor) ProcessBatch(ctx context.Context, ids []string, concurrency int) []BatchResult {
	if concurrency < 1 {
		concurrency = 1
	}
	out := make([]BatchResult, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, id := range ids {
		g.Go(func() error {
			out[i] = BatchResult{DocumentID: id, Result: p.ProcessDocument(gctx, id)}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
