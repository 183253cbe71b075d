package tenant

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/ledger-intake/internal/model"
	"github.com/sells-group/ledger-intake/internal/normalize"
)

// Signal confidences.
const (
	ConfidenceTaxID       = 0.95
	ConfidenceDomain      = 0.85
	ConfidenceBankAccount = 0.95
	ConfidenceAlias       = 0.78
	ConfidenceTenantName  = 0.72
)

const (
	defaultConcurrency = 4
	maxNameTerms       = 6
	minNameLen         = 3
	minTaxIDLen        = 4
	minAccountLen      = 4
)

// freemailDomains never identify a tenant.
var freemailDomains = map[string]bool{
	"gmail.com": true, "googlemail.com": true, "yahoo.com": true, "outlook.com": true,
	"hotmail.com": true, "live.com": true, "icloud.com": true, "me.com": true,
	"aol.com": true, "proton.me": true, "protonmail.com": true, "qq.com": true,
	"163.com": true, "126.com": true,
}

// Query is the input to FindCandidates.
type Query struct {
	Document            *model.ExtractedDocument
	CurrentTenant       model.TenantContext
	AccessibleTenantIDs []string
}

// Matcher ranks the tenants an extracted document may belong to.
type Matcher struct {
	store       IdentifierStore
	concurrency int
}

// NewMatcher creates a Matcher. concurrency bounds the number of lookups in
// flight; values below 1 use the default.
func NewMatcher(store IdentifierStore, concurrency int) *Matcher {
	if concurrency < 1 {
		concurrency = defaultConcurrency
	}
	return &Matcher{store: store, concurrency: concurrency}
}

// lookup is one identifier query and how its rows become candidates.
type lookup struct {
	name       string
	confidence float64
	run        func(ctx context.Context, tenantIDs []string) ([]IdentifierMatch, error)
	reason     func(IdentifierMatch) string
}

// FindCandidates runs every lookup the document supports, in parallel, and
// merges the results. A failing lookup is logged and contributes nothing.
// Only tenants in q.AccessibleTenantIDs are considered and the current
// tenant is never a candidate.
func (m *Matcher) FindCandidates(ctx context.Context, q Query) model.TenantMatchResult {
	res := model.TenantMatchResult{}
	if q.Document == nil {
		return res
	}
	res.SuggestedTenantName = SuggestedTenantName(q.Document)

	allowed := make(map[string]bool, len(q.AccessibleTenantIDs))
	var ids []string
	for _, id := range q.AccessibleTenantIDs {
		if id == "" || id == q.CurrentTenant.ID || allowed[id] {
			continue
		}
		allowed[id] = true
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return res
	}

	lookups := m.lookups(q.Document)
	results := make([][]IdentifierMatch, len(lookups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)
	for i, l := range lookups {
		g.Go(func() error {
			rows, err := l.run(gctx, ids)
			if err != nil {
				zap.L().Warn("tenant: candidate lookup failed",
					zap.String("lookup", l.name),
					zap.String("tenant_id", q.CurrentTenant.ID),
					zap.Error(err),
				)
				return nil
			}
			results[i] = rows
			return nil
		})
	}
	_ = g.Wait()

	index := make(map[string]int)
	for i, l := range lookups {
		for _, row := range results[i] {
			if !allowed[row.TenantID] {
				continue
			}
			reason := l.reason(row)
			if at, ok := index[row.TenantID]; ok {
				c := &res.Candidates[at]
				if l.confidence > c.Confidence {
					c.Confidence = l.confidence
				}
				if !contains(c.Reasons, reason) {
					c.Reasons = append(c.Reasons, reason)
				}
				if c.TenantName == "" {
					c.TenantName = row.TenantName
				}
				continue
			}
			index[row.TenantID] = len(res.Candidates)
			res.Candidates = append(res.Candidates, model.TenantCandidate{
				TenantID:   row.TenantID,
				Confidence: l.confidence,
				Reasons:    []string{reason},
				TenantName: row.TenantName,
			})
		}
	}
	sort.SliceStable(res.Candidates, func(i, j int) bool {
		return res.Candidates[i].Confidence > res.Candidates[j].Confidence
	})

	if len(res.Candidates) > 1 {
		res.IsMultiTenant = true
	} else if len(res.Candidates) == 1 && currentTenantNamed(q.Document, q.CurrentTenant) {
		res.IsMultiTenant = true
	}

	zap.L().Debug("tenant: candidates computed",
		zap.String("tenant_id", q.CurrentTenant.ID),
		zap.Int("lookups", len(lookups)),
		zap.Int("candidates", len(res.Candidates)),
		zap.Bool("multi_tenant", res.IsMultiTenant),
	)
	return res
}

func (m *Matcher) lookups(doc *model.ExtractedDocument) []lookup {
	var out []lookup

	if taxIDs := taxIDs(doc); len(taxIDs) > 0 {
		out = append(out, lookup{
			name:       "tax_id",
			confidence: ConfidenceTaxID,
			run: func(ctx context.Context, ids []string) ([]IdentifierMatch, error) {
				return m.store.FindIdentifiers(ctx, model.IdentifierTaxID, taxIDs, ids)
			},
			reason: func(r IdentifierMatch) string { return fmt.Sprintf("Tax ID %s matches", r.Value) },
		})
	}

	if domains := domains(doc); len(domains) > 0 {
		out = append(out, lookup{
			name:       "domain",
			confidence: ConfidenceDomain,
			run: func(ctx context.Context, ids []string) ([]IdentifierMatch, error) {
				return m.store.FindIdentifiers(ctx, model.IdentifierDomain, domains, ids)
			},
			reason: func(r IdentifierMatch) string { return fmt.Sprintf("Domain %s matches", r.Value) },
		})
	}

	if acct := normalize.CleanTaxID(doc.AccountNumber); len(acct) >= minAccountLen {
		out = append(out, lookup{
			name:       "bank_account",
			confidence: ConfidenceBankAccount,
			run: func(ctx context.Context, ids []string) ([]IdentifierMatch, error) {
				return m.store.SearchBankAccounts(ctx, acct, ids)
			},
			reason: func(r IdentifierMatch) string {
				return fmt.Sprintf("Bank account ending %s matches", lastN(r.Value, 4))
			},
		})
	}

	terms := nameTerms(doc)
	for _, term := range terms {
		out = append(out, lookup{
			name:       "name_alias",
			confidence: ConfidenceAlias,
			run: func(ctx context.Context, ids []string) ([]IdentifierMatch, error) {
				return m.store.SearchAliases(ctx, term, ids)
			},
			reason: func(r IdentifierMatch) string {
				return fmt.Sprintf("Name %q matches alias %q", term, r.Value)
			},
		})
	}
	for _, term := range terms {
		out = append(out, lookup{
			name:       "tenant_name",
			confidence: ConfidenceTenantName,
			run: func(ctx context.Context, ids []string) ([]IdentifierMatch, error) {
				return m.store.SearchTenantNames(ctx, term, ids)
			},
			reason: func(r IdentifierMatch) string {
				return fmt.Sprintf("Name %q matches tenant name %q", term, r.TenantName)
			},
		})
	}
	return out
}

// SuggestedTenantName is the name to use when auto-creating a tenant for the
// document: customer, then account holder, then vendor.
func SuggestedTenantName(doc *model.ExtractedDocument) string {
	for _, n := range []string{doc.CustomerName, doc.AccountHolderName, doc.VendorName} {
		n = strings.TrimSpace(n)
		if utf8.RuneCountInString(n) >= 2 {
			return n
		}
	}
	return ""
}

func currentTenantNamed(doc *model.ExtractedDocument, current model.TenantContext) bool {
	names := current.Names()
	if len(names) == 0 {
		return false
	}
	for _, party := range doc.PartyNames() {
		if normalize.NamesMatch(party, names) {
			return true
		}
	}
	return false
}

func taxIDs(doc *model.ExtractedDocument) []string {
	var out []string
	for _, v := range []string{doc.TaxID, doc.VendorTaxID, doc.CustomerTaxID} {
		v = normalize.CleanTaxID(v)
		if len(v) >= minTaxIDLen && !contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func domains(doc *model.ExtractedDocument) []string {
	var out []string
	for _, v := range []string{doc.VendorEmail, doc.CustomerEmail, doc.Website} {
		d := normalize.Domain(v)
		if d == "" || freemailDomains[d] || contains(out, d) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// nameTerms returns the distinct party names and their bilingual parts that
// are long enough to search for.
func nameTerms(doc *model.ExtractedDocument) []string {
	var out []string
	for _, party := range doc.PartyNames() {
		for _, cand := range normalize.SplitBilingualCandidates(party) {
			if utf8.RuneCountInString(cand) < minNameLen || containsFold(out, cand) {
				continue
			}
			out = append(out, cand)
			if len(out) == maxNameTerms {
				return out
			}
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, x := range list {
		if strings.EqualFold(x, s) {
			return true
		}
	}
	return false
}

func lastN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
