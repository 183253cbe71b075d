package sanitize

import (
	"sort"
	"strings"
	"unicode"
)

// synonym maps provider-specific keys onto one canonical key. The order of
// keys is the priority order: the first present, non-empty key wins.
type synonym struct {
	canonical string
	keys      []string
}

var synonyms = []synonym{
	{"vendor_name", []string{"supplier_name", "merchant_name", "seller_name", "issuer_name", "payee_name", "vendor", "from", "sender_name", "bill_from", "billed_from"}},
	{"customer_name", []string{"buyer_name", "client_name", "bill_to", "billed_to", "bill_to_name", "recipient_name", "customer", "client", "buyer", "sold_to", "payer_name", "to"}},
	{"tax_amount", []string{"tax", "vat_amount", "gst_amount", "sales_tax", "tax_total"}},
	{"total_amount", []string{"total", "grand_total", "amount_due", "total_due", "amount"}},
	{"subtotal", []string{"sub_total", "net_amount", "amount_before_tax"}},
	{"document_date", []string{"date", "invoice_date", "receipt_date", "issue_date", "transaction_date"}},
	{"due_date", []string{"payment_due_date", "due"}},
	{"invoice_number", []string{"invoice_no", "receipt_number", "document_number", "reference_number"}},
	{"opening_balance", []string{"beginning_balance", "previous_balance", "balance_brought_forward", "start_balance", "starting_balance"}},
	{"closing_balance", []string{"ending_balance", "new_balance", "balance_carried_forward", "end_balance"}},
	{"statement_period_start", []string{"period_start", "start_date", "from_date"}},
	{"statement_period_end", []string{"period_end", "end_date", "to_date"}},
	{"account_holder_name", []string{"account_name", "account_holder", "holder_name"}},
	{"account_number", []string{"account_no", "iban", "account"}},
	{"tax_id", []string{"tax_number", "vat_number", "tin", "gst_number"}},
	{"vendor_tax_id", []string{"supplier_tax_id", "seller_tax_id", "vendor_vat_number"}},
	{"customer_tax_id", []string{"buyer_tax_id", "client_tax_id", "customer_vat_number"}},
	{"vendor_email", []string{"supplier_email", "seller_email", "email"}},
	{"customer_email", []string{"buyer_email", "client_email", "bill_to_email"}},
	{"website", []string{"vendor_website", "url", "web"}},
	{"currency", []string{"currency_code"}},
	{"confidence_score", []string{"confidence", "overall_confidence"}},
	{"is_belongs_to_tenant", []string{"belongs_to_tenant", "belongs_to_current_tenant", "belongs_to_company"}},
	{"transactions", []string{"bank_transactions", "statement_lines", "entries"}},
	{"line_items", []string{"items", "lines"}},
}

// present reports whether v carries a value. false and 0 count as present.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	default:
		return true
	}
}

// resolveSynonyms returns a copy of raw in which every canonical key that is
// missing has been filled from its synonyms. Existing canonical values are
// never overwritten.
func resolveSynonyms(raw map[string]any) map[string]any {
	m := foldKeys(raw)
	for _, s := range synonyms {
		if present(m[s.canonical]) {
			continue
		}
		for _, k := range s.keys {
			if v := m[k]; present(v) {
				m[s.canonical] = v
				break
			}
		}
	}
	return m
}

// foldKeys rewrites every key of raw in canonical snake case. When several
// raw keys fold to the same key, a present value whose spelling is already
// canonical wins, then the first present value in sorted key order.
func foldKeys(raw map[string]any) map[string]any {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ei, ej := keys[i] == canonicalKey(keys[i]), keys[j] == canonicalKey(keys[j])
		if ei != ej {
			return ei
		}
		return keys[i] < keys[j]
	})

	m := make(map[string]any, len(raw))
	for _, k := range keys {
		key := canonicalKey(k)
		if prev, dup := m[key]; dup && (present(prev) || !present(raw[k])) {
			continue
		}
		m[key] = raw[k]
	}
	return m
}

// first returns the first present value among keys.
func first(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v := m[k]; present(v) {
			return v
		}
	}
	return nil
}

// canonicalKey folds "VendorName", "vendor-name" and "Vendor Name" to
// "vendor_name".
func canonicalKey(k string) string {
	var b strings.Builder
	prevLower := false
	for _, r := range strings.TrimSpace(k) {
		switch {
		case r == ' ' || r == '-' || r == '.':
			b.WriteByte('_')
			prevLower = false
		case unicode.IsUpper(r):
			if prevLower {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			prevLower = false
		default:
			b.WriteRune(r)
			prevLower = unicode.IsLower(r) || unicode.IsDigit(r)
		}
	}
	return b.String()
}
