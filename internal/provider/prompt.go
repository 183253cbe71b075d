package provider

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// systemPrompt is shared by every adapter.
const systemPrompt = `You extract structured data from financial documents for a bookkeeping system.
Return exactly one JSON object and nothing else.

Fields:
- document_type: one of invoice, receipt, credit_note, bank_statement, other
- vendor_name, customer_name, vendor_tax_id, customer_tax_id, tax_id
- vendor_email, customer_email, website
- invoice_number, document_date, due_date (YYYY-MM-DD)
- total_amount, subtotal, tax_amount (numbers, no currency symbols)
- currency (ISO 4217 code)
- line_items: [{description, quantity, unit_price, amount}]
- bank_name, account_number, account_holder_name
- statement_period_start, statement_period_end, opening_balance, closing_balance
- transactions: [{date, description, amount, balance, type}] where type is DEBIT or CREDIT and amount is positive
- is_belongs_to_tenant: true if the tenant below is a party to the document, false if it clearly is not, null if unsure
- confidence_score: 0 to 1

Copy party names exactly as printed, keeping both languages when a name is bilingual.
Omit fields that are not present rather than guessing.`

type tenantBlock struct {
	Name    string   `yaml:"name"`
	Locale  string   `yaml:"locale,omitempty"`
	Aliases []string `yaml:"aliases,omitempty"`
}

// userPrompt describes the uploading tenant so the model can judge
// is_belongs_to_tenant.
func userPrompt(req Request) string {
	block, err := yaml.Marshal(map[string]tenantBlock{"tenant": {
		Name:    req.TenantName,
		Locale:  req.Locale,
		Aliases: req.Aliases,
	}})
	if err != nil {
		block = []byte("tenant:\n  name: " + req.TenantName + "\n")
	}

	var b strings.Builder
	b.WriteString("The document was uploaded by this tenant:\n\n")
	b.Write(block)
	b.WriteString("\nExtract the fields from the attached document.")
	return b.String()
}
