package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DocumentType discriminates the shape of an extracted document.
type DocumentType string

const (
	DocumentTypeInvoice       DocumentType = "invoice"
	DocumentTypeReceipt       DocumentType = "receipt"
	DocumentTypeCreditNote    DocumentType = "credit_note"
	DocumentTypeBankStatement DocumentType = "bank_statement"
	DocumentTypeOther         DocumentType = "other"
)

// ParseDocumentType maps a provider-supplied type onto a known DocumentType.
// Unknown values become DocumentTypeOther.
func ParseDocumentType(s string) DocumentType {
	switch DocumentType(s) {
	case DocumentTypeInvoice, DocumentTypeReceipt, DocumentTypeCreditNote, DocumentTypeBankStatement:
		return DocumentType(s)
	}
	switch s {
	case "bill", "tax_invoice":
		return DocumentTypeInvoice
	case "statement", "bank statement":
		return DocumentTypeBankStatement
	case "credit note", "credit_memo":
		return DocumentTypeCreditNote
	}
	return DocumentTypeOther
}

// TransactionType is the direction of a bank statement line.
type TransactionType string

const (
	TransactionDebit  TransactionType = "DEBIT"
	TransactionCredit TransactionType = "CREDIT"
)

// BankTransactionLine is one row of a bank statement. Amount is always
// non-negative; Type carries the direction.
type BankTransactionLine struct {
	Date        string              `json:"date,omitempty"`
	Description string              `json:"description,omitempty"`
	Amount      decimal.NullDecimal `json:"amount"`
	Balance     decimal.NullDecimal `json:"balance"`
	Type        TransactionType     `json:"type"`
}

// Signed returns the amount with the sign implied by the line type.
func (l BankTransactionLine) Signed() decimal.Decimal {
	if !l.Amount.Valid {
		return decimal.Zero
	}
	if l.Type == TransactionDebit {
		return l.Amount.Decimal.Neg()
	}
	return l.Amount.Decimal
}

// LineItem is a single priced row on an invoice or receipt.
type LineItem struct {
	Description string              `json:"description,omitempty"`
	Quantity    decimal.NullDecimal `json:"quantity"`
	UnitPrice   decimal.NullDecimal `json:"unit_price"`
	Amount      decimal.NullDecimal `json:"amount"`
}

// ExtractedDocument is the canonical, sanitized view of what a vision provider
// returned. Downstream code never sees the raw provider payload.
type ExtractedDocument struct {
	DocumentType      DocumentType        `json:"document_type"`
	VendorName        string              `json:"vendor_name,omitempty"`
	CustomerName      string              `json:"customer_name,omitempty"`
	TaxID             string              `json:"tax_id,omitempty"`
	VendorTaxID       string              `json:"vendor_tax_id,omitempty"`
	CustomerTaxID     string              `json:"customer_tax_id,omitempty"`
	VendorEmail       string              `json:"vendor_email,omitempty"`
	CustomerEmail     string              `json:"customer_email,omitempty"`
	Website           string              `json:"website,omitempty"`
	InvoiceNumber     string              `json:"invoice_number,omitempty"`
	DocumentDate      string              `json:"document_date,omitempty"`
	DueDate           string              `json:"due_date,omitempty"`
	TotalAmount       decimal.NullDecimal `json:"total_amount"`
	Subtotal          decimal.NullDecimal `json:"subtotal"`
	TaxAmount         decimal.NullDecimal `json:"tax_amount"`
	Currency          string              `json:"currency,omitempty"`
	ConfidenceScore   float64             `json:"confidence_score"`
	IsBelongsToTenant *bool               `json:"is_belongs_to_tenant,omitempty"`
	LineItems         []LineItem          `json:"line_items,omitempty"`

	// Bank statement fields.
	BankName             string                `json:"bank_name,omitempty"`
	AccountNumber        string                `json:"account_number,omitempty"`
	AccountHolderName    string                `json:"account_holder_name,omitempty"`
	StatementPeriodStart string                `json:"statement_period_start,omitempty"`
	StatementPeriodEnd   string                `json:"statement_period_end,omitempty"`
	OpeningBalance       decimal.NullDecimal   `json:"opening_balance"`
	ClosingBalance       decimal.NullDecimal   `json:"closing_balance"`
	Transactions         []BankTransactionLine `json:"transactions,omitempty"`
}

// IsBankStatement reports whether the document is a bank statement.
func (d *ExtractedDocument) IsBankStatement() bool {
	return d.DocumentType == DocumentTypeBankStatement
}

// PartyNames returns the non-empty party names in priority order:
// vendor, customer, account holder.
func (d *ExtractedDocument) PartyNames() []string {
	var out []string
	for _, n := range []string{d.VendorName, d.CustomerName, d.AccountHolderName} {
		if n != "" {
			out = append(out, n)
		}
	}
	return out
}

// Document is a stored upload together with the tenant context needed to
// process it.
type Document struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	FilePath     string         `json:"file_path"`
	FileType     string         `json:"file_type"`
	DocumentType DocumentType   `json:"document_type"`
	Status       DocumentStatus `json:"status"`
	UploadedBy   string         `json:"uploaded_by,omitempty"`
	Tenant       TenantContext  `json:"tenant"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// DocumentUpdate is a partial update of a document row. Nil fields are left
// untouched.
type DocumentUpdate struct {
	Status           *DocumentStatus
	ValidationStatus *ValidationStatus
	ValidationFlags  []ValidationFlag
	ContentHash      *string
	ErrorMessage     *string
	DocumentType     *DocumentType
}

// UsageRecord is one row of the AI usage log.
type UsageRecord struct {
	TenantID         string
	DocumentID       string
	ProviderID       string
	Provider         string
	Model            string
	InputTokens      int64
	OutputTokens     int64
	EstimatedCostUSD float64
	CreatedAt        time.Time
}
