// Package ledger turns an extracted document into draft bookkeeping records:
// a two-line double-entry transaction for invoices and receipts, or a
// statement with its lines for bank statements.
package ledger

import (
	"time"

	"github.com/rotisserie/eris"
	"github.com/shopspring/decimal"

	"github.com/sells-group/ledger-intake/internal/model"
	"github.com/sells-group/ledger-intake/internal/normalize"
)

// Side is the debit or credit side of a line item.
type Side string

const (
	Debit  Side = "DEBIT"
	Credit Side = "CREDIT"
)

// Account is a system chart-of-accounts code.
type Account string

const (
	AccountExpense    Account = "EXPENSE"
	AccountPayable    Account = "ACCOUNTS_PAYABLE"
	AccountReceivable Account = "ACCOUNTS_RECEIVABLE"
	AccountRevenue    Account = "REVENUE"
)

// Direction says whether the tenant is buying or selling.
type Direction string

const (
	DirectionExpense Direction = "EXPENSE"
	DirectionIncome  Direction = "INCOME"
)

// StatusDraft is the status of every generated transaction.
const StatusDraft = "DRAFT"

// ErrNoAmount is returned when the document has no usable total.
var ErrNoAmount = eris.New("ledger: document has no total amount")

// LineItem is one side of a double-entry transaction.
type LineItem struct {
	Account       Account             `json:"account"`
	Side          Side                `json:"side"`
	Amount        decimal.Decimal     `json:"amount"`
	ForeignAmount decimal.NullDecimal `json:"foreign_amount"`
	Description   string              `json:"description,omitempty"`
}

// Transaction is a draft ledger transaction for one document.
type Transaction struct {
	TenantID        string              `json:"tenant_id"`
	DocumentID      string              `json:"document_id"`
	Date            string              `json:"date"`
	Description     string              `json:"description"`
	Reference       string              `json:"reference,omitempty"`
	Direction       Direction           `json:"direction"`
	Amount          decimal.Decimal     `json:"amount"`
	TaxAmount       decimal.NullDecimal `json:"tax_amount"`
	Currency        string              `json:"currency"`
	ForeignCurrency string              `json:"foreign_currency,omitempty"`
	ForeignAmount   decimal.NullDecimal `json:"foreign_amount"`
	Status          string              `json:"status"`
	Lines           []LineItem          `json:"lines"`
}

// Builder creates ledger records. now is injectable for tests.
type Builder struct {
	now func() time.Time
}

// NewBuilder creates a Builder.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// Transaction builds the draft transaction for an invoice, receipt or credit
// note. When the vendor is the tenant itself the document is a sale and books
// receivable against revenue; otherwise it books expense against payable.
// Credit notes swap the sides.
func (b *Builder) Transaction(doc *model.ExtractedDocument, tenant model.TenantContext, documentID string) (Transaction, error) {
	if doc == nil || !doc.TotalAmount.Valid || doc.TotalAmount.Decimal.IsZero() {
		return Transaction{}, ErrNoAmount
	}
	total := doc.TotalAmount.Decimal.Abs().Round(2)

	dir := DirectionExpense
	debit, credit := AccountExpense, AccountPayable
	counterparty := doc.VendorName
	if normalize.NamesMatch(doc.VendorName, tenant.Names()) {
		dir = DirectionIncome
		debit, credit = AccountReceivable, AccountRevenue
		counterparty = doc.CustomerName
	}
	if doc.DocumentType == model.DocumentTypeCreditNote {
		debit, credit = credit, debit
	}

	tx := Transaction{
		TenantID:    tenant.ID,
		DocumentID:  documentID,
		Date:        b.date(doc.DocumentDate),
		Description: description(doc.DocumentType, counterparty),
		Reference:   doc.InvoiceNumber,
		Direction:   dir,
		Amount:      total,
		TaxAmount:   doc.TaxAmount,
		Currency:    tenant.Currency,
		Status:      StatusDraft,
	}
	if tx.Currency == "" {
		tx.Currency = doc.Currency
	}

	var foreign decimal.NullDecimal
	if doc.Currency != "" && tenant.Currency != "" && doc.Currency != tenant.Currency {
		foreign = decimal.NewNullDecimal(total)
		tx.ForeignCurrency = doc.Currency
		tx.ForeignAmount = foreign
	}

	tx.Lines = []LineItem{
		{Account: debit, Side: Debit, Amount: total, ForeignAmount: foreign, Description: tx.Description},
		{Account: credit, Side: Credit, Amount: total, ForeignAmount: foreign, Description: tx.Description},
	}
	return tx, nil
}

func (b *Builder) date(d string) string {
	if d = isoDate(d); d != "" {
		return d
	}
	return b.now().UTC().Format(time.DateOnly)
}

// isoDate returns d when it is a YYYY-MM-DD date and "" otherwise, so values
// the sanitizer could not normalize never reach a DATE column.
func isoDate(d string) string {
	if _, err := time.Parse(time.DateOnly, d); err != nil {
		return ""
	}
	return d
}

func description(t model.DocumentType, counterparty string) string {
	label := "Document"
	switch t {
	case model.DocumentTypeInvoice:
		label = "Invoice"
	case model.DocumentTypeReceipt:
		label = "Receipt"
	case model.DocumentTypeCreditNote:
		label = "Credit note"
	}
	if counterparty == "" {
		return label
	}
	return label + " - " + counterparty
}
