package ledger

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/ledger-intake/internal/model"
	"github.com/sells-group/ledger-intake/internal/sanitize"
)

func dec(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

var acme = model.TenantContext{ID: "t-acme", Name: "Acme Inc", Currency: "USD", Aliases: []string{"Acme"}}

func fixedBuilder() *Builder {
	return &Builder{now: func() time.Time { return time.Date(2024, 2, 10, 8, 0, 0, 0, time.UTC) }}
}

func TestTransaction_Expense(t *testing.T) {
	doc := &model.ExtractedDocument{
		DocumentType:  model.DocumentTypeInvoice,
		VendorName:    "Other Corp",
		CustomerName:  "Acme Incorporated",
		InvoiceNumber: "INV-7",
		DocumentDate:  "2024-01-31",
		TotalAmount:   dec("250.50"),
		Currency:      "USD",
	}

	tx, err := fixedBuilder().Transaction(doc, acme, "doc-1")
	require.NoError(t, err)

	assert.Equal(t, DirectionExpense, tx.Direction)
	assert.Equal(t, "2024-01-31", tx.Date)
	assert.Equal(t, "Invoice - Other Corp", tx.Description)
	assert.Equal(t, StatusDraft, tx.Status)
	assert.Empty(t, tx.ForeignCurrency)
	require.Len(t, tx.Lines, 2)
	assert.Equal(t, AccountExpense, tx.Lines[0].Account)
	assert.Equal(t, Debit, tx.Lines[0].Side)
	assert.Equal(t, AccountPayable, tx.Lines[1].Account)
	assert.Equal(t, Credit, tx.Lines[1].Side)
	assert.True(t, tx.Lines[0].Amount.Equal(decimal.RequireFromString("250.50")))
	assert.True(t, tx.Lines[0].Amount.Equal(tx.Lines[1].Amount))
}

func TestTransaction_IncomeWhenTenantIsVendor(t *testing.T) {
	doc := &model.ExtractedDocument{
		DocumentType: model.DocumentTypeInvoice,
		VendorName:   "ACME",
		CustomerName: "Buyer Ltd",
		TotalAmount:  dec("99"),
	}

	tx, err := fixedBuilder().Transaction(doc, acme, "doc-2")
	require.NoError(t, err)
	assert.Equal(t, DirectionIncome, tx.Direction)
	assert.Equal(t, AccountReceivable, tx.Lines[0].Account)
	assert.Equal(t, AccountRevenue, tx.Lines[1].Account)
	assert.Equal(t, "Invoice - Buyer Ltd", tx.Description)
	assert.Equal(t, "2024-02-10", tx.Date)
}

func TestTransaction_CreditNoteSwapsSides(t *testing.T) {
	doc := &model.ExtractedDocument{
		DocumentType: model.DocumentTypeCreditNote,
		VendorName:   "Other Corp",
		TotalAmount:  dec("-40"),
	}

	tx, err := fixedBuilder().Transaction(doc, acme, "doc-3")
	require.NoError(t, err)
	assert.Equal(t, AccountPayable, tx.Lines[0].Account)
	assert.Equal(t, Debit, tx.Lines[0].Side)
	assert.Equal(t, AccountExpense, tx.Lines[1].Account)
	assert.True(t, tx.Amount.Equal(decimal.NewFromInt(40)))
}

func TestTransaction_ForeignCurrency(t *testing.T) {
	doc := &model.ExtractedDocument{
		DocumentType: model.DocumentTypeReceipt,
		VendorName:   "Cafe",
		TotalAmount:  dec("12.345"),
		Currency:     "EUR",
	}

	tx, err := fixedBuilder().Transaction(doc, acme, "doc-4")
	require.NoError(t, err)
	assert.Equal(t, "USD", tx.Currency)
	assert.Equal(t, "EUR", tx.ForeignCurrency)
	require.True(t, tx.ForeignAmount.Valid)
	assert.Equal(t, "12.35", tx.ForeignAmount.Decimal.StringFixed(2))
	for _, l := range tx.Lines {
		assert.True(t, l.ForeignAmount.Valid)
	}
}

func TestTransaction_NoAmount(t *testing.T) {
	_, err := fixedBuilder().Transaction(&model.ExtractedDocument{VendorName: "X"}, acme, "doc-5")
	assert.ErrorIs(t, err, ErrNoAmount)

	_, err = fixedBuilder().Transaction(nil, acme, "doc-5")
	assert.ErrorIs(t, err, ErrNoAmount)
}

func TestStatement(t *testing.T) {
	doc := &model.ExtractedDocument{
		DocumentType:         model.DocumentTypeBankStatement,
		BankName:             "HSBC",
		AccountNumber:        "123-456",
		StatementPeriodStart: "2024-01-01",
		StatementPeriodEnd:   "2024-01-05",
		OpeningBalance:       dec("1000"),
		ClosingBalance:       dec("1060"),
		Transactions: []model.BankTransactionLine{
			{Date: "2024-01-01", Amount: dec("100"), Balance: dec("1100"), Type: model.TransactionCredit},
			{Date: "2024-01-03", Description: "no amount", Type: model.TransactionDebit},
			{Date: "2024-01-05", Amount: dec("40"), Balance: dec("1060"), Type: model.TransactionDebit},
		},
	}

	st, lines := fixedBuilder().Statement(doc, acme, "doc-6")
	assert.Equal(t, "doc-6", st.DocumentID)
	assert.Equal(t, "USD", st.Currency)
	assert.Equal(t, "HSBC", st.BankName)
	require.Len(t, lines, 2)
	assert.Equal(t, 0, lines[0].Position)
	assert.Equal(t, 1, lines[1].Position)
	assert.Equal(t, model.TransactionDebit, lines[1].Type)
	assert.Equal(t, "1060", lines[1].Balance.Decimal.String())
}

func TestTransaction_DayFirstDate(t *testing.T) {
	doc := sanitize.Sanitize(map[string]any{
		"document_type": "invoice",
		"vendor_name":   "Beta Trading Ltd",
		"total_amount":  "250.00",
		"document_date": "31/12/2024",
	})

	tx, err := fixedBuilder().Transaction(doc, acme, "doc-7")
	require.NoError(t, err)
	assert.Equal(t, "2024-12-31", tx.Date)
}

func TestTransaction_UnparseableDateFallsBackToToday(t *testing.T) {
	doc := sanitize.Sanitize(map[string]any{
		"document_type": "receipt",
		"vendor_name":   "Beta Trading Ltd",
		"total_amount":  "12.50",
		"document_date": "end of Q4",
	})
	require.Equal(t, "end of Q4", doc.DocumentDate)

	tx, err := fixedBuilder().Transaction(doc, acme, "doc-8")
	require.NoError(t, err)
	assert.Equal(t, "2024-02-10", tx.Date)
}

func TestStatement_DatesAreISOOrEmpty(t *testing.T) {
	doc := sanitize.Sanitize(map[string]any{
		"document_type":          "bank_statement",
		"statement_period_start": "early December",
		"statement_period_end":   "31/12/2024",
		"opening_balance":        "100",
		"transactions": []any{
			map[string]any{"date": "sometime", "amount": "5", "type": "DEBIT"},
			map[string]any{"date": "31/12/2024", "amount": "10", "type": "CREDIT"},
		},
	})

	st, lines := fixedBuilder().Statement(doc, acme, "doc-9")
	assert.Equal(t, "", st.PeriodStart)
	assert.Equal(t, "2024-12-31", st.PeriodEnd)
	require.Len(t, lines, 2)
	assert.Equal(t, "", lines[0].Date)
	assert.Equal(t, "2024-12-31", lines[1].Date)
}
