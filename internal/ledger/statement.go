package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/ledger-intake/internal/model"
)

// Statement is the stored header of a bank statement.
type Statement struct {
	TenantID       string              `json:"tenant_id"`
	DocumentID     string              `json:"document_id"`
	BankName       string              `json:"bank_name,omitempty"`
	AccountNumber  string              `json:"account_number,omitempty"`
	AccountHolder  string              `json:"account_holder_name,omitempty"`
	PeriodStart    string              `json:"statement_period_start,omitempty"`
	PeriodEnd      string              `json:"statement_period_end,omitempty"`
	OpeningBalance decimal.NullDecimal `json:"opening_balance"`
	ClosingBalance decimal.NullDecimal `json:"closing_balance"`
	Currency       string              `json:"currency,omitempty"`
}

// StatementLine is one stored bank transaction.
type StatementLine struct {
	Position    int                   `json:"position"`
	Date        string                `json:"date,omitempty"`
	Description string                `json:"description,omitempty"`
	Amount      decimal.Decimal       `json:"amount"`
	Balance     decimal.NullDecimal   `json:"balance"`
	Type        model.TransactionType `json:"type"`
}

// Statement builds the statement header and lines. Lines without an amount
// are dropped.
func (b *Builder) Statement(doc *model.ExtractedDocument, tenant model.TenantContext, documentID string) (Statement, []StatementLine) {
	st := Statement{
		TenantID:       tenant.ID,
		DocumentID:     documentID,
		BankName:       doc.BankName,
		AccountNumber:  doc.AccountNumber,
		AccountHolder:  doc.AccountHolderName,
		PeriodStart:    isoDate(doc.StatementPeriodStart),
		PeriodEnd:      isoDate(doc.StatementPeriodEnd),
		OpeningBalance: doc.OpeningBalance,
		ClosingBalance: doc.ClosingBalance,
		Currency:       doc.Currency,
	}
	if st.Currency == "" {
		st.Currency = tenant.Currency
	}

	lines := make([]StatementLine, 0, len(doc.Transactions))
	for _, tl := range doc.Transactions {
		if !tl.Amount.Valid {
			continue
		}
		lines = append(lines, StatementLine{
			Position:    len(lines),
			Date:        isoDate(tl.Date),
			Description: tl.Description,
			Amount:      tl.Amount.Decimal.Round(2),
			Balance:     tl.Balance,
			Type:        tl.Type,
		})
	}
	return st, lines
}
