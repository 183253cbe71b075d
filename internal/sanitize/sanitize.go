// Package sanitize turns the loosely shaped JSON a vision provider returns
// into a canonical model.ExtractedDocument.
package sanitize

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sells-group/ledger-intake/internal/model"
	"github.com/sells-group/ledger-intake/internal/normalize"
)

// Sanitize maps raw provider output onto the canonical document shape. It
// never fails: unusable values are dropped or left as the provider sent them.
func Sanitize(raw map[string]any) *model.ExtractedDocument {
	m := resolveSynonyms(raw)

	doc := &model.ExtractedDocument{
		DocumentType:      model.ParseDocumentType(strings.ToLower(normalize.CleanText(m["document_type"]))),
		VendorName:        normalize.CleanText(m["vendor_name"]),
		CustomerName:      normalize.CleanText(m["customer_name"]),
		TaxID:             normalize.CleanTaxID(m["tax_id"]),
		VendorTaxID:       normalize.CleanTaxID(m["vendor_tax_id"]),
		CustomerTaxID:     normalize.CleanTaxID(m["customer_tax_id"]),
		VendorEmail:       normalize.CleanText(m["vendor_email"]),
		CustomerEmail:     normalize.CleanText(m["customer_email"]),
		Website:           normalize.CleanText(m["website"]),
		InvoiceNumber:     text(m["invoice_number"]),
		DocumentDate:      normalize.CleanDate(m["document_date"]),
		DueDate:           normalize.CleanDate(m["due_date"]),
		TotalAmount:       normalize.CleanNumber(m["total_amount"]),
		Subtotal:          normalize.CleanNumber(m["subtotal"]),
		TaxAmount:         normalize.CleanNumber(m["tax_amount"]),
		ConfidenceScore:   confidence(m["confidence_score"]),
		IsBelongsToTenant: triState(m["is_belongs_to_tenant"]),
		LineItems:         lineItems(m["line_items"]),

		BankName:             normalize.CleanText(m["bank_name"]),
		AccountNumber:        text(m["account_number"]),
		AccountHolderName:    normalize.CleanText(m["account_holder_name"]),
		StatementPeriodStart: normalize.CleanDate(m["statement_period_start"]),
		StatementPeriodEnd:   normalize.CleanDate(m["statement_period_end"]),
		OpeningBalance:       normalize.CleanNumber(m["opening_balance"]),
		ClosingBalance:       normalize.CleanNumber(m["closing_balance"]),
	}
	if code, ok := normalize.CurrencyCode(m["currency"]); ok {
		doc.Currency = code
	}

	lines := transactions(m["transactions"])
	if doc.DocumentType == model.DocumentTypeOther && (len(lines) > 0 || doc.OpeningBalance.Valid) {
		doc.DocumentType = model.DocumentTypeBankStatement
	}
	if len(lines) > 0 {
		st, _ := DeriveStatementFromTransactions(Statement{
			PeriodStart:    doc.StatementPeriodStart,
			PeriodEnd:      doc.StatementPeriodEnd,
			OpeningBalance: doc.OpeningBalance,
			ClosingBalance: doc.ClosingBalance,
		}, lines)
		doc.StatementPeriodStart = st.PeriodStart
		doc.StatementPeriodEnd = st.PeriodEnd
		doc.OpeningBalance = st.OpeningBalance
		doc.ClosingBalance = st.ClosingBalance
		doc.Transactions = st.Transactions
	}

	return doc
}

// text accepts strings and numbers, since account and invoice numbers often
// come back as JSON numbers.
func text(v any) string {
	if s := normalize.CleanText(v); s != "" {
		return s
	}
	if n := normalize.CleanNumber(v); n.Valid {
		return n.Decimal.String()
	}
	return ""
}

// confidence reads a 0..1 score. Percentages are scaled down; anything out of
// range is clamped.
func confidence(v any) float64 {
	n := normalize.CleanNumber(v)
	if !n.Valid {
		return 0
	}
	f := n.Decimal.InexactFloat64()
	if f > 1 && f <= 100 {
		f /= 100
	}
	switch {
	case f < 0:
		return 0
	case f > 1:
		return 1
	}
	return f
}

// triState parses an optional boolean. Unrecognized values are treated as
// absent.
func triState(v any) *bool {
	var b bool
	switch x := v.(type) {
	case bool:
		b = x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "y", "1":
			b = true
		case "false", "no", "n", "0":
			b = false
		default:
			return nil
		}
	default:
		return nil
	}
	return &b
}

func lineItems(v any) []model.LineItem {
	rows, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []model.LineItem
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		row = resolveSynonyms(row)
		item := model.LineItem{
			Description: normalize.CleanText(first(row, "description", "name", "item")),
			Quantity:    normalize.CleanNumber(first(row, "quantity", "qty")),
			UnitPrice:   normalize.CleanNumber(first(row, "unit_price", "price", "rate")),
			Amount:      normalize.CleanNumber(first(row, "amount", "total_amount", "line_total")),
		}
		if item.Description == "" && !item.Amount.Valid {
			continue
		}
		out = append(out, item)
	}
	return out
}

func transactions(v any) []model.BankTransactionLine {
	rows, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []model.BankTransactionLine
	for _, r := range rows {
		row, ok := r.(map[string]any)
		if !ok {
			continue
		}
		line, ok := transactionLine(row)
		if ok {
			out = append(out, line)
		}
	}
	return out
}

func transactionLine(raw map[string]any) (model.BankTransactionLine, bool) {
	row := foldKeys(raw)

	line := model.BankTransactionLine{
		Date:        normalize.CleanDate(first(row, "date", "transaction_date", "posted_date", "value_date")),
		Description: normalize.CleanText(first(row, "description", "details", "narrative", "memo", "particulars")),
		Balance:     normalize.CleanNumber(first(row, "balance", "running_balance")),
		Type:        transactionType(first(row, "type", "transaction_type", "direction")),
	}

	amount := normalize.CleanNumber(row["amount"])
	if !amount.Valid || amount.Decimal.IsZero() {
		debit := normalize.CleanNumber(first(row, "debit", "withdrawal", "withdrawals"))
		credit := normalize.CleanNumber(first(row, "credit", "deposit", "deposits"))
		switch {
		case debit.Valid && !debit.Decimal.IsZero():
			amount = decimal.NewNullDecimal(debit.Decimal.Abs())
			if line.Type == "" {
				line.Type = model.TransactionDebit
			}
		case credit.Valid && !credit.Decimal.IsZero():
			amount = decimal.NewNullDecimal(credit.Decimal.Abs())
			if line.Type == "" {
				line.Type = model.TransactionCredit
			}
		}
	}
	if !amount.Valid && line.Description == "" {
		return line, false
	}

	if amount.Valid {
		if line.Type == "" {
			if amount.Decimal.IsNegative() {
				line.Type = model.TransactionDebit
			} else {
				line.Type = model.TransactionCredit
			}
		}
		amount.Decimal = amount.Decimal.Abs()
	}
	if line.Type == "" {
		line.Type = model.TransactionCredit
	}
	line.Amount = amount
	return line, true
}

func transactionType(v any) model.TransactionType {
	switch strings.ToLower(normalize.CleanText(v)) {
	case "debit", "dr", "withdrawal", "payment", "out":
		return model.TransactionDebit
	case "credit", "cr", "deposit", "in":
		return model.TransactionCredit
	}
	return ""
}
