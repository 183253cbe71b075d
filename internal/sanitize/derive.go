package sanitize

import (
	"github.com/shopspring/decimal"

	"github.com/sells-group/ledger-intake/internal/model"
)

// Statement holds the statement-level fields of a bank statement.
type Statement struct {
	PeriodStart    string                      `json:"statement_period_start,omitempty"`
	PeriodEnd      string                      `json:"statement_period_end,omitempty"`
	OpeningBalance decimal.NullDecimal         `json:"opening_balance"`
	ClosingBalance decimal.NullDecimal         `json:"closing_balance"`
	Transactions   []model.BankTransactionLine `json:"transactions,omitempty"`
}

// DerivedFlags records which statement fields were filled from the lines
// rather than read from the document.
type DerivedFlags struct {
	PeriodStart    bool `json:"statement_period_start"`
	PeriodEnd      bool `json:"statement_period_end"`
	OpeningBalance bool `json:"opening_balance"`
	ClosingBalance bool `json:"closing_balance"`
	LineBalances   bool `json:"line_balances"`
}

// Any reports whether at least one field was derived.
func (f DerivedFlags) Any() bool {
	return f.PeriodStart || f.PeriodEnd || f.OpeningBalance || f.ClosingBalance || f.LineBalances
}

// DeriveStatementFromTransactions fills missing statement fields from the
// transaction lines:
//   - period start/end from the first and last dated line,
//   - opening balance from the first line's balance less its signed amount,
//   - missing line balances by running forward from the opening balance,
//   - closing balance from the last line's balance.
//
// Values already present in partial are kept. lines is not modified.
func DeriveStatementFromTransactions(partial Statement, lines []model.BankTransactionLine) (Statement, DerivedFlags) {
	out := partial
	out.Transactions = append([]model.BankTransactionLine(nil), lines...)
	var flags DerivedFlags
	if len(lines) == 0 {
		return out, flags
	}

	if out.PeriodStart == "" {
		for _, l := range out.Transactions {
			if l.Date != "" {
				out.PeriodStart = l.Date
				flags.PeriodStart = true
				break
			}
		}
	}
	if out.PeriodEnd == "" {
		for i := len(out.Transactions) - 1; i >= 0; i-- {
			if d := out.Transactions[i].Date; d != "" {
				out.PeriodEnd = d
				flags.PeriodEnd = true
				break
			}
		}
	}

	if !out.OpeningBalance.Valid {
		if f := out.Transactions[0]; f.Balance.Valid && f.Amount.Valid {
			out.OpeningBalance = decimal.NewNullDecimal(f.Balance.Decimal.Sub(f.Signed()).Round(2))
			flags.OpeningBalance = true
		}
	}

	if out.OpeningBalance.Valid {
		flags.LineBalances = fillBalances(out.OpeningBalance.Decimal, out.Transactions)
	}

	if !out.ClosingBalance.Valid {
		// Without any balance the last line amount is the best figure available.
		last := out.Transactions[len(out.Transactions)-1]
		switch {
		case last.Balance.Valid:
			out.ClosingBalance = last.Balance
			flags.ClosingBalance = true
		case last.Amount.Valid:
			out.ClosingBalance = last.Amount
			flags.ClosingBalance = true
		}
	}

	return out, flags
}

// fillBalances computes a running balance for lines without one. Each step
// is rounded to two places and the rounded value is carried forward; a line
// that already has a balance resets the running total. It reports whether any
// balance was filled.
func fillBalances(opening decimal.Decimal, lines []model.BankTransactionLine) bool {
	filled := false
	running := opening
	for i := range lines {
		if lines[i].Balance.Valid {
			running = lines[i].Balance.Decimal
			continue
		}
		running = running.Add(lines[i].Signed()).Round(2)
		lines[i].Balance = decimal.NewNullDecimal(running)
		filled = true
	}
	return filled
}
