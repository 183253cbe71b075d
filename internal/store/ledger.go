package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/ledger-intake/internal/db"
	"github.com/sells-group/ledger-intake/internal/ledger"
)

var lineItemColumns = []string{
	"id", "transaction_id", "position", "account_code", "side", "amount", "foreign_amount", "description",
}

var bankTransactionColumns = []string{
	"id", "statement_id", "position", "date", "description", "amount", "balance", "type",
}

// CreateTransaction inserts a draft transaction with its line items and
// returns its id.
func (s *PostgresStore) CreateTransaction(ctx context.Context, tx ledger.Transaction) (string, error) {
	id := uuid.NewString()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transactions (id, tenant_id, document_id, date, description, reference, direction,
		                          amount, tax_amount, currency, foreign_currency, foreign_amount, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NULLIF($11, ''), $12, $13, now())`,
		id, tx.TenantID, tx.DocumentID, tx.Date, tx.Description, tx.Reference, string(tx.Direction),
		tx.Amount, tx.TaxAmount, tx.Currency, tx.ForeignCurrency, tx.ForeignAmount, tx.Status,
	)
	if err != nil {
		return "", eris.Wrapf(err, "store: create transaction for %s", tx.DocumentID)
	}
	if err := s.replaceLineItems(ctx, id, tx.Lines); err != nil {
		return "", err
	}
	return id, nil
}

// ReplaceTransaction overwrites an existing transaction with tx, repointing
// it at tx.DocumentID and replacing its line items.
func (s *PostgresStore) ReplaceTransaction(ctx context.Context, id string, tx ledger.Transaction) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE transactions
		SET tenant_id = $2, document_id = $3, date = $4, description = $5, reference = $6, direction = $7,
		    amount = $8, tax_amount = $9, currency = $10, foreign_currency = NULLIF($11, ''),
		    foreign_amount = $12, status = $13, updated_at = now()
		WHERE id = $1`,
		id, tx.TenantID, tx.DocumentID, tx.Date, tx.Description, tx.Reference, string(tx.Direction),
		tx.Amount, tx.TaxAmount, tx.Currency, tx.ForeignCurrency, tx.ForeignAmount, tx.Status,
	)
	if err != nil {
		return eris.Wrapf(err, "store: update transaction %s", id)
	}
	return s.replaceLineItems(ctx, id, tx.Lines)
}

func (s *PostgresStore) replaceLineItems(ctx context.Context, txID string, lines []ledger.LineItem) error {
	rows := make([][]any, 0, len(lines))
	for i, l := range lines {
		rows = append(rows, []any{
			uuid.NewString(), txID, i, string(l.Account), string(l.Side), l.Amount, l.ForeignAmount, l.Description,
		})
	}
	if _, err := db.ReplaceRows(ctx, s.pool, "line_items", "transaction_id", txID, lineItemColumns, rows); err != nil {
		return eris.Wrapf(err, "store: line items for %s", txID)
	}
	return nil
}

// SaveStatement upserts the statement for its document and replaces its
// lines, so reprocessing never duplicates bank transactions.
func (s *PostgresStore) SaveStatement(ctx context.Context, st ledger.Statement, lines []ledger.StatementLine) (string, error) {
	var id string
	err := s.pool.QueryRow(ctx, `
		INSERT INTO bank_statements (id, tenant_id, document_id, bank_name, account_number, account_holder_name,
		                             period_start, period_end, opening_balance, closing_balance, currency, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (document_id) DO UPDATE
		SET tenant_id = EXCLUDED.tenant_id, bank_name = EXCLUDED.bank_name,
		    account_number = EXCLUDED.account_number, account_holder_name = EXCLUDED.account_holder_name,
		    period_start = EXCLUDED.period_start, period_end = EXCLUDED.period_end,
		    opening_balance = EXCLUDED.opening_balance, closing_balance = EXCLUDED.closing_balance,
		    currency = EXCLUDED.currency, updated_at = now()
		RETURNING id`,
		uuid.NewString(), st.TenantID, st.DocumentID, st.BankName, st.AccountNumber, st.AccountHolder,
		parseDate(st.PeriodStart), parseDate(st.PeriodEnd), st.OpeningBalance, st.ClosingBalance, st.Currency,
	).Scan(&id)
	if err != nil {
		return "", eris.Wrapf(err, "store: save statement for %s", st.DocumentID)
	}

	rows := make([][]any, 0, len(lines))
	for _, l := range lines {
		rows = append(rows, []any{
			uuid.NewString(), id, l.Position, parseDate(l.Date), l.Description, l.Amount, l.Balance, string(l.Type),
		})
	}
	if _, err := db.ReplaceRows(ctx, s.pool, "bank_transactions", "statement_id", id, bankTransactionColumns, rows); err != nil {
		return "", eris.Wrapf(err, "store: bank transactions for %s", id)
	}
	return id, nil
}

// parseDate returns nil for dates that are not ISO formatted so they are
// stored as NULL instead of failing the write.
func parseDate(s string) any {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil
	}
	return t
}
