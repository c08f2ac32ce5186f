package postgres

import (
	"context"

	"github.com/doteapp/dote/internal/core/domain"
)

// LedgerRepo implements ports.CurrencyLedger on the paws_ledger table.
type LedgerRepo struct {
	db *DB
}

func NewLedgerRepo(db *DB) *LedgerRepo {
	return &LedgerRepo{db: db}
}

// CreditCurrency records one credit per walk; repeats for the same session
// are ignored.
func (r *LedgerRepo) CreditCurrency(ctx context.Context, c domain.PawsCredit) error {
	_, err := r.db.Pool.Exec(ctx, `
		INSERT INTO paws_ledger (user_id, session_id, amount, reason)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO NOTHING
	`, c.UserID, c.SessionID, c.Amount, c.Reason)
	return err
}

func (r *LedgerRepo) Balance(ctx context.Context, userID string) (int64, error) {
	var total int64
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM paws_ledger WHERE user_id = $1
	`, userID).Scan(&total)
	return total, err
}
