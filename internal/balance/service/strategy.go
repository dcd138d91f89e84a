package service

import (
	"context"

	balancedomain "github.com/smallbiznis/rentledger/internal/balance/domain"
	"gorm.io/gorm"
)

const historyColumns = `id, tenant_id, unit_id, lease_id, property_id, invoice_id, payment_id,
	entry_type, direction, amount, effective_at, description, source, period_key, created_at`

const signedAmount = `CASE WHEN direction = 'DEBIT' THEN amount ELSE -amount END`

func scope(req balancedomain.HistoryRequest) (string, []any) {
	where := `tenant_id = ?`
	args := []any{req.TenantID}
	if req.UnitID != nil {
		where += ` AND unit_id = ?`
		args = append(args, *req.UnitID)
	}
	return where, args
}

// WindowStrategy computes running balances in the database with a
// windowed SUM ordered by (effective_at, created_at, id).
type WindowStrategy struct{}

func (WindowStrategy) Name() string { return "window" }

func (WindowStrategy) History(ctx context.Context, db *gorm.DB, req balancedomain.HistoryRequest) ([]balancedomain.HistoryEntry, error) {
	where, args := scope(req)
	args = append(args, req.Limit)

	var items []balancedomain.HistoryEntry
	err := db.WithContext(ctx).Raw(
		`SELECT * FROM (
			SELECT `+historyColumns+`,
				SUM(`+signedAmount+`) OVER (
					ORDER BY effective_at ASC, created_at ASC, id ASC
					ROWS BETWEEN UNBOUNDED PRECEDING AND CURRENT ROW
				) AS running_balance
			FROM ledger_entries
			WHERE `+where+`
		) ledger
		ORDER BY effective_at DESC, created_at DESC, id DESC
		LIMIT ?`,
		args...,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// FoldStrategy loads the entries oldest first and accumulates in process.
type FoldStrategy struct{}

func (FoldStrategy) Name() string { return "fold" }

func (FoldStrategy) History(ctx context.Context, db *gorm.DB, req balancedomain.HistoryRequest) ([]balancedomain.HistoryEntry, error) {
	where, args := scope(req)

	var items []balancedomain.HistoryEntry
	err := db.WithContext(ctx).Raw(
		`SELECT `+historyColumns+`
		FROM ledger_entries
		WHERE `+where+`
		ORDER BY effective_at ASC, created_at ASC, id ASC`,
		args...,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return Fold(items, req.Limit), nil
}

// Fold assigns running balances to entries sorted oldest first and returns
// the newest limit of them, newest first.
func Fold(ascending []balancedomain.HistoryEntry, limit int) []balancedomain.HistoryEntry {
	var running int64
	for i := range ascending {
		running += ascending[i].Signed()
		ascending[i].RunningBalance = running
	}

	n := len(ascending)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]balancedomain.HistoryEntry, 0, n)
	for i := len(ascending) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, ascending[i])
	}
	return out
}
