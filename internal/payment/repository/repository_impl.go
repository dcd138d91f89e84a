package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/payment/domain"
	"github.com/smallbiznis/rentledger/pkg/db"
	"gorm.io/gorm"
)

const paymentColumns = `id, tenant_id, unit_id, amount, idempotency_key, invoice_id,
	ledger_entry_id, source, effective_at, created_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, conn, `SELECT `+paymentColumns+` FROM payments WHERE id = ? LIMIT 1`, id)
}

func (r *repo) LockByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, conn, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`+db.ForUpdate(conn), id)
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, conn *gorm.DB, key string) (*domain.Payment, error) {
	return r.findOne(ctx, conn, `SELECT `+paymentColumns+` FROM payments WHERE idempotency_key = ? LIMIT 1`, key)
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, query string, args ...any) (*domain.Payment, error) {
	var item domain.Payment
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, payment *domain.Payment) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`INSERT INTO payments (
			id, tenant_id, unit_id, amount, idempotency_key, invoice_id,
			ledger_entry_id, source, effective_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (idempotency_key) DO NOTHING`,
		payment.ID,
		payment.TenantID,
		payment.UnitID,
		payment.Amount,
		payment.IdempotencyKey,
		payment.InvoiceID,
		payment.LedgerEntryID,
		payment.Source,
		payment.EffectiveAt,
		payment.CreatedAt,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) AppliedTotal(ctx context.Context, conn *gorm.DB, id snowflake.ID) (int64, error) {
	var total int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) FROM payment_applications WHERE payment_id = ?`,
		id,
	).Scan(&total).Error
	return total, err
}

func (r *repo) SetInvoiceIfUnset(ctx context.Context, conn *gorm.DB, id, invoiceID snowflake.ID) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE payments SET invoice_id = ? WHERE id = ? AND invoice_id IS NULL`,
		invoiceID,
		id,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
