package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/rentledger/internal/invoice/domain"
	"github.com/smallbiznis/rentledger/pkg/db"
	"gorm.io/gorm"
)

const invoiceColumns = `id, tenant_id, unit_id, amount, status, due_date, created_at, updated_at`

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, conn *gorm.DB, invoice *domain.Invoice) error {
	return conn.WithContext(ctx).Exec(
		`INSERT INTO invoices (`+invoiceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		invoice.ID,
		invoice.TenantID,
		invoice.UnitID,
		invoice.Amount,
		string(invoice.Status),
		invoice.DueDate,
		invoice.CreatedAt,
		invoice.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, conn, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
}

func (r *repo) LockByID(ctx context.Context, conn *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, conn, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`+db.ForUpdate(conn), id)
}

func (r *repo) findOne(ctx context.Context, conn *gorm.DB, query string, args ...any) (*domain.Invoice, error) {
	var item domain.Invoice
	if err := conn.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) LockOpen(ctx context.Context, conn *gorm.DB, tenantID, unitID snowflake.ID) ([]domain.Invoice, error) {
	// Locks are taken in id order so concurrent allocators cannot deadlock.
	return r.listOpen(ctx, conn, tenantID, unitID, ` ORDER BY id ASC`+db.ForUpdate(conn))
}

func (r *repo) ListOpen(ctx context.Context, conn *gorm.DB, tenantID, unitID snowflake.ID) ([]domain.Invoice, error) {
	return r.listOpen(ctx, conn, tenantID, unitID, ` ORDER BY id ASC`)
}

func (r *repo) listOpen(ctx context.Context, conn *gorm.DB, tenantID, unitID snowflake.ID, suffix string) ([]domain.Invoice, error) {
	var items []domain.Invoice
	err := conn.WithContext(ctx).Raw(
		`SELECT `+invoiceColumns+` FROM invoices
		WHERE tenant_id = ? AND unit_id = ? AND status IN ?`+suffix,
		tenantID,
		unitID,
		statusStrings(domain.OpenStatuses),
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) CountForUnit(ctx context.Context, conn *gorm.DB, tenantID, unitID snowflake.ID) (int64, error) {
	var count int64
	err := conn.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM invoices WHERE tenant_id = ? AND unit_id = ?`,
		tenantID,
		unitID,
	).Scan(&count).Error
	return count, err
}

func (r *repo) AppliedTotals(ctx context.Context, conn *gorm.DB, invoiceIDs []snowflake.ID) (map[snowflake.ID]int64, error) {
	totals := make(map[snowflake.ID]int64, len(invoiceIDs))
	if len(invoiceIDs) == 0 {
		return totals, nil
	}

	var rows []struct {
		InvoiceID snowflake.ID
		Applied   int64
	}
	err := conn.WithContext(ctx).Raw(
		`SELECT invoice_id, COALESCE(SUM(amount), 0) AS applied
		FROM payment_applications
		WHERE invoice_id IN ?
		GROUP BY invoice_id`,
		invoiceIDs,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		totals[row.InvoiceID] = row.Applied
	}
	return totals, nil
}

func (r *repo) TransitionStatus(ctx context.Context, conn *gorm.DB, id snowflake.ID, from []domain.InvoiceStatus, to domain.InvoiceStatus, at time.Time) (bool, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ? WHERE id = ? AND status IN ?`,
		string(to),
		at,
		id,
		statusStrings(from),
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) MarkOverdue(ctx context.Context, conn *gorm.DB, asOf time.Time, at time.Time) (int64, error) {
	res := conn.WithContext(ctx).Exec(
		`UPDATE invoices SET status = ?, updated_at = ?
		WHERE status = ? AND due_date IS NOT NULL AND due_date < ?`,
		string(domain.InvoiceStatusOverdue),
		at,
		string(domain.InvoiceStatusSent),
		asOf,
	)
	return res.RowsAffected, res.Error
}

func statusStrings(statuses []domain.InvoiceStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}
