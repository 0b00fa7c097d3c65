package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rongwang/propvera-server/internal/billing"
	"github.com/rongwang/propvera-server/internal/models"
	"github.com/rongwang/propvera-server/internal/utils"
)

// PostgresRepository implements the Repository interface using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{
		db: db,
	}
}

// unitRow flattens the optional tenant columns of a unit
type unitRow struct {
	ID          string         `db:"id"`
	BuilderID   string         `db:"builder_id"`
	ProjectID   string         `db:"project_id"`
	UnitNumber  string         `db:"unit_number"`
	Status      string         `db:"status"`
	TenantName  sql.NullString `db:"tenant_name"`
	MonthlyRent sql.NullInt64  `db:"monthly_rent"`
	RentDueDay  sql.NullInt32  `db:"rent_due_day"`
	IsDeleted   bool           `db:"is_deleted"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (row unitRow) toModel() models.Unit {
	unit := models.Unit{
		ID:         row.ID,
		BuilderID:  row.BuilderID,
		ProjectID:  row.ProjectID,
		UnitNumber: row.UnitNumber,
		Status:     row.Status,
		IsDeleted:  row.IsDeleted,
		CreatedAt:  row.CreatedAt,
	}
	if row.Status == models.UnitRented && row.TenantName.Valid {
		unit.Tenant = &models.Tenant{
			TenantName:  row.TenantName.String,
			MonthlyRent: row.MonthlyRent.Int64,
			RentDueDay:  int(row.RentDueDay.Int32),
		}
	}
	return unit
}

// Builder repository methods
func (r *PostgresRepository) ListBuilders(ctx context.Context) ([]models.Builder, error) {
	query := `SELECT * FROM builders ORDER BY created_at ASC`

	var builders []models.Builder
	if err := r.db.SelectContext(ctx, &builders, query); err != nil {
		return nil, err
	}

	return builders, nil
}

func (r *PostgresRepository) GetBuilder(ctx context.Context, builderID string) (*models.Builder, error) {
	query := `SELECT * FROM builders WHERE id = $1`

	var builder models.Builder
	err := r.db.GetContext(ctx, &builder, query, builderID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Builder not found
		}
		return nil, err
	}

	return &builder, nil
}

func (r *PostgresRepository) ListProjects(ctx context.Context, builderID string) ([]models.Project, error) {
	query := `SELECT * FROM projects WHERE builder_id = $1 ORDER BY created_at ASC`

	var projects []models.Project
	if err := r.db.SelectContext(ctx, &projects, query, builderID); err != nil {
		return nil, err
	}

	return projects, nil
}

func (r *PostgresRepository) ListUnits(ctx context.Context, builderID string) ([]models.Unit, error) {
	query := `
		SELECT id, builder_id, project_id, unit_number, status, tenant_name,
		       monthly_rent, rent_due_day, is_deleted, created_at
		FROM units
		WHERE builder_id = $1 AND is_deleted = FALSE
		ORDER BY unit_number ASC
	`

	var rows []unitRow
	if err := r.db.SelectContext(ctx, &rows, query, builderID); err != nil {
		return nil, err
	}

	units := make([]models.Unit, 0, len(rows))
	for _, row := range rows {
		units = append(units, row.toModel())
	}

	return units, nil
}

// Rent ledger repository methods
func (r *PostgresRepository) RecordRentPayment(ctx context.Context, payment *models.RentPayment) error {
	query := `
		INSERT INTO rents (id, builder_id, unit_id, unit_number, amount, status,
		                   period_year, period_month, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	// Generate a new UUID if not provided
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if payment.Status == "" {
		payment.Status = models.RentPaid
	}

	now := time.Now().UTC()
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = now
	}
	payment.UpdatedAt = now

	_, err := r.db.ExecContext(ctx, query,
		payment.ID, payment.BuilderID, payment.UnitID, payment.UnitNumber, payment.Amount,
		payment.Status, payment.PeriodYear, payment.PeriodMonth, payment.CreatedAt, payment.UpdatedAt)

	return err
}

func (r *PostgresRepository) MarkRentUnpaid(ctx context.Context, builderID, rentID string) (*models.RentPayment, error) {
	query := `
		UPDATE rents SET status = $1, updated_at = $2
		WHERE builder_id = $3 AND id = $4
		RETURNING *
	`

	var payment models.RentPayment
	err := r.db.GetContext(ctx, &payment, query, models.RentUnpaid, time.Now().UTC(), builderID, rentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &payment, nil
}

func (r *PostgresRepository) FindRentPayment(
	ctx context.Context,
	builderID string,
	unitID string,
	period billing.Period,
	since time.Time,
) (*models.RentPayment, error) {
	query := `
		SELECT * FROM rents
		WHERE builder_id = $1 AND unit_id = $2 AND status = $3
		  AND ((period_year = $4 AND period_month = $5)
		       OR (period_year IS NULL AND created_at >= $6))
		ORDER BY created_at DESC
		LIMIT 1
	`

	var payment models.RentPayment
	err := r.db.GetContext(ctx, &payment, query,
		builderID, unitID, models.RentPaid, period.Year, period.Month, since)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // No payment for the period
		}
		return nil, err
	}

	return &payment, nil
}

// Usage and invoice repository methods
func (r *PostgresRepository) SumUsage(ctx context.Context, builderID string, from, to time.Time) (UsageTotal, error) {
	query := `
		SELECT COALESCE(SUM(cost), 0) AS cost, COUNT(*) AS days
		FROM billing_usage
		WHERE builder_id = $1 AND usage_date >= $2 AND usage_date < $3
	`

	var total UsageTotal
	err := r.db.GetContext(ctx, &total, query, builderID, dateOnly(from), dateOnly(to))
	return total, err
}

func (r *PostgresRepository) ListUsage(
	ctx context.Context,
	builderID string,
	from,
	to time.Time,
) ([]models.BillingUsageRecord, error) {
	query := `
		SELECT * FROM billing_usage
		WHERE builder_id = $1 AND usage_date >= $2 AND usage_date < $3
		ORDER BY usage_date ASC
	`

	var records []models.BillingUsageRecord
	if err := r.db.SelectContext(ctx, &records, query, builderID, dateOnly(from), dateOnly(to)); err != nil {
		return nil, err
	}

	return records, nil
}

func (r *PostgresRepository) GetInvoice(ctx context.Context, builderID string, year, month int) (*models.Invoice, error) {
	query := `SELECT * FROM invoices WHERE builder_id = $1 AND year = $2 AND month = $3`

	var invoice models.Invoice
	err := r.db.GetContext(ctx, &invoice, query, builderID, year, month)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Invoice not found
		}
		return nil, err
	}

	return &invoice, nil
}

func (r *PostgresRepository) ListInvoices(ctx context.Context, builderID string) ([]models.Invoice, error) {
	query := `SELECT * FROM invoices WHERE builder_id = $1 ORDER BY year DESC, month DESC`

	var invoices []models.Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, builderID); err != nil {
		return nil, err
	}

	return invoices, nil
}

func (r *PostgresRepository) MarkInvoicePaid(
	ctx context.Context,
	builderID string,
	invoiceID string,
	paidAt time.Time,
) (*models.Invoice, error) {
	query := `
		UPDATE invoices SET status = $1, paid_at = $2
		WHERE builder_id = $3 AND id = $4
		RETURNING *
	`

	var invoice models.Invoice
	err := r.db.GetContext(ctx, &invoice, query, models.InvoicePaid, paidAt, builderID, invoiceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &invoice, nil
}

// Notification repository methods
func (r *PostgresRepository) ListNotifications(ctx context.Context, builderID string) ([]models.Notification, error) {
	query := `SELECT * FROM notifications WHERE builder_id = $1 ORDER BY created_at DESC`

	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query, builderID); err != nil {
		return nil, err
	}

	return notifications, nil
}

// CommitBatch writes invoices, notifications and usage rows in one transaction.
// Conflicting invoices and deduplicated notifications are skipped, not failed.
func (r *PostgresRepository) CommitBatch(ctx context.Context, builderID string, batch *Batch) (result *CommitResult, err error) {
	result = newCommitResult()
	if batch == nil || batch.Empty() {
		return result, nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, inv := range batch.invoices {
		res, execErr := tx.ExecContext(ctx, `
			INSERT INTO invoices (id, builder_id, amount, month, year, status, due_date,
			                      recorded_days, estimated_days, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (builder_id, year, month) DO NOTHING
		`, inv.ID, builderID, inv.Amount, inv.Month, inv.Year, inv.Status, inv.DueDate,
			inv.RecordedDays, inv.EstimatedDays, inv.CreatedAt)
		if execErr != nil {
			err = execErr
			return nil, err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			result.Invoices[inv.ID] = true
		}
	}

	for _, n := range batch.notifications {
		res, execErr := tx.ExecContext(ctx, `
			INSERT INTO notifications (id, builder_id, title, message, read, type, dedupe_key, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT DO NOTHING
		`, n.ID, builderID, n.Title, n.Message, n.Read, n.Type, n.DedupeKey, n.CreatedAt)
		if execErr != nil {
			err = execErr
			return nil, err
		}
		if affected, _ := res.RowsAffected(); affected > 0 {
			result.Notifications[n.ID] = true
		}
	}

	for _, rec := range batch.usage {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO billing_usage (builder_id, usage_date, date_key, unit_count, cost, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $6)
			ON CONFLICT (builder_id, usage_date) DO UPDATE
			SET date_key = EXCLUDED.date_key,
			    unit_count = EXCLUDED.unit_count,
			    cost = EXCLUDED.cost,
			    updated_at = EXCLUDED.updated_at
		`, builderID, dateOnly(rec.UsageDate), rec.DateKey, rec.UnitCount, rec.Cost, rec.CreatedAt)
		if err != nil {
			return nil, err
		}
		result.UsageWritten++
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return result, nil
}

// TryJobLock uses a session-level advisory lock held on a dedicated connection
func (r *PostgresRepository) TryJobLock(ctx context.Context, name string) (func(), bool, error) {
	conn, err := r.db.Connx(ctx)
	if err != nil {
		return nil, false, err
	}

	var locked bool
	if err := conn.GetContext(ctx, &locked, `SELECT pg_try_advisory_lock(hashtext($1))`, name); err != nil {
		conn.Close()
		return nil, false, err
	}

	if !locked {
		conn.Close()
		return nil, false, nil
	}

	release := func() {
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, name); err != nil {
			utils.Logger.WithError(err).Warnf("Failed to release job lock %s", name)
		}
		conn.Close()
	}

	return release, true, nil
}

// dateOnly formats a calendar day for DATE columns without any zone shift
func dateOnly(t time.Time) string {
	return t.Format("2006-01-02")
}
