package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rongwang/propvera-server/internal/billing"
	"github.com/rongwang/propvera-server/internal/models"
)

// ErrNotFound is returned by update operations whose target row does not exist
var ErrNotFound = errors.New("record not found")

// Repository interface defines the methods that any tenant store implementation must satisfy.
// Every operation is scoped to a single builder except ListBuilders.
type Repository interface {
	// Builder operations
	ListBuilders(ctx context.Context) ([]models.Builder, error)
	GetBuilder(ctx context.Context, builderID string) (*models.Builder, error)
	ListProjects(ctx context.Context, builderID string) ([]models.Project, error)
	ListUnits(ctx context.Context, builderID string) ([]models.Unit, error)

	// Rent ledger operations
	RecordRentPayment(ctx context.Context, payment *models.RentPayment) error
	MarkRentUnpaid(ctx context.Context, builderID, rentID string) (*models.RentPayment, error)
	FindRentPayment(ctx context.Context, builderID, unitID string, period billing.Period, since time.Time) (*models.RentPayment, error)

	// Usage and invoice operations
	SumUsage(ctx context.Context, builderID string, from, to time.Time) (UsageTotal, error)
	ListUsage(ctx context.Context, builderID string, from, to time.Time) ([]models.BillingUsageRecord, error)
	GetInvoice(ctx context.Context, builderID string, year, month int) (*models.Invoice, error)
	ListInvoices(ctx context.Context, builderID string) ([]models.Invoice, error)
	MarkInvoicePaid(ctx context.Context, builderID, invoiceID string, paidAt time.Time) (*models.Invoice, error)

	// Notification operations
	ListNotifications(ctx context.Context, builderID string) ([]models.Notification, error)

	// CommitBatch applies all queued writes for one builder atomically
	CommitBatch(ctx context.Context, builderID string, batch *Batch) (*CommitResult, error)

	// TryJobLock takes a named, process-spanning lock. ok is false when another
	// holder already has it; release must be called only when ok is true.
	TryJobLock(ctx context.Context, name string) (release func(), ok bool, err error)
}

// UsageTotal is the aggregate of recorded usage over a date range
type UsageTotal struct {
	Cost int64 `db:"cost"`
	Days int   `db:"days"`
}

// Batch queues one builder's writes for a single atomic commit
type Batch struct {
	usage         []models.BillingUsageRecord
	notifications []models.Notification
	invoices      []models.Invoice
}

// NewBatch creates an empty batch
func NewBatch() *Batch {
	return &Batch{}
}

// UpsertUsage queues a daily usage record; an existing record for the same day is overwritten
func (b *Batch) UpsertUsage(rec models.BillingUsageRecord) {
	b.usage = append(b.usage, rec)
}

// AddNotification queues a notification; one whose dedupe key already exists is skipped
func (b *Batch) AddNotification(n models.Notification) {
	b.notifications = append(b.notifications, n)
}

// CreateInvoice queues an invoice; it is skipped if the builder already has one for that month
func (b *Batch) CreateInvoice(inv models.Invoice) {
	b.invoices = append(b.invoices, inv)
}

// Empty reports whether nothing has been queued
func (b *Batch) Empty() bool {
	return len(b.usage) == 0 && len(b.notifications) == 0 && len(b.invoices) == 0
}

// CommitResult reports which queued rows were actually written
type CommitResult struct {
	UsageWritten  int
	Notifications map[string]bool
	Invoices      map[string]bool
}

func newCommitResult() *CommitResult {
	return &CommitResult{
		Notifications: make(map[string]bool),
		Invoices:      make(map[string]bool),
	}
}

// NotificationWritten reports whether the notification with id was inserted
func (r *CommitResult) NotificationWritten(id string) bool {
	return r != nil && r.Notifications[id]
}

// InvoiceWritten reports whether the invoice with id was inserted
func (r *CommitResult) InvoiceWritten(id string) bool {
	return r != nil && r.Invoices[id]
}

// paymentMatches applies the "paid for this period" rule shared by both stores:
// rows carrying a period must match it exactly, legacy rows fall back to created_at.
func paymentMatches(p *models.RentPayment, period billing.Period, since time.Time) bool {
	if p.Status != models.RentPaid {
		return false
	}
	if p.PeriodYear != nil && p.PeriodMonth != nil {
		return *p.PeriodYear == period.Year && *p.PeriodMonth == period.Month
	}
	return !p.CreatedAt.Before(since)
}
