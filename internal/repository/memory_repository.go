package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rongwang/propvera-server/internal/billing"
	"github.com/rongwang/propvera-server/internal/models"
)

// MemoryRepository implements the Repository interface in process memory.
// It enforces the same uniqueness rules as the Postgres schema.
type MemoryRepository struct {
	mu sync.RWMutex

	builders      map[string]models.Builder
	projects      map[string][]models.Project
	units         map[string][]models.Unit
	rents         map[string][]models.RentPayment
	usage         map[string]map[string]models.BillingUsageRecord // builder -> date -> record
	invoices      map[string][]models.Invoice
	notifications map[string][]models.Notification
	dedupeKeys    map[string]bool

	locks    map[string]bool
	failures map[string]error
}

// NewMemoryRepository creates an empty in-memory store
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		builders:      make(map[string]models.Builder),
		projects:      make(map[string][]models.Project),
		units:         make(map[string][]models.Unit),
		rents:         make(map[string][]models.RentPayment),
		usage:         make(map[string]map[string]models.BillingUsageRecord),
		invoices:      make(map[string][]models.Invoice),
		notifications: make(map[string][]models.Notification),
		dedupeKeys:    make(map[string]bool),
		locks:         make(map[string]bool),
		failures:      make(map[string]error),
	}
}

// FailOn makes the named operation return err for one builder; a nil err clears it
func (m *MemoryRepository) FailOn(op, builderID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := op + ":" + builderID
	if err == nil {
		delete(m.failures, key)
		return
	}
	m.failures[key] = err
}

func (m *MemoryRepository) failure(op, builderID string) error {
	return m.failures[op+":"+builderID]
}

// AddBuilder inserts or replaces a builder
func (m *MemoryRepository) AddBuilder(b models.Builder) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.Status == "" {
		b.Status = models.BuilderActive
	}
	m.builders[b.ID] = b
}

// AddProject appends a project to its builder
func (m *MemoryRepository) AddProject(p models.Project) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	m.projects[p.BuilderID] = append(m.projects[p.BuilderID], p)
}

// AddUnit appends a unit to its builder
func (m *MemoryRepository) AddUnit(u models.Unit) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	m.units[u.BuilderID] = append(m.units[u.BuilderID], u)
}

// RemoveUnit soft-deletes a unit
func (m *MemoryRepository) RemoveUnit(builderID, unitID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.units[builderID] {
		if m.units[builderID][i].ID == unitID {
			m.units[builderID][i].IsDeleted = true
		}
	}
}

// Builder repository methods
func (m *MemoryRepository) ListBuilders(ctx context.Context) ([]models.Builder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure("ListBuilders", ""); err != nil {
		return nil, err
	}

	builders := make([]models.Builder, 0, len(m.builders))
	for _, b := range m.builders {
		builders = append(builders, b)
	}
	sort.Slice(builders, func(i, j int) bool {
		if builders[i].CreatedAt.Equal(builders[j].CreatedAt) {
			return builders[i].ID < builders[j].ID
		}
		return builders[i].CreatedAt.Before(builders[j].CreatedAt)
	})

	return builders, nil
}

func (m *MemoryRepository) GetBuilder(ctx context.Context, builderID string) (*models.Builder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure("GetBuilder", builderID); err != nil {
		return nil, err
	}

	b, ok := m.builders[builderID]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (m *MemoryRepository) ListProjects(ctx context.Context, builderID string) ([]models.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return append([]models.Project(nil), m.projects[builderID]...), nil
}

func (m *MemoryRepository) ListUnits(ctx context.Context, builderID string) ([]models.Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure("ListUnits", builderID); err != nil {
		return nil, err
	}

	var units []models.Unit
	for _, u := range m.units[builderID] {
		if !u.IsDeleted {
			units = append(units, u)
		}
	}
	return units, nil
}

// Rent ledger repository methods
func (m *MemoryRepository) RecordRentPayment(ctx context.Context, payment *models.RentPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

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

	m.rents[payment.BuilderID] = append(m.rents[payment.BuilderID], *payment)
	return nil
}

func (m *MemoryRepository) MarkRentUnpaid(ctx context.Context, builderID, rentID string) (*models.RentPayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.rents[builderID] {
		if m.rents[builderID][i].ID == rentID {
			m.rents[builderID][i].Status = models.RentUnpaid
			m.rents[builderID][i].UpdatedAt = time.Now().UTC()
			payment := m.rents[builderID][i]
			return &payment, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepository) FindRentPayment(
	ctx context.Context,
	builderID string,
	unitID string,
	period billing.Period,
	since time.Time,
) (*models.RentPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure("FindRentPayment", builderID); err != nil {
		return nil, err
	}

	for _, p := range m.rents[builderID] {
		if p.UnitID == unitID && paymentMatches(&p, period, since) {
			return &p, nil
		}
	}
	return nil, nil
}

// Usage and invoice repository methods
func (m *MemoryRepository) SumUsage(ctx context.Context, builderID string, from, to time.Time) (UsageTotal, error) {
	records, err := m.ListUsage(ctx, builderID, from, to)
	if err != nil {
		return UsageTotal{}, err
	}

	var total UsageTotal
	for _, rec := range records {
		total.Cost += rec.Cost
		total.Days++
	}
	return total, nil
}

func (m *MemoryRepository) ListUsage(
	ctx context.Context,
	builderID string,
	from,
	to time.Time,
) ([]models.BillingUsageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure("SumUsage", builderID); err != nil {
		return nil, err
	}

	lo, hi := dateOnly(from), dateOnly(to)
	var records []models.BillingUsageRecord
	for date, rec := range m.usage[builderID] {
		if date >= lo && date < hi {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].UsageDate.Before(records[j].UsageDate)
	})
	return records, nil
}

func (m *MemoryRepository) GetInvoice(ctx context.Context, builderID string, year, month int) (*models.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.failure("GetInvoice", builderID); err != nil {
		return nil, err
	}

	for _, inv := range m.invoices[builderID] {
		if inv.Year == year && inv.Month == month {
			return &inv, nil
		}
	}
	return nil, nil
}

func (m *MemoryRepository) ListInvoices(ctx context.Context, builderID string) ([]models.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	invoices := append([]models.Invoice(nil), m.invoices[builderID]...)
	sort.Slice(invoices, func(i, j int) bool {
		if invoices[i].Year != invoices[j].Year {
			return invoices[i].Year > invoices[j].Year
		}
		return invoices[i].Month > invoices[j].Month
	})
	return invoices, nil
}

func (m *MemoryRepository) MarkInvoicePaid(
	ctx context.Context,
	builderID string,
	invoiceID string,
	paidAt time.Time,
) (*models.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.invoices[builderID] {
		if m.invoices[builderID][i].ID == invoiceID {
			m.invoices[builderID][i].Status = models.InvoicePaid
			m.invoices[builderID][i].PaidAt = &paidAt
			inv := m.invoices[builderID][i]
			return &inv, nil
		}
	}
	return nil, ErrNotFound
}

// Notification repository methods
func (m *MemoryRepository) ListNotifications(ctx context.Context, builderID string) ([]models.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	notifications := append([]models.Notification(nil), m.notifications[builderID]...)
	sort.SliceStable(notifications, func(i, j int) bool {
		return notifications[i].CreatedAt.After(notifications[j].CreatedAt)
	})
	return notifications, nil
}

// CommitBatch validates the whole batch before applying any of it, so a
// failure leaves the builder's rows untouched.
func (m *MemoryRepository) CommitBatch(ctx context.Context, builderID string, batch *Batch) (*CommitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := newCommitResult()
	if batch == nil || batch.Empty() {
		return result, nil
	}
	if err := m.failure("CommitBatch", builderID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for _, inv := range batch.invoices {
		if inv.Month < 0 || inv.Month > 11 {
			return nil, fmt.Errorf("invoice month %d out of range", inv.Month)
		}
	}

	for _, inv := range batch.invoices {
		exists := false
		for _, existing := range m.invoices[builderID] {
			if existing.Year == inv.Year && existing.Month == inv.Month {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		inv.BuilderID = builderID
		m.invoices[builderID] = append(m.invoices[builderID], inv)
		result.Invoices[inv.ID] = true
	}

	for _, n := range batch.notifications {
		if n.DedupeKey != nil {
			if m.dedupeKeys[*n.DedupeKey] {
				continue
			}
			m.dedupeKeys[*n.DedupeKey] = true
		}
		n.BuilderID = builderID
		m.notifications[builderID] = append(m.notifications[builderID], n)
		result.Notifications[n.ID] = true
	}

	if m.usage[builderID] == nil {
		m.usage[builderID] = make(map[string]models.BillingUsageRecord)
	}
	for _, rec := range batch.usage {
		key := dateOnly(rec.UsageDate)
		if existing, ok := m.usage[builderID][key]; ok {
			rec.CreatedAt = existing.CreatedAt
		}
		rec.BuilderID = builderID
		rec.UpdatedAt = time.Now().UTC()
		m.usage[builderID][key] = rec
		result.UsageWritten++
	}

	return result, nil
}

func (m *MemoryRepository) TryJobLock(ctx context.Context, name string) (func(), bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.locks[name] {
		return nil, false, nil
	}
	m.locks[name] = true

	release := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.locks, name)
	}
	return release, true, nil
}
