package models

import (
	"time"
)

// Unit statuses
const (
	UnitVacant = "Vacant"
	UnitRented = "Rented"
	UnitSold   = "Sold"
)

// Builder statuses
const (
	BuilderActive    = "active"
	BuilderSuspended = "suspended"
)

// Rent payment statuses
const (
	RentPaid   = "PAID"
	RentUnpaid = "UNPAID"
)

// Invoice statuses
const (
	InvoicePending = "PENDING"
	InvoicePaid    = "PAID"
)

// Notification types
const (
	NotificationAlert   = "alert"
	NotificationBilling = "billing"
)

// Builder is the tenant account that owns every other row
type Builder struct {
	ID            string    `db:"id" json:"id"`
	Name          string    `db:"name" json:"name"`
	Email         string    `db:"email" json:"email"`
	Plan          string    `db:"plan" json:"plan"`
	Status        string    `db:"status" json:"status"`
	TotalProjects int       `db:"total_projects" json:"totalProjects"`
	TotalUnits    int       `db:"total_units" json:"totalUnits"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Active reports whether the builder takes part in scheduled jobs
func (b *Builder) Active() bool {
	return b.Status != BuilderSuspended
}

// Project groups units under a builder
type Project struct {
	ID        string    `db:"id" json:"id"`
	BuilderID string    `db:"builder_id" json:"builderId"`
	Name      string    `db:"name" json:"name"`
	Location  string    `db:"location" json:"location"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// Tenant is the occupant of a rented unit
type Tenant struct {
	TenantName  string `json:"tenantName"`
	MonthlyRent int64  `json:"monthlyRent"`
	RentDueDay  int    `json:"rentDueDay"` // 1-28
}

// Unit is a flat, villa or shop belonging to a builder
type Unit struct {
	ID         string    `json:"id"`
	BuilderID  string    `json:"builderId"`
	ProjectID  string    `json:"projectId"`
	UnitNumber string    `json:"unitNumber"`
	Status     string    `json:"status"`
	Tenant     *Tenant   `json:"tenant,omitempty"`
	IsDeleted  bool      `json:"isDeleted"`
	CreatedAt  time.Time `json:"createdAt"`
}

// IsRented reports whether the unit is rented and carries tenant terms
func (u *Unit) IsRented() bool {
	return u.Status == UnitRented && u.Tenant != nil
}

// RentPayment is an append-only rent ledger row
type RentPayment struct {
	ID          string    `db:"id" json:"id"`
	BuilderID   string    `db:"builder_id" json:"builderId"`
	UnitID      string    `db:"unit_id" json:"unitId"`
	UnitNumber  string    `db:"unit_number" json:"unitNumber"`
	Amount      int64     `db:"amount" json:"amount"`
	Status      string    `db:"status" json:"status"`
	PeriodYear  *int      `db:"period_year" json:"periodYear,omitempty"`
	PeriodMonth *int      `db:"period_month" json:"periodMonth,omitempty"` // 0-indexed
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// BillingUsageRecord is one builder's metered usage for one calendar day
type BillingUsageRecord struct {
	BuilderID string    `db:"builder_id" json:"builderId"`
	UsageDate time.Time `db:"usage_date" json:"usageDate"`
	DateKey   string    `db:"date_key" json:"date"`
	UnitCount int       `db:"unit_count" json:"unitCount"`
	Cost      int64     `db:"cost" json:"cost"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time `db:"updated_at" json:"updatedAt"`
}

// Invoice bills a builder for one calendar month of usage
type Invoice struct {
	ID            string     `db:"id" json:"id"`
	BuilderID     string     `db:"builder_id" json:"builderId"`
	Amount        int64      `db:"amount" json:"amount"`
	Month         int        `db:"month" json:"month"` // 0-indexed
	Year          int        `db:"year" json:"year"`
	Status        string     `db:"status" json:"status"`
	DueDate       time.Time  `db:"due_date" json:"dueDate"`
	RecordedDays  int        `db:"recorded_days" json:"recordedDays"`
	EstimatedDays int        `db:"estimated_days" json:"estimatedDays"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	PaidAt        *time.Time `db:"paid_at" json:"paidAt,omitempty"`
}

// Notification is an in-app message for a builder
type Notification struct {
	ID        string    `db:"id" json:"id"`
	BuilderID string    `db:"builder_id" json:"builderId"`
	Title     string    `db:"title" json:"title"`
	Message   string    `db:"message" json:"message"`
	Read      bool      `db:"read" json:"read"`
	Type      string    `db:"type" json:"type,omitempty"`
	DedupeKey *string   `db:"dedupe_key" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}
