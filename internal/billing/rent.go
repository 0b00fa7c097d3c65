package billing

import (
	"fmt"
	"time"

	"github.com/rongwang/propvera-server/internal/models"
)

const (
	MinRentDueDay = 1
	MaxRentDueDay = 28
)

// RentDueDay returns the tenant's due day, treating a missing or out-of-range value as the 1st
func RentDueDay(t *models.Tenant) int {
	if t == nil || t.RentDueDay < MinRentDueDay || t.RentDueDay > MaxRentDueDay {
		return MinRentDueDay
	}
	return t.RentDueDay
}

// IsDueToday reports whether rent falls due on today's calendar day
func IsDueToday(dueDay int, today time.Time) bool {
	return today.Day() == dueDay
}

// IsOverdue reports whether today is past the due day within the current month.
// Any later day qualifies, so a skipped run still raises the alert on the next one.
func IsOverdue(dueDay int, today time.Time) bool {
	return today.Day() > dueDay
}

// RentDueKey identifies the single due reminder for a unit in a month
func RentDueKey(builderID, unitID string, p Period) string {
	return fmt.Sprintf("rent-due:%s:%s:%s", builderID, unitID, p)
}

// RentOverdueKey identifies the single overdue alert for a unit in a month
func RentOverdueKey(builderID, unitID string, p Period) string {
	return fmt.Sprintf("rent-overdue:%s:%s:%s", builderID, unitID, p)
}

// InvoiceKey identifies the invoice notification for a billed month
func InvoiceKey(builderID string, p Period) string {
	return fmt.Sprintf("invoice:%s:%s", builderID, p)
}
