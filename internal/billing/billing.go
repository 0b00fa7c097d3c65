// Package billing holds the calendar and accrual arithmetic shared by the
// usage and invoice jobs. Months are 0-indexed (0 = January) wherever they
// are persisted or shown to clients.
package billing

import (
	"fmt"
	"time"
)

// Period is a calendar month
type Period struct {
	Year  int
	Month int // 0-indexed
}

// PeriodOf returns the calendar month containing t, in t's location
func PeriodOf(t time.Time) Period {
	return Period{Year: t.Year(), Month: int(t.Month()) - 1}
}

// PreviousPeriod returns the calendar month before the one containing t
func PreviousPeriod(t time.Time) Period {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return PeriodOf(first.AddDate(0, -1, 0))
}

// Start is midnight on the first day of the month
func (p Period) Start(loc *time.Location) time.Time {
	return time.Date(p.Year, time.Month(p.Month+1), 1, 0, 0, 0, 0, loc)
}

// End is midnight on the first day of the following month (exclusive)
func (p Period) End(loc *time.Location) time.Time {
	return p.Start(loc).AddDate(0, 1, 0)
}

// Days is the number of calendar days in the month
func (p Period) Days() int {
	return DaysInMonth(p.Year, p.Month)
}

// Name is the English month name, e.g. "February"
func (p Period) Name() string {
	return time.Month(p.Month + 1).String()
}

// BillableWindow is the part of the month on or after the day the builder
// signed up. A zero createdAt means the whole month; days is 0 when the
// builder did not yet exist.
func (p Period) BillableWindow(createdAt time.Time, loc *time.Location) (start time.Time, days int) {
	start, end := p.Start(loc), p.End(loc)
	if !createdAt.IsZero() {
		if signup := Day(createdAt, loc); signup.After(start) {
			start = signup
		}
	}
	if !start.Before(end) {
		return end, 0
	}
	return start, p.Days() - start.Day() + 1
}

func (p Period) String() string {
	return fmt.Sprintf("%d-%d", p.Year, p.Month)
}

// DaysInMonth returns the day count of a 0-indexed month
func DaysInMonth(year, month int) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, time.Month(month+2), 0, 0, 0, 0, 0, time.UTC).Day()
}

// Day truncates t to midnight of its calendar day in loc
func Day(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// UsageKey is the per-day usage record key "{year}-{month}-{day}" with a 0-indexed month
func UsageKey(day time.Time) string {
	return fmt.Sprintf("%d-%d-%d", day.Year(), int(day.Month())-1, day.Day())
}

// DailyCost is the charge for one day of metering
func DailyCost(unitCount int, rate int64) int64 {
	return int64(unitCount) * rate
}

// MonthlyTotal is an invoice amount and how much of it was recorded versus estimated
type MonthlyTotal struct {
	Amount        int64
	RecordedDays  int
	EstimatedDays int
}

// MonthlyAmount sums the recorded daily usage and fills billable days with no
// record using the current unit count. Days before signup are not billable.
// With no records at all this reduces to currentUnits * rate * billableDays.
func MonthlyAmount(recordedCost int64, recordedDays, billableDays, currentUnits int, rate int64) MonthlyTotal {
	if recordedDays > billableDays {
		recordedDays = billableDays
	}
	missing := billableDays - recordedDays
	return MonthlyTotal{
		Amount:        recordedCost + int64(missing)*DailyCost(currentUnits, rate),
		RecordedDays:  recordedDays,
		EstimatedDays: missing,
	}
}
