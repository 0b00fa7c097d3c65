package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rongwang/propvera-server/internal/models"
	"github.com/rongwang/propvera-server/internal/repository"
)

type sentEmail struct {
	To      string
	Subject string
	Body    string
}

// recordingNotifier captures emails instead of delivering them
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentEmail
	fail bool
}

func (n *recordingNotifier) SendEmail(ctx context.Context, to, subject, body string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.sent = append(n.sent, sentEmail{To: to, Subject: subject, Body: body})
	return !n.fail
}

func (n *recordingNotifier) emails() []sentEmail {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEmail(nil), n.sent...)
}

// testClock is a settable time source
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 5, 0, 0, time.UTC)
}

func testJobOptions(clock *testClock) JobOptions {
	return JobOptions{
		UnitDailyRate: 2,
		GracePeriod:   7 * 24 * time.Hour,
		Location:      time.UTC,
		Concurrency:   4,
		Now:           clock.Now,
	}
}

func addBuilder(store *repository.MemoryRepository, id string) {
	store.AddBuilder(models.Builder{
		ID:        id,
		Name:      "Builder " + id,
		Email:     id + "@example.com",
		Plan:      "pro",
		Status:    models.BuilderActive,
		CreatedAt: time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
}

func addRentedUnit(store *repository.MemoryRepository, builderID, unitID string, dueDay int) {
	store.AddUnit(models.Unit{
		ID:         unitID,
		BuilderID:  builderID,
		UnitNumber: "U-" + unitID,
		Status:     models.UnitRented,
		Tenant: &models.Tenant{
			TenantName:  "Tenant " + unitID,
			MonthlyRent: 1500000,
			RentDueDay:  dueDay,
		},
	})
}

func addUnits(store *repository.MemoryRepository, builderID, status string, n int) {
	for i := 0; i < n; i++ {
		store.AddUnit(models.Unit{
			BuilderID:  builderID,
			UnitNumber: status,
			Status:     status,
		})
	}
}

func notificationsTitled(t *testing.T, store *repository.MemoryRepository, builderID, title string) []models.Notification {
	t.Helper()

	all, err := store.ListNotifications(context.Background(), builderID)
	require.NoError(t, err)

	var matched []models.Notification
	for _, n := range all {
		if n.Title == title {
			matched = append(matched, n)
		}
	}
	return matched
}

func usageBetween(t *testing.T, store *repository.MemoryRepository, builderID string, from, to time.Time) []models.BillingUsageRecord {
	t.Helper()

	records, err := store.ListUsage(context.Background(), builderID, from, to)
	require.NoError(t, err)
	return records
}
