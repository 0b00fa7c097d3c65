package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rongwang/propvera-server/internal/models"
	"github.com/rongwang/propvera-server/internal/repository"
)

func TestUsageAccrualCountsAllStatuses(t *testing.T) {
	store := repository.NewMemoryRepository()
	addBuilder(store, "b1")
	addUnits(store, "b1", models.UnitVacant, 3)
	addRentedUnit(store, "b1", "r1", 20)
	addRentedUnit(store, "b1", "r2", 20)
	addUnits(store, "b1", models.UnitSold, 1)

	clock := newTestClock(date(2024, time.March, 10))
	job := NewUsageAccrualJob(store, &recordingNotifier{}, testJobOptions(clock))

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.UsageRecords)

	records := usageBetween(t, store, "b1", date(2024, time.March, 1), date(2024, time.April, 1))
	require.Len(t, records, 1)
	assert.Equal(t, 6, records[0].UnitCount)
	assert.Equal(t, int64(12), records[0].Cost)
	assert.Equal(t, "2024-2-10", records[0].DateKey)
}

func TestUsageAccrualIgnoresDeletedUnits(t *testing.T) {
	store := repository.NewMemoryRepository()
	addBuilder(store, "b1")
	addUnits(store, "b1", models.UnitVacant, 2)
	store.AddUnit(models.Unit{ID: "gone", BuilderID: "b1", Status: models.UnitVacant})
	store.RemoveUnit("b1", "gone")

	clock := newTestClock(date(2024, time.March, 10))
	job := NewUsageAccrualJob(store, &recordingNotifier{}, testJobOptions(clock))

	_, err := job.Run(context.Background())
	require.NoError(t, err)

	records := usageBetween(t, store, "b1", date(2024, time.March, 1), date(2024, time.April, 1))
	require.Len(t, records, 1)
	assert.Equal(t, 2, records[0].UnitCount)
}

func TestUsageAccrualIsIdempotentPerDay(t *testing.T) {
	store := repository.NewMemoryRepository()
	addBuilder(store, "b1")
	addUnits(store, "b1", models.UnitVacant, 4)

	clock := newTestClock(date(2024, time.March, 10))
	job := NewUsageAccrualJob(store, &recordingNotifier{}, testJobOptions(clock))

	_, err := job.Run(context.Background())
	require.NoError(t, err)

	// a unit is added and the job re-runs later the same day
	addUnits(store, "b1", models.UnitVacant, 1)
	clock.Set(date(2024, time.March, 10).Add(6 * time.Hour))

	_, err = job.Run(context.Background())
	require.NoError(t, err)

	records := usageBetween(t, store, "b1", date(2024, time.March, 1), date(2024, time.April, 1))
	require.Len(t, records, 1)
	assert.Equal(t, 5, records[0].UnitCount)
	assert.Equal(t, int64(10), records[0].Cost)
}

func TestRentDueReminderFiresOnlyOnDueDay(t *testing.T) {
	tests := []struct {
		day       int
		wantCount int
	}{
		{day: 4, wantCount: 0},
		{day: 5, wantCount: 1},
		{day: 6, wantCount: 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("March %d", tt.day), func(t *testing.T) {
			store := repository.NewMemoryRepository()
			addBuilder(store, "b1")
			addRentedUnit(store, "b1", "u1", 5)

			notifier := &recordingNotifier{}
			clock := newTestClock(date(2024, time.March, tt.day))
			job := NewUsageAccrualJob(store, notifier, testJobOptions(clock))

			_, err := job.Run(context.Background())
			require.NoError(t, err)

			due := notificationsTitled(t, store, "b1", "Rent Due")
			assert.Len(t, due, tt.wantCount)

			dueEmails := 0
			for _, e := range notifier.emails() {
				if e.Subject == "Rent Due: Unit U-u1" {
					dueEmails++
					assert.Equal(t, "b1@example.com", e.To)
				}
			}
			assert.Equal(t, tt.wantCount, dueEmails)
		})
	}
}

func TestRentDueReminderNotRepeatedOnRerun(t *testing.T) {
	store := repository.NewMemoryRepository()
	addBuilder(store, "b1")
	addRentedUnit(store, "b1", "u1", 5)

	notifier := &recordingNotifier{}
	clock := newTestClock(date(2024, time.March, 5))
	job := NewUsageAccrualJob(store, notifier, testJobOptions(clock))

	_, err := job.Run(context.Background())
	require.NoError(t, err)
	_, err = job.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, notificationsTitled(t, store, "b1", "Rent Due"), 1)
	assert.Len(t, notifier.emails(), 1)
}

func TestOverdueAlertWithoutPayment(t *testing.T) {
	store := repository.NewMemoryRepository()
	addBuilder(store, "b1")
	addRentedUnit(store, "b1", "u1", 5)

	notifier := &recordingNotifier{}
	clock := newTestClock(date(2024, time.March, 6))
	job := NewUsageAccrualJob(store, notifier, testJobOptions(clock))

	_, err := job.Run(context.Background())
	require.NoError(t, err)

	overdue := notificationsTitled(t, store, "b1", "Rent OVERDUE")
	require.Len(t, overdue, 1)
	assert.Equal(t, models.NotificationAlert, overdue[0].Type)
	assert.Equal(t, "Rent for Unit U-u1 is overdue!", overdue[0].Message)
	assert.False(t, overdue[0].Read)

	emails := notifier.emails()
	require.Len(t, emails, 1)
	assert.Equal(t, "OVERDUE: Unit U-u1", emails[0].Subject)
}

func TestOverdueSuppressedByPayment(t *testing.T) {
	t.Run("legacy payment created this month", func(t *testing.T) {
		store := repository.NewMemoryRepository()
		addBuilder(store, "b1")
		addRentedUnit(store, "b1", "u1", 5)
		require.NoError(t, store.RecordRentPayment(context.Background(), &models.RentPayment{
			BuilderID: "b1",
			UnitID:    "u1",
			Amount:    1500000,
			CreatedAt: date(2024, time.March, 3),
		}))

		clock := newTestClock(date(2024, time.March, 6))
		job := NewUsageAccrualJob(store, &recordingNotifier{}, testJobOptions(clock))

		_, err := job.Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, notificationsTitled(t, store, "b1", "Rent OVERDUE"))
	})

	t.Run("payment tagged with the current period", func(t *testing.T) {
		store := repository.NewMemoryRepository()
		addBuilder(store, "b1")
		addRentedUnit(store, "b1", "u1", 5)
		year, month := 2024, 2
		// recorded late in February but for March
		require.NoError(t, store.RecordRentPayment(context.Background(), &models.RentPayment{
			BuilderID:   "b1",
			UnitID:      "u1",
			Amount:      1500000,
			PeriodYear:  &year,
			PeriodMonth: &month,
			CreatedAt:   date(2024, time.February, 28),
		}))

		clock := newTestClock(date(2024, time.March, 6))
		job := NewUsageAccrualJob(store, &recordingNotifier{}, testJobOptions(clock))

		_, err := job.Run(context.Background())
		require.NoError(t, err)
		assert.Empty(t, notificationsTitled(t, store, "b1", "Rent OVERDUE"))
	})

	t.Run("last month's payment does not count", func(t *testing.T) {
		store := repository.NewMemoryRepository()
		addBuilder(store, "b1")
		addRentedUnit(store, "b1", "u1", 5)
		require.NoError(t, store.RecordRentPayment(context.Background(), &models.RentPayment{
			BuilderID: "b1",
			UnitID:    "u1",
			Amount:    1500000,
			CreatedAt: date(2024, time.February, 27),
		}))

		clock := newTestClock(date(2024, time.March, 6))
		job := NewUsageAccrualJob(store, &recordingNotifier{}, testJobOptions(clock))

		_, err := job.Run(context.Background())
		require.NoError(t, err)
		assert.Len(t, notificationsTitled(t, store, "b1", "Rent OVERDUE"), 1)
	})

	t.Run("payment marked unpaid does not count", func(t *testing.T) {
		store := repository.NewMemoryRepository()
		addBuilder(store, "b1")
		addRentedUnit(store, "b1", "u1", 5)
		payment := &models.RentPayment{
			BuilderID: "b1",
			UnitID:    "u1",
			Amount:    1500000,
			CreatedAt: date(2024, time.March, 2),
		}
		require.NoError(t, store.RecordRentPayment(context.Background(), payment))
		_, err := store.MarkRentUnpaid(context.Background(), "b1", payment.ID)
		require.NoError(t, err)

		clock := newTestClock(date(2024, time.March, 6))
		job := NewUsageAccrualJob(store, &recordingNotifier{}, testJobOptions(clock))

		_, err = job.Run(context.Background())
		require.NoError(t, err)
		assert.Len(t, notificationsTitled(t, store, "b1", "Rent OVERDUE"), 1)
	})
}

func TestOverdueAlertCatchesUpAfterMissedRun(t *testing.T) {
	store := repository.NewMemoryRepository()
	addBuilder(store, "b1")
	addRentedUnit(store, "b1", "u1", 5)

	notifier := &recordingNotifier{}
	// the 6th was missed; the first run after the due day is on the 9th
	clock := newTestClock(date(2024, time.March, 9))
	job := NewUsageAccrualJob(store, notifier, testJobOptions(clock))

	_, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, notificationsTitled(t, store, "b1", "Rent OVERDUE"), 1)

	// later runs in the same month do not repeat the alert
	clock.Set(date(2024, time.March, 10))
	_, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, notificationsTitled(t, store, "b1", "Rent OVERDUE"), 1)
	assert.Len(t, notifier.emails(), 1)

	// a new month starts a new alert cycle
	clock.Set(date(2024, time.April, 6))
	_, err = job.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, notificationsTitled(t, store, "b1", "Rent OVERDUE"), 2)
}

func TestUsageAccrualIsolatesBuilderFailures(t *testing.T) {
	store := repository.NewMemoryRepository()
	for _, id := range []string{"a", "b", "c"} {
		addBuilder(store, id)
		addRentedUnit(store, id, id+"-u1", 5)
	}
	store.FailOn("ListUnits", "b", errors.New("store unavailable"))

	clock := newTestClock(date(2024, time.March, 5))
	job := NewUsageAccrualJob(store, &recordingNotifier{}, testJobOptions(clock))

	report, err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "builder b")

	require.NotNil(t, report)
	assert.Equal(t, 3, report.Builders)
	assert.Equal(t, 2, report.Succeeded)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "b", report.Failures[0].BuilderID)

	from, to := date(2024, time.March, 1), date(2024, time.April, 1)
	assert.Len(t, usageBetween(t, store, "a", from, to), 1)
	assert.Len(t, usageBetween(t, store, "c", from, to), 1)
	assert.Empty(t, usageBetween(t, store, "b", from, to))
	assert.Empty(t, notificationsTitled(t, store, "b", "Rent Due"))
}

func TestUsageAccrualFailedCommitWritesNothingAndSendsNoEmail(t *testing.T) {
	store := repository.NewMemoryRepository()
	addBuilder(store, "b1")
	addRentedUnit(store, "b1", "u1", 5)
	store.FailOn("CommitBatch", "b1", errors.New("commit failed"))

	notifier := &recordingNotifier{}
	clock := newTestClock(date(2024, time.March, 5))
	job := NewUsageAccrualJob(store, notifier, testJobOptions(clock))

	_, err := job.Run(context.Background())
	require.Error(t, err)

	assert.Empty(t, notificationsTitled(t, store, "b1", "Rent Due"))
	assert.Empty(t, usageBetween(t, store, "b1", date(2024, time.March, 1), date(2024, time.April, 1)))
	assert.Empty(t, notifier.emails())
}

func TestUsageAccrualEmailFailureKeepsNotification(t *testing.T) {
	store := repository.NewMemoryRepository()
	addBuilder(store, "b1")
	addRentedUnit(store, "b1", "u1", 5)

	notifier := &recordingNotifier{fail: true}
	clock := newTestClock(date(2024, time.March, 5))
	job := NewUsageAccrualJob(store, notifier, testJobOptions(clock))

	report, err := job.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, notificationsTitled(t, store, "b1", "Rent Due"), 1)
	assert.Equal(t, 0, report.EmailsSent)
	assert.Equal(t, 1, report.EmailsFailed)
}

func TestUsageAccrualSkipsSuspendedBuilders(t *testing.T) {
	store := repository.NewMemoryRepository()
	addBuilder(store, "active")
	addUnits(store, "active", models.UnitVacant, 1)
	store.AddBuilder(models.Builder{ID: "gone", Status: models.BuilderSuspended})
	addUnits(store, "gone", models.UnitVacant, 1)

	clock := newTestClock(date(2024, time.March, 5))
	job := NewUsageAccrualJob(store, &recordingNotifier{}, testJobOptions(clock))

	report, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Suspended)
	assert.Equal(t, 1, report.Succeeded)
	assert.Empty(t, usageBetween(t, store, "gone", date(2024, time.March, 1), date(2024, time.April, 1)))
}

func TestUsageAccrualRefusesOverlappingRun(t *testing.T) {
	store := repository.NewMemoryRepository()
	addBuilder(store, "b1")

	release, ok, err := store.TryJobLock(context.Background(), DailyUsageJobName)
	require.NoError(t, err)
	require.True(t, ok)

	clock := newTestClock(date(2024, time.March, 5))
	job := NewUsageAccrualJob(store, &recordingNotifier{}, testJobOptions(clock))

	_, err = job.Run(context.Background())
	assert.ErrorIs(t, err, ErrJobAlreadyRunning)

	release()
	_, err = job.Run(context.Background())
	assert.NoError(t, err)
}
