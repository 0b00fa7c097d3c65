package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rongwang/propvera-server/internal/billing"
	"github.com/rongwang/propvera-server/internal/models"
	"github.com/rongwang/propvera-server/internal/repository"
	"github.com/rongwang/propvera-server/internal/utils"
)

// UsageAccrualJob runs once a day. For every active builder it raises rent
// due/overdue notifications and records that day's billable unit count.
type UsageAccrualJob struct {
	runner
	notifier Notifier
}

// NewUsageAccrualJob creates the daily usage job
func NewUsageAccrualJob(repo repository.Repository, notifier Notifier, opts JobOptions) *UsageAccrualJob {
	return &UsageAccrualJob{
		runner:   runner{repo: repo, opts: opts.withDefaults()},
		notifier: notifier,
	}
}

func (j *UsageAccrualJob) Name() string {
	return DailyUsageJobName
}

// Run processes every builder; failed builders are listed in the report and the returned error
func (j *UsageAccrualJob) Run(ctx context.Context) (*RunReport, error) {
	utils.Logger.Info("Running daily usage accrual...")
	report, err := j.run(ctx, DailyUsageJobName, j.processBuilder)
	if report != nil {
		utils.Logger.WithField("failed", len(report.Failures)).
			Infof("Daily usage accrual completed: %d builders, %d usage records, %d notifications",
				report.Succeeded, report.UsageRecords, report.NotificationsCreated)
	}
	return report, err
}

func (j *UsageAccrualJob) processBuilder(ctx context.Context, builder models.Builder, now time.Time) (RunCounts, error) {
	var counts RunCounts
	log := utils.ForBuilder(DailyUsageJobName, builder.ID)

	today := billing.Day(now, j.opts.Location)
	period := billing.PeriodOf(today)

	units, err := j.repo.ListUnits(ctx, builder.ID)
	if err != nil {
		return counts, fmt.Errorf("error listing units: %w", err)
	}

	batch := repository.NewBatch()
	var emails []pendingEmail

	for _, unit := range units {
		if !unit.IsRented() {
			continue
		}
		dueDay := billing.RentDueDay(unit.Tenant)

		if billing.IsDueToday(dueDay, today) {
			n := newNotification(
				"Rent Due",
				fmt.Sprintf("Rent for Unit %s is due today.", unit.UnitNumber),
				"",
				billing.RentDueKey(builder.ID, unit.ID, period),
				now,
			)
			batch.AddNotification(n)
			emails = append(emails, pendingEmail{
				notificationID: n.ID,
				subject:        fmt.Sprintf("Rent Due: Unit %s", unit.UnitNumber),
				body:           fmt.Sprintf("Rent for unit %s is due today.", unit.UnitNumber),
			})
		}

		if billing.IsOverdue(dueDay, today) {
			payment, err := j.repo.FindRentPayment(ctx, builder.ID, unit.ID, period, period.Start(j.opts.Location))
			if err != nil {
				return counts, fmt.Errorf("error checking rent payment for unit %s: %w", unit.ID, err)
			}
			if payment == nil {
				n := newNotification(
					"Rent OVERDUE",
					fmt.Sprintf("Rent for Unit %s is overdue!", unit.UnitNumber),
					models.NotificationAlert,
					billing.RentOverdueKey(builder.ID, unit.ID, period),
					now,
				)
				batch.AddNotification(n)
				emails = append(emails, pendingEmail{
					notificationID: n.ID,
					subject:        fmt.Sprintf("OVERDUE: Unit %s", unit.UnitNumber),
					body:           fmt.Sprintf("Rent for unit %s is OVERDUE.", unit.UnitNumber),
				})
			}
		}
	}

	// every unit counts towards usage, whatever its status
	unitCount := len(units)
	batch.UpsertUsage(models.BillingUsageRecord{
		BuilderID: builder.ID,
		UsageDate: today,
		DateKey:   billing.UsageKey(today),
		UnitCount: unitCount,
		Cost:      billing.DailyCost(unitCount, j.opts.UnitDailyRate),
		CreatedAt: now,
	})

	result, err := j.repo.CommitBatch(ctx, builder.ID, batch)
	if err != nil {
		return counts, fmt.Errorf("error committing daily batch: %w", err)
	}

	counts.UsageRecords = result.UsageWritten
	counts.NotificationsCreated = len(result.Notifications)
	counts.EmailsSent, counts.EmailsFailed = dispatchEmails(ctx, j.notifier, builder.Email, emails, result)

	log.Debugf("Recorded %d units for %s", unitCount, billing.UsageKey(today))
	return counts, nil
}
