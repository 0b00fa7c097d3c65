package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rongwang/propvera-server/internal/billing"
	"github.com/rongwang/propvera-server/internal/models"
	"github.com/rongwang/propvera-server/internal/repository"
	"github.com/rongwang/propvera-server/internal/utils"
)

// InvoiceJob runs at the start of each month and bills every active builder
// once for the previous month's usage.
type InvoiceJob struct {
	runner
	notifier Notifier
}

// NewInvoiceJob creates the monthly invoice job
func NewInvoiceJob(repo repository.Repository, notifier Notifier, opts JobOptions) *InvoiceJob {
	return &InvoiceJob{
		runner:   runner{repo: repo, opts: opts.withDefaults()},
		notifier: notifier,
	}
}

func (j *InvoiceJob) Name() string {
	return MonthlyInvoiceJobName
}

// Run invoices every builder for the previous calendar month
func (j *InvoiceJob) Run(ctx context.Context) (*RunReport, error) {
	utils.Logger.Info("Running monthly invoice generation...")
	report, err := j.run(ctx, MonthlyInvoiceJobName, j.processBuilder)
	if report != nil {
		utils.Logger.WithField("failed", len(report.Failures)).
			Infof("Monthly invoicing completed: %d created, %d already invoiced",
				report.InvoicesCreated, report.InvoicesSkipped)
	}
	return report, err
}

func (j *InvoiceJob) processBuilder(ctx context.Context, builder models.Builder, now time.Time) (RunCounts, error) {
	var counts RunCounts
	log := utils.ForBuilder(MonthlyInvoiceJobName, builder.ID)
	loc := j.opts.Location
	period := billing.PreviousPeriod(now.In(loc))

	existing, err := j.repo.GetInvoice(ctx, builder.ID, period.Year, period.Month)
	if err != nil {
		return counts, fmt.Errorf("error checking existing invoice: %w", err)
	}
	if existing != nil {
		log.Infof("Invoice for %s already exists, skipping", period)
		counts.InvoicesSkipped = 1
		return counts, nil
	}

	windowStart, billableDays := period.BillableWindow(builder.CreatedAt, loc)
	if billableDays == 0 {
		log.Infof("Builder signed up after %s, nothing to invoice", period)
		return counts, nil
	}

	usage, err := j.repo.SumUsage(ctx, builder.ID, windowStart, period.End(loc))
	if err != nil {
		return counts, fmt.Errorf("error summing usage: %w", err)
	}

	units, err := j.repo.ListUnits(ctx, builder.ID)
	if err != nil {
		return counts, fmt.Errorf("error listing units: %w", err)
	}

	total := billing.MonthlyAmount(usage.Cost, usage.Days, billableDays, len(units), j.opts.UnitDailyRate)
	if total.EstimatedDays > 0 {
		log.Warnf("%d of %d billable days in %s had no usage record, estimated from %d current units",
			total.EstimatedDays, billableDays, period, len(units))
	}

	invoice := models.Invoice{
		ID:            uuid.New().String(),
		BuilderID:     builder.ID,
		Amount:        total.Amount,
		Month:         period.Month,
		Year:          period.Year,
		Status:        models.InvoicePending,
		DueDate:       now.Add(j.opts.GracePeriod),
		RecordedDays:  total.RecordedDays,
		EstimatedDays: total.EstimatedDays,
		CreatedAt:     now,
	}

	amount := billing.FormatAmount(total.Amount)
	n := newNotification(
		"Invoice Generated",
		fmt.Sprintf("Invoice for %s is ready: %s", period.Name(), amount),
		models.NotificationBilling,
		billing.InvoiceKey(builder.ID, period),
		now,
	)

	batch := repository.NewBatch()
	batch.CreateInvoice(invoice)
	batch.AddNotification(n)

	result, err := j.repo.CommitBatch(ctx, builder.ID, batch)
	if err != nil {
		return counts, fmt.Errorf("error committing invoice batch: %w", err)
	}

	if !result.InvoiceWritten(invoice.ID) {
		// a concurrent run got there first
		counts.InvoicesSkipped = 1
		return counts, nil
	}

	counts.InvoicesCreated = 1
	counts.NotificationsCreated = len(result.Notifications)
	counts.EmailsSent, counts.EmailsFailed = dispatchEmails(ctx, j.notifier, builder.Email, []pendingEmail{{
		notificationID: n.ID,
		subject:        "New Invoice Generated",
		body:           fmt.Sprintf("Your invoice of %s is ready.", amount),
	}}, result)

	return counts, nil
}
