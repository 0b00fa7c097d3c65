package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/rongwang/propvera-server/internal/models"
	"github.com/rongwang/propvera-server/internal/repository"
	"github.com/rongwang/propvera-server/internal/utils"
)

// Job names double as advisory lock names
const (
	DailyUsageJobName     = "daily-usage-accrual"
	MonthlyInvoiceJobName = "monthly-invoice-generation"
)

// ErrJobAlreadyRunning is returned when another run of the same job holds its lock
var ErrJobAlreadyRunning = errors.New("job is already running")

// Job is a scheduled batch run over every builder
type Job interface {
	Name() string
	Run(ctx context.Context) (*RunReport, error)
}

// JobOptions configures the metering jobs
type JobOptions struct {
	UnitDailyRate int64
	GracePeriod   time.Duration
	Location      *time.Location
	Concurrency   int
	Now           func() time.Time
}

func (o JobOptions) withDefaults() JobOptions {
	if o.UnitDailyRate <= 0 {
		o.UnitDailyRate = 2
	}
	if o.GracePeriod <= 0 {
		o.GracePeriod = 7 * 24 * time.Hour
	}
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// RunCounts tallies what a run wrote
type RunCounts struct {
	UsageRecords         int `json:"usageRecords"`
	NotificationsCreated int `json:"notificationsCreated"`
	InvoicesCreated      int `json:"invoicesCreated"`
	InvoicesSkipped      int `json:"invoicesSkipped"`
	EmailsSent           int `json:"emailsSent"`
	EmailsFailed         int `json:"emailsFailed"`
}

func (c *RunCounts) add(o RunCounts) {
	c.UsageRecords += o.UsageRecords
	c.NotificationsCreated += o.NotificationsCreated
	c.InvoicesCreated += o.InvoicesCreated
	c.InvoicesSkipped += o.InvoicesSkipped
	c.EmailsSent += o.EmailsSent
	c.EmailsFailed += o.EmailsFailed
}

// BuilderFailure records one builder whose writes were not committed
type BuilderFailure struct {
	BuilderID string `json:"builderId"`
	Error     string `json:"error"`
}

// RunReport summarizes a job run for logs and the admin API
type RunReport struct {
	Job        string           `json:"job"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
	Builders   int              `json:"builders"`
	Succeeded  int              `json:"succeeded"`
	Suspended  int              `json:"suspended"`
	Failures   []BuilderFailure `json:"failures,omitempty"`
	RunCounts
}

type builderFunc func(ctx context.Context, builder models.Builder, now time.Time) (RunCounts, error)

// runner fans a per-builder function out over all active builders. Each
// builder commits on its own, so one failure does not block the others.
type runner struct {
	repo repository.Repository
	opts JobOptions
}

func (r *runner) run(ctx context.Context, job string, process builderFunc) (*RunReport, error) {
	release, ok, err := r.repo.TryJobLock(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("error acquiring %s lock: %w", job, err)
	}
	if !ok {
		return nil, ErrJobAlreadyRunning
	}
	defer release()

	now := r.opts.Now().In(r.opts.Location)
	report := &RunReport{Job: job, StartedAt: now}

	builders, err := r.repo.ListBuilders(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing builders: %w", err)
	}
	report.Builders = len(builders)

	var (
		mu   sync.Mutex
		errs *multierror.Error
		g    errgroup.Group
	)
	g.SetLimit(r.opts.Concurrency)

	for _, b := range builders {
		b := b
		if !b.Active() {
			report.Suspended++
			continue
		}

		g.Go(func() error {
			counts, err := process(ctx, b, now)

			mu.Lock()
			defer mu.Unlock()

			if err != nil {
				utils.ForBuilder(job, b.ID).WithError(err).Error("Builder processing failed")
				report.Failures = append(report.Failures, BuilderFailure{BuilderID: b.ID, Error: err.Error()})
				errs = multierror.Append(errs, fmt.Errorf("builder %s: %w", b.ID, err))
				return nil
			}
			report.Succeeded++
			report.add(counts)
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].BuilderID < report.Failures[j].BuilderID
	})
	report.FinishedAt = r.opts.Now().In(r.opts.Location)

	return report, errs.ErrorOrNil()
}

// pendingEmail is sent only once its notification has been committed
type pendingEmail struct {
	notificationID string
	subject        string
	body           string
}

func dispatchEmails(ctx context.Context, notifier Notifier, to string, emails []pendingEmail, result *repository.CommitResult) (sent, failed int) {
	for _, e := range emails {
		if !result.NotificationWritten(e.notificationID) {
			continue
		}
		if notifier.SendEmail(ctx, to, e.subject, e.body) {
			sent++
		} else {
			failed++
		}
	}
	return sent, failed
}

func newNotification(title, message, kind, dedupeKey string, now time.Time) models.Notification {
	n := models.Notification{
		ID:        uuid.New().String(),
		Title:     title,
		Message:   message,
		Read:      false,
		Type:      kind,
		CreatedAt: now,
	}
	if dedupeKey != "" {
		n.DedupeKey = &dedupeKey
	}
	return n
}
