package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/gin-gonic/gin"

	"github.com/rongwang/propvera-server/internal/api"
	"github.com/rongwang/propvera-server/internal/config"
	"github.com/rongwang/propvera-server/internal/repository"
	"github.com/rongwang/propvera-server/internal/service"
	"github.com/rongwang/propvera-server/internal/utils"
)

const appName = "propvera-server"

func main() {
	utils.InitLogger(appName)

	// Load configuration
	cfg := config.LoadConfig()

	// Set up the tenant store
	repo, closeRepo, err := setupRepository(cfg)
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to set up store")
	}
	defer closeRepo()

	billingLoc, err := cfg.Billing.LoadLocation()
	if err != nil {
		utils.Logger.WithError(err).Fatal("Invalid billing time zone")
	}

	notifier := service.NewNotifier(cfg.Email)
	jobOpts := service.JobOptions{
		UnitDailyRate: cfg.Billing.UnitDailyRate,
		GracePeriod:   cfg.Billing.GracePeriod,
		Location:      billingLoc,
		Concurrency:   cfg.Jobs.Concurrency,
	}
	usageJob := service.NewUsageAccrualJob(repo, notifier, jobOpts)
	invoiceJob := service.NewInvoiceJob(repo, notifier, jobOpts)

	// Schedule the metering jobs
	scheduler := service.NewScheduler(billingLoc)
	if cfg.Jobs.Enabled {
		if err := scheduler.AddJob(cfg.Jobs.DailySchedule, usageJob); err != nil {
			utils.Logger.WithError(err).Fatal("Failed to schedule daily usage accrual")
		}
		if err := scheduler.AddJob(cfg.Jobs.MonthlySchedule, invoiceJob); err != nil {
			utils.Logger.WithError(err).Fatal("Failed to schedule monthly invoicing")
		}
		scheduler.Start()
	} else {
		utils.Logger.Warn("JOBS_ENABLED=false, scheduled jobs are disabled")
	}

	// Create service and API handler
	svc := service.NewDefaultService(repo, cfg)
	handler := api.NewHandler(svc, usageJob, invoiceJob)

	// Set up Gin router
	router := gin.Default()
	router.Use(api.JWTSecretMiddleware(cfg.Auth.JWTSecret))
	handler.SetupRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		utils.Logger.Infof("Starting %s on %s", appName, server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	utils.Logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		utils.Logger.WithError(err).Error("HTTP server shutdown failed")
	}

	// wait for in-flight job runs
	select {
	case <-scheduler.Stop().Done():
	case <-ctx.Done():
		utils.Logger.Warn("Timed out waiting for running jobs")
	}
}

func setupRepository(cfg *config.Config) (repository.Repository, func(), error) {
	if cfg.Database.Driver == "memory" {
		utils.Logger.Warn("Using in-memory store, data is not persisted")
		mem := repository.NewMemoryRepository()
		if os.Getenv("SEED_DEMO_DATA") == "true" {
			repository.SeedDemoData(mem, time.Now())
			utils.Logger.Info("Seeded demo data")
		}
		return mem, func() {}, nil
	}

	db, err := config.SetupDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPostgresRepository(db), func() { db.Close() }, nil
}
