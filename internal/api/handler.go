package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rongwang/propvera-server/internal/models"
	"github.com/rongwang/propvera-server/internal/service"
	"github.com/rongwang/propvera-server/internal/utils"
)

// Handler serves the admin console API
type Handler struct {
	service service.Service
	jobs    map[string]service.Job
}

// NewHandler creates a handler; jobs become runnable on demand by name
func NewHandler(svc service.Service, jobs ...service.Job) *Handler {
	h := &Handler{
		service: svc,
		jobs:    make(map[string]service.Job, len(jobs)),
	}
	for _, job := range jobs {
		h.jobs[job.Name()] = job
	}
	return h
}

// SetupRoutes registers every route on router
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.GET("/health", h.Health)

	admin := router.Group("/api/admin")
	admin.POST("/login", h.Login)

	secured := admin.Group("")
	secured.Use(AuthMiddleware())
	{
		secured.GET("/builders", h.ListBuilders)
		secured.GET("/builders/:builderId", h.GetBuilderDetail)
		secured.GET("/builders/:builderId/invoices", h.ListInvoices)
		secured.POST("/builders/:builderId/invoices/:invoiceId/paid", h.MarkInvoicePaid)
		secured.GET("/builders/:builderId/notifications", h.ListNotifications)
		secured.POST("/builders/:builderId/rents", h.RecordRentPayment)
		secured.POST("/builders/:builderId/rents/:rentId/unpaid", h.MarkRentUnpaid)
		secured.POST("/jobs/:job", h.RunJob)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Login(c *gin.Context) {
	var req models.AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", "Missing credentials")
		return
	}

	resp, err := h.service.Login(c.Request.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidCredentials):
			errorResponse(c, http.StatusForbidden, "PERMISSION_DENIED", "Invalid Admin Credentials")
		case errors.Is(err, service.ErrAdminNotConfigured):
			errorResponse(c, http.StatusInternalServerError, "INTERNAL", "Server authentication configuration error")
		default:
			utils.Logger.WithError(err).Error("Admin login failed")
			errorResponse(c, http.StatusInternalServerError, "INTERNAL", "Login failed")
		}
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListBuilders(c *gin.Context) {
	resp, err := h.service.ListBuilders(c.Request.Context())
	if err != nil {
		h.serviceError(c, err, "Failed to fetch builders")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) GetBuilderDetail(c *gin.Context) {
	resp, err := h.service.GetBuilderDetail(c.Request.Context(), c.Param("builderId"))
	if err != nil {
		h.serviceError(c, err, "Failed to fetch builder details")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListInvoices(c *gin.Context) {
	resp, err := h.service.ListInvoices(c.Request.Context(), c.Param("builderId"))
	if err != nil {
		h.serviceError(c, err, "Failed to fetch invoices")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) MarkInvoicePaid(c *gin.Context) {
	resp, err := h.service.MarkInvoicePaid(c.Request.Context(), c.Param("builderId"), c.Param("invoiceId"))
	if err != nil {
		h.serviceError(c, err, "Failed to update invoice")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) ListNotifications(c *gin.Context) {
	resp, err := h.service.ListNotifications(c.Request.Context(), c.Param("builderId"))
	if err != nil {
		h.serviceError(c, err, "Failed to fetch notifications")
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) RecordRentPayment(c *gin.Context) {
	var req models.RecordRentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errorResponse(c, http.StatusBadRequest, "INVALID_ARGUMENT", err.Error())
		return
	}

	resp, err := h.service.RecordRentPayment(c.Request.Context(), c.Param("builderId"), req)
	if err != nil {
		h.serviceError(c, err, "Failed to record rent payment")
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) MarkRentUnpaid(c *gin.Context) {
	resp, err := h.service.MarkRentUnpaid(c.Request.Context(), c.Param("builderId"), c.Param("rentId"))
	if err != nil {
		h.serviceError(c, err, "Failed to update rent payment")
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RunJob runs a scheduled job immediately and returns its report
func (h *Handler) RunJob(c *gin.Context) {
	job, ok := h.jobs[c.Param("job")]
	if !ok {
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", "Unknown job")
		return
	}

	utils.Logger.Infof("Admin %s triggered %s", c.GetString("adminId"), job.Name())

	// the run spans every builder and must not stop if the caller disconnects
	report, err := job.Run(context.WithoutCancel(c.Request.Context()))
	switch {
	case errors.Is(err, service.ErrJobAlreadyRunning):
		errorResponse(c, http.StatusConflict, "ALREADY_RUNNING", err.Error())
	case err != nil && report == nil:
		utils.Logger.WithError(err).Errorf("On-demand %s failed", job.Name())
		errorResponse(c, http.StatusInternalServerError, "INTERNAL", "Job run failed")
	case err != nil:
		// partial success: report lists the failed builders
		c.JSON(http.StatusMultiStatus, report)
	default:
		c.JSON(http.StatusOK, report)
	}
}

func (h *Handler) serviceError(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, service.ErrBuilderNotFound):
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", "Builder not found")
	case errors.Is(err, service.ErrUnitNotFound):
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", "Unit not found")
	case errors.Is(err, service.ErrRentNotFound):
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", "Rent payment not found")
	case errors.Is(err, service.ErrInvoiceNotFound):
		errorResponse(c, http.StatusNotFound, "NOT_FOUND", "Invoice not found")
	default:
		utils.Logger.WithError(err).Error(message)
		errorResponse(c, http.StatusInternalServerError, "INTERNAL", message)
	}
}

func errorResponse(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.ErrorResponse{
		Status:  "error",
		Code:    code,
		Message: message,
	})
}
