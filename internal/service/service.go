package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/rongwang/propvera-server/internal/billing"
	"github.com/rongwang/propvera-server/internal/config"
	"github.com/rongwang/propvera-server/internal/models"
	"github.com/rongwang/propvera-server/internal/repository"
	"github.com/rongwang/propvera-server/internal/utils"
)

// RoleSuperAdmin is the only role the admin console issues
const RoleSuperAdmin = "SUPER_ADMIN"

var (
	ErrAdminNotConfigured = errors.New("server authentication configuration error")
	ErrInvalidCredentials = errors.New("invalid admin credentials")
	ErrBuilderNotFound    = errors.New("builder not found")
	ErrUnitNotFound       = errors.New("unit not found")
	ErrRentNotFound       = errors.New("rent payment not found")
	ErrInvoiceNotFound    = errors.New("invoice not found")
)

// Service defines the admin console operations
type Service interface {
	// Authentication
	Login(ctx context.Context, req models.AdminLoginRequest) (*models.AdminLoginResponse, error)

	// Reporting
	ListBuilders(ctx context.Context) (*models.BuilderListResponse, error)
	GetBuilderDetail(ctx context.Context, builderID string) (*models.BuilderDetailResponse, error)
	ListInvoices(ctx context.Context, builderID string) (*models.InvoiceListResponse, error)
	ListNotifications(ctx context.Context, builderID string) (*models.NotificationListResponse, error)

	// Ledger entries
	RecordRentPayment(ctx context.Context, builderID string, req models.RecordRentRequest) (*models.RentPaymentResponse, error)
	MarkRentUnpaid(ctx context.Context, builderID, rentID string) (*models.RentPaymentResponse, error)
	MarkInvoicePaid(ctx context.Context, builderID, invoiceID string) (*models.InvoiceResponse, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo          repository.Repository
	admin         config.AdminConfig
	jwtSecret     []byte
	tokenDuration time.Duration
	location      *time.Location
	now           func() time.Time
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository, cfg *config.Config) *DefaultService {
	tokenDuration := cfg.Auth.TokenDuration
	if tokenDuration <= 0 {
		tokenDuration = 2 * time.Hour
	}
	return &DefaultService{
		repo:          repo,
		admin:         cfg.Admin,
		jwtSecret:     []byte(cfg.Auth.JWTSecret),
		tokenDuration: tokenDuration,
		location:      cfg.Billing.Location(),
		now:           time.Now,
	}
}

// Authentication methods

// Login checks the submitted credentials against the configured admin
// secrets and issues a signed, expiring token. The password is never logged.
func (s *DefaultService) Login(ctx context.Context, req models.AdminLoginRequest) (*models.AdminLoginResponse, error) {
	utils.Logger.Infof("Admin login attempt for ID: %s", req.AdminID)

	if !s.admin.Configured() || len(s.jwtSecret) == 0 {
		utils.Logger.Error("Admin login failed: server misconfiguration (missing admin secrets)")
		return nil, ErrAdminNotConfigured
	}

	idOK := subtle.ConstantTimeCompare([]byte(req.AdminID), []byte(s.admin.ID)) == 1
	keyOK := subtle.ConstantTimeCompare([]byte(req.SecurityKey), []byte(s.admin.SecurityKey)) == 1
	passOK := bcrypt.CompareHashAndPassword([]byte(s.admin.PasswordHash), []byte(req.Password)) == nil

	if !idOK || !keyOK || !passOK {
		utils.Logger.Warnf("Admin login failed for ID %s: incorrect credentials", req.AdminID)
		return nil, ErrInvalidCredentials
	}

	token, err := s.generateJWT(req.AdminID)
	if err != nil {
		return nil, fmt.Errorf("error generating token: %w", err)
	}

	utils.Logger.Infof("Admin login success for ID: %s", req.AdminID)
	return &models.AdminLoginResponse{
		Success:   true,
		Role:      RoleSuperAdmin,
		Token:     token,
		ExpiresIn: int(s.tokenDuration.Seconds()),
	}, nil
}

// Reporting methods
func (s *DefaultService) ListBuilders(ctx context.Context) (*models.BuilderListResponse, error) {
	builders, err := s.repo.ListBuilders(ctx)
	if err != nil {
		return nil, fmt.Errorf("error fetching builders: %w", err)
	}

	summaries := make([]models.BuilderSummary, 0, len(builders))
	for _, b := range builders {
		summary := models.BuilderSummary{
			ID:            b.ID,
			Name:          orDefault(b.Name, "Unknown"),
			Email:         orDefault(b.Email, "-"),
			Plan:          orDefault(b.Plan, "free"),
			TotalProjects: b.TotalProjects,
			TotalUnits:    b.TotalUnits,
		}
		if !b.CreatedAt.IsZero() {
			created := b.CreatedAt.UTC().Format(time.RFC3339)
			summary.CreatedAt = &created
		}
		summaries = append(summaries, summary)
	}

	return &models.BuilderListResponse{
		Success:  true,
		Builders: summaries,
	}, nil
}

func (s *DefaultService) GetBuilderDetail(ctx context.Context, builderID string) (*models.BuilderDetailResponse, error) {
	builder, err := s.getBuilder(ctx, builderID)
	if err != nil {
		return nil, err
	}

	projects, err := s.repo.ListProjects(ctx, builderID)
	if err != nil {
		return nil, fmt.Errorf("error fetching projects: %w", err)
	}

	units, err := s.repo.ListUnits(ctx, builderID)
	if err != nil {
		return nil, fmt.Errorf("error fetching units: %w", err)
	}

	if projects == nil {
		projects = []models.Project{}
	}
	if units == nil {
		units = []models.Unit{}
	}

	return &models.BuilderDetailResponse{
		Success:  true,
		Builder:  *builder,
		Projects: projects,
		Units:    units,
	}, nil
}

func (s *DefaultService) ListInvoices(ctx context.Context, builderID string) (*models.InvoiceListResponse, error) {
	if _, err := s.getBuilder(ctx, builderID); err != nil {
		return nil, err
	}

	invoices, err := s.repo.ListInvoices(ctx, builderID)
	if err != nil {
		return nil, fmt.Errorf("error fetching invoices: %w", err)
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}

	return &models.InvoiceListResponse{Success: true, Invoices: invoices}, nil
}

func (s *DefaultService) ListNotifications(ctx context.Context, builderID string) (*models.NotificationListResponse, error) {
	if _, err := s.getBuilder(ctx, builderID); err != nil {
		return nil, err
	}

	notifications, err := s.repo.ListNotifications(ctx, builderID)
	if err != nil {
		return nil, fmt.Errorf("error fetching notifications: %w", err)
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}

	return &models.NotificationListResponse{Success: true, Notifications: notifications}, nil
}

// Ledger methods

// RecordRentPayment appends a PAID rent row. The period defaults to the
// current billing month so the overdue check can match it exactly.
func (s *DefaultService) RecordRentPayment(
	ctx context.Context,
	builderID string,
	req models.RecordRentRequest,
) (*models.RentPaymentResponse, error) {
	if _, err := s.getBuilder(ctx, builderID); err != nil {
		return nil, err
	}

	units, err := s.repo.ListUnits(ctx, builderID)
	if err != nil {
		return nil, fmt.Errorf("error fetching units: %w", err)
	}

	var unit *models.Unit
	for i := range units {
		if units[i].ID == req.UnitID {
			unit = &units[i]
			break
		}
	}
	if unit == nil {
		return nil, ErrUnitNotFound
	}

	period := billing.PeriodOf(s.now().In(s.location))
	if req.PeriodYear != nil {
		period.Year = *req.PeriodYear
	}
	if req.PeriodMonth != nil {
		period.Month = *req.PeriodMonth
	}

	payment := &models.RentPayment{
		BuilderID:   builderID,
		UnitID:      unit.ID,
		UnitNumber:  unit.UnitNumber,
		Amount:      req.Amount,
		Status:      models.RentPaid,
		PeriodYear:  &period.Year,
		PeriodMonth: &period.Month,
	}

	if err := s.repo.RecordRentPayment(ctx, payment); err != nil {
		return nil, fmt.Errorf("error recording rent payment: %w", err)
	}

	return &models.RentPaymentResponse{Success: true, Payment: *payment}, nil
}

func (s *DefaultService) MarkRentUnpaid(ctx context.Context, builderID, rentID string) (*models.RentPaymentResponse, error) {
	payment, err := s.repo.MarkRentUnpaid(ctx, builderID, rentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrRentNotFound
		}
		return nil, fmt.Errorf("error updating rent payment: %w", err)
	}

	return &models.RentPaymentResponse{Success: true, Payment: *payment}, nil
}

func (s *DefaultService) MarkInvoicePaid(ctx context.Context, builderID, invoiceID string) (*models.InvoiceResponse, error) {
	invoice, err := s.repo.MarkInvoicePaid(ctx, builderID, invoiceID, s.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("error updating invoice: %w", err)
	}

	return &models.InvoiceResponse{Success: true, Invoice: *invoice}, nil
}

// Helper methods
func (s *DefaultService) getBuilder(ctx context.Context, builderID string) (*models.Builder, error) {
	builder, err := s.repo.GetBuilder(ctx, builderID)
	if err != nil {
		return nil, fmt.Errorf("error fetching builder: %w", err)
	}
	if builder == nil {
		return nil, ErrBuilderNotFound
	}
	return builder, nil
}

func (s *DefaultService) generateJWT(adminID string) (string, error) {
	now := s.now()

	claims := jwt.MapClaims{
		"sub":  adminID,
		"role": RoleSuperAdmin,
		"exp":  now.Add(s.tokenDuration).Unix(),
		"iat":  now.Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
