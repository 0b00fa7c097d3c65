package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rongwang/propvera-server/internal/config"
	"github.com/rongwang/propvera-server/internal/models"
	"github.com/rongwang/propvera-server/internal/repository"
)

func adminConfig(t *testing.T) *config.Config {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	return &config.Config{
		Auth:    config.AuthConfig{JWTSecret: "unit-test-secret", TokenDuration: 30 * time.Minute},
		Admin:   config.AdminConfig{ID: "root", PasswordHash: string(hash), SecurityKey: "key-1"},
		Billing: config.BillingConfig{TimeZone: "UTC"},
	}
}

func TestLogin(t *testing.T) {
	cfg := adminConfig(t)
	svc := NewDefaultService(repository.NewMemoryRepository(), cfg)
	issuedAt := time.Date(2024, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }

	resp, err := svc.Login(context.Background(), models.AdminLoginRequest{
		AdminID: "root", Password: "s3cret", SecurityKey: "key-1",
	})
	require.NoError(t, err)
	assert.Equal(t, RoleSuperAdmin, resp.Role)
	assert.Equal(t, 1800, resp.ExpiresIn)

	claims := jwt.MapClaims{}
	_, _, err = jwt.NewParser().ParseUnverified(resp.Token, claims)
	require.NoError(t, err)
	exp, err := claims.GetExpirationTime()
	require.NoError(t, err)
	assert.True(t, exp.Time.Equal(issuedAt.Add(30*time.Minute)))

	tests := []struct {
		name string
		req  models.AdminLoginRequest
	}{
		{"wrong id", models.AdminLoginRequest{AdminID: "admin", Password: "s3cret", SecurityKey: "key-1"}},
		{"wrong password", models.AdminLoginRequest{AdminID: "root", Password: "S3cret", SecurityKey: "key-1"}},
		{"wrong key", models.AdminLoginRequest{AdminID: "root", Password: "s3cret", SecurityKey: "key-2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.req)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}
}

func TestLoginFailsClosedWhenUnconfigured(t *testing.T) {
	cfg := adminConfig(t)
	cfg.Admin.SecurityKey = ""
	svc := NewDefaultService(repository.NewMemoryRepository(), cfg)

	_, err := svc.Login(context.Background(), models.AdminLoginRequest{AdminID: "root", Password: "s3cret"})
	assert.ErrorIs(t, err, ErrAdminNotConfigured)

	cfg = adminConfig(t)
	cfg.Auth.JWTSecret = ""
	svc = NewDefaultService(repository.NewMemoryRepository(), cfg)

	_, err = svc.Login(context.Background(), models.AdminLoginRequest{AdminID: "root", Password: "s3cret", SecurityKey: "key-1"})
	assert.ErrorIs(t, err, ErrAdminNotConfigured)
}

func TestRecordRentPaymentDefaultsPeriod(t *testing.T) {
	store := repository.NewMemoryRepository()
	addBuilder(store, "b1")
	addRentedUnit(store, "b1", "u1", 5)

	svc := NewDefaultService(store, adminConfig(t))
	svc.now = func() time.Time { return time.Date(2024, time.July, 20, 0, 0, 0, 0, time.UTC) }

	resp, err := svc.RecordRentPayment(context.Background(), "b1", models.RecordRentRequest{UnitID: "u1", Amount: 1500000})
	require.NoError(t, err)
	require.NotNil(t, resp.Payment.PeriodYear)
	require.NotNil(t, resp.Payment.PeriodMonth)
	assert.Equal(t, 2024, *resp.Payment.PeriodYear)
	assert.Equal(t, 6, *resp.Payment.PeriodMonth)
	assert.Equal(t, "U-u1", resp.Payment.UnitNumber)

	_, err = svc.RecordRentPayment(context.Background(), "b1", models.RecordRentRequest{UnitID: "nope", Amount: 1})
	assert.ErrorIs(t, err, ErrUnitNotFound)

	_, err = svc.RecordRentPayment(context.Background(), "ghost", models.RecordRentRequest{UnitID: "u1", Amount: 1})
	assert.ErrorIs(t, err, ErrBuilderNotFound)
}
