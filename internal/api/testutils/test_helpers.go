package testutils

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/rongwang/propvera-server/internal/api"
	"github.com/rongwang/propvera-server/internal/config"
	"github.com/rongwang/propvera-server/internal/models"
	"github.com/rongwang/propvera-server/internal/repository"
	"github.com/rongwang/propvera-server/internal/service"
)

// Admin credentials accepted by the test router
const (
	AdminID          = "admin@propvera.test"
	AdminPassword    = "correct-horse"
	AdminSecurityKey = "sk-test-0001"
	TestJWTSecret    = "test-secret-key"

	TestBuilderID = "builder-1"
)

// TestContext holds all dependencies for tests
type TestContext struct {
	Router     *gin.Engine
	Repository *repository.MemoryRepository
	Service    service.Service
	Config     *config.Config
	Notifier   *RecordingNotifier
	Clock      *Clock
	AdminJWT   string
}

// SetupTestContext creates a router over an in-memory store holding one builder
func SetupTestContext(t *testing.T) *TestContext {
	t.Helper()

	hash, err := bcrypt.GenerateFromPassword([]byte(AdminPassword), bcrypt.MinCost)
	require.NoError(t, err, "Failed to hash admin password")

	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:     TestJWTSecret,
			TokenDuration: time.Hour,
		},
		Admin: config.AdminConfig{
			ID:           AdminID,
			PasswordHash: string(hash),
			SecurityKey:  AdminSecurityKey,
		},
		Billing: config.BillingConfig{
			UnitDailyRate: 2,
			GracePeriod:   7 * 24 * time.Hour,
			TimeZone:      "UTC",
		},
		Jobs: config.JobsConfig{Concurrency: 2},
	}

	repo := repository.NewMemoryRepository()
	repo.AddBuilder(models.Builder{
		ID:        TestBuilderID,
		Name:      "Skyline Developers",
		Email:     "owner@skyline.test",
		Plan:      "pro",
		Status:    models.BuilderActive,
		CreatedAt: time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
	})

	return newTestContext(t, cfg, repo)
}

// SetupTestContextWithConfig builds a router from cfg over an empty store
func SetupTestContextWithConfig(t *testing.T, cfg *config.Config) *TestContext {
	t.Helper()
	return newTestContext(t, cfg, repository.NewMemoryRepository())
}

func newTestContext(t *testing.T, cfg *config.Config, repo *repository.MemoryRepository) *TestContext {
	notifier := &RecordingNotifier{}
	clock := &Clock{now: time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)}
	jobOpts := service.JobOptions{
		UnitDailyRate: cfg.Billing.UnitDailyRate,
		GracePeriod:   cfg.Billing.GracePeriod,
		Location:      cfg.Billing.Location(),
		Concurrency:   cfg.Jobs.Concurrency,
		Now:           clock.Now,
	}

	svc := service.NewDefaultService(repo, cfg)
	handler := api.NewHandler(
		svc,
		service.NewUsageAccrualJob(repo, notifier, jobOpts),
		service.NewInvoiceJob(repo, notifier, jobOpts),
	)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(api.JWTSecretMiddleware(cfg.Auth.JWTSecret))
	handler.SetupRoutes(router)

	tc := &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
		Config:     cfg,
		Notifier:   notifier,
		Clock:      clock,
	}
	if cfg.Auth.JWTSecret != "" {
		tc.AdminJWT = SignToken(t, cfg.Auth.JWTSecret, service.RoleSuperAdmin, time.Now().Add(time.Hour))
	}
	return tc
}

// SignToken issues an HS256 admin token with the given role and expiry
func SignToken(t *testing.T, secret, role string, expiresAt time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  AdminID,
		"role": role,
		"exp":  expiresAt.Unix(),
		"iat":  time.Now().Unix(),
	})

	tokenString, err := token.SignedString([]byte(secret))
	require.NoError(t, err, "Failed to generate JWT token")
	return tokenString
}

// PerformRequest executes an HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}

// DecodeJSON unmarshals a recorded response body into v
func DecodeJSON(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), "body: %s", w.Body.String())
}
