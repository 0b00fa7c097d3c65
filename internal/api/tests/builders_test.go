package api_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rongwang/propvera-server/internal/api/testutils"
	"github.com/rongwang/propvera-server/internal/models"
)

func TestListBuilders(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	// a builder with no profile fields gets display defaults
	testCtx.Repository.AddBuilder(models.Builder{ID: "bare"})

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/admin/builders", nil, testutils.AuthHeaders(testCtx.AdminJWT))
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.BuilderListResponse
	testutils.DecodeJSON(t, w, &resp)
	assert.True(t, resp.Success)
	require.Len(t, resp.Builders, 2)

	byID := map[string]models.BuilderSummary{}
	for _, b := range resp.Builders {
		byID[b.ID] = b
	}

	skyline := byID[testutils.TestBuilderID]
	assert.Equal(t, "Skyline Developers", skyline.Name)
	assert.Equal(t, "pro", skyline.Plan)
	require.NotNil(t, skyline.CreatedAt)
	assert.Equal(t, "2024-01-15T00:00:00Z", *skyline.CreatedAt)

	bare := byID["bare"]
	assert.Equal(t, "Unknown", bare.Name)
	assert.Equal(t, "-", bare.Email)
	assert.Equal(t, "free", bare.Plan)
	assert.Nil(t, bare.CreatedAt)
}

func TestGetBuilderDetail(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	testCtx.Repository.AddProject(models.Project{BuilderID: testutils.TestBuilderID, Name: "Skyline Heights"})
	testCtx.Repository.AddUnit(models.Unit{
		ID:         "unit-1",
		BuilderID:  testutils.TestBuilderID,
		UnitNumber: "A-101",
		Status:     models.UnitRented,
		Tenant:     &models.Tenant{TenantName: "Asha", MonthlyRent: 2500000, RentDueDay: 5},
	})
	testCtx.Repository.AddUnit(models.Unit{ID: "unit-2", BuilderID: testutils.TestBuilderID, UnitNumber: "A-102", Status: models.UnitVacant})
	testCtx.Repository.RemoveUnit(testutils.TestBuilderID, "unit-2")

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/api/admin/builders/"+testutils.TestBuilderID,
		nil,
		testutils.AuthHeaders(testCtx.AdminJWT),
	)
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.BuilderDetailResponse
	testutils.DecodeJSON(t, w, &resp)
	assert.Equal(t, testutils.TestBuilderID, resp.Builder.ID)
	require.Len(t, resp.Projects, 1)
	assert.Equal(t, "Skyline Heights", resp.Projects[0].Name)
	require.Len(t, resp.Units, 1)
	assert.Equal(t, "A-101", resp.Units[0].UnitNumber)
	require.NotNil(t, resp.Units[0].Tenant)
	assert.Equal(t, 5, resp.Units[0].Tenant.RentDueDay)

	// Unknown builder
	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/admin/builders/missing", nil, testutils.AuthHeaders(testCtx.AdminJWT))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestBuilderListsStartEmpty(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	headers := testutils.AuthHeaders(testCtx.AdminJWT)

	w := testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/admin/builders/"+testutils.TestBuilderID+"/invoices", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"invoices":[]}`, w.Body.String())

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/admin/builders/"+testutils.TestBuilderID+"/notifications", nil, headers)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"notifications":[]}`, w.Body.String())

	w = testutils.PerformRequest(testCtx.Router, http.MethodGet, "/api/admin/builders/missing/invoices", nil, headers)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
