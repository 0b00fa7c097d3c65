package repository

import (
	"fmt"
	"time"

	"github.com/rongwang/propvera-server/internal/models"
)

// DemoBuilderID is the builder created by SeedDemoData
const DemoBuilderID = "demo-user-123"

// SeedDemoData loads a small demo portfolio into an in-memory store
func SeedDemoData(m *MemoryRepository, now time.Time) {
	daysAgo := func(d int) time.Time { return now.AddDate(0, 0, -d) }

	m.AddBuilder(models.Builder{
		ID:            DemoBuilderID,
		Name:          "Demo Builder",
		Email:         "demo@propvera.com",
		Plan:          "pro",
		Status:        models.BuilderActive,
		TotalProjects: 3,
		TotalUnits:    12,
		CreatedAt:     daysAgo(30),
	})

	projects := []models.Project{
		{ID: "proj-1", Name: "Skyline Towers", Location: "Mumbai, India", CreatedAt: daysAgo(25)},
		{ID: "proj-2", Name: "Green Valley Estates", Location: "Bangalore, India", CreatedAt: daysAgo(15)},
		{ID: "proj-3", Name: "Ocean View Residency", Location: "Goa, India", CreatedAt: daysAgo(5)},
	}

	statuses := []string{models.UnitRented, models.UnitVacant, models.UnitRented, models.UnitSold}
	for pi, p := range projects {
		p.BuilderID = DemoBuilderID
		m.AddProject(p)

		for i := 0; i < 4; i++ {
			unit := models.Unit{
				ID:         fmt.Sprintf("%s-unit-%d", p.ID, i+1),
				BuilderID:  DemoBuilderID,
				ProjectID:  p.ID,
				UnitNumber: fmt.Sprintf("%c-%d0%d", 'A'+pi, pi+1, i+1),
				Status:     statuses[i],
				CreatedAt:  p.CreatedAt,
			}
			if unit.Status == models.UnitRented {
				unit.Tenant = &models.Tenant{
					TenantName:  fmt.Sprintf("Tenant %d%d", pi+1, i+1),
					MonthlyRent: 2500000,
					RentDueDay:  5 * (i + 1),
				}
			}
			m.AddUnit(unit)
		}
	}
}
