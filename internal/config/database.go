package config

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/rongwang/propvera-server/internal/utils"
)

// SetupDatabase initializes the database connection
func SetupDatabase(cfg *Config) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", cfg.Database.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return db, nil
}

// tables are created in dependency order; every row below builders is owned by one builder
var tableStatements = []string{
	`CREATE TABLE IF NOT EXISTS builders (
		id VARCHAR(36) PRIMARY KEY,
		name VARCHAR(255) NOT NULL DEFAULT '',
		email VARCHAR(255) NOT NULL DEFAULT '',
		plan VARCHAR(32) NOT NULL DEFAULT 'free',
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		total_projects INTEGER NOT NULL DEFAULT 0,
		total_units INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS projects (
		id VARCHAR(36) PRIMARY KEY,
		builder_id VARCHAR(36) NOT NULL REFERENCES builders(id),
		name VARCHAR(255) NOT NULL,
		location VARCHAR(255) NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS units (
		id VARCHAR(36) PRIMARY KEY,
		builder_id VARCHAR(36) NOT NULL REFERENCES builders(id),
		project_id VARCHAR(36) NOT NULL DEFAULT '',
		unit_number VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'Vacant',
		tenant_name VARCHAR(255),
		monthly_rent BIGINT,
		rent_due_day SMALLINT CHECK (rent_due_day BETWEEN 1 AND 28),
		is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS rents (
		id VARCHAR(36) PRIMARY KEY,
		builder_id VARCHAR(36) NOT NULL REFERENCES builders(id),
		unit_id VARCHAR(36) NOT NULL,
		unit_number VARCHAR(64) NOT NULL DEFAULT '',
		amount BIGINT NOT NULL,
		status VARCHAR(16) NOT NULL,
		period_year INTEGER,
		period_month SMALLINT,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS billing_usage (
		builder_id VARCHAR(36) NOT NULL REFERENCES builders(id),
		usage_date DATE NOT NULL,
		date_key VARCHAR(16) NOT NULL,
		unit_count INTEGER NOT NULL,
		cost BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (builder_id, usage_date)
	)`,
	`CREATE TABLE IF NOT EXISTS invoices (
		id VARCHAR(36) PRIMARY KEY,
		builder_id VARCHAR(36) NOT NULL REFERENCES builders(id),
		amount BIGINT NOT NULL,
		month SMALLINT NOT NULL CHECK (month BETWEEN 0 AND 11),
		year INTEGER NOT NULL,
		status VARCHAR(16) NOT NULL,
		due_date TIMESTAMPTZ NOT NULL,
		recorded_days INTEGER NOT NULL DEFAULT 0,
		estimated_days INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL,
		paid_at TIMESTAMPTZ,
		UNIQUE (builder_id, year, month)
	)`,
	`CREATE TABLE IF NOT EXISTS notifications (
		id VARCHAR(36) PRIMARY KEY,
		builder_id VARCHAR(36) NOT NULL REFERENCES builders(id),
		title VARCHAR(255) NOT NULL,
		message TEXT NOT NULL,
		read BOOLEAN NOT NULL DEFAULT FALSE,
		type VARCHAR(16) NOT NULL DEFAULT '',
		dedupe_key VARCHAR(255) UNIQUE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
}

var indexStatements = []string{
	"CREATE INDEX IF NOT EXISTS idx_units_builder ON units(builder_id)",
	"CREATE INDEX IF NOT EXISTS idx_rents_builder_unit ON rents(builder_id, unit_id)",
	"CREATE INDEX IF NOT EXISTS idx_notifications_builder ON notifications(builder_id, created_at)",
}

// createTables creates the necessary tables in the database
func createTables(db *sqlx.DB) error {
	for _, stmt := range tableStatements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	for _, idx := range indexStatements {
		if _, err := db.Exec(idx); err != nil {
			// indexes are not critical
			utils.Logger.WithError(err).Warn("Failed to create index")
		}
	}

	return nil
}
