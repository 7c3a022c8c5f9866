package database

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
)

//go:embed migrations/001_schema.up.sql
var schemaSQL string

//go:embed migrations/002_service_catalog.up.sql
var serviceCatalogSQL string

var requiredTables = []string{
	"users",
	"refresh_tokens",
	"user_sessions",
	"failed_login_attempts",
	"auth_logs",
	"projects",
	"apiques",
	"apique_layers",
	"profiles",
	"blows",
	"services",
	"service_additional_fields",
	"service_requests",
	"selected_services",
	"service_instances",
	"service_instance_values",
	"company_expenses",
}

func (db *DB) EnsureSchema(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	exists, err := db.hasAllRequiredTables(ctx)
	if err != nil {
		return fmt.Errorf("check existing tables: %w", err)
	}

	if !exists {
		slog.Info("database schema missing tables; applying schema")
		if _, err := db.Pool.Exec(ctx, schemaSQL); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}

		exists, err = db.hasAllRequiredTables(ctx)
		if err != nil {
			return fmt.Errorf("re-check tables after schema: %w", err)
		}

		if !exists {
			return fmt.Errorf("schema initialization incomplete: required tables are still missing")
		}
	}

	// The catalog seed is idempotent (ON CONFLICT DO NOTHING).
	if _, err := db.Pool.Exec(ctx, serviceCatalogSQL); err != nil {
		return fmt.Errorf("seed service catalog: %w", err)
	}

	slog.Info("database schema ensured")
	return nil
}

func (db *DB) hasAllRequiredTables(ctx context.Context) (bool, error) {
	var count int
	err := db.Pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = 'public'
		  AND table_name = ANY($1)
	`, requiredTables).Scan(&count)
	if err != nil {
		return false, err
	}

	return count == len(requiredTables), nil
}
