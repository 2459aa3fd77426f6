package access

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the access engine's migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create forms table",
			SQL: `
				CREATE TABLE IF NOT EXISTS forms (
					id UUID PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					created_by_id BIGINT NOT NULL REFERENCES users(id),
					title VARCHAR(500) NOT NULL,
					description TEXT,
					category VARCHAR(100),
					sharing_scope VARCHAR(50) NOT NULL DEFAULT 'private',
					default_permission VARCHAR(50) NOT NULL DEFAULT 'no_access',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_forms_organization_id ON forms(organization_id);
				CREATE INDEX idx_forms_created_by_id ON forms(created_by_id);
				CREATE INDEX idx_forms_category ON forms(category);
			`,
		},
		{
			Version:     2,
			Description: "Create form_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS form_permissions (
					form_id UUID NOT NULL REFERENCES forms(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					permission VARCHAR(50) NOT NULL,
					granted_by_id BIGINT NOT NULL REFERENCES users(id),
					granted_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (form_id, user_id),
					CHECK (permission IN ('viewer', 'editor'))
				);

				CREATE INDEX idx_form_permissions_user_id ON form_permissions(user_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations, tracking applied versions
// in access_migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS access_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM access_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("failed to read migration versions: %w", err)
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO access_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
