package orgs

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

// GetMigrations returns the identity and tenancy migrations. These run
// before the access engine's migrations, which reference these tables.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id BIGSERIAL PRIMARY KEY,
					username VARCHAR(255) NOT NULL UNIQUE,
					email VARCHAR(255),
					full_name VARCHAR(255),
					is_bot BOOLEAN NOT NULL DEFAULT FALSE,
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					last_login_at TIMESTAMP
				);

				CREATE INDEX idx_users_username ON users(username);
			`,
		},
		{
			Version:     2,
			Description: "Create organizations table",
			SQL: `
				CREATE TABLE IF NOT EXISTS organizations (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL,
					slug VARCHAR(255) NOT NULL UNIQUE,
					display_name VARCHAR(255) NOT NULL,
					description TEXT,
					status VARCHAR(50) NOT NULL DEFAULT 'active',
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_organizations_slug ON organizations(slug);
			`,
		},
		{
			Version:     3,
			Description: "Create org_members table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_members (
					id BIGSERIAL PRIMARY KEY,
					organization_id BIGINT NOT NULL REFERENCES organizations(id) ON DELETE CASCADE,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role VARCHAR(50) NOT NULL DEFAULT 'member',
					invited_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
					joined_at TIMESTAMP NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, user_id)
				);

				CREATE INDEX idx_org_members_organization_id ON org_members(organization_id);
				CREATE INDEX idx_org_members_user_id ON org_members(user_id);
			`,
		},
		{
			Version:     4,
			Description: "Create api_tokens table",
			SQL: `
				CREATE TABLE IF NOT EXISTS api_tokens (
					id BIGSERIAL PRIMARY KEY,
					user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					token_hash VARCHAR(64) NOT NULL UNIQUE,
					token_prefix VARCHAR(20) NOT NULL,
					name VARCHAR(255) NOT NULL,
					description TEXT,
					scopes JSONB NOT NULL DEFAULT '[]',
					expires_at TIMESTAMP,
					last_used_at TIMESTAMP,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					revoked_at TIMESTAMP,
					revoked_by BIGINT REFERENCES users(id),
					revoke_reason TEXT
				);

				CREATE INDEX idx_api_tokens_token_hash ON api_tokens(token_hash);
				CREATE INDEX idx_api_tokens_user_id ON api_tokens(user_id);
			`,
		},
		{
			Version:     5,
			Description: "Create org_quotas table",
			SQL: `
				CREATE TABLE IF NOT EXISTS org_quotas (
					organization_id BIGINT PRIMARY KEY REFERENCES organizations(id) ON DELETE CASCADE,
					max_forms INT NOT NULL DEFAULT 500,
					max_members INT NOT NULL DEFAULT 100,
					api_rate_limit_per_hour INT NOT NULL DEFAULT 10000
				);
			`,
		},
	}
}

// RunMigrations executes all pending migrations, tracking applied versions
// in orgs_migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS orgs_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM orgs_migrations ORDER BY version")
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
			"INSERT INTO orgs_migrations (version, description) VALUES ($1, $2)",
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
