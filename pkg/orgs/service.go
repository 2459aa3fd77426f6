package orgs

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresService implements Service against Postgres
type PostgresService struct {
	db *sql.DB
}

// NewPostgresService creates a new PostgreSQL-backed organization service
func NewPostgresService(db *sql.DB) *PostgresService {
	return &PostgresService{db: db}
}

// GetOrganization retrieves an organization by ID
func (s *PostgresService) GetOrganization(ctx context.Context, id int64) (*Organization, error) {
	query := `
		SELECT id, name, slug, display_name, description, status, created_at, updated_at
		FROM organizations
		WHERE id = $1
	`
	return s.scanOrganization(s.db.QueryRowContext(ctx, query, id))
}

// GetOrganizationBySlug retrieves an organization by its URL slug
func (s *PostgresService) GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error) {
	query := `
		SELECT id, name, slug, display_name, description, status, created_at, updated_at
		FROM organizations
		WHERE slug = $1
	`
	return s.scanOrganization(s.db.QueryRowContext(ctx, query, slug))
}

func (s *PostgresService) scanOrganization(row *sql.Row) (*Organization, error) {
	org := &Organization{}
	var description sql.NullString
	err := row.Scan(
		&org.ID, &org.Name, &org.Slug, &org.DisplayName, &description,
		&org.Status, &org.CreatedAt, &org.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("organization not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization: %w", err)
	}
	org.Description = description.String
	return org, nil
}

// ListOrganizationMemberIDs returns the IDs of every member of the
// organization as a set.
func (s *PostgresService) ListOrganizationMemberIDs(ctx context.Context, orgID int64) (map[int64]struct{}, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM org_members WHERE organization_id = $1",
		orgID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list member IDs: %w", err)
	}
	defer rows.Close()

	memberIDs := make(map[int64]struct{})
	for rows.Next() {
		var userID int64
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan member ID: %w", err)
		}
		memberIDs[userID] = struct{}{}
	}

	return memberIDs, rows.Err()
}
