package access

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PostgresStore implements Store on database/sql. The SQL sticks to the
// subset shared by Postgres and SQLite ($N placeholders, ON CONFLICT,
// RETURNING) so the engine tests can run against an in-memory database.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// FindFormWithContext loads the form, its organization's member IDs, and its
// grants in a single query. One statement means one snapshot: a concurrent
// membership or sharing change cannot leave the decision computed from a
// form read at one moment and a member list read at another.
func (s *PostgresStore) FindFormWithContext(ctx context.Context, formID string) (*FormAccessContext, error) {
	query := `
		SELECT f.id, f.organization_id, f.created_by_id, f.title, f.description, f.category,
		       f.sharing_scope, f.default_permission, f.created_at, f.updated_at,
		       m.user_id, p.permission, p.granted_by_id, p.granted_at, p.updated_at
		FROM forms f
		LEFT JOIN org_members m ON m.organization_id = f.organization_id
		LEFT JOIN form_permissions p ON p.form_id = f.id AND p.user_id = m.user_id
		WHERE f.id = $1
		ORDER BY m.user_id
	`

	rows, err := s.db.QueryContext(ctx, query, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to query form access context: %w", err)
	}
	defer rows.Close()

	var form *Form
	memberIDs := make(map[int64]struct{})
	var grants []FormPermission
	for rows.Next() {
		var f Form
		var description, category sql.NullString
		var memberID, grantedBy sql.NullInt64
		var perm sql.NullString
		var grantedAt, updatedAt sql.NullTime
		if err := rows.Scan(
			&f.ID, &f.OrganizationID, &f.CreatedByID, &f.Title, &description, &category,
			&f.SharingScope, &f.DefaultPermission, &f.CreatedAt, &f.UpdatedAt,
			&memberID, &perm, &grantedBy, &grantedAt, &updatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan form access context: %w", err)
		}
		if form == nil {
			f.Description = description.String
			f.Category = category.String
			form = &f
		}
		// A memberless organization still yields one row for the form.
		if !memberID.Valid {
			continue
		}
		memberIDs[memberID.Int64] = struct{}{}
		if perm.Valid {
			grants = append(grants, FormPermission{
				FormID:      form.ID,
				UserID:      memberID.Int64,
				Permission:  PermissionLevel(perm.String),
				GrantedByID: grantedBy.Int64,
				GrantedAt:   grantedAt.Time,
				UpdatedAt:   updatedAt.Time,
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read form access context: %w", err)
	}
	if form == nil {
		return nil, ErrFormNotFound()
	}

	return &FormAccessContext{
		Form:      form,
		MemberIDs: memberIDs,
		Grants:    grants,
	}, nil
}

// ListPermissions returns the explicit grants on a form, most recent first.
func (s *PostgresStore) ListPermissions(ctx context.Context, formID string) ([]FormPermission, error) {
	query := `
		SELECT form_id, user_id, permission, granted_by_id, granted_at, updated_at
		FROM form_permissions
		WHERE form_id = $1
		ORDER BY granted_at DESC, user_id
	`

	rows, err := s.db.QueryContext(ctx, query, formID)
	if err != nil {
		return nil, fmt.Errorf("failed to query form permissions: %w", err)
	}
	defer rows.Close()

	var grants []FormPermission
	for rows.Next() {
		var g FormPermission
		if err := rows.Scan(&g.FormID, &g.UserID, &g.Permission, &g.GrantedByID, &g.GrantedAt, &g.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan form permission: %w", err)
		}
		grants = append(grants, g)
	}

	return grants, rows.Err()
}

// ApplySharing commits the scope update and the grant replacement for the
// listed users in one transaction.
func (s *PostgresStore) ApplySharing(ctx context.Context, formID string, scope SharingScope, defaultPermission PermissionLevel, revokeUserIDs []int64, grants []FormPermission) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	result, err := tx.ExecContext(ctx, `
		UPDATE forms
		SET sharing_scope = $1, default_permission = $2, updated_at = $3
		WHERE id = $4
	`, string(scope), string(defaultPermission), now, formID)
	if err != nil {
		return fmt.Errorf("failed to update sharing settings: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return ErrFormNotFound()
	}

	if len(revokeUserIDs) > 0 {
		placeholders := make([]string, len(revokeUserIDs))
		args := make([]interface{}, 0, len(revokeUserIDs)+1)
		args = append(args, formID)
		for i, userID := range revokeUserIDs {
			placeholders[i] = fmt.Sprintf("$%d", i+2)
			args = append(args, userID)
		}
		query := fmt.Sprintf(
			"DELETE FROM form_permissions WHERE form_id = $1 AND user_id IN (%s)",
			strings.Join(placeholders, ", "),
		)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to revoke grants: %w", err)
		}
	}

	for _, g := range grants {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO form_permissions (form_id, user_id, permission, granted_by_id, granted_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, g.FormID, g.UserID, string(g.Permission), g.GrantedByID, now, now); err != nil {
			return fmt.Errorf("failed to insert grant for user %d: %w", g.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sharing update: %w", err)
	}
	return nil
}

// UpsertGrant inserts or updates the grant keyed by (form_id, user_id).
func (s *PostgresStore) UpsertGrant(ctx context.Context, grant FormPermission) (*FormPermission, error) {
	now := time.Now().UTC()

	query := `
		INSERT INTO form_permissions (form_id, user_id, permission, granted_by_id, granted_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (form_id, user_id)
		DO UPDATE SET permission = EXCLUDED.permission, granted_by_id = EXCLUDED.granted_by_id, updated_at = EXCLUDED.updated_at
		RETURNING form_id, user_id, permission, granted_by_id, granted_at, updated_at
	`

	var stored FormPermission
	err := s.db.QueryRowContext(ctx, query,
		grant.FormID, grant.UserID, string(grant.Permission), grant.GrantedByID, now,
	).Scan(&stored.FormID, &stored.UserID, &stored.Permission, &stored.GrantedByID, &stored.GrantedAt, &stored.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert grant: %w", err)
	}

	return &stored, nil
}

// DeleteGrant removes a grant and reports whether a row existed.
func (s *PostgresStore) DeleteGrant(ctx context.Context, formID string, userID int64) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM form_permissions WHERE form_id = $1 AND user_id = $2",
		formID, userID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to delete grant: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

