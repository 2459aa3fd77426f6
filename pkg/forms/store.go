package forms

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/formhive/formhive/pkg/access"
)

// Store persists form records.
type Store interface {
	// Create inserts a new form record.
	Create(ctx context.Context, form *access.Form) error

	// Get returns a form by ID, or a NotFoundError.
	Get(ctx context.Context, formID string) (*access.Form, error)

	// List returns the organization's forms the user can see, newest
	// update first. The caller must already be a member of the
	// organization.
	List(ctx context.Context, orgID, userID int64, filter ListFilter) ([]access.Form, error)

	// Update applies a partial update and returns the stored record.
	Update(ctx context.Context, formID string, in UpdateFormInput) (*access.Form, error)

	// Delete removes a form and its grants, reporting whether the form
	// existed.
	Delete(ctx context.Context, formID string) (bool, error)

	// IsMember reports whether the user belongs to the organization.
	IsMember(ctx context.Context, orgID, userID int64) (bool, error)
}

// PostgresStore implements Store on database/sql. Like the access engine's
// store it sticks to the SQL subset shared by Postgres and SQLite so the
// service tests can run in memory.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const formColumns = `id, organization_id, created_by_id, title, description, category,
       sharing_scope, default_permission, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, form *access.Form) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forms (id, organization_id, created_by_id, title, description, category,
		                   sharing_scope, default_permission, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		form.ID,
		form.OrganizationID,
		form.CreatedByID,
		form.Title,
		nullable(form.Description),
		nullable(form.Category),
		string(form.SharingScope),
		string(form.DefaultPermission),
		form.CreatedAt,
		form.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert form: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, formID string) (*access.Form, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+formColumns+" FROM forms WHERE id = $1",
		formID,
	)
	form, err := scanForm(row)
	if err == sql.ErrNoRows {
		return nil, access.ErrFormNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query form: %w", err)
	}
	return form, nil
}

// List computes the caller's effective visibility in SQL: their own forms,
// forms shared with the whole organization, and forms they hold an explicit
// grant on. Grants are always viewer or editor, so holding one is enough.
func (s *PostgresStore) List(ctx context.Context, orgID, userID int64, filter ListFilter) ([]access.Form, error) {
	query := `
		SELECT ` + formColumns + `
		FROM forms f
		WHERE f.organization_id = $1
		  AND (
		        f.created_by_id = $2
		        OR (f.sharing_scope = 'all_org_members' AND f.default_permission <> 'no_access')
		        OR EXISTS (
		              SELECT 1 FROM form_permissions p
		              WHERE p.form_id = f.id AND p.user_id = $2
		        )
		  )
	`
	args := []interface{}{orgID, userID}

	if len(filter.Categories) > 0 {
		placeholders := make([]string, len(filter.Categories))
		for i, category := range filter.Categories {
			placeholders[i] = fmt.Sprintf("$%d", len(args)+1)
			args = append(args, normalizeCategory(category))
		}
		query += fmt.Sprintf(" AND f.category IN (%s)", strings.Join(placeholders, ", "))
	}

	query += " ORDER BY f.updated_at DESC, f.id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list forms: %w", err)
	}
	defer rows.Close()

	var forms []access.Form
	for rows.Next() {
		form, err := scanForm(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan form: %w", err)
		}
		forms = append(forms, *form)
	}
	return forms, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, formID string, in UpdateFormInput) (*access.Form, error) {
	assignments := []string{}
	args := []interface{}{}

	addSet := func(column string, value interface{}) {
		assignments = append(assignments, fmt.Sprintf("%s = $%d", column, len(args)+1))
		args = append(args, value)
	}

	if in.Title != nil {
		addSet("title", *in.Title)
	}
	if in.Description != nil {
		addSet("description", nullable(*in.Description))
	}
	if in.Category != nil {
		addSet("category", nullable(normalizeCategory(*in.Category)))
	}
	addSet("updated_at", time.Now().UTC())

	args = append(args, formID)
	query := fmt.Sprintf(
		"UPDATE forms SET %s WHERE id = $%d RETURNING %s",
		strings.Join(assignments, ", "), len(args), formColumns,
	)

	form, err := scanForm(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, access.ErrFormNotFound()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update form: %w", err)
	}
	return form, nil
}

// Delete removes the form and its grants in one transaction. The grant
// cleanup is explicit rather than left to ON DELETE CASCADE so the
// behavior holds on the SQLite test schema too.
func (s *PostgresStore) Delete(ctx context.Context, formID string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM form_permissions WHERE form_id = $1", formID,
	); err != nil {
		return false, fmt.Errorf("failed to delete form grants: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM forms WHERE id = $1", formID)
	if err != nil {
		return false, fmt.Errorf("failed to delete form: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit form deletion: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) IsMember(ctx context.Context, orgID, userID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM org_members WHERE organization_id = $1 AND user_id = $2",
		orgID, userID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanForm(row rowScanner) (*access.Form, error) {
	var form access.Form
	var description, category sql.NullString
	err := row.Scan(
		&form.ID,
		&form.OrganizationID,
		&form.CreatedByID,
		&form.Title,
		&description,
		&category,
		&form.SharingScope,
		&form.DefaultPermission,
		&form.CreatedAt,
		&form.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	form.Description = description.String
	form.Category = category.String
	return &form, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
