package orgs

import (
	"context"
	"database/sql"
	"fmt"
)

// memberColumns is the joined projection shared by the member queries.
const memberColumns = `
	m.id, m.organization_id, m.user_id, m.role, m.invited_by, m.joined_at,
	u.username, u.email, u.full_name, u.is_bot
`

// ListMembers retrieves all members of an organization
func (s *PostgresService) ListMembers(ctx context.Context, orgID int64) ([]*OrgMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM org_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1
		ORDER BY m.joined_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*OrgMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		members = append(members, member)
	}

	return members, rows.Err()
}

// GetMember retrieves a specific member
func (s *PostgresService) GetMember(ctx context.Context, orgID, userID int64) (*OrgMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM org_members m
		JOIN users u ON u.id = m.user_id
		WHERE m.organization_id = $1 AND m.user_id = $2
	`
	member, err := scanMember(s.db.QueryRowContext(ctx, query, orgID, userID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("member not found")
	}
	if err != nil {
		return nil, err
	}
	return member, nil
}

// AddMember adds a user to an organization
func (s *PostgresService) AddMember(ctx context.Context, orgID, userID int64, role Role, invitedBy *int64) error {
	query := `
		INSERT INTO org_members (organization_id, user_id, role, invited_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id, user_id) DO NOTHING
	`
	result, err := s.db.ExecContext(ctx, query, orgID, userID, string(role), invitedBy)
	if err != nil {
		return fmt.Errorf("failed to add member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("member already exists")
	}

	return nil
}

// UpdateMemberRole updates a member's role
func (s *PostgresService) UpdateMemberRole(ctx context.Context, orgID, userID int64, role Role) error {
	query := `UPDATE org_members SET role = $1 WHERE organization_id = $2 AND user_id = $3`
	result, err := s.db.ExecContext(ctx, query, string(role), orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("member not found")
	}

	return nil
}

// RemoveMember removes a user from an organization
func (s *PostgresService) RemoveMember(ctx context.Context, orgID, userID int64) error {
	query := `DELETE FROM org_members WHERE organization_id = $1 AND user_id = $2`
	result, err := s.db.ExecContext(ctx, query, orgID, userID)
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("member not found")
	}

	return nil
}

func scanMember(scanner interface{ Scan(dest ...interface{}) error }) (*OrgMember, error) {
	member := &OrgMember{}
	var email, fullName sql.NullString
	var invitedBy sql.NullInt64
	err := scanner.Scan(
		&member.ID, &member.OrganizationID, &member.UserID, &member.Role,
		&invitedBy, &member.JoinedAt,
		&member.Username, &email, &fullName, &member.IsBot,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}
	member.Email = email.String
	member.FullName = fullName.String
	if invitedBy.Valid {
		id := invitedBy.Int64
		member.InvitedBy = &id
	}
	return member, nil
}
