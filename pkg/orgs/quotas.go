package orgs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Default quota values applied when an organization has no org_quotas row.
const (
	DefaultMaxForms            = 500
	DefaultMaxMembers          = 100
	DefaultAPIRateLimitPerHour = 10000
)

// OrgQuotas holds the per-organization limits
type OrgQuotas struct {
	OrganizationID      int64 `json:"organization_id"`
	MaxForms            int   `json:"max_forms"`
	MaxMembers          int   `json:"max_members"`
	APIRateLimitPerHour int   `json:"api_rate_limit_per_hour"`
}

// QuotaExceededError indicates an organization hit one of its limits
type QuotaExceededError struct {
	Resource string
	Current  int64
	Limit    int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d/%d", e.Resource, e.Current, e.Limit)
}

// IsQuotaExceeded reports whether err is a QuotaExceededError
func IsQuotaExceeded(err error) bool {
	var quotaErr *QuotaExceededError
	return errors.As(err, &quotaErr)
}

// QuotaChecker is the subset of quota operations the HTTP middleware needs.
type QuotaChecker interface {
	CheckFormQuota(ctx context.Context, orgID int64) error
	CheckAPIRateLimit(ctx context.Context, orgID int64) error
}

// GetQuotas retrieves the quotas for an organization, falling back to
// defaults when no row exists.
func (s *PostgresService) GetQuotas(ctx context.Context, orgID int64) (*OrgQuotas, error) {
	quotas := &OrgQuotas{OrganizationID: orgID}
	err := s.db.QueryRowContext(ctx, `
		SELECT max_forms, max_members, api_rate_limit_per_hour
		FROM org_quotas
		WHERE organization_id = $1
	`, orgID).Scan(&quotas.MaxForms, &quotas.MaxMembers, &quotas.APIRateLimitPerHour)
	if err == sql.ErrNoRows {
		quotas.MaxForms = DefaultMaxForms
		quotas.MaxMembers = DefaultMaxMembers
		quotas.APIRateLimitPerHour = DefaultAPIRateLimitPerHour
		return quotas, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quotas: %w", err)
	}
	return quotas, nil
}

// SetQuotas upserts the quota row for an organization
func (s *PostgresService) SetQuotas(ctx context.Context, quotas *OrgQuotas) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO org_quotas (organization_id, max_forms, max_members, api_rate_limit_per_hour)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (organization_id) DO UPDATE SET
			max_forms = EXCLUDED.max_forms,
			max_members = EXCLUDED.max_members,
			api_rate_limit_per_hour = EXCLUDED.api_rate_limit_per_hour
	`, quotas.OrganizationID, quotas.MaxForms, quotas.MaxMembers, quotas.APIRateLimitPerHour)
	if err != nil {
		return fmt.Errorf("failed to set quotas: %w", err)
	}
	return nil
}

// CheckFormQuota checks whether the organization can create another form.
// The count is read live from the forms table rather than a usage counter,
// so deleted forms free quota immediately.
func (s *PostgresService) CheckFormQuota(ctx context.Context, orgID int64) error {
	quotas, err := s.GetQuotas(ctx, orgID)
	if err != nil {
		return err
	}

	var count int64
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM forms WHERE organization_id = $1", orgID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count forms: %w", err)
	}

	if count >= int64(quotas.MaxForms) {
		return &QuotaExceededError{
			Resource: "forms",
			Current:  count,
			Limit:    int64(quotas.MaxForms),
		}
	}

	return nil
}

// CheckMemberQuota checks whether the organization can add another member
func (s *PostgresService) CheckMemberQuota(ctx context.Context, orgID int64) error {
	quotas, err := s.GetQuotas(ctx, orgID)
	if err != nil {
		return err
	}

	var count int64
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM org_members WHERE organization_id = $1", orgID,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to count members: %w", err)
	}

	if count >= int64(quotas.MaxMembers) {
		return &QuotaExceededError{
			Resource: "members",
			Current:  count,
			Limit:    int64(quotas.MaxMembers),
		}
	}

	return nil
}

// CheckAPIRateLimit checks whether the organization is within its hourly API
// budget. Requests are counted from the audit log, which every authenticated
// request writes to.
func (s *PostgresService) CheckAPIRateLimit(ctx context.Context, orgID int64) error {
	quotas, err := s.GetQuotas(ctx, orgID)
	if err != nil {
		return err
	}

	var count int64
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM audit_logs
		WHERE organization_id = $1 AND created_at > NOW() - INTERVAL '1 hour'
	`, orgID).Scan(&count)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to count API requests: %w", err)
	}

	if count >= int64(quotas.APIRateLimitPerHour) {
		return &QuotaExceededError{
			Resource: "api_requests",
			Current:  count,
			Limit:    int64(quotas.APIRateLimitPerHour),
		}
	}

	return nil
}
