package orgs

import (
	"context"
	"time"
)

// OrgStatus represents organization status
type OrgStatus string

const (
	OrgStatusActive    OrgStatus = "active"
	OrgStatusSuspended OrgStatus = "suspended"
	OrgStatusDeleted   OrgStatus = "deleted"
)

// Role represents a member's organization-level role. Roles are
// informational for the form engine: form access derives from form sharing
// state, not from the org role.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleMember Role = "member"
)

// Organization represents an organization
type Organization struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description,omitempty"`
	Status      OrgStatus `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// OrgMember represents an organization member with user details joined in
type OrgMember struct {
	ID             int64     `json:"id"`
	OrganizationID int64     `json:"organization_id"`
	UserID         int64     `json:"user_id"`
	Role           Role      `json:"role"`
	InvitedBy      *int64    `json:"invited_by,omitempty"`
	JoinedAt       time.Time `json:"joined_at"`
	Username       string    `json:"username"`
	Email          string    `json:"email,omitempty"`
	FullName       string    `json:"full_name,omitempty"`
	IsBot          bool      `json:"is_bot"`
}

// Service defines the interface for organization management
type Service interface {
	// Organization lookup
	GetOrganization(ctx context.Context, id int64) (*Organization, error)
	GetOrganizationBySlug(ctx context.Context, slug string) (*Organization, error)

	// Member management
	ListMembers(ctx context.Context, orgID int64) ([]*OrgMember, error)
	GetMember(ctx context.Context, orgID, userID int64) (*OrgMember, error)
	AddMember(ctx context.Context, orgID, userID int64, role Role, invitedBy *int64) error
	UpdateMemberRole(ctx context.Context, orgID, userID int64, role Role) error
	RemoveMember(ctx context.Context, orgID, userID int64) error

	// ListOrganizationMemberIDs returns the member ID set the access engine
	// checks tenancy against.
	ListOrganizationMemberIDs(ctx context.Context, orgID int64) (map[int64]struct{}, error)
}
