package access

import (
	"time"
)

// Form represents a form record with the fields the access engine needs.
// The owning user is CreatedByID; ownership is a property of the record and
// can never be granted, transferred, or revoked through this package.
type Form struct {
	ID             string          `json:"id"`
	OrganizationID int64           `json:"organization_id"`
	CreatedByID    int64           `json:"created_by_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Category       string          `json:"category,omitempty"`
	SharingScope   SharingScope    `json:"sharing_scope"`
	// DefaultPermission is only meaningful while SharingScope is
	// all_org_members; it is preserved but ignored under other scopes.
	DefaultPermission PermissionLevel `json:"default_permission"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// IsOwner reports whether userID owns the form.
func (f *Form) IsOwner(userID int64) bool {
	return f.CreatedByID == userID
}

// FormPermission is an explicit per-user grant on a form. Identity is the
// (FormID, UserID) pair; a user holds at most one grant per form. Permission
// is always viewer or editor: owner is never stored, and a no_access grant is
// expressed by deleting the row.
type FormPermission struct {
	FormID      string          `json:"form_id"`
	UserID      int64           `json:"user_id"`
	Permission  PermissionLevel `json:"permission"`
	GrantedByID int64           `json:"granted_by_id"`
	GrantedAt   time.Time       `json:"granted_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// FormAccessContext bundles everything one access decision needs. It is
// assembled by a single store call so a decision never observes the form,
// the membership set, and the grant list at different instants.
type FormAccessContext struct {
	Form      *Form
	MemberIDs map[int64]struct{}
	Grants    []FormPermission
}

// GrantFor returns the explicit grant held by userID, or nil.
func (c *FormAccessContext) GrantFor(userID int64) *FormPermission {
	for i := range c.Grants {
		if c.Grants[i].UserID == userID {
			return &c.Grants[i]
		}
	}
	return nil
}

// IsMember reports whether userID belongs to the form's organization.
func (c *FormAccessContext) IsMember(userID int64) bool {
	_, ok := c.MemberIDs[userID]
	return ok
}

// AccessDecision is the computed outcome of one access check. Decisions are
// derived per request and never persisted; Permission reports the caller's
// effective level even when HasAccess is false. IsMember lets entry points
// answer outsiders with "not found" instead of confirming the form exists.
type AccessDecision struct {
	HasAccess  bool            `json:"has_access"`
	IsMember   bool            `json:"is_member"`
	Permission PermissionLevel `json:"permission"`
	Form       *Form           `json:"-"`
}

// SharingSettings is the scope portion of a form returned by sharing
// mutations.
type SharingSettings struct {
	FormID            string          `json:"form_id"`
	SharingScope      SharingScope    `json:"sharing_scope"`
	DefaultPermission PermissionLevel `json:"default_permission"`
}

// UserPermissionInput names one user and the level to grant them in a
// ShareForm call. A no_access entry revokes without granting.
type UserPermissionInput struct {
	UserID     int64           `json:"user_id"`
	Permission PermissionLevel `json:"permission"`
}

// ShareFormInput carries one ShareForm mutation.
type ShareFormInput struct {
	FormID            string                `json:"form_id"`
	SharingScope      SharingScope          `json:"sharing_scope"`
	DefaultPermission *PermissionLevel      `json:"default_permission,omitempty"`
	UserPermissions   []UserPermissionInput `json:"user_permissions,omitempty"`
}

// ShareFormResult is the state of the form's sharing after a ShareForm call.
type ShareFormResult struct {
	Settings SharingSettings  `json:"settings"`
	Grants   []FormPermission `json:"grants"`
}

// RemovalResult reports whether RemoveFormAccess deleted anything.
type RemovalResult struct {
	FormID     string `json:"form_id"`
	UserID     int64  `json:"user_id"`
	WasDeleted bool   `json:"was_deleted"`
}
