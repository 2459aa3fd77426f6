package access

import "context"

// Store is the persistence surface the engine needs. The Postgres
// implementation lives in this package; tests substitute sqlite-backed or
// mock implementations.
type Store interface {
	// FindFormWithContext fetches the form, its organization's member ID
	// set, and its explicit grants in one consistent read. A missing form
	// yields a NotFoundError.
	FindFormWithContext(ctx context.Context, formID string) (*FormAccessContext, error)

	// ListPermissions returns the explicit grants on a form, most recent
	// grant first.
	ListPermissions(ctx context.Context, formID string) ([]FormPermission, error)

	// ApplySharing updates the form's sharing scope and default permission
	// and replaces the grants of every user named in revokeUserIDs and
	// grants, all inside a single transaction. Grants for users not named
	// are left untouched.
	ApplySharing(ctx context.Context, formID string, scope SharingScope, defaultPermission PermissionLevel, revokeUserIDs []int64, grants []FormPermission) error

	// UpsertGrant atomically inserts or updates the grant keyed by
	// (FormID, UserID) and returns the stored row.
	UpsertGrant(ctx context.Context, grant FormPermission) (*FormPermission, error)

	// DeleteGrant removes a grant if present and reports whether a row was
	// deleted. Absence is not an error.
	DeleteGrant(ctx context.Context, formID string, userID int64) (bool, error)
}

// DecisionCache holds computed access decisions between requests. Entries
// for a form are dropped wholesale whenever any sharing state of that form
// changes. Implementations must treat every failure as a miss.
type DecisionCache interface {
	Get(ctx context.Context, formID, key string) (*AccessDecision, bool)
	Set(ctx context.Context, formID, key string, decision *AccessDecision)
	InvalidateForm(ctx context.Context, formID string) error
}
