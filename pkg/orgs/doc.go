// Package orgs provides multi-tenant organization management for Formhive.
//
// # Overview
//
// This package manages organizations and their memberships. It is the
// tenancy boundary of the product: the form access engine treats the
// organization member set as the outer gate for every access decision, and
// reads it through ListOrganizationMemberIDs.
//
// Organization roles (owner, member) are informational. Form access never
// derives from an org role; it derives from form ownership and sharing
// state, which pkg/access owns.
//
// # Usage Example
//
//	service := orgs.NewPostgresService(db)
//
//	members, err := service.ListMembers(ctx, orgID)
//	if err != nil {
//		return err
//	}
//
//	memberIDs, err := service.ListOrganizationMemberIDs(ctx, orgID)
//	_, isMember := memberIDs[userID]
//
// # Related Packages
//
//   - pkg/access: form access decisions scoped to an organization
//   - pkg/auth: user accounts and API tokens
package orgs
