// Package access implements form access control and sharing for the Formhive
// form builder.
//
// # Overview
//
// Every form query and mutation in the application funnels through this
// package to decide whether a user may view, edit, or administer a form. The
// package also owns the sharing mutations that change how a form propagates
// access to organization members.
//
// # Permission Hierarchy
//
// Permissions form a strict total order:
//
//	no_access < viewer < editor < owner
//
// The order is defined by an explicit Rank mapping, and every comparison in
// the engine goes through Satisfies:
//
//	access.Satisfies(access.PermissionEditor, access.PermissionViewer) // true
//	access.Satisfies(access.PermissionViewer, access.PermissionEditor) // false
//
// Ownership is a property of the form record (the creating user), never a
// stored grant. Explicit grants hold viewer or editor only; revocation is
// expressed by deleting the grant, so a no_access row never exists.
//
// # Sharing Scopes
//
// A form is in exactly one sharing scope:
//
//	private          - owner and explicitly granted users
//	specific_members - same access set as private; signals curated sharing
//	all_org_members  - every org member gets the form's default permission
//
// Explicit grants take precedence over the scope, including under private: a
// grant left behind when a form is made private again still applies. Callers
// that want a truly private form must revoke grants explicitly.
//
// # Access Decisions
//
// Checker.CheckFormAccess is the single decision point:
//
//	decision, err := checker.CheckFormAccess(ctx, userID, formID, access.PermissionEditor)
//	if err != nil {
//		// form does not exist (or the store failed)
//	}
//	if !decision.HasAccess {
//		// decision.IsMember distinguishes outsiders from under-privileged members
//	}
//
// The decision procedure checks, in order: organization membership (an owner
// who left the organization holds nothing), ownership (owners short-circuit
// to full access), then the scope resolver plus Satisfies. A denial is a
// negative decision, not an error; transports use IsMember to answer
// outsiders with 404 and members with 403.
//
// # Sharing Mutations
//
// SharingService provides ShareForm (bulk reconfiguration in one
// transaction), UpdateFormPermission (single-grant upsert or revocation),
// and RemoveFormAccess (idempotent revocation). All three require the caller
// to hold editor and refuse to touch the owner's access.
//
// # Related Packages
//
//   - pkg/forms: form CRUD, guarded by this package's checker
//   - pkg/orgs: organization membership the engine checks tenancy against
//   - pkg/audit: audit trail for sharing mutations and denials
package access
