package access

// ResolveScopePermission computes the permission a non-owner organization
// member derives from a form's sharing configuration. It is a total function:
// every input yields a level, never an error.
//
// Precedence, highest first:
//  1. an explicit grant for the user, regardless of the form's scope — a
//     grant left behind when a form was later made private still applies;
//  2. under all_org_members, the form's default permission;
//  3. otherwise no_access (private and specific_members share nothing
//     without a grant).
//
// Tenancy and ownership are deliberately out of scope here: callers must
// already have established that the user is an organization member and is
// not the owner.
func ResolveScopePermission(form *Form, grants []FormPermission, userID int64) PermissionLevel {
	for i := range grants {
		if grants[i].UserID == userID {
			return grants[i].Permission
		}
	}
	if form.SharingScope == ScopeAllOrgMembers {
		return form.DefaultPermission
	}
	return PermissionNoAccess
}
