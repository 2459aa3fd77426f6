package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func resolverForm(scope SharingScope, defaultPerm PermissionLevel) *Form {
	return &Form{
		ID:                "form-1",
		OrganizationID:    1,
		CreatedByID:       100,
		SharingScope:      scope,
		DefaultPermission: defaultPerm,
	}
}

func TestResolveScopePermission(t *testing.T) {
	grant := func(userID int64, perm PermissionLevel) FormPermission {
		return FormPermission{FormID: "form-1", UserID: userID, Permission: perm}
	}

	tests := []struct {
		name   string
		form   *Form
		grants []FormPermission
		userID int64
		want   PermissionLevel
	}{
		{
			name:   "explicit grant wins under specific_members",
			form:   resolverForm(ScopeSpecificMembers, PermissionNoAccess),
			grants: []FormPermission{grant(200, PermissionEditor)},
			userID: 200,
			want:   PermissionEditor,
		},
		{
			name:   "explicit grant wins under private",
			form:   resolverForm(ScopePrivate, PermissionNoAccess),
			grants: []FormPermission{grant(200, PermissionViewer)},
			userID: 200,
			want:   PermissionViewer,
		},
		{
			name:   "explicit grant overrides org-wide default",
			form:   resolverForm(ScopeAllOrgMembers, PermissionViewer),
			grants: []FormPermission{grant(200, PermissionEditor)},
			userID: 200,
			want:   PermissionEditor,
		},
		{
			name:   "org-wide scope falls back to default permission",
			form:   resolverForm(ScopeAllOrgMembers, PermissionViewer),
			grants: nil,
			userID: 200,
			want:   PermissionViewer,
		},
		{
			name:   "private without grant yields no access",
			form:   resolverForm(ScopePrivate, PermissionNoAccess),
			grants: nil,
			userID: 200,
			want:   PermissionNoAccess,
		},
		{
			name:   "specific_members without grant yields no access",
			form:   resolverForm(ScopeSpecificMembers, PermissionNoAccess),
			grants: []FormPermission{grant(300, PermissionEditor)},
			userID: 200,
			want:   PermissionNoAccess,
		},
		{
			name:   "someone else's grant does not apply",
			form:   resolverForm(ScopeAllOrgMembers, PermissionViewer),
			grants: []FormPermission{grant(300, PermissionEditor)},
			userID: 200,
			want:   PermissionViewer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveScopePermission(tt.form, tt.grants, tt.userID)
			assert.Equal(t, tt.want, got)
		})
	}
}
