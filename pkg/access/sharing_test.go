package access

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formhive/formhive/pkg/webhooks"
)

func newSharingFixture(t *testing.T) (*testFixture, *SharingService) {
	t.Helper()
	f := newTestFixture(t)
	checker := NewChecker(f.store)
	return f, NewSharingService(f.store, checker)
}

func grantMap(grants []FormPermission) map[int64]PermissionLevel {
	m := make(map[int64]PermissionLevel, len(grants))
	for _, g := range grants {
		m[g.UserID] = g.Permission
	}
	return m
}

func TestShareForm(t *testing.T) {
	f, svc := newSharingFixture(t)
	owner := f.addUser(t, "owner", false)
	alice := f.addUser(t, "alice", false)
	bob := f.addUser(t, "bob", false)

	formID := f.addForm(t, owner, ScopePrivate, PermissionNoAccess)

	result, err := svc.ShareForm(context.Background(), owner, ShareFormInput{
		FormID:       formID,
		SharingScope: ScopeSpecificMembers,
		UserPermissions: []UserPermissionInput{
			{UserID: alice, Permission: PermissionEditor},
			{UserID: bob, Permission: PermissionViewer},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, ScopeSpecificMembers, result.Settings.SharingScope)
	assert.Equal(t, map[int64]PermissionLevel{
		alice: PermissionEditor,
		bob:   PermissionViewer,
	}, grantMap(result.Grants))

	// The persisted scope and grants drive subsequent decisions.
	checker := NewChecker(f.store)
	decision, err := checker.CheckFormAccess(context.Background(), alice, formID, PermissionEditor)
	require.NoError(t, err)
	assert.True(t, decision.HasAccess)

	decision, err = checker.CheckFormAccess(context.Background(), bob, formID, PermissionEditor)
	require.NoError(t, err)
	assert.False(t, decision.HasAccess)
}

func TestShareForm_ReplacesListedGrants(t *testing.T) {
	f, svc := newSharingFixture(t)
	owner := f.addUser(t, "owner", false)
	alice := f.addUser(t, "alice", false)
	bob := f.addUser(t, "bob", false)

	formID := f.addForm(t, owner, ScopeSpecificMembers, PermissionNoAccess)
	f.addGrant(t, formID, alice, PermissionEditor, owner)
	f.addGrant(t, formID, bob, PermissionEditor, owner)

	// Alice is downgraded, bob is revoked via no_access. Bob's entry must
	// delete his grant, not store a no_access row.
	result, err := svc.ShareForm(context.Background(), owner, ShareFormInput{
		FormID:       formID,
		SharingScope: ScopeSpecificMembers,
		UserPermissions: []UserPermissionInput{
			{UserID: alice, Permission: PermissionViewer},
			{UserID: bob, Permission: PermissionNoAccess},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, map[int64]PermissionLevel{alice: PermissionViewer}, grantMap(result.Grants))
}

func TestShareForm_UnlistedGrantsSurvive(t *testing.T) {
	f, svc := newSharingFixture(t)
	owner := f.addUser(t, "owner", false)
	alice := f.addUser(t, "alice", false)
	bob := f.addUser(t, "bob", false)

	formID := f.addForm(t, owner, ScopeAllOrgMembers, PermissionViewer)
	f.addGrant(t, formID, alice, PermissionEditor, owner)

	// Sharing with only bob listed leaves alice's grant intact.
	result, err := svc.ShareForm(context.Background(), owner, ShareFormInput{
		FormID:       formID,
		SharingScope: ScopeAllOrgMembers,
		UserPermissions: []UserPermissionInput{
			{UserID: bob, Permission: PermissionViewer},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, map[int64]PermissionLevel{
		alice: PermissionEditor,
		bob:   PermissionViewer,
	}, grantMap(result.Grants))
}

func TestShareForm_DuplicateEntriesLastWins(t *testing.T) {
	f, svc := newSharingFixture(t)
	owner := f.addUser(t, "owner", false)
	alice := f.addUser(t, "alice", false)

	formID := f.addForm(t, owner, ScopePrivate, PermissionNoAccess)

	result, err := svc.ShareForm(context.Background(), owner, ShareFormInput{
		FormID:       formID,
		SharingScope: ScopeSpecificMembers,
		UserPermissions: []UserPermissionInput{
			{UserID: alice, Permission: PermissionViewer},
			{UserID: alice, Permission: PermissionEditor},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, map[int64]PermissionLevel{alice: PermissionEditor}, grantMap(result.Grants))
}

func TestShareForm_AllOrNothingValidation(t *testing.T) {
	f, svc := newSharingFixture(t)
	owner := f.addUser(t, "owner", false)
	alice := f.addUser(t, "alice", false)
	outsider := f.addUser(t, "outsider", true)

	formID := f.addForm(t, owner, ScopePrivate, PermissionNoAccess)

	_, err := svc.ShareForm(context.Background(), owner, ShareFormInput{
		FormID:       formID,
		SharingScope: ScopeSpecificMembers,
		UserPermissions: []UserPermissionInput{
			{UserID: alice, Permission: PermissionViewer},
			{UserID: outsider, Permission: PermissionViewer},
		},
	})
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Contains(t, err.Error(), "not members of the organization")

	// Nothing was written: alice got no grant and the scope is unchanged.
	accessCtx, err := f.store.FindFormWithContext(context.Background(), formID)
	require.NoError(t, err)
	assert.Equal(t, ScopePrivate, accessCtx.Form.SharingScope)
	assert.Empty(t, accessCtx.Grants)
}

func TestShareForm_RejectsOwnerEntries(t *testing.T) {
	f, svc := newSharingFixture(t)
	owner := f.addUser(t, "owner", false)

	formID := f.addForm(t, owner, ScopeSpecificMembers, PermissionNoAccess)

	t.Run("owner permission value", func(t *testing.T) {
		alice := f.addUser(t, "alice", false)
		_, err := svc.ShareForm(context.Background(), owner, ShareFormInput{
			FormID:       formID,
			SharingScope: ScopeSpecificMembers,
			UserPermissions: []UserPermissionInput{
				{UserID: alice, Permission: PermissionOwner},
			},
		})
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("owner as target", func(t *testing.T) {
		_, err := svc.ShareForm(context.Background(), owner, ShareFormInput{
			FormID:       formID,
			SharingScope: ScopeSpecificMembers,
			UserPermissions: []UserPermissionInput{
				{UserID: owner, Permission: PermissionViewer},
			},
		})
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})
}

func TestShareForm_OrgWideDefaultFallsBackToViewer(t *testing.T) {
	f, svc := newSharingFixture(t)
	owner := f.addUser(t, "owner", false)
	member := f.addUser(t, "member", false)

	// The form's stored default is no_access; going org-wide without an
	// explicit default must not leave members with nothing.
	formID := f.addForm(t, owner, ScopePrivate, PermissionNoAccess)

	result, err := svc.ShareForm(context.Background(), owner, ShareFormInput{
		FormID:       formID,
		SharingScope: ScopeAllOrgMembers,
	})
	require.NoError(t, err)
	assert.Equal(t, PermissionViewer, result.Settings.DefaultPermission)

	checker := NewChecker(f.store)
	decision, err := checker.CheckFormAccess(context.Background(), member, formID, PermissionViewer)
	require.NoError(t, err)
	assert.True(t, decision.HasAccess)
}

func TestShareForm_ExplicitNoAccessDefault(t *testing.T) {
	f, svc := newSharingFixture(t)
	owner := f.addUser(t, "owner", false)
	member := f.addUser(t, "member", false)
	granted := f.addUser(t, "granted", false)

	formID := f.addForm(t, owner, ScopePrivate, PermissionNoAccess)

	// Org-wide scope with an explicit no_access default: nobody gets access
	// without an explicit grant. The viewer fallback only applies when no
	// default is supplied.
	noAccess := PermissionNoAccess
	result, err := svc.ShareForm(context.Background(), owner, ShareFormInput{
		FormID:            formID,
		SharingScope:      ScopeAllOrgMembers,
		DefaultPermission: &noAccess,
		UserPermissions: []UserPermissionInput{
			{UserID: granted, Permission: PermissionViewer},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, PermissionNoAccess, result.Settings.DefaultPermission)

	checker := NewChecker(f.store)
	decision, err := checker.CheckFormAccess(context.Background(), member, formID, PermissionViewer)
	require.NoError(t, err)
	assert.False(t, decision.HasAccess)

	decision, err = checker.CheckFormAccess(context.Background(), granted, formID, PermissionViewer)
	require.NoError(t, err)
	assert.True(t, decision.HasAccess)
}

func TestShareForm_InvalidInputs(t *testing.T) {
	f, svc := newSharingFixture(t)
	owner := f.addUser(t, "owner", false)
	formID := f.addForm(t, owner, ScopePrivate, PermissionNoAccess)

	t.Run("invalid scope", func(t *testing.T) {
		_, err := svc.ShareForm(context.Background(), owner, ShareFormInput{
			FormID:       formID,
			SharingScope: SharingScope("public"),
		})
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("owner default permission", func(t *testing.T) {
		bad := PermissionOwner
		_, err := svc.ShareForm(context.Background(), owner, ShareFormInput{
			FormID:            formID,
			SharingScope:      ScopeAllOrgMembers,
			DefaultPermission: &bad,
		})
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})
}

func TestSharingMutations_CallerAuthorization(t *testing.T) {
	f, svc := newSharingFixture(t)
	owner := f.addUser(t, "owner", false)
	viewer := f.addUser(t, "viewer", false)
	editor := f.addUser(t, "editor", false)
	outsider := f.addUser(t, "outsider", true)
	target := f.addUser(t, "target", false)

	formID := f.addForm(t, owner, ScopeSpecificMembers, PermissionNoAccess)
	f.addGrant(t, formID, viewer, PermissionViewer, owner)
	f.addGrant(t, formID, editor, PermissionEditor, owner)

	input := ShareFormInput{FormID: formID, SharingScope: ScopeSpecificMembers}

	t.Run("outsider cannot learn the form exists", func(t *testing.T) {
		_, err := svc.ShareForm(context.Background(), outsider, input)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("viewer is denied", func(t *testing.T) {
		_, err := svc.ShareForm(context.Background(), viewer, input)
		require.Error(t, err)
		assert.True(t, IsAccessDenied(err))
	})

	t.Run("editor may share", func(t *testing.T) {
		_, err := svc.ShareForm(context.Background(), editor, input)
		require.NoError(t, err)
	})

	t.Run("editor may update permissions", func(t *testing.T) {
		grant, err := svc.UpdateFormPermission(context.Background(), editor, formID, target, PermissionViewer)
		require.NoError(t, err)
		require.NotNil(t, grant)
		assert.Equal(t, PermissionViewer, grant.Permission)
	})

	t.Run("viewer cannot remove access", func(t *testing.T) {
		_, err := svc.RemoveFormAccess(context.Background(), viewer, formID, target)
		require.Error(t, err)
		assert.True(t, IsAccessDenied(err))
	})
}

func TestUpdateFormPermission(t *testing.T) {
	f, svc := newSharingFixture(t)
	owner := f.addUser(t, "owner", false)
	alice := f.addUser(t, "alice", false)
	outsider := f.addUser(t, "outsider", true)

	formID := f.addForm(t, owner, ScopeSpecificMembers, PermissionNoAccess)

	t.Run("grant then upgrade", func(t *testing.T) {
		grant, err := svc.UpdateFormPermission(context.Background(), owner, formID, alice, PermissionViewer)
		require.NoError(t, err)
		assert.Equal(t, PermissionViewer, grant.Permission)

		grant, err = svc.UpdateFormPermission(context.Background(), owner, formID, alice, PermissionEditor)
		require.NoError(t, err)
		assert.Equal(t, PermissionEditor, grant.Permission)
		assert.Equal(t, owner, grant.GrantedByID)

		grants, err := svc.ListPermissions(context.Background(), owner, formID)
		require.NoError(t, err)
		require.Len(t, grants, 1)
	})

	t.Run("no_access deletes the grant", func(t *testing.T) {
		grant, err := svc.UpdateFormPermission(context.Background(), owner, formID, alice, PermissionNoAccess)
		require.NoError(t, err)
		assert.Nil(t, grant)

		grants, err := svc.ListPermissions(context.Background(), owner, formID)
		require.NoError(t, err)
		assert.Empty(t, grants)

		// Repeating the revocation is a no-op.
		grant, err = svc.UpdateFormPermission(context.Background(), owner, formID, alice, PermissionNoAccess)
		require.NoError(t, err)
		assert.Nil(t, grant)
	})

	t.Run("owner level rejected", func(t *testing.T) {
		_, err := svc.UpdateFormPermission(context.Background(), owner, formID, alice, PermissionOwner)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("owner target rejected", func(t *testing.T) {
		_, err := svc.UpdateFormPermission(context.Background(), owner, formID, owner, PermissionViewer)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("non-member target rejected", func(t *testing.T) {
		_, err := svc.UpdateFormPermission(context.Background(), owner, formID, outsider, PermissionViewer)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})
}

func TestRemoveFormAccess(t *testing.T) {
	f, svc := newSharingFixture(t)
	owner := f.addUser(t, "owner", false)
	alice := f.addUser(t, "alice", false)

	formID := f.addForm(t, owner, ScopeSpecificMembers, PermissionNoAccess)
	f.addGrant(t, formID, alice, PermissionEditor, owner)

	result, err := svc.RemoveFormAccess(context.Background(), owner, formID, alice)
	require.NoError(t, err)
	assert.True(t, result.WasDeleted)

	// Idempotent: the second removal reports nothing deleted.
	result, err = svc.RemoveFormAccess(context.Background(), owner, formID, alice)
	require.NoError(t, err)
	assert.False(t, result.WasDeleted)

	t.Run("owner target rejected", func(t *testing.T) {
		_, err := svc.RemoveFormAccess(context.Background(), owner, formID, owner)
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})
}

func TestListPermissions_Authorization(t *testing.T) {
	f, svc := newSharingFixture(t)
	owner := f.addUser(t, "owner", false)
	member := f.addUser(t, "member", false)
	outsider := f.addUser(t, "outsider", true)

	formID := f.addForm(t, owner, ScopePrivate, PermissionNoAccess)

	t.Run("outsider gets not found", func(t *testing.T) {
		_, err := svc.ListPermissions(context.Background(), outsider, formID)
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})

	t.Run("member without viewer is denied", func(t *testing.T) {
		_, err := svc.ListPermissions(context.Background(), member, formID)
		require.Error(t, err)
		assert.True(t, IsAccessDenied(err))
	})
}

type sharingEventSink struct {
	events []*webhooks.Event
}

func (s *sharingEventSink) Dispatch(ctx context.Context, event *webhooks.Event) error {
	s.events = append(s.events, event)
	return nil
}

func TestSharingEvents(t *testing.T) {
	f := newTestFixture(t)
	checker := NewChecker(f.store)
	sink := &sharingEventSink{}
	svc := NewSharingService(f.store, checker, WithSharingEvents(sink))

	owner := f.addUser(t, "owner", false)
	alice := f.addUser(t, "alice", false)
	formID := f.addForm(t, owner, ScopePrivate, PermissionNoAccess)

	_, err := svc.ShareForm(context.Background(), owner, ShareFormInput{
		FormID:       formID,
		SharingScope: ScopeSpecificMembers,
	})
	require.NoError(t, err)

	_, err = svc.UpdateFormPermission(context.Background(), owner, formID, alice, PermissionViewer)
	require.NoError(t, err)

	_, err = svc.UpdateFormPermission(context.Background(), owner, formID, alice, PermissionNoAccess)
	require.NoError(t, err)

	// Removing a grant that no longer exists publishes nothing.
	result, err := svc.RemoveFormAccess(context.Background(), owner, formID, alice)
	require.NoError(t, err)
	require.False(t, result.WasDeleted)

	require.Len(t, sink.events, 3)
	assert.Equal(t, webhooks.EventFormShared, sink.events[0].Type)
	assert.Equal(t, formID, sink.events[0].Data["form_id"])
	assert.Equal(t, webhooks.EventPermissionGranted, sink.events[1].Type)
	assert.Equal(t, alice, sink.events[1].Data["user_id"])
	assert.Equal(t, webhooks.EventPermissionRevoked, sink.events[2].Type)
}
