package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRank(t *testing.T) {
	tests := []struct {
		level PermissionLevel
		want  int
	}{
		{PermissionNoAccess, 0},
		{PermissionViewer, 1},
		{PermissionEditor, 2},
		{PermissionOwner, 3},
		{PermissionLevel("admin"), -1},
		{PermissionLevel(""), -1},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.want, Rank(tt.level))
		})
	}
}

func TestSatisfies(t *testing.T) {
	levels := []PermissionLevel{PermissionNoAccess, PermissionViewer, PermissionEditor, PermissionOwner}

	// The hierarchy is a total order: have satisfies require exactly when
	// have ranks at least as high.
	for i, have := range levels {
		for j, req := range levels {
			got := Satisfies(have, req)
			want := i >= j
			if got != want {
				t.Errorf("Satisfies(%s, %s) = %v, want %v", have, req, got, want)
			}
		}
	}
}

func TestSatisfies_UnknownLevels(t *testing.T) {
	// Unknown levels rank below no_access and satisfy nothing.
	assert.False(t, Satisfies(PermissionLevel("superuser"), PermissionNoAccess))
	assert.True(t, Satisfies(PermissionNoAccess, PermissionLevel("superuser")))
}

func TestParsePermissionLevel(t *testing.T) {
	t.Run("valid levels", func(t *testing.T) {
		for _, s := range []string{"no_access", "viewer", "editor", "owner"} {
			level, err := ParsePermissionLevel(s)
			require.NoError(t, err)
			assert.Equal(t, PermissionLevel(s), level)
		}
	})

	t.Run("invalid levels", func(t *testing.T) {
		for _, s := range []string{"", "VIEWER", "admin", "read"} {
			_, err := ParsePermissionLevel(s)
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		}
	})
}

func TestParseSharingScope(t *testing.T) {
	t.Run("valid scopes", func(t *testing.T) {
		for _, s := range []string{"private", "specific_members", "all_org_members"} {
			scope, err := ParseSharingScope(s)
			require.NoError(t, err)
			assert.Equal(t, SharingScope(s), scope)
		}
	})

	t.Run("invalid scopes", func(t *testing.T) {
		_, err := ParseSharingScope("public")
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})
}

func TestGrantable(t *testing.T) {
	assert.True(t, PermissionViewer.Grantable())
	assert.True(t, PermissionEditor.Grantable())
	assert.False(t, PermissionOwner.Grantable())
	assert.False(t, PermissionNoAccess.Grantable())
	assert.Equal(t, []PermissionLevel{PermissionViewer, PermissionEditor}, GrantableLevels())
}
