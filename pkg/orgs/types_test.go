package orgs

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestRoleConstants(t *testing.T) {
	if RoleOwner != "owner" {
		t.Errorf("RoleOwner = %q, want %q", RoleOwner, "owner")
	}
	if RoleMember != "member" {
		t.Errorf("RoleMember = %q, want %q", RoleMember, "member")
	}
}

func TestOrgStatusConstants(t *testing.T) {
	tests := []struct {
		status OrgStatus
		want   string
	}{
		{OrgStatusActive, "active"},
		{OrgStatusSuspended, "suspended"},
		{OrgStatusDeleted, "deleted"},
	}
	for _, tt := range tests {
		if string(tt.status) != tt.want {
			t.Errorf("status = %q, want %q", tt.status, tt.want)
		}
	}
}

func TestOrgMemberJSON(t *testing.T) {
	member := &OrgMember{
		ID:             1,
		OrganizationID: 2,
		UserID:         10,
		Role:           RoleMember,
		JoinedAt:       time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC),
		Username:       "alice",
	}

	data, err := json.Marshal(member)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	s := string(data)

	// Optional fields must be omitted when unset, not serialized as null
	if strings.Contains(s, "invited_by") {
		t.Errorf("expected invited_by to be omitted, got %s", s)
	}
	if strings.Contains(s, `"email"`) {
		t.Errorf("expected email to be omitted, got %s", s)
	}
	if !strings.Contains(s, `"role":"member"`) {
		t.Errorf("expected role field, got %s", s)
	}
}

func TestOrganizationJSON(t *testing.T) {
	org := &Organization{
		ID:          1,
		Name:        "acme",
		Slug:        "acme",
		DisplayName: "Acme Inc",
		Status:      OrgStatusActive,
	}

	data, err := json.Marshal(org)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	s := string(data)

	if !strings.Contains(s, `"slug":"acme"`) {
		t.Errorf("expected slug field, got %s", s)
	}
	if !strings.Contains(s, `"status":"active"`) {
		t.Errorf("expected status field, got %s", s)
	}
	if strings.Contains(s, `"description"`) {
		t.Errorf("expected empty description to be omitted, got %s", s)
	}
}
