package access

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/formhive/formhive/pkg/audit"
	"github.com/formhive/formhive/pkg/observability"
	"github.com/formhive/formhive/pkg/webhooks"
)

// EventSink receives sharing change notifications, typically for webhook
// fan-out. Dispatch must not block the mutation path.
type EventSink interface {
	Dispatch(ctx context.Context, event *webhooks.Event) error
}

// RecordCache drops cached form records after a sharing mutation rewrites
// the form row, so a read-through cache cannot serve the old scope until its
// TTL runs out. Satisfied by the forms package cache.
type RecordCache interface {
	Invalidate(ctx context.Context, formID string)
}

// SharingService owns the three sharing mutation procedures. Every procedure
// requires the caller to hold editor on the form and refuses to touch the
// owner's access in any way.
type SharingService struct {
	store   Store
	checker *Checker
	cache   DecisionCache
	records RecordCache
	audit   audit.Logger
	events  EventSink
	logger  *observability.Logger
}

// SharingOption configures a SharingService.
type SharingOption func(*SharingService)

// WithSharingCache attaches the decision cache so mutations can drop stale
// decisions for the affected form.
func WithSharingCache(cache DecisionCache) SharingOption {
	return func(s *SharingService) {
		s.cache = cache
	}
}

// WithSharingAuditLogger attaches an audit logger.
func WithSharingAuditLogger(logger audit.Logger) SharingOption {
	return func(s *SharingService) {
		s.audit = logger
	}
}

// WithSharingEvents attaches an event sink notified after each successful
// sharing mutation.
func WithSharingEvents(events EventSink) SharingOption {
	return func(s *SharingService) {
		s.events = events
	}
}

// WithSharingRecordCache attaches the form-record cache so mutations can
// drop the cached record for the affected form.
func WithSharingRecordCache(records RecordCache) SharingOption {
	return func(s *SharingService) {
		s.records = records
	}
}

// NewSharingService creates a sharing service over store. The checker is
// shared with the rest of the application so decisions stay consistent.
func NewSharingService(store Store, checker *Checker, opts ...SharingOption) *SharingService {
	s := &SharingService{
		store:   store,
		checker: checker,
		logger:  observability.NewLogger("access-sharing"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ShareForm reconfigures a form's sharing in one call: scope, default
// permission, and per-user grants. Validation is all-or-nothing; if any
// listed user is invalid, nothing is written. The scope update and the grant
// replacement commit in a single transaction, so a reader never observes the
// new scope with the old grant list.
func (s *SharingService) ShareForm(ctx context.Context, callerID int64, input ShareFormInput) (result *ShareFormResult, err error) {
	defer func() { observeSharingMutation("share_form", err) }()

	if !input.SharingScope.Valid() {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid sharing scope: %q", input.SharingScope)}
	}
	// An explicit no_access default is a valid configuration: org-wide scope
	// where nobody gets access without an explicit grant. Only owner (and
	// unknown values) are rejected.
	if input.DefaultPermission != nil {
		if dp := *input.DefaultPermission; !dp.Valid() || dp == PermissionOwner {
			return nil, &ValidationError{Message: fmt.Sprintf("default permission must be viewer, editor, or no_access, got %q", dp)}
		}
	}

	accessCtx, err := s.requireEditor(ctx, callerID, input.FormID, "share form")
	if err != nil {
		return nil, err
	}
	form := accessCtx.Form

	if err := validateTargets(accessCtx, input.UserPermissions); err != nil {
		return nil, err
	}

	defaultPerm := form.DefaultPermission
	if input.DefaultPermission != nil {
		defaultPerm = *input.DefaultPermission
	} else if input.SharingScope == ScopeAllOrgMembers && !defaultPerm.Grantable() {
		defaultPerm = PermissionViewer
	}

	// Every listed user gets their old grant replaced; a no_access entry
	// replaces it with nothing. Duplicate entries keep the last one.
	byUser := make(map[int64]PermissionLevel, len(input.UserPermissions))
	order := make([]int64, 0, len(input.UserPermissions))
	for _, up := range input.UserPermissions {
		if _, seen := byUser[up.UserID]; !seen {
			order = append(order, up.UserID)
		}
		byUser[up.UserID] = up.Permission
	}

	revoke := make([]int64, 0, len(order))
	grants := make([]FormPermission, 0, len(order))
	for _, userID := range order {
		revoke = append(revoke, userID)
		if perm := byUser[userID]; perm != PermissionNoAccess {
			grants = append(grants, FormPermission{
				FormID:      form.ID,
				UserID:      userID,
				Permission:  perm,
				GrantedByID: callerID,
			})
		}
	}

	if err := s.store.ApplySharing(ctx, form.ID, input.SharingScope, defaultPerm, revoke, grants); err != nil {
		return nil, fmt.Errorf("failed to apply sharing settings: %w", err)
	}
	s.invalidate(ctx, form.ID)

	current, err := s.store.ListPermissions(ctx, form.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}

	s.auditLogger().LogDataMutation(ctx, audit.EventTypeFormShare, &callerID, audit.ResourceTypeForm, form.ID, &audit.ChangeDetails{
		Before: map[string]interface{}{"sharing_scope": string(form.SharingScope), "default_permission": string(form.DefaultPermission)},
		After:  map[string]interface{}{"sharing_scope": string(input.SharingScope), "default_permission": string(defaultPerm)},
	}, fmt.Sprintf("form sharing updated, %d user permissions listed", len(order)))

	s.publish(ctx, webhooks.EventFormShared, map[string]interface{}{
		"form_id":            form.ID,
		"title":              form.Title,
		"sharing_scope":      string(input.SharingScope),
		"default_permission": string(defaultPerm),
		"actor_id":           callerID,
	})

	return &ShareFormResult{
		Settings: SharingSettings{
			FormID:            form.ID,
			SharingScope:      input.SharingScope,
			DefaultPermission: defaultPerm,
		},
		Grants: current,
	}, nil
}

// UpdateFormPermission sets one user's explicit grant. A no_access level
// removes the grant instead of storing it and returns a nil permission;
// repeating the removal is a no-op, not an error.
func (s *SharingService) UpdateFormPermission(ctx context.Context, callerID int64, formID string, userID int64, perm PermissionLevel) (grant *FormPermission, err error) {
	defer func() { observeSharingMutation("update_form_permission", err) }()

	if !perm.Valid() {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid permission level: %q", perm)}
	}
	if perm == PermissionOwner {
		return nil, &ValidationError{Message: "owner permission cannot be granted"}
	}

	accessCtx, err := s.requireEditor(ctx, callerID, formID, "update form permission")
	if err != nil {
		return nil, err
	}

	if accessCtx.Form.IsOwner(userID) {
		return nil, &ValidationError{Message: "cannot change permissions for form owner"}
	}
	if !accessCtx.IsMember(userID) {
		return nil, &ValidationError{Message: fmt.Sprintf("user %d is not a member of the organization", userID)}
	}

	if perm == PermissionNoAccess {
		if _, err := s.store.DeleteGrant(ctx, formID, userID); err != nil {
			return nil, fmt.Errorf("failed to delete grant: %w", err)
		}
		s.invalidate(ctx, formID)
		s.auditLogger().LogDataMutation(ctx, audit.EventTypeFormPermissionRevoke, &callerID, audit.ResourceTypeForm, formID, nil,
			fmt.Sprintf("permission revoked for user %d", userID))
		s.publish(ctx, webhooks.EventPermissionRevoked, map[string]interface{}{
			"form_id":  formID,
			"user_id":  userID,
			"actor_id": callerID,
		})
		return nil, nil
	}

	stored, err := s.store.UpsertGrant(ctx, FormPermission{
		FormID:      formID,
		UserID:      userID,
		Permission:  perm,
		GrantedByID: callerID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert grant: %w", err)
	}
	s.invalidate(ctx, formID)
	s.auditLogger().LogDataMutation(ctx, audit.EventTypeFormPermissionGrant, &callerID, audit.ResourceTypeForm, formID, nil,
		fmt.Sprintf("permission %s granted to user %d", perm, userID))
	s.publish(ctx, webhooks.EventPermissionGranted, map[string]interface{}{
		"form_id":    formID,
		"user_id":    userID,
		"permission": string(perm),
		"actor_id":   callerID,
	})
	return stored, nil
}

// RemoveFormAccess revokes one user's explicit grant. The result reports
// whether a grant existed; removing a non-existent grant succeeds with
// WasDeleted=false.
func (s *SharingService) RemoveFormAccess(ctx context.Context, callerID int64, formID string, userID int64) (result *RemovalResult, err error) {
	defer func() { observeSharingMutation("remove_form_access", err) }()

	accessCtx, err := s.requireEditor(ctx, callerID, formID, "remove form access")
	if err != nil {
		return nil, err
	}

	if accessCtx.Form.IsOwner(userID) {
		return nil, &ValidationError{Message: "cannot remove access from form owner"}
	}

	deleted, err := s.store.DeleteGrant(ctx, formID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to delete grant: %w", err)
	}
	if deleted {
		s.invalidate(ctx, formID)
		s.auditLogger().LogDataMutation(ctx, audit.EventTypeFormPermissionRevoke, &callerID, audit.ResourceTypeForm, formID, nil,
			fmt.Sprintf("access removed for user %d", userID))
		s.publish(ctx, webhooks.EventPermissionRevoked, map[string]interface{}{
			"form_id":  formID,
			"user_id":  userID,
			"actor_id": callerID,
		})
	}

	return &RemovalResult{FormID: formID, UserID: userID, WasDeleted: deleted}, nil
}

// ListPermissions returns the explicit grants on a form to a caller holding
// at least viewer.
func (s *SharingService) ListPermissions(ctx context.Context, callerID int64, formID string) ([]FormPermission, error) {
	accessCtx, err := s.store.FindFormWithContext(ctx, formID)
	if err != nil {
		return nil, err
	}
	if !accessCtx.IsMember(callerID) {
		return nil, ErrFormNotFound()
	}
	decision := s.checker.decide(accessCtx, callerID, PermissionViewer)
	if !decision.HasAccess {
		return nil, &AccessDeniedError{Message: "insufficient permissions to view form"}
	}
	return accessCtx.Grants, nil
}

// requireEditor fetches the access context once and enforces the mutation
// precondition. Callers outside the organization get "form not found" so a
// sharing probe cannot confirm the form exists; members below editor get an
// explicit denial.
func (s *SharingService) requireEditor(ctx context.Context, callerID int64, formID, operation string) (*FormAccessContext, error) {
	accessCtx, err := s.store.FindFormWithContext(ctx, formID)
	if err != nil {
		return nil, err
	}
	if !accessCtx.IsMember(callerID) {
		s.auditLogger().LogAuthorization(ctx, audit.EventTypeAccessDenied, &callerID, audit.ResourceTypeForm, formID,
			audit.EventStatusDenied, fmt.Sprintf("%s: caller is not an organization member", operation))
		return nil, ErrFormNotFound()
	}
	decision := s.checker.decide(accessCtx, callerID, PermissionEditor)
	if !decision.HasAccess {
		s.auditLogger().LogAuthorization(ctx, audit.EventTypeAccessDenied, &callerID, audit.ResourceTypeForm, formID,
			audit.EventStatusDenied, fmt.Sprintf("%s: editor permission required", operation))
		return nil, &AccessDeniedError{Message: fmt.Sprintf("insufficient permissions to %s", operation)}
	}
	return accessCtx, nil
}

func (s *SharingService) invalidate(ctx context.Context, formID string) {
	if s.records != nil {
		s.records.Invalidate(ctx, formID)
	}
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateForm(ctx, formID); err != nil {
		s.logger.WithError(err).WithField("form_id", formID).Warn("failed to invalidate decision cache")
	}
}

func (s *SharingService) publish(ctx context.Context, eventType webhooks.EventType, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Dispatch(ctx, &webhooks.Event{Type: eventType, Data: data}); err != nil {
		s.logger.WithError(err).WithField("event_type", string(eventType)).Warn("failed to dispatch event")
	}
}

func (s *SharingService) auditLogger() audit.Logger {
	if s.audit != nil {
		return s.audit
	}
	return audit.NoOp()
}

// validateTargets checks every listed user before any write. Grants may only
// name viewer, editor, or no_access; every named user must belong to the
// form's organization; the owner may not be listed at all.
func validateTargets(accessCtx *FormAccessContext, entries []UserPermissionInput) error {
	var nonMembers []int64
	for _, up := range entries {
		if !up.Permission.Valid() {
			return &ValidationError{Message: fmt.Sprintf("invalid permission level: %q", up.Permission)}
		}
		if up.Permission == PermissionOwner {
			return &ValidationError{Message: "owner permission cannot be granted"}
		}
		if accessCtx.Form.IsOwner(up.UserID) {
			return &ValidationError{Message: "cannot change permissions for form owner"}
		}
		if !accessCtx.IsMember(up.UserID) {
			nonMembers = append(nonMembers, up.UserID)
		}
	}
	if len(nonMembers) > 0 {
		sort.Slice(nonMembers, func(i, j int) bool { return nonMembers[i] < nonMembers[j] })
		ids := make([]string, len(nonMembers))
		for i, id := range nonMembers {
			ids[i] = fmt.Sprintf("%d", id)
		}
		return &ValidationError{Message: fmt.Sprintf("users are not members of the organization: %s", strings.Join(ids, ", "))}
	}
	return nil
}
