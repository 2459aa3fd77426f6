// Package audit provides audit logging for security, compliance, and forensics.
//
// # Overview
//
// This package tracks authentication events, access checks, sharing mutations,
// and admin actions with before/after values and request context. Sharing
// changes are the most sensitive writes in the application, so every grant,
// revocation, and scope change lands here.
//
// # Event Types
//
// Authentication: login, logout, token_create, token_revoke
// Authorization: access_check, access_denied
// Forms: form.create, form.update, form.delete
// Sharing: form.share, form.permission_grant, form.permission_revoke
// Admin: org_create, org_member_add, org_member_remove
//
// # Usage Example
//
// Log a sharing change with before/after:
//
//	logger.LogDataMutation(ctx, audit.EventTypeFormShare, &callerID,
//		audit.ResourceTypeForm, form.ID,
//		&audit.ChangeDetails{
//			Before: map[string]interface{}{"sharing_scope": "private"},
//			After:  map[string]interface{}{"sharing_scope": "all_org_members"},
//		},
//		"form sharing updated")
//
// Log a denial:
//
//	logger.LogAuthorization(ctx, audit.EventTypeAccessDenied, &userID,
//		audit.ResourceTypeForm, formID, audit.EventStatusDenied,
//		"editor permission required")
//
// Search audit logs:
//
//	results, err := store.Search(ctx, audit.SearchFilter{
//		StartTime:  &since,
//		UserID:     &userID,
//		EventTypes: []audit.EventType{audit.EventTypeFormShare},
//	})
//
// # Retention Policy
//
// Default: 90 days active retention
// Archiving: Compress and move to long-term storage
// Export: JSON, CSV, NDJSON formats for external analysis
//
// # Related Packages
//
//   - pkg/auth: Authentication events
//   - pkg/access: Sharing mutations and access denials
//   - pkg/middleware: HTTP request logging
package audit
