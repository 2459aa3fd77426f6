package forms

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formhive/formhive/pkg/access"
	"github.com/formhive/formhive/pkg/audit"
	"github.com/formhive/formhive/pkg/observability"
	"github.com/formhive/formhive/pkg/webhooks"
)

// Service implements the form lifecycle. Every operation that names a form
// goes through the access checker first; storage is only touched once the
// caller's permission level is established.
type Service struct {
	store         Store
	checker       *access.Checker
	categories    *Categories
	cache         Cache
	decisionCache access.DecisionCache
	auditLog      audit.Logger
	events        access.EventSink
	logger        *observability.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCache installs a read-through cache for form records.
func WithCache(cache Cache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

// WithDecisionCache lets the service invalidate cached access decisions
// when a form is deleted.
func WithDecisionCache(cache access.DecisionCache) Option {
	return func(s *Service) {
		s.decisionCache = cache
	}
}

// WithAuditLogger installs an audit logger for form mutations.
func WithAuditLogger(logger audit.Logger) Option {
	return func(s *Service) {
		s.auditLog = logger
	}
}

// WithEvents attaches an event sink notified after each successful form
// mutation.
func WithEvents(events access.EventSink) Option {
	return func(s *Service) {
		s.events = events
	}
}

// NewService creates a form service.
func NewService(store Store, checker *access.Checker, categories *Categories, opts ...Option) *Service {
	s := &Service{
		store:      store,
		checker:    checker,
		categories: categories,
		logger:     observability.NewLogger("forms"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.categories == nil {
		s.categories = DefaultCategories()
	}
	return s
}

// Create makes a new form owned by the caller. The caller must belong to
// the organization; the form starts private with no default permission.
func (s *Service) Create(ctx context.Context, callerID, orgID int64, in CreateFormInput) (form *access.Form, err error) {
	defer func() { observeFormOperation("create", err) }()

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, &access.ValidationError{Message: "title is required"}
	}
	if err := s.categories.Validate(in.Category); err != nil {
		return nil, err
	}

	member, err := s.store.IsMember(ctx, orgID, callerID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, &access.AccessDeniedError{Message: "caller is not a member of the organization"}
	}

	now := time.Now().UTC()
	form = &access.Form{
		ID:                uuid.New().String(),
		OrganizationID:    orgID,
		CreatedByID:       callerID,
		Title:             title,
		Description:       strings.TrimSpace(in.Description),
		Category:          normalizeCategory(in.Category),
		SharingScope:      access.ScopePrivate,
		DefaultPermission: access.PermissionNoAccess,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err = s.store.Create(ctx, form); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, form)

	s.logger.WithFields(map[string]interface{}{
		"form_id": form.ID,
		"org_id":  orgID,
		"user_id": callerID,
	}).Info("form created")
	s.audit().LogDataMutation(ctx, audit.EventTypeFormCreate, &callerID,
		audit.ResourceTypeForm, form.ID, nil, "form created")
	s.publish(ctx, webhooks.EventFormCreated, map[string]interface{}{
		"form_id":         form.ID,
		"title":           form.Title,
		"organization_id": orgID,
		"actor_id":        callerID,
	})

	return form, nil
}

// Get returns a single form. The caller needs at least viewer; outsiders
// get "not found" rather than confirmation that the form exists.
func (s *Service) Get(ctx context.Context, callerID int64, formID string) (form *access.Form, err error) {
	defer func() { observeFormOperation("get", err) }()

	decision, err := s.requireLevel(ctx, callerID, formID, access.PermissionViewer, "read form")
	if err != nil {
		return nil, err
	}

	if form, ok := s.cacheGet(ctx, formID); ok {
		return form, nil
	}
	// Cached decisions carry no form record; fall back to storage.
	form = decision.Form
	if form == nil {
		form, err = s.store.Get(ctx, formID)
		if err != nil {
			return nil, err
		}
	}
	s.cacheSet(ctx, form)
	return form, nil
}

// List returns the organization's forms visible to the caller, filtered by
// category when requested. A caller who can see nothing gets an empty
// list, not an error; a caller outside the organization is denied.
func (s *Service) List(ctx context.Context, callerID, orgID int64, filter ListFilter) (forms []access.Form, err error) {
	defer func() { observeFormOperation("list", err) }()

	for _, category := range filter.Categories {
		if err := s.categories.Validate(category); err != nil {
			return nil, err
		}
	}

	member, err := s.store.IsMember(ctx, orgID, callerID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, &access.AccessDeniedError{Message: "caller is not a member of the organization"}
	}

	return s.store.List(ctx, orgID, callerID, filter)
}

// Update applies a partial update to a form's metadata. The caller needs
// editor or better.
func (s *Service) Update(ctx context.Context, callerID int64, formID string, in UpdateFormInput) (form *access.Form, err error) {
	defer func() { observeFormOperation("update", err) }()

	if in.IsEmpty() {
		return nil, &access.ValidationError{Message: "no fields to update"}
	}
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return nil, &access.ValidationError{Message: "title cannot be empty"}
	}
	if in.Category != nil {
		if err := s.categories.Validate(*in.Category); err != nil {
			return nil, err
		}
	}

	if _, err = s.requireLevel(ctx, callerID, formID, access.PermissionEditor, "update form"); err != nil {
		return nil, err
	}

	form, err = s.store.Update(ctx, formID, in)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, form)

	s.audit().LogDataMutation(ctx, audit.EventTypeFormUpdate, &callerID,
		audit.ResourceTypeForm, formID, changeDetails(in), "form updated")
	s.publish(ctx, webhooks.EventFormUpdated, map[string]interface{}{
		"form_id":         form.ID,
		"title":           form.Title,
		"organization_id": form.OrganizationID,
		"actor_id":        callerID,
	})

	return form, nil
}

// Delete removes a form and all its grants. Only the owner may delete.
func (s *Service) Delete(ctx context.Context, callerID int64, formID string) (err error) {
	defer func() { observeFormOperation("delete", err) }()

	if _, err = s.requireLevel(ctx, callerID, formID, access.PermissionOwner, "delete form"); err != nil {
		return err
	}

	deleted, err := s.store.Delete(ctx, formID)
	if err != nil {
		return err
	}
	if !deleted {
		return access.ErrFormNotFound()
	}

	if s.cache != nil {
		s.cache.Invalidate(ctx, formID)
	}
	if s.decisionCache != nil {
		if err := s.decisionCache.InvalidateForm(ctx, formID); err != nil {
			s.logger.WithError(err).WithField("form_id", formID).
				Warn("failed to invalidate cached decisions for deleted form")
		}
	}

	s.logger.WithFields(map[string]interface{}{
		"form_id": formID,
		"user_id": callerID,
	}).Info("form deleted")
	s.audit().LogDataMutation(ctx, audit.EventTypeFormDelete, &callerID,
		audit.ResourceTypeForm, formID, nil, "form deleted")
	s.publish(ctx, webhooks.EventFormDeleted, map[string]interface{}{
		"form_id":  formID,
		"actor_id": callerID,
	})

	return nil
}

// Categories returns the configured category list.
func (s *Service) Categories() *Categories {
	return s.categories
}

// requireLevel runs an access check and turns a denial into an error.
// Non-members get "form not found" so a denied caller cannot distinguish a
// form they may not see from one that does not exist.
func (s *Service) requireLevel(ctx context.Context, callerID int64, formID string, required access.PermissionLevel, operation string) (*access.AccessDecision, error) {
	decision, err := s.checker.CheckFormAccess(ctx, callerID, formID, required)
	if err != nil {
		return nil, err
	}
	if !decision.IsMember {
		s.audit().LogAuthorization(ctx, audit.EventTypeAccessDenied, &callerID, audit.ResourceTypeForm, formID,
			audit.EventStatusDenied, operation+": caller is not an organization member")
		return nil, access.ErrFormNotFound()
	}
	if !decision.HasAccess {
		s.audit().LogAuthorization(ctx, audit.EventTypeAccessDenied, &callerID, audit.ResourceTypeForm, formID,
			audit.EventStatusDenied, operation+": insufficient permission")
		return nil, &access.AccessDeniedError{Message: "insufficient permissions to " + operation}
	}
	return decision, nil
}

func (s *Service) cacheGet(ctx context.Context, formID string) (*access.Form, bool) {
	if s.cache == nil {
		return nil, false
	}
	return s.cache.Get(ctx, formID)
}

func (s *Service) cacheSet(ctx context.Context, form *access.Form) {
	if s.cache != nil {
		s.cache.Set(ctx, form)
	}
}

func (s *Service) publish(ctx context.Context, eventType webhooks.EventType, data map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Dispatch(ctx, &webhooks.Event{Type: eventType, Data: data}); err != nil {
		s.logger.WithError(err).WithField("event_type", string(eventType)).Warn("failed to dispatch event")
	}
}

func (s *Service) audit() audit.Logger {
	if s.auditLog != nil {
		return s.auditLog
	}
	return audit.NoOp()
}

func changeDetails(in UpdateFormInput) *audit.ChangeDetails {
	after := make(map[string]interface{})
	if in.Title != nil {
		after["title"] = *in.Title
	}
	if in.Description != nil {
		after["description"] = *in.Description
	}
	if in.Category != nil {
		after["category"] = normalizeCategory(*in.Category)
	}
	return &audit.ChangeDetails{After: after}
}
