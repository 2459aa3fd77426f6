package access

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/formhive/formhive/pkg/observability"
)

// Checker evaluates form access. It is the single decision point: every
// query and mutation that touches a form funnels through CheckFormAccess.
type Checker struct {
	store  Store
	cache  DecisionCache
	logger *observability.Logger
}

// CheckerOption configures a Checker.
type CheckerOption func(*Checker)

// WithDecisionCache attaches a decision cache. Without one every check hits
// the store.
func WithDecisionCache(cache DecisionCache) CheckerOption {
	return func(c *Checker) {
		c.cache = cache
	}
}

// WithCheckerLogger attaches a structured logger.
func WithCheckerLogger(logger *observability.Logger) CheckerOption {
	return func(c *Checker) {
		c.logger = logger
	}
}

// NewChecker creates a checker backed by store.
func NewChecker(store Store, opts ...CheckerOption) *Checker {
	c := &Checker{
		store:  store,
		logger: observability.NewLogger("access-checker"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CheckFormAccess decides whether userID may act on formID at the required
// level. Passing an empty required level asks for viewer.
//
// The only error path is a missing form (or a store failure). A caller who
// may not act receives a decision with HasAccess=false, never an
// AccessDeniedError: the caller decides how to phrase the denial, which is
// what lets entry points answer non-members with "form not found" instead of
// confirming the form exists.
func (c *Checker) CheckFormAccess(ctx context.Context, userID int64, formID string, required PermissionLevel) (*AccessDecision, error) {
	if required == "" {
		required = DefaultRequiredLevel
	}
	if !required.Valid() {
		return nil, &ValidationError{Message: fmt.Sprintf("invalid permission level: %q", required)}
	}

	cacheKey := decisionKey(userID, required)
	if c.cache != nil {
		if decision, ok := c.cache.Get(ctx, formID, cacheKey); ok {
			observeAccessCheck(decision, true)
			return decision, nil
		}
	}

	accessCtx, err := c.store.FindFormWithContext(ctx, formID)
	if err != nil {
		return nil, err
	}

	decision := c.decide(accessCtx, userID, required)

	if c.cache != nil {
		c.cache.Set(ctx, formID, cacheKey, decision)
	}
	observeAccessCheck(decision, false)

	if !decision.HasAccess {
		c.logger.WithFields(map[string]interface{}{
			"user_id":   userID,
			"form_id":   formID,
			"required":  string(required),
			"effective": string(decision.Permission),
		}).Debug("form access denied")
	}

	return decision, nil
}

// decide applies the ordered decision rules to an already-fetched context.
func (c *Checker) decide(accessCtx *FormAccessContext, userID int64, required PermissionLevel) *AccessDecision {
	form := accessCtx.Form

	// Membership is checked before ownership: an owner who has left the
	// organization holds nothing.
	if !accessCtx.IsMember(userID) {
		return &AccessDecision{HasAccess: false, IsMember: false, Permission: PermissionNoAccess, Form: form}
	}

	if form.IsOwner(userID) {
		return &AccessDecision{HasAccess: true, IsMember: true, Permission: PermissionOwner, Form: form}
	}

	effective := ResolveScopePermission(form, accessCtx.Grants, userID)
	return &AccessDecision{
		HasAccess:  Satisfies(effective, required),
		IsMember:   true,
		Permission: effective,
		Form:       form,
	}
}

// UserPermission reports the caller's effective permission on a form, the
// level a form read surfaces next to the form itself. Callers outside the
// organization get a NotFoundError rather than a level.
func (c *Checker) UserPermission(ctx context.Context, userID int64, formID string) (PermissionLevel, error) {
	decision, err := c.CheckFormAccess(ctx, userID, formID, DefaultRequiredLevel)
	if err != nil {
		return "", err
	}
	if !decision.IsMember {
		return "", ErrFormNotFound()
	}
	return decision.Permission, nil
}

// decisionKey derives the cache field for one (user, required) pair. The
// form ID keys the enclosing cache bucket, so invalidating a form drops all
// of its decisions at once.
func decisionKey(userID int64, required PermissionLevel) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%s", userID, required)))
	return hex.EncodeToString(sum[:])
}
