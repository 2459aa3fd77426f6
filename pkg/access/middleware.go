package access

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/formhive/formhive/pkg/auth"
	"github.com/formhive/formhive/pkg/contextkeys"
	"github.com/formhive/formhive/pkg/httputil"
)

// RequireFormAccess guards a form route with the engine. The wrapped handler
// only runs when the caller holds at least the required level; the decision
// (including the form record) is placed on the request context so the
// handler does not fetch the form twice.
//
// Denials follow the engine's disclosure policy: callers outside the form's
// organization get 404, members below the required level get 403.
func RequireFormAccess(checker *Checker, required PermissionLevel) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, ok := auth.FromContext(r.Context())
			if !ok || authCtx.User == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			formID := mux.Vars(r)["id"]
			if formID == "" {
				httputil.WriteValidationError(w, "missing form ID")
				return
			}

			decision, err := checker.CheckFormAccess(r.Context(), authCtx.User.ID, formID, required)
			if err != nil {
				switch {
				case IsNotFound(err):
					httputil.WriteNotFoundError(w, err.Error())
				case IsValidation(err):
					httputil.WriteValidationError(w, err.Error())
				default:
					httputil.WriteInternalError(w, err)
				}
				return
			}
			if !decision.HasAccess {
				if !decision.IsMember {
					httputil.WriteNotFoundError(w, "form not found")
					return
				}
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}

			ctx := contextkeys.WithAccessDecision(r.Context(), decision)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// DecisionFromRequest returns the decision stored by RequireFormAccess.
func DecisionFromRequest(r *http.Request) (*AccessDecision, bool) {
	decision, ok := contextkeys.GetAccessDecision(r.Context()).(*AccessDecision)
	return decision, ok
}
