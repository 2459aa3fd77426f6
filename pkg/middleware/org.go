package middleware

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/formhive/formhive/pkg/contextkeys"
	"github.com/formhive/formhive/pkg/httputil"
	"github.com/formhive/formhive/pkg/orgs"
)

// OrgFromContext returns the organization resolved by OrgContextMiddleware,
// if any.
func OrgFromContext(ctx context.Context) (*orgs.Organization, bool) {
	org, ok := ctx.Value(contextkeys.OrgKey).(*orgs.Organization)
	return org, ok
}

// OrgContextMiddleware resolves the organization referenced by the route's
// org_id or org_slug variable and stores it in the request context. Routes
// without an organization variable pass through untouched.
func OrgContextMiddleware(orgService orgs.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vars := mux.Vars(r)

			var (
				org *orgs.Organization
				err error
			)
			switch {
			case vars["org_id"] != "":
				orgID, parseErr := strconv.ParseInt(vars["org_id"], 10, 64)
				if parseErr != nil {
					httputil.WriteValidationError(w, "invalid organization ID")
					return
				}
				org, err = orgService.GetOrganization(r.Context(), orgID)
			case vars["org_slug"] != "":
				org, err = orgService.GetOrganizationBySlug(r.Context(), vars["org_slug"])
			default:
				next.ServeHTTP(w, r)
				return
			}

			if err != nil {
				httputil.WriteNotFoundError(w, "organization not found")
				return
			}

			next.ServeHTTP(w, r.WithContext(contextkeys.WithOrg(r.Context(), org)))
		})
	}
}

// quotaExceededBody is the 429 payload the client sees when an org quota
// runs out; it carries enough detail to render a meaningful upgrade prompt.
type quotaExceededBody struct {
	Error    string `json:"error"`
	Resource string `json:"resource"`
	Current  int64  `json:"current"`
	Limit    int64  `json:"limit"`
}

// QuotaCheckMiddleware checks organization quotas before allowing mutating
// operations. quotaType is "form" (form creation quota) or "api" (hourly
// request budget). Reads are never quota-checked.
func QuotaCheckMiddleware(quotas orgs.QuotaChecker, quotaType string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			org, ok := OrgFromContext(r.Context())
			if !ok {
				// No organization on the route, nothing to check against.
				next.ServeHTTP(w, r)
				return
			}

			var err error
			switch quotaType {
			case "form":
				err = quotas.CheckFormQuota(r.Context(), org.ID)
			case "api":
				err = quotas.CheckAPIRateLimit(r.Context(), org.ID)
			}

			if err != nil {
				var quotaErr *orgs.QuotaExceededError
				if orgs.IsQuotaExceeded(err) {
					quotaErr = err.(*orgs.QuotaExceededError)
					httputil.WriteJSON(w, http.StatusTooManyRequests, quotaExceededBody{
						Error:    "quota_exceeded",
						Resource: quotaErr.Resource,
						Current:  quotaErr.Current,
						Limit:    quotaErr.Limit,
					})
					return
				}
				httputil.WriteInternalError(w, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
