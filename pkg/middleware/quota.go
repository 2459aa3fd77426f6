// Quota enforcement middleware.
//
// # Middleware Ordering Requirements
//
// Quota middleware has strict ordering dependencies. Incorrect order will
// cause quota checks to silently pass (no organization in context).
//
// REQUIRED ORDERING (outer to inner):
//  1. AuthMiddleware - Sets auth context with the authenticated user
//  2. OrgContextMiddleware - Resolves the organization from the route
//  3. Quota check middleware - CheckAPIRateLimit, EnforceFormQuota, etc.
//
// Example (correct):
//
//	router.Use(authMiddleware.Handler)          // 1. Sets auth context
//	router.Use(OrgContextMiddleware(orgSvc))    // 2. Resolves organization
//	router.HandleFunc("/api/v1/orgs/{org_id}/forms", handler).
//	    Methods("POST").
//	    Handler(quotaMiddleware.EnforceFormQuota(...))  // 3. Checks quota
//
// If the quota middleware runs before OrgContextMiddleware, OrgFromContext
// returns nothing and the check is skipped, which silently disables quota
// enforcement on that route.

package middleware

import (
	"net/http"

	"github.com/formhive/formhive/pkg/orgs"
)

// QuotaMiddleware enforces per-organization quotas for API requests.
//
// See the ordering requirements above: OrgContextMiddleware must run first.
type QuotaMiddleware struct {
	quotas orgs.QuotaChecker
}

// NewQuotaMiddleware creates a new QuotaMiddleware
func NewQuotaMiddleware(quotas orgs.QuotaChecker) *QuotaMiddleware {
	return &QuotaMiddleware{quotas: quotas}
}

// CheckAPIRateLimit checks if the organization is within its hourly API budget
//
// REQUIRES: OrgContextMiddleware must run before this middleware.
// Returns: 429 Too Many Requests if the budget is exhausted.
func (m *QuotaMiddleware) CheckAPIRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org, ok := OrgFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if err := m.quotas.CheckAPIRateLimit(r.Context(), org.ID); err != nil {
			if orgs.IsQuotaExceeded(err) {
				http.Error(w, "API rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			// Quota lookup failures never block the request
		}

		next.ServeHTTP(w, r)
	})
}

// EnforceFormQuota checks if the organization can create another form
//
// REQUIRES: OrgContextMiddleware must run before this middleware.
// Returns: 403 Forbidden if the form quota is exhausted.
func (m *QuotaMiddleware) EnforceFormQuota(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		org, ok := OrgFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		if err := m.quotas.CheckFormQuota(r.Context(), org.ID); err != nil {
			if orgs.IsQuotaExceeded(err) {
				http.Error(w, err.Error(), http.StatusForbidden)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		next.ServeHTTP(w, r)
	})
}
