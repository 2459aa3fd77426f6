package orgs

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/formhive/formhive/pkg/httputil"
	"github.com/formhive/formhive/pkg/observability"
)

// Handlers exposes organization membership over REST.
type Handlers struct {
	service Service
	logger  *observability.Logger
}

// NewHandlers creates organization HTTP handlers.
func NewHandlers(service Service) *Handlers {
	return &Handlers{
		service: service,
		logger:  observability.NewLogger("orgs-handlers"),
	}
}

// RegisterRoutes registers the organization routes.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/orgs/{org_id}/members", h.ListMembers).Methods("GET")
	router.HandleFunc("/api/v1/orgs/{org_id}/members/{user_id}", h.GetMember).Methods("GET")
}

// ListMembers handles GET /api/v1/orgs/{org_id}/members
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(mux.Vars(r)["org_id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid organization ID")
		return
	}

	members, err := h.service.ListMembers(r.Context(), orgID)
	if err != nil {
		h.logger.WithError(err).Error("failed to list members")
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"organization_id": orgID,
		"members":         members,
	})
}

// GetMember handles GET /api/v1/orgs/{org_id}/members/{user_id}
func (h *Handlers) GetMember(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	orgID, err := strconv.ParseInt(vars["org_id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid organization ID")
		return
	}
	userID, err := strconv.ParseInt(vars["user_id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid user ID")
		return
	}

	member, err := h.service.GetMember(r.Context(), orgID, userID)
	if err != nil {
		httputil.WriteNotFoundError(w, "member not found")
		return
	}

	httputil.WriteSuccess(w, member)
}
