package forms

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/formhive/formhive/pkg/access"
	"github.com/formhive/formhive/pkg/auth"
	"github.com/formhive/formhive/pkg/httputil"
	"github.com/formhive/formhive/pkg/observability"
)

// Handlers exposes the form lifecycle over REST.
type Handlers struct {
	service *Service
	logger  *observability.Logger
}

// NewHandlers creates HTTP handlers for form CRUD.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{
		service: service,
		logger:  observability.NewLogger("forms-handlers"),
	}
}

// RegisterRoutes registers the form routes. The router is expected to
// already sit behind the auth middleware; the org-scoped routes also
// expect the org context and quota middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/orgs/{org_id}/forms", h.CreateForm).Methods("POST")
	router.HandleFunc("/api/v1/orgs/{org_id}/forms", h.ListForms).Methods("GET")
	router.HandleFunc("/api/v1/forms/{id}", h.GetForm).Methods("GET")
	router.HandleFunc("/api/v1/forms/{id}", h.UpdateForm).Methods("PUT")
	router.HandleFunc("/api/v1/forms/{id}", h.DeleteForm).Methods("DELETE")
	router.HandleFunc("/api/v1/form-categories", h.ListCategories).Methods("GET")
}

// CreateForm handles POST /api/v1/orgs/{org_id}/forms
func (h *Handlers) CreateForm(w http.ResponseWriter, r *http.Request) {
	callerID, ok := callerID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	orgID, err := strconv.ParseInt(mux.Vars(r)["org_id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid organization ID")
		return
	}

	var in CreateFormInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}

	form, err := h.service.Create(r.Context(), callerID, orgID, in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, form)
}

// ListForms handles GET /api/v1/orgs/{org_id}/forms. Repeated category
// query parameters narrow the listing.
func (h *Handlers) ListForms(w http.ResponseWriter, r *http.Request) {
	callerID, ok := callerID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	orgID, err := strconv.ParseInt(mux.Vars(r)["org_id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid organization ID")
		return
	}

	filter := ListFilter{Categories: r.URL.Query()["category"]}

	forms, err := h.service.List(r.Context(), callerID, orgID, filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if forms == nil {
		forms = []access.Form{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"organization_id": orgID,
		"forms":           forms,
	})
}

// GetForm handles GET /api/v1/forms/{id}
func (h *Handlers) GetForm(w http.ResponseWriter, r *http.Request) {
	callerID, ok := callerID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	formID := mux.Vars(r)["id"]

	form, err := h.service.Get(r.Context(), callerID, formID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, form)
}

// UpdateForm handles PUT /api/v1/forms/{id}
func (h *Handlers) UpdateForm(w http.ResponseWriter, r *http.Request) {
	callerID, ok := callerID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	formID := mux.Vars(r)["id"]

	var in UpdateFormInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}

	form, err := h.service.Update(r.Context(), callerID, formID, in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, form)
}

// DeleteForm handles DELETE /api/v1/forms/{id}
func (h *Handlers) DeleteForm(w http.ResponseWriter, r *http.Request) {
	callerID, ok := callerID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	formID := mux.Vars(r)["id"]

	if err := h.service.Delete(r.Context(), callerID, formID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// ListCategories handles GET /api/v1/form-categories
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	httputil.WriteSuccess(w, map[string]interface{}{
		"categories": h.service.Categories().Names(),
	})
}

// writeServiceError translates engine errors into HTTP responses.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	status := access.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("form operation failed")
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteErrorMessage(w, status, err.Error())
}

// callerID extracts the authenticated user ID from the request context.
func callerID(r *http.Request) (int64, bool) {
	authCtx, ok := auth.FromContext(r.Context())
	if !ok || authCtx.User == nil {
		return 0, false
	}
	return authCtx.User.ID, true
}
