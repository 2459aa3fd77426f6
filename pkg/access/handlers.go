package access

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/formhive/formhive/pkg/auth"
	"github.com/formhive/formhive/pkg/httputil"
	"github.com/formhive/formhive/pkg/observability"
)

// Handlers exposes the engine's operations over REST.
type Handlers struct {
	checker *Checker
	sharing *SharingService
	logger  *observability.Logger
}

// NewHandlers creates HTTP handlers for form sharing and permissions.
func NewHandlers(checker *Checker, sharing *SharingService) *Handlers {
	return &Handlers{
		checker: checker,
		sharing: sharing,
		logger:  observability.NewLogger("access-handlers"),
	}
}

// RegisterRoutes registers the sharing and permission routes. The router is
// expected to already sit behind the auth middleware.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/forms/{id}/permissions", h.ListPermissions).Methods("GET")
	router.HandleFunc("/api/v1/forms/{id}/permissions/me", h.MyPermission).Methods("GET")
	router.HandleFunc("/api/v1/forms/{id}/share", h.ShareForm).Methods("POST")
	router.HandleFunc("/api/v1/forms/{id}/permissions/{user_id}", h.UpdatePermission).Methods("PUT")
	router.HandleFunc("/api/v1/forms/{id}/permissions/{user_id}", h.RemoveAccess).Methods("DELETE")
}

type shareFormRequest struct {
	SharingScope      string `json:"sharing_scope"`
	DefaultPermission string `json:"default_permission,omitempty"`
	UserPermissions   []struct {
		UserID     int64  `json:"user_id"`
		Permission string `json:"permission"`
	} `json:"user_permissions,omitempty"`
}

type updatePermissionRequest struct {
	Permission string `json:"permission"`
}

// ListPermissions handles GET /api/v1/forms/{id}/permissions
func (h *Handlers) ListPermissions(w http.ResponseWriter, r *http.Request) {
	callerID, ok := callerID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	formID := mux.Vars(r)["id"]

	grants, err := h.sharing.ListPermissions(r.Context(), callerID, formID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"form_id":     formID,
		"permissions": grants,
	})
}

// MyPermission handles GET /api/v1/forms/{id}/permissions/me
func (h *Handlers) MyPermission(w http.ResponseWriter, r *http.Request) {
	callerID, ok := callerID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	formID := mux.Vars(r)["id"]

	permission, err := h.checker.UserPermission(r.Context(), callerID, formID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"form_id":    formID,
		"user_id":    callerID,
		"permission": permission,
	})
}

// ShareForm handles POST /api/v1/forms/{id}/share
func (h *Handlers) ShareForm(w http.ResponseWriter, r *http.Request) {
	callerID, ok := callerID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	formID := mux.Vars(r)["id"]

	var req shareFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}

	scope, err := ParseSharingScope(req.SharingScope)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	input := ShareFormInput{
		FormID:       formID,
		SharingScope: scope,
	}
	if req.DefaultPermission != "" {
		perm, err := ParsePermissionLevel(req.DefaultPermission)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		input.DefaultPermission = &perm
	}
	for _, up := range req.UserPermissions {
		perm, err := ParsePermissionLevel(up.Permission)
		if err != nil {
			h.writeEngineError(w, err)
			return
		}
		input.UserPermissions = append(input.UserPermissions, UserPermissionInput{
			UserID:     up.UserID,
			Permission: perm,
		})
	}

	result, err := h.sharing.ShareForm(r.Context(), callerID, input)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteSuccess(w, result)
}

// UpdatePermission handles PUT /api/v1/forms/{id}/permissions/{user_id}
func (h *Handlers) UpdatePermission(w http.ResponseWriter, r *http.Request) {
	callerID, ok := callerID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	vars := mux.Vars(r)
	formID := vars["id"]
	userID, err := strconv.ParseInt(vars["user_id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid user ID")
		return
	}

	var req updatePermissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteValidationError(w, "invalid request body")
		return
	}
	perm, err := ParsePermissionLevel(req.Permission)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	grant, err := h.sharing.UpdateFormPermission(r.Context(), callerID, formID, userID, perm)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	if grant == nil {
		// A no_access update stores nothing; report the revocation.
		httputil.WriteSuccess(w, map[string]interface{}{
			"form_id":    formID,
			"user_id":    userID,
			"permission": PermissionNoAccess,
		})
		return
	}
	httputil.WriteSuccess(w, grant)
}

// RemoveAccess handles DELETE /api/v1/forms/{id}/permissions/{user_id}
func (h *Handlers) RemoveAccess(w http.ResponseWriter, r *http.Request) {
	callerID, ok := callerID(r)
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	vars := mux.Vars(r)
	formID := vars["id"]
	userID, err := strconv.ParseInt(vars["user_id"], 10, 64)
	if err != nil {
		httputil.WriteValidationError(w, "invalid user ID")
		return
	}

	result, err := h.sharing.RemoveFormAccess(r.Context(), callerID, formID, userID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}

	httputil.WriteSuccess(w, result)
}

// writeEngineError translates engine errors into HTTP responses.
func (h *Handlers) writeEngineError(w http.ResponseWriter, err error) {
	status := HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error("access operation failed")
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
