// Package api exposes the fleet registry over HTTP: a JSON REST
// surface for agents and operators, and a websocket channel for live
// status fanout.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/wanghui5801/fleetmon/internal/auth"
	"github.com/wanghui5801/fleetmon/internal/broadcast"
	"github.com/wanghui5801/fleetmon/internal/metrics"
	"github.com/wanghui5801/fleetmon/internal/models"
	"github.com/wanghui5801/fleetmon/internal/registry"
)

type Handler struct {
	reg  *registry.Registry
	hub  *broadcast.Hub
	auth *auth.Manager
	log  *zap.Logger
}

func NewHandler(reg *registry.Registry, hub *broadcast.Hub, authMgr *auth.Manager, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{reg: reg, hub: hub, auth: authMgr, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealthz)
	metrics.Register(mux)

	mux.HandleFunc("POST /api/nodes/update", h.handleUpdate)
	mux.HandleFunc("GET /api/nodes", h.handleListNodes)
	mux.HandleFunc("GET /api/nodes/{id}", h.handleGetNode)
	mux.HandleFunc("PUT /api/nodes/{id}/status", h.operator(h.handleForceStatus))
	mux.HandleFunc("PUT /api/nodes/{id}/order", h.operator(h.handleSetOrder))
	mux.HandleFunc("DELETE /api/nodes/{id}", h.operator(h.handleDeleteNode))

	mux.HandleFunc("GET /api/clients", h.operator(h.handleListClients))
	mux.HandleFunc("POST /api/clients", h.operator(h.handleAddClient))
	mux.HandleFunc("DELETE /api/clients/{name}", h.operator(h.handleDeleteClient))

	mux.HandleFunc("GET /api/auth/status", h.handleAuthStatus)
	mux.HandleFunc("POST /api/auth/initialize", h.handleAuthInitialize)
	mux.HandleFunc("POST /api/auth/login", h.handleAuthLogin)
	mux.HandleFunc("POST /api/auth/reset-password", h.operator(h.handleAuthReset))

	mux.HandleFunc("GET /api/ws", h.handleWS)

	return mux
}

func (h *Handler) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpdate is the agent ingestion endpoint.
func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	node, err := h.reg.Apply(r.Context(), req)
	if err != nil {
		h.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (h *Handler) handleListNodes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.reg.ListVisible(h.authenticated(r)))
}

func (h *Handler) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, err := h.reg.GetVisible(r.PathValue("id"), h.authenticated(r))
	if err != nil {
		h.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (h *Handler) handleForceStatus(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Status models.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	node, err := h.reg.ForceStatus(r.Context(), r.PathValue("id"), body.Status)
	if err != nil {
		h.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (h *Handler) handleSetOrder(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OrderIndex *int `json:"order_index"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.OrderIndex == nil {
		writeError(w, http.StatusBadRequest, "order_index is required")
		return
	}
	if err := h.reg.SetOrder(r.Context(), r.PathValue("id"), *body.OrderIndex); err != nil {
		h.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := h.reg.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (h *Handler) handleListClients(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.reg.Clients())
}

func (h *Handler) handleAddClient(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Name == "" {
		writeError(w, http.StatusBadRequest, "client name is required")
		return
	}
	node, err := h.reg.AdmitClient(r.Context(), body.Name)
	if err != nil {
		if errors.Is(err, registry.ErrAlreadyAdmitted) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (h *Handler) handleDeleteClient(w http.ResponseWriter, r *http.Request) {
	if err := h.reg.RevokeClient(r.Context(), r.PathValue("name")); err != nil {
		h.writeRegistryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

// ---------- auth ----------

// authenticated reports whether the request carries a valid session
// token. Used for read redaction; never rejects the request.
func (h *Handler) authenticated(r *http.Request) bool {
	return h.auth.Verify(bearerToken(r))
}

// operator gates destructive routes. Until an admin password is set the
// gate is open so a fresh deployment can be bootstrapped.
func (h *Handler) operator(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.auth.Initialized(r.Context()) && !h.authenticated(r) {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (h *Handler) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"initialized": h.auth.Initialized(r.Context())})
}

func (h *Handler) handleAuthInitialize(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}
	token, err := h.auth.Initialize(r.Context(), body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAlreadyInitialized) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.log.Error("auth initialize failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to initialize")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"token": token, "success": true})
}

func (h *Handler) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Password == "" {
		writeError(w, http.StatusBadRequest, "password is required")
		return
	}
	token, err := h.auth.Login(r.Context(), body.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) || errors.Is(err, auth.ErrNotInitialized) {
			writeError(w, http.StatusUnauthorized, "invalid password")
			return
		}
		h.log.Error("auth login failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *Handler) handleAuthReset(w http.ResponseWriter, r *http.Request) {
	var body struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.OldPassword == "" || body.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "both old and new passwords are required")
		return
	}
	if err := h.auth.Reset(r.Context(), body.OldPassword, body.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidPassword) {
			writeError(w, http.StatusUnauthorized, "current password is incorrect")
			return
		}
		h.log.Error("auth reset failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ---------- helpers ----------

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header {
		return ""
	}
	return token
}

func (h *Handler) writeRegistryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, registry.ErrMalformedPayload), errors.Is(err, registry.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, registry.ErrNotAllowed):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.log.Error("registry operation failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "store unavailable")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
