// Package handler exposes the activity engine over HTTP. Handlers decode,
// delegate, and map domain errors to status codes; all business rules live
// in the service layer.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"fieldops/internal/activity/models"
	"fieldops/internal/identity"
	"fieldops/internal/platform/transport"
	dErrors "fieldops/pkg/domain-errors"
)

// Service is the engine surface the handler depends on.
type Service interface {
	Create(ctx context.Context, req *models.CreateRequest, auth identity.Auth) (string, error)
	Update(ctx context.Context, req *models.UpdateRequest, auth identity.Auth) error
	ChangeStatus(ctx context.Context, req *models.ChangeStatusRequest, auth identity.Auth) error
	Share(ctx context.Context, req *models.ShareRequest, auth identity.Auth) error
}

// Handler serves the activity mutation routes.
type Handler struct {
	svc    Service
	logger *slog.Logger
}

// New builds a Handler.
func New(svc Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the mutation endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/activities", h.create)
	r.Patch("/activities/{activityID}", h.update)
	r.Post("/activities/{activityID}/status", h.changeStatus)
	r.Post("/activities/{activityID}/share", h.share)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req models.CreateRequest
	if !decode(w, r, &req) {
		return
	}
	id, err := h.svc.Create(r.Context(), &req, identity.FromContext(r.Context()))
	if err != nil {
		h.fail(r, w, "create", err)
		return
	}
	transport.WriteJSON(w, http.StatusCreated, map[string]string{"activityId": id})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateRequest
	if !decode(w, r, &req) {
		return
	}
	req.ActivityID = chi.URLParam(r, "activityID")
	if err := h.svc.Update(r.Context(), &req, identity.FromContext(r.Context())); err != nil {
		h.fail(r, w, "update", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]string{"activityId": req.ActivityID})
}

func (h *Handler) changeStatus(w http.ResponseWriter, r *http.Request) {
	var req models.ChangeStatusRequest
	if !decode(w, r, &req) {
		return
	}
	req.ActivityID = chi.URLParam(r, "activityID")
	if err := h.svc.ChangeStatus(r.Context(), &req, identity.FromContext(r.Context())); err != nil {
		h.fail(r, w, "changeStatus", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]string{
		"activityId": req.ActivityID,
		"status":     string(req.NewStatus),
	})
}

func (h *Handler) share(w http.ResponseWriter, r *http.Request) {
	var req models.ShareRequest
	if !decode(w, r, &req) {
		return
	}
	req.ActivityID = chi.URLParam(r, "activityID")
	if err := h.svc.Share(r.Context(), &req, identity.FromContext(r.Context())); err != nil {
		h.fail(r, w, "share", err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, map[string]string{"activityId": req.ActivityID})
}

func (h *Handler) fail(r *http.Request, w http.ResponseWriter, op string, err error) {
	code := dErrors.CodeOf(err)
	if code == dErrors.CodeStore || code == dErrors.CodeInternal {
		h.logger.ErrorContext(r.Context(), "activity mutation failed", "op", op, "error", err)
	} else {
		h.logger.InfoContext(r.Context(), "activity mutation rejected", "op", op, "code", code, "error", err)
	}
	transport.WriteError(w, err)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		transport.WriteError(w, dErrors.Wrap(err, dErrors.CodeValidation, "request body is not valid JSON"))
		return false
	}
	return true
}
