package rest

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "homeguard-backend/pkg/errors"
)

type handlers struct {
	services Services
	logger   *zap.Logger
}

func (h *handlers) listCameras(w http.ResponseWriter, r *http.Request) {
	cameras, err := h.services.Cameras.List(r.Context(), chi.URLParam(r, "householdID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cameras": cameras})
}

func (h *handlers) getCamera(w http.ResponseWriter, r *http.Request) {
	camera, err := h.services.Cameras.Get(r.Context(), chi.URLParam(r, "householdID"), chi.URLParam(r, "cameraID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, camera)
}

func (h *handlers) updateCamera(w http.ResponseWriter, r *http.Request) {
	var req updateCameraRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	camera, err := h.services.Cameras.Update(r.Context(),
		chi.URLParam(r, "householdID"), chi.URLParam(r, "cameraID"), req.toDomain())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, camera)
}

func (h *handlers) recentEvents(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, r, h.logger, apperrors.NewValidation("limit must be a positive integer"))
			return
		}
		limit = n
	}
	events, err := h.services.Events.Recent(r.Context(), chi.URLParam(r, "householdID"), limit)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (h *handlers) createEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	event, alert, err := h.services.Events.Create(r.Context(), req.toDomain(chi.URLParam(r, "householdID")))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, createEventResponse{Event: event, Alert: alert})
}

func (h *handlers) eventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.services.Events.Stats(r.Context(), chi.URLParam(r, "householdID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *handlers) activeAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := h.services.Alerts.Active(r.Context(), chi.URLParam(r, "householdID"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func (h *handlers) acknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	var req acknowledgeRequest
	if err := decode(w, r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	alert, err := h.services.Alerts.Acknowledge(r.Context(),
		chi.URLParam(r, "householdID"), chi.URLParam(r, "alertID"), req.AcknowledgedBy)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, alert)
}

func (h *handlers) systemStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.services.Status.Status(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, status)
}
