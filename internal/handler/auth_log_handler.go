package handler

import (
	"net/http"
	"strings"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/internal/service"
)

type AuthLogHandler struct {
	service *service.AuthLogService
}

func NewAuthLogHandler(service *service.AuthLogService) *AuthLogHandler {
	return &AuthLogHandler{service: service}
}

func (h *AuthLogHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	items, meta, err := h.service.Query(r.Context(), model.AuthLogQuery{
		EventType: strings.TrimSpace(query.Get("eventType")),
		UserID:    strings.TrimSpace(query.Get("userId")),
		Email:     strings.TrimSpace(query.Get("email")),
		Success:   strings.TrimSpace(query.Get("success")),
		From:      strings.TrimSpace(query.Get("from")),
		To:        strings.TrimSpace(query.Get("to")),
		Page:      parseIntOrDefault(query.Get("page"), 1),
		Limit:     parseIntOrDefault(query.Get("limit"), 50),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "", items, meta)
}
