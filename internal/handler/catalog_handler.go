package handler

import (
	"net/http"

	"geotech-lab-api/internal/service"
)

type CatalogHandler struct {
	service *service.CatalogService
}

func NewCatalogHandler(service *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{service: service}
}

// List is public, so retired services are never shown here.
func (h *CatalogHandler) List(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.List(r.Context(), false)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "", services, nil)
}
