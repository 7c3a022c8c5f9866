package handler

import (
	"net/http"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/internal/service"
)

type ApiqueHandler struct {
	service *service.ApiqueService
}

func NewApiqueHandler(service *service.ApiqueService) *ApiqueHandler {
	return &ApiqueHandler{service: service}
}

func (h *ApiqueHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	projectID, err := pathID(r, "projectID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	apiques, err := h.service.ListByProject(r.Context(), projectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "", apiques, nil)
}

func (h *ApiqueHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	apique, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "", apique, nil)
}

func (h *ApiqueHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	projectID, err := pathID(r, "projectID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.CreateApiqueRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, r, err)
		return
	}

	apique, err := h.service.Create(r.Context(), caller, projectID, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusCreated, "apique created", apique, nil)
}

// Update leaves layers alone unless the body carries a layers array; an
// empty array clears them.
func (h *ApiqueHandler) Update(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.UpdateApiqueRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, r, err)
		return
	}

	apique, err := h.service.Update(r.Context(), caller, id, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "apique updated", apique, nil)
}

func (h *ApiqueHandler) Delete(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.Delete(r.Context(), caller, id); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "apique deleted", nil, nil)
}
