package handler

import (
	"net/http"
	"strings"

	"geotech-lab-api/internal/model"
	"geotech-lab-api/internal/service"
)

type ExpenseHandler struct {
	service *service.ExpenseService
}

func NewExpenseHandler(service *service.ExpenseService) *ExpenseHandler {
	return &ExpenseHandler{service: service}
}

func (h *ExpenseHandler) List(w http.ResponseWriter, r *http.Request) {
	filter := model.ExpenseFilter{Year: strings.TrimSpace(r.URL.Query().Get("year"))}

	expenses, meta, err := h.service.List(r.Context(), filter, pagination(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "", expenses, meta)
}

func (h *ExpenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	expense, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "", expense, nil)
}

func (h *ExpenseHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateExpenseRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, r, err)
		return
	}

	expense, err := h.service.Create(r.Context(), payload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusCreated, "expense recorded", expense, nil)
}

func (h *ExpenseHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.UpdateExpenseRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, r, err)
		return
	}

	expense, err := h.service.Update(r.Context(), id, payload)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "expense updated", expense, nil)
}

func (h *ExpenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "expense deleted", nil, nil)
}
