package handler

import (
	"net/http"
	"strings"

	"geotech-lab-api/internal/middleware"
	"geotech-lab-api/internal/model"
	"geotech-lab-api/internal/service"
)

type UserHandler struct {
	service    *service.UserService
	trustProxy bool
}

func NewUserHandler(service *service.UserService, trustProxy bool) *UserHandler {
	return &UserHandler{service: service, trustProxy: trustProxy}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := model.UserFilter{
		Role:   strings.TrimSpace(query.Get("role")),
		Search: strings.TrimSpace(query.Get("search")),
	}

	users, meta, err := h.service.List(r.Context(), filter, pagination(r))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "", users, meta)
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "", user, nil)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
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

	var patch model.UserPatch
	if err := decodeJSON(w, r, &patch, false); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.service.Update(r.Context(), caller, id, patch)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "user updated", user, nil)
}

func (h *UserHandler) Unlock(w http.ResponseWriter, r *http.Request) {
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

	user, err := h.service.Unlock(r.Context(), caller, id, middleware.ClientMeta(r, h.trustProxy, ""))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "account unlocked", user, nil)
}
