package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"geotech-lab-api/internal/middleware"
	"geotech-lab-api/internal/model"
	"geotech-lab-api/internal/service"
	"geotech-lab-api/pkg/apierror"
)

type AuthHandler struct {
	service    *service.AuthService
	trustProxy bool
	// exposeResetToken returns reset tokens in the response body, for
	// development setups without a mailer.
	exposeResetToken bool
}

func NewAuthHandler(service *service.AuthService, trustProxy bool, exposeResetToken bool) *AuthHandler {
	return &AuthHandler{service: service, trustProxy: trustProxy, exposeResetToken: exposeResetToken}
}

func (h *AuthHandler) meta(r *http.Request, deviceInfo string) model.ClientMeta {
	return middleware.ClientMeta(r, h.trustProxy, deviceInfo)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, r, err)
		return
	}

	tokens, err := h.service.Login(r.Context(), payload, h.meta(r, payload.DeviceInfo))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "login successful", tokens, nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, r, err)
		return
	}

	payload.RefreshToken = strings.TrimSpace(payload.RefreshToken)
	if payload.RefreshToken == "" {
		writeError(w, r, apierror.Validation("refreshToken is required", "refreshToken"))
		return
	}

	tokens, err := h.service.Refresh(r.Context(), payload, h.meta(r, payload.DeviceInfo))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "token refreshed", tokens, nil)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.LogoutRequest
	if err := decodeJSON(w, r, &payload, true); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.Logout(r.Context(), caller, payload.LogoutAllDevices, h.meta(r, "")); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "logged out", map[string]any{"loggedOut": true, "allDevices": payload.LogoutAllDevices}, nil)
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.service.Me(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "", user, nil)
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.ChangePasswordRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.ChangePassword(r.Context(), caller, payload, h.meta(r, "")); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "password changed, please sign in again", nil, nil)
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ForgotPasswordRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, r, err)
		return
	}

	token, err := h.service.ForgotPassword(r.Context(), payload, h.meta(r, ""))
	if err != nil {
		writeError(w, r, err)
		return
	}

	var data any
	if h.exposeResetToken && token != "" {
		data = map[string]string{"resetToken": token}
	}
	writeSuccess(w, r, http.StatusOK, "if the account exists, a reset link has been sent", data, nil)
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ResetPasswordRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.service.ResetPassword(r.Context(), payload, h.meta(r, "")); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "password reset", nil, nil)
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var payload model.RegisterRequest
	if err := decodeJSON(w, r, &payload, false); err != nil {
		writeError(w, r, err)
		return
	}

	user, err := h.service.Register(r.Context(), payload, caller, h.meta(r, ""))
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusCreated, "user registered", user, nil)
}

func (h *AuthHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), caller)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "", sessions, nil)
}

func (h *AuthHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	caller, err := identity(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sessionID := strings.TrimSpace(chi.URLParam(r, "id"))
	if err := h.service.RevokeSession(r.Context(), caller, sessionID, h.meta(r, "")); err != nil {
		writeError(w, r, err)
		return
	}

	writeSuccess(w, r, http.StatusOK, "session revoked", nil, nil)
}
