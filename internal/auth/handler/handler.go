// Package handler exposes the auth orchestrator over HTTP. Every operation
// takes an explicit request struct validated at the boundary and returns an
// explicit response struct; service sentinels map to status codes in one
// place.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"stocktrack/backend/internal/auth/service"
	sessiondomain "stocktrack/backend/internal/session/domain"
)

// maxBodySize caps auth request bodies. Credentials and tokens are small;
// anything bigger is not a legitimate request.
const maxBodySize = 1 << 16

// Handler holds the dependencies needed by the auth HTTP handlers.
type Handler struct {
	svc       *service.AuthService
	sessions  SessionReader
	validator TokenValidator
	logger    *slog.Logger
}

// New returns a Handler. logger may be nil; a no-op logger is then used.
func New(svc *service.AuthService, sessions SessionReader, validator TokenValidator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{svc: svc, sessions: sessions, validator: validator, logger: logger}
}

// Routes returns a chi.Router with the auth API mounted.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(WithClientIP)

	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Post("/verify-otp", h.VerifyOTP)
	r.Post("/verify-offline", h.VerifyOffline)
	r.Post("/password-reset/request", h.RequestPasswordReset)
	r.Post("/password-reset/confirm", h.ConfirmPasswordReset)
	r.Post("/recover-username", h.RecoverUsername)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireSession)
		r.Post("/logout", h.Logout)
		r.Post("/refresh", h.Refresh)
		r.Get("/sessions", h.ListSessions)
		r.Delete("/sessions/{sessionID}", h.TerminateSession)
		r.Delete("/sessions", h.TerminateOtherSessions)
		r.Post("/offline-pin", h.RegenerateOfflinePin)
	})

	return r
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[registerRequest](w, r)
	if !ok {
		return
	}
	user, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Phone)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, registerResponse{User: *user})
}

// Login handles POST /api/auth/login. Responds 200 with a session, 202 with a
// pending two-factor challenge, 401 on bad credentials, or 409 when an active
// session exists and force was not set.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[loginRequest](w, r)
	if !ok {
		return
	}
	res, err := h.svc.Login(r.Context(), req.Email, req.Password, req.Force, h.deviceContext(r))
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	if res.TwoFactorRequired {
		writeJSON(w, http.StatusAccepted, challengeResponse{
			TwoFactorRequired: true,
			TempToken:         res.TempToken,
			OfflinePin:        res.OfflinePin,
		})
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:   res.Session.Token,
		User:    res.Session.User,
		Session: res.Session.Session,
	})
}

// VerifyOTP handles POST /api/auth/verify-otp.
func (h *Handler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[verifyOTPRequest](w, r)
	if !ok {
		return
	}
	res, err := h.svc.VerifyTwoFactor(r.Context(), req.TempToken, req.OTP, h.deviceContext(r))
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: res.Token, User: res.User, Session: res.Session})
}

// VerifyOffline handles POST /api/auth/verify-offline.
func (h *Handler) VerifyOffline(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[verifyOfflineRequest](w, r)
	if !ok {
		return
	}
	res, err := h.svc.VerifyOffline(r.Context(), req.Email, req.OfflinePin, h.deviceContext(r))
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: res.Token, User: res.User, Session: res.Session})
}

// Logout handles POST /api/auth/logout. Idempotent.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	sessionID, _ := SessionID(r.Context())
	if err := h.svc.Logout(r.Context(), userID, sessionID); err != nil {
		h.mapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Refresh handles POST /api/auth/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	sessionID, _ := SessionID(r.Context())
	res, err := h.svc.Refresh(r.Context(), userID, sessionID)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Token: res.Token, User: res.User, Session: res.Session})
}

// ListSessions handles GET /api/auth/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	sessions, err := h.svc.ListSessions(r.Context(), userID)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listSessionsResponse{Sessions: sessions})
}

// TerminateSession handles DELETE /api/auth/sessions/{sessionID}.
func (h *Handler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	if err := h.svc.TerminateSession(r.Context(), userID, sessionID); err != nil {
		h.mapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// TerminateOtherSessions handles DELETE /api/auth/sessions.
func (h *Handler) TerminateOtherSessions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	sessionID, _ := SessionID(r.Context())
	n, err := h.svc.TerminateOtherSessions(r.Context(), userID, sessionID)
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, terminateOthersResponse{Terminated: n})
}

// RegenerateOfflinePin handles POST /api/auth/offline-pin.
func (h *Handler) RegenerateOfflinePin(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserID(r.Context())
	pin, err := h.svc.RegenerateOfflinePin(r.Context(), userID, h.deviceContext(r))
	if err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, offlinePinResponse{OfflinePin: pin})
}

// resetAck is the response for both reset-request and username-recovery,
// identical regardless of account existence.
const resetAck = "if the account exists, instructions were sent"

// RequestPasswordReset handles POST /api/auth/password-reset/request.
func (h *Handler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[resetRequestRequest](w, r)
	if !ok {
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email, h.deviceContext(r)); err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, genericMessage{Message: resetAck})
}

// ConfirmPasswordReset handles POST /api/auth/password-reset/confirm.
func (h *Handler) ConfirmPasswordReset(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[resetConfirmRequest](w, r)
	if !ok {
		return
	}
	if err := h.svc.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword); err != nil {
		h.mapError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RecoverUsername handles POST /api/auth/recover-username.
func (h *Handler) RecoverUsername(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[recoverUsernameRequest](w, r)
	if !ok {
		return
	}
	if err := h.svc.RecoverUsername(r.Context(), req.Phone); err != nil {
		h.mapError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, genericMessage{Message: resetAck})
}

// deviceContext captures request metadata for session and token issuance.
// Geo comes from edge-provided headers when the deployment sets them.
func (h *Handler) deviceContext(r *http.Request) service.DeviceContext {
	return service.DeviceContext{
		DeviceInfo: r.UserAgent(),
		IPAddress:  extractClientIP(r),
		Geo: sessiondomain.Geo{
			City:    r.Header.Get("X-Geo-City"),
			Country: r.Header.Get("X-Geo-Country"),
		},
	}
}

// mapError converts service sentinels to HTTP responses. Anything unmatched
// is a system error: logged with detail, surfaced generically.
func (h *Handler) mapError(w http.ResponseWriter, r *http.Request, err error) {
	var conflict *service.ActiveSessionError
	switch {
	case errors.As(err, &conflict):
		writeJSON(w, http.StatusConflict, conflictResponse{
			Error:           conflict.Error(),
			ExistingSession: conflict.Existing,
		})
	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrInvalidOrExpiredToken):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrEmailAlreadyRegistered):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	default:
		h.logger.Error("auth request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON decodes the request body into T, rejecting oversized or
// malformed payloads with 400.
func decodeJSON[T any](w http.ResponseWriter, r *http.Request) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return v, false
	}
	return v, true
}
