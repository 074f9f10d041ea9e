package handler

import (
	sessiondomain "stocktrack/backend/internal/session/domain"
	userdomain "stocktrack/backend/internal/user/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Phone    string `json:"phone,omitempty"`
}

type registerResponse struct {
	User userdomain.PublicUser `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Force    bool   `json:"force,omitempty"`
}

// sessionResponse is the shape returned by every path that issues a session.
type sessionResponse struct {
	Token   string                      `json:"token"`
	User    userdomain.PublicUser       `json:"user"`
	Session sessiondomain.PublicSession `json:"session"`
}

// challengeResponse is returned with 202 when two-factor verification is
// pending. The offline PIN rides along so the client can complete login
// without connectivity later.
type challengeResponse struct {
	TwoFactorRequired bool   `json:"two_factor_required"`
	TempToken         string `json:"temp_token"`
	OfflinePin        string `json:"offline_pin"`
}

// conflictResponse is returned with 409 when an active session already
// exists. The client may retry the login with force=true.
type conflictResponse struct {
	Error           string                      `json:"error"`
	ExistingSession sessiondomain.PublicSession `json:"existing_session"`
}

type verifyOTPRequest struct {
	TempToken string `json:"temp_token"`
	OTP       string `json:"otp"`
}

type verifyOfflineRequest struct {
	Email      string `json:"email"`
	OfflinePin string `json:"offline_pin"`
}

type listSessionsResponse struct {
	Sessions []sessiondomain.PublicSession `json:"sessions"`
}

type terminateOthersResponse struct {
	Terminated int64 `json:"terminated"`
}

type offlinePinResponse struct {
	OfflinePin string `json:"offline_pin"`
}

type resetRequestRequest struct {
	Email string `json:"email"`
}

type resetConfirmRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

type recoverUsernameRequest struct {
	Phone string `json:"phone"`
}

// genericMessage is the enumeration-safe acknowledgement for reset and
// recovery requests: identical whether or not the account exists.
type genericMessage struct {
	Message string `json:"message"`
}
