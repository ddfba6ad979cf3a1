package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/nominliyanage/camera-shop-back-end/internal/mail"
)

const maxJSONBodyBytes = 1 << 20

// Notifier queues a transactional email without blocking the request.
type Notifier interface {
	Enqueue(msg mail.Message)
}

type Handler struct {
	service  *Service
	notifier Notifier
}

func NewHandler(service *Service, notifier Notifier) *Handler {
	return &Handler{service: service, notifier: notifier}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Email    string `json:"email"`
	Image    string `json:"image"`
	Status   string `json:"status"`
}

type updateRequest struct {
	Email       string `json:"email"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	Image       string `json:"image"`
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
	Status      string `json:"status"`
}

type otpRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	OTP         string `json:"otp"`
	NewPassword string `json:"newPassword"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.Username) == "" || strings.TrimSpace(body.Password) == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	tokens, user, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.Is(err, ErrAccountInactive):
			writeError(w, http.StatusUnauthorized, "account is inactive")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to login")
		}
		return
	}

	if user.Email != "" {
		h.notifier.Enqueue(mail.Message{
			To:      user.Email,
			Subject: "Login Notification",
			Text:    fmt.Sprintf("Hi %s, you have successfully logged in.", user.Username),
			HTML:    fmt.Sprintf("<p>Hi <strong>%s</strong>, you have successfully logged in.</p>", user.Username),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accessToken":  tokens.AccessToken,
		"refreshToken": tokens.RefreshToken,
		"user":         user.Public(),
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.Username) == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	user, err := h.service.Register(r.Context(), RegisterInput{
		Username: body.Username,
		Password: body.Password,
		Role:     body.Role,
		Email:    body.Email,
		Image:    body.Image,
		Status:   body.Status,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateUsername):
			writeError(w, http.StatusBadRequest, "username already exists")
		case errors.Is(err, ErrInvalidRole):
			writeError(w, http.StatusBadRequest, "invalid role")
		case errors.Is(err, ErrInvalidStatus):
			writeError(w, http.StatusBadRequest, "invalid status")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to register user")
		}
		return
	}

	if user.Email != "" {
		h.notifier.Enqueue(mail.Message{
			To:      user.Email,
			Subject: "Welcome to Our Platform",
			Text:    fmt.Sprintf("Hi %s, welcome to our platform!", user.Username),
			HTML:    fmt.Sprintf("<p>Hi <strong>%s</strong>, welcome to our platform!</p>", user.Username),
		})
	}

	writeJSON(w, http.StatusCreated, user.Public())
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	var body updateRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	user, err := h.service.UpdateUser(r.Context(), id, UpdateInput{
		Email:       body.Email,
		Username:    body.Username,
		Role:        body.Role,
		Image:       body.Image,
		OldPassword: body.OldPassword,
		NewPassword: body.NewPassword,
		Status:      body.Status,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, ErrInvalidOldPassword):
			writeError(w, http.StatusBadRequest, "old password is incorrect")
		case errors.Is(err, ErrInvalidRole):
			writeError(w, http.StatusBadRequest, "invalid role")
		case errors.Is(err, ErrInvalidStatus):
			writeError(w, http.StatusBadRequest, "invalid status")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to update user")
		}
		return
	}

	if user.Email != "" {
		h.notifier.Enqueue(mail.Message{
			To:      user.Email,
			Subject: "Profile Update Notification",
			Text:    fmt.Sprintf("Hi %s, your profile has been successfully updated.", user.Username),
			HTML:    fmt.Sprintf("<p>Hi <strong>%s</strong>, your profile has been successfully updated.</p>", user.Username),
		})
	}

	writeJSON(w, http.StatusOK, user.Public())
}

func (h *Handler) ListAll(w http.ResponseWriter, r *http.Request) {
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *Handler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "user id is required")
		return
	}

	user, newStatus, err := h.service.ToggleStatus(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrUserNotFound):
			writeError(w, http.StatusNotFound, "user not found")
		case errors.Is(err, ErrMissingEmail):
			writeError(w, http.StatusBadRequest, "user email is not defined")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to update user status")
		}
		return
	}

	subject := "Account Deactivated"
	if newStatus == StatusActive {
		subject = "Account Activated"
	}
	h.notifier.Enqueue(mail.Message{
		To:      user.Email,
		Subject: subject,
		Text:    fmt.Sprintf("Your account status has been updated to %s.", newStatus),
		HTML:    fmt.Sprintf("<p>Your account status has been updated to <strong>%s</strong>.</p>", newStatus),
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User status updated successfully",
		"status":  newStatus,
	})
}

func (h *Handler) SendOTP(w http.ResponseWriter, r *http.Request) {
	var body otpRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if strings.TrimSpace(body.Email) == "" {
		writeError(w, http.StatusBadRequest, "email is required")
		return
	}

	user, code, err := h.service.SendOTP(r.Context(), body.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			writeError(w, http.StatusNotFound, "user not found")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to send otp")
		return
	}

	h.notifier.Enqueue(mail.Message{
		To:      user.Email,
		Subject: "Your OTP Code",
		Text:    fmt.Sprintf("Your OTP code is %s. It is valid for 5 minutes.", code),
	})

	writeJSON(w, http.StatusOK, map[string]string{"message": "OTP sent successfully"})
}

func (h *Handler) ResetPasswordWithOTP(w http.ResponseWriter, r *http.Request) {
	var body resetPasswordRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if body.Email == "" || body.OTP == "" || body.NewPassword == "" {
		writeError(w, http.StatusBadRequest, "email, otp and newPassword are required")
		return
	}

	err := h.service.ResetPasswordWithOTP(r.Context(), body.Email, body.OTP, body.NewPassword)
	if err != nil {
		if errors.Is(err, ErrInvalidOTP) {
			writeError(w, http.StatusUnauthorized, "invalid or expired otp")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to reset password")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password reset successfully"})
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	tokens, err := h.service.Refresh(r.Context(), body.RefreshToken)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRefreshToken):
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
		case errors.Is(err, ErrAccountInactive):
			writeError(w, http.StatusUnauthorized, "account is inactive")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to refresh token")
		}
		return
	}

	writeJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var body refreshRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	if err := h.service.Logout(r.Context(), body.RefreshToken); err != nil {
		if errors.Is(err, ErrInvalidRefreshToken) {
			writeError(w, http.StatusUnauthorized, "invalid refresh token")
			return
		}
		sentry.CaptureException(err)
		writeError(w, http.StatusInternalServerError, "failed to logout")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
