package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/auth"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/ws"
)

// AdminHandler serves the operator endpoints. They live on a separate
// listener and carry no user authentication of their own.
type AdminHandler struct {
	authService *auth.AuthService
	hub         *ws.Hub
	baseURL     string
	log         *slog.Logger
}

func NewAdminHandler(authService *auth.AuthService, hub *ws.Hub, baseURL string, log *slog.Logger) *AdminHandler {
	return &AdminHandler{authService: authService, hub: hub, baseURL: baseURL, log: log}
}

type AddUserRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
}

type AddUserResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Username  string `json:"username,omitempty"`
	SetupLink string `json:"setupLink,omitempty"`
}

func (h *AdminHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("failed to write response", "error", err)
	}
}

func (h *AdminHandler) setupLink(token string) string {
	base := strings.TrimRight(h.baseURL, "/")
	return fmt.Sprintf("%s/register?token=%s", base, url.QueryEscape(token))
}

// AddUserHandler provisions an account and returns the one-time setup
// link the new user completes registration with.
func (h *AdminHandler) AddUserHandler(w http.ResponseWriter, r *http.Request) {
	var req AddUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	displayName := req.DisplayName
	if displayName == "" {
		displayName = req.Username
	}

	_, token, err := h.authService.AddUser(req.Username, displayName)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, auth.ErrUserExists) {
			status = http.StatusConflict
		}
		h.writeJSON(w, status, AddUserResponse{
			Success: false,
			Message: fmt.Sprintf("failed to create user: %v", err),
		})
		return
	}

	h.writeJSON(w, http.StatusOK, AddUserResponse{
		Success:   true,
		Username:  req.Username,
		SetupLink: h.setupLink(token),
	})
}

func (h *AdminHandler) DeleteUserHandler(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	// Resolve the id before the account stops being listable.
	userID := h.userIDFor(username)

	if err := h.authService.DeleteUser(username); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.writeJSON(w, status, models.APIResponse{
			Success: false,
			Message: fmt.Sprintf("failed to delete user: %v", err),
		})
		return
	}

	h.hub.DisconnectUser(userID)
	h.writeJSON(w, http.StatusOK, models.APIResponse{
		Success: true,
		Message: fmt.Sprintf("user %s deleted", username),
	})
}

// ResetUserPasswordHandler invalidates the account's password and
// sessions and hands back a fresh setup link.
func (h *AdminHandler) ResetUserPasswordHandler(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		http.Error(w, "username is required", http.StatusBadRequest)
		return
	}

	userID := h.userIDFor(username)

	token, err := h.authService.ResetPassword(username)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, models.ErrNotFound) {
			status = http.StatusNotFound
		}
		h.writeJSON(w, status, models.APIResponse{
			Success: false,
			Message: fmt.Sprintf("failed to reset password: %v", err),
		})
		return
	}

	h.hub.DisconnectUser(userID)
	h.writeJSON(w, http.StatusOK, AddUserResponse{
		Success:   true,
		Username:  username,
		SetupLink: h.setupLink(token),
	})
}

func (h *AdminHandler) userIDFor(username string) string {
	for _, u := range h.authService.GetUsers() {
		if u.UserName == username {
			return u.ID
		}
	}
	return ""
}
