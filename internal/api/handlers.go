package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/auth"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/content"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/filestore"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/presence"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/push"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/storage"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/ws"
)

type API struct {
	auth     *auth.AuthService
	hub      *ws.Hub
	presence *presence.Store
	storage  *storage.BboltStorage
	files    filestore.FileStore
	push     *push.Service

	maxUploadBytes int64
	log            *slog.Logger
}

func New(authService *auth.AuthService, hub *ws.Hub, presenceStore *presence.Store, store *storage.BboltStorage, files filestore.FileStore, pushService *push.Service, maxUploadBytes int64, log *slog.Logger) *API {
	return &API{
		auth:           authService,
		hub:            hub,
		presence:       presenceStore,
		storage:        store,
		files:          files,
		push:           pushService,
		maxUploadBytes: maxUploadBytes,
		log:            log,
	}
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Error("failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, message string) {
	a.writeJSON(w, status, models.APIResponse{Success: false, Message: message})
}

// writeStoreError maps storage errors to HTTP statuses.
func (a *API) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		a.writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrForbidden):
		a.writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, models.ErrConflict):
		a.writeError(w, http.StatusConflict, "conflict")
	default:
		a.log.Error("internal error", "error", err)
		a.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (a *API) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	loginResp, _ := a.auth.Login(req)
	if !loginResp.Success {
		a.writeJSON(w, http.StatusUnauthorized, loginResp)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    loginResp.Token,
		HttpOnly: true,
		Path:     "/",
		Expires:  time.Unix(loginResp.TokenExpiry, 0),
	})

	a.writeJSON(w, http.StatusOK, loginResp)
}

func (a *API) LogoffHandler(w http.ResponseWriter, r *http.Request) {
	if token := getToken(r); token != "" {
		_ = a.auth.Logoff(token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})

	w.WriteHeader(http.StatusOK)
}

func (a *API) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req auth.RegistrationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := a.auth.Register(req); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a.writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

// MeHandler returns the calling user's own record with their raw,
// unfiltered presence.
func (a *API) MeHandler(w http.ResponseWriter, r *http.Request, userID string) {
	user, err := a.auth.GetUser(userID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	user.Presence = a.presence.Get(userID)
	a.writeJSON(w, http.StatusOK, user)
}

// UsersHandler lists active users. Presence is filtered through the
// caller's view, so opted-out users read as offline.
func (a *API) UsersHandler(w http.ResponseWriter, r *http.Request, userID string) {
	users := a.auth.GetUsers()
	for i := range users {
		users[i].Presence = a.presence.View(userID, users[i].ID)
	}
	a.writeJSON(w, http.StatusOK, users)
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

func (a *API) ChangePasswordHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := a.auth.GetUser(userID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if err := a.auth.ChangePassword(user.UserName, req.OldPassword, req.NewPassword); err != nil {
		a.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

type updateProfileRequest struct {
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl"`
}

func (a *API) UpdateProfileHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req updateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	displayName := content.Sanitize(req.DisplayName)
	if err := a.auth.UpdateProfile(userID, displayName, req.AvatarURL); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}
