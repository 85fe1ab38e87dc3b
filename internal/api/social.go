package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"

	"github.com/google/uuid"
)

// PresenceHandler returns another user's presence as the caller is
// allowed to see it, plus the conversations they are typing in that the
// caller shares. Only friends and co-participants may look.
func (a *API) PresenceHandler(w http.ResponseWriter, r *http.Request, userID string) {
	targetID := r.PathValue("id")
	if _, err := a.auth.GetUser(targetID); err != nil {
		a.writeStoreError(w, err)
		return
	}
	if !a.hub.Observes(userID, targetID) {
		a.writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	a.writeJSON(w, http.StatusOK, struct {
		Presence models.Presence `json:"presence"`
		TypingIn []string        `json:"typingIn"`
	}{
		Presence: a.presence.View(userID, targetID),
		TypingIn: a.hub.SharedTyping(userID, targetID),
	})
}

type statusRequest struct {
	Status models.UserStatus `json:"status"`
}

func (a *API) SetStatusHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.hub.SetStatus(userID, req.Status); err != nil {
		if errors.Is(err, models.ErrInvalidStatus) {
			a.writeError(w, http.StatusBadRequest, "invalid status")
			return
		}
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

type sharingRequest struct {
	ShareStatus bool `json:"shareStatus"`
}

func (a *API) SetSharingHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req sharingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	a.presence.SetSharing(userID, req.ShareStatus)
	a.writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

type friendEntry struct {
	User   models.User             `json:"user"`
	Status models.FriendshipStatus `json:"status"`
	// Incoming is true when the other user sent the request.
	Incoming bool `json:"incoming"`
}

func (a *API) ListFriendsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	friendships, err := a.storage.ListFriendships(userID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	entries := make([]friendEntry, 0, len(friendships))
	for _, f := range friendships {
		otherID := f.Other(userID)
		user, err := a.auth.GetUser(otherID)
		if err != nil {
			continue
		}
		user.Presence = a.presence.View(userID, otherID)
		entries = append(entries, friendEntry{
			User:     user,
			Status:   f.Status,
			Incoming: f.AddresseeID == userID,
		})
	}
	a.writeJSON(w, http.StatusOK, entries)
}

type friendRequest struct {
	UserID string `json:"userId"`
}

// FriendRequestHandler sends a friend request. If the other user already
// has a pending request towards the caller, the pair is accepted instead.
func (a *API) FriendRequestHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req friendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == userID {
		a.writeError(w, http.StatusBadRequest, "cannot befriend yourself")
		return
	}
	if _, err := a.auth.GetUser(req.UserID); err != nil {
		a.writeStoreError(w, err)
		return
	}

	now := time.Now().Unix()
	existing, err := a.storage.GetFriendship(userID, req.UserID)
	switch {
	case err == nil && existing.Status == models.FriendAccepted:
		a.writeError(w, http.StatusConflict, "already friends")
		return
	case err == nil && existing.Status == models.FriendBlocked:
		a.writeError(w, http.StatusForbidden, "forbidden")
		return
	case err == nil && existing.Status == models.FriendPending:
		if existing.RequesterID == userID {
			a.writeError(w, http.StatusConflict, "request already sent")
			return
		}
		// They asked first; this counts as an acceptance.
		existing.Status = models.FriendAccepted
		existing.AcceptedAt = now
		if err := a.storage.UpsertFriendship(existing); err != nil {
			a.writeStoreError(w, err)
			return
		}
		a.hub.NotifyUser(models.Notification{
			ID:        uuid.NewString(),
			UserID:    req.UserID,
			Type:      models.NotifFriendAccepted,
			SenderID:  userID,
			CreatedAt: now,
		})
		a.writeJSON(w, http.StatusOK, existing)
		return
	case err != nil && !errors.Is(err, models.ErrNotFound):
		a.writeStoreError(w, err)
		return
	}

	friendship := models.Friendship{
		RequesterID: userID,
		AddresseeID: req.UserID,
		Status:      models.FriendPending,
		CreatedAt:   now,
	}
	if err := a.storage.UpsertFriendship(friendship); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.hub.NotifyUser(models.Notification{
		ID:        uuid.NewString(),
		UserID:    req.UserID,
		Type:      models.NotifFriendRequest,
		SenderID:  userID,
		CreatedAt: now,
	})
	a.writeJSON(w, http.StatusCreated, friendship)
}

// FriendAcceptHandler accepts a pending request addressed to the caller.
func (a *API) FriendAcceptHandler(w http.ResponseWriter, r *http.Request, userID string) {
	otherID := r.PathValue("id")
	friendship, err := a.storage.GetFriendship(userID, otherID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if friendship.Status != models.FriendPending || friendship.AddresseeID != userID {
		a.writeError(w, http.StatusConflict, "no pending request")
		return
	}

	friendship.Status = models.FriendAccepted
	friendship.AcceptedAt = time.Now().Unix()
	if err := a.storage.UpsertFriendship(friendship); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.hub.NotifyUser(models.Notification{
		ID:        uuid.NewString(),
		UserID:    otherID,
		Type:      models.NotifFriendAccepted,
		SenderID:  userID,
		CreatedAt: friendship.AcceptedAt,
	})
	a.writeJSON(w, http.StatusOK, friendship)
}

// FriendBlockHandler blocks a user. A blocked pair cannot send requests
// until the block is removed via FriendDeleteHandler.
func (a *API) FriendBlockHandler(w http.ResponseWriter, r *http.Request, userID string) {
	otherID := r.PathValue("id")
	if otherID == userID {
		a.writeError(w, http.StatusBadRequest, "cannot block yourself")
		return
	}
	if _, err := a.auth.GetUser(otherID); err != nil {
		a.writeStoreError(w, err)
		return
	}

	friendship, err := a.storage.GetFriendship(userID, otherID)
	if errors.Is(err, models.ErrNotFound) {
		friendship = models.Friendship{
			RequesterID: userID,
			AddresseeID: otherID,
			CreatedAt:   time.Now().Unix(),
		}
	} else if err != nil {
		a.writeStoreError(w, err)
		return
	}

	// RequesterID records who placed the block.
	friendship.RequesterID = userID
	friendship.AddresseeID = otherID
	friendship.Status = models.FriendBlocked
	friendship.AcceptedAt = 0
	if err := a.storage.UpsertFriendship(friendship); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, friendship)
}

// FriendDeleteHandler removes a friendship or declines a pending request.
func (a *API) FriendDeleteHandler(w http.ResponseWriter, r *http.Request, userID string) {
	otherID := r.PathValue("id")
	friendship, err := a.storage.GetFriendship(userID, otherID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	// Only the blocker can lift a block.
	if friendship.Status == models.FriendBlocked && friendship.RequesterID != userID {
		a.writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if err := a.storage.DeleteFriendship(userID, otherID); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

func (a *API) ListNotificationsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 200 {
			a.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	notifications, err := a.storage.ListNotifications(userID, limit)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	a.writeJSON(w, http.StatusOK, notifications)
}

func (a *API) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request, userID string) {
	if err := a.storage.MarkNotificationRead(userID, r.PathValue("id")); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

func (a *API) MarkAllNotificationsReadHandler(w http.ResponseWriter, r *http.Request, userID string) {
	if err := a.storage.MarkAllNotificationsRead(userID); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

// PushPublicKeyHandler hands out the VAPID public key the browser needs
// to subscribe.
func (a *API) PushPublicKeyHandler(w http.ResponseWriter, r *http.Request, userID string) {
	if !a.push.Enabled() {
		a.writeError(w, http.StatusNotFound, "push notifications are not configured")
		return
	}
	a.writeJSON(w, http.StatusOK, struct {
		PublicKey string `json:"publicKey"`
	}{PublicKey: a.push.PublicKey()})
}

type pushSubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}

func (a *API) PushSubscribeHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req pushSubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.storage.UpsertPushSubscription(models.PushSubscription{
		UserID:    userID,
		Endpoint:  req.Endpoint,
		P256dh:    req.P256dh,
		Auth:      req.Auth,
		CreatedAt: time.Now().Unix(),
	}); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusCreated, models.APIResponse{Success: true})
}

type pushUnsubscribeRequest struct {
	Endpoint string `json:"endpoint"`
}

func (a *API) PushUnsubscribeHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req pushUnsubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Endpoint == "" {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.storage.DeletePushSubscription(userID, req.Endpoint); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}
