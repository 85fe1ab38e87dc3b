package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/content"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/models"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/storage"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/ws"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
)

type createConversationRequest struct {
	Name           string   `json:"name"`
	IsGroup        bool     `json:"isGroup"`
	ParticipantIDs []string `json:"participantIds"`
}

func (a *API) CreateConversationHandler(w http.ResponseWriter, r *http.Request, userID string) {
	var req createConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := time.Now().UnixNano()
	conv := models.Conversation{
		ID:        uuid.NewString(),
		Name:      content.Sanitize(req.Name),
		IsGroup:   req.IsGroup,
		CreatedAt: now,
	}

	if !req.IsGroup {
		if len(req.ParticipantIDs) != 1 || req.ParticipantIDs[0] == userID {
			a.writeError(w, http.StatusBadRequest, "direct conversation needs exactly one other participant")
			return
		}
		if _, err := a.auth.GetUser(req.ParticipantIDs[0]); err != nil {
			a.writeStoreError(w, err)
			return
		}
		existing, err := a.storage.CreateDirectConversation(conv, userID, req.ParticipantIDs[0])
		if err != nil {
			a.writeStoreError(w, err)
			return
		}
		a.writeJSON(w, http.StatusOK, existing)
		return
	}

	if err := a.storage.UpsertConversation(conv); err != nil {
		a.writeStoreError(w, err)
		return
	}
	// The creator is the group admin.
	if err := a.storage.UpsertParticipant(models.Participant{
		ConversationID: conv.ID,
		UserID:         userID,
		IsAdmin:        true,
		JoinedAt:       now,
	}); err != nil {
		a.writeStoreError(w, err)
		return
	}
	for _, participantID := range req.ParticipantIDs {
		if participantID == userID {
			continue
		}
		if _, err := a.auth.GetUser(participantID); err != nil {
			continue
		}
		if err := a.storage.UpsertParticipant(models.Participant{
			ConversationID: conv.ID,
			UserID:         participantID,
			JoinedAt:       now,
		}); err != nil {
			a.writeStoreError(w, err)
			return
		}
		a.hub.HandleParticipantAdded(conv.ID, participantID)
	}

	a.writeJSON(w, http.StatusCreated, conv)
}

func (a *API) ListConversationsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	conversations, err := a.storage.ListConversationsForUser(userID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if conversations == nil {
		conversations = []models.Conversation{}
	}
	a.writeJSON(w, http.StatusOK, conversations)
}

// requireParticipant loads the conversation and verifies the caller is
// an active member.
func (a *API) requireParticipant(conversationID, userID string) (models.Conversation, models.Participant, error) {
	conv, err := a.storage.GetConversation(conversationID)
	if err != nil {
		return models.Conversation{}, models.Participant{}, err
	}
	p, err := a.storage.GetParticipant(conversationID, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.Conversation{}, models.Participant{}, models.ErrForbidden
		}
		return models.Conversation{}, models.Participant{}, err
	}
	if !p.Active() {
		return models.Conversation{}, models.Participant{}, models.ErrForbidden
	}
	return conv, p, nil
}

func (a *API) GetConversationHandler(w http.ResponseWriter, r *http.Request, userID string) {
	conv, _, err := a.requireParticipant(r.PathValue("id"), userID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, conv)
}

type updateConversationRequest struct {
	Name       *string `json:"name"`
	IsArchived *bool   `json:"isArchived"`
	IsPinned   *bool   `json:"isPinned"`
}

func (a *API) UpdateConversationHandler(w http.ResponseWriter, r *http.Request, userID string) {
	conv, p, err := a.requireParticipant(r.PathValue("id"), userID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	var req updateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name != nil {
		// Renaming a group is an admin action.
		if conv.IsGroup && !p.IsAdmin {
			a.writeError(w, http.StatusForbidden, "forbidden")
			return
		}
		conv.Name = content.Sanitize(*req.Name)
	}
	if req.IsArchived != nil {
		conv.IsArchived = *req.IsArchived
	}
	if req.IsPinned != nil {
		conv.IsPinned = *req.IsPinned
	}

	if err := a.storage.UpsertConversation(conv); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.hub.BroadcastToRoom(conv.ID, ws.ServerEvent{Event: ws.EventConversationUpdated, Data: conv}, nil)
	a.writeJSON(w, http.StatusOK, conv)
}

// ListMessagesHandler pages through a conversation's messages, newest
// first. The before parameter is the createdAt cursor of the oldest
// message the client already has.
func (a *API) ListMessagesHandler(w http.ResponseWriter, r *http.Request, userID string) {
	conversationID := r.PathValue("id")
	if _, _, err := a.requireParticipant(conversationID, userID); err != nil {
		a.writeStoreError(w, err)
		return
	}

	var before int64
	if v := r.URL.Query().Get("before"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		before = parsed
	}
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 || parsed > 200 {
			a.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}

	messages, err := a.storage.ListMessages(conversationID, before, limit)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}
	for i := range messages {
		a.renderMessage(&messages[i])
	}
	a.writeJSON(w, http.StatusOK, messages)
}

type createMessageRequest struct {
	Content  string `json:"content"`
	ParentID string `json:"parentId"`
}

func (a *API) CreateMessageHandler(w http.ResponseWriter, r *http.Request, userID string) {
	conversationID := r.PathValue("id")
	if _, _, err := a.requireParticipant(conversationID, userID); err != nil {
		a.writeStoreError(w, err)
		return
	}

	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	message := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       userID,
		Kind:           models.MessageText,
		Content:        content.Sanitize(req.Content),
		ParentID:       req.ParentID,
		CreatedAt:      time.Now().UnixNano(),
	}
	if err := a.storage.UpsertMessage(message); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.renderMessage(&message)

	a.hub.BroadcastToRoom(conversationID, ws.ServerEvent{Event: ws.EventMessageReceived, Data: message}, nil)
	a.writeJSON(w, http.StatusCreated, message)
}

// renderMessage fills in the HTML form of a text message's markdown.
func (a *API) renderMessage(m *models.Message) {
	if m.Kind != models.MessageText || m.IsDeleted {
		return
	}
	html, err := content.RenderMarkdown(m.Content)
	if err != nil {
		a.log.Warn("failed to render message markdown", "message_id", m.ID, "error", err)
		return
	}
	m.HTML = html
}

type updateMessageRequest struct {
	Content  *string `json:"content"`
	IsPinned *bool   `json:"isPinned"`
	Delete   bool    `json:"delete"`
}

func (a *API) UpdateMessageHandler(w http.ResponseWriter, r *http.Request, userID string) {
	message, err := a.storage.GetMessage(r.PathValue("id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	_, _, err = a.requireParticipant(message.ConversationID, userID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}

	var req updateMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// Content, pinned, and deleted all belong to the sender; nobody else
	// may change a message, admin or not.
	if message.SenderID != userID {
		a.writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	if req.Content != nil {
		message.Content = content.Sanitize(*req.Content)
		message.EditedAt = time.Now().UnixNano()
	}
	if req.Delete {
		message.IsDeleted = true
		// Deleting a file message also drops the stored blob.
		if message.Kind == models.MessageFile && message.FileID != "" {
			if err := a.files.Delete(message.FileID); err != nil {
				a.log.Warn("failed to delete file content", "file_id", message.FileID, "error", err)
			}
		}
	}
	if req.IsPinned != nil {
		message.IsPinned = *req.IsPinned
	}

	if err := a.storage.UpdateMessage(message); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.renderMessage(&message)
	a.hub.BroadcastToRoom(message.ConversationID, ws.ServerEvent{Event: ws.EventMessageUpdated, Data: message}, nil)
	a.writeJSON(w, http.StatusOK, message)
}

type reactionRequest struct {
	Emoji string `json:"emoji"`
}

func (a *API) ToggleReactionHandler(w http.ResponseWriter, r *http.Request, userID string) {
	message, err := a.storage.GetMessage(r.PathValue("id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if _, _, err := a.requireParticipant(message.ConversationID, userID); err != nil {
		a.writeStoreError(w, err)
		return
	}

	var req reactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Emoji == "" {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := a.storage.ToggleReaction(models.Reaction{
		MessageID: message.ID,
		UserID:    userID,
		Emoji:     req.Emoji,
		CreatedAt: time.Now().Unix(),
	}); err != nil {
		a.writeStoreError(w, err)
		return
	}

	reactions, err := a.storage.ListReactions(message.ID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if reactions == nil {
		reactions = []models.Reaction{}
	}
	a.hub.BroadcastToRoom(message.ConversationID, ws.ServerEvent{
		Event: ws.EventReactionUpdated,
		Data:  ws.ReactionUpdatedPayload{MessageID: message.ID, Reactions: reactions},
	}, nil)
	a.writeJSON(w, http.StatusOK, reactions)
}

func (a *API) ListParticipantsHandler(w http.ResponseWriter, r *http.Request, userID string) {
	conversationID := r.PathValue("id")
	if _, _, err := a.requireParticipant(conversationID, userID); err != nil {
		a.writeStoreError(w, err)
		return
	}

	participants, err := a.storage.ListParticipants(conversationID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	active := make([]models.Participant, 0, len(participants))
	for _, p := range participants {
		if p.Active() {
			active = append(active, p)
		}
	}
	a.writeJSON(w, http.StatusOK, active)
}

type participantRequest struct {
	UserID string `json:"userId"`
}

func (a *API) AddParticipantHandler(w http.ResponseWriter, r *http.Request, userID string) {
	conversationID := r.PathValue("id")
	conv, p, err := a.requireParticipant(conversationID, userID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if !conv.IsGroup {
		a.writeError(w, http.StatusBadRequest, "cannot add participants to a direct conversation")
		return
	}
	if !p.IsAdmin {
		a.writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	var req participantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		a.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := a.auth.GetUser(req.UserID); err != nil {
		a.writeStoreError(w, err)
		return
	}

	// Re-adding someone who left reuses their record.
	participant := models.Participant{
		ConversationID: conversationID,
		UserID:         req.UserID,
		JoinedAt:       time.Now().UnixNano(),
	}
	if existing, err := a.storage.GetParticipant(conversationID, req.UserID); err == nil {
		if existing.Active() {
			a.writeError(w, http.StatusConflict, "already a participant")
			return
		}
		participant = existing
		participant.LeftAt = 0
	}
	if err := a.storage.UpsertParticipant(participant); err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.hub.HandleParticipantAdded(conversationID, req.UserID)
	a.hub.NotifyUser(models.Notification{
		ID:             uuid.NewString(),
		UserID:         req.UserID,
		Type:           models.NotifGroupInvite,
		Content:        conv.Name,
		SenderID:       userID,
		ConversationID: conversationID,
		CreatedAt:      time.Now().Unix(),
	})
	a.writeJSON(w, http.StatusOK, participant)
}

func (a *API) RemoveParticipantHandler(w http.ResponseWriter, r *http.Request, userID string) {
	conversationID := r.PathValue("id")
	targetID := r.PathValue("userId")
	conv, p, err := a.requireParticipant(conversationID, userID)
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if !conv.IsGroup {
		a.writeError(w, http.StatusBadRequest, "cannot leave a direct conversation")
		return
	}
	// Anyone may remove themselves; removing others is an admin action.
	if targetID != userID && !p.IsAdmin {
		a.writeError(w, http.StatusForbidden, "forbidden")
		return
	}

	target, err := a.storage.GetParticipant(conversationID, targetID)
	if err != nil || !target.Active() {
		a.writeError(w, http.StatusNotFound, "not a participant")
		return
	}

	// Soft leave: the record survives so history keeps resolving.
	target.LeftAt = time.Now().UnixNano()
	if err := a.storage.UpsertParticipant(target); err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.hub.HandleParticipantRemoved(conversationID, targetID)
	a.writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

// TypingUsersHandler returns who is typing in a conversation right now.
func (a *API) TypingUsersHandler(w http.ResponseWriter, r *http.Request, userID string) {
	conversationID := r.PathValue("id")
	if _, _, err := a.requireParticipant(conversationID, userID); err != nil {
		a.writeStoreError(w, err)
		return
	}
	userIDs := a.hub.TypingUsers(conversationID)
	if userIDs == nil {
		userIDs = []string{}
	}
	a.writeJSON(w, http.StatusOK, userIDs)
}

// StartTypingHandler is the REST mirror of the typing_start socket event,
// for clients polling instead of holding a connection.
func (a *API) StartTypingHandler(w http.ResponseWriter, r *http.Request, userID string) {
	conversationID := r.PathValue("id")
	if _, _, err := a.requireParticipant(conversationID, userID); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.hub.StartTyping(userID, conversationID, nil)
	a.writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

func (a *API) StopTypingHandler(w http.ResponseWriter, r *http.Request, userID string) {
	conversationID := r.PathValue("id")
	if _, _, err := a.requireParticipant(conversationID, userID); err != nil {
		a.writeStoreError(w, err)
		return
	}
	a.hub.StopTyping(userID, conversationID, nil)
	a.writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

// UploadFileHandler accepts a multipart upload into a conversation,
// sniffs the real content type, stores the blob, and posts a file
// message to the room.
func (a *API) UploadFileHandler(w http.ResponseWriter, r *http.Request, userID string) {
	conversationID := r.PathValue("id")
	if _, _, err := a.requireParticipant(conversationID, userID); err != nil {
		a.writeStoreError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, a.maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		a.writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer func() { _ = file.Close() }()

	// Sniff the type from content, not the client-supplied header.
	head := make([]byte, 261)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		a.writeError(w, http.StatusBadRequest, "unreadable file")
		return
	}
	kind, _ := filetype.Match(head[:n])
	mimeType := kind.MIME.Value
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	fileID := uuid.NewString()
	if err := a.files.Save(io.MultiReader(bytes.NewReader(head[:n]), file), fileID); err != nil {
		a.writeStoreError(w, err)
		return
	}

	now := time.Now()
	meta := storage.FileMetadata{
		ID:             fileID,
		Name:           content.Sanitize(header.Filename),
		MimeType:       mimeType,
		Size:           header.Size,
		CreatedAt:      now.Unix(),
		UserID:         userID,
		ConversationID: conversationID,
	}
	if err := a.storage.UpsertFileMetadata(meta); err != nil {
		a.writeStoreError(w, err)
		return
	}

	message := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       userID,
		Kind:           models.MessageFile,
		Content:        meta.Name,
		FileID:         fileID,
		CreatedAt:      now.UnixNano(),
	}
	if err := a.storage.UpsertMessage(message); err != nil {
		a.writeStoreError(w, err)
		return
	}

	a.hub.BroadcastToRoom(conversationID, ws.ServerEvent{Event: ws.EventFileReceived, Data: message}, nil)
	a.writeJSON(w, http.StatusCreated, message)
}

// GetFileHandler streams a stored file to a participant of the
// conversation it was shared in.
func (a *API) GetFileHandler(w http.ResponseWriter, r *http.Request, userID string) {
	meta, err := a.storage.GetFileMetadata(r.PathValue("id"))
	if err != nil {
		a.writeStoreError(w, err)
		return
	}
	if _, _, err := a.requireParticipant(meta.ConversationID, userID); err != nil {
		a.writeStoreError(w, err)
		return
	}

	f, err := a.files.Get(meta.ID)
	if err != nil {
		a.writeError(w, http.StatusNotFound, "not found")
		return
	}
	defer func() { _ = f.Close() }()

	w.Header().Set("Content-Type", meta.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(meta.Size, 10))
	if _, err := io.Copy(w, f); err != nil {
		a.log.Warn("failed to stream file", "file_id", meta.ID, "error", err)
	}
}
