package http

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/api"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/ws"

	"github.com/gorilla/handlers"
)

type APIServer struct {
	server *http.Server
	log    *slog.Logger
	wg     sync.WaitGroup
}

func NewAPIServer(apiHandlers *api.API, wsServer *ws.Server, addr string, log *slog.Logger) *APIServer {
	mux := http.NewServeMux()

	// Session endpoints.
	mux.HandleFunc("POST /api/login", api.RequireSameOrigin(apiHandlers.LoginHandler))
	mux.HandleFunc("POST /api/logoff", api.RequireSameOrigin(apiHandlers.LogoffHandler))
	mux.HandleFunc("POST /api/register", api.RequireSameOrigin(apiHandlers.RegisterHandler))
	mux.HandleFunc("GET /api/me", apiHandlers.RequireAuth(apiHandlers.MeHandler))
	mux.HandleFunc("GET /api/users", apiHandlers.RequireAuth(apiHandlers.UsersHandler))
	mux.HandleFunc("POST /api/users/me/password", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.ChangePasswordHandler)))
	mux.HandleFunc("POST /api/users/me/profile", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UpdateProfileHandler)))

	// Presence.
	mux.HandleFunc("GET /api/users/{id}/presence", apiHandlers.RequireAuth(apiHandlers.PresenceHandler))
	mux.HandleFunc("POST /api/status", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.SetStatusHandler)))
	mux.HandleFunc("POST /api/status/sharing", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.SetSharingHandler)))

	// Conversations and messages.
	mux.HandleFunc("POST /api/conversations", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.CreateConversationHandler)))
	mux.HandleFunc("GET /api/conversations", apiHandlers.RequireAuth(apiHandlers.ListConversationsHandler))
	mux.HandleFunc("GET /api/conversations/{id}", apiHandlers.RequireAuth(apiHandlers.GetConversationHandler))
	mux.HandleFunc("PATCH /api/conversations/{id}", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UpdateConversationHandler)))
	mux.HandleFunc("GET /api/conversations/{id}/messages", apiHandlers.RequireAuth(apiHandlers.ListMessagesHandler))
	mux.HandleFunc("POST /api/conversations/{id}/messages", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.CreateMessageHandler)))
	mux.HandleFunc("GET /api/conversations/{id}/participants", apiHandlers.RequireAuth(apiHandlers.ListParticipantsHandler))
	mux.HandleFunc("POST /api/conversations/{id}/participants", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.AddParticipantHandler)))
	mux.HandleFunc("DELETE /api/conversations/{id}/participants/{userId}", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.RemoveParticipantHandler)))
	mux.HandleFunc("GET /api/conversations/{id}/typing", apiHandlers.RequireAuth(apiHandlers.TypingUsersHandler))
	mux.HandleFunc("POST /api/conversations/{id}/typing", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.StartTypingHandler)))
	mux.HandleFunc("DELETE /api/conversations/{id}/typing", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.StopTypingHandler)))
	mux.HandleFunc("POST /api/conversations/{id}/files", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UploadFileHandler)))
	mux.HandleFunc("PATCH /api/messages/{id}", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.UpdateMessageHandler)))
	mux.HandleFunc("POST /api/messages/{id}/reactions", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.ToggleReactionHandler)))
	mux.HandleFunc("GET /api/files/{id}", apiHandlers.RequireAuth(apiHandlers.GetFileHandler))

	// Friends and notifications.
	mux.HandleFunc("GET /api/friends", apiHandlers.RequireAuth(apiHandlers.ListFriendsHandler))
	mux.HandleFunc("POST /api/friends", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.FriendRequestHandler)))
	mux.HandleFunc("POST /api/friends/{id}/accept", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.FriendAcceptHandler)))
	mux.HandleFunc("POST /api/friends/{id}/block", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.FriendBlockHandler)))
	mux.HandleFunc("DELETE /api/friends/{id}", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.FriendDeleteHandler)))
	mux.HandleFunc("GET /api/notifications", apiHandlers.RequireAuth(apiHandlers.ListNotificationsHandler))
	mux.HandleFunc("POST /api/notifications/{id}/read", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.MarkNotificationReadHandler)))
	mux.HandleFunc("POST /api/notifications/read-all", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.MarkAllNotificationsReadHandler)))

	// Web push.
	mux.HandleFunc("GET /api/push/key", apiHandlers.RequireAuth(apiHandlers.PushPublicKeyHandler))
	mux.HandleFunc("POST /api/push/subscribe", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.PushSubscribeHandler)))
	mux.HandleFunc("POST /api/push/unsubscribe", api.RequireSameOrigin(apiHandlers.RequireAuth(apiHandlers.PushUnsubscribeHandler)))

	// WebSocket endpoint.
	mux.HandleFunc("/api/chat", wsServer.HandleConnections)

	if addr == "" {
		addr = ":8080"
	}

	handler := handlers.CombinedLoggingHandler(os.Stdout, mux)
	handler = handlers.RecoveryHandler(handlers.RecoveryLogger(&recoveryLogger{log}))(handler)

	return &APIServer{
		server: &http.Server{
			Addr:    addr,
			Handler: handler,
		},
		log: log,
	}
}

func (s *APIServer) Start() error {
	s.log.Info("api server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}

// recoveryLogger adapts slog to the panic-recovery middleware.
type recoveryLogger struct {
	log *slog.Logger
}

func (l *recoveryLogger) Println(v ...any) {
	l.log.Error("recovered from panic in handler", "panic", v)
}
