package ws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

type tokenResolver interface {
	GetUserID(token string) (string, error)
}

type Server struct {
	auth     tokenResolver
	hub      *Hub
	upgrader *websocket.Upgrader
	log      *slog.Logger
}

func NewServer(auth tokenResolver, hub *Hub, log *slog.Logger) *Server {
	return &Server{
		auth: auth,
		hub:  hub,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for now
			},
		},
		log: log,
	}
}

// HandleConnections upgrades an authenticated HTTP request to a
// websocket session. The token comes from the header, a cookie, or a
// query parameter (browser websocket clients cannot set headers).
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	userID, err := s.auth.GetUserID(requestToken(r))
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("error upgrading to websocket", "error", err)
		return
	}

	session := NewSession(s.hub, ws, userID, s.log)
	if err := session.Run(r.Context()); err != nil {
		s.log.Warn("session ended with error", "user_id", userID, "error", err)
	}
}

func requestToken(r *http.Request) string {
	if token := r.Header.Get("token"); token != "" {
		return token
	}
	if cookie, err := r.Cookie("token"); err == nil {
		return cookie.Value
	}
	return r.URL.Query().Get("token")
}
