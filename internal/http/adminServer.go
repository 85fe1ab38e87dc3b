package http

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/api"
)

// AdminServer binds the operator endpoints to a separate, normally
// loopback-only, address.
type AdminServer struct {
	server *http.Server
	log    *slog.Logger
	wg     sync.WaitGroup
}

func NewAdminServer(adminHandler *api.AdminHandler, addr string, log *slog.Logger) *AdminServer {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/users", adminHandler.AddUserHandler)
	mux.HandleFunc("DELETE /admin/users", adminHandler.DeleteUserHandler)
	mux.HandleFunc("POST /admin/users/reset-password", adminHandler.ResetUserPasswordHandler)

	if addr == "" {
		addr = "localhost:8081"
	}

	return &AdminServer{
		server: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
		log: log,
	}
}

func (s *AdminServer) Start() error {
	s.log.Info("admin server started", "addr", s.server.Addr)
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *AdminServer) Shutdown(ctx context.Context) error {
	defer s.wg.Wait()
	return s.server.Shutdown(ctx)
}
