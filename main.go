package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/api"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/auth"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/commands"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/config"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/filestore"
	internalhttp "github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/http"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/presence"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/push"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/storage"
	"github.com/JESREAL1JDL7LUSTRE/Aura-Chat/internal/ws"

	"golang.org/x/sync/errgroup"
)

func run(ctx context.Context) error {
	addUser := flag.String("add-user", "", "Username to create (prints a one-time setup link)")
	displayName := flag.String("display-name", "", "Display name for the user being created")
	flag.Parse()

	cfg, err := config.Load(*addUser != "")
	if err != nil {
		return err
	}

	if *addUser != "" {
		return commands.AddUser(*addUser, *displayName, cfg)
	}

	log := slog.New(slog.NewTextHandler(os.Stdout, nil))

	bbStorage, err := storage.NewBboltStorage(cfg.DBFile)
	if err != nil {
		return err
	}
	defer func() { _ = bbStorage.Close() }()

	authConfig := auth.Config{
		Secret:      base64.StdEncoding.EncodeToString([]byte(cfg.AuthSecret)),
		TokenExpiry: cfg.TokenExpiry,
	}
	authService, err := auth.NewAuthService(ctx, authConfig, bbStorage)
	if err != nil {
		return err
	}

	files, err := filestore.NewLocalFileStore(cfg.UploadsPath)
	if err != nil {
		return err
	}

	presenceStore := presence.NewStore(bbStorage)
	presenceStore.Seed(authService.GetUsers())

	pushService := push.NewService(bbStorage, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.VAPIDSubscriber, log)

	hub := ws.NewHub(ctx, bbStorage, presenceStore, pushService, cfg.TypingTTL, cfg.TypingSweep, log)
	go hub.Run(ctx)

	wsServer := ws.NewServer(authService, hub, log)
	apiHandlers := api.New(authService, hub, presenceStore, bbStorage, files, pushService, cfg.MaxUploadBytes, log)
	adminHandler := api.NewAdminHandler(authService, hub, cfg.BaseURL, log)

	apiServer := internalhttp.NewAPIServer(apiHandlers, wsServer, cfg.APIAddr, log)
	adminServer := internalhttp.NewAdminServer(adminHandler, cfg.AdminAddr, log)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(adminServer.Start)
	g.Go(apiServer.Start)

	g.Go(func() error {
		<-gCtx.Done()
		log.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			log.Error("admin server shutdown error", "error", err)
		}
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Error("api server shutdown error", "error", err)
		}
		return nil
	})

	return g.Wait()
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}
