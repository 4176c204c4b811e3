package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"roomchat/internal/auth"
	"roomchat/internal/config"
	"roomchat/internal/database"
	"roomchat/internal/handlers"
	"roomchat/internal/mail"
	"roomchat/internal/presence"
	"roomchat/internal/ratelimit"
	"roomchat/internal/services"
	"roomchat/internal/websocket"
	"roomchat/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration: %v", err)
	}
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := openDirectory(ctx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to open room directory: %v", err)
	}
	defer db.Close()

	mailer, worker, err := buildMailer(cfg.Mail)
	if err != nil {
		logger.Fatal("Failed to set up mail delivery: %v", err)
	}
	if closer, ok := mailer.(interface{ Close() error }); ok {
		defer closer.Close()
	}

	joinLimiter := ratelimit.New(cfg.JoinLimit.Interval, cfg.JoinLimit.Burst)
	defer joinLimiter.Stop()

	// Initialize services
	authService := auth.NewService(cfg.JWT)
	roomService := services.NewRoomService(db, joinLimiter)
	messageService := services.NewMessageService(db)
	invitationService := services.NewInvitationService(db, mailer, cfg.Server.ClientBaseURL())

	hub := websocket.NewHub(presence.NewTracker())
	messageService.SetBroadcaster(hub)

	router := handlers.NewRouter(handlers.Routes{
		Verifier:       authService,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Auth:           handlers.NewAuthHandlers(),
		Rooms:          handlers.NewRoomHandlers(roomService, hub),
		Messages:       handlers.NewMessageHandlers(messageService),
		Invitations:    handlers.NewInvitationHandlers(invitationService),
		WebSocket:      handlers.NewWebSocketHandlers(authService, hub, roomService, messageService, cfg.Server.AllowedOrigins),
	}, logger.Module("http"))

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server started on %s", cfg.Server.Port)
		logger.Info("WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	if worker != nil {
		g.Go(func() error {
			logger.Info("Mail worker started")
			return worker.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		hub.CloseAll()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error: %v", err)
		os.Exit(1)
	}
	logger.Info("Server stopped")
}

func openDirectory(ctx context.Context, cfg config.DatabaseConfig) (database.Directory, error) {
	if cfg.URL == "" {
		logger.Info("DATABASE_URL not set, using in-memory room directory")
		return database.NewMemoryDB(), nil
	}

	db, err := database.NewPostgresDB(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// buildMailer returns the mailer the services use and, for the queue
// driver, the worker that performs the actual delivery.
func buildMailer(cfg config.MailConfig) (mail.Mailer, *mail.Worker, error) {
	switch cfg.Driver {
	case config.MailDriverResend:
		return mail.NewResendMailer(cfg.ResendAPIKey, cfg.From), nil, nil
	case config.MailDriverQueue:
		queue, err := mail.NewQueueMailer(cfg.RedisURL)
		if err != nil {
			return nil, nil, err
		}
		worker, err := mail.NewWorker(cfg.RedisURL, cfg.WorkerConcurrency, mail.NewResendMailer(cfg.ResendAPIKey, cfg.From))
		if err != nil {
			queue.Close()
			return nil, nil, err
		}
		return queue, worker, nil
	default:
		return mail.NewLogMailer(), nil, nil
	}
}
