package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pairchat/internal/call"
	"github.com/pairchat/internal/config"
	"github.com/pairchat/internal/fileserver"
	"github.com/pairchat/internal/handler"
	"github.com/pairchat/internal/logger"
	"github.com/pairchat/internal/middleware"
	"github.com/pairchat/internal/push"
	"github.com/pairchat/internal/realtime"
	"github.com/pairchat/internal/repository"
	"github.com/pairchat/internal/service"
	"github.com/pairchat/internal/startup"
	"github.com/pairchat/internal/storage"
	"github.com/pairchat/internal/storage/memory"
	"github.com/pairchat/internal/ws"
	"github.com/pairchat/migrations"
)

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL and in-memory storage (no external services required)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()

	var embeddedDB *embeddedpostgres.EmbeddedPostgres
	if *dev {
		var err error
		embeddedDB, err = startEmbeddedPostgres(cfg)
		if err != nil {
			logger.Errorf("embedded postgres: %v", err)
			os.Exit(1)
		}
		defer func() {
			logger.Info("stopping embedded postgres...")
			if err := embeddedDB.Stop(); err != nil {
				logger.Errorf("embedded postgres stop: %v", err)
			}
		}()
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL())
	if err != nil {
		logger.Errorf("parse db config: %v", err)
		os.Exit(1)
	}
	poolCfg.MaxConns = int32(cfg.DBMaxConnections())
	poolCfg.MinConns = 4

	pool := startup.ConnectDBWithRetry(poolCfg, 60*time.Second)
	defer pool.Close()

	runMigrations(pool)
	if *migrate && !*dev {
		return
	}

	resetCtx, resetCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if _, err := pool.Exec(resetCtx, "UPDATE users SET is_online = false"); err != nil {
		logger.Errorf("reset online status: %v", err)
	}
	resetCancel()
	logger.Info("database connected, migrations applied")

	var store storage.Store
	if *dev {
		store = memory.New()
		logger.Info("using in-memory storage (dev mode)")
	} else {
		store = startup.ConnectRedisWithRetry(cfg.Redis.URL, 60*time.Second)
		logger.Info("redis connected")
	}
	defer store.Close()

	userRepo := repository.NewUserRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	convRepo := repository.NewConversationRepository(pool)
	msgRepo := repository.NewMessageRepository(pool)
	pinRepo := repository.NewPinRepository(pool)
	reactRepo := repository.NewReactionRepository(pool)

	vapidPub, vapidPriv := cfg.PushVAPIDPublicKey, cfg.PushVAPIDPrivateKey
	if vapidPub == "" || vapidPriv == "" {
		keys, err := push.EnsureVAPIDKeys("")
		if err != nil {
			logger.Errorf("push: VAPID keys unavailable, pushes disabled: %v", err)
		} else {
			vapidPub, vapidPriv = keys.PublicKey, keys.PrivateKey
		}
	}
	pushSender := push.NewSender(store, vapidPub, vapidPriv)

	fileSvc := fileserver.New(cfg.UploadDir, cfg.MaxUploadSize)
	broker := realtime.NewBroker()
	defer broker.Close()

	chatSvc := service.NewChatService(convRepo, msgRepo, pinRepo, reactRepo, fileSvc, broker)
	if pushSender.Enabled() {
		chatSvc.SetNotifier(pushSender)
	}
	authSvc := service.NewAuthService(userRepo, sessionRepo, store)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(chatSvc, userRepo, broker, store, cfg.MaxWSConnections)
	chatSvc.SetPresence(hub)

	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	callHub := call.NewHub(middleware.ValidateSignedQuery(sessionRepo, store))

	authH := handler.NewAuthHandler(authSvc)
	userH := handler.NewUserHandler(userRepo)
	convH := handler.NewConversationHandler(chatSvc, store)
	msgH := handler.NewMessageHandler(chatSvc, store)
	fileH := handler.NewFileHandler(fileSvc, cfg.MaxUploadSize)
	pushH := handler.NewPushHandler(pushSender)
	configH := handler.NewConfigHandler(cfg, pushSender)
	wsH := handler.NewWSHandler(hub, cfg.CORSAllowedOrigins)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(middleware.RecoverJSON)
	// Never compress WebSocket responses: the wrapped ResponseWriter would
	// lose http.Hijacker and the upgrade would fail with a 500.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			chimw.Compress(5)(next).ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(middleware.SecureHeaders)
	r.Use(middleware.RateLimitAPI)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.CORSAllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Session-Id", "X-Timestamp", "X-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/config/cache", configH.GetCacheConfig)
	r.Get("/api/config/push", configH.GetPushConfig)
	r.Get("/api/config/call", configH.GetCallConfig)
	r.Get("/api/files/{filename}", fileH.Serve)

	r.Post("/api/auth/register", authH.Register)
	r.Post("/api/auth/login", authH.Login)

	// Call socket carries its credentials in the query string (browsers
	// cannot set headers on a WebSocket handshake).
	r.Get("/call/ws", callHub.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.SessionAuth(sessionRepo, store))

		r.Get("/api/users/me", userH.GetProfile)
		r.Put("/api/users/me", userH.UpdateProfile)
		r.Get("/api/users/search", userH.SearchUsers)
		r.Get("/api/users/{id}", userH.GetUser)

		r.Get("/api/sessions", authH.GetSessions)
		r.Post("/api/auth/logout", authH.Logout)
		r.Delete("/api/sessions/{id}", authH.Logout)
		r.Post("/api/auth/logout-all", authH.LogoutAll)

		r.Get("/api/conversations", convH.GetConversations)
		r.Post("/api/conversations", convH.StartConversation)
		r.Get("/api/conversations/{id}", convH.GetConversation)
		r.Patch("/api/conversations/{id}/settings", convH.UpdateSettings)
		r.Delete("/api/conversations/{id}", convH.DeleteConversation)
		r.Get("/api/conversations/{id}/unread", convH.GetUnreadCount)

		r.Get("/api/conversations/{id}/messages", msgH.GetMessages)
		r.Post("/api/conversations/{id}/messages", msgH.SendMessage)
		r.Post("/api/conversations/{id}/read", msgH.MarkAsRead)
		r.Get("/api/conversations/{id}/pins", msgH.GetPins)
		r.Put("/api/conversations/{id}/pins/{messageId}", msgH.PinMessage)
		r.Delete("/api/conversations/{id}/pins/{messageId}", msgH.UnpinMessage)

		r.Put("/api/messages/{messageId}", msgH.EditMessage)
		r.Delete("/api/messages/{messageId}", msgH.DeleteMessage)
		r.Post("/api/messages/{messageId}/reactions", msgH.AddReaction)
		r.Delete("/api/messages/{messageId}/reactions", msgH.RemoveReaction)

		r.Post("/api/files/upload", fileH.Upload)

		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Delete("/api/push/subscribe", pushH.Unsubscribe)

		r.Get("/ws", wsH.ServeWS)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	errCh := make(chan error, 1)
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("server listening on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
	logger.Info("server goroutine exited")
}

func runMigrations(pool *pgxpool.Pool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	entries, err := migrations.Files.ReadDir(".")
	if err != nil {
		logger.Errorf("read migrations: %v", err)
		os.Exit(1)
	}
	for _, e := range entries {
		data, err := migrations.Files.ReadFile(e.Name())
		if err != nil {
			logger.Errorf("read migration %s: %v", e.Name(), err)
			os.Exit(1)
		}
		if _, err := pool.Exec(ctx, string(data)); err != nil {
			logger.Errorf("run migration %s: %v", e.Name(), err)
			os.Exit(1)
		}
	}
	logger.Info("migrations applied")
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "pairchat"
		password = "pairchat_secret"
		database = "pairchat"
	)

	dataDir := "./.pgdata"
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(os.TempDir() + "/embedded-pg-runtime"),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
