package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relo/internal/auth"
	"relo/internal/cache"
	"relo/internal/chat"
	"relo/internal/config"
	"relo/internal/event"
	"relo/internal/httpx"
	myMiddleware "relo/internal/middleware"
	"relo/internal/notification"
	"relo/internal/observability"
	"relo/internal/realtime"
	"relo/internal/user"
)

// Stores are the persistence backends the app runs on. The Postgres
// repositories are used in production and the memory stores in tests.
type Stores struct {
	Users         user.Store
	Chat          chat.Store
	Notifications notification.Store
	Cache         cache.Cache
	// Ping reports backend health for /healthz. Nil means always healthy.
	Ping func(ctx context.Context) error
}

// App holds the wired services. Publisher is exported so in-process
// producers of post and friend activity can reach it.
type App struct {
	Router        http.Handler
	Registry      *realtime.Registry
	Publisher     *event.Publisher
	Users         *user.Service
	Chat          *chat.Service
	Notifications *notification.Service
	Tokens        *auth.TokenService
}

func New(cfg *config.Config, stores Stores, log *slog.Logger, reg *prometheus.Registry) *App {
	metrics := observability.NewMetrics(reg)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	registry := realtime.NewRegistry(log.With("component", "registry"), metrics)
	userService := user.NewService(stores.Users, tokens)
	if cfg.BcryptCost > 0 {
		userService.WithBcryptCost(cfg.BcryptCost)
	}
	notificationService := notification.NewService(stores.Notifications, stores.Cache, log.With("component", "notifications"))
	publisher := event.NewPublisher(registry, notificationService, log.With("component", "publisher"), metrics)
	chatService := chat.NewService(stores.Chat, userService, publisher, log.With("component", "chat"))

	app := &App{
		Registry:      registry,
		Publisher:     publisher,
		Users:         userService,
		Chat:          chatService,
		Notifications: notificationService,
		Tokens:        tokens,
	}

	socket := realtime.NewHandler(registry, tokens, cfg.AllowedOrigins, log.With("component", "gate"), metrics)
	app.Router = newRouter(routes{
		users:         user.NewHandler(userService),
		chat:          chat.NewHandler(chatService),
		notifications: notification.NewHandler(notificationService),
		socket:        socket,
		auth:          myMiddleware.NewAuthMiddleware(tokens),
		metrics:       promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ping:          stores.Ping,
	})
	return app
}

type routes struct {
	users         *user.Handler
	chat          *chat.Handler
	notifications *notification.Handler
	socket        *realtime.Handler
	auth          *myMiddleware.AuthMiddleware
	metrics       http.Handler
	ping          func(ctx context.Context) error
}

func newRouter(rt routes) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Public Routes
	r.Post("/register", rt.users.Register)
	r.Post("/login", rt.users.Login)
	r.Post("/refresh", rt.users.Refresh)
	r.Get("/healthz", healthz(rt.ping))
	r.Handle("/metrics", rt.metrics)

	// WebSocket authenticates its own token query parameter.
	r.Get("/ws", rt.socket.ServeWs)

	// Protected Routes (Require JWT)
	r.Route("/api", func(r chi.Router) {
		r.Use(rt.auth.Handle)

		r.Get("/users/me", rt.users.Me)
		r.Get("/users/search", rt.users.SearchUsers)

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", rt.chat.CreateConversation)
			r.Get("/", rt.chat.ListConversations)
			r.Get("/{id}", rt.chat.GetConversation)
			r.Get("/{id}/messages", rt.chat.ListMessages)
			r.Post("/{id}/messages", rt.chat.SendMessage)
			r.Post("/{id}/seen", rt.chat.MarkSeen)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", rt.notifications.List)
			r.Get("/unread-count", rt.notifications.UnreadCount)
			r.Put("/read-all", rt.notifications.MarkAllRead)
			r.Put("/{id}/read", rt.notifications.MarkRead)
			r.Delete("/{id}", rt.notifications.Delete)
		})
	})

	return r
}

func healthz(ping func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if ping != nil {
			if err := ping(r.Context()); err != nil {
				httpx.JSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
