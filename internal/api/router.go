package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quillstone/realtime-bridge/internal/realtime"
	ws "github.com/quillstone/realtime-bridge/internal/websocket"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(registry *realtime.Registry, source *realtime.Source, wsServer *ws.Server, db Pinger, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS for browser clients
	r.Use(corsMiddleware)

	// Handlers
	mutationHandler := NewMutationHandler(source, logger)
	subscriptionHandler := NewSubscriptionHandler(registry, wsServer)

	// WebSocket endpoint
	r.Get("/ws", wsServer.HandleUpgrade)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler(db))
		r.Post("/mutations", mutationHandler.Notify)
		r.Get("/subscriptions", subscriptionHandler.Stats)
	})

	return r
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
