package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"rtchat/internal/chat"
	"rtchat/internal/config"
	"rtchat/internal/domain"
	"rtchat/internal/metrics"
	"rtchat/internal/presence"
	"rtchat/internal/security"
	"rtchat/internal/service"
	"rtchat/internal/ws"
)

// NewRouter constructs the main HTTP router and wires routes, services, and
// middleware. Repositories come in through the domain interfaces so the
// router is agnostic of the configured persistence backend.
func NewRouter(
	cfg *config.Config,
	logger *zap.Logger,
	users domain.UserRepository,
	registry *presence.Registry,
	engine *chat.Engine,
	tokenSvc *security.TokenService,
	passwordHasher *security.PasswordHasher,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authSvc := service.NewAuthService(users, tokenSvc, passwordHasher)
	userSvc := service.NewUserService(users)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", handleRegister(authSvc))
			r.Post("/login", handleLogin(authSvc))
		})

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokenSvc, users, logger))

			r.Post("/auth/logout", handleLogout(authSvc))
			r.Get("/auth/me", handleMe())

			r.Route("/users", func(r chi.Router) {
				r.Get("/", handleListUsers(userSvc))
				r.Get("/online", handleListOnlineUsers(userSvc, registry))
				r.Get("/{userID}", handleGetUser(userSvc))
				r.Post("/{userID}/block", handleBlockUser(userSvc))
				r.Delete("/{userID}/block", handleUnblockUser(userSvc))
			})

			r.Route("/messages", func(r chi.Router) {
				r.Get("/", handleListMessages(engine))
				r.Post("/", handleCreateMessage(engine))
				r.Put("/{messageID}", handleEditMessage(engine))
				r.Delete("/{messageID}", handleDeleteMessage(engine))
				r.Post("/{messageID}/delivered", handleMarkDelivered(engine))
				r.Post("/{messageID}/seen", handleMarkSeen(engine))
				r.Post("/{messageID}/reactions", handleToggleReaction(engine))
			})

			r.Mount("/uploads", UploadRoutes(cfg))
		})
	})

	r.Get("/ws", ws.MakeHandler(cfg, registry, tokenSvc, users, engine, logger))

	return r
}

// writeJSON is a small helper to send JSON responses.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrEmptyMessage):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoCredential), errors.Is(err, domain.ErrInvalidCredential),
		errors.Is(err, domain.ErrCredentialExpired):
		status = http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden), errors.Is(err, domain.ErrAccountSuspended):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
