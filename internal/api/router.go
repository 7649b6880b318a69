package api

import (
	"log/slog"
	"net/http"

	"github.com/dom/accounts/internal/api/handlers"
	"github.com/dom/accounts/internal/api/middleware"
	"github.com/dom/accounts/internal/api/response"
	"github.com/dom/accounts/internal/config"
	"github.com/dom/accounts/internal/events"
	"github.com/dom/accounts/internal/metrics"
	"github.com/dom/accounts/internal/service"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the HTTP surface. tracing wraps the whole router when
// non-nil.
func NewRouter(
	services *service.Services,
	hub *events.Hub,
	cfg *config.Config,
	log *slog.Logger,
	tracing func(http.Handler) http.Handler,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.Logger(log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigin))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, map[string]string{"status": "ok"}, "healthy")
	})
	r.Handle("/metrics", metrics.Handler())

	authHandler := handlers.NewAuthHandler(services.Auth, cfg, log)
	userHandler := handlers.NewUserHandler(services.Users, cfg, log)
	eventsHandler := handlers.NewSessionEventsHandler(hub, cfg.CORSOrigin, log)

	r.Route(cfg.APIBase, func(r chi.Router) {
		r.Post("/register", userHandler.Register)
		r.Post("/login", authHandler.Login)
		r.Post("/refreshAccessToken", authHandler.RefreshAccessToken)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(services.Auth, log))

			r.Post("/logout", authHandler.Logout)
			r.Put("/changePassword", authHandler.ChangePassword)
			r.Get("/getCurrentuser", userHandler.CurrentUser)
			r.Put("/updateAccountDetails", userHandler.UpdateAccountDetails)
			r.Put("/updateUserAvatar", userHandler.UpdateAvatar)
			r.Put("/updateUserCoverImage", userHandler.UpdateCoverImage)
			r.Get("/sessionEvents", eventsHandler.Handle)
		})
	})

	if tracing != nil {
		return tracing(r)
	}
	return r
}
