package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/fleetd/fleet-server/internal/auth"
	"github.com/fleetd/fleet-server/internal/config"
	"github.com/fleetd/fleet-server/internal/engine"
	"github.com/fleetd/fleet-server/internal/storage"
	"github.com/fleetd/fleet-server/internal/validation"
)

// claimsContextKey scopes authenticated claims in the request context
type claimsContextKey struct{}

// RESTServer is the HTTP surface: the admin REST API, the device check-in
// routes and the firmware download path.
type RESTServer struct {
	config     *config.Config
	store      storage.Store
	auth       *auth.JWTManager
	validator  *validation.Validator
	dispatcher *engine.Dispatcher
	identity   *engine.IdentityResolver
	router     chi.Router
	server     *http.Server
}

// NewRESTServer creates the REST server
func NewRESTServer(cfg *config.Config, store storage.Store, dispatcher *engine.Dispatcher, identity *engine.IdentityResolver) *RESTServer {
	s := &RESTServer{
		config:     cfg,
		store:      store,
		auth:       auth.NewJWTManager(&cfg.JWT),
		validator:  validation.NewValidator(),
		dispatcher: dispatcher,
		identity:   identity,
		router:     chi.NewRouter(),
	}

	s.setupRoutes()

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures all routes
func (s *RESTServer) setupRoutes() {
	// Middleware
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(60 * time.Second))

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		s.setupAPIRoutes(r)
	})

	// Firmware downloads
	s.router.Get("/df/*", s.HandleFirmwareDownload)

	// Everything else is device communication, matched against the
	// dispatcher's per-device-type route table.
	s.router.NotFound(s.dispatcher.ServeHTTP)
}

// ListenAndServe starts the server
func (s *RESTServer) ListenAndServe(addr string) error {
	s.server.Addr = addr
	log.Info().Str("addr", addr).Msg("Starting REST API server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *RESTServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// authMiddleware is the authentication middleware
func (s *RESTServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Get token from header
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			s.respondError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		// Parse Bearer token
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.respondError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		// Validate token
		claims, err := s.auth.ValidateToken(parts[1])
		if err != nil {
			s.respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		// Add claims to context
		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// claimsFrom returns the authenticated claims, nil outside protected routes
func claimsFrom(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsContextKey{}).(*auth.Claims)
	return claims
}
