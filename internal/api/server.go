// Package api is the HTTP facade over the identity service, verification
// intake and progress tracking.
package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/propshield/internal/auth"
	"github.com/dharsanguruparan/propshield/internal/backend"
	"github.com/dharsanguruparan/propshield/internal/config"
	"github.com/dharsanguruparan/propshield/internal/intake"
	"github.com/dharsanguruparan/propshield/internal/status"
)

const shutdownTimeout = 5 * time.Second

// Server exposes HTTP endpoints for sign-in, uploads and verification
// progress.
type Server struct {
	cfg     *config.Config
	auth    *auth.Service
	backend *backend.Backend
	intake  *intake.Orchestrator
	tracker *status.Tracker
	log     *zap.Logger

	server *http.Server
	once   sync.Once
}

// New constructs a Server.
func New(cfg *config.Config, authSvc *auth.Service, b *backend.Backend, orchestrator *intake.Orchestrator, tracker *status.Tracker, log *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		auth:    authSvc,
		backend: b,
		intake:  orchestrator,
		tracker: tracker,
		log:     log,
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.handleHealth)
	// Browsers reach the callback through the provider's redirect and carry
	// no apikey header. The signed state and the PKCE cookie guard it.
	r.Get("/auth/callback", s.handleProviderCallback)

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", s.handleSignUp)
			r.Post("/signin", s.handleSignIn)
			r.Get("/providers", s.handleListProviders)
			r.Get("/providers/{provider}", s.handleProviderStart)
			r.With(s.authenticate).Post("/signout", s.handleSignOut)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authenticate)
			r.Post("/verifications", s.handleSubmit)
			r.Get("/verifications", s.handleListVerifications)
			r.Get("/verifications/{id}", s.handleProgress)
			r.Get("/files", s.handleListFiles)
			r.Get("/documents/{id}/signed-url", s.handleSignedURL)
		})
	})
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.once.Do(func() {
		s.server = &http.Server{
			Addr:              s.cfg.Address,
			Handler:           s.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()
	s.log.Info("api listening", zap.String("address", s.cfg.Address))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
