package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/farhan/payroute/internal/config"
	"github.com/farhan/payroute/internal/routing"
	"github.com/farhan/payroute/internal/storage"
)

type Server struct {
	cfg     config.Config
	store   storage.Storage
	cascade *routing.Cascade
	sticky  *routing.Sticky
	router  *chi.Mux
	log     zerolog.Logger
	http    *http.Server
}

func NewServer(cfg config.Config, store storage.Storage, cascade *routing.Cascade, sticky *routing.Sticky, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		cascade: cascade,
		sticky:  sticky,
		log:     log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	merchantHandler := NewMerchantHandler(s.store)
	providerHandler := NewProviderHandler(s.store)
	policyHandler := NewPolicyHandler(s.store)
	checkoutHandler := NewCheckoutHandler(s.store, s.cascade, s.sticky, s.cfg.Routing.CheckoutTTL)
	statsHandler := NewStatsHandler(s.store)

	// Liveness — no auth
	r.Get("/health", statsHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Merchant management — admin routes, no bearer auth
		r.Post("/merchants", merchantHandler.Create)
		r.Get("/merchants", merchantHandler.List)
		r.Get("/merchants/{id}", merchantHandler.Get)
		r.Post("/merchants/{id}/rotate-key", merchantHandler.RotateKey)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(s.store))

			// Provider accounts
			r.Post("/providers", providerHandler.Create)
			r.Get("/providers", providerHandler.List)
			r.Get("/providers/{id}", providerHandler.Get)
			r.Put("/providers/{id}", providerHandler.Update)
			r.Patch("/providers/{id}/toggle", providerHandler.Toggle)
			r.Delete("/providers/{id}", providerHandler.Archive)

			// Routing policy
			r.Get("/policy", policyHandler.Get)
			r.Put("/policy", policyHandler.Put)

			// Checkouts
			r.Post("/checkouts", checkoutHandler.Create)
			r.Get("/checkouts/{id}", checkoutHandler.Get)
			r.Post("/checkouts/{id}/assign", checkoutHandler.Assign)
			r.Post("/checkouts/{id}/pay", checkoutHandler.Pay)
			r.Get("/checkouts/{id}/attempts", checkoutHandler.ListAttempts)

			// Stats
			r.Get("/stats", statsHandler.Stats)
		})
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}
