package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/invoicehubapp/invoicehub/internal/config"
	"github.com/invoicehubapp/invoicehub/internal/handlers"
)

type Server struct {
	cfg        *config.Config
	logger     *slog.Logger
	handlers   *handlers.Handlers
	httpServer *http.Server
}

func New(cfg *config.Config, logger *slog.Logger, h *handlers.Handlers) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if h == nil {
		return nil, fmt.Errorf("handlers are required")
	}

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		handlers: h,
	}

	router := s.buildRouter()
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	return s, nil
}

func (s *Server) Run() error {
	s.logger.Info("server starting", "port", s.cfg.Port)

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Close(ctx context.Context) error {
	if s == nil || s.httpServer == nil {
		return nil
	}

	s.logger.Info("server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return err
	}
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) buildRouter() *mux.Router {
	h := s.handlers

	r := mux.NewRouter()
	r.Use(h.Recover)
	r.Use(h.RequestLogger)
	r.Use(h.MetricsContext)
	r.Use(h.SecurityHeaders)

	r.HandleFunc("/", h.Root).Methods("GET").Name("root")
	r.HandleFunc("/health", h.Health).Methods("GET").Name("health")

	r.HandleFunc("/webhooks/shopify", h.ShopifyWebhook).Methods("POST").Name("webhooks.shopify")

	r.HandleFunc("/shopify/install", h.ShopifyInstall).Methods("GET").Name("shopify.install")
	r.HandleFunc("/shopify/callback", h.ShopifyCallback).Methods("GET").Name("shopify.callback")

	// Embedded-app API, authenticated with App Bridge session tokens.
	apiRouter := r.PathPrefix("/api/v1").Subrouter()
	apiRouter.Use(h.RequireSessionToken)
	apiRouter.HandleFunc("/settings", h.GetSettings).Methods("GET").Name("api.settings.get")
	apiRouter.HandleFunc("/settings", h.UpdateSettings).Methods("PATCH").Name("api.settings.update")
	apiRouter.HandleFunc("/notifications", h.ListNotifications).Methods("GET").Name("api.notifications.list")
	apiRouter.HandleFunc("/notifications/{id}/read", h.MarkNotificationRead).Methods("POST").Name("api.notifications.read")

	return r
}
