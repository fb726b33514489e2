package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"

	"copytrader/src/auth"
	"copytrader/src/handler"
	"copytrader/src/hub"
	"copytrader/src/orders"
	"copytrader/src/repository"
)

// Deps are the collaborators the HTTP surface exposes.
type Deps struct {
	Orders     *orders.Manager
	CopyOrders *repository.CopyOrderRepository
	Webhooks   *repository.WebhookRepository
	Hub        *hub.Hub
}

// NewRouter builds the full route tree. Split from StartServer so tests can
// drive it with httptest.
func NewRouter(deps Deps) chi.Router {
	r := chi.NewRouter()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck error")
		}
	})

	if deps.Hub != nil {
		r.Get("/sessions/live", deps.Hub.ServeHTTP)
	}

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware)

		r.Post("/webhooks", handler.RegisterWebhookHandler(deps.Webhooks))
		r.Get("/webhooks", handler.ListWebhooksHandler(deps.Webhooks))
		r.Delete("/webhooks/{id}", handler.DeleteWebhookHandler(deps.Webhooks))

		r.Get("/copy-orders", handler.SearchCopyOrdersHandler(deps.CopyOrders))
		r.Post("/copy-orders/{id}/cancel", handler.CancelCopyOrderHandler(deps.Orders, deps.CopyOrders))
	})

	return r
}

// StartServer runs the HTTP server until SIGINT or SIGTERM, then shuts down
// gracefully.
func StartServer(config *Config, deps Deps) {
	addr := ":" + config.Port
	srv := &http.Server{
		Addr:    addr,
		Handler: NewRouter(deps),
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
