package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/contacts-ledger/internal/api"
	apiMiddleware "github.com/phrazzld/contacts-ledger/internal/api/middleware"
)

// setupRouter creates and configures the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))
	r.Use(middleware.Recoverer)

	contactHandler := api.NewContactHandler(app.ledgerService, app.logger)
	operationHandler := api.NewOperationHandler(app.ledgerService, app.logger)
	healthHandler := api.NewHealthHandler(app.store, app.logger)

	r.Route("/api", func(r chi.Router) {
		api.RegisterRoutes(r, contactHandler, operationHandler, healthHandler)
	})

	return r
}
