package api

import "github.com/go-chi/chi/v5"

// RegisterRoutes mounts the ledger endpoints on r. The caller decides the
// prefix (the server mounts them under /api).
func RegisterRoutes(r chi.Router, contacts *ContactHandler, operations *OperationHandler, health *HealthHandler) {
	r.Get("/health", health.Health)

	r.Route("/contacts", func(r chi.Router) {
		r.Post("/", contacts.CreateContact)
		r.Get("/", contacts.ListContacts)

		r.Route("/{"+contactIDParam+"}", func(r chi.Router) {
			r.Get("/", contacts.GetContact)
			r.Patch("/", contacts.RenameContact)

			r.Post("/operations", operations.ApplyOperation)
			r.Get("/operations", operations.ListOperations)
			r.Get("/export", operations.ExportOperations)
			r.Get("/ledger/verify", operations.VerifyLedger)
		})
	})
}
