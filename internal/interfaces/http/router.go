package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/recaudo-api/internal/application/reconciliation"
	"github.com/jhoicas/recaudo-api/internal/domain/repository"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	IngestUC    *reconciliation.IngestUseCase
	MatchUC     *reconciliation.MatchUseCase
	LedgerUC    *reconciliation.LedgerUseCase
	InvoiceRepo repository.InvoiceRepository
	JWTSecret   string
}

// Router registra las rutas de la API. Todo el motor de conciliación va
// protegido: cada acción requiere actor autenticado para la auditoría.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	protected := api.Group("/", AuthMiddleware(deps.JWTSecret))

	// Facturas (solo lectura)
	invoices := protected.Group("/invoices")
	invoiceHandler := NewInvoiceHandler(deps.InvoiceRepo)
	invoices.Get("/", invoiceHandler.List)
	invoices.Get("/:id", invoiceHandler.GetByID)

	// Conciliación
	recon := protected.Group("/reconciliation")
	handler := NewReconciliationHandler(deps.IngestUC, deps.MatchUC, deps.LedgerUC)
	recon.Get("/evidence", handler.ListEvidence)
	recon.Post("/evidence", handler.SubmitManual)
	recon.Get("/evidence/:id", handler.GetEvidence)
	recon.Post("/evidence/:id/verify", handler.Verify)
	recon.Post("/evidence/:id/reject", handler.Reject)
	recon.Post("/evidence/:id/match", handler.Match)
	recon.Post("/evidence/:id/unmatch", handler.Unmatch)
	recon.Get("/evidence/:id/suggestions", handler.Suggestions)
	recon.Post("/evidence/:id/reextract", handler.Reextract)
	recon.Post("/ingest/mailbox", handler.IngestMailbox)
}
