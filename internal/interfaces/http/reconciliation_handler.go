package http

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/recaudo-api/internal/application/dto"
	"github.com/jhoicas/recaudo-api/internal/application/reconciliation"
	"github.com/jhoicas/recaudo-api/internal/domain"
)

// ReconciliationHandler expone la superficie de verbos del motor de
// conciliación: list, verify, reject, match, unmatch, suggest, reextract,
// ingest. Todas las transiciones se autorizan en el servidor.
type ReconciliationHandler struct {
	ingestUC *reconciliation.IngestUseCase
	matchUC  *reconciliation.MatchUseCase
	ledgerUC *reconciliation.LedgerUseCase
}

// NewReconciliationHandler construye el handler.
func NewReconciliationHandler(
	ingestUC *reconciliation.IngestUseCase,
	matchUC *reconciliation.MatchUseCase,
	ledgerUC *reconciliation.LedgerUseCase,
) *ReconciliationHandler {
	return &ReconciliationHandler{ingestUC: ingestUC, matchUC: matchUC, ledgerUC: ledgerUC}
}

// ListEvidence lista evidencias, opcionalmente filtradas por estado.
// GET /api/reconciliation/evidence?status=&limit=&offset=
func (h *ReconciliationHandler) ListEvidence(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()

	list, err := h.ledgerUC.ListEvidence(c.Context(), c.Query("status"), page.Limit, page.Offset)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(fiber.Map{
		"evidence": dto.FromEvidenceList(list),
		"page":     dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	})
}

// GetEvidence detalle de una evidencia.
// GET /api/reconciliation/evidence/:id
func (h *ReconciliationHandler) GetEvidence(c *fiber.Ctx) error {
	ev, err := h.ledgerUC.GetEvidence(c.Context(), c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(dto.FromEvidence(ev))
}

// SubmitManual registra un comprobante subido manualmente.
// POST /api/reconciliation/evidence
func (h *ReconciliationHandler) SubmitManual(c *fiber.Ctx) error {
	actor := GetUserID(c)
	var in dto.ManualEvidenceRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	ev, err := h.ingestUC.SubmitManual(c.Context(), actor, in)
	if err != nil {
		return mapError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(dto.FromEvidence(ev))
}

// Verify aplica el monto de la evidencia al libro mayor (idempotente).
// POST /api/reconciliation/evidence/:id/verify
func (h *ReconciliationHandler) Verify(c *fiber.Ctx) error {
	actor := GetUserID(c)
	var in dto.VerifyRequest
	// cuerpo vacío permitido: la nota es opcional
	_ = c.BodyParser(&in)
	result, err := h.ledgerUC.Verify(c.Context(), actor, c.Params("id"), in.Note)
	if err != nil {
		return mapError(c, err)
	}
	resp := dto.VerifyResponse{Evidence: dto.FromEvidence(result.Evidence)}
	if result.Invoice != nil {
		resp.Invoice = dto.FromInvoice(result.Invoice, time.Now())
	}
	return c.JSON(resp)
}

// Reject rechaza la evidencia sin tocar el libro mayor.
// POST /api/reconciliation/evidence/:id/reject
func (h *ReconciliationHandler) Reject(c *fiber.Ctx) error {
	actor := GetUserID(c)
	var in dto.RejectRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	ev, err := h.ledgerUC.Reject(c.Context(), actor, c.Params("id"), in.Reason, in.Note)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(dto.FromEvidence(ev))
}

// Match confirma el emparejamiento evidencia-factura.
// POST /api/reconciliation/evidence/:id/match
func (h *ReconciliationHandler) Match(c *fiber.Ctx) error {
	actor := GetUserID(c)
	var in dto.MatchRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	ev, err := h.matchUC.ConfirmMatch(c.Context(), actor, c.Params("id"), in.InvoiceID, in.Amount)
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(dto.FromEvidence(ev))
}

// Unmatch rompe el match vivo (solo antes de verificar).
// POST /api/reconciliation/evidence/:id/unmatch
func (h *ReconciliationHandler) Unmatch(c *fiber.Ctx) error {
	actor := GetUserID(c)
	ev, err := h.matchUC.Unmatch(c.Context(), actor, c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(dto.FromEvidence(ev))
}

// Suggestions candidatos de factura por cercanía de monto.
// GET /api/reconciliation/evidence/:id/suggestions
func (h *ReconciliationHandler) Suggestions(c *fiber.Ctx) error {
	suggestions, err := h.matchUC.SuggestMatches(c.Context(), c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(fiber.Map{"suggestions": suggestions})
}

// Reextract reintenta la extracción de monto del comprobante.
// POST /api/reconciliation/evidence/:id/reextract
func (h *ReconciliationHandler) Reextract(c *fiber.Ctx) error {
	actor := GetUserID(c)
	ev, err := h.ledgerUC.ReextractAmount(c.Context(), actor, c.Params("id"))
	if err != nil {
		return mapError(c, err)
	}
	return c.JSON(dto.FromEvidence(ev))
}

// IngestMailbox dispara una corrida de ingesta sobre el buzón.
// POST /api/reconciliation/ingest/mailbox
func (h *ReconciliationHandler) IngestMailbox(c *fiber.Ctx) error {
	var in dto.IngestRequest
	if err := c.BodyParser(&in); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
	}
	list, err := h.ingestUC.IngestMailbox(c.Context(), in.Account)
	if err != nil {
		return mapError(c, err)
	}
	// Éxito parcial: los ítems fallidos se omiten, nunca son error duro.
	return c.JSON(fiber.Map{"evidence": dto.FromEvidenceList(list)})
}

// mapError traduce la taxonomía de errores de dominio a códigos HTTP para que
// la UI distinga "ya hecho" de "no permitido" de "roto".
func mapError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "evidencia o factura no encontrada"})
	case errors.Is(err, domain.ErrInvalidInput):
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "datos inválidos"})
	case errors.Is(err, domain.ErrUnauthorized):
		return c.Status(fiber.StatusUnauthorized).JSON(dto.ErrorResponse{Code: "UNAUTHORIZED", Message: "actor no autenticado"})
	case errors.Is(err, domain.ErrAlreadyVerified), errors.Is(err, domain.ErrAlreadyRejected), errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicate):
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "CONFLICT", Message: err.Error()})
	case errors.Is(err, domain.ErrUpstreamTimeout):
		return c.Status(fiber.StatusBadGateway).JSON(dto.ErrorResponse{Code: "UPSTREAM_UNAVAILABLE", Message: "proveedor externo no disponible, reintente"})
	case errors.Is(err, domain.ErrLedgerInvariant):
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "LEDGER_INVARIANT", Message: "inconsistencia del libro mayor: transacción abortada"})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}
