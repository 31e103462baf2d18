package http

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/recaudo-api/internal/application/dto"
	"github.com/jhoicas/recaudo-api/internal/domain/entity"
	"github.com/jhoicas/recaudo-api/internal/domain/repository"
)

// InvoiceHandler lecturas de facturas para la UI de conciliación.
// Solo lectura: el libro mayor se muta únicamente vía verify.
type InvoiceHandler struct {
	invoiceRepo repository.InvoiceRepository
}

// NewInvoiceHandler construye el handler.
func NewInvoiceHandler(invoiceRepo repository.InvoiceRepository) *InvoiceHandler {
	return &InvoiceHandler{invoiceRepo: invoiceRepo}
}

// List facturas por estado (por defecto, abiertas).
// GET /api/invoices?status=&limit=&offset=
func (h *InvoiceHandler) List(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()

	var (
		invoices []*entity.Invoice
		err      error
	)
	if status := c.Query("status"); status != "" {
		invoices, err = h.invoiceRepo.ListByStatus(status, page.Limit, page.Offset)
	} else {
		invoices, err = h.invoiceRepo.ListOpen()
	}
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}

	now := time.Now()
	out := make([]*dto.InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, dto.FromInvoice(inv, now))
	}
	return c.JSON(fiber.Map{
		"invoices": out,
		"page":     dto.PageResponse{Limit: page.Limit, Offset: page.Offset},
	})
}

// GetByID detalle de una factura.
// GET /api/invoices/:id
func (h *InvoiceHandler) GetByID(c *fiber.Ctx) error {
	invoice, err := h.invoiceRepo.GetByID(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
	}
	if invoice == nil {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{Code: "NOT_FOUND", Message: "factura no encontrada"})
	}
	return c.JSON(dto.FromInvoice(invoice, time.Now()))
}
