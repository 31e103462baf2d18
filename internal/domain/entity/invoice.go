package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Estados de ciclo de vida de una factura.
// OVERDUE es un estado derivado (vencimiento en el pasado), nunca se persiste.
const (
	InvoiceStatusDraft         = "DRAFT"
	InvoiceStatusSent          = "SENT"
	InvoiceStatusPartiallyPaid = "PARTIALLY_PAID"
	InvoiceStatusPaid          = "PAID"
	InvoiceStatusOverdue       = "OVERDUE"
)

// Invoice representa la cabecera de una factura con sus campos de recaudo.
// El motor de conciliación solo puede modificar Collected, Outstanding y Status,
// y únicamente a través del caso de uso de libro mayor (LedgerUseCase).
type Invoice struct {
	ID          string
	Number      string // número único de factura (ej. "FAC-2026-0042")
	ProjectID   string
	CustomerID  string
	Total       decimal.Decimal
	Collected   decimal.Decimal
	Outstanding decimal.Decimal
	Currency    string
	Status      string
	IssuedAt    time.Time
	DueAt       time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// IsOpen indica si la factura admite nuevos pagos (estado no terminal).
func (i *Invoice) IsOpen() bool {
	switch i.Status {
	case InvoiceStatusDraft, InvoiceStatusSent, InvoiceStatusPartiallyPaid, InvoiceStatusOverdue:
		return true
	}
	return false
}

// EffectiveStatus devuelve el estado visible: OVERDUE si la factura está
// enviada o parcialmente pagada y su vencimiento ya pasó.
func (i *Invoice) EffectiveStatus(now time.Time) string {
	if (i.Status == InvoiceStatusSent || i.Status == InvoiceStatusPartiallyPaid) &&
		!i.DueAt.IsZero() && i.DueAt.Before(now) {
		return InvoiceStatusOverdue
	}
	return i.Status
}

// CheckLedgerInvariant verifica que outstanding == max(0, total - collected)
// y que collected no sea negativo. Debe cumplirse después de cada transacción
// del libro mayor.
func (i *Invoice) CheckLedgerInvariant() bool {
	if i.Collected.IsNegative() {
		return false
	}
	expected := i.Total.Sub(i.Collected)
	if expected.IsNegative() {
		expected = decimal.Zero
	}
	return i.Outstanding.Equal(expected)
}
