package repository

import "github.com/jhoicas/recaudo-api/internal/domain/entity"

// InvoiceRepository define el puerto de persistencia para facturas.
// El motor de conciliación es solo lector salvo por UpdateLedger, que es la
// única vía de mutación de collected/outstanding/status.
type InvoiceRepository interface {
	GetByID(id string) (*entity.Invoice, error)
	// GetByNumber resuelve por número único de factura (camino determinista del matcher).
	GetByNumber(number string) (*entity.Invoice, error)
	// ListOpen devuelve facturas en estado no terminal (DRAFT, SENT, PARTIALLY_PAID).
	ListOpen() ([]*entity.Invoice, error)
	ListByStatus(status string, limit, offset int) ([]*entity.Invoice, error)
	// GetByIDForUpdate bloquea la fila de la factura (SELECT ... FOR UPDATE).
	// Solo tiene sentido dentro de una transacción.
	GetByIDForUpdate(id string) (*entity.Invoice, error)
	// UpdateLedger persiste únicamente collected, outstanding, status y updated_at.
	UpdateLedger(invoice *entity.Invoice) error
}
