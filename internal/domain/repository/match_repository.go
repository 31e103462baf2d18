package repository

import "github.com/jhoicas/recaudo-api/internal/domain/entity"

// MatchRepository define el puerto de persistencia para registros de match.
// Las filas nunca se actualizan; hay a lo sumo un match vivo por evidencia.
type MatchRepository interface {
	Create(match *entity.PaymentMatch) error
	// GetByEvidenceID devuelve el match vivo de la evidencia, o nil si no hay.
	GetByEvidenceID(evidenceID string) (*entity.PaymentMatch, error)
	ListByInvoiceID(invoiceID string) ([]*entity.PaymentMatch, error)
	// DeleteByEvidenceID corta el match vivo al hacer unmatch o al reconfirmar
	// contra otra factura. Solo válido antes de la verificación: un match
	// respaldado por una aplicación al libro mayor jamás se toca.
	DeleteByEvidenceID(evidenceID string) error
}
