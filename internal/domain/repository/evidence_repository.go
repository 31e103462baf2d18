package repository

import "github.com/jhoicas/recaudo-api/internal/domain/entity"

// EvidenceRepository define el puerto de persistencia para evidencias de pago.
// La identidad de ingesta es (source_message_id, attachment_name); para
// notificaciones bancarias el nombre de adjunto va vacío.
type EvidenceRepository interface {
	// Upsert inserta o actualiza por identidad de origen y devuelve la fila
	// resultante. Re-ingestar el mismo mensaje nunca duplica evidencia ni
	// pisa una evidencia que ya salió de su estado inicial.
	Upsert(evidence *entity.PaymentEvidence) (*entity.PaymentEvidence, error)
	GetByID(id string) (*entity.PaymentEvidence, error)
	// GetByIDForUpdate bloquea la fila (SELECT ... FOR UPDATE) para la
	// serialización por evidencia de verify/reject. Solo dentro de transacción.
	GetByIDForUpdate(id string) (*entity.PaymentEvidence, error)
	Update(evidence *entity.PaymentEvidence) error
	List(limit, offset int) ([]*entity.PaymentEvidence, error)
	ListByStatus(status string, limit, offset int) ([]*entity.PaymentEvidence, error)
	// ExistsVerifiedByOrigin indica si otra evidencia (distinta de excludeID)
	// con la misma identidad de origen ya está VERIFIED. Es la guardia contra
	// el doble conteo de un mismo comprobante.
	ExistsVerifiedByOrigin(messageID, attachment, excludeID string) (bool, error)
}
