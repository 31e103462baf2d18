package reconciliation

import (
	"context"
	"time"

	"github.com/jhoicas/recaudo-api/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción que incluye los
// repos de conciliación. Es la frontera transaccional de verify/match/reject.
type TxRunner interface {
	RunReconciliation(ctx context.Context, fn func(
		evidenceRepo repository.EvidenceRepository,
		invoiceRepo repository.InvoiceRepository,
		matchRepo repository.MatchRepository,
	) error) error
}

// MailAttachment metadatos de un adjunto según el proveedor de correo.
type MailAttachment struct {
	ID       string
	Filename string
	MimeType string
	Size     int64
}

// MailMessage vista normalizada de un mensaje del proveedor de correo.
type MailMessage struct {
	ID          string
	ThreadID    string
	Sender      string
	Subject     string
	Snippet     string
	ReceivedAt  time.Time
	Attachments []MailAttachment
}

// MailClient puerto hacia el proveedor de correo (Gmail). Todas las llamadas
// llevan context con timeout acotado; un fallo por mensaje no aborta el lote.
type MailClient interface {
	// ListMessages devuelve los IDs de mensajes que satisfacen la consulta.
	ListMessages(ctx context.Context, account, query string) ([]string, error)
	GetMessage(ctx context.Context, account, messageID string) (*MailMessage, error)
	GetAttachment(ctx context.Context, account, messageID, attachmentID string) ([]byte, error)
	// GetAttachmentByName re-obtiene un adjunto por nombre de archivo. Los IDs
	// de adjunto de Gmail no son estables entre sesiones; el nombre sí.
	GetAttachmentByName(ctx context.Context, account, messageID, filename string) ([]byte, error)
}

// TextOCR puerto hacia el motor OCR para imágenes.
type TextOCR interface {
	ExtractText(ctx context.Context, image []byte) (string, error)
}

// PDFTextReader extrae la capa de texto embebida de un PDF.
// Sin capa de texto no hay fallback a OCR: el extractor falla suave.
type PDFTextReader interface {
	ExtractText(data []byte) (string, error)
}

// FileStore puerto de persistencia durable de comprobantes. El path devuelto
// es estable y es lo único que se expone a los callers (nunca URLs del
// proveedor de correo).
type FileStore interface {
	Save(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Fetch(ctx context.Context, path string) ([]byte, error)
}
