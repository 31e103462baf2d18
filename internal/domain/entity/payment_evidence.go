package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Orígenes de la evidencia de pago.
const (
	EvidenceSourceBankNotification = "bank-notification"
	EvidenceSourceEmailReply       = "email-reply"
	EvidenceSourceManualUpload     = "manual-upload"
)

// Estados de una evidencia de pago.
// Flujo: UNMATCHED/SUBMITTED -> MATCHED -> VERIFIED (terminal)
// o -> REJECTED (terminal). MATCHED -> UNMATCHED vía unmatch explícito.
const (
	EvidenceStatusUnmatched = "UNMATCHED"
	EvidenceStatusSubmitted = "SUBMITTED"
	EvidenceStatusMatched   = "MATCHED"
	EvidenceStatusVerified  = "VERIFIED"
	EvidenceStatusRejected  = "REJECTED"
)

// PaymentEvidence es una unidad de prueba de pago no confiable: un adjunto de
// correo, una notificación bancaria o un comprobante subido manualmente.
// La pareja (SourceMessageID, AttachmentName) identifica de forma única una
// evidencia; para notificaciones bancarias basta el SourceMessageID (adjunto vacío).
// Nunca se borra: las rechazadas se conservan para auditoría.
type PaymentEvidence struct {
	ID              string
	SourceKind      string // bank-notification | email-reply | manual-upload
	SourceMessageID string
	AttachmentName  string
	Mailbox         string
	Sender          string
	Subject         string
	Amount          decimal.NullDecimal // nullable: extracción puede fallar
	Currency        string
	PayerName       string
	InvoiceNumber   string // token de número de factura detectado en el origen (puede estar vacío)
	Confidence      float64
	Status          string
	InvoiceID       string // factura emparejada (vacío si no hay match vivo)
	StoragePath     string // ruta durable del comprobante (vacío si no se ha persistido)
	MediaType       string
	RejectReason    string
	ReviewNote      string
	ReviewedBy      string // actor que verificó o rechazó
	ReceivedAt      time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// OriginKey devuelve la llave de idempotencia de ingesta.
func (e *PaymentEvidence) OriginKey() (messageID, attachment string) {
	return e.SourceMessageID, e.AttachmentName
}

// IsTerminal indica si la evidencia ya no admite transiciones.
func (e *PaymentEvidence) IsTerminal() bool {
	return e.Status == EvidenceStatusVerified || e.Status == EvidenceStatusRejected
}

// HasAmount indica si hay un monto extraído o declarado.
func (e *PaymentEvidence) HasAmount() bool {
	return e.Amount.Valid && e.Amount.Decimal.GreaterThan(decimal.Zero)
}
