package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Tipos de match según el origen de la evidencia.
const (
	MatchTypeBankCredit = "bank_credit"
	MatchTypeReceipt    = "receipt"
)

// PaymentMatch es el registro inmutable de auditoría que ata una evidencia a
// una factura con el monto efectivamente aplicado. Se crea exactamente una vez
// por transacción exitosa del libro mayor; nunca se actualiza ni se borra.
// Hay a lo sumo un match vivo por evidencia; la historia queda en CreatedAt.
type PaymentMatch struct {
	ID         string
	EvidenceID string
	InvoiceID  string
	Amount     decimal.Decimal
	MatchType  string // bank_credit | receipt
	MatchedBy  string // actor que confirmó (o "system" en el camino determinista)
	CreatedAt  time.Time
}
