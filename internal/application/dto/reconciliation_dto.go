package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/recaudo-api/internal/domain/entity"
)

// EvidenceResponse vista normalizada de una evidencia de pago.
// Nunca expone URLs del proveedor de correo: el comprobante se referencia por
// el path del almacenamiento durable.
type EvidenceResponse struct {
	ID              string           `json:"id"`
	SourceKind      string           `json:"source_kind"`
	SourceMessageID string           `json:"source_message_id"`
	AttachmentName  string           `json:"attachment_name,omitempty"`
	Mailbox         string           `json:"mailbox,omitempty"`
	Sender          string           `json:"sender,omitempty"`
	Subject         string           `json:"subject,omitempty"`
	Amount          *decimal.Decimal `json:"amount"` // null = requiere monto manual
	Currency        string           `json:"currency,omitempty"`
	PayerName       string           `json:"payer_name,omitempty"`
	InvoiceNumber   string           `json:"invoice_number,omitempty"`
	Confidence      float64          `json:"confidence"`
	Status          string           `json:"status"`
	InvoiceID       string           `json:"invoice_id,omitempty"`
	StoragePath     string           `json:"storage_path,omitempty"`
	MediaType       string           `json:"media_type,omitempty"`
	RejectReason    string           `json:"reject_reason,omitempty"`
	ReviewNote      string           `json:"review_note,omitempty"`
	ReviewedBy      string           `json:"reviewed_by,omitempty"`
	ReceivedAt      time.Time        `json:"received_at"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// FromEvidence mapea la entidad a su vista HTTP.
func FromEvidence(e *entity.PaymentEvidence) *EvidenceResponse {
	resp := &EvidenceResponse{
		ID:              e.ID,
		SourceKind:      e.SourceKind,
		SourceMessageID: e.SourceMessageID,
		AttachmentName:  e.AttachmentName,
		Mailbox:         e.Mailbox,
		Sender:          e.Sender,
		Subject:         e.Subject,
		Currency:        e.Currency,
		PayerName:       e.PayerName,
		InvoiceNumber:   e.InvoiceNumber,
		Confidence:      e.Confidence,
		Status:          e.Status,
		InvoiceID:       e.InvoiceID,
		StoragePath:     e.StoragePath,
		MediaType:       e.MediaType,
		RejectReason:    e.RejectReason,
		ReviewNote:      e.ReviewNote,
		ReviewedBy:      e.ReviewedBy,
		ReceivedAt:      e.ReceivedAt,
		CreatedAt:       e.CreatedAt,
		UpdatedAt:       e.UpdatedAt,
	}
	if e.Amount.Valid {
		a := e.Amount.Decimal
		resp.Amount = &a
	}
	return resp
}

// FromEvidenceList mapea una lista de evidencias.
func FromEvidenceList(list []*entity.PaymentEvidence) []*EvidenceResponse {
	out := make([]*EvidenceResponse, 0, len(list))
	for _, e := range list {
		out = append(out, FromEvidence(e))
	}
	return out
}

// InvoiceResponse vista de una factura con su estado efectivo (OVERDUE derivado).
type InvoiceResponse struct {
	ID          string          `json:"id"`
	Number      string          `json:"number"`
	ProjectID   string          `json:"project_id,omitempty"`
	CustomerID  string          `json:"customer_id,omitempty"`
	Total       decimal.Decimal `json:"total"`
	Collected   decimal.Decimal `json:"collected"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Currency    string          `json:"currency"`
	Status      string          `json:"status"`
	IssuedAt    time.Time       `json:"issued_at"`
	DueAt       time.Time       `json:"due_at"`
}

// FromInvoice mapea la entidad calculando el estado visible a la fecha.
func FromInvoice(i *entity.Invoice, now time.Time) *InvoiceResponse {
	return &InvoiceResponse{
		ID:          i.ID,
		Number:      i.Number,
		ProjectID:   i.ProjectID,
		CustomerID:  i.CustomerID,
		Total:       i.Total,
		Collected:   i.Collected,
		Outstanding: i.Outstanding,
		Currency:    i.Currency,
		Status:      i.EffectiveStatus(now),
		IssuedAt:    i.IssuedAt,
		DueAt:       i.DueAt,
	}
}

// MatchSuggestion candidato de factura para una evidencia sin referencia explícita.
type MatchSuggestion struct {
	Invoice    *InvoiceResponse `json:"invoice"`
	AmountDiff decimal.Decimal  `json:"amount_diff"` // |total - monto de la evidencia|
}

// VerifyRequest cuerpo de POST /evidence/:id/verify.
type VerifyRequest struct {
	Note string `json:"note"`
}

// VerifyResponse resultado de la verificación: evidencia y factura actualizadas.
type VerifyResponse struct {
	Evidence *EvidenceResponse `json:"evidence"`
	Invoice  *InvoiceResponse  `json:"invoice,omitempty"`
}

// RejectRequest cuerpo de POST /evidence/:id/reject.
type RejectRequest struct {
	Reason string `json:"reason"`
	Note   string `json:"note"`
}

// MatchRequest cuerpo de POST /evidence/:id/match. Amount permite corregir el
// monto extraído al confirmar (queda como monto aplicado).
type MatchRequest struct {
	InvoiceID string           `json:"invoice_id"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

// IngestRequest cuerpo de POST /ingest/mailbox.
type IngestRequest struct {
	Account string `json:"account"`
}

// ManualEvidenceRequest comprobante subido manualmente. Content viaja en
// base64 (encoding estándar de JSON para []byte).
type ManualEvidenceRequest struct {
	Filename  string           `json:"filename"`
	MediaType string           `json:"media_type"`
	Content   []byte           `json:"content"`
	Currency  string           `json:"currency"`
	PayerName string           `json:"payer_name"`
	Amount    *decimal.Decimal `json:"amount,omitempty"` // monto declarado; si falta se extrae del documento
}
