package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/recaudo-api/internal/domain/entity"
	"github.com/jhoicas/recaudo-api/internal/domain/repository"
)

var _ repository.EvidenceRepository = (*EvidenceRepo)(nil)

const evidenceColumns = `id, source_kind, source_message_id, attachment_name, mailbox,
	       sender, subject, amount, currency, payer_name, invoice_number,
	       confidence, status, invoice_id, storage_path, media_type,
	       reject_reason, review_note, reviewed_by, received_at, created_at, updated_at`

// EvidenceRepo implementación de EvidenceRepository (usable con pool o tx).
type EvidenceRepo struct {
	q Querier
}

// NewEvidenceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewEvidenceRepository(q Querier) *EvidenceRepo {
	return &EvidenceRepo{q: q}
}

// Upsert inserta por identidad de origen (source_message_id, attachment_name).
// Si la fila existe, solo refresca los campos de extracción mientras la
// evidencia siga en su estado inicial: una evidencia matcheada, verificada o
// rechazada nunca se pisa por re-ingesta.
func (r *EvidenceRepo) Upsert(evidence *entity.PaymentEvidence) (*entity.PaymentEvidence, error) {
	if evidence.ID == "" {
		evidence.ID = uuid.New().String()
	}
	now := time.Now()
	if evidence.CreatedAt.IsZero() {
		evidence.CreatedAt = now
	}
	evidence.UpdatedAt = now

	query := `
		INSERT INTO payment_evidence (
			id, source_kind, source_message_id, attachment_name, mailbox,
			sender, subject, amount, currency, payer_name, invoice_number,
			confidence, status, invoice_id, storage_path, media_type,
			reject_reason, review_note, reviewed_by, received_at, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (source_message_id, attachment_name) DO UPDATE
		SET amount         = CASE WHEN payment_evidence.status IN ('UNMATCHED','SUBMITTED') THEN EXCLUDED.amount ELSE payment_evidence.amount END,
		    confidence     = CASE WHEN payment_evidence.status IN ('UNMATCHED','SUBMITTED') THEN EXCLUDED.confidence ELSE payment_evidence.confidence END,
		    invoice_number = COALESCE(NULLIF(EXCLUDED.invoice_number, ''), payment_evidence.invoice_number),
		    subject        = EXCLUDED.subject,
		    updated_at     = EXCLUDED.updated_at
		RETURNING ` + evidenceColumns
	row := r.q.QueryRow(context.Background(), query,
		evidence.ID, evidence.SourceKind, evidence.SourceMessageID, evidence.AttachmentName,
		nullIfEmpty(evidence.Mailbox), nullIfEmpty(evidence.Sender), nullIfEmpty(evidence.Subject),
		evidence.Amount, nullIfEmpty(evidence.Currency), nullIfEmpty(evidence.PayerName),
		nullIfEmpty(evidence.InvoiceNumber), evidence.Confidence, evidence.Status,
		nullIfEmpty(evidence.InvoiceID), nullIfEmpty(evidence.StoragePath), nullIfEmpty(evidence.MediaType),
		nullIfEmpty(evidence.RejectReason), nullIfEmpty(evidence.ReviewNote), nullIfEmpty(evidence.ReviewedBy),
		evidence.ReceivedAt, evidence.CreatedAt, evidence.UpdatedAt,
	)
	saved, err := scanEvidence(row)
	if err != nil {
		return nil, fmt.Errorf("upsert evidence: %w", err)
	}
	return saved, nil
}

// GetByID obtiene una evidencia por ID.
func (r *EvidenceRepo) GetByID(id string) (*entity.PaymentEvidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM payment_evidence WHERE id = $1`
	ev, err := scanEvidence(r.q.QueryRow(context.Background(), query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get evidence: %w", err)
	}
	return ev, nil
}

// GetByIDForUpdate bloquea la fila de la evidencia. Solo dentro de transacción.
func (r *EvidenceRepo) GetByIDForUpdate(id string) (*entity.PaymentEvidence, error) {
	query := `SELECT ` + evidenceColumns + ` FROM payment_evidence WHERE id = $1 FOR UPDATE`
	ev, err := scanEvidence(r.q.QueryRow(context.Background(), query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get evidence for update: %w", err)
	}
	return ev, nil
}

// Update persiste los campos mutables de la evidencia.
func (r *EvidenceRepo) Update(evidence *entity.PaymentEvidence) error {
	query := `
		UPDATE payment_evidence
		SET amount        = $2,
		    currency      = $3,
		    payer_name    = $4,
		    invoice_number = $5,
		    confidence    = $6,
		    status        = $7,
		    invoice_id    = $8,
		    storage_path  = $9,
		    reject_reason = $10,
		    review_note   = $11,
		    reviewed_by   = $12,
		    updated_at    = $13
		WHERE id = $1`
	tag, err := r.q.Exec(context.Background(), query,
		evidence.ID, evidence.Amount, nullIfEmpty(evidence.Currency), nullIfEmpty(evidence.PayerName),
		nullIfEmpty(evidence.InvoiceNumber), evidence.Confidence, evidence.Status,
		nullIfEmpty(evidence.InvoiceID), nullIfEmpty(evidence.StoragePath),
		nullIfEmpty(evidence.RejectReason), nullIfEmpty(evidence.ReviewNote), nullIfEmpty(evidence.ReviewedBy),
		evidence.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update evidence: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update evidence: evidencia %s no existe", evidence.ID)
	}
	return nil
}

// List devuelve evidencias paginadas, las más recientes primero.
func (r *EvidenceRepo) List(limit, offset int) ([]*entity.PaymentEvidence, error) {
	query := `SELECT ` + evidenceColumns + `
		FROM payment_evidence ORDER BY received_at DESC LIMIT $1 OFFSET $2`
	rows, err := r.q.Query(context.Background(), query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list evidence: %w", err)
	}
	defer rows.Close()
	return scanEvidenceRows(rows)
}

// ListByStatus filtra por estado.
func (r *EvidenceRepo) ListByStatus(status string, limit, offset int) ([]*entity.PaymentEvidence, error) {
	query := `SELECT ` + evidenceColumns + `
		FROM payment_evidence WHERE status = $1
		ORDER BY received_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.q.Query(context.Background(), query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list evidence by status: %w", err)
	}
	defer rows.Close()
	return scanEvidenceRows(rows)
}

// ExistsVerifiedByOrigin guardia contra el doble conteo de un mismo origen.
func (r *EvidenceRepo) ExistsVerifiedByOrigin(messageID, attachment, excludeID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM payment_evidence
			WHERE source_message_id = $1 AND attachment_name = $2
			  AND status = $3 AND id <> $4
		)`
	var exists bool
	err := r.q.QueryRow(context.Background(), query,
		messageID, attachment, entity.EvidenceStatusVerified, excludeID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("exists verified by origin: %w", err)
	}
	return exists, nil
}

func scanEvidence(row pgx.Row) (*entity.PaymentEvidence, error) {
	var e entity.PaymentEvidence
	var mailbox, sender, subject, currency, payerName, invoiceNumber *string
	var invoiceID, storagePath, mediaType, rejectReason, reviewNote, reviewedBy *string
	err := row.Scan(
		&e.ID, &e.SourceKind, &e.SourceMessageID, &e.AttachmentName, &mailbox,
		&sender, &subject, &e.Amount, &currency, &payerName, &invoiceNumber,
		&e.Confidence, &e.Status, &invoiceID, &storagePath, &mediaType,
		&rejectReason, &reviewNote, &reviewedBy, &e.ReceivedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Mailbox = derefStr(mailbox)
	e.Sender = derefStr(sender)
	e.Subject = derefStr(subject)
	e.Currency = derefStr(currency)
	e.PayerName = derefStr(payerName)
	e.InvoiceNumber = derefStr(invoiceNumber)
	e.InvoiceID = derefStr(invoiceID)
	e.StoragePath = derefStr(storagePath)
	e.MediaType = derefStr(mediaType)
	e.RejectReason = derefStr(rejectReason)
	e.ReviewNote = derefStr(reviewNote)
	e.ReviewedBy = derefStr(reviewedBy)
	return &e, nil
}

func scanEvidenceRows(rows pgx.Rows) ([]*entity.PaymentEvidence, error) {
	var list []*entity.PaymentEvidence
	for rows.Next() {
		ev, err := scanEvidence(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evidence: %w", err)
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}
