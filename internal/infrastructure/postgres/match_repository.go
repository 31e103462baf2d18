package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/recaudo-api/internal/domain"
	"github.com/jhoicas/recaudo-api/internal/domain/entity"
	"github.com/jhoicas/recaudo-api/internal/domain/repository"
)

var _ repository.MatchRepository = (*MatchRepo)(nil)

// MatchRepo implementación de MatchRepository (usable con pool o tx).
type MatchRepo struct {
	q Querier
}

// NewMatchRepository construye el adaptador. Pasar pool o tx (Querier).
func NewMatchRepository(q Querier) *MatchRepo {
	return &MatchRepo{q: q}
}

// Create inserta el registro de match. El índice único sobre evidence_id
// garantiza a lo sumo un match vivo por evidencia.
func (r *MatchRepo) Create(match *entity.PaymentMatch) error {
	if match.ID == "" {
		match.ID = uuid.New().String()
	}
	query := `
		INSERT INTO payment_matches (id, evidence_id, invoice_id, amount, match_type, matched_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.q.Exec(context.Background(), query,
		match.ID, match.EvidenceID, match.InvoiceID, match.Amount,
		match.MatchType, match.MatchedBy, match.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: la evidencia ya tiene un match vivo", domain.ErrDuplicate)
		}
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

// GetByEvidenceID devuelve el match vivo de la evidencia, o nil.
func (r *MatchRepo) GetByEvidenceID(evidenceID string) (*entity.PaymentMatch, error) {
	query := `
		SELECT id, evidence_id, invoice_id, amount, match_type, matched_by, created_at
		FROM payment_matches WHERE evidence_id = $1`
	var m entity.PaymentMatch
	err := r.q.QueryRow(context.Background(), query, evidenceID).Scan(
		&m.ID, &m.EvidenceID, &m.InvoiceID, &m.Amount, &m.MatchType, &m.MatchedBy, &m.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get match: %w", err)
	}
	return &m, nil
}

// ListByInvoiceID devuelve los matches de una factura, los más recientes primero.
func (r *MatchRepo) ListByInvoiceID(invoiceID string) ([]*entity.PaymentMatch, error) {
	query := `
		SELECT id, evidence_id, invoice_id, amount, match_type, matched_by, created_at
		FROM payment_matches WHERE invoice_id = $1 ORDER BY created_at DESC`
	rows, err := r.q.Query(context.Background(), query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()
	var list []*entity.PaymentMatch
	for rows.Next() {
		var m entity.PaymentMatch
		if err := rows.Scan(&m.ID, &m.EvidenceID, &m.InvoiceID, &m.Amount, &m.MatchType, &m.MatchedBy, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan match: %w", err)
		}
		list = append(list, &m)
	}
	return list, rows.Err()
}

// DeleteByEvidenceID corta el match vivo (solo válido antes de verificar).
func (r *MatchRepo) DeleteByEvidenceID(evidenceID string) error {
	_, err := r.q.Exec(context.Background(),
		`DELETE FROM payment_matches WHERE evidence_id = $1`, evidenceID)
	if err != nil {
		return fmt.Errorf("delete match: %w", err)
	}
	return nil
}
