package reconciliation

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/recaudo-api/internal/application/dto"
	"github.com/jhoicas/recaudo-api/internal/domain"
	"github.com/jhoicas/recaudo-api/internal/domain/entity"
	"github.com/jhoicas/recaudo-api/internal/domain/repository"
	"github.com/jhoicas/recaudo-api/pkg/logger"
)

// Cantidad de candidatos sugeridos en el camino heurístico.
const topSuggestions = 5

// MatchUseCase resuelve el emparejamiento evidencia-factura: sugerencias por
// cercanía de monto y confirmación/ruptura manual. El match es 1:1 por
// evidencia en todo instante.
type MatchUseCase struct {
	evidenceRepo repository.EvidenceRepository
	invoiceRepo  repository.InvoiceRepository
	txRunner     TxRunner
	log          *logger.Logger
}

// NewMatchUseCase construye el caso de uso.
func NewMatchUseCase(
	evidenceRepo repository.EvidenceRepository,
	invoiceRepo repository.InvoiceRepository,
	txRunner TxRunner,
	log *logger.Logger,
) *MatchUseCase {
	return &MatchUseCase{
		evidenceRepo: evidenceRepo,
		invoiceRepo:  invoiceRepo,
		txRunner:     txRunner,
		log:          log,
	}
}

// SuggestMatches devuelve hasta topSuggestions facturas abiertas ordenadas
// ascendente por |total - monto|. Nunca aplica un match automáticamente.
// Una evidencia sin monto no recibe sugerencias.
func (uc *MatchUseCase) SuggestMatches(ctx context.Context, evidenceID string) ([]*dto.MatchSuggestion, error) {
	evidence, err := uc.evidenceRepo.GetByID(evidenceID)
	if err != nil {
		return nil, err
	}
	if evidence == nil {
		return nil, domain.ErrNotFound
	}
	if !evidence.HasAmount() {
		return []*dto.MatchSuggestion{}, nil
	}

	// Camino determinista: referencia explícita gana sobre cualquier ranking
	// por cercanía de monto.
	if evidence.InvoiceNumber != "" {
		invoice, err := uc.invoiceRepo.GetByNumber(evidence.InvoiceNumber)
		if err != nil {
			return nil, err
		}
		if invoice != nil && invoice.IsOpen() {
			diff := invoice.Total.Sub(evidence.Amount.Decimal).Abs()
			return []*dto.MatchSuggestion{{
				Invoice:    dto.FromInvoice(invoice, time.Now()),
				AmountDiff: diff,
			}}, nil
		}
	}

	open, err := uc.invoiceRepo.ListOpen()
	if err != nil {
		return nil, err
	}

	amount := evidence.Amount.Decimal
	type scored struct {
		invoice *entity.Invoice
		diff    decimal.Decimal
	}
	candidates := make([]scored, 0, len(open))
	for _, inv := range open {
		candidates = append(candidates, scored{invoice: inv, diff: inv.Total.Sub(amount).Abs()})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].diff.LessThan(candidates[j].diff)
	})
	if len(candidates) > topSuggestions {
		candidates = candidates[:topSuggestions]
	}

	now := time.Now()
	out := make([]*dto.MatchSuggestion, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, &dto.MatchSuggestion{
			Invoice:    dto.FromInvoice(c.invoice, now),
			AmountDiff: c.diff,
		})
	}
	return out, nil
}

// ConfirmMatch ata la evidencia a la factura y crea el registro de match.
// Si la evidencia ya estaba emparejada con otra factura, primero se corta el
// match anterior dentro de la misma transacción.
func (uc *MatchUseCase) ConfirmMatch(ctx context.Context, actorID, evidenceID, invoiceID string, amount *decimal.Decimal) (*entity.PaymentEvidence, error) {
	if actorID == "" {
		return nil, domain.ErrUnauthorized
	}
	if evidenceID == "" || invoiceID == "" {
		return nil, domain.ErrInvalidInput
	}

	var result *entity.PaymentEvidence
	err := uc.txRunner.RunReconciliation(ctx, func(
		evidenceRepo repository.EvidenceRepository,
		invoiceRepo repository.InvoiceRepository,
		matchRepo repository.MatchRepository,
	) error {
		evidence, err := evidenceRepo.GetByIDForUpdate(evidenceID)
		if err != nil {
			return err
		}
		if evidence == nil {
			return domain.ErrNotFound
		}
		if evidence.IsTerminal() {
			return domain.ErrConflict
		}

		invoice, err := invoiceRepo.GetByID(invoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrNotFound
		}

		applied := evidence.Amount
		if amount != nil {
			if !amount.GreaterThan(decimal.Zero) {
				return domain.ErrInvalidInput
			}
			applied = decimal.NullDecimal{Decimal: *amount, Valid: true}
		}
		if !applied.Valid {
			// Sin monto extraído ni corregido no hay nada que aplicar después.
			return domain.ErrInvalidInput
		}

		// Reconfirmar contra otra factura corta el match vivo anterior.
		if evidence.Status == entity.EvidenceStatusMatched {
			if err := matchRepo.DeleteByEvidenceID(evidenceID); err != nil {
				return err
			}
		}

		match := &entity.PaymentMatch{
			ID:         uuid.New().String(),
			EvidenceID: evidenceID,
			InvoiceID:  invoiceID,
			Amount:     applied.Decimal,
			MatchType:  matchTypeFor(evidence.SourceKind),
			MatchedBy:  actorID,
			CreatedAt:  time.Now(),
		}
		if err := matchRepo.Create(match); err != nil {
			return err
		}

		evidence.Amount = applied
		evidence.InvoiceID = invoiceID
		evidence.Status = entity.EvidenceStatusMatched
		evidence.UpdatedAt = match.CreatedAt
		if err := evidenceRepo.Update(evidence); err != nil {
			return err
		}
		result = evidence
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info().
		Str("evidence_id", evidenceID).
		Str("invoice_id", invoiceID).
		Str("actor", actorID).
		Msg("match confirmado")
	return result, nil
}

// Unmatch rompe el match vivo y regresa la evidencia a su estado pre-match.
// Prohibido tras la verificación: el monto ya fue aplicado al libro mayor y
// desmatchear lo desincronizaría sin reversa.
func (uc *MatchUseCase) Unmatch(ctx context.Context, actorID, evidenceID string) (*entity.PaymentEvidence, error) {
	if actorID == "" {
		return nil, domain.ErrUnauthorized
	}

	var result *entity.PaymentEvidence
	err := uc.txRunner.RunReconciliation(ctx, func(
		evidenceRepo repository.EvidenceRepository,
		invoiceRepo repository.InvoiceRepository,
		matchRepo repository.MatchRepository,
	) error {
		evidence, err := evidenceRepo.GetByIDForUpdate(evidenceID)
		if err != nil {
			return err
		}
		if evidence == nil {
			return domain.ErrNotFound
		}
		if evidence.Status != entity.EvidenceStatusMatched {
			return domain.ErrConflict
		}

		if err := matchRepo.DeleteByEvidenceID(evidenceID); err != nil {
			return err
		}

		evidence.InvoiceID = ""
		evidence.Status = preMatchStatus(evidence.SourceKind)
		evidence.UpdatedAt = time.Now()
		if err := evidenceRepo.Update(evidence); err != nil {
			return err
		}
		result = evidence
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.log.Info().Str("evidence_id", evidenceID).Str("actor", actorID).Msg("match roto")
	return result, nil
}

func matchTypeFor(sourceKind string) string {
	if sourceKind == entity.EvidenceSourceBankNotification {
		return entity.MatchTypeBankCredit
	}
	return entity.MatchTypeReceipt
}

// preMatchStatus devuelve el estado inicial según el origen.
func preMatchStatus(sourceKind string) string {
	if sourceKind == entity.EvidenceSourceManualUpload {
		return entity.EvidenceStatusSubmitted
	}
	return entity.EvidenceStatusUnmatched
}
