package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/recaudo-api/internal/domain"
	"github.com/jhoicas/recaudo-api/internal/domain/entity"
	"github.com/jhoicas/recaudo-api/internal/domain/repository"
	"github.com/jhoicas/recaudo-api/pkg/logger"
)

// Timeout para la copia best-effort del comprobante al almacenamiento durable.
const persistSlipTimeout = 20 * time.Second

// VerifyResult evidencia y factura resultantes de una verificación.
type VerifyResult struct {
	Evidence *entity.PaymentEvidence
	Invoice  *entity.Invoice
}

// LedgerUseCase es el único componente autorizado a mutar
// collected/outstanding/status de una factura. Aplica el monto de una
// evidencia verificada exactamente una vez y deja el registro de match.
type LedgerUseCase struct {
	txRunner     TxRunner
	evidenceRepo repository.EvidenceRepository
	mail         MailClient
	files        FileStore
	extractor    *DocumentExtractor
	log          *logger.Logger
}

// NewLedgerUseCase construye el caso de uso.
func NewLedgerUseCase(
	txRunner TxRunner,
	evidenceRepo repository.EvidenceRepository,
	mail MailClient,
	files FileStore,
	extractor *DocumentExtractor,
	log *logger.Logger,
) *LedgerUseCase {
	return &LedgerUseCase{
		txRunner:     txRunner,
		evidenceRepo: evidenceRepo,
		mail:         mail,
		files:        files,
		extractor:    extractor,
		log:          log,
	}
}

// Verify aplica el monto de la evidencia al libro mayor en una sola
// transacción. Idempotente: si ya está VERIFIED devuelve el estado actual sin
// tocar nada. La fila de evidencia se bloquea (FOR UPDATE) para que dos
// verify concurrentes del mismo id no apliquen el delta dos veces.
func (uc *LedgerUseCase) Verify(ctx context.Context, actorID, evidenceID, note string) (*VerifyResult, error) {
	if actorID == "" {
		return nil, domain.ErrUnauthorized
	}

	var result VerifyResult
	var persistPending *entity.PaymentEvidence

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

		switch evidence.Status {
		case entity.EvidenceStatusVerified:
			// Idempotencia: no se re-aplica el monto ni se re-persiste el archivo.
			result.Evidence = evidence
			if evidence.InvoiceID != "" {
				invoice, err := invoiceRepo.GetByID(evidence.InvoiceID)
				if err != nil {
					return err
				}
				result.Invoice = invoice
			}
			return nil
		case entity.EvidenceStatusRejected:
			return domain.ErrAlreadyRejected
		case entity.EvidenceStatusMatched:
			// sigue
		default:
			// UNMATCHED/SUBMITTED: primero debe existir un match confirmado.
			return domain.ErrConflict
		}
		if evidence.InvoiceID == "" || !evidence.HasAmount() {
			return domain.ErrConflict
		}

		now := time.Now()

		// Guardia anti doble conteo: otra evidencia con la misma identidad de
		// origen ya verificada significa que el monto ya fue contado. Esta
		// unidad queda VERIFIED solo como registro contable.
		msgID, attName := evidence.OriginKey()
		counted, err := evidenceRepo.ExistsVerifiedByOrigin(msgID, attName, evidence.ID)
		if err != nil {
			return err
		}
		if counted {
			uc.markVerified(evidence, actorID, note, now)
			if err := evidenceRepo.Update(evidence); err != nil {
				return err
			}
			result.Evidence = evidence
			invoice, err := invoiceRepo.GetByID(evidence.InvoiceID)
			if err != nil {
				return err
			}
			result.Invoice = invoice
			uc.log.Info().Str("evidence_id", evidence.ID).Msg("origen ya contado: se omite la mutación del libro mayor")
			return nil
		}

		invoice, err := invoiceRepo.GetByIDForUpdate(evidence.InvoiceID)
		if err != nil {
			return err
		}
		if invoice == nil {
			return domain.ErrNotFound
		}

		applyAmount(invoice, evidence.Amount.Decimal, now)
		if !invoice.CheckLedgerInvariant() {
			// Indica un bug: abortar antes que persistir una factura inconsistente.
			return fmt.Errorf("%w: factura %s", domain.ErrLedgerInvariant, invoice.ID)
		}
		if err := invoiceRepo.UpdateLedger(invoice); err != nil {
			return err
		}

		// El registro de match y la mutación del libro mayor comitean juntos.
		match, err := matchRepo.GetByEvidenceID(evidence.ID)
		if err != nil {
			return err
		}
		if match == nil {
			match = &entity.PaymentMatch{
				ID:         uuid.New().String(),
				EvidenceID: evidence.ID,
				InvoiceID:  invoice.ID,
				Amount:     evidence.Amount.Decimal,
				MatchType:  matchTypeFor(evidence.SourceKind),
				MatchedBy:  actorID,
				CreatedAt:  now,
			}
			if err := matchRepo.Create(match); err != nil {
				return err
			}
		}

		uc.markVerified(evidence, actorID, note, now)
		if err := evidenceRepo.Update(evidence); err != nil {
			return err
		}

		result.Evidence = evidence
		result.Invoice = invoice
		if evidence.StoragePath == "" && evidence.AttachmentName != "" {
			persistPending = evidence
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Copia best-effort del comprobante fuera de la transacción: un error aquí
	// jamás falla la verificación.
	if persistPending != nil {
		uc.persistSlip(ctx, persistPending)
	}

	uc.log.Info().
		Str("evidence_id", evidenceID).
		Str("actor", actorID).
		Msg("evidencia verificada")
	return &result, nil
}

// Reject transiciona la evidencia a REJECTED con razón y revisor. Nunca toca
// el libro mayor. Rechazar una evidencia ya verificada exige un flujo de
// reversa explícito que está fuera de alcance: se responde conflicto.
func (uc *LedgerUseCase) Reject(ctx context.Context, actorID, evidenceID, reason, note string) (*entity.PaymentEvidence, error) {
	if actorID == "" {
		return nil, domain.ErrUnauthorized
	}
	if reason == "" {
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
		switch evidence.Status {
		case entity.EvidenceStatusVerified:
			return domain.ErrAlreadyVerified
		case entity.EvidenceStatusRejected:
			// Segundo reject: sin efecto, se devuelve el estado actual.
			result = evidence
			return nil
		}

		// Un match vivo no verificado se corta; la evidencia se conserva para auditoría.
		if evidence.Status == entity.EvidenceStatusMatched {
			if err := matchRepo.DeleteByEvidenceID(evidence.ID); err != nil {
				return err
			}
			evidence.InvoiceID = ""
		}

		evidence.Status = entity.EvidenceStatusRejected
		evidence.RejectReason = reason
		evidence.ReviewNote = note
		evidence.ReviewedBy = actorID
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

	uc.log.Info().
		Str("evidence_id", evidenceID).
		Str("actor", actorID).
		Str("reason", reason).
		Msg("evidencia rechazada")
	return result, nil
}

// ReextractAmount reintenta la extracción de monto sobre los bytes del
// comprobante. Solo opera sobre evidencia sin match (UNMATCHED/SUBMITTED): con
// un match confirmado el monto queda fijado hasta deshacer el match, para que
// el registro de match siempre coincida con el monto que Verify aplica. Un
// fallo del proveedor se propaga como error reintentable.
func (uc *LedgerUseCase) ReextractAmount(ctx context.Context, actorID, evidenceID string) (*entity.PaymentEvidence, error) {
	if actorID == "" {
		return nil, domain.ErrUnauthorized
	}
	evidence, err := uc.evidenceRepo.GetByID(evidenceID)
	if err != nil {
		return nil, err
	}
	if evidence == nil {
		return nil, domain.ErrNotFound
	}
	switch evidence.Status {
	case entity.EvidenceStatusUnmatched, entity.EvidenceStatusSubmitted:
		// sigue
	default:
		return nil, domain.ErrConflict
	}
	if evidence.AttachmentName == "" {
		// Notificación bancaria sin documento: no hay nada que re-extraer.
		return nil, domain.ErrInvalidInput
	}

	data, err := uc.fetchSlip(ctx, evidence)
	if err != nil {
		return nil, fmt.Errorf("%w: obtener comprobante: %v", domain.ErrUpstreamTimeout, err)
	}

	amount := uc.extractor.Extract(ctx, data, evidence.MediaType)
	evidence.Amount = amount
	if amount.Valid {
		evidence.Confidence = confidenceSlipAmount
	} else {
		evidence.Confidence = confidenceNoAmount
	}
	evidence.UpdatedAt = time.Now()
	if err := uc.evidenceRepo.Update(evidence); err != nil {
		return nil, err
	}
	return evidence, nil
}

// GetEvidence detalle de una evidencia.
func (uc *LedgerUseCase) GetEvidence(ctx context.Context, evidenceID string) (*entity.PaymentEvidence, error) {
	evidence, err := uc.evidenceRepo.GetByID(evidenceID)
	if err != nil {
		return nil, err
	}
	if evidence == nil {
		return nil, domain.ErrNotFound
	}
	return evidence, nil
}

// ListEvidence lista evidencias, con filtro opcional por estado.
func (uc *LedgerUseCase) ListEvidence(ctx context.Context, status string, limit, offset int) ([]*entity.PaymentEvidence, error) {
	if status != "" {
		return uc.evidenceRepo.ListByStatus(status, limit, offset)
	}
	return uc.evidenceRepo.List(limit, offset)
}

// fetchSlip obtiene los bytes del comprobante: primero del almacenamiento
// durable, si no del proveedor de correo por nombre de adjunto.
func (uc *LedgerUseCase) fetchSlip(ctx context.Context, evidence *entity.PaymentEvidence) ([]byte, error) {
	if evidence.StoragePath != "" {
		return uc.files.Fetch(ctx, evidence.StoragePath)
	}
	return uc.mail.GetAttachmentByName(ctx, evidence.Mailbox, evidence.SourceMessageID, evidence.AttachmentName)
}

// persistSlip copia el comprobante del proxy transitorio (correo) al
// almacenamiento durable. Best-effort: solo deja registro en el log.
func (uc *LedgerUseCase) persistSlip(ctx context.Context, evidence *entity.PaymentEvidence) {
	pctx, cancel := context.WithTimeout(ctx, persistSlipTimeout)
	defer cancel()

	data, err := uc.mail.GetAttachmentByName(pctx, evidence.Mailbox, evidence.SourceMessageID, evidence.AttachmentName)
	if err != nil {
		uc.log.Warn().Err(err).Str("evidence_id", evidence.ID).Msg("no se pudo re-obtener el comprobante para persistirlo")
		return
	}
	key := fmt.Sprintf("%s/%s", evidence.SourceMessageID, evidence.AttachmentName)
	path, err := uc.files.Save(pctx, key, data, evidence.MediaType)
	if err != nil {
		uc.log.Warn().Err(err).Str("evidence_id", evidence.ID).Msg("no se pudo persistir el comprobante")
		return
	}
	evidence.StoragePath = path
	if err := uc.evidenceRepo.Update(evidence); err != nil {
		uc.log.Warn().Err(err).Str("evidence_id", evidence.ID).Msg("no se pudo guardar el storage path")
	}
}

func (uc *LedgerUseCase) markVerified(evidence *entity.PaymentEvidence, actorID, note string, now time.Time) {
	evidence.Status = entity.EvidenceStatusVerified
	evidence.ReviewNote = note
	evidence.ReviewedBy = actorID
	evidence.UpdatedAt = now
}

// applyAmount ejecuta la mutación del libro mayor:
// collected += amount; outstanding = max(0, total-collected);
// status = PAID si outstanding == 0, PARTIALLY_PAID si collected > 0.
func applyAmount(invoice *entity.Invoice, amount decimal.Decimal, now time.Time) {
	invoice.Collected = invoice.Collected.Add(amount)
	outstanding := invoice.Total.Sub(invoice.Collected)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}
	invoice.Outstanding = outstanding
	switch {
	case invoice.Outstanding.IsZero():
		invoice.Status = entity.InvoiceStatusPaid
	case invoice.Collected.GreaterThan(decimal.Zero):
		invoice.Status = entity.InvoiceStatusPartiallyPaid
	}
	invoice.UpdatedAt = now
}
