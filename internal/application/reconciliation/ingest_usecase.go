package reconciliation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/jhoicas/recaudo-api/internal/application/dto"
	"github.com/jhoicas/recaudo-api/internal/domain"
	"github.com/jhoicas/recaudo-api/internal/domain/entity"
	"github.com/jhoicas/recaudo-api/internal/domain/extract"
	"github.com/jhoicas/recaudo-api/internal/domain/repository"
	"github.com/jhoicas/recaudo-api/pkg/logger"
)

const (
	defaultMaxParallel = 4
	perMessageTimeout  = 45 * time.Second

	// Umbrales anti-ruido: un adjunto más pequeño que esto no es un comprobante.
	minPDFBytes   = 512
	minImageBytes = 2048

	// Confianza fija del camino determinista (referencia explícita de factura).
	confidenceExplicitRef = 0.95
	confidenceSlipAmount  = 0.80
	confidenceBankAmount  = 0.70
	confidenceNoAmount    = 0.30
	confidenceDeclared    = 0.90
)

// IngestConfig configuración inyectada del normalizador; nunca se lee estado
// global dentro de la lógica de matching o libro mayor.
type IngestConfig struct {
	Account        string // buzón por defecto cuando la petición no trae cuenta
	Query          string
	TrustedSenders []string // remitentes bancarios: único origen que auto-marca MATCHED
	MaxParallel    int
}

// IngestUseCase normaliza señales de pago heterogéneas (mensajes Gmail con
// adjuntos, notificaciones bancarias, comprobantes manuales) a PaymentEvidence.
type IngestUseCase struct {
	evidenceRepo repository.EvidenceRepository
	invoiceRepo  repository.InvoiceRepository
	mail         MailClient
	extractor    *DocumentExtractor
	files        FileStore
	cfg          IngestConfig
	log          *logger.Logger
}

// NewIngestUseCase construye el caso de uso.
func NewIngestUseCase(
	evidenceRepo repository.EvidenceRepository,
	invoiceRepo repository.InvoiceRepository,
	mail MailClient,
	extractor *DocumentExtractor,
	files FileStore,
	cfg IngestConfig,
	log *logger.Logger,
) *IngestUseCase {
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = defaultMaxParallel
	}
	return &IngestUseCase{
		evidenceRepo: evidenceRepo,
		invoiceRepo:  invoiceRepo,
		mail:         mail,
		extractor:    extractor,
		files:        files,
		cfg:          cfg,
		log:          log,
	}
}

// IngestMailbox recorre el buzón y normaliza cada mensaje relevante a
// evidencia. Los mensajes se procesan en paralelo acotado; los adjuntos de un
// mismo mensaje, en secuencia. Modelo de éxito parcial: los ítems fallidos se
// registran en el log y se omiten, nunca abortan el lote.
func (uc *IngestUseCase) IngestMailbox(ctx context.Context, account string) ([]*entity.PaymentEvidence, error) {
	if account == "" {
		account = uc.cfg.Account
	}
	if account == "" {
		return nil, domain.ErrInvalidInput
	}

	ids, err := uc.mail.ListMessages(ctx, account, uc.cfg.Query)
	if err != nil {
		return nil, fmt.Errorf("%w: listar mensajes: %v", domain.ErrUpstreamTimeout, err)
	}

	var (
		mu      sync.Mutex
		results []*entity.PaymentEvidence
	)
	g := new(errgroup.Group)
	g.SetLimit(uc.cfg.MaxParallel)

	for _, id := range ids {
		messageID := id
		g.Go(func() error {
			msgCtx, cancel := context.WithTimeout(ctx, perMessageTimeout)
			defer cancel()

			evidences := uc.processMessage(msgCtx, account, messageID)
			if len(evidences) == 0 {
				return nil
			}
			mu.Lock()
			results = append(results, evidences...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // los workers nunca retornan error: fallo por ítem, no por lote

	uc.log.Info().
		Str("account", account).
		Int("messages", len(ids)).
		Int("evidences", len(results)).
		Msg("ingesta de buzón completada")
	return results, nil
}

// processMessage obtiene y normaliza un mensaje. Un timeout o error aquí
// aborta solo la evidencia de este mensaje.
func (uc *IngestUseCase) processMessage(ctx context.Context, account, messageID string) []*entity.PaymentEvidence {
	msg, err := uc.mail.GetMessage(ctx, account, messageID)
	if err != nil {
		uc.log.Warn().Err(err).Str("message_id", messageID).Msg("no se pudo obtener el mensaje")
		return nil
	}
	if extract.IsBounce(msg.Sender, msg.Subject) {
		return nil
	}

	if uc.isTrustedBankSender(msg.Sender) {
		if ev := uc.normalizeBankNotification(account, msg); ev != nil {
			return []*entity.PaymentEvidence{ev}
		}
		return nil
	}
	return uc.normalizeReply(ctx, account, msg)
}

// normalizeBankNotification crea evidencia a partir del snippet de una
// notificación bancaria. Si trae referencia explícita de factura y la factura
// existe, se auto-marca MATCHED: es el único camino sin confirmación humana.
func (uc *IngestUseCase) normalizeBankNotification(account string, msg *MailMessage) *entity.PaymentEvidence {
	ev := &entity.PaymentEvidence{
		SourceKind:      entity.EvidenceSourceBankNotification,
		SourceMessageID: msg.ID,
		AttachmentName:  "",
		Mailbox:         account,
		Sender:          msg.Sender,
		Subject:         msg.Subject,
		Status:          entity.EvidenceStatusUnmatched,
		Confidence:      confidenceNoAmount,
		ReceivedAt:      msg.ReceivedAt,
	}

	if amount, ok := extract.FromText(msg.Snippet); ok {
		ev.Amount = decimal.NullDecimal{Decimal: amount, Valid: true}
		ev.Confidence = confidenceBankAmount
	}

	if token, ok := extract.InvoiceNumber(msg.Subject + "\n" + msg.Snippet); ok {
		ev.InvoiceNumber = token
		invoice, err := uc.invoiceRepo.GetByNumber(token)
		if err != nil {
			uc.log.Warn().Err(err).Str("token", token).Msg("resolución de factura por número falló")
		} else if invoice != nil && invoice.IsOpen() {
			ev.InvoiceID = invoice.ID
			ev.Status = entity.EvidenceStatusMatched
			ev.Confidence = confidenceExplicitRef
		}
	}

	saved, err := uc.evidenceRepo.Upsert(ev)
	if err != nil {
		uc.log.Warn().Err(err).Str("message_id", msg.ID).Msg("upsert de notificación bancaria falló")
		return nil
	}
	return saved
}

// normalizeReply crea una evidencia por cada adjunto plausible de una
// respuesta de cliente. El contenido del comprobante manda: cuando hay
// adjunto jamás se escanea el cuerpo del correo en busca de monto.
func (uc *IngestUseCase) normalizeReply(ctx context.Context, account string, msg *MailMessage) []*entity.PaymentEvidence {
	header := msg.Subject + "\n" + msg.Snippet
	token, hasToken := extract.InvoiceNumber(header)
	if !hasToken && !extract.HasPaymentKeyword(header) {
		return nil // irrelevante a pagos
	}
	if len(msg.Attachments) == 0 {
		return nil // una respuesta sin comprobante no es evidencia
	}

	var out []*entity.PaymentEvidence
	for _, att := range msg.Attachments {
		if !plausibleSlip(att) {
			continue
		}
		data, err := uc.mail.GetAttachment(ctx, account, msg.ID, att.ID)
		if err != nil {
			uc.log.Warn().Err(err).
				Str("message_id", msg.ID).
				Str("attachment", att.Filename).
				Msg("no se pudo descargar el adjunto")
			continue
		}

		ev := &entity.PaymentEvidence{
			SourceKind:      entity.EvidenceSourceEmailReply,
			SourceMessageID: msg.ID,
			AttachmentName:  att.Filename,
			Mailbox:         account,
			Sender:          msg.Sender,
			Subject:         msg.Subject,
			InvoiceNumber:   token,
			MediaType:       att.MimeType,
			Status:          entity.EvidenceStatusUnmatched,
			Confidence:      confidenceNoAmount,
			ReceivedAt:      msg.ReceivedAt,
		}
		ev.Amount = uc.extractor.Extract(ctx, data, att.MimeType)
		if ev.Amount.Valid {
			ev.Confidence = confidenceSlipAmount
		}

		saved, err := uc.evidenceRepo.Upsert(ev)
		if err != nil {
			uc.log.Warn().Err(err).
				Str("message_id", msg.ID).
				Str("attachment", att.Filename).
				Msg("upsert de evidencia falló")
			continue
		}
		out = append(out, saved)
	}
	return out
}

// SubmitManual registra un comprobante subido a mano. El archivo se persiste
// de inmediato en el almacenamiento durable y la evidencia nace SUBMITTED.
func (uc *IngestUseCase) SubmitManual(ctx context.Context, actorID string, in dto.ManualEvidenceRequest) (*entity.PaymentEvidence, error) {
	if actorID == "" {
		return nil, domain.ErrUnauthorized
	}
	if in.Filename == "" || in.MediaType == "" || len(in.Content) == 0 {
		return nil, domain.ErrInvalidInput
	}

	sourceID := "manual-" + uuid.New().String()
	key := fmt.Sprintf("%s/%s", sourceID, in.Filename)
	path, err := uc.files.Save(ctx, key, in.Content, in.MediaType)
	if err != nil {
		return nil, fmt.Errorf("%w: guardar comprobante: %v", domain.ErrUpstreamTimeout, err)
	}

	ev := &entity.PaymentEvidence{
		SourceKind:      entity.EvidenceSourceManualUpload,
		SourceMessageID: sourceID,
		AttachmentName:  in.Filename,
		Sender:          actorID,
		Currency:        in.Currency,
		PayerName:       in.PayerName,
		MediaType:       in.MediaType,
		StoragePath:     path,
		Status:          entity.EvidenceStatusSubmitted,
		Confidence:      confidenceNoAmount,
		ReceivedAt:      time.Now(),
	}

	if in.Amount != nil && in.Amount.GreaterThan(decimal.Zero) {
		ev.Amount = decimal.NullDecimal{Decimal: *in.Amount, Valid: true}
		ev.Confidence = confidenceDeclared
	} else {
		ev.Amount = uc.extractor.Extract(ctx, in.Content, in.MediaType)
		if ev.Amount.Valid {
			ev.Confidence = confidenceSlipAmount
		}
	}
	if token, ok := extract.InvoiceNumber(in.Filename); ok {
		ev.InvoiceNumber = token
	}

	return uc.evidenceRepo.Upsert(ev)
}

func (uc *IngestUseCase) isTrustedBankSender(sender string) bool {
	s := strings.ToLower(sender)
	for _, trusted := range uc.cfg.TrustedSenders {
		if trusted != "" && strings.Contains(s, strings.ToLower(trusted)) {
			return true
		}
	}
	return false
}

// plausibleSlip descarta adjuntos demasiado pequeños para ser comprobantes
// (firmas de correo, logos) y media types no soportados.
func plausibleSlip(att MailAttachment) bool {
	switch {
	case strings.HasPrefix(att.MimeType, "application/pdf"):
		return att.Size >= minPDFBytes
	case strings.HasPrefix(att.MimeType, "image/"):
		return att.Size >= minImageBytes
	}
	return false
}
