package reconciliation_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/recaudo-api/internal/application/dto"
	"github.com/jhoicas/recaudo-api/internal/application/reconciliation"
	"github.com/jhoicas/recaudo-api/internal/domain"
	"github.com/jhoicas/recaudo-api/internal/domain/entity"
)

const (
	testAccount = "recaudo@acme.co"
	bankSender  = "notificaciones@bancolombia.com.co"
)

var trustedCfg = reconciliation.IngestConfig{
	Query:          "has:attachment newer_than:30d",
	TrustedSenders: []string{"notificaciones@bancolombia.com.co"},
}

// slipPDF genera bytes de comprobante con tamaño plausible y texto asociado.
func slipPDF(f *fixture, seed, text string) []byte {
	data := []byte(seed + strings.Repeat("%", 700))
	f.pdf.texts[string(data)] = text
	return data
}

func replyMessage(id, subject, snippet string) *reconciliation.MailMessage {
	return &reconciliation.MailMessage{
		ID:         id,
		Sender:     "cliente@constructora.co",
		Subject:    subject,
		Snippet:    snippet,
		ReceivedAt: time.Now(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// IngestMailbox — respuestas de clientes con comprobante
// ──────────────────────────────────────────────────────────────────────────────

func TestIngest_RespuestaConComprobante(t *testing.T) {
	f := newFixture(trustedCfg)
	f.mail.addMessage(replyMessage("msg-1", "Re: pago factura FAC-2026-0042", "adjunto el comprobante"))
	data := slipPDF(f, "slip-1", "Consignación exitosa\nValor pagado: $ 1.250.000")
	f.mail.addAttachment("msg-1", reconciliation.MailAttachment{
		ID: "att-1", Filename: "comprobante.pdf", MimeType: "application/pdf", Size: int64(len(data)),
	}, data)

	out, err := f.ingestUC.IngestMailbox(context.Background(), testAccount)
	require.NoError(t, err)
	require.Len(t, out, 1)

	ev := out[0]
	assert.Equal(t, entity.EvidenceSourceEmailReply, ev.SourceKind)
	assert.Equal(t, entity.EvidenceStatusUnmatched, ev.Status,
		"una respuesta de cliente jamás se auto-matchea")
	assert.Equal(t, "FAC-2026-0042", ev.InvoiceNumber)
	require.True(t, ev.Amount.Valid)
	assert.True(t, ev.Amount.Decimal.Equal(decimal.NewFromInt(1250000)),
		"monto esperado 1250000, fue %s", ev.Amount.Decimal)
	assert.InDelta(t, 0.80, ev.Confidence, 0.001)
}

// El contenido del comprobante manda: el monto del cuerpo del correo se ignora
// cuando hay adjunto.
func TestIngest_ComprobanteMandaSobreCuerpo(t *testing.T) {
	f := newFixture(trustedCfg)
	f.mail.addMessage(replyMessage("msg-2", "pago", "ya le transferí $ 999.999"))
	data := slipPDF(f, "slip-2", "Total: $ 400.000")
	f.mail.addAttachment("msg-2", reconciliation.MailAttachment{
		ID: "att-1", Filename: "recibo.pdf", MimeType: "application/pdf", Size: int64(len(data)),
	}, data)

	out, err := f.ingestUC.IngestMailbox(context.Background(), testAccount)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.True(t, out[0].Amount.Valid)
	assert.True(t, out[0].Amount.Decimal.Equal(decimal.NewFromInt(400000)),
		"el monto sale del comprobante, no del cuerpo: fue %s", out[0].Amount.Decimal)
}

// Comprobante ilegible: la evidencia se crea igual, con monto nulo y
// confianza mínima, para corrección manual.
func TestIngest_ComprobanteIlegible_MontoNulo(t *testing.T) {
	f := newFixture(trustedCfg)
	f.mail.addMessage(replyMessage("msg-3", "comprobante de pago", ""))
	data := []byte("escaneo-borroso" + strings.Repeat("#", 700)) // sin texto registrado en el fake
	f.mail.addAttachment("msg-3", reconciliation.MailAttachment{
		ID: "att-1", Filename: "scan.pdf", MimeType: "application/pdf", Size: int64(len(data)),
	}, data)

	out, err := f.ingestUC.IngestMailbox(context.Background(), testAccount)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.False(t, out[0].Amount.Valid, "sin monto extraíble el campo queda nulo")
	assert.InDelta(t, 0.30, out[0].Confidence, 0.001)
}

func TestIngest_MensajeIrrelevante_SeOmite(t *testing.T) {
	f := newFixture(trustedCfg)
	f.mail.addMessage(replyMessage("msg-4", "Re: reunión del jueves", "confirmo asistencia"))
	data := slipPDF(f, "slip-4", "Total: $ 100.000")
	f.mail.addAttachment("msg-4", reconciliation.MailAttachment{
		ID: "att-1", Filename: "agenda.pdf", MimeType: "application/pdf", Size: int64(len(data)),
	}, data)

	out, err := f.ingestUC.IngestMailbox(context.Background(), testAccount)
	require.NoError(t, err)
	assert.Empty(t, out, "sin token ni palabra clave de pago no hay evidencia")
}

func TestIngest_RespuestaSinAdjunto_SeOmite(t *testing.T) {
	f := newFixture(trustedCfg)
	f.mail.addMessage(replyMessage("msg-5", "pago realizado", "mañana envío el comprobante"))

	out, err := f.ingestUC.IngestMailbox(context.Background(), testAccount)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestIngest_Rebote_SeOmite(t *testing.T) {
	f := newFixture(trustedCfg)
	msg := replyMessage("msg-6", "Delivery Status Notification (Failure)", "")
	msg.Sender = "mailer-daemon@googlemail.com"
	f.mail.addMessage(msg)

	out, err := f.ingestUC.IngestMailbox(context.Background(), testAccount)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// Firmas y logos: adjuntos demasiado pequeños no son comprobantes.
func TestIngest_AdjuntoDiminuto_SeOmite(t *testing.T) {
	f := newFixture(trustedCfg)
	f.mail.addMessage(replyMessage("msg-7", "pago", "adjunto"))
	f.mail.addAttachment("msg-7", reconciliation.MailAttachment{
		ID: "att-1", Filename: "logo.png", MimeType: "image/png", Size: 300,
	}, []byte("png"))
	f.mail.addAttachment("msg-7", reconciliation.MailAttachment{
		ID: "att-2", Filename: "firma.pdf", MimeType: "application/pdf", Size: 120,
	}, []byte("pdf"))

	out, err := f.ingestUC.IngestMailbox(context.Background(), testAccount)
	require.NoError(t, err)
	assert.Empty(t, out)
}

// Re-ingestar el mismo buzón no duplica evidencia.
func TestIngest_ReingestaIdempotente(t *testing.T) {
	f := newFixture(trustedCfg)
	f.mail.addMessage(replyMessage("msg-8", "pago FAC-2026-0050", ""))
	data := slipPDF(f, "slip-8", "Total: $ 200.000")
	f.mail.addAttachment("msg-8", reconciliation.MailAttachment{
		ID: "att-1", Filename: "recibo.pdf", MimeType: "application/pdf", Size: int64(len(data)),
	}, data)

	_, err := f.ingestUC.IngestMailbox(context.Background(), testAccount)
	require.NoError(t, err)
	_, err = f.ingestUC.IngestMailbox(context.Background(), testAccount)
	require.NoError(t, err)

	rows, err := f.evidences.List(100, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "la identidad (mensaje, adjunto) no admite duplicados")
}

// Un mensaje dañado no aborta el lote: los demás se procesan con normalidad.
func TestIngest_FalloPorMensajeNoAbortaLote(t *testing.T) {
	f := newFixture(trustedCfg)
	f.mail.addMessage(replyMessage("msg-9", "pago", "adjunto comprobante"))
	data := slipPDF(f, "slip-9", "Total: $ 300.000")
	f.mail.addAttachment("msg-9", reconciliation.MailAttachment{
		ID: "att-1", Filename: "recibo.pdf", MimeType: "application/pdf", Size: int64(len(data)),
	}, data)

	f.mail.ids = append(f.mail.ids, "msg-roto")
	f.mail.msgErr["msg-roto"] = errors.New("410 gone")

	out, err := f.ingestUC.IngestMailbox(context.Background(), testAccount)
	require.NoError(t, err, "el fallo de un mensaje no es fallo del lote")
	assert.Len(t, out, 1)
}

func TestIngest_ProveedorCaido_Reintentable(t *testing.T) {
	f := newFixture(trustedCfg)
	f.mail.listErr = errors.New("503 backend unavailable")

	_, err := f.ingestUC.IngestMailbox(context.Background(), testAccount)
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}

func TestIngest_SinCuenta_Invalido(t *testing.T) {
	f := newFixture(trustedCfg)
	_, err := f.ingestUC.IngestMailbox(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// Sin cuenta en la petición se usa el buzón configurado por defecto.
func TestIngest_CuentaPorDefecto(t *testing.T) {
	cfg := trustedCfg
	cfg.Account = testAccount
	f := newFixture(cfg)
	f.mail.addMessage(replyMessage("msg-10", "pago FAC-2026-0051", ""))
	data := slipPDF(f, "slip-10", "Total: $ 150.000")
	f.mail.addAttachment("msg-10", reconciliation.MailAttachment{
		ID: "att-1", Filename: "recibo.pdf", MimeType: "application/pdf", Size: int64(len(data)),
	}, data)

	out, err := f.ingestUC.IngestMailbox(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, testAccount, out[0].Mailbox)
}

// ──────────────────────────────────────────────────────────────────────────────
// IngestMailbox — notificaciones bancarias
// ──────────────────────────────────────────────────────────────────────────────

// Remitente bancario confiable con referencia explícita: único camino que
// auto-marca MATCHED, con la confianza del camino determinista.
func TestIngest_NotificacionBancariaConReferencia_AutoMatch(t *testing.T) {
	f := newFixture(trustedCfg)
	inv := f.invoices.seed(openInvoice("FAC-2026-0042", 500000))

	msg := replyMessage("bank-1", "Notificación de transferencia",
		"Transferencia recibida por $ 500.000 referencia FAC-2026-0042")
	msg.Sender = bankSender
	f.mail.addMessage(msg)

	out, err := f.ingestUC.IngestMailbox(context.Background(), testAccount)
	require.NoError(t, err)
	require.Len(t, out, 1)

	ev := out[0]
	assert.Equal(t, entity.EvidenceSourceBankNotification, ev.SourceKind)
	assert.Equal(t, entity.EvidenceStatusMatched, ev.Status)
	assert.Equal(t, inv.ID, ev.InvoiceID)
	assert.Equal(t, "FAC-2026-0042", ev.InvoiceNumber)
	assert.InDelta(t, 0.95, ev.Confidence, 0.001)
	require.True(t, ev.Amount.Valid)
	assert.True(t, ev.Amount.Decimal.Equal(decimal.NewFromInt(500000)))
}

// Sin referencia de factura la notificación queda UNMATCHED para revisión.
func TestIngest_NotificacionBancariaSinReferencia(t *testing.T) {
	f := newFixture(trustedCfg)
	f.invoices.seed(openInvoice("FAC-2026-0043", 500000))

	msg := replyMessage("bank-2", "Abono en cuenta", "Abono recibido por $ 500.000")
	msg.Sender = bankSender
	f.mail.addMessage(msg)

	out, err := f.ingestUC.IngestMailbox(context.Background(), testAccount)
	require.NoError(t, err)
	require.Len(t, out, 1)

	assert.Equal(t, entity.EvidenceStatusUnmatched, out[0].Status)
	assert.Empty(t, out[0].InvoiceID)
	assert.InDelta(t, 0.70, out[0].Confidence, 0.001)
}

// Referencia a una factura ya pagada: no se auto-matchea contra una cerrada.
func TestIngest_NotificacionBancaria_FacturaCerradaNoSeMatchea(t *testing.T) {
	f := newFixture(trustedCfg)
	pagada := openInvoice("FAC-2026-0044", 500000)
	pagada.Status = entity.InvoiceStatusPaid
	f.invoices.seed(pagada)

	msg := replyMessage("bank-3", "Transferencia", "Pago por $ 100.000 de FAC-2026-0044")
	msg.Sender = bankSender
	f.mail.addMessage(msg)

	out, err := f.ingestUC.IngestMailbox(context.Background(), testAccount)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, entity.EvidenceStatusUnmatched, out[0].Status)
	assert.Empty(t, out[0].InvoiceID)
}

// ──────────────────────────────────────────────────────────────────────────────
// SubmitManual
// ──────────────────────────────────────────────────────────────────────────────

func TestSubmitManual_ConMontoDeclarado(t *testing.T) {
	f := newFixture(trustedCfg)
	declarado := decimal.NewFromInt(450000)

	ev, err := f.ingestUC.SubmitManual(context.Background(), testActor, dto.ManualEvidenceRequest{
		Filename:  "FAC-2026-0060.pdf",
		MediaType: "application/pdf",
		Content:   []byte("pdf-manual"),
		Currency:  "COP",
		PayerName: "Constructora Andina",
		Amount:    &declarado,
	})
	require.NoError(t, err)

	assert.Equal(t, entity.EvidenceSourceManualUpload, ev.SourceKind)
	assert.Equal(t, entity.EvidenceStatusSubmitted, ev.Status)
	assert.Equal(t, "FAC-2026-0060", ev.InvoiceNumber, "el token puede venir en el nombre de archivo")
	require.True(t, ev.Amount.Valid)
	assert.True(t, ev.Amount.Decimal.Equal(declarado))
	assert.InDelta(t, 0.90, ev.Confidence, 0.001)
	assert.NotEmpty(t, ev.StoragePath, "el archivo se persiste de inmediato")

	data, err := f.files.Fetch(context.Background(), ev.StoragePath)
	require.NoError(t, err)
	assert.Equal(t, []byte("pdf-manual"), data)
}

// Sin monto declarado se intenta la extracción sobre el documento.
func TestSubmitManual_SinMontoDeclarado_SeExtrae(t *testing.T) {
	f := newFixture(trustedCfg)
	content := []byte("pdf-manual-2")
	f.pdf.texts[string(content)] = "Importe: COP 320.000"

	ev, err := f.ingestUC.SubmitManual(context.Background(), testActor, dto.ManualEvidenceRequest{
		Filename:  "recibo.pdf",
		MediaType: "application/pdf",
		Content:   content,
	})
	require.NoError(t, err)

	require.True(t, ev.Amount.Valid)
	assert.True(t, ev.Amount.Decimal.Equal(decimal.NewFromInt(320000)))
	assert.InDelta(t, 0.80, ev.Confidence, 0.001)
}

func TestSubmitManual_SinActor_NoAutorizado(t *testing.T) {
	f := newFixture(trustedCfg)
	_, err := f.ingestUC.SubmitManual(context.Background(), "", dto.ManualEvidenceRequest{
		Filename: "x.pdf", MediaType: "application/pdf", Content: []byte("x"),
	})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestSubmitManual_SinContenido_Invalido(t *testing.T) {
	f := newFixture(trustedCfg)
	_, err := f.ingestUC.SubmitManual(context.Background(), testActor, dto.ManualEvidenceRequest{
		Filename: "x.pdf", MediaType: "application/pdf",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSubmitManual_AlmacenamientoCaido_Reintentable(t *testing.T) {
	f := newFixture(trustedCfg)
	f.files.saveErr = errors.New("s3 no disponible")

	_, err := f.ingestUC.SubmitManual(context.Background(), testActor, dto.ManualEvidenceRequest{
		Filename: "x.pdf", MediaType: "application/pdf", Content: []byte("x"),
	})
	assert.ErrorIs(t, err, domain.ErrUpstreamTimeout)
}
