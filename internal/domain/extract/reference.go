package extract

import (
	"regexp"
	"strings"
)

// Token de número de factura: prefijo conocido + consecutivo, con o sin
// separador (FAC-2026-0042, INV#1042, FACTURA 330). Se busca en asuntos,
// cuerpos de notificación bancaria y nombres de adjunto.
var invoiceNumberRe = regexp.MustCompile(`(?i)\b((?:FAC|INV|FACTURA|INVOICE)[-#\s]{0,2}[0-9][0-9-]{2,14})\b`)

var tokenSepRe = regexp.MustCompile(`[-#\s]+`)

// Palabras clave que marcan un mensaje como relevante a pagos.
var paymentKeywords = []string{
	"pago", "payment", "transferencia", "transfer", "consignacion",
	"comprobante", "abono", "deposito", "recibo", "receipt", "remittance",
}

// Remitentes/asuntos de rebote automático que se descartan antes de normalizar.
var bouncePatterns = []string{
	"mailer-daemon", "postmaster", "delivery status notification",
	"undeliverable", "auto-reply", "out of office", "fuera de oficina",
}

// InvoiceNumber devuelve el primer token de número de factura del texto,
// normalizado a mayúsculas sin espacios internos.
func InvoiceNumber(text string) (string, bool) {
	m := invoiceNumberRe.FindStringSubmatch(foldDiacritics(text))
	if m == nil {
		return "", false
	}
	token := tokenSepRe.ReplaceAllString(strings.ToUpper(m[1]), "-")
	return strings.TrimRight(token, "-"), true
}

// HasPaymentKeyword indica si el texto contiene alguna palabra clave de pagos
// (insensible a acentos y mayúsculas).
func HasPaymentKeyword(text string) bool {
	folded := strings.ToLower(foldDiacritics(text))
	for _, kw := range paymentKeywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}

// IsBounce reconoce remitentes y asuntos de rebotes automáticos.
func IsBounce(sender, subject string) bool {
	s := strings.ToLower(sender) + " " + strings.ToLower(subject)
	for _, p := range bouncePatterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
