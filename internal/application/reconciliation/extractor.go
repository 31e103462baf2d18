package reconciliation

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/recaudo-api/internal/domain/extract"
	"github.com/jhoicas/recaudo-api/pkg/logger"
)

// Timeout para una llamada de extracción (OCR remoto incluido).
const extractTimeout = 30 * time.Second

// DocumentExtractor obtiene el monto de un comprobante a partir de sus bytes
// y el media type declarado. PDF usa la capa de texto embebida (sin fallback
// a OCR); imagen usa OCR. Cualquier error de parseo u OCR se degrada a
// "sin monto": la extracción nunca es fatal para el caller.
type DocumentExtractor struct {
	pdf PDFTextReader
	ocr TextOCR
	log *logger.Logger
}

// NewDocumentExtractor construye el extractor.
func NewDocumentExtractor(pdf PDFTextReader, ocr TextOCR, log *logger.Logger) *DocumentExtractor {
	return &DocumentExtractor{pdf: pdf, ocr: ocr, log: log}
}

// Extract devuelve el monto hallado en el documento, o NullDecimal inválido.
func (x *DocumentExtractor) Extract(ctx context.Context, data []byte, mediaType string) decimal.NullDecimal {
	text, ok := x.extractText(ctx, data, mediaType)
	if !ok || strings.TrimSpace(text) == "" {
		return decimal.NullDecimal{}
	}
	amount, found := extract.FromText(text)
	if !found {
		x.log.Debug().Str("media_type", mediaType).Msg("texto extraído sin monto etiquetado")
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: amount, Valid: true}
}

func (x *DocumentExtractor) extractText(ctx context.Context, data []byte, mediaType string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, extractTimeout)
	defer cancel()

	switch {
	case strings.HasPrefix(mediaType, "application/pdf"):
		text, err := x.pdf.ExtractText(data)
		if err != nil {
			x.log.Warn().Err(err).Msg("PDF sin capa de texto legible")
			return "", false
		}
		return text, true
	case strings.HasPrefix(mediaType, "image/"):
		text, err := x.ocr.ExtractText(ctx, data)
		if err != nil {
			x.log.Warn().Err(err).Msg("OCR falló sobre la imagen")
			return "", false
		}
		return text, true
	}
	x.log.Debug().Str("media_type", mediaType).Msg("media type no soportado para extracción")
	return "", false
}
