package reconciliation_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/recaudo-api/internal/application/reconciliation"
	"github.com/jhoicas/recaudo-api/pkg/logger"
)

func newExtractor() (*reconciliation.DocumentExtractor, *fakePDF, *fakeOCR) {
	pdf := newFakePDF()
	ocr := newFakeOCR()
	return reconciliation.NewDocumentExtractor(pdf, ocr, logger.Nop()), pdf, ocr
}

func TestExtractor_PDFUsaCapaDeTexto(t *testing.T) {
	x, pdf, _ := newExtractor()
	data := []byte("doc-pdf")
	pdf.texts[string(data)] = "Total: $ 1.250.000"

	got := x.Extract(context.Background(), data, "application/pdf")
	require.True(t, got.Valid)
	assert.True(t, got.Decimal.Equal(decimal.NewFromInt(1250000)))
}

func TestExtractor_ImagenUsaOCR(t *testing.T) {
	x, _, ocr := newExtractor()
	data := []byte("foto-comprobante")
	ocr.texts[string(data)] = "Monto pagado\n850.000,00"

	got := x.Extract(context.Background(), data, "image/jpeg")
	require.True(t, got.Valid)
	assert.True(t, got.Decimal.Equal(decimal.NewFromInt(850000)),
		"monto esperado 850000, fue %s", got.Decimal)
}

// PDF escaneado sin capa de texto: no hay fallback a OCR, el monto queda nulo.
func TestExtractor_PDFSinTexto_FallaSuave(t *testing.T) {
	x, _, ocr := newExtractor()
	data := []byte("pdf-escaneado")
	ocr.texts[string(data)] = "Total: $ 999.999" // el OCR no debe consultarse para PDF

	got := x.Extract(context.Background(), data, "application/pdf")
	assert.False(t, got.Valid)
}

func TestExtractor_MediaTypeNoSoportado(t *testing.T) {
	x, _, _ := newExtractor()
	got := x.Extract(context.Background(), []byte("zip"), "application/zip")
	assert.False(t, got.Valid)
}
