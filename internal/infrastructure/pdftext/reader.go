package pdftext

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/jhoicas/recaudo-api/internal/application/reconciliation"
)

// Ensure Reader implements reconciliation.PDFTextReader.
var _ reconciliation.PDFTextReader = (*Reader)(nil)

// Reader extrae la capa de texto embebida de un PDF. Sin capa de texto (PDF
// escaneado) retorna error y el extractor degrada a "sin monto": no hay
// fallback a OCR para PDFs.
type Reader struct{}

// NewReader construye el lector.
func NewReader() *Reader {
	return &Reader{}
}

// ExtractText devuelve el texto del PDF, una línea por fila detectada.
func (r *Reader) ExtractText(data []byte) (text string, err error) {
	// La librería entra en panic con algunos PDFs corruptos; se convierte a error.
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("pdf corrupto: %v", p)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("abrir pdf: %w", err)
	}

	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			continue // página ilegible: se omite, no aborta el documento
		}
		for _, row := range rows {
			for i, word := range row.Content {
				if i > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(word.S)
			}
			sb.WriteByte('\n')
		}
	}

	text = sb.String()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("pdf sin capa de texto")
	}
	return text, nil
}
