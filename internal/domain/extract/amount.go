package extract

import (
	"errors"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Strategy localiza un monto en las líneas de un documento. Las estrategias se
// prueban en orden y gana la primera que encuentra candidato; nunca se suman
// ni agregan múltiples candidatos.
type Strategy func(lines []string) (decimal.Decimal, bool)

// Etiquetas reconocidas para el campo de monto (insensibles a mayúsculas y
// acentos: "Monto", "Válor" y "valor" se tratan igual).
var labelRe = regexp.MustCompile(`(?i)\b(amount|total|importe|valor|monto|pagado|paid)\b`)

// Moneda opcional entre etiqueta y número: símbolo o código ISO.
const currencyPat = `(?:(?:USD|EUR|COP|MXN|PEN|CLP|ARS|\$|€)\.?\s*)?`

// Número decimal con separadores de miles y hasta 2 decimales.
const numberPat = `\d{1,3}(?:[.,]\d{3})+(?:[.,]\d{1,2})?|\d+[.,]\d{1,2}|\d+`

var (
	// etiqueta ... [moneda] número, todo en una misma línea
	sameLineRe = regexp.MustCompile(`(?i)\b(?:amount|total|importe|valor|monto|pagado|paid)\b[^0-9\n]{0,40}?` + currencyPat + `(` + numberPat + `)`)
	// número al comienzo de línea (para la ventana de dos líneas)
	leadingNumberRe = regexp.MustCompile(`^\s*` + currencyPat + `(` + numberPat + `)`)
	// número "con pinta de monto": lleva moneda o fracción decimal.
	// Evita capturar referencias o consecutivos sueltos en el barrido global.
	amountLikeRe = regexp.MustCompile(`(?:USD|EUR|COP|MXN|PEN|CLP|ARS|\$|€)\.?\s*(` + numberPat + `)|(\d{1,3}(?:[.,]\d{3})*[.,]\d{1,2})`)
)

// FromText busca un monto etiquetado en el texto extraído de un documento.
// Orden de desempate: (a) etiqueta y número en la misma línea, (b) etiqueta al
// final de una línea y número al inicio de la siguiente, (c) primer número con
// pinta de monto en todo el documento, como último recurso.
func FromText(text string) (decimal.Decimal, bool) {
	folded := foldDiacritics(text)
	lines := strings.Split(folded, "\n")

	for _, s := range []Strategy{sameLine, adjacentLines, globalScan} {
		if amount, ok := s(lines); ok {
			return amount, true
		}
	}
	return decimal.Zero, false
}

// sameLine: "Amount: USD 1,250.00".
func sameLine(lines []string) (decimal.Decimal, bool) {
	for _, line := range lines {
		if m := sameLineRe.FindStringSubmatch(line); m != nil {
			if amount, err := parseNumber(m[1]); err == nil {
				return amount, true
			}
		}
	}
	return decimal.Zero, false
}

// adjacentLines: la etiqueta cierra una línea y el número abre la siguiente
// (frecuente en layouts de dos columnas aplanados por OCR).
func adjacentLines(lines []string) (decimal.Decimal, bool) {
	for i := 0; i < len(lines)-1; i++ {
		if !labelRe.MatchString(lines[i]) {
			continue
		}
		if m := leadingNumberRe.FindStringSubmatch(lines[i+1]); m != nil {
			if amount, err := parseNumber(m[1]); err == nil {
				return amount, true
			}
		}
	}
	return decimal.Zero, false
}

// globalScan: primer número acompañado de moneda o con parte decimal.
func globalScan(lines []string) (decimal.Decimal, bool) {
	for _, line := range lines {
		m := amountLikeRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if amount, err := parseNumber(raw); err == nil {
			return amount, true
		}
	}
	return decimal.Zero, false
}

// parseNumber normaliza separadores de miles y decimal. Acepta "1,250.00",
// "1.250,00", "1250.5" y "1250". Rechaza montos no positivos.
func parseNumber(raw string) (decimal.Decimal, error) {
	normalized := normalizeSeparators(raw)
	amount, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.GreaterThan(decimal.Zero) {
		return decimal.Zero, errNonPositive
	}
	return amount, nil
}

var errNonPositive = errors.New("monto no positivo")

func normalizeSeparators(raw string) string {
	lastDot := strings.LastIndexByte(raw, '.')
	lastComma := strings.LastIndexByte(raw, ',')
	switch {
	case lastDot >= 0 && lastComma >= 0:
		// El separador que aparece de último es el decimal; el otro es de miles.
		if lastDot > lastComma {
			return strings.ReplaceAll(raw, ",", "")
		}
		return strings.ReplaceAll(strings.ReplaceAll(raw, ".", ""), ",", ".")
	case lastComma >= 0:
		return applySingleSeparator(raw, lastComma, ",")
	case lastDot >= 0:
		return applySingleSeparator(raw, lastDot, ".")
	}
	return raw
}

// applySingleSeparator decide si un único separador es de miles (grupos de 3)
// o decimal (1–2 dígitos al final).
func applySingleSeparator(raw string, idx int, sep string) string {
	fraction := raw[idx+1:]
	if len(fraction) == 3 && strings.Count(raw, sep) >= 1 && !strings.Contains(fraction, sep) {
		// "1,250" o "1.250.000": separador de miles
		if strings.Count(raw, sep) > 1 || len(raw[:strings.Index(raw, sep)]) <= 3 {
			return strings.ReplaceAll(raw, sep, "")
		}
	}
	if len(fraction) <= 2 {
		return strings.ReplaceAll(raw[:idx], sep, "") + "." + fraction
	}
	return strings.ReplaceAll(raw, sep, "")
}

// foldDiacritics elimina marcas diacríticas (NFD + remoción de Mn) para que
// "Válor" o "consignación" coincidan con las etiquetas y palabras clave.
func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
