package fiscal

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformedXML         = errors.New("xml malformado")
	ErrUnknownDocument      = errors.New("documento não reconhecido como NF-e ou NFS-e")
	ErrMissingRoot          = errors.New("elemento raiz obrigatório ausente")
	ErrMissingProviderTaxID = errors.New("CNPJ do prestador ausente na NFS-e")
	ErrInputTooLarge        = errors.New("arquivo excede o tamanho máximo permitido")
	ErrSchemaInvalid        = errors.New("xml inválido segundo XSD")
)

// ============================================================================
// Helpers genéricos (datas, números, chave, etc.)
// ============================================================================

const accessKeyPrefix = "NFe"

func extractAccessKey(id string) string {
	// id costuma ser algo como "NFe3514..." -> removemos "NFe"
	id = strings.TrimSpace(id)
	return strings.TrimPrefix(id, accessKeyPrefix)
}

func parseFloat(v string) float64 {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	v = strings.ReplaceAll(v, ",", ".")
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func parseInt(v string) int {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return i
}

// NormalizeDate recebe algo como "2025-11-11T12:34:56-03:00" ou "2025-11-11"
// e devolve só "2025-11-11".
func NormalizeDate(d string) string {
	d = strings.TrimSpace(d)
	if d == "" {
		return ""
	}

	if len(d) == 10 && d[4] == '-' && d[7] == '-' {
		return d
	}

	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05-07:00",
		"2006-01-02T15:04:05",
		"02/01/2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, d); err == nil {
			return t.Format("2006-01-02")
		}
	}

	if len(d) >= 10 {
		return d[:10]
	}
	return d
}

// OnlyDigits remove tudo que não for dígito.
func OnlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Round2 arredonda valores monetários para centavos.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ShiftOutboundCFOP converte um CFOP da faixa de saída (5100–5999) no
// equivalente de entrada subtraindo 1000. Só se aplica a documentos de entrada.
func ShiftOutboundCFOP(cfop string, dir Direction) (string, bool) {
	digits := OnlyDigits(cfop)
	if !dir.Inbound() || len(digits) != 4 {
		return cfop, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil || n < 5100 || n > 5999 {
		return cfop, false
	}
	return strconv.Itoa(n - 1000), true
}

// ensureInstallments aplica a regra da parcela única: sem duplicatas
// declaradas, cria uma parcela "001" com o total da nota, vencendo na emissão.
func ensureInstallments(inv *ParsedInvoice) {
	if len(inv.Installments) > 0 {
		return
	}
	inv.Installments = []Installment{{
		Number:  "001",
		DueDate: inv.IssueDate,
		Value:   inv.Totals.GrandTotal,
	}}
}
