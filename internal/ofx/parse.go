package ofx

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/encoding/charmap"
)

const DefaultMaxBytes = 5 << 20

var (
	ErrInputTooLarge = errors.New("extrato maior que o limite")
	ErrNotOFX        = errors.New("arquivo não parece um extrato OFX")
)

var (
	charsetRe   = regexp.MustCompile(`(?i)(?:CHARSET:\s*|encoding\s*=\s*["'])([A-Za-z0-9_\-]+)`)
	stmtTrnRe   = regexp.MustCompile(`(?i)<STMTTRN>`)
	listStartRe = regexp.MustCompile(`(?i)<BANKTRANLIST>`)
	listEndRe   = regexp.MustCompile(`(?i)</BANKTRANLIST>`)
	tagRes      = map[string]*regexp.Regexp{}
)

func init() {
	for _, tag := range []string{
		"FITID", "DTPOSTED", "TRNAMT", "TRNTYPE", "NAME", "MEMO", "CHECKNUM",
		"BANKID", "ACCTID", "CURDEF", "DTSTART", "DTEND",
	} {
		tagRes[tag] = regexp.MustCompile(`(?i)<` + tag + `>\s*([^<\r\n]*)`)
	}
}

// Parse lê o extrato. Registros incompletos não derrubam o arquivo: vão para
// Statement.Rejected.
func Parse(data []byte, maxBytes int64) (*Statement, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %d bytes (máx %d)", ErrInputTooLarge, len(data), maxBytes)
	}

	text, charset, err := decode(data)
	if err != nil {
		return nil, err
	}

	start := listStartRe.FindStringIndex(text)
	if start == nil {
		return nil, ErrNotOFX
	}
	body := text[start[1]:]
	if end := listEndRe.FindStringIndex(body); end != nil {
		body = body[:end[0]]
	}
	// DTSTART/DTEND ficam dentro do BANKTRANLIST, antes do primeiro STMTTRN.
	head := text[:start[1]]
	if first := stmtTrnRe.FindStringIndex(body); first != nil {
		head += body[:first[0]]
	}

	st := &Statement{
		BankID:    field(head, "BANKID"),
		AccountID: field(head, "ACCTID"),
		Currency:  field(head, "CURDEF"),
		StartDate: ofxDate(field(head, "DTSTART")),
		EndDate:   ofxDate(field(head, "DTEND")),
		Charset:   charset,
	}

	for i, rec := range splitRecords(body) {
		tx, reason := parseRecord(rec)
		if reason != "" {
			st.Rejected = append(st.Rejected, RejectedRow{Index: i + 1, Reason: reason})
			continue
		}
		st.Txs = append(st.Txs, tx)
	}
	return st, nil
}

// decode converte para UTF-8 conforme o CHARSET do cabeçalho. Sem cabeçalho e
// com bytes inválidos em UTF-8, assume Windows-1252, o padrão dos bancos daqui.
func decode(data []byte) (string, string, error) {
	declared := ""
	if m := charsetRe.FindSubmatch(data); m != nil {
		declared = strings.ToUpper(string(m[1]))
	}

	var dec *charmap.Charmap
	switch declared {
	case "1252", "WINDOWS-1252", "CP1252":
		dec = charmap.Windows1252
	case "8859-1", "ISO-8859-1", "ISO8859-1", "LATIN1":
		dec = charmap.ISO8859_1
	default:
		if !utf8.Valid(data) {
			dec = charmap.Windows1252
			declared = "1252"
		}
	}
	if dec == nil {
		if declared == "" {
			declared = "UTF-8"
		}
		return string(data), declared, nil
	}
	out, err := dec.NewDecoder().Bytes(data)
	if err != nil {
		return "", "", fmt.Errorf("erro convertendo charset %s: %w", declared, err)
	}
	return string(out), declared, nil
}

// splitRecords corta o bloco em STMTTRN, cada um indo até o próximo. Não
// depende de </STMTTRN>, que o SGML costuma omitir.
func splitRecords(body string) []string {
	idx := stmtTrnRe.FindAllStringIndex(body, -1)
	out := make([]string, 0, len(idx))
	for i, loc := range idx {
		end := len(body)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		out = append(out, body[loc[1]:end])
	}
	return out
}

func parseRecord(rec string) (Transaction, string) {
	tx := Transaction{
		FITID:        field(rec, "FITID"),
		DeclaredType: strings.ToUpper(field(rec, "TRNTYPE")),
		Name:         field(rec, "NAME"),
		Memo:         field(rec, "MEMO"),
		CheckNum:     field(rec, "CHECKNUM"),
	}
	if tx.FITID == "" {
		return tx, "sem FITID"
	}
	tx.PostedDate = ofxDate(field(rec, "DTPOSTED"))
	if tx.PostedDate == "" {
		return tx, "DTPOSTED ausente ou inválido"
	}
	amount, err := parseAmount(field(rec, "TRNAMT"))
	if err != nil {
		return tx, "TRNAMT ausente ou inválido"
	}
	tx.Amount = amount
	tx.Type = TypeOf(amount)
	return tx, ""
}

func field(s, tag string) string {
	m := tagRes[tag].FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// ofxDate usa só os 8 primeiros dígitos (AAAAMMDD) e ignora hora e fuso.
func ofxDate(v string) string {
	if len(v) < 8 {
		return ""
	}
	d := v[:8]
	for _, r := range d {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return d[:4] + "-" + d[4:6] + "-" + d[6:8]
}

// parseAmount aceita "1234.56", "-482,10" e "1.234,56".
func parseAmount(v string) (decimal.Decimal, error) {
	v = strings.ReplaceAll(strings.TrimSpace(v), " ", "")
	if v == "" {
		return decimal.Zero, errors.New("valor vazio")
	}
	if strings.Contains(v, ",") {
		v = strings.ReplaceAll(v, ".", "")
		v = strings.Replace(v, ",", ".", 1)
	}
	return decimal.NewFromString(v)
}
