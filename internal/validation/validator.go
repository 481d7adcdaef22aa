package validation

import (
	"context"
	"fmt"
	"math"
	"strings"

	"fiscal-intake/internal/fiscal"
)

const (
	accessKeyLength = 44
	ncmLength       = 8
	placeholderNCM  = "00000000"
	totalTolerance  = 0.01
)

// Primeiro dígito do CFOP: 1-3 entradas, 5-7 saídas.
var validCFOPClasses = map[byte]bool{'1': true, '2': true, '3': true, '5': true, '6': true, '7': true}

// DocumentRef identifica um documento já gravado.
type DocumentRef struct {
	ID        string
	Number    string
	Series    string
	AccessKey string
}

// DocumentLookup consulta documentos já importados. Retorna (nil, nil) quando
// não encontra.
type DocumentLookup interface {
	FindByAccessKey(ctx context.Context, companyID, accessKey string) (*DocumentRef, error)
	FindByNumberSeries(ctx context.Context, companyID, number, series string) (*DocumentRef, error)
}

// Options escolhe o comportamento por ponto de chamada.
type Options struct {
	// CorrectTotals substitui o total declarado quando diverge da soma dos
	// itens (fluxo de importação avulsa). Desligado, gera apenas aviso.
	CorrectTotals bool
}

type Validator struct {
	lookup    DocumentLookup
	companyID string
}

// New cria o validador. lookup pode ser nil: a checagem de duplicidade é pulada.
func New(lookup DocumentLookup, companyID string) *Validator {
	return &Validator{lookup: lookup, companyID: companyID}
}

// Validate roda as checagens em ordem e aplica as correções em inv. Erros de
// consulta ao banco voltam como error, nunca como achado.
func (v *Validator) Validate(ctx context.Context, inv *fiscal.ParsedInvoice, opts Options) (*Report, error) {
	r := &Report{}

	if inv.Kind == fiscal.KindNFe {
		if err := v.checkAccessKey(ctx, inv, r); err != nil {
			return nil, err
		}
	}
	checkSupplier(inv, r)
	checkNCM(inv, r)
	if inv.Kind == fiscal.KindNFe {
		checkCFOP(inv, r)
	}
	checkRecipient(inv, r)
	checkTotals(inv, r, opts)

	return r, nil
}

// 1. chave de acesso + duplicidade
func (v *Validator) checkAccessKey(ctx context.Context, inv *fiscal.ParsedInvoice, r *Report) error {
	key := fiscal.OnlyDigits(inv.AccessKey)
	if len(key) != accessKeyLength || key != strings.TrimSpace(inv.AccessKey) {
		r.addError(Finding{
			Code:    CodeAccessKeyMalformed,
			Field:   "access_key",
			Message: fmt.Sprintf("chave de acesso deve ter %d dígitos (recebido %q)", accessKeyLength, inv.AccessKey),
		})
		return nil
	}
	if v.lookup == nil {
		return nil
	}

	ref, err := v.lookup.FindByAccessKey(ctx, v.companyID, key)
	if err != nil {
		return fmt.Errorf("erro verificando chave de acesso: %w", err)
	}
	if ref == nil && inv.Number != "" {
		ref, err = v.lookup.FindByNumberSeries(ctx, v.companyID, inv.Number, inv.Series)
		if err != nil {
			return fmt.Errorf("erro verificando número/série: %w", err)
		}
	}
	if ref != nil {
		r.addError(Finding{
			Code:  CodeDuplicateDocument,
			Field: "access_key",
			Message: fmt.Sprintf("documento já importado: NF %s série %s (id %s)",
				ref.Number, ref.Series, ref.ID),
		})
	}
	return nil
}

// 2. CPF/CNPJ do fornecedor
func checkSupplier(inv *fiscal.ParsedInvoice, r *Report) {
	if !validTaxIDLength(inv.Supplier.TaxID) {
		r.addError(Finding{
			Code:    CodeSupplierTaxIDInvalid,
			Field:   "supplier.tax_id",
			Message: fmt.Sprintf("CPF/CNPJ do fornecedor inválido: %q", inv.Supplier.TaxID),
		})
	}
}

// 3. NCM com 8 dígitos; fora disso vira 00000000.
func checkNCM(inv *fiscal.ParsedInvoice, r *Report) {
	for i := range inv.Items {
		it := &inv.Items[i]
		if it.Goods == nil {
			continue
		}
		if len(fiscal.OnlyDigits(it.Goods.NCM)) == ncmLength {
			continue
		}
		r.addCorrection(Finding{
			Code:    CodeNCMInvalid,
			Field:   "ncm",
			Item:    it.Number,
			Message: fmt.Sprintf("NCM %q inválido substituído por %s", it.Goods.NCM, placeholderNCM),
			From:    it.Goods.NCM,
			To:      placeholderNCM,
		})
		it.Goods.NCM = placeholderNCM
	}
}

// 4. CFOP por item (só NF-e)
func checkCFOP(inv *fiscal.ParsedInvoice, r *Report) {
	// Ajustes feitos pelo extrator são divulgados aqui como correções.
	adjusted := map[int]bool{}
	for _, adj := range inv.Adjustments {
		if adj.Field != "cfop" {
			continue
		}
		adjusted[adj.Item] = true
		r.addCorrection(Finding{
			Code:    CodeCFOPShifted,
			Field:   "cfop",
			Item:    adj.Item,
			Message: fmt.Sprintf("CFOP %s convertido para %s: %s", adj.From, adj.To, adj.Reason),
			From:    adj.From,
			To:      adj.To,
		})
	}

	for i := range inv.Items {
		it := &inv.Items[i]
		if adjusted[it.Number] {
			continue
		}
		digits := fiscal.OnlyDigits(it.CFOP)
		if len(digits) < 4 || len(digits) > 6 {
			r.addWarning(Finding{
				Code:    CodeCFOPInvalid,
				Field:   "cfop",
				Item:    it.Number,
				Message: fmt.Sprintf("CFOP %q deve ter de 4 a 6 dígitos", it.CFOP),
			})
			continue
		}

		class := digits[0]
		if validCFOPClasses[class] && (!inv.Direction.Inbound() || class < '5') {
			continue
		}

		if shifted, ok := fiscal.ShiftOutboundCFOP(digits, inv.Direction); ok {
			r.addCorrection(Finding{
				Code:    CodeCFOPShifted,
				Field:   "cfop",
				Item:    it.Number,
				Message: fmt.Sprintf("CFOP de saída %s convertido para entrada %s", it.CFOP, shifted),
				From:    it.CFOP,
				To:      shifted,
			})
			it.CFOP = shifted
			continue
		}

		msg := fmt.Sprintf("CFOP %s fora das classes conhecidas", it.CFOP)
		if validCFOPClasses[class] {
			msg = fmt.Sprintf("CFOP de saída %s em documento de entrada", it.CFOP)
		}
		r.addWarning(Finding{
			Code:    CodeCFOPInvalid,
			Field:   "cfop",
			Item:    it.Number,
			Message: msg,
		})
	}
}

// 5. CPF/CNPJ do destinatário
func checkRecipient(inv *fiscal.ParsedInvoice, r *Report) {
	if !validTaxIDLength(inv.Recipient.TaxID) {
		r.addWarning(Finding{
			Code:    CodeRecipientTaxIDSuspicious,
			Field:   "recipient.tax_id",
			Message: fmt.Sprintf("CPF/CNPJ do destinatário suspeito: %q", inv.Recipient.TaxID),
		})
	}
}

// 6. soma dos itens + frete + seguro + outras − descontos contra o total declarado
func checkTotals(inv *fiscal.ParsedInvoice, r *Report, opts Options) {
	expected := ExpectedGrandTotal(inv)
	declared := inv.Totals.GrandTotal
	if math.Abs(expected-declared) <= totalTolerance {
		return
	}

	from := fmt.Sprintf("%.2f", declared)
	to := fmt.Sprintf("%.2f", expected)

	if !opts.CorrectTotals {
		r.addWarning(Finding{
			Code:    CodeTotalMismatch,
			Field:   "totals.grand_total",
			Message: fmt.Sprintf("total declarado %s difere do calculado %s", from, to),
			From:    from,
			To:      to,
		})
		return
	}

	inv.Totals.GrandTotal = expected
	// A parcela sintética acompanha o total corrigido.
	if len(inv.Installments) == 1 && inv.Installments[0].Number == "001" &&
		math.Abs(inv.Installments[0].Value-declared) <= totalTolerance {
		inv.Installments[0].Value = expected
	}
	r.addCorrection(Finding{
		Code:    CodeTotalCorrected,
		Field:   "totals.grand_total",
		Message: fmt.Sprintf("total declarado %s substituído pelo calculado %s", from, to),
		From:    from,
		To:      to,
	})
}

// ExpectedGrandTotal é Σ itens + frete + seguro + outras despesas − descontos.
func ExpectedGrandTotal(inv *fiscal.ParsedInvoice) float64 {
	var sum float64
	for _, it := range inv.Items {
		sum += it.TotalValue
	}
	t := inv.Totals
	return fiscal.Round2(sum + t.Freight + t.Insurance + t.OtherExpenses - t.DiscountsTotal)
}

func validTaxIDLength(taxID string) bool {
	n := len(fiscal.OnlyDigits(taxID))
	return n == 11 || n == 14
}
