package ofx

import (
	"strings"

	"fiscal-intake/internal/textnorm"
)

type rule struct {
	keywords []string
	only     TxType // vazio vale para os dois sentidos
	category Category
}

// A primeira regra que casar vence; a ordem importa ("PIX TARIFA" é tarifa).
var rules = []rule{
	{keywords: []string{"IOF", "DARF", "GPS", "SIMPLES NACIONAL", "IMPOSTO"}, category: CategoryTax},
	{keywords: []string{"TARIFA", "TAR", "CESTA", "PACOTE SERVICOS", "MANUTENCAO CONTA"}, only: TxDebit, category: CategoryBankFee},
	{keywords: []string{"JUROS", "MORA", "ENCARGOS"}, only: TxDebit, category: CategoryInterest},
	{keywords: []string{"RENDIMENTO", "REND PAGO", "RESGATE"}, only: TxCredit, category: CategoryInvestment},
	{keywords: []string{"CIELO", "REDE", "REDECARD", "STONE", "GETNET", "PAGSEGURO", "SIPAG", "SAFRAPAY"}, only: TxCredit, category: CategoryCardReceipt},
	{keywords: []string{"SALARIO", "FOLHA"}, only: TxDebit, category: CategoryPayroll},
	{keywords: []string{"BOLETO", "PAGTO TITULO", "PAG TIT", "COBRANCA"}, only: TxDebit, category: CategoryBoletoPayment},
	{keywords: []string{"PIX"}, only: TxCredit, category: CategoryCustomerReceipt},
	{keywords: []string{"PIX"}, only: TxDebit, category: CategorySupplierPayment},
	{keywords: []string{"TED", "DOC", "TRANSF", "TRANSFERENCIA"}, category: CategoryTransfer},
}

// Classify sugere a categoria pelo histórico. Palavras-chave casam como
// palavras inteiras, sem acento.
func Classify(t Transaction) Category {
	desc := " " + textnorm.Normalize(t.Description()) + " "
	for _, r := range rules {
		if r.only != "" && r.only != t.Type {
			continue
		}
		for _, kw := range r.keywords {
			if strings.Contains(desc, " "+kw+" ") {
				return r.category
			}
		}
	}
	if t.Type == TxDebit {
		return CategoryOtherExpense
	}
	return CategoryOtherIncome
}
