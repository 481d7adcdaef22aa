// Package ofx lê extratos bancários OFX (SGML ou XML), classifica os
// lançamentos, separa o que já foi importado e sugere a baixa contra contas a
// pagar e a receber em aberto.
package ofx

import (
	"github.com/shopspring/decimal"
)

type TxType string

const (
	TxCredit TxType = "credit"
	TxDebit  TxType = "debit"
)

// TypeOf deriva o tipo pelo sinal do valor. TRNTYPE não é confiável entre bancos.
func TypeOf(amount decimal.Decimal) TxType {
	if amount.IsNegative() {
		return TxDebit
	}
	return TxCredit
}

// Status do lançamento em relação ao que já está gravado.
type Status string

const (
	StatusNew        Status = "new"
	StatusDuplicated Status = "duplicated" // FITID repetido no próprio arquivo
	StatusReconciled Status = "reconciled" // FITID já importado antes
)

type Category string

const (
	CategoryCustomerReceipt Category = "recebimento_cliente"
	CategorySupplierPayment Category = "pagamento_fornecedor"
	CategoryCardReceipt     Category = "recebimento_cartao"
	CategoryBoletoPayment   Category = "pagamento_boleto"
	CategoryTransfer        Category = "transferencia"
	CategoryTax             Category = "imposto"
	CategoryBankFee         Category = "tarifa_bancaria"
	CategoryInterest        Category = "juros"
	CategoryInvestment      Category = "rendimento"
	CategoryPayroll         Category = "folha_pagamento"
	CategoryOtherIncome     Category = "outras_receitas"
	CategoryOtherExpense    Category = "outras_despesas"
)

type Statement struct {
	BankID    string        `json:"bank_id"`
	AccountID string        `json:"account_id"`
	Currency  string        `json:"currency"`
	StartDate string        `json:"start_date"`
	EndDate   string        `json:"end_date"`
	Charset   string        `json:"charset"`
	Txs       []Transaction `json:"transactions"`
	Rejected  []RejectedRow `json:"rejected"`
}

type Transaction struct {
	FITID        string          `json:"fitid"`
	PostedDate   string          `json:"posted_date"` // AAAA-MM-DD
	Amount       decimal.Decimal `json:"amount"`
	Type         TxType          `json:"type"`
	DeclaredType string          `json:"declared_type,omitempty"`
	Name         string          `json:"name,omitempty"`
	Memo         string          `json:"memo,omitempty"`
	CheckNum     string          `json:"check_num,omitempty"`

	Category Category  `json:"category"`
	Status   Status    `json:"status"`
	Match    *OpenItem `json:"suggested_match,omitempty"`
}

// Description junta NAME e MEMO, que cada banco preenche de um jeito.
func (t Transaction) Description() string {
	switch {
	case t.Name == "":
		return t.Memo
	case t.Memo == "" || t.Memo == t.Name:
		return t.Name
	default:
		return t.Name + " " + t.Memo
	}
}

// RejectedRow é um STMTTRN sem FITID, DTPOSTED ou TRNAMT válidos.
type RejectedRow struct {
	Index  int    `json:"index"`
	Reason string `json:"reason"`
}

type OpenItemKind string

const (
	KindPayable    OpenItemKind = "payable"
	KindReceivable OpenItemKind = "receivable"
)

// KindFor é o tipo de título que um lançamento pode baixar.
func KindFor(t TxType) OpenItemKind {
	if t == TxDebit {
		return KindPayable
	}
	return KindReceivable
}

// OpenItem é uma conta a pagar ou a receber ainda em aberto.
type OpenItem struct {
	ID          string          `json:"id"`
	Kind        OpenItemKind    `json:"kind"`
	Description string          `json:"description"`
	DueDate     string          `json:"due_date"`
	FinalValue  decimal.Decimal `json:"final_value"`
}

// Movement é o lançamento financeiro gerado pela conciliação.
type Movement struct {
	ID           string          `json:"id"`
	CompanyID    string          `json:"company_id"`
	AccountID    string          `json:"account_id"`
	Kind         TxType          `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	Date         string          `json:"date"`
	Description  string          `json:"description"`
	Category     Category        `json:"category"`
	FITID        string          `json:"fitid"`
	PayableID    string          `json:"payable_id,omitempty"`
	ReceivableID string          `json:"receivable_id,omitempty"`
}

// Import é o cabeçalho da importação com os lançamentos novos.
type Import struct {
	ID        string
	CompanyID string
	AccountID string
	BankID    string
	StartDate string
	EndDate   string
	FileHash  string
	Items     []Transaction
}

// StoredItem é um lançamento já importado e o movimento que o conciliou, se houver.
type StoredItem struct {
	ImportID   string
	Tx         Transaction
	MovementID string
}

// Report é o resultado de uma importação.
type Report struct {
	ImportID   string        `json:"import_id,omitempty"`
	Statement  *Statement    `json:"statement"`
	New        int           `json:"new"`
	Duplicated int           `json:"duplicated"`
	Reconciled int           `json:"reconciled"`
	Rejected   int           `json:"rejected"`
	Suggested  int           `json:"suggested"`
	Txs        []Transaction `json:"transactions"`
}

func (r *Report) count() {
	r.New, r.Duplicated, r.Reconciled, r.Suggested = 0, 0, 0, 0
	for _, t := range r.Txs {
		switch t.Status {
		case StatusNew:
			r.New++
		case StatusDuplicated:
			r.Duplicated++
		case StatusReconciled:
			r.Reconciled++
		}
		if t.Match != nil {
			r.Suggested++
		}
	}
	r.Rejected = len(r.Statement.Rejected)
}
