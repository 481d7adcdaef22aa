package ofx

import (
	"github.com/shopspring/decimal"
)

// Tolerance é a diferença máxima entre o valor do extrato e o do título.
var Tolerance = decimal.New(1, -2)

func amountsMatch(a, b decimal.Decimal) bool {
	return a.Abs().Sub(b.Abs()).Abs().LessThanOrEqual(Tolerance)
}

// MarkDuplicates aplica as duas camadas: FITID já gravado vira reconciled,
// FITID repetido no arquivo vira duplicated, o resto é new.
func MarkDuplicates(txs []Transaction, stored map[string]bool) {
	seen := make(map[string]bool, len(txs))
	for i := range txs {
		t := &txs[i]
		switch {
		case stored[t.FITID]:
			t.Status = StatusReconciled
		case seen[t.FITID]:
			t.Status = StatusDuplicated
		default:
			t.Status = StatusNew
		}
		seen[t.FITID] = true
	}
}

// SuggestMatches procura, para cada lançamento novo, o primeiro título em
// aberto do tipo certo com o mesmo valor. Lançamentos de mesmo valor podem
// receber o mesmo título; a baixa em Reconcile só aceita um. Nada é baixado aqui.
func SuggestMatches(txs []Transaction, payables, receivables []OpenItem) {
	for i := range txs {
		t := &txs[i]
		t.Match = nil
		if t.Status != StatusNew {
			continue
		}
		pool := receivables
		if t.Type == TxDebit {
			pool = payables
		}
		for j := range pool {
			it := pool[j]
			if !amountsMatch(t.Amount, it.FinalValue) {
				continue
			}
			t.Match = &it
			break
		}
	}
}
