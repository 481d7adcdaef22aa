package entrynote

import "fiscal-intake/internal/fiscal"

// Recompute refaz os totais a partir dos itens e das despesas do cabeçalho.
// Também completa campos fiscais vazios com o valor interno.
func (n *Note) Recompute() {
	var t Totals
	for _, it := range n.Items {
		it.healFiscalDefaults()
		t.ProductsTotal += it.ProductsValue()
		t.TaxesTotal += it.Taxes()
		t.DiscountsTotal += it.Discount
	}

	t.Freight = n.Header.Freight
	t.Insurance = n.Header.Insurance
	t.OtherExpenses = n.Header.OtherExpenses

	t.ProductsTotal = fiscal.Round2(t.ProductsTotal)
	t.TaxesTotal = fiscal.Round2(t.TaxesTotal)
	t.DiscountsTotal = fiscal.Round2(t.DiscountsTotal)
	t.GrandTotal = fiscal.Round2(t.ProductsTotal + t.TaxesTotal + t.Freight +
		t.Insurance + t.OtherExpenses - t.DiscountsTotal)

	n.Totals = t
}
