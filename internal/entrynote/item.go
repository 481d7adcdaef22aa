package entrynote

import (
	"fiscal-intake/internal/productlink"
)

// Item tem dois lados: o fiscal (como está no documento) e o interno (como
// o estoque conta). ConversionFactor liga os dois.
type Item struct {
	ID          string     `json:"id"`
	Number      int        `json:"number"`
	Provenance  Provenance `json:"provenance"`
	Description string     `json:"description"`
	CFOP        string     `json:"cfop"`
	GTIN        string     `json:"gtin,omitempty"`
	Discount    float64    `json:"discount"`

	// lado fiscal
	FiscalQuantity   float64 `json:"fiscal_quantity"`
	FiscalUnitPrice  float64 `json:"fiscal_unit_price"`
	FiscalTotalValue float64 `json:"fiscal_total_value"`
	FiscalUnit       string  `json:"fiscal_unit"`
	NCM              string  `json:"ncm"`

	ICMSValue   float64 `json:"icms_value"`
	IPIValue    float64 `json:"ipi_value"`
	PISValue    float64 `json:"pis_value"`
	COFINSValue float64 `json:"cofins_value"`

	// lado interno
	InternalQuantity  float64 `json:"internal_quantity"`
	InternalUnit      string  `json:"internal_unit"`
	ConversionFactor  float64 `json:"conversion_factor"`
	InternalUnitPrice float64 `json:"internal_unit_price"`

	productlink.Target
}

// Locked indica que o lado fiscal veio do XML e não aceita edição.
func (it *Item) Locked() bool {
	return it.Provenance == ProvenanceFiscalImported
}

func (it *Item) Descriptor() productlink.Descriptor {
	return productlink.Descriptor{
		Description: it.Description,
		NCM:         it.NCM,
		GTIN:        it.GTIN,
		Unit:        it.FiscalUnit,
	}
}

// Taxes soma ICMS, IPI, PIS e COFINS do item.
func (it *Item) Taxes() float64 {
	return it.ICMSValue + it.IPIValue + it.PISValue + it.COFINSValue
}

// ProductsValue é o total fiscal quando presente; senão, o calculado pelo
// lado interno.
func (it *Item) ProductsValue() float64 {
	if it.FiscalTotalValue > 0 {
		return it.FiscalTotalValue
	}
	return it.InternalQuantity * it.InternalUnitPrice
}

func conversionFactor(internalQty, fiscalQty float64) float64 {
	if fiscalQty > 0 {
		return internalQty / fiscalQty
	}
	return 1
}

func internalUnitPrice(fiscalTotal, internalQty float64) float64 {
	if internalQty > 0 {
		return fiscalTotal / internalQty
	}
	return 0
}

// applyInternalQuantity: quantidade interna → fator e preço unitário interno.
func (it *Item) applyInternalQuantity(q float64) {
	it.InternalQuantity = q
	it.ConversionFactor = conversionFactor(q, it.FiscalQuantity)
	it.InternalUnitPrice = internalUnitPrice(it.FiscalTotalValue, q)
}

// applyConversionFactor: fator → quantidade interna → preço unitário interno.
func (it *Item) applyConversionFactor(f float64) {
	if it.FiscalQuantity > 0 {
		it.InternalQuantity = it.FiscalQuantity * f
		it.ConversionFactor = f
	} else {
		it.ConversionFactor = 1
	}
	it.InternalUnitPrice = internalUnitPrice(it.FiscalTotalValue, it.InternalQuantity)
}

// healFiscalDefaults preenche campos fiscais vazios com o valor interno atual.
func (it *Item) healFiscalDefaults() {
	if it.FiscalQuantity == 0 && it.InternalQuantity > 0 {
		it.FiscalQuantity = it.InternalQuantity
	}
	if it.FiscalUnit == "" {
		it.FiscalUnit = it.InternalUnit
	}
	if it.FiscalUnitPrice == 0 && it.InternalUnitPrice > 0 {
		it.FiscalUnitPrice = it.InternalUnitPrice
	}
	if it.FiscalTotalValue == 0 && it.InternalQuantity > 0 && it.InternalUnitPrice > 0 {
		it.FiscalTotalValue = it.InternalQuantity * it.InternalUnitPrice
	}
	if it.ConversionFactor == 0 {
		it.ConversionFactor = conversionFactor(it.InternalQuantity, it.FiscalQuantity)
	}
}
