package entrynote

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"fiscal-intake/internal/fiscal"
	"fiscal-intake/internal/productlink"
)

// Toda alteração passa por mutate: barra nota fechada, marca Typing e
// recalcula os totais no fim.
func (n *Note) mutate(fn func() error) error {
	if !n.Status.Open() {
		return ErrNoteClosed
	}
	if err := fn(); err != nil {
		return err
	}
	n.touch()
	n.Recompute()
	return nil
}

func (n *Note) mutateItem(number int, fn func(it *Item) error) error {
	it, err := n.Item(number)
	if err != nil {
		return err
	}
	return n.mutate(func() error { return fn(it) })
}

func lockedItemErr(it *Item, field string) error {
	return fmt.Errorf("%w: item %d, campo %s", ErrFieldLocked, it.Number, field)
}

// ManualItem é o item digitado pelo usuário, sem lado fiscal próprio.
type ManualItem struct {
	ProductID   string  `json:"product_id"`
	Description string  `json:"description"`
	NCM         string  `json:"ncm"`
	CFOP        string  `json:"cfop"`
	Unit        string  `json:"unit"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Discount    float64 `json:"discount"`
}

// AddItem inclui um item digitado. O lado fiscal espelha o interno e segue
// editável; o vínculo é a própria seleção do produto.
func (n *Note) AddItem(m ManualItem) (*Item, error) {
	if m.Quantity <= 0 {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuantity, m.Quantity)
	}
	if m.ProductID == "" {
		return nil, productlink.ErrNoProduct
	}

	it := &Item{
		ID:                uuid.NewString(),
		Number:            n.nextItemNumber(),
		Provenance:        ProvenanceUserEntered,
		Description:       m.Description,
		CFOP:              m.CFOP,
		Discount:          m.Discount,
		FiscalQuantity:    m.Quantity,
		FiscalUnitPrice:   m.UnitPrice,
		FiscalTotalValue:  fiscal.Round2(m.Quantity * m.UnitPrice),
		FiscalUnit:        m.Unit,
		NCM:               m.NCM,
		InternalQuantity:  m.Quantity,
		InternalUnit:      m.Unit,
		ConversionFactor:  1,
		InternalUnitPrice: m.UnitPrice,
		Target: productlink.Target{
			SupplierTaxID:   n.Header.SupplierTaxID,
			LinkStatus:      productlink.StatusLinked,
			LinkedProductID: m.ProductID,
		},
	}
	if err := n.mutate(func() error {
		n.Items = append(n.Items, it)
		return nil
	}); err != nil {
		return nil, err
	}
	return it, nil
}

// RemoveItem só remove itens digitados; itens do XML fazem parte do documento.
func (n *Note) RemoveItem(number int) error {
	return n.mutateItem(number, func(it *Item) error {
		if it.Locked() {
			return lockedItemErr(it, "item")
		}
		for i, cur := range n.Items {
			if cur == it {
				n.Items = append(n.Items[:i], n.Items[i+1:]...)
				break
			}
		}
		return nil
	})
}

// SetInternalQuantity recalcula fator e preço unitário interno. Em item
// digitado, o lado fiscal acompanha.
func (n *Note) SetInternalQuantity(number int, q float64) error {
	if q <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidQuantity, q)
	}
	return n.mutateItem(number, func(it *Item) error {
		if !it.Locked() {
			it.FiscalQuantity = q
			it.FiscalTotalValue = fiscal.Round2(q * it.FiscalUnitPrice)
		}
		it.applyInternalQuantity(q)
		return nil
	})
}

// SetConversionFactor recalcula quantidade interna = fiscal × fator e o preço
// unitário interno.
func (n *Note) SetConversionFactor(number int, f float64) error {
	if f <= 0 {
		return fmt.Errorf("%w: fator %v", ErrInvalidQuantity, f)
	}
	return n.mutateItem(number, func(it *Item) error {
		it.applyConversionFactor(f)
		return nil
	})
}

func (n *Note) SetInternalUnit(number int, unit string) error {
	return n.mutateItem(number, func(it *Item) error {
		it.InternalUnit = strings.TrimSpace(unit)
		return nil
	})
}

// SetFiscalQuantity só vale para itens digitados.
func (n *Note) SetFiscalQuantity(number int, q float64) error {
	if q <= 0 {
		return fmt.Errorf("%w: %v", ErrInvalidQuantity, q)
	}
	return n.mutateItem(number, func(it *Item) error {
		if it.Locked() {
			return lockedItemErr(it, "fiscal_quantity")
		}
		it.FiscalQuantity = q
		it.FiscalTotalValue = fiscal.Round2(q * it.FiscalUnitPrice)
		it.applyInternalQuantity(q)
		return nil
	})
}

func (n *Note) SetFiscalUnitPrice(number int, price float64) error {
	if price < 0 {
		return fmt.Errorf("preço unitário inválido: %v", price)
	}
	return n.mutateItem(number, func(it *Item) error {
		if it.Locked() {
			return lockedItemErr(it, "fiscal_unit_price")
		}
		it.FiscalUnitPrice = price
		it.FiscalTotalValue = fiscal.Round2(it.FiscalQuantity * price)
		it.applyInternalQuantity(it.InternalQuantity)
		return nil
	})
}

func (n *Note) SetNCM(number int, ncm string) error {
	return n.mutateItem(number, func(it *Item) error {
		if it.Locked() {
			return lockedItemErr(it, "ncm")
		}
		it.NCM = fiscal.OnlyDigits(ncm)
		return nil
	})
}

func (n *Note) SetDiscount(number int, discount float64) error {
	if discount < 0 {
		return fmt.Errorf("desconto inválido: %v", discount)
	}
	return n.mutateItem(number, func(it *Item) error {
		if it.Locked() {
			return lockedItemErr(it, "discount")
		}
		it.Discount = discount
		return nil
	})
}

// SetHeader altera um campo texto do cabeçalho. Campos importados do XML
// recusam a edição.
func (n *Note) SetHeader(field HeaderField, value string) error {
	if n.Provenance(field) == ProvenanceFiscalImported {
		return fmt.Errorf("%w: %s", ErrFieldLocked, field)
	}
	return n.mutate(func() error {
		value = strings.TrimSpace(value)
		h := &n.Header
		switch field {
		case FieldNumber:
			h.Number = value
		case FieldSeries:
			h.Series = value
		case FieldAccessKey:
			h.AccessKey = fiscal.OnlyDigits(value)
		case FieldSupplier:
			h.SupplierID = value
		case FieldCFOP:
			h.CFOP = fiscal.OnlyDigits(value)
		case FieldOperationNature:
			h.OperationNature = value
		case FieldPurpose:
			h.Purpose = fiscal.Purpose(value)
		case FieldIssueDate:
			h.IssueDate = fiscal.NormalizeDate(value)
		case FieldEntryDate:
			h.EntryDate = fiscal.NormalizeDate(value)
		case FieldEntryType:
			h.EntryType = value
		default:
			return fmt.Errorf("campo de cabeçalho desconhecido: %s", field)
		}
		return nil
	})
}

// SetExpenses altera frete, seguro e outras despesas do cabeçalho.
func (n *Note) SetExpenses(freight, insurance, other float64) error {
	if freight < 0 || insurance < 0 || other < 0 {
		return fmt.Errorf("despesas não podem ser negativas")
	}
	return n.mutate(func() error {
		n.Header.Freight = freight
		n.Header.Insurance = insurance
		n.Header.OtherExpenses = other
		return nil
	})
}
