package entrynote

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"fiscal-intake/internal/fiscal"
	"fiscal-intake/internal/productlink"
)

// PersonType do fornecedor: PJ (CNPJ, 14 dígitos) ou PF (CPF, 11 dígitos).
type PersonType string

const (
	PersonPJ PersonType = "PJ"
	PersonPF PersonType = "PF"
)

func PersonTypeFor(taxID string) PersonType {
	if len(fiscal.OnlyDigits(taxID)) == 11 {
		return PersonPF
	}
	return PersonPJ
}

type Supplier struct {
	ID                    string
	CompanyID             string
	TaxID                 string
	PersonType            PersonType
	LegalName             string
	TradeName             string
	StateRegistration     string
	MunicipalRegistration string
	Address               fiscal.Address
	Phone                 string
	Email                 string
}

type SupplierStore interface {
	ListSuppliers(ctx context.Context, companyID string) ([]Supplier, error)
	CreateSupplier(ctx context.Context, s *Supplier) error
}

// LinkResolver aplica vínculos salvos aos itens recém-importados.
type LinkResolver interface {
	ResolveStored(ctx context.Context, companyID string, targets []*productlink.Target) (int, error)
}

// Mapper converte o documento validado em nota de entrada. Mantém um cache
// de fornecedores por empresa, recarregado após cada cadastro.
type Mapper struct {
	suppliers SupplierStore
	links     LinkResolver

	mu    sync.Mutex
	cache map[string]map[string]Supplier // empresa -> CPF/CNPJ -> fornecedor
}

func NewMapper(suppliers SupplierStore, links LinkResolver) *Mapper {
	return &Mapper{
		suppliers: suppliers,
		links:     links,
		cache:     map[string]map[string]Supplier{},
	}
}

// Map monta a nota em rascunho: fornecedor resolvido (ou criado), itens com
// lado fiscal bloqueado e interno 1:1, vínculos salvos aplicados e totais
// calculados.
func (m *Mapper) Map(ctx context.Context, companyID string, inv *fiscal.ParsedInvoice) (*Note, error) {
	sup, err := m.ResolveSupplier(ctx, companyID, inv.Supplier)
	if err != nil {
		return nil, err
	}

	n := New(companyID)
	n.Header = Header{
		Kind:            inv.Kind,
		Number:          inv.Number,
		Series:          inv.Series,
		AccessKey:       inv.AccessKey,
		Model:           inv.Model,
		SupplierID:      sup.ID,
		SupplierTaxID:   sup.TaxID,
		SupplierName:    sup.LegalName,
		CFOP:            inv.CFOP,
		OperationNature: inv.OperationNature,
		Purpose:         inv.Purpose,
		EntryType:       inv.EntryType,
		IssueDate:       inv.IssueDate,
		EntryDate:       inv.EntryDate,
		Freight:         inv.Totals.Freight,
		Insurance:       inv.Totals.Insurance,
		OtherExpenses:   inv.Totals.OtherExpenses,
	}
	for _, f := range fiscalHeaderFields {
		n.Fields[f] = ProvenanceFiscalImported
	}

	for _, li := range inv.Items {
		n.Items = append(n.Items, itemFromFiscal(li, sup.TaxID))
	}
	n.Installments = append(n.Installments, inv.Installments...)
	n.IntegrityHash = inv.IntegrityHash
	n.RawXML = inv.RawXML

	if m.links != nil {
		if _, err := m.links.ResolveStored(ctx, companyID, n.LinkTargets()); err != nil {
			return nil, err
		}
	}

	n.Recompute()
	return n, nil
}

func itemFromFiscal(li fiscal.LineItem, supplierTaxID string) *Item {
	it := &Item{
		ID:               uuid.NewString(),
		Number:           li.Number,
		Provenance:       ProvenanceFiscalImported,
		Description:      li.Description,
		CFOP:             li.CFOP,
		GTIN:             li.GTIN(),
		Discount:         li.Discount,
		FiscalQuantity:   li.Quantity,
		FiscalUnitPrice:  li.UnitPrice,
		FiscalTotalValue: li.TotalValue,
		FiscalUnit:       li.Unit,
		NCM:              li.NCM(),
		InternalUnit:     li.Unit,
		Target: productlink.Target{
			SupplierTaxID:       supplierTaxID,
			SupplierProductCode: li.SupplierCode,
			LinkStatus:          productlink.StatusPending,
		},
	}
	if g := li.Goods; g != nil {
		it.ICMSValue = g.ICMS.ValueOf()
		it.IPIValue = g.IPI.ValueOf()
		it.PISValue = g.PIS.ValueOf()
		it.COFINSValue = g.COFINS.ValueOf()
	}
	it.applyInternalQuantity(li.Quantity)
	return it
}

// ResolveSupplier busca o fornecedor por (empresa, CPF/CNPJ) e cadastra quando
// não existe.
func (m *Mapper) ResolveSupplier(ctx context.Context, companyID string, p fiscal.Party) (*Supplier, error) {
	taxID := fiscal.OnlyDigits(p.TaxID)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.cache[companyID]; !ok {
		if err := m.reload(ctx, companyID); err != nil {
			return nil, err
		}
	}
	if s, ok := m.cache[companyID][taxID]; ok {
		return &s, nil
	}

	s := &Supplier{
		ID:                    uuid.NewString(),
		CompanyID:             companyID,
		TaxID:                 taxID,
		PersonType:            PersonTypeFor(taxID),
		LegalName:             p.LegalName,
		TradeName:             p.TradeName,
		StateRegistration:     p.StateRegistration,
		MunicipalRegistration: p.MunicipalRegistration,
		Address:               p.Address,
		Phone:                 p.Phone,
		Email:                 p.Email,
	}
	if err := m.suppliers.CreateSupplier(ctx, s); err != nil {
		// Outro processo pode ter cadastrado depois do último carregamento.
		if rerr := m.reload(ctx, companyID); rerr == nil {
			if cached, ok := m.cache[companyID][taxID]; ok {
				return &cached, nil
			}
		}
		return nil, fmt.Errorf("erro cadastrando fornecedor %s: %w", taxID, err)
	}
	slog.Info("fornecedor cadastrado a partir do XML",
		"empresa", companyID,
		"cnpj_cpf", taxID,
		"tipo", s.PersonType,
		"nome", s.LegalName,
	)

	if err := m.reload(ctx, companyID); err != nil {
		return nil, err
	}
	if cached, ok := m.cache[companyID][taxID]; ok {
		return &cached, nil
	}
	return s, nil
}

func (m *Mapper) reload(ctx context.Context, companyID string) error {
	list, err := m.suppliers.ListSuppliers(ctx, companyID)
	if err != nil {
		return fmt.Errorf("erro carregando fornecedores: %w", err)
	}
	byTaxID := make(map[string]Supplier, len(list))
	for _, s := range list {
		byTaxID[fiscal.OnlyDigits(s.TaxID)] = s
	}
	m.cache[companyID] = byTaxID
	return nil
}
