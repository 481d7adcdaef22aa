package productlink

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Status é a situação do vínculo de um item importado com o cadastro.
type Status string

const (
	StatusPending Status = "pending"
	StatusLinked  Status = "linked"
	StatusCreated Status = "created"
	StatusIgnored Status = "ignored"
)

// Resolved indica status terminal (vinculado, criado ou ignorado).
func (s Status) Resolved() bool {
	switch s {
	case StatusLinked, StatusCreated, StatusIgnored:
		return true
	}
	return false
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusLinked, StatusCreated, StatusIgnored:
		return Status(s), nil
	}
	return "", fmt.Errorf("status de vínculo desconhecido: %q", s)
}

var (
	ErrAlreadyResolved = errors.New("item já vinculado")
	ErrPendingLinks    = errors.New("há itens pendentes de vínculo")
	ErrMissingKey      = errors.New("item sem CNPJ do fornecedor ou código do produto")
	ErrNoProduct       = errors.New("produto não informado")
)

// Key identifica um vínculo salvo.
type Key struct {
	CompanyID           string
	SupplierTaxID       string
	SupplierProductCode string
}

func (k Key) Valid() bool {
	return k.SupplierTaxID != "" && k.SupplierProductCode != ""
}

// Link é o vínculo persistente (fornecedor, código) → produto interno. Os dados
// do item ficam desnormalizados para as próximas sugestões.
type Link struct {
	ID string
	Key
	ProductID   string
	Description string
	NCM         string
	GTIN        string
	Unit        string
	Ignored     bool
	UpdatedAt   time.Time
}

// Descriptor é o que o item importado diz sobre si mesmo.
type Descriptor struct {
	Description string
	NCM         string
	GTIN        string
	Unit        string
}

// Target é o estado de vínculo de um item. A nota de entrada embute este
// tipo em cada item.
type Target struct {
	SupplierTaxID       string `json:"supplier_tax_id"`
	SupplierProductCode string `json:"supplier_product_code"`
	LinkStatus          Status `json:"link_status"`
	LinkedProductID     string `json:"linked_product_id,omitempty"`
	LinkID              string `json:"link_id,omitempty"`
}

func (t *Target) key(companyID string) Key {
	return Key{
		CompanyID:           companyID,
		SupplierTaxID:       t.SupplierTaxID,
		SupplierProductCode: t.SupplierProductCode,
	}
}

// Store persiste os vínculos. FindLink devolve (nil, nil) quando não existe.
type Store interface {
	FindLink(ctx context.Context, key Key) (*Link, error)
	UpsertLink(ctx context.Context, link *Link) error
}

// Product é um candidato do cadastro.
type Product struct {
	ID    string `json:"id"`
	Code  string `json:"code"`
	Name  string `json:"name"`
	Brand string `json:"brand,omitempty"`
	NCM   string `json:"ncm,omitempty"`
	GTIN  string `json:"gtin,omitempty"`
	Unit  string `json:"unit,omitempty"`
}

type CatalogQuery struct {
	CompanyID string
	NCM       string
	GTIN      string
	Terms     []string
	Limit     int
}

// Catalog busca produtos por NCM, GTIN ou termos da descrição.
type Catalog interface {
	SearchProducts(ctx context.Context, q CatalogQuery) ([]Product, error)
}
