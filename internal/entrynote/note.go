package entrynote

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"fiscal-intake/internal/fiscal"
	"fiscal-intake/internal/productlink"
)

var (
	ErrFieldLocked          = errors.New("campo fiscal bloqueado após importação do XML")
	ErrNoteClosed           = errors.New("nota já lançada ou cancelada")
	ErrItemNotFound         = errors.New("item não encontrado na nota")
	ErrInvalidQuantity      = errors.New("quantidade inválida")
	ErrMissingHeader        = errors.New("campos obrigatórios do cabeçalho ausentes")
	ErrNoItems              = errors.New("nota sem itens")
	ErrConfirmationRequired = errors.New("confirmação necessária")
	ErrPayablesFailed       = errors.New("nota lançada, mas contas a pagar falharam; verifique manualmente")
)

// Status da nota de entrada.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusTyping    Status = "typing"
	StatusPosted    Status = "posted"
	StatusCancelled Status = "cancelled"
)

// Open indica se a nota ainda aceita edição.
func (s Status) Open() bool {
	return s == StatusDraft || s == StatusTyping
}

// Provenance diz de onde veio o valor de um campo. Campos importados do XML
// ficam bloqueados para o usuário.
type Provenance string

const (
	ProvenanceUserEntered    Provenance = "user_entered"
	ProvenanceFiscalImported Provenance = "fiscal_imported"
)

type HeaderField string

const (
	FieldNumber          HeaderField = "number"
	FieldSeries          HeaderField = "series"
	FieldAccessKey       HeaderField = "access_key"
	FieldSupplier        HeaderField = "supplier"
	FieldCFOP            HeaderField = "cfop"
	FieldOperationNature HeaderField = "operation_nature"
	FieldPurpose         HeaderField = "purpose"
	FieldIssueDate       HeaderField = "issue_date"
	FieldEntryDate       HeaderField = "entry_date"
	FieldEntryType       HeaderField = "entry_type"
)

// Campos de cabeçalho que passam a fiscal_imported quando a nota vem do XML.
var fiscalHeaderFields = []HeaderField{
	FieldNumber, FieldSeries, FieldAccessKey, FieldSupplier,
	FieldCFOP, FieldOperationNature, FieldPurpose, FieldIssueDate,
}

type Header struct {
	Kind            fiscal.DocumentKind `json:"kind"`
	Number          string              `json:"number"`
	Series          string              `json:"series"`
	AccessKey       string              `json:"access_key,omitempty"`
	Model           string              `json:"model,omitempty"`
	SupplierID      string              `json:"supplier_id"`
	SupplierTaxID   string              `json:"supplier_tax_id"`
	SupplierName    string              `json:"supplier_name"`
	CFOP            string              `json:"cfop"`
	OperationNature string              `json:"operation_nature"`
	Purpose         fiscal.Purpose      `json:"purpose"`
	EntryType       string              `json:"entry_type"`
	IssueDate       string              `json:"issue_date"`
	EntryDate       string              `json:"entry_date"`
	Freight         float64             `json:"freight"`
	Insurance       float64             `json:"insurance"`
	OtherExpenses   float64             `json:"other_expenses"`
}

type Totals struct {
	ProductsTotal  float64 `json:"products_total"`
	TaxesTotal     float64 `json:"taxes_total"`
	DiscountsTotal float64 `json:"discounts_total"`
	Freight        float64 `json:"freight"`
	Insurance      float64 `json:"insurance"`
	OtherExpenses  float64 `json:"other_expenses"`
	GrandTotal     float64 `json:"grand_total"`
}

// Note é o agregado editado na tela de entrada. Não é seguro para uso
// concorrente: cada requisição carrega, altera e grava a sua cópia.
type Note struct {
	ID           string                     `json:"id"`
	CompanyID    string                     `json:"company_id"`
	Header       Header                     `json:"header"`
	Fields       map[HeaderField]Provenance `json:"fields"`
	Items        []*Item                    `json:"items"`
	Totals       Totals                     `json:"totals"`
	Status       Status                     `json:"status"`
	Installments []fiscal.Installment       `json:"installments"`

	IntegrityHash string `json:"integrity_hash,omitempty"`
	RawXML        []byte `json:"-"`
	Persisted     bool   `json:"-"`
}

func New(companyID string) *Note {
	return &Note{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Fields:    map[HeaderField]Provenance{},
		Status:    StatusDraft,
	}
}

// Provenance de um campo do cabeçalho; ausente vale user_entered.
func (n *Note) Provenance(f HeaderField) Provenance {
	if p, ok := n.Fields[f]; ok {
		return p
	}
	return ProvenanceUserEntered
}

// FromFiscal indica se algum dado da nota veio de um documento fiscal.
func (n *Note) FromFiscal() bool {
	for _, p := range n.Fields {
		if p == ProvenanceFiscalImported {
			return true
		}
	}
	return false
}

func (n *Note) Item(number int) (*Item, error) {
	for _, it := range n.Items {
		if it.Number == number {
			return it, nil
		}
	}
	return nil, fmt.Errorf("%w: %d", ErrItemNotFound, number)
}

// LinkTargets devolve o estado de vínculo de cada item, na ordem da nota.
func (n *Note) LinkTargets() []*productlink.Target {
	out := make([]*productlink.Target, len(n.Items))
	for i, it := range n.Items {
		out[i] = &it.Target
	}
	return out
}

// PendingLinks conta itens ainda pendentes de vínculo.
func (n *Note) PendingLinks() int {
	return len(productlink.NewSession(n.LinkTargets()).Pending())
}

func (n *Note) nextItemNumber() int {
	last := 0
	for _, it := range n.Items {
		if it.Number > last {
			last = it.Number
		}
	}
	return last + 1
}

// touch marca a primeira edição (Draft → Typing).
func (n *Note) touch() {
	if n.Status == StatusDraft {
		n.Status = StatusTyping
	}
}
