package fiscal

// ============================================================================
// Tipos de saída do extrator, representação intermediária de NF-e / NFS-e
// ============================================================================

// DocumentKind identifica o layout do documento fiscal.
type DocumentKind string

const (
	KindNFe  DocumentKind = "nfe"
	KindNFSe DocumentKind = "nfse"
)

// Direction é o sentido da operação do ponto de vista da empresa.
type Direction string

const (
	DirectionEntrada      Direction = "entrada"
	DirectionSaida        Direction = "saida"
	DirectionDevolucao    Direction = "devolucao"
	DirectionComplementar Direction = "complementar"
)

// Inbound indica se o documento entra no estoque/financeiro da empresa.
func (d Direction) Inbound() bool {
	return d != DirectionSaida
}

// Purpose é a finalidade da nota (finNFe).
type Purpose string

const (
	PurposeNormal        Purpose = "normal"
	PurposeComplementary Purpose = "complementary"
	PurposeAdjustment    Purpose = "adjustment"
	PurposeReturn        Purpose = "return"
	PurposeImport        Purpose = "import"
)

// ParsedInvoice é o resultado do extrator, antes de virar nota de entrada.
// O validador pode alterar campos no lugar (correções).
type ParsedInvoice struct {
	Kind      DocumentKind
	Direction Direction

	Number          string
	Series          string
	AccessKey       string
	Model           string
	IssueDate       string // YYYY-MM-DD
	EntryDate       string // YYYY-MM-DD
	CFOP            string
	OperationNature string
	FinalityCode    string
	Purpose         Purpose
	EntryType       string

	Supplier  Party
	Recipient Party

	Items        []LineItem
	Totals       Totals
	Installments []Installment
	Payments     []Payment

	// protNFe
	Protocol          string
	AuthorizationDate string
	StatusCode        string

	IntegrityHash string
	RawXML        []byte `json:"-"`

	// Ajustes feitos durante a extração (ex.: CFOP de saída convertido).
	Adjustments []Adjustment
}

type Party struct {
	TaxID                 string
	LegalName             string
	TradeName             string
	StateRegistration     string
	MunicipalRegistration string
	Address               Address
	Phone                 string
	Email                 string
}

type Address struct {
	Street     string
	Number     string
	Complement string
	District   string
	CityCode   string
	City       string
	State      string
	ZipCode    string
}

// LineItem carrega os campos comuns e exatamente uma variante:
// Goods (NF-e) ou Service (NFS-e).
type LineItem struct {
	Number        int
	SupplierCode  string
	Description   string
	CFOP          string
	Unit          string
	Quantity      float64
	UnitPrice     float64
	Discount      float64
	TotalValue    float64
	Freight       float64
	Insurance     float64
	OtherExpenses float64

	Goods   *GoodsDetail
	Service *ServiceDetail
}

// NCM devolve o NCM do item de mercadoria; serviços não têm NCM.
func (it LineItem) NCM() string {
	if it.Goods == nil {
		return ""
	}
	return it.Goods.NCM
}

// GTIN devolve o código de barras do item de mercadoria.
func (it LineItem) GTIN() string {
	if it.Goods == nil {
		return ""
	}
	return it.Goods.GTIN
}

type GoodsDetail struct {
	NCM           string
	CEST          string
	GTIN          string
	OriginCode    string
	TaxRegimeCode string // CST ou CSOSN do ICMS

	ICMS   *TaxRecord
	ICMSST *TaxRecord
	IPI    *TaxRecord
	PIS    *TaxRecord
	COFINS *TaxRecord
}

type ServiceDetail struct {
	ServiceCode   string // item da lista de serviços (LC 116)
	MunicipalCode string
	ISS           *TaxRecord
	ISSWithheld   bool
}

// TaxRecord é base, alíquota e valor de um tributo.
type TaxRecord struct {
	Base  float64
	Rate  float64
	Value float64
}

// ValueOf devolve o valor do tributo, zero quando ausente.
func (t *TaxRecord) ValueOf() float64 {
	if t == nil {
		return 0
	}
	return t.Value
}

type Totals struct {
	ProductsTotal  float64
	DiscountsTotal float64
	TaxesTotal     float64
	Freight        float64
	Insurance      float64
	OtherExpenses  float64
	GrandTotal     float64

	ICMSValue   float64
	ICMSSTValue float64
	IPIValue    float64
	PISValue    float64
	COFINSValue float64
	ISSValue    float64
}

// Installment é uma duplicata (parcela a pagar).
type Installment struct {
	Number  string
	DueDate string // YYYY-MM-DD
	Value   float64
}

type Payment struct {
	Indicator         string // indPag (0=à vista, 1=a prazo)
	Method            string // tPag
	Value             float64
	AcquirerTaxID     string
	CardBrand         string
	AuthorizationCode string
}

// Adjustment registra uma correção aplicada pelo extrator.
type Adjustment struct {
	Field  string
	Item   int
	From   string
	To     string
	Reason string
}
