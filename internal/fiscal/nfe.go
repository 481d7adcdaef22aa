package fiscal

import (
	"encoding/xml"
	"fmt"
	"strings"
)

// ============================================================================
// Estruturas mínimas do XML da NF-e (nfeProc, NFe, infNFe, etc.)
// ============================================================================

type nfeProc struct {
	XMLName xml.Name `xml:"nfeProc"`
	NFe     nfeDoc   `xml:"NFe"`
	ProtNFe *protNFe `xml:"protNFe"`
}

type protNFe struct {
	InfProt struct {
		ChNFe  string `xml:"chNFe"`
		DhRecb string `xml:"dhRecbto"`
		NProt  string `xml:"nProt"`
		CStat  string `xml:"cStat"`
	} `xml:"infProt"`
}

type nfeDoc struct {
	XMLName xml.Name `xml:"NFe"`
	InfNFe  *infNFe  `xml:"infNFe"`
}

type infNFe struct {
	ID     string `xml:"Id,attr"`
	Versao string `xml:"versao,attr"`

	Ide    ide     `xml:"ide"`
	Emit   emit    `xml:"emit"`
	Dest   *dest   `xml:"dest"`
	Det    []det   `xml:"det"`
	Total  total   `xml:"total"`
	Transp *transp `xml:"transp"`
	Cobr   *cobr   `xml:"cobr"`
	Pag    *pag    `xml:"pag"`
}

type ide struct {
	NatOp    string `xml:"natOp"`
	Modelo   string `xml:"mod"`
	Serie    string `xml:"serie"`
	NNF      string `xml:"nNF"`
	DhEmi    string `xml:"dhEmi"` // 4.00
	DEmi     string `xml:"dEmi"`  // 3.10/antigas
	DhSaiEnt string `xml:"dhSaiEnt"`
	DSaiEnt  string `xml:"dSaiEnt"`
	TpNF     string `xml:"tpNF"`
	FinNFe   string `xml:"finNFe"`
}

type ender struct {
	XLgr    string `xml:"xLgr"`
	Nro     string `xml:"nro"`
	XCpl    string `xml:"xCpl"`
	XBairro string `xml:"xBairro"`
	CMun    string `xml:"cMun"`
	XMun    string `xml:"xMun"`
	UF      string `xml:"UF"`
	CEP     string `xml:"CEP"`
	Fone    string `xml:"fone"`
}

type emit struct {
	CNPJ  string `xml:"CNPJ"`
	CPF   string `xml:"CPF"`
	XNome string `xml:"xNome"`
	XFant string `xml:"xFant"`
	IE    string `xml:"IE"`
	IM    string `xml:"IM"`
	Ender ender  `xml:"enderEmit"`
}

type dest struct {
	CNPJ  string `xml:"CNPJ"`
	CPF   string `xml:"CPF"`
	XNome string `xml:"xNome"`
	IE    string `xml:"IE"`
	Email string `xml:"email"`
	Ender ender  `xml:"enderDest"`
}

type transp struct {
	ModFrete string `xml:"modFrete"`
}

type total struct {
	ICMSTot icmsTot `xml:"ICMSTot"`
}

type icmsTot struct {
	VNF     string `xml:"vNF"`
	VProd   string `xml:"vProd"`
	VDesc   string `xml:"vDesc"`
	VICMS   string `xml:"vICMS"`
	VST     string `xml:"vST"`
	VIPI    string `xml:"vIPI"`
	VPIS    string `xml:"vPIS"`
	VCOFINS string `xml:"vCOFINS"`
	VFrete  string `xml:"vFrete"`
	VSeg    string `xml:"vSeg"`
	VOutro  string `xml:"vOutro"`
}

// ------------------------- Itens (det/prod/imposto) -------------------------

type det struct {
	NItem   string  `xml:"nItem,attr"`
	Prod    prod    `xml:"prod"`
	Imposto imposto `xml:"imposto"`
}

type prod struct {
	CProd  string `xml:"cProd"`
	CEAN   string `xml:"cEAN"`
	XProd  string `xml:"xProd"`
	NCM    string `xml:"NCM"`
	CEST   string `xml:"CEST"`
	CFOP   string `xml:"CFOP"`
	UCom   string `xml:"uCom"`
	QCom   string `xml:"qCom"`
	VUnCom string `xml:"vUnCom"`
	VProd  string `xml:"vProd"`
	VFrete string `xml:"vFrete"`
	VSeg   string `xml:"vSeg"`
	VDesc  string `xml:"vDesc"`
	VOutro string `xml:"vOutro"`
}

type imposto struct {
	ICMS   *taxGroup `xml:"ICMS"`
	IPI    *taxGroup `xml:"IPI"`
	PIS    *taxGroup `xml:"PIS"`
	COFINS *taxGroup `xml:"COFINS"`
}

// ---------------------------- Cobr / Duplicatas -----------------------------

type cobr struct {
	Duplicatas []dup `xml:"dup"`
}

type dup struct {
	Numero string `xml:"nDup"`
	DVenc  string `xml:"dVenc"`
	Valor  string `xml:"vDup"`
}

// ---------------------------- Pagamentos ------------------------------------

type pag struct {
	Det []detPag `xml:"detPag"`
}

type detPag struct {
	IndPag string `xml:"indPag"`
	Meio   string `xml:"tPag"`
	Valor  string `xml:"vPag"`
	Card   *card  `xml:"card"`
}

type card struct {
	CNPJ     string `xml:"CNPJ"`
	Bandeira string `xml:"tBand"`
	Aut      string `xml:"cAut"`
}

// finality mapeia finNFe para finalidade, sentido e tipo de entrada.
type finality struct {
	purpose   Purpose
	direction Direction
	entryType string
}

var finalityTable = map[string]finality{
	"1": {PurposeNormal, DirectionEntrada, "Compra"},
	"2": {PurposeComplementary, DirectionComplementar, "Complementar"},
	"3": {PurposeAdjustment, DirectionEntrada, "Ajuste"},
	"4": {PurposeReturn, DirectionDevolucao, "Devolução"},
}

func lookupFinality(code string) finality {
	if f, ok := finalityTable[strings.TrimSpace(code)]; ok {
		return f
	}
	return finalityTable["1"]
}

// ============================================================================
// Extração da NF-e
// ============================================================================

func decodeNFe(data []byte) (*infNFe, *protNFe, error) {
	// 1) tenta nfeProc
	var proc nfeProc
	if err := newDecoder(data).Decode(&proc); err == nil && proc.NFe.InfNFe != nil {
		return proc.NFe.InfNFe, proc.ProtNFe, nil
	}

	// 2) tenta NFe "simples"
	var n nfeDoc
	if err := newDecoder(data).Decode(&n); err == nil && n.InfNFe != nil {
		return n.InfNFe, nil, nil
	}

	return nil, nil, fmt.Errorf("%w: infNFe não encontrado (nfeProc ou NFe)", ErrMissingRoot)
}

func extractNFe(data []byte, idx *tagIndex) (*ParsedInvoice, error) {
	inf, prot, err := decodeNFe(data)
	if err != nil {
		return nil, err
	}

	fin := lookupFinality(idx.pick(inf.Ide.FinNFe, "finNFe"))

	inv := &ParsedInvoice{
		Kind:            KindNFe,
		Direction:       fin.direction,
		Purpose:         fin.purpose,
		EntryType:       fin.entryType,
		FinalityCode:    idx.pick(inf.Ide.FinNFe, "finNFe"),
		Number:          idx.pick(inf.Ide.NNF, "nNF"),
		Series:          idx.pick(inf.Ide.Serie, "serie"),
		Model:           idx.pick(inf.Ide.Modelo, "mod"),
		OperationNature: idx.pick(inf.Ide.NatOp, "natOp"),
	}

	// Chave de acesso: Id do infNFe sem o prefixo; protNFe como reserva.
	inv.AccessKey = extractAccessKey(inf.ID)
	if inv.AccessKey == "" && prot != nil {
		inv.AccessKey = strings.TrimSpace(prot.InfProt.ChNFe)
	}

	// Data de emissão: pode vir em dhEmi (datetime) ou dEmi (date)
	inv.IssueDate = NormalizeDate(idx.pick(inf.Ide.DhEmi, "dhEmi", "dEmi"))
	inv.EntryDate = NormalizeDate(idx.pick(inf.Ide.DhSaiEnt, "dhSaiEnt", "dSaiEnt"))
	if inv.EntryDate == "" {
		inv.EntryDate = inv.IssueDate
	}

	// Emitente / Destinatário
	inv.Supplier = partyFromEmit(inf.Emit)
	if inf.Dest != nil {
		inv.Recipient = partyFromDest(*inf.Dest)
	}

	// Protocolo / autorização
	if prot != nil {
		inv.Protocol = strings.TrimSpace(prot.InfProt.NProt)
		inv.AuthorizationDate = NormalizeDate(prot.InfProt.DhRecb)
		inv.StatusCode = strings.TrimSpace(prot.InfProt.CStat)
	}

	// CFOP do documento = CFOP do primeiro item
	if len(inf.Det) > 0 {
		inv.CFOP = strings.TrimSpace(inf.Det[0].Prod.CFOP)
	}
	if inv.CFOP == "" {
		inv.CFOP = idx.pick("", "CFOP")
	}
	if strings.HasPrefix(inv.CFOP, "3") && inv.Purpose == PurposeNormal {
		inv.Purpose = PurposeImport
		inv.EntryType = "Importação"
	}
	if shifted, ok := ShiftOutboundCFOP(inv.CFOP, inv.Direction); ok {
		inv.Adjustments = append(inv.Adjustments, Adjustment{
			Field:  "cfop",
			From:   inv.CFOP,
			To:     shifted,
			Reason: "CFOP de saída convertido para o equivalente de entrada",
		})
		inv.CFOP = shifted
	}

	// Itens
	for i, d := range inf.Det {
		item := buildItemFromDet(d, i+1)
		if item.CFOP == "" {
			item.CFOP = inv.CFOP
		}
		if shifted, ok := ShiftOutboundCFOP(item.CFOP, inv.Direction); ok {
			inv.Adjustments = append(inv.Adjustments, Adjustment{
				Field:  "cfop",
				Item:   item.Number,
				From:   item.CFOP,
				To:     shifted,
				Reason: "CFOP de saída convertido para o equivalente de entrada",
			})
			item.CFOP = shifted
		}
		inv.Items = append(inv.Items, item)
	}

	// Totais
	t := inf.Total.ICMSTot
	inv.Totals = Totals{
		ProductsTotal:  parseFloat(t.VProd),
		DiscountsTotal: parseFloat(t.VDesc),
		Freight:        parseFloat(t.VFrete),
		Insurance:      parseFloat(t.VSeg),
		OtherExpenses:  parseFloat(t.VOutro),
		GrandTotal:     parseFloat(t.VNF),
		ICMSValue:      parseFloat(t.VICMS),
		ICMSSTValue:    parseFloat(t.VST),
		IPIValue:       parseFloat(t.VIPI),
		PISValue:       parseFloat(t.VPIS),
		COFINSValue:    parseFloat(t.VCOFINS),
	}
	inv.Totals.TaxesTotal = Round2(inv.Totals.ICMSValue + inv.Totals.IPIValue +
		inv.Totals.PISValue + inv.Totals.COFINSValue)

	// Duplicatas
	if inf.Cobr != nil {
		for _, du := range inf.Cobr.Duplicatas {
			inv.Installments = append(inv.Installments, Installment{
				Number:  strings.TrimSpace(du.Numero),
				DueDate: NormalizeDate(du.DVenc),
				Value:   parseFloat(du.Valor),
			})
		}
	}
	ensureInstallments(inv)

	// Pagamentos
	if inf.Pag != nil {
		for _, dp := range inf.Pag.Det {
			p := Payment{
				Indicator: strings.TrimSpace(dp.IndPag),
				Method:    strings.TrimSpace(dp.Meio),
				Value:     parseFloat(dp.Valor),
			}
			if dp.Card != nil {
				p.AcquirerTaxID = OnlyDigits(dp.Card.CNPJ)
				p.CardBrand = strings.TrimSpace(dp.Card.Bandeira)
				p.AuthorizationCode = strings.TrimSpace(dp.Card.Aut)
			}
			inv.Payments = append(inv.Payments, p)
		}
	}

	return inv, nil
}

func partyFromEmit(e emit) Party {
	doc := e.CNPJ
	if doc == "" {
		doc = e.CPF
	}
	return Party{
		TaxID:                 OnlyDigits(doc),
		LegalName:             strings.TrimSpace(e.XNome),
		TradeName:             strings.TrimSpace(e.XFant),
		StateRegistration:     strings.TrimSpace(e.IE),
		MunicipalRegistration: strings.TrimSpace(e.IM),
		Address:               addressFrom(e.Ender),
		Phone:                 strings.TrimSpace(e.Ender.Fone),
	}
}

func partyFromDest(d dest) Party {
	doc := d.CNPJ
	if doc == "" {
		doc = d.CPF
	}
	return Party{
		TaxID:             OnlyDigits(doc),
		LegalName:         strings.TrimSpace(d.XNome),
		StateRegistration: strings.TrimSpace(d.IE),
		Email:             strings.TrimSpace(d.Email),
		Address:           addressFrom(d.Ender),
		Phone:             strings.TrimSpace(d.Ender.Fone),
	}
}

func addressFrom(e ender) Address {
	return Address{
		Street:     strings.TrimSpace(e.XLgr),
		Number:     strings.TrimSpace(e.Nro),
		Complement: strings.TrimSpace(e.XCpl),
		District:   strings.TrimSpace(e.XBairro),
		CityCode:   strings.TrimSpace(e.CMun),
		City:       strings.TrimSpace(e.XMun),
		State:      strings.TrimSpace(e.UF),
		ZipCode:    OnlyDigits(e.CEP),
	}
}

func buildItemFromDet(d det, seq int) LineItem {
	number := parseInt(d.NItem)
	if number == 0 {
		number = seq
	}

	gtin := strings.TrimSpace(d.Prod.CEAN)
	if strings.EqualFold(gtin, "SEM GTIN") {
		gtin = ""
	}

	item := LineItem{
		Number:        number,
		SupplierCode:  strings.TrimSpace(d.Prod.CProd),
		Description:   strings.TrimSpace(d.Prod.XProd),
		CFOP:          strings.TrimSpace(d.Prod.CFOP),
		Unit:          strings.TrimSpace(d.Prod.UCom),
		Quantity:      parseFloat(d.Prod.QCom),
		UnitPrice:     parseFloat(d.Prod.VUnCom),
		TotalValue:    parseFloat(d.Prod.VProd),
		Discount:      parseFloat(d.Prod.VDesc),
		Freight:       parseFloat(d.Prod.VFrete),
		Insurance:     parseFloat(d.Prod.VSeg),
		OtherExpenses: parseFloat(d.Prod.VOutro),
		Goods: &GoodsDetail{
			NCM:  strings.TrimSpace(d.Prod.NCM),
			CEST: strings.TrimSpace(d.Prod.CEST),
			GTIN: gtin,
		},
	}

	applyTaxes(item.Goods, d.Imposto)
	return item
}
