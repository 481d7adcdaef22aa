package fiscal

import (
	"encoding/xml"
	"strings"
)

// Cada grupo de imposto tem várias formas (ICMS00, ICMS10, ..., PISAliq,
// PISNT, ...). Capturamos todos os filhos e sondamos por nome, na ordem.

type taxGroup struct {
	Variants []taxVariant `xml:",any"`
}

type taxVariant struct {
	XMLName xml.Name

	Orig  string `xml:"orig"`
	CST   string `xml:"CST"`
	CSOSN string `xml:"CSOSN"`

	VBC string `xml:"vBC"`

	PICMS string `xml:"pICMS"`
	VICMS string `xml:"vICMS"`

	VBCST   string `xml:"vBCST"`
	PICMSST string `xml:"pICMSST"`
	VICMSST string `xml:"vICMSST"`

	PIPI string `xml:"pIPI"`
	VIPI string `xml:"vIPI"`

	PPIS string `xml:"pPIS"`
	VPIS string `xml:"vPIS"`

	PCOFINS string `xml:"pCOFINS"`
	VCOFINS string `xml:"vCOFINS"`
}

var (
	icmsVariants = []string{
		"ICMS00", "ICMS10", "ICMS20", "ICMS30", "ICMS40", "ICMS51", "ICMS60",
		"ICMS70", "ICMS90", "ICMSPart", "ICMSST",
		"ICMSSN101", "ICMSSN102", "ICMSSN201", "ICMSSN202", "ICMSSN500", "ICMSSN900",
	}
	ipiVariants    = []string{"IPITrib", "IPINT"}
	pisVariants    = []string{"PISAliq", "PISQtde", "PISNT", "PISOutr"}
	cofinsVariants = []string{"COFINSAliq", "COFINSQtde", "COFINSNT", "COFINSOutr"}
)

// firstVariant devolve a primeira variante presente seguindo a ordem de names.
func (g *taxGroup) firstVariant(names []string) *taxVariant {
	if g == nil {
		return nil
	}
	for _, name := range names {
		for i := range g.Variants {
			if strings.EqualFold(g.Variants[i].XMLName.Local, name) {
				return &g.Variants[i]
			}
		}
	}
	return nil
}

func applyTaxes(goods *GoodsDetail, imp imposto) {
	if v := imp.ICMS.firstVariant(icmsVariants); v != nil {
		goods.OriginCode = strings.TrimSpace(v.Orig)
		goods.TaxRegimeCode = strings.TrimSpace(v.CST)
		if goods.TaxRegimeCode == "" {
			goods.TaxRegimeCode = strings.TrimSpace(v.CSOSN)
		}
		goods.ICMS = &TaxRecord{
			Base:  parseFloat(v.VBC),
			Rate:  parseFloat(v.PICMS),
			Value: parseFloat(v.VICMS),
		}
		if v.VBCST != "" || v.VICMSST != "" {
			goods.ICMSST = &TaxRecord{
				Base:  parseFloat(v.VBCST),
				Rate:  parseFloat(v.PICMSST),
				Value: parseFloat(v.VICMSST),
			}
		}
	}

	if v := imp.IPI.firstVariant(ipiVariants); v != nil {
		goods.IPI = &TaxRecord{
			Base:  parseFloat(v.VBC),
			Rate:  parseFloat(v.PIPI),
			Value: parseFloat(v.VIPI),
		}
	}

	if v := imp.PIS.firstVariant(pisVariants); v != nil {
		goods.PIS = &TaxRecord{
			Base:  parseFloat(v.VBC),
			Rate:  parseFloat(v.PPIS),
			Value: parseFloat(v.VPIS),
		}
	}

	if v := imp.COFINS.firstVariant(cofinsVariants); v != nil {
		goods.COFINS = &TaxRecord{
			Base:  parseFloat(v.VBC),
			Rate:  parseFloat(v.PCOFINS),
			Value: parseFloat(v.VCOFINS),
		}
	}
}
