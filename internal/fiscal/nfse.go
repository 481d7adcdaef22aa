package fiscal

import (
	"fmt"

	"gopkg.in/xmlpath.v2"
)

// Estratégias para achar o nó de informações do RPS, da mais específica para
// a mais genérica. ABRASF 1.x usa InfRps, 2.x usa InfDeclaracaoPrestacaoServico
// e a nota já emitida traz InfNfse.
var rpsInfoStrategies = [][]string{
	{
		"//LoteRps/ListaRps/Rps/InfRps",
		"//LoteRps/ListaRps/Rps/InfDeclaracaoPrestacaoServico",
	},
	{
		"//Rps/InfRps",
		"//Rps/InfDeclaracaoPrestacaoServico",
	},
	{
		"//InfRps",
		"//InfDeclaracaoPrestacaoServico",
		"//InfNfse",
	},
}

func findRpsInfo(root *xmlpath.Node) *xmlpath.Node {
	for _, strategy := range rpsInfoStrategies {
		if n := findNode(root, strategy...); n != nil {
			return n
		}
	}
	return nil
}

func extractNFSe(root *xmlpath.Node) (*ParsedInvoice, error) {
	info := findRpsInfo(root)
	if info == nil {
		return nil, fmt.Errorf("%w: InfRps não encontrado (LoteRps, Rps ou InfRps)", ErrMissingRoot)
	}

	// CNPJ do prestador: primeiro no Prestador, depois no LoteRps.
	providerTaxID := OnlyDigits(findText(info,
		".//Prestador//Cnpj",
		".//Prestador//Cpf",
		".//PrestadorServico//Cnpj",
		".//IdentificacaoPrestador//Cnpj",
	))
	if providerTaxID == "" {
		providerTaxID = OnlyDigits(findText(root,
			"//LoteRps/Cnpj",
			"//LoteRps/CpfCnpj/Cnpj",
			"//LoteRps/CpfCnpj/Cpf",
		))
	}
	if providerTaxID == "" {
		return nil, ErrMissingProviderTaxID
	}

	inv := &ParsedInvoice{
		Kind:      KindNFSe,
		Direction: DirectionEntrada,
		Purpose:   PurposeNormal,
		EntryType: "Serviço",
		Number: findText(info,
			".//IdentificacaoRps/Numero",
			"Numero",
		),
		Series:          findText(info, ".//IdentificacaoRps/Serie"),
		OperationNature: findText(info, ".//NaturezaOperacao"),
		IssueDate:       NormalizeDate(findText(info, ".//DataEmissao", ".//Competencia", ".//DataEmissaoRps")),
	}
	inv.EntryDate = inv.IssueDate

	inv.Supplier = Party{
		TaxID: providerTaxID,
		LegalName: findText(info,
			".//Prestador/RazaoSocial",
			".//PrestadorServico/RazaoSocial",
		),
		TradeName: findText(info, ".//PrestadorServico/NomeFantasia"),
		MunicipalRegistration: findText(info,
			".//Prestador/InscricaoMunicipal",
			".//IdentificacaoPrestador/InscricaoMunicipal",
		),
	}
	if inv.Supplier.MunicipalRegistration == "" {
		inv.Supplier.MunicipalRegistration = findText(root, "//LoteRps/InscricaoMunicipal")
	}

	inv.Recipient = Party{
		TaxID: OnlyDigits(findText(info,
			".//Tomador//Cnpj",
			".//Tomador//Cpf",
			".//TomadorServico//Cnpj",
			".//TomadorServico//Cpf",
		)),
		LegalName: findText(info, ".//Tomador/RazaoSocial", ".//TomadorServico/RazaoSocial"),
		Address: Address{
			Street:   findText(info, ".//Tomador/Endereco/Endereco", ".//TomadorServico/Endereco/Endereco"),
			Number:   findText(info, ".//Tomador/Endereco/Numero", ".//TomadorServico/Endereco/Numero"),
			District: findText(info, ".//Tomador/Endereco/Bairro", ".//TomadorServico/Endereco/Bairro"),
			CityCode: findText(info, ".//Tomador/Endereco/CodigoMunicipio", ".//TomadorServico/Endereco/CodigoMunicipio"),
			State:    findText(info, ".//Tomador/Endereco/Uf", ".//TomadorServico/Endereco/Uf"),
			ZipCode:  OnlyDigits(findText(info, ".//Tomador/Endereco/Cep", ".//TomadorServico/Endereco/Cep")),
		},
		Email: findText(info, ".//Tomador/Contato/Email", ".//TomadorServico/Contato/Email"),
	}

	servico := findNode(info, ".//Servico")
	valores := findNode(servico, "Valores")
	if valores == nil {
		valores = servico
	}

	gross := parseFloat(findText(valores, "ValorServicos"))
	discount := parseFloat(findText(valores, "DescontoIncondicionado"))
	base := parseFloat(findText(valores, "BaseCalculo"))
	if base == 0 {
		base = gross
	}
	iss := &TaxRecord{
		Base:  base,
		Rate:  parseFloat(findText(valores, "Aliquota")),
		Value: parseFloat(findText(valores, "ValorIss")),
	}
	withheld := findText(valores, "IssRetido")
	if withheld == "" {
		withheld = findText(servico, "IssRetido")
	}

	description := findText(servico, "Discriminacao")
	if description == "" {
		description = "Serviço"
	}

	inv.Items = []LineItem{{
		Number:       1,
		SupplierCode: findText(servico, "ItemListaServico", "CodigoTributacaoMunicipio"),
		Description:  description,
		Unit:         "UN",
		Quantity:     1,
		UnitPrice:    gross,
		Discount:     discount,
		TotalValue:   gross,
		Service: &ServiceDetail{
			ServiceCode:   findText(servico, "ItemListaServico"),
			MunicipalCode: findText(servico, "CodigoTributacaoMunicipio", "CodigoMunicipio"),
			ISS:           iss,
			ISSWithheld:   withheld == "1",
		},
	}}

	inv.Totals = Totals{
		ProductsTotal:  gross,
		DiscountsTotal: discount,
		GrandTotal:     Round2(gross - discount),
		ISSValue:       iss.Value,
	}

	ensureInstallments(inv)
	return inv, nil
}
