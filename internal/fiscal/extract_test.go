package fiscal

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractNFeHeader(t *testing.T) {
	inv, err := Extract([]byte(nfeNoBilling), Options{})
	require.NoError(t, err)

	assert.Equal(t, KindNFe, inv.Kind)
	assert.Equal(t, DirectionEntrada, inv.Direction)
	assert.Equal(t, PurposeNormal, inv.Purpose)
	assert.Equal(t, "Compra", inv.EntryType)
	assert.Equal(t, "35240312345678000195550010000012341000012345", inv.AccessKey)
	assert.Len(t, inv.AccessKey, 44)
	assert.Equal(t, "1234", inv.Number)
	assert.Equal(t, "55", inv.Model)
	assert.Equal(t, "2024-03-10", inv.IssueDate)
	assert.Equal(t, "2024-03-10", inv.EntryDate)
	assert.Equal(t, "VENDA DE MERCADORIA", inv.OperationNature)

	assert.Equal(t, "12345678000195", inv.Supplier.TaxID)
	assert.Equal(t, "VIDROS DISTRIBUIDORA LTDA", inv.Supplier.LegalName)
	assert.Equal(t, "01001000", inv.Supplier.Address.ZipCode)
	assert.Equal(t, "98765432000110", inv.Recipient.TaxID)

	assert.Equal(t, "135240000000001", inv.Protocol)
	assert.Equal(t, "100", inv.StatusCode)
	assert.Len(t, inv.IntegrityHash, 64)
}

func TestExtractSeriesFallsBackToFlatScan(t *testing.T) {
	// <Serie> com caixa diferente escapa do struct; a varredura plana acha.
	inv, err := Extract([]byte(nfeNoBilling), Options{})
	require.NoError(t, err)
	assert.Equal(t, "1", inv.Series)

	inv, err = Extract([]byte(nfeWithBilling), Options{})
	require.NoError(t, err)
	assert.Equal(t, "2", inv.Series)
}

func TestExtractShiftsOutboundCFOP(t *testing.T) {
	inv, err := Extract([]byte(nfeNoBilling), Options{})
	require.NoError(t, err)
	require.Len(t, inv.Items, 2)

	assert.Equal(t, "4102", inv.Items[0].CFOP)
	assert.Equal(t, "1102", inv.Items[1].CFOP)
	assert.Equal(t, "4102", inv.CFOP)

	var itemAdjust *Adjustment
	for i := range inv.Adjustments {
		if inv.Adjustments[i].Item == 1 {
			itemAdjust = &inv.Adjustments[i]
		}
		assert.NotEqual(t, 2, inv.Adjustments[i].Item, "1102 não deve ser ajustado")
	}
	require.NotNil(t, itemAdjust)
	assert.Equal(t, "cfop", itemAdjust.Field)
	assert.Equal(t, "5102", itemAdjust.From)
	assert.Equal(t, "4102", itemAdjust.To)
}

func TestExtractSyntheticInstallment(t *testing.T) {
	inv, err := Extract([]byte(nfeNoBilling), Options{})
	require.NoError(t, err)

	require.Len(t, inv.Installments, 1)
	assert.Equal(t, Installment{Number: "001", DueDate: "2024-03-10", Value: 1500.00}, inv.Installments[0])
}

func TestExtractDeclaredInstallmentsAndReturn(t *testing.T) {
	inv, err := Extract([]byte(nfeWithBilling), Options{})
	require.NoError(t, err)

	assert.Equal(t, DirectionDevolucao, inv.Direction)
	assert.Equal(t, PurposeReturn, inv.Purpose)
	assert.Equal(t, "2024-04-01", inv.IssueDate)
	assert.Equal(t, "12345678909", inv.Supplier.TaxID)

	require.Len(t, inv.Installments, 2)
	assert.Equal(t, "002", inv.Installments[1].Number)
	assert.Equal(t, "2024-06-01", inv.Installments[1].DueDate)
	assert.InDelta(t, 150.0, inv.Installments[1].Value, 0.001)

	require.Len(t, inv.Items, 1)
	assert.InDelta(t, 300.0, inv.Items[0].TotalValue, 0.001)
}

func TestExtractTaxVariants(t *testing.T) {
	inv, err := Extract([]byte(nfeNoBilling), Options{})
	require.NoError(t, err)

	g := inv.Items[0].Goods
	require.NotNil(t, g)
	assert.Equal(t, "00", g.TaxRegimeCode)
	assert.Equal(t, &TaxRecord{Base: 1000, Rate: 18, Value: 180}, g.ICMS)
	assert.Nil(t, g.ICMSST)
	require.NotNil(t, g.IPI)
	assert.Zero(t, g.IPI.Value)
	assert.InDelta(t, 16.5, g.PIS.ValueOf(), 0.001)
	assert.InDelta(t, 76.0, g.COFINS.ValueOf(), 0.001)
	assert.Equal(t, "7891234567895", inv.Items[0].GTIN())

	g2 := inv.Items[1].Goods
	assert.Equal(t, "102", g2.TaxRegimeCode)
	assert.Zero(t, g2.ICMS.Value)
	assert.Nil(t, g2.PIS)
	assert.Empty(t, inv.Items[1].GTIN(), "SEM GTIN vira vazio")

	assert.InDelta(t, 272.5, inv.Totals.TaxesTotal, 0.001)
}

func TestExtractNFSeStrategies(t *testing.T) {
	tests := []struct {
		name     string
		xml      string
		number   string
		provider string
		total    float64
	}{
		{"lote completo", nfseLote, "77", "44555666000199", 750},
		{"cnpj no lote", nfseLoteProviderOnLot, "5", "11222333000181", 120},
		{"InfRps solto", nfseBareInfo, "9", "44555666000199", 60},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := Extract([]byte(tt.xml), Options{})
			require.NoError(t, err)

			assert.Equal(t, KindNFSe, inv.Kind)
			assert.Equal(t, tt.number, inv.Number)
			assert.Equal(t, tt.provider, inv.Supplier.TaxID)
			assert.InDelta(t, tt.total, inv.Totals.GrandTotal, 0.001)
			require.Len(t, inv.Items, 1)
			require.NotNil(t, inv.Items[0].Service)
			assert.Nil(t, inv.Items[0].Goods)
			require.Len(t, inv.Installments, 1)
		})
	}
}

func TestExtractNFSeServiceDetail(t *testing.T) {
	inv, err := Extract([]byte(nfseLote), Options{})
	require.NoError(t, err)

	assert.Equal(t, "A", inv.Series)
	assert.Equal(t, "2024-02-15", inv.IssueDate)
	assert.Equal(t, "98765432000110", inv.Recipient.TaxID)

	it := inv.Items[0]
	assert.Equal(t, "INSTALACAO DE PARA-BRISA", it.Description)
	assert.InDelta(t, 50.0, it.Discount, 0.001)
	assert.Equal(t, "14.01", it.Service.ServiceCode)
	assert.False(t, it.Service.ISSWithheld)
	assert.InDelta(t, 40.0, it.Service.ISS.Value, 0.001)
	assert.InDelta(t, 40.0, inv.Totals.ISSValue, 0.001)
}

func TestExtractNFSeWithoutProviderFails(t *testing.T) {
	_, err := Extract([]byte(nfseNoProvider), Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingProviderTaxID))
}

func TestExtractFailures(t *testing.T) {
	tests := []struct {
		name string
		data string
		opts Options
		want error
	}{
		{"xml malformado", `<NFe><infNFe>`, Options{}, ErrMalformedXML},
		{"documento desconhecido", `<pedido><numero>1</numero></pedido>`, Options{}, ErrUnknownDocument},
		{"NFe sem infNFe", `<NFe><det/></NFe>`, Options{}, ErrMissingRoot},
		{"tamanho excedido", nfeNoBilling, Options{MaxBytes: 100}, ErrInputTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv, err := Extract([]byte(tt.data), tt.opts)
			assert.Nil(t, inv)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExtractLatin1(t *testing.T) {
	doc := strings.Replace(nfeWithBilling, "<NFe ", `<?xml version="1.0" encoding="ISO-8859-1"?><NFe `, 1)
	doc = strings.Replace(doc, "VIDRO LATERAL", "VIDRO LATERAL \xc9", 1)

	inv, err := Extract([]byte(doc), Options{})
	require.NoError(t, err)
	assert.Equal(t, "VIDRO LATERAL É", inv.Items[0].Description)
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nota.xml")
	require.NoError(t, os.WriteFile(path, []byte(nfeNoBilling), 0o644))

	inv, err := ExtractFile(path, Options{})
	require.NoError(t, err)
	assert.Equal(t, "1234", inv.Number)

	_, err = ExtractFile(filepath.Join(dir, "nao-existe.xml"), Options{})
	assert.Error(t, err)
}

func TestDetectKind(t *testing.T) {
	kind, err := DetectKind([]byte(nfeNoBilling))
	require.NoError(t, err)
	assert.Equal(t, KindNFe, kind)

	kind, err = DetectKind([]byte(nfseLote))
	require.NoError(t, err)
	assert.Equal(t, KindNFSe, kind)
}
