package report

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fiscal-intake/internal/fiscal"
	"fiscal-intake/internal/ofx"
	"fiscal-intake/internal/validation"
)

func TestWriteValidation(t *testing.T) {
	inv := &fiscal.ParsedInvoice{
		Kind:      fiscal.KindNFe,
		Number:    "1234",
		Series:    "1",
		AccessKey: "35240312345678000195550010000012341000012345",
		Supplier:  fiscal.Party{TaxID: "12345678000195", LegalName: "VIDROS DISTRIBUIDORA LTDA"},
		Items: []fiscal.LineItem{{
			Number: 1, SupplierCode: "PB-001", Description: "PARA-BRISA GOL G5",
			CFOP: "1102", Unit: "UN", Quantity: 2, UnitPrice: 500, TotalValue: 1000,
			Goods: &fiscal.GoodsDetail{NCM: "70071100"},
		}},
		Totals: fiscal.Totals{ProductsTotal: 1000, GrandTotal: 1000},
	}
	rep := &validation.Report{
		Warnings:    []validation.Finding{{Code: validation.CodeRecipientTaxIDSuspicious, Field: "recipient.tax_id", Message: "CPF/CNPJ do destinatário suspeito"}},
		Corrections: []validation.Finding{{Code: validation.CodeTotalCorrected, Field: "totals.grand_total", Message: "total corrigido", From: "1100.00", To: "1000.00"}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteValidation(&buf, inv, rep))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetSummary, sheetItems, sheetFindings}, f.GetSheetList())

	number, _ := f.GetCellValue(sheetSummary, "B2")
	assert.Equal(t, "1234", number)

	items, err := f.GetRows(sheetItems)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "PARA-BRISA GOL G5", items[1][2])
	assert.Equal(t, "70071100", items[1][3])

	findings, err := f.GetRows(sheetFindings)
	require.NoError(t, err)
	require.Len(t, findings, 3)
	assert.Equal(t, "aviso", findings[1][0])
	assert.Equal(t, "correção", findings[2][0])
	assert.Equal(t, "1000.00", findings[2][6])
}

func TestWriteOFX(t *testing.T) {
	rep := &ofx.Report{
		Statement: &ofx.Statement{
			AccountID: "12345-6",
			Rejected:  []ofx.RejectedRow{{Index: 4, Reason: "sem FITID"}},
		},
		Txs: []ofx.Transaction{
			{
				FITID: "F001", PostedDate: "2024-03-15", Amount: decimal.RequireFromString("-1100.00"),
				Type: ofx.TxDebit, Memo: "PAGTO BOLETO", Category: ofx.CategoryBoletoPayment, Status: ofx.StatusNew,
				Match: &ofx.OpenItem{ID: "cp-1", Kind: ofx.KindPayable, Description: "NF 1234", DueDate: "2024-03-15", FinalValue: decimal.RequireFromString("1100")},
			},
			{
				FITID: "F002", PostedDate: "2024-03-16", Amount: decimal.RequireFromString("-9.90"),
				Type: ofx.TxDebit, Memo: "TARIFA", Category: ofx.CategoryBankFee, Status: ofx.StatusDuplicated,
			},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteOFX(&buf, rep))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetTxs)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "F001", rows[1][0])
	assert.Equal(t, "-1100", rows[1][2])
	assert.Equal(t, "cp-1 NF 1234", rows[1][7])
	assert.Equal(t, "duplicated", rows[2][6])

	rejected, err := f.GetRows(sheetRejected)
	require.NoError(t, err)
	require.Len(t, rejected, 2)
	assert.Equal(t, []string{"4", "sem FITID"}, rejected[1])
}
