package validation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fiscal-intake/internal/fiscal"
)

type fakeLookup struct {
	byKey    map[string]*DocumentRef
	byNumber map[string]*DocumentRef
	err      error
}

func (f *fakeLookup) FindByAccessKey(_ context.Context, _ string, key string) (*DocumentRef, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byKey[key], nil
}

func (f *fakeLookup) FindByNumberSeries(_ context.Context, _ string, number, series string) (*DocumentRef, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byNumber[number+"/"+series], nil
}

const validKey = "35240312345678000195550010000012341000012345"

func sampleInvoice() *fiscal.ParsedInvoice {
	return &fiscal.ParsedInvoice{
		Kind:      fiscal.KindNFe,
		Direction: fiscal.DirectionEntrada,
		Number:    "1234",
		Series:    "1",
		AccessKey: validKey,
		Supplier:  fiscal.Party{TaxID: "12345678000195"},
		Recipient: fiscal.Party{TaxID: "98765432000110"},
		Items: []fiscal.LineItem{
			{Number: 1, CFOP: "1102", TotalValue: 100, Goods: &fiscal.GoodsDetail{NCM: "70071100"}},
			{Number: 2, CFOP: "1102", TotalValue: 250, Goods: &fiscal.GoodsDetail{NCM: "7007.21.00"}},
		},
		Totals: fiscal.Totals{GrandTotal: 350},
		Installments: []fiscal.Installment{
			{Number: "001", DueDate: "2024-03-10", Value: 350},
		},
	}
}

func TestValidateCleanInvoice(t *testing.T) {
	v := New(&fakeLookup{}, "empresa-1")
	r, err := v.Validate(context.Background(), sampleInvoice(), Options{})
	require.NoError(t, err)

	assert.True(t, r.IsValid())
	assert.Empty(t, r.Warnings)
	assert.Empty(t, r.Corrections)
}

func TestValidateNCMCorrection(t *testing.T) {
	inv := sampleInvoice()
	inv.Items[0].Goods.NCM = "7007"
	inv.Items[1].Goods.NCM = ""

	r, err := New(nil, "").Validate(context.Background(), inv, Options{})
	require.NoError(t, err)

	assert.True(t, r.IsValid())
	require.Len(t, r.Corrections, 2)
	for _, c := range r.Corrections {
		assert.Equal(t, CodeNCMInvalid, c.Code)
		assert.Equal(t, "ncm", c.Field)
		assert.Equal(t, "00000000", c.To)
	}
	assert.Equal(t, "00000000", inv.Items[0].Goods.NCM)
	assert.Equal(t, "00000000", inv.Items[1].Goods.NCM)
}

func TestValidateNCMIgnoresServices(t *testing.T) {
	inv := sampleInvoice()
	inv.Kind = fiscal.KindNFSe
	inv.Items = []fiscal.LineItem{{Number: 1, TotalValue: 350, Service: &fiscal.ServiceDetail{ServiceCode: "14.01"}}}

	r, err := New(nil, "").Validate(context.Background(), inv, Options{})
	require.NoError(t, err)
	assert.False(t, r.HasCode(CodeNCMInvalid))
}

func TestValidateDuplicateByAccessKey(t *testing.T) {
	lookup := &fakeLookup{byKey: map[string]*DocumentRef{
		validKey: {ID: "nota-9", Number: "1234", Series: "1", AccessKey: validKey},
	}}

	r, err := New(lookup, "empresa-1").Validate(context.Background(), sampleInvoice(), Options{})
	require.NoError(t, err)

	assert.False(t, r.IsValid())
	require.Len(t, r.Errors, 1)
	assert.Equal(t, CodeDuplicateDocument, r.Errors[0].Code)
	assert.Contains(t, r.Errors[0].Message, "NF 1234")
	assert.Contains(t, r.Errors[0].Message, "série 1")
}

func TestValidateDuplicateFallsBackToNumberSeries(t *testing.T) {
	lookup := &fakeLookup{byNumber: map[string]*DocumentRef{
		"1234/1": {ID: "nota-3", Number: "1234", Series: "1"},
	}}

	r, err := New(lookup, "empresa-1").Validate(context.Background(), sampleInvoice(), Options{})
	require.NoError(t, err)
	assert.True(t, r.HasCode(CodeDuplicateDocument))
}

func TestValidateLookupFailureIsError(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("conexão recusada")}

	r, err := New(lookup, "empresa-1").Validate(context.Background(), sampleInvoice(), Options{})
	assert.Nil(t, r)
	assert.ErrorContains(t, err, "conexão recusada")
}

func TestValidateMalformedAccessKey(t *testing.T) {
	lookup := &fakeLookup{err: errors.New("não deveria consultar")}
	inv := sampleInvoice()
	inv.AccessKey = "3524"

	r, err := New(lookup, "empresa-1").Validate(context.Background(), inv, Options{})
	require.NoError(t, err)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, CodeAccessKeyMalformed, r.Errors[0].Code)
}

func TestValidateSupplierTaxID(t *testing.T) {
	for _, taxID := range []string{"", "123", "1234567890123"} {
		inv := sampleInvoice()
		inv.Supplier.TaxID = taxID
		r, err := New(nil, "").Validate(context.Background(), inv, Options{})
		require.NoError(t, err)
		assert.False(t, r.IsValid(), taxID)
		assert.True(t, r.HasCode(CodeSupplierTaxIDInvalid), taxID)
	}

	inv := sampleInvoice()
	inv.Supplier.TaxID = "123.456.789-09"
	r, err := New(nil, "").Validate(context.Background(), inv, Options{})
	require.NoError(t, err)
	assert.True(t, r.IsValid())
}

func TestValidateCFOP(t *testing.T) {
	inv := sampleInvoice()
	inv.Items[0].CFOP = "5102"
	inv.Items[1].CFOP = "12"

	r, err := New(nil, "").Validate(context.Background(), inv, Options{})
	require.NoError(t, err)

	assert.Equal(t, "4102", inv.Items[0].CFOP)
	require.Len(t, r.Corrections, 1)
	assert.Equal(t, CodeCFOPShifted, r.Corrections[0].Code)
	assert.Equal(t, 1, r.Corrections[0].Item)

	require.Len(t, r.Warnings, 1)
	assert.Equal(t, CodeCFOPInvalid, r.Warnings[0].Code)
	assert.Equal(t, 2, r.Warnings[0].Item)
}

func TestValidateCFOPUnshiftableStaysWarning(t *testing.T) {
	inv := sampleInvoice()
	inv.Items[0].CFOP = "6102"
	inv.Items[1].CFOP = "8102"

	r, err := New(nil, "").Validate(context.Background(), inv, Options{})
	require.NoError(t, err)

	assert.Empty(t, r.Corrections)
	assert.Len(t, r.Warnings, 2)
	assert.Equal(t, "6102", inv.Items[0].CFOP)
}

func TestValidateDisclosesExtractorAdjustments(t *testing.T) {
	inv := sampleInvoice()
	inv.Items[0].CFOP = "4102"
	inv.Adjustments = []fiscal.Adjustment{{Field: "cfop", Item: 1, From: "5102", To: "4102", Reason: "saída → entrada"}}

	r, err := New(nil, "").Validate(context.Background(), inv, Options{})
	require.NoError(t, err)

	require.Len(t, r.Corrections, 1)
	assert.Equal(t, "5102", r.Corrections[0].From)
	assert.Empty(t, r.Warnings, "item já ajustado não gera aviso")
}

func TestValidateRecipientWarning(t *testing.T) {
	inv := sampleInvoice()
	inv.Recipient.TaxID = ""

	r, err := New(nil, "").Validate(context.Background(), inv, Options{})
	require.NoError(t, err)
	assert.True(t, r.IsValid())
	assert.True(t, r.HasCode(CodeRecipientTaxIDSuspicious))
}

func TestValidateTotalMismatchWarnsInEntryNoteFlow(t *testing.T) {
	inv := sampleInvoice()
	inv.Totals.GrandTotal = 400

	r, err := New(nil, "").Validate(context.Background(), inv, Options{})
	require.NoError(t, err)

	require.Len(t, r.Warnings, 1)
	assert.Equal(t, CodeTotalMismatch, r.Warnings[0].Code)
	assert.Equal(t, 400.0, inv.Totals.GrandTotal)
}

func TestValidateTotalMismatchCorrectsInStandaloneFlow(t *testing.T) {
	inv := sampleInvoice()
	inv.Totals.GrandTotal = 400
	inv.Installments[0].Value = 400

	r, err := New(nil, "").Validate(context.Background(), inv, Options{CorrectTotals: true})
	require.NoError(t, err)

	assert.Empty(t, r.Warnings)
	require.Len(t, r.Corrections, 1)
	assert.Equal(t, CodeTotalCorrected, r.Corrections[0].Code)
	assert.Equal(t, "400.00", r.Corrections[0].From)
	assert.Equal(t, "350.00", r.Corrections[0].To)
	assert.Equal(t, 350.0, inv.Totals.GrandTotal)
	assert.Equal(t, 350.0, inv.Installments[0].Value)
}

func TestValidateTotalWithinTolerance(t *testing.T) {
	inv := sampleInvoice()
	inv.Totals.Freight = 10
	inv.Totals.DiscountsTotal = 5
	inv.Totals.GrandTotal = 355.005

	r, err := New(nil, "").Validate(context.Background(), inv, Options{})
	require.NoError(t, err)
	assert.False(t, r.HasCode(CodeTotalMismatch))
}
