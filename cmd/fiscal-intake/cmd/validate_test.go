package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"fiscal-intake/internal/fiscal"
)

const nfeXML = `<?xml version="1.0" encoding="UTF-8"?>
<nfeProc xmlns="http://www.portalfiscal.inf.br/nfe" versao="4.00">
  <NFe>
    <infNFe Id="NFe35240312345678000195550010000012341000012345" versao="4.00">
      <ide>
        <natOp>COMPRA PARA COMERCIALIZACAO</natOp>
        <mod>55</mod>
        <serie>1</serie>
        <nNF>1234</nNF>
        <dhEmi>2024-03-10T10:00:00-03:00</dhEmi>
        <tpNF>1</tpNF>
        <finNFe>1</finNFe>
      </ide>
      <emit>
        <CNPJ>12345678000195</CNPJ>
        <xNome>VIDROS DISTRIBUIDORA LTDA</xNome>
      </emit>
      <dest>
        <CNPJ>98765432000110</CNPJ>
        <xNome>AUTO VIDROS LTDA</xNome>
      </dest>
      <det nItem="1">
        <prod>
          <cProd>PB-001</cProd>
          <xProd>PARA-BRISA GOL G5</xProd>
          <NCM>70071100</NCM>
          <CFOP>1102</CFOP>
          <uCom>CX</uCom>
          <qCom>2.0000</qCom>
          <vUnCom>500.00</vUnCom>
          <vProd>1000.00</vProd>
        </prod>
      </det>
      <total>
        <ICMSTot>
          <vProd>1000.00</vProd>
          <vNF>1100.00</vNF>
        </ICMSTot>
      </total>
    </infNFe>
  </NFe>
</nfeProc>`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	// flags são globais; zera entre execuções
	validateXSD, validateXLSX, validateCorrect, validateMaxBytes = "", "", false, 5<<20

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestValidateWarnsOnTotals(t *testing.T) {
	path := writeTemp(t, "nota.xml", nfeXML)

	out, err := runCLI(t, "validate", path)
	require.NoError(t, err)
	assert.Contains(t, out, "nfe 1234 série 1 (VIDROS DISTRIBUIDORA LTDA)")
	assert.Contains(t, out, "AVISO")
	assert.NotContains(t, out, "CORREÇÃO")
}

func TestValidateCorrectsAndWritesWorkbook(t *testing.T) {
	path := writeTemp(t, "nota.xml", nfeXML)
	xlsx := filepath.Join(t.TempDir(), "relatorio.xlsx")

	out, err := runCLI(t, "validate", path, "--corrigir", "--xlsx", xlsx)
	require.NoError(t, err)
	assert.Contains(t, out, "CORREÇÃO")
	assert.Contains(t, out, "relatório gravado em")

	f, err := excelize.OpenFile(xlsx)
	require.NoError(t, err)
	defer f.Close()
	assert.Contains(t, f.GetSheetList(), "Resumo")
}

func TestValidateMalformed(t *testing.T) {
	path := writeTemp(t, "nota.xml", "<NFe><infNFe>")

	_, err := runCLI(t, "validate", path)
	assert.ErrorIs(t, err, fiscal.ErrMalformedXML)
}

func TestValidateMissingFile(t *testing.T) {
	_, err := runCLI(t, "validate", filepath.Join(t.TempDir(), "nada.xml"))
	assert.ErrorContains(t, err, "erro lendo")
}
