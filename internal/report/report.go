// Package report exporta os relatórios de validação e de extrato em planilha.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"fiscal-intake/internal/fiscal"
	"fiscal-intake/internal/ofx"
	"fiscal-intake/internal/validation"
)

const ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

const (
	sheetSummary  = "Resumo"
	sheetItems    = "Itens"
	sheetFindings = "Apontamentos"
	sheetTxs      = "Lançamentos"
	sheetRejected = "Rejeitados"
)

// sheetWriter acumula linhas numa aba com cabeçalho em negrito.
type sheetWriter struct {
	f     *excelize.File
	sheet string
	row   int
	bold  int
}

func newWorkbook(first string) (*excelize.File, int, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", first); err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("erro renomeando aba: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("erro criando estilo: %w", err)
	}
	return f, bold, nil
}

func (w *sheetWriter) open(f *excelize.File, sheet string, bold int, create bool) error {
	w.f, w.sheet, w.row, w.bold = f, sheet, 0, bold
	if create {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("erro criando aba %s: %w", sheet, err)
		}
	}
	return nil
}

func (w *sheetWriter) header(cols ...interface{}) error {
	if err := w.append(cols...); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(cols), w.row)
	if err != nil {
		return err
	}
	first, _ := excelize.CoordinatesToCellName(1, w.row)
	if err := w.f.SetCellStyle(w.sheet, first, last, w.bold); err != nil {
		return fmt.Errorf("erro aplicando estilo na aba %s: %w", w.sheet, err)
	}
	return nil
}

func (w *sheetWriter) append(values ...interface{}) error {
	w.row++
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(w.sheet, cell, &values); err != nil {
		return fmt.Errorf("erro escrevendo linha %d da aba %s: %w", w.row, w.sheet, err)
	}
	return nil
}

func (w *sheetWriter) width(from, to string, width float64) error {
	return w.f.SetColWidth(w.sheet, from, to, width)
}

// WriteValidation grava o documento extraído e o relatório da validação.
func WriteValidation(out io.Writer, inv *fiscal.ParsedInvoice, rep *validation.Report) error {
	f, bold, err := newWorkbook(sheetSummary)
	if err != nil {
		return err
	}
	defer f.Close()

	var w sheetWriter
	if err := w.open(f, sheetSummary, bold, false); err != nil {
		return err
	}
	rows := [][]interface{}{
		{"Tipo", string(inv.Kind)},
		{"Número", inv.Number},
		{"Série", inv.Series},
		{"Chave de acesso", inv.AccessKey},
		{"Emissão", inv.IssueDate},
		{"Fornecedor", inv.Supplier.LegalName},
		{"CPF/CNPJ fornecedor", inv.Supplier.TaxID},
		{"Destinatário", inv.Recipient.LegalName},
		{"Natureza da operação", inv.OperationNature},
		{"Total dos produtos", inv.Totals.ProductsTotal},
		{"Total da nota", inv.Totals.GrandTotal},
		{"Resultado", rep.Summary()},
	}
	for _, r := range rows {
		if err := w.append(r...); err != nil {
			return err
		}
	}
	if err := w.width("A", "A", 24); err != nil {
		return err
	}
	if err := w.width("B", "B", 50); err != nil {
		return err
	}

	if err := w.open(f, sheetItems, bold, true); err != nil {
		return err
	}
	if err := w.header("Item", "Código", "Descrição", "NCM", "CFOP", "Unidade", "Quantidade", "Valor unitário", "Valor total"); err != nil {
		return err
	}
	for _, it := range inv.Items {
		if err := w.append(it.Number, it.SupplierCode, it.Description, it.NCM(), it.CFOP, it.Unit, it.Quantity, it.UnitPrice, it.TotalValue); err != nil {
			return err
		}
	}
	if err := w.width("C", "C", 40); err != nil {
		return err
	}

	if err := w.open(f, sheetFindings, bold, true); err != nil {
		return err
	}
	if err := w.header("Tipo", "Código", "Campo", "Item", "Mensagem", "De", "Para"); err != nil {
		return err
	}
	groups := []struct {
		label string
		list  []validation.Finding
	}{
		{"erro", rep.Errors},
		{"aviso", rep.Warnings},
		{"correção", rep.Corrections},
	}
	for _, g := range groups {
		for _, fd := range g.list {
			if err := w.append(g.label, fd.Code, fd.Field, fd.Item, fd.Message, fd.From, fd.To); err != nil {
				return err
			}
		}
	}
	if err := w.width("E", "E", 60); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(out); err != nil {
		return fmt.Errorf("erro gerando planilha: %w", err)
	}
	return nil
}

// WriteOFX grava os lançamentos do extrato com status, categoria e a baixa
// sugerida, mais os registros rejeitados.
func WriteOFX(out io.Writer, rep *ofx.Report) error {
	f, bold, err := newWorkbook(sheetTxs)
	if err != nil {
		return err
	}
	defer f.Close()

	var w sheetWriter
	if err := w.open(f, sheetTxs, bold, false); err != nil {
		return err
	}
	if err := w.header("FITID", "Data", "Valor", "Tipo", "Descrição", "Categoria", "Status", "Título sugerido", "Vencimento", "Valor do título"); err != nil {
		return err
	}
	for _, t := range rep.Txs {
		amount, _ := t.Amount.Float64()
		var matchID, matchDue string
		var matchValue interface{}
		if t.Match != nil {
			matchID = t.Match.ID + " " + t.Match.Description
			matchDue = t.Match.DueDate
			matchValue, _ = t.Match.FinalValue.Float64()
		}
		if err := w.append(t.FITID, t.PostedDate, amount, string(t.Type), t.Description(),
			string(t.Category), string(t.Status), matchID, matchDue, matchValue); err != nil {
			return err
		}
	}
	if err := w.width("E", "E", 45); err != nil {
		return err
	}

	if err := w.open(f, sheetRejected, bold, true); err != nil {
		return err
	}
	if err := w.header("Registro", "Motivo"); err != nil {
		return err
	}
	if rep.Statement != nil {
		for _, r := range rep.Statement.Rejected {
			if err := w.append(r.Index, r.Reason); err != nil {
				return err
			}
		}
	}

	f.SetActiveSheet(0)
	if err := f.Write(out); err != nil {
		return fmt.Errorf("erro gerando planilha: %w", err)
	}
	return nil
}
