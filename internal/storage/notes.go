package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"fiscal-intake/internal/entrynote"
	"fiscal-intake/internal/fiscal"
	"fiscal-intake/internal/productlink"
)

// ErrNoteNotOpen indica que a nota foi lançada ou cancelada por outra sessão.
var ErrNoteNotOpen = errors.New("nota não está mais aberta para lançamento")

// SaveNote grava cabeçalho, itens, parcelas e o XML bruto em uma única
// transação. Itens e parcelas são regravados a cada chamada.
func (s *Store) SaveNote(ctx context.Context, n *entrynote.Note) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertNote(ctx, tx, n); err != nil {
			return err
		}
		if len(n.RawXML) > 0 {
			if err := insertNoteXML(ctx, tx, n); err != nil {
				return err
			}
		}
		if err := replaceItems(ctx, tx, n); err != nil {
			return err
		}
		return replaceInstallments(ctx, tx, n)
	})
	if err != nil {
		return err
	}

	slog.Info("nota de entrada persistida",
		"nota_id", n.ID,
		"numero", n.Header.Number,
		"chave", n.Header.AccessKey,
		"itens", len(n.Items),
		"parcelas", len(n.Installments),
	)
	return nil
}

func upsertNote(ctx context.Context, tx *sql.Tx, n *entrynote.Note) error {
	fields, err := json.Marshal(n.Fields)
	if err != nil {
		return fmt.Errorf("erro serializando origem dos campos: %w", err)
	}

	const q = `
INSERT INTO notas_entrada (
	id,
	empresa_id,
	tipo_documento,
	numero,
	serie,
	chave_acesso,
	modelo,
	hash_integridade,
	fornecedor_id,
	cfop,
	natureza_operacao,
	finalidade,
	tipo_entrada,
	data_emissao,
	data_entrada,
	valor_frete,
	valor_seguro,
	valor_outras_despesas,
	valor_produtos,
	valor_impostos,
	valor_descontos,
	valor_total,
	status,
	origem_campos
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,
	$9,$10,$11,$12,$13,$14,$15,
	$16,$17,$18,$19,$20,$21,$22,
	$23,$24
)
ON CONFLICT (id) DO UPDATE SET
	numero = EXCLUDED.numero,
	serie = EXCLUDED.serie,
	chave_acesso = EXCLUDED.chave_acesso,
	fornecedor_id = EXCLUDED.fornecedor_id,
	cfop = EXCLUDED.cfop,
	natureza_operacao = EXCLUDED.natureza_operacao,
	finalidade = EXCLUDED.finalidade,
	tipo_entrada = EXCLUDED.tipo_entrada,
	data_emissao = EXCLUDED.data_emissao,
	data_entrada = EXCLUDED.data_entrada,
	valor_frete = EXCLUDED.valor_frete,
	valor_seguro = EXCLUDED.valor_seguro,
	valor_outras_despesas = EXCLUDED.valor_outras_despesas,
	valor_produtos = EXCLUDED.valor_produtos,
	valor_impostos = EXCLUDED.valor_impostos,
	valor_descontos = EXCLUDED.valor_descontos,
	valor_total = EXCLUDED.valor_total,
	status = EXCLUDED.status,
	origem_campos = EXCLUDED.origem_campos,
	updated_at = CURRENT_TIMESTAMP(3)
WHERE notas_entrada.status IN ('draft', 'typing');
`
	h := n.Header
	res, err := tx.ExecContext(ctx, q,
		n.ID,
		n.CompanyID,
		string(h.Kind),
		h.Number,
		nullableString(h.Series),
		nullableString(h.AccessKey),
		nullableString(h.Model),
		nullableString(n.IntegrityHash),
		nullableString(h.SupplierID),
		nullableString(h.CFOP),
		nullableString(h.OperationNature),
		nullableString(string(h.Purpose)),
		nullableString(h.EntryType),
		toNullDate(h.IssueDate),
		toNullDate(h.EntryDate),
		h.Freight,
		h.Insurance,
		h.OtherExpenses,
		n.Totals.ProductsTotal,
		n.Totals.TaxesTotal,
		n.Totals.DiscountsTotal,
		n.Totals.GrandTotal,
		string(n.Status),
		string(fields),
	)
	if err != nil {
		return classify(err, fmt.Sprintf("erro gravando nota (numero=%s chave=%s)", h.Number, h.AccessKey))
	}
	// conflito com nota lançada ou cancelada não atualiza nada
	return stillOpen(res)
}

// stillOpen confere que o comando alcançou uma nota aberta.
func stillOpen(res sql.Result) error {
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNoteNotOpen
	}
	return nil
}

func insertNoteXML(ctx context.Context, tx *sql.Tx, n *entrynote.Note) error {
	const q = `
INSERT INTO notas_entrada_xml (
	nota_id,
	xml_raw
) VALUES (
	$1,$2
)
ON CONFLICT (nota_id) DO NOTHING;
`
	if _, err := tx.ExecContext(ctx, q, n.ID, string(n.RawXML)); err != nil {
		return classify(err, fmt.Sprintf("erro inserindo XML da nota (nota_id=%s)", n.ID))
	}
	return nil
}

func replaceItems(ctx context.Context, tx *sql.Tx, n *entrynote.Note) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM notas_entrada_itens WHERE nota_id = $1;`, n.ID); err != nil {
		return classify(err, "erro limpando itens da nota")
	}

	const q = `
INSERT INTO notas_entrada_itens (
	id,
	nota_id,
	n_item,
	origem,
	descricao,
	cfop,
	gtin,
	valor_desconto,
	quantidade_fiscal,
	valor_unit_fiscal,
	valor_total_fiscal,
	unidade_fiscal,
	ncm,
	valor_icms,
	valor_ipi,
	valor_pis,
	valor_cofins,
	quantidade_interna,
	unidade_interna,
	fator_conversao,
	valor_unit_interno,
	fornecedor_cnpj_cpf,
	codigo_produto_fornecedor,
	status_vinculo,
	produto_id,
	vinculo_id
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,
	$9,$10,$11,$12,$13,
	$14,$15,$16,$17,
	$18,$19,$20,$21,
	$22,$23,$24,$25,$26
);
`
	for _, it := range n.Items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		_, err := tx.ExecContext(ctx, q,
			it.ID,
			n.ID,
			it.Number,
			string(it.Provenance),
			nullableString(it.Description),
			nullableString(it.CFOP),
			nullableString(it.GTIN),
			it.Discount,
			it.FiscalQuantity,
			it.FiscalUnitPrice,
			it.FiscalTotalValue,
			nullableString(it.FiscalUnit),
			nullableString(it.NCM),
			it.ICMSValue,
			it.IPIValue,
			it.PISValue,
			it.COFINSValue,
			it.InternalQuantity,
			nullableString(it.InternalUnit),
			it.ConversionFactor,
			it.InternalUnitPrice,
			nullableString(it.SupplierTaxID),
			nullableString(it.SupplierProductCode),
			string(it.LinkStatus),
			nullableString(it.LinkedProductID),
			nullableString(it.LinkID),
		)
		if err != nil {
			return classify(err, fmt.Sprintf("erro inserindo item n_item=%d da nota_id=%s", it.Number, n.ID))
		}
	}
	return nil
}

func replaceInstallments(ctx context.Context, tx *sql.Tx, n *entrynote.Note) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM notas_entrada_parcelas WHERE nota_id = $1;`, n.ID); err != nil {
		return classify(err, "erro limpando parcelas da nota")
	}

	const q = `
INSERT INTO notas_entrada_parcelas (
	nota_id,
	numero,
	data_vencimento,
	valor
) VALUES (
	$1,$2,$3,$4
);
`
	for _, inst := range n.Installments {
		if _, err := tx.ExecContext(ctx, q, n.ID, inst.Number, toNullDate(inst.DueDate), inst.Value); err != nil {
			return classify(err, fmt.Sprintf("erro inserindo parcela nota_id=%s numero=%s", n.ID, inst.Number))
		}
	}
	return nil
}

// LoadNote lê a nota com itens e parcelas. O XML bruto não é carregado.
func (s *Store) LoadNote(ctx context.Context, companyID, id string) (*entrynote.Note, error) {
	const q = `
SELECT n.id, n.empresa_id, n.tipo_documento, n.numero, COALESCE(n.serie, ''),
	COALESCE(n.chave_acesso, ''), COALESCE(n.modelo, ''), COALESCE(n.hash_integridade, ''),
	COALESCE(n.fornecedor_id::text, ''), COALESCE(f.cnpj_cpf, ''), COALESCE(f.razao_social, ''),
	COALESCE(n.cfop, ''), COALESCE(n.natureza_operacao, ''), COALESCE(n.finalidade, ''),
	COALESCE(n.tipo_entrada, ''), n.data_emissao, n.data_entrada,
	n.valor_frete, n.valor_seguro, n.valor_outras_despesas,
	n.status, n.origem_campos
FROM notas_entrada n
LEFT JOIN fornecedores f ON f.id = n.fornecedor_id
WHERE n.empresa_id = $1 AND n.id = $2;
`
	n := &entrynote.Note{Persisted: true}
	var (
		kind, purpose, status string
		issue, entry          sql.NullTime
		fields                []byte
	)
	h := &n.Header
	err := s.db.QueryRowContext(ctx, q, companyID, id).Scan(
		&n.ID, &n.CompanyID, &kind, &h.Number, &h.Series,
		&h.AccessKey, &h.Model, &n.IntegrityHash,
		&h.SupplierID, &h.SupplierTaxID, &h.SupplierName,
		&h.CFOP, &h.OperationNature, &purpose,
		&h.EntryType, &issue, &entry,
		&h.Freight, &h.Insurance, &h.OtherExpenses,
		&status, &fields,
	)
	if err != nil {
		return nil, classify(err, fmt.Sprintf("erro carregando nota %s", id))
	}
	h.Kind = fiscal.DocumentKind(kind)
	h.Purpose = fiscal.Purpose(purpose)
	h.IssueDate = dateString(issue)
	h.EntryDate = dateString(entry)
	n.Status = entrynote.Status(status)
	n.Fields = map[entrynote.HeaderField]entrynote.Provenance{}
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &n.Fields); err != nil {
			return nil, fmt.Errorf("erro lendo origem dos campos da nota %s: %w", id, err)
		}
	}

	if n.Items, err = s.loadItems(ctx, id); err != nil {
		return nil, err
	}
	if n.Installments, err = s.loadInstallments(ctx, id); err != nil {
		return nil, err
	}
	n.Recompute()
	return n, nil
}

func (s *Store) loadItems(ctx context.Context, noteID string) ([]*entrynote.Item, error) {
	const q = `
SELECT id, n_item, origem, COALESCE(descricao, ''), COALESCE(cfop, ''), COALESCE(gtin, ''), valor_desconto,
	quantidade_fiscal, valor_unit_fiscal, valor_total_fiscal, COALESCE(unidade_fiscal, ''), COALESCE(ncm, ''),
	valor_icms, valor_ipi, valor_pis, valor_cofins,
	quantidade_interna, COALESCE(unidade_interna, ''), fator_conversao, valor_unit_interno,
	COALESCE(fornecedor_cnpj_cpf, ''), COALESCE(codigo_produto_fornecedor, ''), status_vinculo,
	COALESCE(produto_id::text, ''), COALESCE(vinculo_id::text, '')
FROM notas_entrada_itens
WHERE nota_id = $1
ORDER BY n_item;
`
	rows, err := s.db.QueryContext(ctx, q, noteID)
	if err != nil {
		return nil, classify(err, "erro listando itens da nota")
	}
	defer rows.Close()

	var out []*entrynote.Item
	for rows.Next() {
		it := &entrynote.Item{}
		var prov, status string
		if err := rows.Scan(
			&it.ID, &it.Number, &prov, &it.Description, &it.CFOP, &it.GTIN, &it.Discount,
			&it.FiscalQuantity, &it.FiscalUnitPrice, &it.FiscalTotalValue, &it.FiscalUnit, &it.NCM,
			&it.ICMSValue, &it.IPIValue, &it.PISValue, &it.COFINSValue,
			&it.InternalQuantity, &it.InternalUnit, &it.ConversionFactor, &it.InternalUnitPrice,
			&it.SupplierTaxID, &it.SupplierProductCode, &status,
			&it.LinkedProductID, &it.LinkID,
		); err != nil {
			return nil, fmt.Errorf("erro lendo item da nota: %w", err)
		}
		it.Provenance = entrynote.Provenance(prov)
		if it.LinkStatus, err = productlink.ParseStatus(status); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) loadInstallments(ctx context.Context, noteID string) ([]fiscal.Installment, error) {
	const q = `
SELECT numero, data_vencimento, valor
FROM notas_entrada_parcelas
WHERE nota_id = $1
ORDER BY numero;
`
	rows, err := s.db.QueryContext(ctx, q, noteID)
	if err != nil {
		return nil, classify(err, "erro listando parcelas da nota")
	}
	defer rows.Close()

	var out []fiscal.Installment
	for rows.Next() {
		var (
			inst fiscal.Installment
			due  sql.NullTime
		)
		if err := rows.Scan(&inst.Number, &due, &inst.Value); err != nil {
			return nil, fmt.Errorf("erro lendo parcela: %w", err)
		}
		inst.DueDate = dateString(due)
		out = append(out, inst)
	}
	return out, rows.Err()
}

// UpdateNoteStatus grava o novo status de uma nota ainda aberta (cancelamento).
func (s *Store) UpdateNoteStatus(ctx context.Context, companyID, noteID string, status entrynote.Status) error {
	const q = `
UPDATE notas_entrada
SET status = $3, updated_at = CURRENT_TIMESTAMP(3)
WHERE empresa_id = $1 AND id = $2 AND status IN ('draft', 'typing');
`
	res, err := s.db.ExecContext(ctx, q, companyID, noteID, string(status))
	if err != nil {
		return classify(err, "erro atualizando status da nota")
	}
	return stillOpen(res)
}

// ApplyEntry dá entrada no estoque e marca a nota como lançada na mesma
// transação. O custo médio do produto é recalculado a cada entrada.
func (s *Store) ApplyEntry(ctx context.Context, companyID, noteID string, moves []entrynote.StockMove) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE notas_entrada
SET status = 'posted', updated_at = CURRENT_TIMESTAMP(3)
WHERE empresa_id = $1 AND id = $2 AND status IN ('draft', 'typing');
`, companyID, noteID)
		if err != nil {
			return classify(err, "erro marcando nota como lançada")
		}
		if err := stillOpen(res); err != nil {
			return err
		}

		const insertMove = `
INSERT INTO movimentacoes_estoque (
	id,
	empresa_id,
	produto_id,
	nota_id,
	item_id,
	quantidade,
	unidade,
	custo_unitario
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8
);
`
		const updateStock = `
UPDATE produtos
SET custo_medio = CASE
		WHEN estoque_atual + $3 > 0 THEN (estoque_atual * custo_medio + $3 * $4) / (estoque_atual + $3)
		ELSE custo_medio
	END,
	estoque_atual = estoque_atual + $3,
	updated_at = CURRENT_TIMESTAMP(3)
WHERE empresa_id = $1 AND id = $2;
`
		for _, m := range moves {
			if _, err := tx.ExecContext(ctx, insertMove,
				uuid.NewString(), companyID, m.ProductID, noteID, m.ItemID,
				m.Quantity, nullableString(m.Unit), m.UnitCost,
			); err != nil {
				return classify(err, fmt.Sprintf("erro inserindo movimentação do produto %s", m.ProductID))
			}
			res, err := tx.ExecContext(ctx, updateStock, companyID, m.ProductID, m.Quantity, m.UnitCost)
			if err != nil {
				return classify(err, fmt.Sprintf("erro atualizando estoque do produto %s", m.ProductID))
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("produto %s: %w", m.ProductID, ErrNotFound)
			}
		}
		return nil
	})
}

// CreatePayables grava as contas a pagar da nota; todas ou nenhuma.
func (s *Store) CreatePayables(ctx context.Context, payables []entrynote.Payable) error {
	const q = `
INSERT INTO contas_pagar (
	id,
	empresa_id,
	fornecedor_id,
	nota_id,
	parcela,
	descricao,
	data_emissao,
	data_vencimento,
	valor_final
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
);
`
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, p := range payables {
			if _, err := tx.ExecContext(ctx, q,
				p.ID, p.CompanyID, nullableString(p.SupplierID), nullableString(p.NoteID),
				nullableString(p.Installment), p.Description,
				p.IssueDate, p.DueDate, p.Value,
			); err != nil {
				return classify(err, fmt.Sprintf("erro inserindo conta a pagar (parcela=%s)", p.Installment))
			}
		}
		return nil
	})
}
