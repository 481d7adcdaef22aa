package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"fiscal-intake/internal/ofx"
)

func (s *Store) KnownFITIDs(ctx context.Context, companyID, accountID string) (map[string]bool, error) {
	const q = `
SELECT fitid
FROM conciliacao_itens
WHERE empresa_id = $1 AND conta_id = $2;
`
	rows, err := s.db.QueryContext(ctx, q, companyID, accountID)
	if err != nil {
		return nil, classify(err, "erro listando FITIDs importados")
	}
	defer rows.Close()

	known := map[string]bool{}
	for rows.Next() {
		var fitid string
		if err := rows.Scan(&fitid); err != nil {
			return nil, fmt.Errorf("erro lendo FITID: %w", err)
		}
		known[fitid] = true
	}
	return known, rows.Err()
}

// SaveImport grava o cabeçalho da conciliação e os lançamentos novos.
func (s *Store) SaveImport(ctx context.Context, imp *ofx.Import) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		const header = `
INSERT INTO conciliacoes_bancarias (
	id,
	empresa_id,
	conta_id,
	banco,
	data_inicio,
	data_fim,
	hash_arquivo
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
);
`
		if _, err := tx.ExecContext(ctx, header,
			imp.ID, imp.CompanyID, imp.AccountID, nullableString(imp.BankID),
			toNullDate(imp.StartDate), toNullDate(imp.EndDate), imp.FileHash,
		); err != nil {
			return classify(err, "erro inserindo conciliação bancária")
		}

		const item = `
INSERT INTO conciliacao_itens (
	conciliacao_id,
	empresa_id,
	conta_id,
	fitid,
	data_lancamento,
	valor,
	tipo,
	tipo_declarado,
	nome,
	memo,
	categoria
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
);
`
		for _, t := range imp.Items {
			if _, err := tx.ExecContext(ctx, item,
				imp.ID, imp.CompanyID, imp.AccountID, t.FITID,
				t.PostedDate, t.Amount.String(), string(t.Type),
				nullableString(t.DeclaredType), nullableString(t.Name), nullableString(t.Memo),
				nullableString(string(t.Category)),
			); err != nil {
				return classify(err, fmt.Sprintf("erro inserindo lançamento fitid=%s", t.FITID))
			}
		}
		return nil
	})
}

func (s *Store) FindItem(ctx context.Context, companyID, accountID, fitid string) (*ofx.StoredItem, error) {
	const q = `
SELECT conciliacao_id, data_lancamento, valor::text, tipo,
	COALESCE(tipo_declarado, ''), COALESCE(nome, ''), COALESCE(memo, ''), COALESCE(categoria, ''),
	COALESCE(movimentacao_id::text, '')
FROM conciliacao_itens
WHERE empresa_id = $1 AND conta_id = $2 AND fitid = $3;
`
	it := &ofx.StoredItem{Tx: ofx.Transaction{FITID: fitid}}
	var (
		posted         sql.NullTime
		amount         string
		kind, category string
	)
	err := s.db.QueryRowContext(ctx, q, companyID, accountID, fitid).Scan(
		&it.ImportID, &posted, &amount, &kind,
		&it.Tx.DeclaredType, &it.Tx.Name, &it.Tx.Memo, &category,
		&it.MovementID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "erro buscando lançamento do extrato")
	}
	if it.Tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("valor inválido no lançamento %s: %w", fitid, err)
	}
	it.Tx.PostedDate = dateString(posted)
	it.Tx.Type = ofx.TxType(kind)
	it.Tx.Category = ofx.Category(category)
	it.Tx.Status = ofx.StatusNew
	return it, nil
}

// openItemsQuery devolve a consulta de títulos em aberto do tipo pedido.
func openItemsQuery(kind ofx.OpenItemKind) (string, error) {
	switch kind {
	case ofx.KindPayable:
		return `
SELECT id, descricao, data_vencimento, valor_final::text
FROM contas_pagar
WHERE empresa_id = $1 AND status = 'aberto'`, nil
	case ofx.KindReceivable:
		return `
SELECT id, descricao, data_vencimento, valor_final::text
FROM contas_receber
WHERE empresa_id = $1 AND status = 'aberto'`, nil
	}
	return "", fmt.Errorf("tipo de título desconhecido: %q", kind)
}

func (s *Store) OpenItems(ctx context.Context, companyID string, kind ofx.OpenItemKind) ([]ofx.OpenItem, error) {
	q, err := openItemsQuery(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, q+"\nORDER BY data_vencimento, id;", companyID)
	if err != nil {
		return nil, classify(err, "erro listando títulos em aberto")
	}
	defer rows.Close()

	var out []ofx.OpenItem
	for rows.Next() {
		it, err := scanOpenItem(rows, kind)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) FindOpenItem(ctx context.Context, companyID string, kind ofx.OpenItemKind, id string) (*ofx.OpenItem, error) {
	q, err := openItemsQuery(kind)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx, q+" AND id = $2;", companyID, id)
	it, err := scanOpenItem(row, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "erro buscando título em aberto")
	}
	return &it, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOpenItem(sc scanner, kind ofx.OpenItemKind) (ofx.OpenItem, error) {
	it := ofx.OpenItem{Kind: kind}
	var (
		due    sql.NullTime
		amount string
	)
	if err := sc.Scan(&it.ID, &it.Description, &due, &amount); err != nil {
		return it, err
	}
	it.DueDate = dateString(due)
	v, err := decimal.NewFromString(amount)
	if err != nil {
		return it, fmt.Errorf("valor inválido no título %s: %w", it.ID, err)
	}
	it.FinalValue = v
	return it, nil
}

// WithinTx abre a transação da conciliação; commit só se fn terminar sem erro.
func (s *Store) WithinTx(ctx context.Context, fn func(tx ofx.LedgerTx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(ledgerTx{tx: tx})
	})
}

type ledgerTx struct {
	tx *sql.Tx
}

// SettleOpenItem baixa o título pelo valor final. Só baixa título ainda aberto.
func (l ledgerTx) SettleOpenItem(ctx context.Context, companyID string, item ofx.OpenItem, paidOn string) error {
	var q string
	switch item.Kind {
	case ofx.KindPayable:
		q = `
UPDATE contas_pagar
SET status = 'pago', valor_pago = valor_final, data_pagamento = $3, updated_at = CURRENT_TIMESTAMP(3)
WHERE empresa_id = $1 AND id = $2 AND status = 'aberto';
`
	case ofx.KindReceivable:
		q = `
UPDATE contas_receber
SET status = 'recebido', valor_recebido = valor_final, data_recebimento = $3, updated_at = CURRENT_TIMESTAMP(3)
WHERE empresa_id = $1 AND id = $2 AND status = 'aberto';
`
	default:
		return fmt.Errorf("tipo de título desconhecido: %q", item.Kind)
	}
	res, err := l.tx.ExecContext(ctx, q, companyID, item.ID, paidOn)
	if err != nil {
		return classify(err, "erro baixando título")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("título %s: %w", item.ID, ErrNotFound)
	}
	return nil
}

func (l ledgerTx) InsertMovement(ctx context.Context, m *ofx.Movement) error {
	const q = `
INSERT INTO movimentacoes_financeiras (
	id,
	empresa_id,
	conta_id,
	tipo,
	valor,
	data,
	descricao,
	categoria,
	fitid,
	conta_pagar_id,
	conta_receber_id
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
);
`
	_, err := l.tx.ExecContext(ctx, q,
		m.ID, m.CompanyID, m.AccountID, string(m.Kind), m.Amount.String(), m.Date,
		nullableString(m.Description), nullableString(string(m.Category)), nullableString(m.FITID),
		nullableString(m.PayableID), nullableString(m.ReceivableID),
	)
	if err != nil {
		return classify(err, "erro inserindo movimentação financeira")
	}
	return nil
}

func (l ledgerTx) MarkItemMatched(ctx context.Context, companyID, accountID, fitid, movementID string) error {
	const q = `
UPDATE conciliacao_itens
SET movimentacao_id = $4
WHERE empresa_id = $1 AND conta_id = $2 AND fitid = $3 AND movimentacao_id IS NULL;
`
	res, err := l.tx.ExecContext(ctx, q, companyID, accountID, fitid, movementID)
	if err != nil {
		return classify(err, "erro marcando lançamento conciliado")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.Warn("lançamento já conciliado por outra sessão", "fitid", fitid)
		return fmt.Errorf("%w: %s", ofx.ErrAlreadyReconciled, fitid)
	}
	return nil
}
