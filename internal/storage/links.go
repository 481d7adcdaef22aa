package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fiscal-intake/internal/productlink"
)

func (s *Store) FindLink(ctx context.Context, key productlink.Key) (*productlink.Link, error) {
	const q = `
SELECT id, COALESCE(produto_id::text, ''), COALESCE(descricao, ''), COALESCE(ncm, ''),
	COALESCE(gtin, ''), COALESCE(unidade, ''), ignorado, updated_at
FROM vinculos_produto
WHERE empresa_id = $1 AND fornecedor_cnpj_cpf = $2 AND codigo_produto_fornecedor = $3;
`
	link := &productlink.Link{Key: key}
	err := s.db.QueryRowContext(ctx, q, key.CompanyID, key.SupplierTaxID, key.SupplierProductCode).Scan(
		&link.ID, &link.ProductID, &link.Description, &link.NCM,
		&link.GTIN, &link.Unit, &link.Ignored, &link.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "erro buscando vínculo de produto")
	}
	return link, nil
}

// UpsertLink grava o vínculo; a chave (empresa, fornecedor, código) decide
// entre insert e update e o id original é mantido.
func (s *Store) UpsertLink(ctx context.Context, link *productlink.Link) error {
	const q = `
INSERT INTO vinculos_produto (
	id,
	empresa_id,
	fornecedor_cnpj_cpf,
	codigo_produto_fornecedor,
	produto_id,
	descricao,
	ncm,
	gtin,
	unidade,
	ignorado,
	updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (empresa_id, fornecedor_cnpj_cpf, codigo_produto_fornecedor) DO UPDATE SET
	produto_id = EXCLUDED.produto_id,
	descricao = EXCLUDED.descricao,
	ncm = EXCLUDED.ncm,
	gtin = EXCLUDED.gtin,
	unidade = EXCLUDED.unidade,
	ignorado = EXCLUDED.ignorado,
	updated_at = EXCLUDED.updated_at
RETURNING id;
`
	err := s.db.QueryRowContext(ctx, q,
		link.ID,
		link.CompanyID,
		link.SupplierTaxID,
		link.SupplierProductCode,
		nullableString(link.ProductID),
		nullableString(link.Description),
		nullableString(link.NCM),
		nullableString(link.GTIN),
		nullableString(link.Unit),
		link.Ignored,
		link.UpdatedAt,
	).Scan(&link.ID)
	if err != nil {
		return classify(err, "erro gravando vínculo de produto")
	}
	return nil
}

// SearchProducts traz candidatos por GTIN, posição do NCM ou termos do nome.
// O ranqueamento fica com o productlink.
func (s *Store) SearchProducts(ctx context.Context, q productlink.CatalogQuery) ([]productlink.Product, error) {
	heading := ""
	if len(q.NCM) >= 4 {
		heading = q.NCM[:4] + "%"
	}
	patterns := make([]string, 0, len(q.Terms))
	for _, t := range q.Terms {
		patterns = append(patterns, "%"+t+"%")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 50
	}

	const query = `
SELECT id, codigo, nome, COALESCE(marca, ''), COALESCE(ncm, ''), COALESCE(gtin, ''), COALESCE(unidade, '')
FROM produtos
WHERE empresa_id = $1 AND ativo
  AND (
	($2 <> '' AND gtin = $2)
	OR ($3 <> '' AND ncm LIKE $3)
	OR upper(nome) LIKE ANY($4)
  )
LIMIT $5;
`
	rows, err := s.db.QueryContext(ctx, query, q.CompanyID, q.GTIN, heading, patterns, limit)
	if err != nil {
		return nil, classify(err, "erro buscando produtos")
	}
	defer rows.Close()

	var out []productlink.Product
	for rows.Next() {
		var p productlink.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.Brand, &p.NCM, &p.GTIN, &p.Unit); err != nil {
			return nil, fmt.Errorf("erro lendo produto: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
