package migrations

import (
	"database/sql"
	"fmt"
)

// Run executa todas as migrations necessárias no banco da aplicação.
func Run(db *sql.DB) error {
	stmts := []string{
		// fornecedores
		`
CREATE TABLE IF NOT EXISTS fornecedores (
    id UUID PRIMARY KEY,
    empresa_id UUID NOT NULL,
    cnpj_cpf VARCHAR(14) NOT NULL,
    tipo_pessoa CHAR(2) NOT NULL,
    razao_social VARCHAR(255) NOT NULL,
    nome_fantasia VARCHAR(255),
    inscricao_estadual VARCHAR(20),
    inscricao_municipal VARCHAR(20),

    logradouro VARCHAR(255),
    numero VARCHAR(20),
    complemento VARCHAR(100),
    bairro VARCHAR(100),
    codigo_municipio CHAR(7),
    municipio VARCHAR(100),
    uf CHAR(2),
    cep CHAR(8),
    telefone VARCHAR(20),
    email VARCHAR(255),

    created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    updated_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),

    CONSTRAINT uk_fornecedores_empresa_cnpj UNIQUE (empresa_id, cnpj_cpf)
);
`,

		// produtos
		`
CREATE TABLE IF NOT EXISTS produtos (
    id UUID PRIMARY KEY,
    empresa_id UUID NOT NULL,
    codigo VARCHAR(60) NOT NULL,
    nome VARCHAR(255) NOT NULL,
    marca VARCHAR(100),
    ncm CHAR(8),
    gtin VARCHAR(14),
    unidade VARCHAR(10),
    estoque_atual NUMERIC(15,4) NOT NULL DEFAULT 0,
    custo_medio NUMERIC(21,10) NOT NULL DEFAULT 0,
    ativo BOOLEAN NOT NULL DEFAULT TRUE,

    created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    updated_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),

    CONSTRAINT uk_produtos_empresa_codigo UNIQUE (empresa_id, codigo)
);
`,
		`CREATE INDEX IF NOT EXISTS idx_produtos_ncm ON produtos (empresa_id, ncm);`,
		`CREATE INDEX IF NOT EXISTS idx_produtos_gtin ON produtos (empresa_id, gtin);`,

		// notas_entrada
		`
CREATE TABLE IF NOT EXISTS notas_entrada (
    id UUID PRIMARY KEY,
    empresa_id UUID NOT NULL,
    tipo_documento VARCHAR(10) NOT NULL,
    numero VARCHAR(20) NOT NULL,
    serie VARCHAR(5),
    chave_acesso CHAR(44),
    modelo VARCHAR(3),
    hash_integridade CHAR(64),

    fornecedor_id UUID REFERENCES fornecedores(id),
    cfop CHAR(4),
    natureza_operacao VARCHAR(255),
    finalidade VARCHAR(20),
    tipo_entrada VARCHAR(60),
    data_emissao DATE,
    data_entrada DATE,

    valor_frete NUMERIC(15,2) NOT NULL DEFAULT 0,
    valor_seguro NUMERIC(15,2) NOT NULL DEFAULT 0,
    valor_outras_despesas NUMERIC(15,2) NOT NULL DEFAULT 0,
    valor_produtos NUMERIC(15,2) NOT NULL DEFAULT 0,
    valor_impostos NUMERIC(15,2) NOT NULL DEFAULT 0,
    valor_descontos NUMERIC(15,2) NOT NULL DEFAULT 0,
    valor_total NUMERIC(15,2) NOT NULL DEFAULT 0,

    status VARCHAR(12) NOT NULL,
    origem_campos JSONB NOT NULL DEFAULT '{}',

    created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    updated_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
);
`,
		`CREATE UNIQUE INDEX IF NOT EXISTS uk_notas_entrada_chave ON notas_entrada (empresa_id, chave_acesso) WHERE chave_acesso IS NOT NULL AND status <> 'cancelled';`,
		`CREATE INDEX IF NOT EXISTS idx_notas_entrada_numero_serie ON notas_entrada (empresa_id, numero, serie);`,
		`CREATE INDEX IF NOT EXISTS idx_notas_entrada_fornecedor ON notas_entrada (fornecedor_id);`,
		// nota digitada nasce sem fornecedor
		`ALTER TABLE notas_entrada ALTER COLUMN fornecedor_id DROP NOT NULL;`,

		// notas_entrada_xml
		`
CREATE TABLE IF NOT EXISTS notas_entrada_xml (
    nota_id UUID PRIMARY KEY,
    xml_raw TEXT NOT NULL,

    created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),

    CONSTRAINT fk_notas_entrada_xml_nota
        FOREIGN KEY (nota_id) REFERENCES notas_entrada(id)
        ON DELETE CASCADE
);
`,

		// notas_entrada_itens
		`
CREATE TABLE IF NOT EXISTS notas_entrada_itens (
    id UUID PRIMARY KEY,
    nota_id UUID NOT NULL,
    n_item INTEGER NOT NULL,
    origem VARCHAR(20) NOT NULL,
    descricao VARCHAR(255),
    cfop CHAR(4),
    gtin VARCHAR(14),
    valor_desconto NUMERIC(15,2) NOT NULL DEFAULT 0,

    quantidade_fiscal NUMERIC(15,4) NOT NULL,
    valor_unit_fiscal NUMERIC(21,10) NOT NULL,
    valor_total_fiscal NUMERIC(15,2) NOT NULL,
    unidade_fiscal VARCHAR(10),
    ncm CHAR(8),

    valor_icms NUMERIC(15,2) NOT NULL DEFAULT 0,
    valor_ipi NUMERIC(15,2) NOT NULL DEFAULT 0,
    valor_pis NUMERIC(15,2) NOT NULL DEFAULT 0,
    valor_cofins NUMERIC(15,2) NOT NULL DEFAULT 0,

    quantidade_interna NUMERIC(15,4) NOT NULL,
    unidade_interna VARCHAR(10),
    fator_conversao NUMERIC(21,10) NOT NULL DEFAULT 1,
    valor_unit_interno NUMERIC(21,10) NOT NULL DEFAULT 0,

    fornecedor_cnpj_cpf VARCHAR(14),
    codigo_produto_fornecedor VARCHAR(60),
    status_vinculo VARCHAR(10) NOT NULL,
    produto_id UUID REFERENCES produtos(id),
    vinculo_id UUID,

    CONSTRAINT uk_notas_entrada_itens UNIQUE (nota_id, n_item),
    CONSTRAINT fk_notas_entrada_itens_nota
        FOREIGN KEY (nota_id) REFERENCES notas_entrada(id)
        ON DELETE CASCADE
);
`,
		`CREATE INDEX IF NOT EXISTS idx_notas_entrada_itens_nota ON notas_entrada_itens (nota_id);`,

		// notas_entrada_parcelas
		`
CREATE TABLE IF NOT EXISTS notas_entrada_parcelas (
    id BIGSERIAL PRIMARY KEY,
    nota_id UUID NOT NULL,
    numero VARCHAR(60) NOT NULL,
    data_vencimento DATE,
    valor NUMERIC(15,2) NOT NULL,

    CONSTRAINT uk_notas_entrada_parcelas UNIQUE (nota_id, numero),
    CONSTRAINT fk_notas_entrada_parcelas_nota
        FOREIGN KEY (nota_id) REFERENCES notas_entrada(id)
        ON DELETE CASCADE
);
`,

		// vinculos_produto
		`
CREATE TABLE IF NOT EXISTS vinculos_produto (
    id UUID PRIMARY KEY,
    empresa_id UUID NOT NULL,
    fornecedor_cnpj_cpf VARCHAR(14) NOT NULL,
    codigo_produto_fornecedor VARCHAR(60) NOT NULL,
    produto_id UUID REFERENCES produtos(id),
    descricao VARCHAR(255),
    ncm CHAR(8),
    gtin VARCHAR(14),
    unidade VARCHAR(10),
    ignorado BOOLEAN NOT NULL DEFAULT FALSE,

    created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    updated_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),

    CONSTRAINT uk_vinculos_produto UNIQUE (empresa_id, fornecedor_cnpj_cpf, codigo_produto_fornecedor)
);
`,

		// movimentacoes_estoque
		`
CREATE TABLE IF NOT EXISTS movimentacoes_estoque (
    id UUID PRIMARY KEY,
    empresa_id UUID NOT NULL,
    produto_id UUID NOT NULL REFERENCES produtos(id),
    nota_id UUID NOT NULL REFERENCES notas_entrada(id),
    item_id UUID NOT NULL,
    tipo VARCHAR(10) NOT NULL DEFAULT 'entrada',
    quantidade NUMERIC(15,4) NOT NULL,
    unidade VARCHAR(10),
    custo_unitario NUMERIC(21,10) NOT NULL,

    created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
);
`,
		`CREATE INDEX IF NOT EXISTS idx_movimentacoes_estoque_produto ON movimentacoes_estoque (produto_id);`,

		// contas_pagar
		`
CREATE TABLE IF NOT EXISTS contas_pagar (
    id UUID PRIMARY KEY,
    empresa_id UUID NOT NULL,
    fornecedor_id UUID REFERENCES fornecedores(id),
    nota_id UUID REFERENCES notas_entrada(id),
    parcela VARCHAR(60),
    descricao VARCHAR(255) NOT NULL,
    data_emissao DATE NOT NULL,
    data_vencimento DATE NOT NULL,
    valor_final NUMERIC(15,2) NOT NULL,
    valor_pago NUMERIC(15,2) NOT NULL DEFAULT 0,
    data_pagamento DATE,
    status VARCHAR(10) NOT NULL DEFAULT 'aberto',

    created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    updated_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
);
`,
		`CREATE INDEX IF NOT EXISTS idx_contas_pagar_abertas ON contas_pagar (empresa_id, status, data_vencimento);`,

		// contas_receber
		`
CREATE TABLE IF NOT EXISTS contas_receber (
    id UUID PRIMARY KEY,
    empresa_id UUID NOT NULL,
    cliente_id UUID,
    descricao VARCHAR(255) NOT NULL,
    data_emissao DATE NOT NULL,
    data_vencimento DATE NOT NULL,
    valor_final NUMERIC(15,2) NOT NULL,
    valor_recebido NUMERIC(15,2) NOT NULL DEFAULT 0,
    data_recebimento DATE,
    status VARCHAR(10) NOT NULL DEFAULT 'aberto',

    created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3),
    updated_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
);
`,
		`CREATE INDEX IF NOT EXISTS idx_contas_receber_abertas ON contas_receber (empresa_id, status, data_vencimento);`,

		// conciliacoes_bancarias
		`
CREATE TABLE IF NOT EXISTS conciliacoes_bancarias (
    id UUID PRIMARY KEY,
    empresa_id UUID NOT NULL,
    conta_id VARCHAR(40) NOT NULL,
    banco VARCHAR(10),
    data_inicio DATE,
    data_fim DATE,
    hash_arquivo CHAR(64) NOT NULL,

    created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
);
`,

		// conciliacao_itens
		`
CREATE TABLE IF NOT EXISTS conciliacao_itens (
    id BIGSERIAL PRIMARY KEY,
    conciliacao_id UUID NOT NULL,
    empresa_id UUID NOT NULL,
    conta_id VARCHAR(40) NOT NULL,
    fitid VARCHAR(255) NOT NULL,
    data_lancamento DATE NOT NULL,
    valor NUMERIC(15,2) NOT NULL,
    tipo VARCHAR(6) NOT NULL,
    tipo_declarado VARCHAR(20),
    nome VARCHAR(255),
    memo VARCHAR(255),
    categoria VARCHAR(30),
    movimentacao_id UUID,

    CONSTRAINT uk_conciliacao_itens_fitid UNIQUE (empresa_id, conta_id, fitid),
    CONSTRAINT fk_conciliacao_itens_conciliacao
        FOREIGN KEY (conciliacao_id) REFERENCES conciliacoes_bancarias(id)
        ON DELETE CASCADE
);
`,

		// movimentacoes_financeiras
		`
CREATE TABLE IF NOT EXISTS movimentacoes_financeiras (
    id UUID PRIMARY KEY,
    empresa_id UUID NOT NULL,
    conta_id VARCHAR(40) NOT NULL,
    tipo VARCHAR(6) NOT NULL,
    valor NUMERIC(15,2) NOT NULL,
    data DATE NOT NULL,
    descricao VARCHAR(255),
    categoria VARCHAR(30),
    fitid VARCHAR(255),
    conta_pagar_id UUID REFERENCES contas_pagar(id),
    conta_receber_id UUID REFERENCES contas_receber(id),

    created_at TIMESTAMP(3) NOT NULL DEFAULT CURRENT_TIMESTAMP(3)
);
`,
		`CREATE INDEX IF NOT EXISTS idx_movimentacoes_financeiras_conta ON movimentacoes_financeiras (empresa_id, conta_id, data);`,
	}

	for i, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("erro executando migration %d: %w", i+1, err)
		}
	}

	return nil
}
