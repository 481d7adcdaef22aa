package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"fiscal-intake/internal/entrynote"
	"fiscal-intake/internal/validation"
)

// FindByAccessKey procura nota não cancelada com a mesma chave de acesso.
func (s *Store) FindByAccessKey(ctx context.Context, companyID, accessKey string) (*validation.DocumentRef, error) {
	const q = `
SELECT id, numero, COALESCE(serie, ''), COALESCE(chave_acesso, '')
FROM notas_entrada
WHERE empresa_id = $1 AND chave_acesso = $2 AND status <> 'cancelled'
LIMIT 1;
`
	return s.findDocument(ctx, q, companyID, accessKey)
}

// FindByNumberSeries procura nota não cancelada com o mesmo número e série.
func (s *Store) FindByNumberSeries(ctx context.Context, companyID, number, series string) (*validation.DocumentRef, error) {
	const q = `
SELECT id, numero, COALESCE(serie, ''), COALESCE(chave_acesso, '')
FROM notas_entrada
WHERE empresa_id = $1 AND numero = $2 AND COALESCE(serie, '') = $3 AND status <> 'cancelled'
LIMIT 1;
`
	return s.findDocument(ctx, q, companyID, number, series)
}

func (s *Store) findDocument(ctx context.Context, q string, args ...interface{}) (*validation.DocumentRef, error) {
	var ref validation.DocumentRef
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&ref.ID, &ref.Number, &ref.Series, &ref.AccessKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify(err, "erro consultando notas existentes")
	}
	return &ref, nil
}

func (s *Store) ListSuppliers(ctx context.Context, companyID string) ([]entrynote.Supplier, error) {
	const q = `
SELECT id, empresa_id, cnpj_cpf, tipo_pessoa, razao_social,
	nome_fantasia, inscricao_estadual, inscricao_municipal,
	logradouro, numero, complemento, bairro, codigo_municipio, municipio, uf, cep,
	telefone, email
FROM fornecedores
WHERE empresa_id = $1;
`
	rows, err := s.db.QueryContext(ctx, q, companyID)
	if err != nil {
		return nil, classify(err, "erro listando fornecedores")
	}
	defer rows.Close()

	var out []entrynote.Supplier
	for rows.Next() {
		var (
			sup                                      entrynote.Supplier
			personType                               string
			trade, ie, im, street, num, compl, distr sql.NullString
			cityCode, city, uf, zip, phone, email    sql.NullString
		)
		if err := rows.Scan(
			&sup.ID, &sup.CompanyID, &sup.TaxID, &personType, &sup.LegalName,
			&trade, &ie, &im,
			&street, &num, &compl, &distr, &cityCode, &city, &uf, &zip,
			&phone, &email,
		); err != nil {
			return nil, fmt.Errorf("erro lendo fornecedor: %w", err)
		}
		sup.PersonType = entrynote.PersonType(personType)
		sup.TradeName = fromNull(trade)
		sup.StateRegistration = fromNull(ie)
		sup.MunicipalRegistration = fromNull(im)
		sup.Address.Street = fromNull(street)
		sup.Address.Number = fromNull(num)
		sup.Address.Complement = fromNull(compl)
		sup.Address.District = fromNull(distr)
		sup.Address.CityCode = fromNull(cityCode)
		sup.Address.City = fromNull(city)
		sup.Address.State = fromNull(uf)
		sup.Address.ZipCode = fromNull(zip)
		sup.Phone = fromNull(phone)
		sup.Email = fromNull(email)
		out = append(out, sup)
	}
	return out, rows.Err()
}

func (s *Store) CreateSupplier(ctx context.Context, sup *entrynote.Supplier) error {
	const q = `
INSERT INTO fornecedores (
	id,
	empresa_id,
	cnpj_cpf,
	tipo_pessoa,
	razao_social,
	nome_fantasia,
	inscricao_estadual,
	inscricao_municipal,
	logradouro,
	numero,
	complemento,
	bairro,
	codigo_municipio,
	municipio,
	uf,
	cep,
	telefone,
	email
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,
	$9,$10,$11,$12,$13,$14,$15,$16,
	$17,$18
);
`
	legal := sup.LegalName
	if legal == "" {
		legal = sup.TaxID
	}
	_, err := s.db.ExecContext(ctx, q,
		sup.ID,
		sup.CompanyID,
		sup.TaxID,
		string(sup.PersonType),
		legal,
		nullableString(sup.TradeName),
		nullableString(sup.StateRegistration),
		nullableString(sup.MunicipalRegistration),
		nullableString(sup.Address.Street),
		nullableString(sup.Address.Number),
		nullableString(sup.Address.Complement),
		nullableString(sup.Address.District),
		nullableString(sup.Address.CityCode),
		nullableString(sup.Address.City),
		nullableString(sup.Address.State),
		nullableString(sup.Address.ZipCode),
		nullableString(sup.Phone),
		nullableString(sup.Email),
	)
	if isUniqueViolation(err) {
		// outro worker cadastrou o mesmo fornecedor: usa o id que ficou
		const qID = `SELECT id FROM fornecedores WHERE empresa_id = $1 AND cnpj_cpf = $2;`
		if qerr := s.db.QueryRowContext(ctx, qID, sup.CompanyID, sup.TaxID).Scan(&sup.ID); qerr != nil {
			return classify(qerr, fmt.Sprintf("erro buscando fornecedor existente (cnpj_cpf=%s)", sup.TaxID))
		}
		slog.Info("fornecedor já cadastrado em paralelo, reaproveitando", "cnpj_cpf", sup.TaxID, "fornecedor_id", sup.ID)
		return nil
	}
	if err != nil {
		return classify(err, fmt.Sprintf("erro inserindo fornecedor (cnpj_cpf=%s)", sup.TaxID))
	}
	return nil
}
