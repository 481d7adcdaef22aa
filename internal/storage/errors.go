package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound   = errors.New("registro não encontrado")
	ErrDuplicate  = errors.New("registro duplicado")
	ErrForeignKey = errors.New("registro referenciado não existe ou está em uso")
	ErrPermission = errors.New("sem permissão para a operação")
)

// Códigos SQLSTATE tratados.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeInsufficientPriv    = "42501"
)

// classify traduz o erro do driver para um dos erros do pacote, mantendo o
// original na cadeia.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%s: %w (%s): %w", op, ErrDuplicate, pgErr.ConstraintName, err)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w (%s): %w", op, ErrForeignKey, pgErr.ConstraintName, err)
		case codeInsufficientPriv:
			return fmt.Errorf("%s: %w: %w", op, ErrPermission, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeUniqueViolation
	}
	return false
}

// UserMessage é o texto mostrado ao usuário para um erro de persistência.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDuplicate):
		return "Registro já existe."
	case errors.Is(err, ErrForeignKey):
		return "Registro relacionado não encontrado ou em uso por outro cadastro."
	case errors.Is(err, ErrPermission):
		return "Sem permissão para esta operação."
	case errors.Is(err, ErrNotFound):
		return "Registro não encontrado."
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return "Registro já existe."
		case codeForeignKeyViolation:
			return "Registro relacionado não encontrado ou em uso por outro cadastro."
		case codeInsufficientPriv:
			return "Sem permissão para esta operação."
		}
	}
	return "Erro ao acessar o banco de dados."
}
