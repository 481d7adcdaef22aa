package migrations

import (
	"database/sql"
	"fmt"
	"log/slog"
)

// SetupOptions controla a criação do banco da aplicação.
//
// Auto é o modo não interativo (Ansible): cria o banco se não existir e nunca
// dropa. Force só vale fora do Auto e dropa/recria o banco existente depois
// de Confirm.
type SetupOptions struct {
	Auto    bool
	Force   bool
	Confirm func(prompt string) bool
}

// Setup garante que o banco name existe, conectado no banco admin. Devolve
// false quando o usuário cancelou; nesse caso as migrations não devem rodar.
func Setup(adminDB *sql.DB, name string, opts SetupOptions) (bool, error) {
	confirm := opts.Confirm
	if confirm == nil {
		confirm = func(string) bool { return false }
	}

	exists, err := databaseExists(adminDB, name)
	if err != nil {
		return false, fmt.Errorf("erro verificando existência do banco %q: %w", name, err)
	}

	if exists {
		switch {
		case opts.Auto:
			slog.Info("banco já existe; modo auto não faz drop, só aplica migrations", "banco", name)
			return true, nil
		case opts.Force:
			slog.Warn("banco já existe e --force foi usado: todos os dados serão APAGADOS", "banco", name)
			if !confirm(fmt.Sprintf("Tem certeza que deseja DROPAR e RECRIAR o banco %q? [s/N] ", name)) {
				return false, nil
			}
			if err := dropDatabase(adminDB, name); err != nil {
				return false, err
			}
			slog.Info("banco dropado", "banco", name)
			if err := createDatabase(adminDB, name); err != nil {
				return false, fmt.Errorf("erro recriando banco %q: %w", name, err)
			}
			slog.Info("banco recriado", "banco", name)
			return true, nil
		}
		slog.Info("banco já existe; nenhum drop será feito", "banco", name)
		return true, nil
	}

	if !opts.Auto && !confirm(fmt.Sprintf("Banco de dados %q não existe. Deseja criá-lo agora? [s/N] ", name)) {
		return false, nil
	}
	if err := createDatabase(adminDB, name); err != nil {
		return false, fmt.Errorf("erro criando banco %q: %w", name, err)
	}
	slog.Info("banco criado", "banco", name)
	return true, nil
}

func databaseExists(db *sql.DB, name string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1);`
	if err := db.QueryRow(query, name).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func createDatabase(db *sql.DB, name string) error {
	// UTF8 e template0 pra não herdar lixo do template1
	stmt := fmt.Sprintf(
		`CREATE DATABASE "%s" WITH TEMPLATE=template0 ENCODING 'UTF8';`,
		name,
	)
	_, err := db.Exec(stmt)
	return err
}

func dropDatabase(db *sql.DB, name string) error {
	// encerra conexões ativas no banco alvo
	killStmt := `
SELECT pg_terminate_backend(pid)
FROM pg_stat_activity
WHERE datname = $1
  AND pid <> pg_backend_pid();
`
	if _, err := db.Exec(killStmt, name); err != nil {
		return fmt.Errorf("erro terminando conexões do banco %q: %w", name, err)
	}

	// DROP DATABASE não aceita parâmetro como identificador
	stmt := fmt.Sprintf(`DROP DATABASE "%s";`, name)
	if _, err := db.Exec(stmt); err != nil {
		return fmt.Errorf("erro executando DROP DATABASE %q: %w", name, err)
	}
	return nil
}
