package cmd

import (
	"bufio"
	"database/sql"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"fiscal-intake/internal/config"
	"fiscal-intake/internal/migrations"
)

var (
	migrateAuto  bool
	migrateForce bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Cria o banco da aplicação se preciso e aplica as migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().BoolVar(&migrateAuto, "auto", false, "modo não interativo; nunca dropa banco existente")
	migrateCmd.Flags().BoolVar(&migrateForce, "force", false, "dropa e recria o banco existente (pede confirmação)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	adminDB, err := sql.Open("pgx", cfg.AdminDSN())
	if err != nil {
		return fmt.Errorf("erro conectando ao Postgres (admin): %w", err)
	}
	defer adminDB.Close()
	if err := adminDB.PingContext(cmd.Context()); err != nil {
		return fmt.Errorf("erro no ping ao Postgres (admin): %w", err)
	}

	in := bufio.NewReader(cmd.InOrStdin())
	ok, err := migrations.Setup(adminDB, cfg.DBName, migrations.SetupOptions{
		Auto:  migrateAuto,
		Force: migrateForce,
		Confirm: func(prompt string) bool {
			fmt.Fprint(cmd.OutOrStdout(), prompt)
			line, _ := in.ReadString('\n')
			line = strings.TrimSpace(strings.ToLower(line))
			return line == "s" || line == "sim" || line == "y" || line == "yes"
		},
	})
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(cmd.OutOrStdout(), "Operação cancelada. Nenhuma alteração foi feita.")
		return nil
	}

	appDB, err := sql.Open("pgx", cfg.AppDSN())
	if err != nil {
		return fmt.Errorf("erro conectando ao banco da aplicação: %w", err)
	}
	defer appDB.Close()

	if err := migrations.Run(appDB); err != nil {
		return fmt.Errorf("erro executando migrations: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Migrations aplicadas com sucesso.")
	return nil
}
