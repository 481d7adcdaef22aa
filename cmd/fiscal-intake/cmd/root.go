package cmd

import (
	"context"
	"database/sql"

	"github.com/spf13/cobra"

	"fiscal-intake/internal/app"
	"fiscal-intake/internal/config"
	"fiscal-intake/internal/importer"
	"fiscal-intake/internal/logx"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "fiscal-intake",
	Short: "Entrada de documentos fiscais e extratos bancários",
	Long: `fiscal-intake valida e importa NF-e/NFS-e e extratos OFX pela linha de comando.

Exemplos:
  fiscal-intake validate nota.xml
  fiscal-intake validate nota.xml --xlsx relatorio.xlsx
  fiscal-intake import-xml notas/*.xml
  fiscal-intake import-ofx extrato.ofx --account 12345-6
  fiscal-intake migrate --auto`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logx.Init(logLevel)
	},
}

// Execute roda o comando escolhido; chamado por main.main.
func Execute() error {
	return rootCmd.Execute()
}

func SetVersion(v string) {
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "nível de log: debug, info, warn, error")
}

// openService carrega a configuração e monta o serviço sobre o banco. O
// chamador fecha o *sql.DB.
func openService(ctx context.Context) (*config.Config, *sql.DB, *importer.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	db, err := app.OpenDB(ctx, cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, db, app.NewService(cfg, db), nil
}
