package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"fiscal-intake/internal/importer"
	"fiscal-intake/internal/ofx"
	"fiscal-intake/internal/report"
)

var importXMLCmd = &cobra.Command{
	Use:   "import-xml <arquivo.xml>...",
	Short: "Importa NF-e/NFS-e e cria as notas de entrada",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImportXML,
}

var (
	ofxAccount string
	ofxXLSX    string
	ofxDryRun  bool
)

var importOFXCmd = &cobra.Command{
	Use:   "import-ofx <arquivo.ofx>",
	Short: "Importa um extrato OFX e sugere as baixas",
	Args:  cobra.ExactArgs(1),
	RunE:  runImportOFX,
}

func init() {
	rootCmd.AddCommand(importXMLCmd, importOFXCmd)

	importOFXCmd.Flags().StringVar(&ofxAccount, "account", "", "conta bancária (padrão: FISCAL_BANK_ACCOUNT_ID ou a do extrato)")
	importOFXCmd.Flags().StringVar(&ofxXLSX, "xlsx", "", "grava o relatório em planilha neste caminho")
	importOFXCmd.Flags().BoolVar(&ofxDryRun, "dry-run", false, "só analisa, sem gravar")
}

func runImportXML(cmd *cobra.Command, args []string) error {
	_, db, svc, err := openService(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	out := cmd.OutOrStdout()
	var failed int
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s: %v\n", path, err)
			continue
		}

		res, err := svc.ImportXML(cmd.Context(), data, importer.SourceCLI)
		switch {
		case errors.Is(err, importer.ErrDuplicateDocument):
			fmt.Fprintf(out, "%s: já importado\n", path)
		case err != nil:
			failed++
			fmt.Fprintf(out, "%s: %v\n", path, err)
		default:
			fmt.Fprintf(out, "%s: nota %s criada, %d item(ns), %d pendente(s) de vínculo; %s\n",
				path, res.Note.ID, len(res.Note.Items), res.Note.PendingLinks(), res.Report.Summary())
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d de %d arquivo(s) não importado(s)", failed, len(args))
	}
	return nil
}

func runImportOFX(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("erro lendo %s: %w", args[0], err)
	}

	cfg, db, svc, err := openService(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	account := ofxAccount
	if account == "" {
		account = cfg.BankAccountID
	}

	var rep *ofx.Report
	if ofxDryRun {
		rep, err = svc.AnalyzeOFX(cmd.Context(), account, data)
	} else {
		rep, err = svc.ImportOFX(cmd.Context(), account, data)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "conta %s: %d novo(s), %d duplicado(s), %d já conciliado(s), %d rejeitado(s), %d sugestão(ões)\n",
		rep.Statement.AccountID, rep.New, rep.Duplicated, rep.Reconciled, rep.Rejected, rep.Suggested)
	for _, t := range rep.Txs {
		if t.Match == nil {
			continue
		}
		fmt.Fprintf(out, "  %s %s -> título %s (%s)\n", t.FITID, t.Amount.StringFixed(2), t.Match.ID, t.Match.Description)
	}

	if ofxXLSX != "" {
		if err := writeFile(ofxXLSX, func(w io.Writer) error {
			return report.WriteOFX(w, rep)
		}); err != nil {
			return err
		}
		fmt.Fprintf(out, "relatório gravado em %s\n", ofxXLSX)
	}
	return nil
}
