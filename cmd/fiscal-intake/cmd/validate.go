package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"fiscal-intake/internal/fiscal"
	"fiscal-intake/internal/report"
	"fiscal-intake/internal/validation"
)

var (
	validateXSD      string
	validateXLSX     string
	validateCorrect  bool
	validateMaxBytes int64
)

var errRejected = errors.New("documento reprovado na validação")

var validateCmd = &cobra.Command{
	Use:   "validate <arquivo.xml>",
	Short: "Valida uma NF-e/NFS-e sem gravar nada",
	Long: `Extrai e valida o documento localmente, sem banco. A checagem de
duplicidade só acontece na importação.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringVar(&validateXSD, "xsd", "", "schema XSD principal (opcional)")
	validateCmd.Flags().StringVar(&validateXLSX, "xlsx", "", "grava o relatório em planilha neste caminho")
	validateCmd.Flags().BoolVar(&validateCorrect, "corrigir", false, "aplica a correção de totais como na importação")
	validateCmd.Flags().Int64Var(&validateMaxBytes, "max-bytes", 5<<20, "tamanho máximo do XML")
}

func runValidate(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("erro lendo %s: %w", args[0], err)
	}

	inv, err := fiscal.Extract(data, fiscal.Options{XSDPath: validateXSD, MaxBytes: validateMaxBytes})
	if err != nil {
		return err
	}

	rep, err := validation.New(nil, "").Validate(cmd.Context(), inv, validation.Options{CorrectTotals: validateCorrect})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s série %s (%s)\n", inv.Kind, inv.Number, inv.Series, inv.Supplier.LegalName)
	printFindings(out, "ERRO", rep.Errors)
	printFindings(out, "AVISO", rep.Warnings)
	printFindings(out, "CORREÇÃO", rep.Corrections)
	fmt.Fprintln(out, rep.Summary())

	if validateXLSX != "" {
		if err := writeFile(validateXLSX, func(w io.Writer) error {
			return report.WriteValidation(w, inv, rep)
		}); err != nil {
			return err
		}
		fmt.Fprintf(out, "relatório gravado em %s\n", validateXLSX)
	}

	if !rep.IsValid() {
		return errRejected
	}
	return nil
}

func printFindings(out io.Writer, label string, list []validation.Finding) {
	for _, f := range list {
		fmt.Fprintf(out, "%-9s %-14s %s\n", label, f.Field, f)
	}
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("erro criando %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
