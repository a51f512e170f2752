package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buildflow/invoicepipe/internal/compare"
	"github.com/buildflow/invoicepipe/internal/model"
)

var processMethod string

var processCmd = &cobra.Command{
	Use:   "process <invoice-id>",
	Short: "Run extraction on a stored invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		invoiceID := args[0]
		switch model.ProcessingMethod(processMethod) {
		case model.MethodTraditional, model.MethodVision:
			res, err := env.Pipeline.Process(ctx, invoiceID, model.ProcessingMethod(processMethod))
			if err != nil {
				return err
			}
			return printJSON(res)
		case model.MethodBoth:
			trad, vis, err := env.Pipeline.ProcessBoth(ctx, invoiceID)
			if err != nil {
				return err
			}
			return printJSON(compare.Report{
				InvoiceID:   invoiceID,
				Traditional: trad,
				Vision:      vis,
				Comparison:  compare.Compare(trad, vis),
			})
		default:
			return eris.Errorf("invalid method %q, want traditional, vision, or both", processMethod)
		}
	},
}

var uploadBuilderID string

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Register an invoice file for processing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		src := args[0]
		data, err := os.ReadFile(src)
		if err != nil {
			return eris.Wrapf(err, "read %s", src)
		}

		dest := filepath.Join(cfg.Upload.Dir, filepath.Base(src))
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return eris.Wrapf(err, "copy to %s", dest)
		}

		inv := &model.Invoice{
			BuilderID: uploadBuilderID,
			Filename:  filepath.Base(src),
			FilePath:  dest,
		}
		if err := env.Store.CreateInvoice(ctx, inv); err != nil {
			return err
		}
		zap.L().Info("invoice registered", zap.String("invoice_id", inv.ID))
		return printJSON(inv)
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	processCmd.Flags().StringVar(&processMethod, "method", "both", "extraction method: traditional, vision, or both")
	uploadCmd.Flags().StringVar(&uploadBuilderID, "builder", "", "builder id that owns the invoice (required)")
	uploadCmd.MarkFlagRequired("builder") //nolint:errcheck
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(uploadCmd)
}
