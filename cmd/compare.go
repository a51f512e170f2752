package main

import (
	"github.com/spf13/cobra"

	"github.com/buildflow/invoicepipe/internal/compare"
	"github.com/buildflow/invoicepipe/internal/model"
)

var compareCmd = &cobra.Command{
	Use:   "compare <invoice-id>",
	Short: "Print the side-by-side reconciliation report for an invoice",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		invoiceID := args[0]
		inv, err := st.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		trad, err := st.LatestResultByMethod(ctx, invoiceID, model.MethodTraditional)
		if err != nil {
			return err
		}
		vis, err := st.LatestResultByMethod(ctx, invoiceID, model.MethodVision)
		if err != nil {
			return err
		}

		return printJSON(compare.Report{
			InvoiceID:   invoiceID,
			Filename:    inv.Filename,
			Traditional: trad,
			Vision:      vis,
			Comparison:  compare.Compare(trad, vis),
		})
	},
}

func init() {
	rootCmd.AddCommand(compareCmd)
}
