package main

import (
	"encoding/json"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/buildflow/invoicepipe/internal/model"
)

var (
	seedBuilderID string
	seedVendors   string
	seedCostCodes string
)

// seedVendor is the fixture shape for a subcontractor entry.
type seedVendor struct {
	Name        string         `json:"name"`
	ContactInfo map[string]any `json:"contact_info,omitempty"`
}

// seedCostCode is the fixture shape for a cost code entry.
type seedCostCode struct {
	Code        string `json:"code"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
	Trade       string `json:"trade,omitempty"`
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load vendor and cost code fixtures for a builder",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		var vendors []seedVendor
		if err := readFixture(seedVendors, &vendors); err != nil {
			return err
		}
		for _, v := range vendors {
			sub := &model.Subcontractor{
				BuilderID:   seedBuilderID,
				Name:        v.Name,
				ContactInfo: v.ContactInfo,
			}
			if err := st.CreateSubcontractor(ctx, sub); err != nil {
				return err
			}
		}

		var codes []seedCostCode
		if err := readFixture(seedCostCodes, &codes); err != nil {
			return err
		}
		for _, c := range codes {
			cc := &model.CostCode{
				BuilderID:   seedBuilderID,
				Code:        c.Code,
				Label:       c.Label,
				Description: c.Description,
				Trade:       c.Trade,
			}
			if err := st.CreateCostCode(ctx, cc); err != nil {
				return err
			}
		}

		zap.L().Info("fixtures loaded",
			zap.String("builder_id", seedBuilderID),
			zap.Int("vendors", len(vendors)),
			zap.Int("cost_codes", len(codes)))
		return nil
	},
}

func readFixture(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return eris.Wrapf(err, "read fixture %s", path)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return eris.Wrapf(err, "parse fixture %s", path)
	}
	return nil
}

func init() {
	seedCmd.Flags().StringVar(&seedBuilderID, "builder", "", "builder id to load fixtures for (required)")
	seedCmd.Flags().StringVar(&seedVendors, "vendors", "fixtures/vendors.json", "path to vendors fixture")
	seedCmd.Flags().StringVar(&seedCostCodes, "cost-codes", "fixtures/cost_codes.json", "path to cost codes fixture")
	seedCmd.MarkFlagRequired("builder") //nolint:errcheck
	rootCmd.AddCommand(seedCmd)
}
