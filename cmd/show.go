package cmd

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/moodscan/internal/report"
	"github.com/andresmejia3/moodscan/internal/store"
	"github.com/andresmejia3/moodscan/internal/utils"
)

var (
	showFormat string
	showDelete bool
)

var showCmd = &cobra.Command{
	Use:         "show <analysis-id>",
	Short:       "Show a saved analysis",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{needsDB: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		id, err := uuid.Parse(args[0])
		if err != nil {
			utils.Die("Invalid analysis ID", err, nil)
		}

		if showDelete {
			if err := DB.DeleteAnalysis(cmd.Context(), id); err != nil {
				utils.Die("Failed to delete analysis", err, nil)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "🗑️  Deleted analysis %s\n", id)
			return
		}

		res, err := DB.GetAnalysis(cmd.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			utils.Die("No such analysis", err, nil)
		}
		if err != nil {
			utils.Die("Failed to load analysis", err, nil)
		}

		if showFormat == "table" {
			printResult(cmd.OutOrStdout(), res)
			return
		}
		f, err := report.ParseFormat(showFormat)
		if err != nil {
			utils.Die("Invalid format", err, nil)
		}
		if err := report.Encode(cmd.OutOrStdout(), f, res); err != nil {
			utils.Die("Failed to encode analysis", err, nil)
		}
	},
}

func init() {
	showCmd.Flags().StringVarP(&showFormat, "format", "f", "table", "Output format (table, json, yaml)")
	showCmd.Flags().BoolVar(&showDelete, "delete", false, "Delete the analysis instead of showing it")
	rootCmd.AddCommand(showCmd)
}
