package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/moodscan/internal/store"
	"github.com/andresmejia3/moodscan/internal/utils"
)

var listLimit int

var listCmd = &cobra.Command{
	Use:         "list",
	Short:       "List saved analyses, newest first",
	Annotations: map[string]string{needsDB: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		summaries, err := DB.ListAnalyses(cmd.Context(), listLimit)
		if err != nil {
			utils.Die("Failed to list analyses", err, nil)
		}
		printSummaries(cmd.OutOrStdout(), summaries)
	},
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "l", 20, "Maximum number of analyses to show (0 for all)")
	rootCmd.AddCommand(listCmd)
}

func printSummaries(out io.Writer, summaries []store.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(out, "No analyses found in database.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tDOMINANT\tWARNINGS\tCREATED\tVIDEO")
	fmt.Fprintln(w, "--\t--------\t--------\t-------\t-----")

	for _, s := range summaries {
		dominant := string(s.Dominant)
		if dominant == "" {
			dominant = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", s.ID, dominant, s.Warnings, s.CreatedAt.Local().Format("2006-01-02 15:04"), s.VideoPath)
	}
	w.Flush()
}
