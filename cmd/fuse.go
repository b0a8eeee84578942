package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/moodscan/internal/emotion"
	"github.com/andresmejia3/moodscan/internal/report"
)

var fuseFormat string

var fuseCmd = &cobra.Command{
	Use:   "fuse <file>",
	Short: "Fuse per-modality distributions from a JSON or YAML file",
	Long: `Reads {facial, audio, text} emotion distributions from a file and prints the
weighted combination, using the configured weights and noise floor.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFuse(cmd.OutOrStdout(), args[0], fuseFormat)
	},
}

func init() {
	fuseCmd.Flags().Float64("noise-floor", emotion.DefaultNoiseFloor, "Drop emotions scoring below this value")
	fuseCmd.Flags().StringVarP(&fuseFormat, "format", "f", "table", "Output format (table, json, yaml)")
	rootCmd.AddCommand(fuseCmd)
}

func runFuse(w io.Writer, path, format string) error {
	in, err := report.ReadInputs(path)
	if err != nil {
		return err
	}
	combined := emotion.Fuse(in.Map(), Cfg.EmotionWeights(), Cfg.Analysis.NoiseFloor)
	ranked := combined.Ranked()

	if format != "table" {
		f, err := report.ParseFormat(format)
		if err != nil {
			return err
		}
		return report.Encode(w, f, ranked)
	}

	if len(ranked) == 0 {
		fmt.Fprintln(w, "No emotions above the noise floor.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	fmt.Fprintln(tw, "EMOTION\tCOMBINED")
	fmt.Fprintln(tw, "-------\t--------")
	for _, s := range ranked {
		fmt.Fprintf(tw, "%s\t%.4f\n", s.Label, s.Score)
	}
	return tw.Flush()
}
