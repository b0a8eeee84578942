package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/andresmejia3/moodscan/internal/utils"
)

var (
	resetDB    bool
	resetFiles bool
	resetYes   bool
)

var resetCmd = &cobra.Command{
	Use:         "reset",
	Short:       "Reset system state (Database, Reports)",
	Long:        "Clears all data. By default, it resets everything. Use flags to clear specific components.",
	Annotations: map[string]string{needsDB: "true"},
	Run: func(cmd *cobra.Command, args []string) {
		// If no flags are set, default to clearing EVERYTHING
		if !resetDB && !resetFiles {
			resetDB = true
			resetFiles = true
		}

		reader := bufio.NewReader(cmd.InOrStdin())

		if resetDB {
			if resetYes || confirm(reader, "⚠️  Are you sure you want to DROP all database tables?") {
				fmt.Println("🗑️  Clearing Database...")
				if err := DB.Reset(cmd.Context()); err != nil {
					utils.Die("Failed to reset database", err, nil)
				}
			}
		}

		if resetFiles {
			if resetYes || confirm(reader, fmt.Sprintf("⚠️  Are you sure you want to delete all reports in %s?", Cfg.Paths.Outputs)) {
				fmt.Println("🗑️  Clearing Report Files...")
				removeDir(Cfg.Paths.Outputs)
			}
		}

		fmt.Println("✨ System Reset Complete.")
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetDB, "tables", false, "Drop PostgreSQL tables")
	resetCmd.Flags().BoolVar(&resetFiles, "files", false, "Clear generated report files")
	resetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Do not ask for confirmation")
	rootCmd.AddCommand(resetCmd)
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}

func removeDir(path string) {
	if err := os.RemoveAll(path); err != nil {
		fmt.Fprintf(os.Stderr, "⚠️  Failed to remove %s: %v\n", path, err)
	}
}
