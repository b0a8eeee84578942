package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/moodscan/internal/config"
	"github.com/andresmejia3/moodscan/internal/store"
)

var (
	// DB is the database connection, opened only for commands that need it
	DB *store.Store
	// Cfg is the effective configuration for the running command
	Cfg *config.Config
	// Log is the shared structured logger
	Log *logrus.Logger

	cfgFile string
)

// Version is the application version.
const Version = "0.1.0"

// needsDB marks commands that open the database in PersistentPreRunE.
const needsDB = "needs-db"

// flagKeys maps command-line flags to config keys. Only flags present on the
// running command are bound.
var flagKeys = map[string]string{
	"db":           "database.url",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"max-duration": "analysis.max_duration",
	"nth-frame":    "analysis.nth_frame",
	"engines":      "analysis.engines",
	"noise-floor":  "analysis.noise_floor",
	"outputs":      "paths.outputs",
}

var rootCmd = &cobra.Command{
	Use:     "moodscan",
	Short:   "Multimodal emotion analysis for short video clips",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// .env is optional; anything else is worth reporting
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		var bindings []config.Flag
		for name, key := range flagKeys {
			if f := cmd.Flags().Lookup(name); f != nil {
				bindings = append(bindings, config.Flag{Key: key, Flag: f})
			}
		}
		var err error
		Cfg, err = config.Load(cfgFile, bindings...)
		if err != nil {
			return err
		}
		Log, err = newLogger(Cfg.Log)
		if err != nil {
			return err
		}
		if Cfg.File != "" {
			Log.WithField("file", Cfg.File).Debug("Loaded configuration")
		}

		if !commandNeedsDB(cmd) {
			return nil
		}
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), Cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if DB != nil {
			// Use Background here because the main context might be cancelled already (due to Ctrl+C)
			// and we still need to send the "Close" command to the DB.
			DB.Close(context.Background())
			DB = nil
		}
	},
}

// commandNeedsDB reports whether cmd is annotated as needing the database, or
// asked for it with --save.
func commandNeedsDB(cmd *cobra.Command) bool {
	if cmd.Annotations[needsDB] == "true" {
		return true
	}
	if f := cmd.Flags().Lookup("save"); f != nil && f.Value.String() == "true" {
		return true
	}
	return false
}

func newLogger(c config.Log) (*logrus.Logger, error) {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	l.SetLevel(level)
	if c.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return l, nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: config/$CONFIG_ENV/config.yaml if present)")
	rootCmd.PersistentFlags().String("db", "", "PostgreSQL connection string (default: postgres://localhost:5432/moodscan)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "Log format (text, json)")
}
