// driftline is the command-line front end for the persona simulator.
package main

import (
	"fmt"
	"os"

	"github.com/goblincore/driftline"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose    bool
	configPath string
	dbPath     string
	personaDir string
	noStore    bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "driftline",
	Short: "driftline - practice therapeutic conversations with simulated clients",
	Long: `driftline simulates mental-health clients whose emotional state drifts with
every student response and every change in their life context.

Replies come from a hosted model, a remote API, or the built-in template system,
whichever is available. Every reply carries a teaching note on the student's message.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// loadConfig merges the config file, environment and command-line overrides.
func loadConfig() (driftline.Config, error) {
	cfg, err := driftline.LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	if personaDir != "" {
		cfg.PersonaDir = personaDir
	}
	if noStore {
		cfg.DisableStore = true
	}
	cfg.Logger = logger
	cfg.ApplyDefaults()
	return cfg, nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "driftline.yaml", "Config file (optional)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite transcript path (or set DRIFTLINE_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&personaDir, "personas", "", "Persona directory (default: ./personas)")
	rootCmd.PersistentFlags().BoolVar(&noStore, "no-store", false, "Do not persist transcripts")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(personasCmd)
	rootCmd.AddCommand(scenariosCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
