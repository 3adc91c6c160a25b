// Package commands implements the CLI commands for docai.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"docai/internal/config"
	"docai/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:   "docai",
	Short: "Extract bill of lading data from PDF documents",
	Long: `docai runs the bill of lading extraction pipeline against local files.

Configuration is read from DOCAI_ environment variables, the same ones the
server uses, so keys and stored records are shared with the HTTP service.

Examples:
  # Extract two documents with the defaults (pymupdf, gpt-4o-mini)
  docai extract bol-1.pdf bol-2.pdf

  # Use the layout-aware parser and print YAML
  docai extract scans/*.pdf --parser llama_parse --model gpt-4o -o yaml

  # Compute the key an upload would be stored under
  docai key bol-1.pdf --model llama3.1`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the environment configuration and applies CLI overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if lvl, _ := cmd.Flags().GetString("log-level"); lvl != "" {
		cfg.Log.Level = lvl
	}
	logger.SetupWithWriter(cfg.Log, os.Stderr)
	return cfg, nil
}

// logError prints an error message to stderr.
func logError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
