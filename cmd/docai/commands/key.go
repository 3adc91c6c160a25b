package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"docai/internal/config"
	"docai/internal/contentkey"
	"docai/internal/domain"
)

var keyCmd = &cobra.Command{
	Use:   "key <filename>",
	Short: "Print the content key for a filename and configuration",
	Args:  cobra.ExactArgs(1),
	RunE:  runKey,
}

func init() {
	rootCmd.AddCommand(keyCmd)

	flags := keyCmd.Flags()
	flags.String("parser", string(domain.DefaultParserVariant), "parser variant: pymupdf, llama_parse")
	flags.String("model", string(domain.DefaultExtractorModel), "entity extractor model id")
	flags.String("strategy", "", "identity strategy: filename, content (default from DOCAI_IDENTITY_STRATEGY)")
	flags.String("file", "", "path to the document bytes (required for the content strategy)")
}

func runKey(cmd *cobra.Command, args []string) error {
	parser, _ := cmd.Flags().GetString("parser")
	model, _ := cmd.Flags().GetString("model")
	strategy, _ := cmd.Flags().GetString("strategy")
	path, _ := cmd.Flags().GetString("file")

	if strategy == "" {
		strategy = os.Getenv("DOCAI_IDENTITY_STRATEGY")
	}
	if strategy == "" {
		strategy = config.IdentityFilename
	}

	key, err := computeKey(args[0], parser, model, strategy, path)
	if err != nil {
		logError("%v", err)
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
	return err
}

func computeKey(filename, parser, model, strategy, path string) (string, error) {
	cfg, err := domain.NewProcessingConfig(parser, model)
	if err != nil {
		return "", err
	}
	addresser, err := contentkey.NewAddresser(strategy)
	if err != nil {
		return "", err
	}

	var content []byte
	if addresser.Strategy() == config.IdentityContent {
		if path == "" {
			return "", fmt.Errorf("--file is required for the %s strategy", config.IdentityContent)
		}
		content, err = os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
	}
	return addresser.Key(cfg, filepath.Base(filename), content), nil
}
