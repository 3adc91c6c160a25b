package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"docai/internal/app"
	"docai/internal/domain"
	"docai/internal/service"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file>...",
	Short: "Run the extraction pipeline on local PDF files",
	Long: `Run the full pipeline on each file: compute its key, reuse a stored
record when one exists, otherwise parse, extract and persist.

Files are processed concurrently. Results are printed in argument order;
a failure on one file does not stop the others.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)

	flags := extractCmd.Flags()
	flags.String("parser", string(domain.DefaultParserVariant), "parser variant: pymupdf, llama_parse")
	flags.String("model", string(domain.DefaultExtractorModel), "entity extractor model id")
	flags.IntP("concurrency", "c", 2, "files processed at once")
	flags.StringP("output", "o", "json", "output format: json, yaml")
}

// fileResult is the printed outcome for one input file.
type fileResult struct {
	File   string                 `json:"file"`
	TaskID string                 `json:"task_id,omitempty"`
	Cached bool                   `json:"cached"`
	Record *domain.ShippingRecord `json:"record,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	parser, _ := cmd.Flags().GetString("parser")
	model, _ := cmd.Flags().GetString("model")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	output, _ := cmd.Flags().GetString("output")

	output = strings.ToLower(output)
	if output != "json" && output != "yaml" {
		err := fmt.Errorf("unknown output format %q", output)
		logError("%v", err)
		return err
	}
	procCfg, err := domain.NewProcessingConfig(parser, model)
	if err != nil {
		logError("%v", err)
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		logError("%v", err)
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		logError("%v", err)
		return err
	}
	defer a.Close()

	results := extractFiles(ctx, a.Extraction, args, procCfg, concurrency, os.ReadFile)
	if err := writeResults(cmd.OutOrStdout(), output, results); err != nil {
		return err
	}
	if n := countFailed(results); n > 0 {
		err := fmt.Errorf("%d of %d files failed", n, len(results))
		logError("%v", err)
		return err
	}
	return nil
}

// extractFiles processes every path with at most concurrency in flight.
// results[i] always belongs to paths[i].
func extractFiles(
	ctx context.Context,
	svc service.ExtractionService,
	paths []string,
	procCfg domain.ProcessingConfig,
	concurrency int,
	readFile func(string) ([]byte, error),
) []fileResult {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]fileResult, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = extractOne(gctx, svc, path, procCfg, readFile)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func extractOne(
	ctx context.Context,
	svc service.ExtractionService,
	path string,
	procCfg domain.ProcessingConfig,
	readFile func(string) ([]byte, error),
) fileResult {
	res := fileResult{File: path}
	content, err := readFile(path)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	out, err := svc.Process(ctx, &service.ProcessInput{
		Filename: filepath.Base(path),
		Content:  content,
		Config:   procCfg,
	})
	if err != nil {
		res.Error = err.Error()
		return res
	}
	res.TaskID = out.TaskID
	res.Cached = out.Cached()
	res.Record = out.Record
	return res
}

func writeResults(w io.Writer, format string, results []fileResult) error {
	if format == "yaml" {
		// Round trip through JSON so field names match the HTTP API.
		raw, err := json.Marshal(results)
		if err != nil {
			return err
		}
		var generic []any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(generic); err != nil {
			return err
		}
		return enc.Close()
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func countFailed(results []fileResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}
