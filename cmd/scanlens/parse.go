package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/exploopio/scanlens/pkg/core"
	"github.com/exploopio/scanlens/pkg/factory"
	"github.com/exploopio/scanlens/pkg/options"
)

// fileResult is the outcome for one input file.
type fileResult struct {
	File string `json:"file"`
	*factory.Result
	Error string `json:"error,omitempty"`
}

func newParseCmd(a *app) *cobra.Command {
	var (
		tool        string
		asJSON      bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "parse FILE...",
		Short: "Parse scan reports and print their findings",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("concurrency") {
				concurrency = a.cfg.Parsing.Concurrency
			}
			if concurrency < 1 {
				return fmt.Errorf("--concurrency must be at least 1")
			}

			stop := a.serveMetrics()
			defer stop()

			results := parseFiles(cmd, a.factory, args, tool, concurrency)

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(results); err != nil {
					return err
				}
			} else {
				printResults(out, results)
			}

			failed := 0
			for _, r := range results {
				if r.Error != "" || (r.Result != nil && r.Status == core.StatusFailed) {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files could not be parsed", failed, len(results))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tool, "tool", "", "preferred parser, used when it is confident enough")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of files parsed at once (default from config)")
	return cmd
}

// parseFiles parses every file with at most concurrency in flight. Results
// keep the order of files; one file failing never stops the others.
func parseFiles(cmd *cobra.Command, f *factory.Factory, files []string, tool string, concurrency int) []fileResult {
	ctx := cmd.Context()
	results := make([]fileResult, len(files))

	var g errgroup.Group
	g.SetLimit(concurrency)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			results[i].File = file
			res, err := f.ParseFile(ctx, file, options.WithPreferredTool(tool))
			if err != nil {
				results[i].Error = err.Error()
				return nil
			}
			results[i].Result = res
			if res.Err != nil {
				results[i].Error = res.Err.Error()
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func printResults(w io.Writer, results []fileResult) {
	for _, r := range results {
		name := filepath.Base(r.File)
		if r.Result == nil {
			fmt.Fprintf(w, "%s: error: %s\n", name, r.Error)
			continue
		}

		fmt.Fprintf(w, "%s: %s (confidence %.2f), %s, %d findings in %s\n",
			name, r.Tool, r.Selection.Confidence, r.Status, len(r.Findings), r.Elapsed.Round(time.Millisecond))
		if r.Selection.Degraded {
			fmt.Fprintf(w, "  warning: %s\n", r.Selection.Warning)
		}
		if r.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", r.Error)
		}
		for _, f := range r.Findings {
			loc := f.FilePath
			if loc == "" {
				loc = f.ResourceName
			}
			if f.LineNumber > 0 {
				loc = fmt.Sprintf("%s:%d", loc, f.LineNumber)
			}
			if loc != "" {
				loc = "  (" + loc + ")"
			}
			fmt.Fprintf(w, "  %-8s %s%s\n", f.Severity, f.Title, loc)
		}
	}
}
