package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	serrors "github.com/exploopio/scanlens/pkg/errors"
)

type detectOutput struct {
	File       string          `json:"file"`
	Format     any             `json:"format"`
	Selected   string          `json:"selected,omitempty"`
	Degraded   bool            `json:"degraded,omitempty"`
	Candidates []candidateInfo `json:"candidates"`
}

type candidateInfo struct {
	Tool       string  `json:"tool"`
	Confidence float64 `json:"confidence"`
	Threshold  float64 `json:"threshold"`
}

func newDetectCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "detect FILE",
		Short: "Show the detected format and the ranked parser candidates",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			preview, err := readPreview(path, a.cfg.Parsing.PreviewSize)
			if err != nil {
				return err
			}
			name := filepath.Base(path)

			info := a.factory.DetectFormat(preview, name)
			out := detectOutput{File: name, Format: info}
			for _, c := range a.registry.CompatibleParsers(preview, name) {
				out.Candidates = append(out.Candidates, candidateInfo{
					Tool:       c.Metadata.ToolName,
					Confidence: c.Confidence,
					Threshold:  c.Metadata.Threshold(),
				})
			}
			sel, err := a.factory.GetParser(preview, name, "")
			switch {
			case err == nil:
				out.Selected = sel.Tool
				out.Degraded = sel.Degraded
			case !serrors.IsNoParser(err):
				return err
			}

			w := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(w)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			fmt.Fprintf(w, "%s: %s (confidence %.2f, encoding %s)\n", name, info.FormatType, info.Confidence, info.Encoding)
			for _, warning := range info.Warnings {
				fmt.Fprintf(w, "  warning: %s\n", warning)
			}
			if len(out.Candidates) == 0 {
				fmt.Fprintln(w, "  no compatible parser")
				return nil
			}
			for _, c := range out.Candidates {
				marker := " "
				if c.Tool == out.Selected {
					marker = "*"
				}
				fmt.Fprintf(w, "  %s %-12s %.2f (threshold %.2f)\n", marker, c.Tool, c.Confidence, c.Threshold)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func readPreview(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	return buf[:read], nil
}
