package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newParsersCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parsers",
		Short: "List the registered parsers in selection order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TOOL\tVERSIONS\tEXTENSIONS\tTHRESHOLD\tDESCRIPTION")
			for _, m := range a.registry.List() {
				versions := strings.Join(m.SupportedVersions, ",")
				if versions == "" {
					versions = "any"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%s\n",
					m.ToolName, versions, strings.Join(m.FileExtensions, ","), m.Threshold(), m.Description)
			}
			return tw.Flush()
		},
	}
}
