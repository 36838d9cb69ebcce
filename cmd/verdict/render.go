package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/verdict/pkg/cli"
	"mercator-hq/verdict/pkg/tablefile"
)

var renderFlags struct {
	tablePath string
	format    string
}

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print a table as a grid or normalized YAML",
	Long: `Print a decision table.

The grid format draws one column per request and response field and one
line per row. The yaml format prints the table document as it would be
published, with row IDs and defaults filled in.

Examples:
  verdict render --table tables/health.yaml
  verdict render --table tables/health.yaml --format yaml`,
	RunE: runRender,
}

func init() {
	rootCmd.AddCommand(renderCmd)

	renderCmd.Flags().StringVarP(&renderFlags.tablePath, "table", "t", "", "table file (required)")
	renderCmd.Flags().StringVarP(&renderFlags.format, "format", "f", "grid", "output format (grid, yaml)")
}

func runRender(cmd *cobra.Command, args []string) error {
	if renderFlags.format != "grid" && renderFlags.format != "yaml" {
		return cli.NewConfigError("format", fmt.Sprintf("unknown format %q (expected grid or yaml)", renderFlags.format))
	}

	ctx := context.Background()
	lt, err := openTable(ctx, renderFlags.tablePath, false, 0)
	if err != nil {
		return cli.NewCommandError("render", err)
	}
	defer lt.Close()

	w := out(cmd)
	if renderFlags.format == "grid" {
		fmt.Fprintln(w, lt.rule.Table.Render())
		return nil
	}

	values, err := lt.ws.Values(ctx)
	if err != nil {
		return cli.NewCommandError("render", err)
	}
	seeds := make(map[string]any, len(values))
	for _, v := range values {
		seeds[v.Name] = v.Value
	}

	doc := tablefile.FromTable(lt.rule.Table, tablefile.Meta{
		Slug:              lt.rule.Slug,
		Folder:            lt.rule.Folder,
		ContinuousTesting: lt.rule.ContinuousTesting,
		Values:            seeds,
	}, lt.rule.Tests)
	doc.Name = lt.rule.Name
	doc.Description = lt.rule.Description
	data, err := doc.Marshal()
	if err != nil {
		return cli.NewCommandError("render", err)
	}
	_, err = w.Write(data)
	return err
}
