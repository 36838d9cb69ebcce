package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"mercator-hq/verdict/pkg/cli"
	"mercator-hq/verdict/pkg/table"
)

var solveFlags struct {
	tablePath   string
	request     string
	requestFile string
	live        bool
	format      string
}

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve one request against a table",
	Long: `Solve a single request against a decision table file.

The request is a JSON object keyed by request field name. Omitted fields
take their declared defaults.

Examples:
  # Inline request
  verdict solve --table tables/health.yaml --request '{"age": 30, "income": 42000}'

  # Request read from a file, JSON output
  verdict solve --table tables/health.yaml --request-file req.json --format json

  # Resolve Dynamic Values from the configured store
  verdict solve --table tables/health.yaml --request '{}' --live-values`,
	RunE: runSolve,
}

func init() {
	rootCmd.AddCommand(solveCmd)

	solveCmd.Flags().StringVarP(&solveFlags.tablePath, "table", "t", "", "table file (required)")
	solveCmd.Flags().StringVarP(&solveFlags.request, "request", "r", "", "request as a JSON object")
	solveCmd.Flags().StringVar(&solveFlags.requestFile, "request-file", "", "file holding the request JSON")
	solveCmd.Flags().BoolVar(&solveFlags.live, "live-values", false, "resolve Dynamic Values from the configured store")
	solveCmd.Flags().StringVarP(&solveFlags.format, "format", "f", "text", "output format (text, json)")
}

func runSolve(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(solveFlags.format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}

	req, err := readRequest(solveFlags.request, solveFlags.requestFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	lt, err := openTable(ctx, solveFlags.tablePath, solveFlags.live, 0)
	if err != nil {
		return cli.NewCommandError("solve", err)
	}
	defer lt.Close()

	d, err := lt.ws.Solve(ctx, lt.rule.Slug, req)
	if err != nil {
		return cli.NewCommandError("solve", err)
	}

	if format != cli.FormatText {
		return cli.NewFormatter(format).FormatTo(out(cmd), d)
	}

	match := fmt.Sprintf("row %s (index %d)", d.RowID, d.RowIndex)
	if d.Fallback {
		match += ", fallback"
	}
	return cli.NewFormatter(format).FormatTo(out(cmd), responseTable(d, match))
}

// readRequest decodes a request from an inline JSON string or a file.
func readRequest(inline, path string) (table.Request, error) {
	data := []byte(inline)
	switch {
	case inline != "" && path != "":
		return nil, cli.NewConfigError("request", "use either --request or --request-file, not both")
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, cli.NewCommandError("solve", err)
		}
		data = b
	case inline == "":
		return nil, cli.NewConfigError("request", "--request or --request-file is required")
	}

	var req table.Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, cli.NewConfigError("request", fmt.Sprintf("invalid request JSON: %v", err))
	}
	if req == nil {
		return nil, cli.NewConfigError("request", "request must be a JSON object")
	}
	return req, nil
}

func responseTable(d *table.Decision, match string) cli.Table {
	keys := make([]string, 0, len(d.Response))
	for k := range d.Response {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, []string{k, formatValue(d.Response[k])})
	}
	return cli.Table{
		Title:  fmt.Sprintf("%s: %s", d.Table, match),
		Header: []string{"Field", "Value"},
		Rows:   rows,
	}
}
