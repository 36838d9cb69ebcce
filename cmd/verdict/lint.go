package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/verdict/pkg/cli"
	"mercator-hq/verdict/pkg/config"
	"mercator-hq/verdict/pkg/dynamic"
	"mercator-hq/verdict/pkg/tablefile"
	"mercator-hq/verdict/pkg/workspace"
)

var lintFlags struct {
	tablePath string
	dir       string
	strict    bool
	format    string
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Validate table files",
	Long: `Check table files for errors without solving anything.

Each file is parsed, built and validated in isolation. Errors include YAML
problems, unknown field types, operators the field type does not support,
misplaced fallback rows and references to values the document does not
declare. Warnings flag tables without a fallback row or without tests;
--strict turns warnings into failures.

Examples:
  # Lint one table
  verdict lint --table tables/health.yaml

  # Lint a directory in CI
  verdict lint --dir tables/ --strict --format json`,
	RunE: lintTables,
}

func init() {
	rootCmd.AddCommand(lintCmd)

	lintCmd.Flags().StringVarP(&lintFlags.tablePath, "table", "t", "", "table file to lint")
	lintCmd.Flags().StringVarP(&lintFlags.dir, "dir", "d", "", "directory of table files to lint")
	lintCmd.Flags().BoolVar(&lintFlags.strict, "strict", false, "treat warnings as errors")
	lintCmd.Flags().StringVarP(&lintFlags.format, "format", "f", "text", "output format (text, json)")
}

// LintResult is the lint outcome of one file.
type LintResult struct {
	File     string   `json:"file"`
	Slug     string   `json:"slug,omitempty"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *LintResult) failed(strict bool) bool {
	return len(r.Errors) > 0 || (strict && len(r.Warnings) > 0)
}

func lintTables(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(lintFlags.format)
	if err != nil || (format != cli.FormatText && format != cli.FormatJSON) {
		return cli.NewConfigError("format", fmt.Sprintf("unknown format %q (expected text or json)", lintFlags.format))
	}

	var files []string
	switch {
	case lintFlags.tablePath != "" && lintFlags.dir != "":
		return cli.NewConfigError("table", "use either --table or --dir, not both")
	case lintFlags.tablePath != "":
		files = []string{lintFlags.tablePath}
	case lintFlags.dir != "":
		files, err = tableFiles(lintFlags.dir)
		if err != nil {
			return cli.NewCommandError("lint", err)
		}
		if len(files) == 0 {
			return cli.NewCommandError("lint", fmt.Errorf("no table files in %s", lintFlags.dir))
		}
	default:
		return cli.NewConfigError("table", "--table or --dir is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := newLogger(cfg, true); err != nil {
		return err
	}

	ctx := context.Background()
	results := make([]*LintResult, 0, len(files))
	slugs := make(map[string]string)
	for _, file := range files {
		res := lintFile(ctx, cfg, file)
		if res.Slug != "" {
			if prev, dup := slugs[res.Slug]; dup {
				res.Errors = append(res.Errors, fmt.Sprintf("slug %q already used by %s", res.Slug, prev))
			} else {
				slugs[res.Slug] = file
			}
		}
		results = append(results, res)
	}

	failed := 0
	for _, res := range results {
		if res.failed(lintFlags.strict) {
			failed++
		}
	}

	w := out(cmd)
	if format == cli.FormatJSON {
		if err := cli.NewFormatter(format).FormatTo(w, results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			if res.failed(lintFlags.strict) {
				fmt.Fprintf(w, "✗ %s\n", res.File)
			} else {
				fmt.Fprintf(w, "✓ %s\n", res.File)
			}
			for _, e := range res.Errors {
				fmt.Fprintf(w, "  error: %s\n", e)
			}
			for _, warn := range res.Warnings {
				fmt.Fprintf(w, "  warning: %s\n", warn)
			}
		}
		fmt.Fprintf(w, "\n%d files checked, %d failed\n", len(results), failed)
	}

	if failed > 0 {
		return cli.NewCommandError("lint", fmt.Errorf("%d of %d files failed", failed, len(results)))
	}
	return nil
}

// lintFile builds and validates one document in a workspace of its own.
func lintFile(ctx context.Context, cfg *config.Config, path string) *LintResult {
	res := &LintResult{File: path}

	doc, err := tablefile.LoadFile(path)
	if err != nil {
		res.Errors = append(res.Errors, err.Error())
		return res
	}
	res.Slug = doc.Slug

	store := dynamic.NewMemoryStore(nil)
	defer store.Close()
	ws := workspace.New(store, workspace.WithSettings(workspace.SettingsFromConfig(cfg.Engine)))
	rule, err := ws.Import(ctx, doc)
	if err != nil {
		for _, line := range strings.Split(err.Error(), "\n") {
			res.Errors = append(res.Errors, line)
		}
		return res
	}

	hasFallback := false
	for _, row := range rule.Table.Rows() {
		if row.IsFallback() {
			hasFallback = true
		}
	}
	if !hasFallback {
		res.Warnings = append(res.Warnings, "table has no fallback row; unmatched requests fail")
	}
	if len(rule.Tests) == 0 {
		res.Warnings = append(res.Warnings, "table has no tests")
	} else if report, err := ws.Test(ctx, rule.Slug); err == nil {
		for _, f := range report.Failures() {
			res.Errors = append(res.Errors, fmt.Sprintf("test %q fails", f.Test.Name))
		}
	}
	return res
}

// tableFiles lists the YAML files under dir in lexical order.
func tableFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}
