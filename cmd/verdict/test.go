package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/verdict/pkg/cli"
	"mercator-hq/verdict/pkg/ruletest"
)

var testFlags struct {
	tablePath string
	testsFile string
	live      bool
	format    string
}

var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Run rule tests",
	Long: `Run the test fixtures of a decision table.

Tests come from the table document's tests section, or from a separate
suite file given with --tests. The command exits with status 2 when any
test fails.

Test Suite Format (YAML):
  tests:
    - name: young applicant gets the basic plan
      request:
        age: 22
        income: 18000
      expect:
        plan: basic
      critical: true
    - name: nobody matches without a fallback
      request:
        age: 200
      expect_no_match: true

Examples:
  # Run the document's own tests
  verdict test --table tables/health.yaml

  # Run a separate suite and write a JUnit report for CI
  verdict test --table tables/health.yaml --tests health_tests.yaml --format junit`,
	RunE: runTests,
}

func init() {
	rootCmd.AddCommand(testCmd)

	testCmd.Flags().StringVarP(&testFlags.tablePath, "table", "t", "", "table file (required)")
	testCmd.Flags().StringVar(&testFlags.testsFile, "tests", "", "test suite file (default: the table's tests)")
	testCmd.Flags().BoolVar(&testFlags.live, "live-values", false, "resolve Dynamic Values from the configured store")
	testCmd.Flags().StringVarP(&testFlags.format, "format", "f", "text", "output format (text, json, junit)")
}

func runTests(cmd *cobra.Command, args []string) error {
	format, err := cli.ParseOutputFormat(testFlags.format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}
	if format == cli.FormatCSV {
		return cli.NewConfigError("format", "csv is not supported for test reports")
	}

	ctx := context.Background()
	lt, err := openTable(ctx, testFlags.tablePath, testFlags.live, 0)
	if err != nil {
		return cli.NewCommandError("test", err)
	}
	defer lt.Close()

	var report *ruletest.Report
	if testFlags.testsFile != "" {
		tests, err := ruletest.LoadSuite(testFlags.testsFile)
		if err != nil {
			return cli.NewCommandError("test", err)
		}
		report = ruletest.Run(ctx, lt.rule.Table, tests)
	} else {
		report, err = lt.ws.Test(ctx, lt.rule.Slug)
		if err != nil {
			return cli.NewCommandError("test", err)
		}
	}

	w := out(cmd)
	switch format {
	case cli.FormatText:
		if len(report.Results) == 0 {
			fmt.Fprintf(w, "No tests found for %s\n", lt.rule.Slug)
			return nil
		}
		report.Write(w)
	case cli.FormatJUnit:
		f := &cli.JUnitFormatter{Suite: lt.rule.Slug}
		if err := f.FormatTo(w, report); err != nil {
			return cli.NewCommandError("test", err)
		}
	default:
		if err := cli.NewFormatter(format).FormatTo(w, report); err != nil {
			return cli.NewCommandError("test", err)
		}
	}

	if !report.OK() {
		return cli.NewCommandError("test", fmt.Errorf("%w: %d of %d", cli.ErrTestsFailed, report.Failed, len(report.Results)))
	}
	return nil
}
