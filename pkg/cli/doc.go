/*
Package cli provides the output, progress and shutdown helpers shared by the
verdict commands.

Output Formatting:

Command results are printed as text, JSON, CSV or JUnit XML. Values that
implement Tabular render as a table in text mode and as rows in CSV mode:

	formatter := cli.NewFormatter(cli.FormatText)
	if err := formatter.FormatTo(os.Stdout, cli.Table{
		Header: []string{"slug", "version"},
		Rows:   [][]string{{"health-plans", "3"}},
	}); err != nil {
		return err
	}

JUnit output is only defined for rule test reports.

Progress Reporting:

Bulk solves and benchmarks report progress while they run:

	progress := cli.NewProgressReporter(os.Stderr, "solves")
	progress.Start(int64(len(requests)))
	progress.Update(done)
	progress.Finish()

Signal Handling:

For graceful shutdown on SIGINT/SIGTERM:

	ctx, stop := cli.SetupSignalHandler()
	defer stop()
*/
package cli
