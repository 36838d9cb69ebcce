package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/verdict/pkg/cli"
	"mercator-hq/verdict/pkg/config"
	"mercator-hq/verdict/pkg/decisionlog"
	"mercator-hq/verdict/pkg/decisionlog/export"
	"mercator-hq/verdict/pkg/decisionlog/query"
	"mercator-hq/verdict/pkg/decisionlog/retention"
	"mercator-hq/verdict/pkg/decisionlog/storage"
)

var logsFlags struct {
	slug      string
	rowID     string
	batchID   string
	status    string
	since     string
	until     string
	limit     int
	offset    int
	sortBy    string
	order     string
	format    string
	output    string
	count     bool
	dryRun    bool
	archive   string
	retention int
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Query and prune the decision log",
	Long: `Query and maintain the decision log written by verdict serve.

Every solve served over HTTP is recorded with its request, response,
matched row and duration.`,
}

var logsQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query decision records",
	Long: `Query decision records.

Time bounds accept RFC 3339 timestamps or a duration counted back from now
(for example 24h). The limit is 0 for every record or between 50 and 1000.

Examples:
  # Last 100 decisions of one rule
  verdict logs query --slug health-plans

  # Fallback decisions of the last day as CSV
  verdict logs query --status fallback --since 24h --format csv --output fallbacks.csv

  # Every decision of one bulk batch, oldest first
  verdict logs query --batch-id 0190c7a4-... --limit 0 --order asc

  # Only count matching decisions
  verdict logs query --slug health-plans --status error --count`,
	RunE: queryDecisions,
}

var logsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete decisions older than the retention period",
	Long: `Delete decisions older than decision_logs.retention.days, then the
oldest decisions beyond decision_logs.retention.max_records.

Examples:
  verdict logs prune
  verdict logs prune --retention-days 7 --archive data/archives/
  verdict logs prune --dry-run`,
	RunE: pruneDecisions,
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(logsQueryCmd, logsPruneCmd)

	f := logsQueryCmd.Flags()
	f.StringVar(&logsFlags.slug, "slug", "", "filter by rule slug")
	f.StringVar(&logsFlags.rowID, "row-id", "", "filter by matched row ID")
	f.StringVar(&logsFlags.batchID, "batch-id", "", "filter by bulk batch ID")
	f.StringVar(&logsFlags.status, "status", "", "filter by status (success, error, fallback)")
	f.StringVar(&logsFlags.since, "since", "", "start time (RFC 3339 or duration ago, e.g. 24h)")
	f.StringVar(&logsFlags.until, "until", "", "end time (RFC 3339 or duration ago)")
	f.IntVar(&logsFlags.limit, "limit", query.DefaultLimit, "maximum records (0 = all, otherwise 50-1000)")
	f.IntVar(&logsFlags.offset, "offset", 0, "records to skip")
	f.StringVar(&logsFlags.sortBy, "sort-by", "solved_at", "sort field (solved_at, duration)")
	f.StringVar(&logsFlags.order, "order", "desc", "sort order (asc, desc)")
	f.StringVarP(&logsFlags.format, "format", "f", "text", "output format ("+strings.Join(export.Formats, ", ")+")")
	f.StringVarP(&logsFlags.output, "output", "o", "", "write records to file instead of stdout")
	f.BoolVar(&logsFlags.count, "count", false, "print the number of matching records only")

	logsPruneCmd.Flags().IntVar(&logsFlags.retention, "retention-days", 0, "override decision_logs.retention.days")
	logsPruneCmd.Flags().StringVar(&logsFlags.archive, "archive", "", "archive pruned records as JSON to this directory first")
	logsPruneCmd.Flags().BoolVar(&logsFlags.dryRun, "dry-run", false, "count records that would be pruned without deleting")
}

// openDecisionStorage opens the decision log backend configured in cfg.
func openDecisionStorage(cfg *config.DecisionLogConfig) (decisionlog.Storage, error) {
	switch cfg.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite":
		sc := storage.DefaultSQLiteConfig()
		sc.Path = cfg.SQLite.Path
		sc.MaxOpenConns = cfg.SQLite.MaxOpenConns
		sc.BusyTimeout = cfg.SQLite.BusyTimeout
		return storage.NewSQLiteStorage(sc)
	default:
		return nil, cli.NewConfigError("decision_logs.backend", fmt.Sprintf("unsupported backend %q", cfg.Backend))
	}
}

// retentionConfig converts the retention section for the pruner.
func retentionConfig(cfg config.RetentionConfig) *retention.Config {
	rc := retention.DefaultConfig()
	rc.RetentionDays = cfg.Days
	rc.PruneSchedule = cfg.PruneSchedule
	rc.MaxRecords = cfg.MaxRecords
	return rc
}

func queryDecisions(cmd *cobra.Command, args []string) error {
	q, err := buildQuery(time.Now())
	if err != nil {
		return cli.NewConfigError("query", err.Error())
	}

	exporter, err := export.New(logsFlags.format)
	if err != nil {
		return cli.NewConfigError("format", err.Error())
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := newLogger(cfg, true); err != nil {
		return err
	}
	store, err := openDecisionStorage(&cfg.DecisionLogs)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()
	if logsFlags.count {
		n, err := store.Count(ctx, q)
		if err != nil {
			return cli.NewCommandError("logs query", err)
		}
		fmt.Fprintln(out(cmd), n)
		return nil
	}

	w := out(cmd)
	if logsFlags.output != "" {
		f, err := os.Create(logsFlags.output)
		if err != nil {
			return cli.NewCommandError("logs query", err)
		}
		defer f.Close()
		w = f
	}

	// Unbounded queries are streamed when the exporter supports it.
	if se, ok := exporter.(streamExporter); ok && q.Limit == 0 {
		records, errCh, err := store.QueryStream(ctx, q)
		if err != nil {
			return cli.NewCommandError("logs query", err)
		}
		if err := se.ExportStream(ctx, records, w); err != nil {
			return cli.NewCommandError("logs query", err)
		}
		if err := <-errCh; err != nil {
			return cli.NewCommandError("logs query", err)
		}
		return nil
	}

	records, err := store.Query(ctx, q)
	if err != nil {
		return cli.NewCommandError("logs query", err)
	}
	if err := exporter.Export(ctx, records, w); err != nil {
		return cli.NewCommandError("logs query", err)
	}
	return nil
}

type streamExporter interface {
	ExportStream(ctx context.Context, records <-chan *decisionlog.Record, w io.Writer) error
}

// buildQuery turns the query flags into a validated query.
func buildQuery(now time.Time) (*decisionlog.Query, error) {
	q := &decisionlog.Query{
		Slug:      logsFlags.slug,
		RowID:     logsFlags.rowID,
		BatchID:   logsFlags.batchID,
		Status:    logsFlags.status,
		Limit:     logsFlags.limit,
		Offset:    logsFlags.offset,
		SortBy:    logsFlags.sortBy,
		SortOrder: logsFlags.order,
	}
	var err error
	if q.StartTime, err = parseTimeBound(logsFlags.since, now); err != nil {
		return nil, fmt.Errorf("invalid --since: %w", err)
	}
	if q.EndTime, err = parseTimeBound(logsFlags.until, now); err != nil {
		return nil, fmt.Errorf("invalid --until: %w", err)
	}
	if err := query.Validate(q); err != nil {
		return nil, err
	}
	return q, nil
}

// parseTimeBound parses an RFC 3339 timestamp or a duration before now.
func parseTimeBound(s string, now time.Time) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return &t, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return nil, fmt.Errorf("%q is neither a RFC 3339 time nor a duration", s)
	}
	t := now.Add(-d)
	return &t, nil
}

func pruneDecisions(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if _, err := newLogger(cfg, true); err != nil {
		return err
	}
	store, err := openDecisionStorage(&cfg.DecisionLogs)
	if err != nil {
		return err
	}
	defer store.Close()

	rc := retentionConfig(cfg.DecisionLogs.Retention)
	if logsFlags.retention > 0 {
		rc.RetentionDays = logsFlags.retention
	}
	if logsFlags.archive != "" {
		rc.ArchiveBeforeDelete = true
		rc.ArchivePath = logsFlags.archive
	}

	ctx := context.Background()
	if logsFlags.dryRun {
		if rc.RetentionDays <= 0 {
			fmt.Fprintln(out(cmd), "retention is disabled; nothing would be pruned by age")
			return nil
		}
		cutoff := time.Now().AddDate(0, 0, -rc.RetentionDays)
		n, err := store.Count(ctx, &decisionlog.Query{EndTime: &cutoff})
		if err != nil {
			return cli.NewCommandError("logs prune", err)
		}
		fmt.Fprintf(out(cmd), "%d decisions older than %d days would be pruned\n", n, rc.RetentionDays)
		return nil
	}

	deleted, err := retention.NewPruner(store, rc).Prune(ctx)
	if err != nil {
		return cli.NewCommandError("logs prune", err)
	}
	fmt.Fprintf(out(cmd), "✓ pruned %d decisions\n", deleted)
	return nil
}
