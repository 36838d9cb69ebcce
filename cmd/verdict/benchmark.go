package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/verdict/pkg/cli"
	"mercator-hq/verdict/pkg/table"
)

var benchmarkFlags struct {
	tablePath string
	count     int
	omitRatio float64
	workers   int
	seed      uint64
	format    string
}

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Measure solve latency and bulk throughput",
	Long: `Benchmark a decision table with generated requests.

Requests are generated from the table's request fields. Values are drawn
near the literals the rows compare against, so most rows get exercised,
and a share of fields is omitted to exercise defaults. The same requests
are solved one by one and then as a single bulk batch.

Metrics Collected:
  - Single solve latency percentiles (p50, p95, p99, max)
  - Single and bulk throughput (solves/sec)
  - Error and fallback counts

Examples:
  # 10000 requests
  verdict benchmark --table tables/health.yaml --count 10000

  # Omit half of the fields, 4 bulk workers, JSON report
  verdict benchmark --table tables/health.yaml --omit-ratio 0.5 --workers 4 --format json`,
	RunE: runBenchmark,
}

func init() {
	rootCmd.AddCommand(benchmarkCmd)

	benchmarkCmd.Flags().StringVarP(&benchmarkFlags.tablePath, "table", "t", "", "table file (required)")
	benchmarkCmd.Flags().IntVarP(&benchmarkFlags.count, "count", "n", 10000, "number of generated requests")
	benchmarkCmd.Flags().Float64Var(&benchmarkFlags.omitRatio, "omit-ratio", 0.1, "probability of omitting each field")
	benchmarkCmd.Flags().IntVarP(&benchmarkFlags.workers, "workers", "w", 0, "bulk workers (default: engine.bulk_workers or GOMAXPROCS)")
	benchmarkCmd.Flags().Uint64Var(&benchmarkFlags.seed, "seed", 1, "random seed for request generation")
	benchmarkCmd.Flags().StringVar(&benchmarkFlags.format, "format", "text", "output format: text, json")
}

// BenchmarkResult summarizes one benchmark run.
type BenchmarkResult struct {
	Requests   int           `json:"requests"`
	Errors     int           `json:"errors"`
	Fallbacks  int           `json:"fallbacks"`
	P50        time.Duration `json:"p50"`
	P95        time.Duration `json:"p95"`
	P99        time.Duration `json:"p99"`
	Max        time.Duration `json:"max"`
	Single     time.Duration `json:"single_total"`
	Bulk       time.Duration `json:"bulk_total"`
	SingleRate float64       `json:"single_per_second"`
	BulkRate   float64       `json:"bulk_per_second"`
}

// TableHeader implements cli.Tabular.
func (r *BenchmarkResult) TableHeader() []string {
	return []string{"Metric", "Value"}
}

// TableRows implements cli.Tabular.
func (r *BenchmarkResult) TableRows() [][]string {
	return [][]string{
		{"Requests", fmt.Sprint(r.Requests)},
		{"Errors", fmt.Sprint(r.Errors)},
		{"Fallbacks", fmt.Sprint(r.Fallbacks)},
		{"p50", r.P50.String()},
		{"p95", r.P95.String()},
		{"p99", r.P99.String()},
		{"max", r.Max.String()},
		{"Single solves/sec", fmt.Sprintf("%.0f", r.SingleRate)},
		{"Bulk solves/sec", fmt.Sprintf("%.0f", r.BulkRate)},
	}
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	if benchmarkFlags.count <= 0 {
		return cli.NewConfigError("count", "must be positive")
	}
	if benchmarkFlags.omitRatio < 0 || benchmarkFlags.omitRatio > 1 {
		return cli.NewConfigError("omit-ratio", "must be between 0 and 1")
	}
	format, err := cli.ParseOutputFormat(benchmarkFlags.format)
	if err != nil || (format != cli.FormatText && format != cli.FormatJSON) {
		return cli.NewConfigError("format", fmt.Sprintf("unknown format %q (expected text or json)", benchmarkFlags.format))
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	lt, err := openTable(ctx, benchmarkFlags.tablePath, false, benchmarkFlags.workers)
	if err != nil {
		return cli.NewCommandError("benchmark", err)
	}
	defer lt.Close()

	t := lt.rule.Table
	gen := newRequestGenerator(t, benchmarkFlags.omitRatio, benchmarkFlags.seed)
	requests := make([]table.Request, benchmarkFlags.count)
	for i := range requests {
		requests[i] = gen.next()
	}

	result := benchmarkTable(ctx, t, requests)

	if format == cli.FormatText {
		fmt.Fprintf(out(cmd), "Benchmark: %s (%d requests)\n\n", t.Name(), result.Requests)
	}
	return cli.NewFormatter(format).FormatTo(out(cmd), result)
}

// benchmarkTable solves requests one by one and then as one bulk batch.
func benchmarkTable(ctx context.Context, t *table.Table, requests []table.Request) *BenchmarkResult {
	result := &BenchmarkResult{Requests: len(requests)}
	latencies := make([]time.Duration, 0, len(requests))

	start := time.Now()
	for _, req := range requests {
		if ctx.Err() != nil {
			break
		}
		s := time.Now()
		d, err := t.Solve(ctx, req)
		latencies = append(latencies, time.Since(s))
		switch {
		case err != nil:
			result.Errors++
		case d.Fallback:
			result.Fallbacks++
		}
	}
	result.Single = time.Since(start)

	start = time.Now()
	t.BulkSolve(ctx, requests)
	result.Bulk = time.Since(start)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	result.P50 = percentile(latencies, 0.50)
	result.P95 = percentile(latencies, 0.95)
	result.P99 = percentile(latencies, 0.99)
	if n := len(latencies); n > 0 {
		result.Max = latencies[n-1]
	}
	if result.Single > 0 {
		result.SingleRate = float64(len(latencies)) / result.Single.Seconds()
	}
	if result.Bulk > 0 {
		result.BulkRate = float64(len(requests)) / result.Bulk.Seconds()
	}
	return result
}

// percentile returns the p-th percentile of sorted durations.
func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// requestGenerator draws random requests for a table.
type requestGenerator struct {
	fields    []table.Field
	literals  map[string][]any
	omitRatio float64
	rng       *rand.Rand
}

func newRequestGenerator(t *table.Table, omitRatio float64, seed uint64) *requestGenerator {
	literals := make(map[string][]any)
	for _, row := range t.Rows() {
		for _, p := range row.Predicates {
			for _, op := range p.Operands() {
				if !op.IsRef() {
					literals[p.Field()] = append(literals[p.Field()], op.Literal())
				}
			}
		}
	}
	return &requestGenerator{
		fields:    t.Registry().Inputs(),
		literals:  literals,
		omitRatio: omitRatio,
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (g *requestGenerator) next() table.Request {
	req := make(table.Request, len(g.fields))
	for _, f := range g.fields {
		if g.rng.Float64() < g.omitRatio {
			continue
		}
		req[f.Name] = g.value(f)
	}
	return req
}

func (g *requestGenerator) value(f table.Field) any {
	lits := g.literals[f.Name]
	switch f.Type {
	case table.TypeBoolean:
		return g.rng.IntN(2) == 1
	case table.TypeNumber:
		if len(lits) > 0 && g.rng.IntN(4) > 0 {
			if n, ok := lits[g.rng.IntN(len(lits))].(float64); ok {
				// Land on, just below or just above the boundary.
				return n + float64(g.rng.IntN(3)-1)
			}
		}
		return float64(g.rng.IntN(1000))
	default:
		if len(lits) > 0 && g.rng.IntN(4) > 0 {
			if s, ok := lits[g.rng.IntN(len(lits))].(string); ok {
				return s
			}
		}
		return fmt.Sprintf("value-%d", g.rng.IntN(100))
	}
}
