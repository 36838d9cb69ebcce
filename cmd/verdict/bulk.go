package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/verdict/pkg/cli"
	"mercator-hq/verdict/pkg/table"
)

var bulkFlags struct {
	tablePath    string
	requestsFile string
	outputFile   string
	workers      int
	chunkSize    int
	live         bool
	progress     bool
}

var bulkCmd = &cobra.Command{
	Use:   "bulk",
	Short: "Solve many requests in parallel",
	Long: `Solve a file of requests against a table in parallel.

The requests file is either a JSON array of request objects or JSON Lines
with one request per line. Results are written as JSON Lines in request
order, one object per request with either a decision or an error.

Examples:
  # Solve every request with 8 workers
  verdict bulk --table tables/health.yaml --requests requests.jsonl --workers 8

  # Write results to a file and report progress per chunk of 10000
  verdict bulk --table tables/health.yaml --requests requests.jsonl \
    --output results.jsonl --chunk-size 10000 --progress`,
	RunE: runBulk,
}

func init() {
	rootCmd.AddCommand(bulkCmd)

	bulkCmd.Flags().StringVarP(&bulkFlags.tablePath, "table", "t", "", "table file (required)")
	bulkCmd.Flags().StringVar(&bulkFlags.requestsFile, "requests", "", "JSON array or JSON Lines file of requests (required)")
	bulkCmd.Flags().StringVarP(&bulkFlags.outputFile, "output", "o", "", "write results to file instead of stdout")
	bulkCmd.Flags().IntVarP(&bulkFlags.workers, "workers", "w", 0, "concurrent solves (default: engine.bulk_workers or GOMAXPROCS)")
	bulkCmd.Flags().IntVar(&bulkFlags.chunkSize, "chunk-size", 0, "solve requests in batches of this size (0 = one batch)")
	bulkCmd.Flags().BoolVar(&bulkFlags.live, "live-values", false, "resolve Dynamic Values from the configured store")
	bulkCmd.Flags().BoolVar(&bulkFlags.progress, "progress", false, "report progress on stderr")
}

// bulkLine is one line of bulk output.
type bulkLine struct {
	Index    int             `json:"index"`
	BatchID  string          `json:"batch_id"`
	Decision *table.Decision `json:"decision,omitempty"`
	Error    string          `json:"error,omitempty"`
}

func runBulk(cmd *cobra.Command, args []string) error {
	if bulkFlags.requestsFile == "" {
		return cli.NewConfigError("requests", "--requests is required")
	}
	if bulkFlags.chunkSize < 0 {
		return cli.NewConfigError("chunk-size", "must not be negative")
	}

	requests, err := readRequests(bulkFlags.requestsFile)
	if err != nil {
		return cli.NewCommandError("bulk", err)
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	lt, err := openTable(ctx, bulkFlags.tablePath, bulkFlags.live, bulkFlags.workers)
	if err != nil {
		return cli.NewCommandError("bulk", err)
	}
	defer lt.Close()

	w := out(cmd)
	if bulkFlags.outputFile != "" {
		f, err := os.Create(bulkFlags.outputFile)
		if err != nil {
			return cli.NewCommandError("bulk", err)
		}
		defer f.Close()
		w = f
	}
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	var progress cli.ProgressReporter = cli.NoProgress{}
	if bulkFlags.progress {
		progress = cli.NewProgressReporter(os.Stderr, "requests")
	}

	chunk := bulkFlags.chunkSize
	if chunk == 0 {
		chunk = len(requests)
	}

	start := time.Now()
	failed := 0
	progress.Start(int64(len(requests)))
	for offset := 0; offset < len(requests); offset += chunk {
		end := min(offset+chunk, len(requests))
		batch, err := lt.ws.BulkSolve(ctx, lt.rule.Slug, requests[offset:end])
		if err != nil {
			progress.Error(err)
			return cli.NewCommandError("bulk", err)
		}
		for i, res := range batch.Results {
			line := bulkLine{Index: offset + i, BatchID: batch.ID, Decision: res.Decision}
			if res.Err != nil {
				line.Error = res.Err.Error()
				failed++
			}
			if err := enc.Encode(line); err != nil {
				return cli.NewCommandError("bulk", err)
			}
		}
		progress.Update(int64(end))
		if ctx.Err() != nil {
			break
		}
	}
	progress.Finish()

	if err := bw.Flush(); err != nil {
		return cli.NewCommandError("bulk", err)
	}

	fmt.Fprintf(os.Stderr, "✓ %d solved, ✗ %d failed in %v\n",
		len(requests)-failed, failed, time.Since(start).Round(time.Millisecond))
	return ctx.Err()
}

// readRequests reads a JSON array or JSON Lines file of requests.
func readRequests(path string) ([]table.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseRequests(data)
}

func parseRequests(data []byte) ([]table.Request, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var requests []table.Request
		if err := json.Unmarshal(trimmed, &requests); err != nil {
			return nil, fmt.Errorf("invalid requests array: %w", err)
		}
		return requests, nil
	}

	var requests []table.Request
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	for {
		var req table.Request
		err := dec.Decode(&req)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid request %d: %w", len(requests)+1, err)
		}
		requests = append(requests, req)
	}
	return requests, nil
}
