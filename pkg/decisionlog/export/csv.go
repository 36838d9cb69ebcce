package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"mercator-hq/verdict/pkg/decisionlog"
)

// CSVExporter exports records as CSV. Request and response are written as
// JSON objects in a single column each.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

// Header is the CSV header row.
var Header = []string{
	"id", "slug", "version", "row_id", "fallback", "status",
	"request", "request_hash", "response", "error",
	"duration_us", "solved_at", "batch_id",
}

// Export writes records in CSV format.
func (e *CSVExporter) Export(ctx context.Context, records []*decisionlog.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Header); err != nil {
			return decisionlog.NewExportError("csv", len(records), err)
		}
	}

	for _, record := range records {
		if err := writer.Write(recordToRow(record)); err != nil {
			return decisionlog.NewExportError("csv", len(records), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return decisionlog.NewExportError("csv", len(records), err)
	}
	return nil
}

// ExportStream writes records from a channel in CSV format, flushing every
// 100 records.
func (e *CSVExporter) ExportStream(ctx context.Context, recordsCh <-chan *decisionlog.Record, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(Header); err != nil {
			return decisionlog.NewExportError("csv", 0, err)
		}
	}

	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return decisionlog.NewExportError("csv", recordCount, err)
				}
				return nil
			}

			if err := writer.Write(recordToRow(record)); err != nil {
				return decisionlog.NewExportError("csv", recordCount, err)
			}
			recordCount++

			if recordCount%100 == 0 {
				writer.Flush()
				if err := writer.Error(); err != nil {
					return decisionlog.NewExportError("csv", recordCount, err)
				}
			}
		}
	}
}

// recordToRow converts a record to a CSV row in Header order.
func recordToRow(record *decisionlog.Record) []string {
	formatJSON := func(v any) string {
		if v == nil {
			return ""
		}
		data, _ := json.Marshal(v)
		return string(data)
	}

	var response any
	if record.Response != nil {
		response = record.Response
	}

	return []string{
		record.ID,
		record.Slug,
		strconv.Itoa(record.Version),
		record.RowID,
		strconv.FormatBool(record.Fallback),
		record.Status(),
		formatJSON(record.Request),
		record.RequestHash,
		formatJSON(response),
		record.Error,
		strconv.FormatInt(record.Duration.Microseconds(), 10),
		record.SolvedAt.UTC().Format(time.RFC3339Nano),
		record.BatchID,
	}
}
