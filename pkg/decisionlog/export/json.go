package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/verdict/pkg/decisionlog"
)

// JSONExporter exports records as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes records as a JSON array. No records produce "[]".
func (e *JSONExporter) Export(ctx context.Context, records []*decisionlog.Record, w io.Writer) error {
	if records == nil {
		records = []*decisionlog.Record{}
	}

	var (
		data []byte
		err  error
	)
	if e.Pretty {
		data, err = json.MarshalIndent(records, "", "  ")
	} else {
		data, err = json.Marshal(records)
	}
	if err != nil {
		return decisionlog.NewExportError("json", len(records), err)
	}

	if _, err := w.Write(data); err != nil {
		return decisionlog.NewExportError("json", len(records), err)
	}
	return nil
}

// ExportStream writes records from a channel as a JSON array.
func (e *JSONExporter) ExportStream(ctx context.Context, recordsCh <-chan *decisionlog.Record, w io.Writer) error {
	if _, err := io.WriteString(w, "["); err != nil {
		return decisionlog.NewExportError("json", 0, err)
	}

	recordCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case record, ok := <-recordsCh:
			if !ok {
				if _, err := io.WriteString(w, "]"); err != nil {
					return decisionlog.NewExportError("json", recordCount, err)
				}
				return nil
			}

			if recordCount > 0 {
				sep := ","
				if e.Pretty {
					sep = ",\n"
				}
				if _, err := io.WriteString(w, sep); err != nil {
					return decisionlog.NewExportError("json", recordCount, err)
				}
			}

			data, err := e.serializeRecord(record)
			if err != nil {
				return decisionlog.NewExportError("json", recordCount, err)
			}
			if _, err := w.Write(data); err != nil {
				return decisionlog.NewExportError("json", recordCount, err)
			}
			recordCount++
		}
	}
}

func (e *JSONExporter) serializeRecord(record *decisionlog.Record) ([]byte, error) {
	if e.Pretty {
		return json.MarshalIndent(record, "  ", "  ")
	}
	return json.Marshal(record)
}
