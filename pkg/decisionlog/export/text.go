package export

import (
	"context"
	"encoding/json"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"mercator-hq/verdict/pkg/decisionlog"
)

// TextExporter renders records as a grid for terminals.
type TextExporter struct {
	// MaxColumnWidth truncates request and response columns.
	MaxColumnWidth int
}

// NewTextExporter creates a text exporter with 48 character wide payload
// columns.
func NewTextExporter() *TextExporter {
	return &TextExporter{MaxColumnWidth: 48}
}

// Export writes records as a grid followed by a count line.
func (e *TextExporter) Export(ctx context.Context, records []*decisionlog.Record, w io.Writer) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.AppendHeader(table.Row{"SOLVED AT", "SLUG", "V", "ROW", "STATUS", "DURATION", "REQUEST", "RESPONSE / ERROR"})

	for _, r := range records {
		outcome := r.Error
		if outcome == "" {
			data, _ := json.Marshal(r.Response)
			outcome = string(data)
		}
		request, _ := json.Marshal(r.Request)
		tw.AppendRow(table.Row{
			r.SolvedAt.Local().Format("2006-01-02 15:04:05"),
			r.Slug,
			r.Version,
			r.RowID,
			r.Status(),
			r.Duration.String(),
			string(request),
			outcome,
		})
	}

	tw.AppendFooter(table.Row{"", "", "", "", "", "", "records", len(records)})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 7, WidthMax: e.MaxColumnWidth},
		{Number: 8, WidthMax: e.MaxColumnWidth},
	})

	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	style.Format.Footer = text.FormatDefault
	tw.SetStyle(style)

	tw.Render()
	return nil
}
