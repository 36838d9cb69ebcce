package cli

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"mercator-hq/verdict/pkg/ruletest"
)

// OutputFormat represents the output format for command results.
type OutputFormat string

const (
	// FormatText is plain text output (default).
	FormatText OutputFormat = "text"
	// FormatJSON is JSON output.
	FormatJSON OutputFormat = "json"
	// FormatCSV is CSV output.
	FormatCSV OutputFormat = "csv"
	// FormatJUnit is JUnit XML output (for test results).
	FormatJUnit OutputFormat = "junit"
)

// ErrUnsupportedOutput is returned when a value cannot be written in the
// requested format.
var ErrUnsupportedOutput = errors.New("value not supported by output format")

// ParseOutputFormat validates a --format flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case FormatText, FormatJSON, FormatCSV, FormatJUnit:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected text, json, csv or junit)", s)
	}
}

// Tabular is implemented by results that print as a table.
type Tabular interface {
	TableHeader() []string
	TableRows() [][]string
}

// Table is a ready-made Tabular value.
type Table struct {
	Title  string
	Header []string
	Rows   [][]string
}

// TableHeader implements Tabular.
func (t Table) TableHeader() []string { return t.Header }

// TableRows implements Tabular.
func (t Table) TableRows() [][]string { return t.Rows }

// Formatter formats command output.
type Formatter interface {
	Format(data interface{}) ([]byte, error)
	FormatTo(w io.Writer, data interface{}) error
}

// TextFormatter formats output as plain text. Tabular values are drawn as
// a table.
type TextFormatter struct{}

// Format converts data to text format.
func (f *TextFormatter) Format(data interface{}) ([]byte, error) {
	if tab, ok := data.(Tabular); ok {
		return []byte(renderTable(tab) + "\n"), nil
	}
	return []byte(fmt.Sprintf("%v\n", data)), nil
}

// FormatTo writes data to writer in text format.
func (f *TextFormatter) FormatTo(w io.Writer, data interface{}) error {
	out, err := f.Format(data)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func renderTable(tab Tabular) string {
	tw := table.NewWriter()
	if t, ok := tab.(Table); ok && t.Title != "" {
		tw.SetTitle(t.Title)
	}

	header := make(table.Row, 0, len(tab.TableHeader()))
	for _, h := range tab.TableHeader() {
		header = append(header, h)
	}
	tw.AppendHeader(header)

	for _, r := range tab.TableRows() {
		row := make(table.Row, 0, len(r))
		for _, cell := range r {
			row = append(row, cell)
		}
		tw.AppendRow(row)
	}

	style := table.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)
	return tw.Render()
}

// JSONFormatter formats output as JSON.
type JSONFormatter struct {
	Indent bool
}

// Format converts data to JSON format.
func (f *JSONFormatter) Format(data interface{}) ([]byte, error) {
	if f.Indent {
		return json.MarshalIndent(data, "", "  ")
	}
	return json.Marshal(data)
}

// FormatTo writes data to writer in JSON format.
func (f *JSONFormatter) FormatTo(w io.Writer, data interface{}) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// CSVFormatter formats Tabular output as CSV.
type CSVFormatter struct {
	// OmitHeader skips the header line.
	OmitHeader bool
}

// Format converts data to CSV format.
func (f *CSVFormatter) Format(data interface{}) ([]byte, error) {
	var buf bytesWriter
	if err := f.FormatTo(&buf, data); err != nil {
		return nil, err
	}
	return buf, nil
}

// FormatTo writes data to writer in CSV format.
func (f *CSVFormatter) FormatTo(w io.Writer, data interface{}) error {
	tab, ok := data.(Tabular)
	if !ok {
		return fmt.Errorf("%w: csv needs a table, got %T", ErrUnsupportedOutput, data)
	}

	csvWriter := csv.NewWriter(w)
	if !f.OmitHeader {
		if err := csvWriter.Write(tab.TableHeader()); err != nil {
			return err
		}
	}
	if err := csvWriter.WriteAll(tab.TableRows()); err != nil {
		return err
	}
	return csvWriter.Error()
}

// JUnitFormatter writes rule test reports as a JUnit test suite.
type JUnitFormatter struct {
	// Suite names the test suite, usually the rule slug.
	Suite string
}

// Format converts a *ruletest.Report to JUnit XML.
func (f *JUnitFormatter) Format(data interface{}) ([]byte, error) {
	var buf bytesWriter
	if err := f.FormatTo(&buf, data); err != nil {
		return nil, err
	}
	return buf, nil
}

// FormatTo writes a *ruletest.Report to writer as JUnit XML.
func (f *JUnitFormatter) FormatTo(w io.Writer, data interface{}) error {
	report, ok := data.(*ruletest.Report)
	if !ok {
		return fmt.Errorf("%w: junit needs a test report, got %T", ErrUnsupportedOutput, data)
	}
	return writeJUnit(w, f.Suite, report)
}

// NewFormatter creates a new formatter for the specified format.
func NewFormatter(format OutputFormat) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatCSV:
		return &CSVFormatter{}
	case FormatJUnit:
		return &JUnitFormatter{Suite: "verdict"}
	default:
		return &TextFormatter{}
	}
}

type bytesWriter []byte

func (b *bytesWriter) Write(p []byte) (int, error) {
	*b = append(*b, p...)
	return len(p), nil
}
