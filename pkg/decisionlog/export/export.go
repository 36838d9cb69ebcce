package export

import (
	"fmt"
	"strings"

	"mercator-hq/verdict/pkg/decisionlog"
)

// Formats lists the accepted export formats.
var Formats = []string{"json", "csv", "text"}

// New returns the exporter for format.
func New(format string) (decisionlog.Exporter, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONExporter(true), nil
	case "csv":
		return NewCSVExporter(true), nil
	case "text", "table":
		return NewTextExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (must be one of %s)", format, strings.Join(Formats, ", "))
	}
}
