package table

import (
	"fmt"
	"strings"

	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Render draws the table as a grid: one column per input field holding the
// row's condition, then one column per output field holding the outcome.
func (t *Table) Render() string {
	s := t.current.Load()
	inputs := s.registry.inputs
	outputs := s.registry.outputs

	tw := prettytable.NewWriter()
	title := t.name
	if t.description != "" {
		title = fmt.Sprintf("%s\n%s", t.name, t.description)
	}
	tw.SetTitle(title)

	header := prettytable.Row{"#", "MATCH"}
	for _, f := range inputs {
		header = append(header, fmt.Sprintf("%s (%s)", f.Name, f.Type))
	}
	for _, f := range outputs {
		header = append(header, fmt.Sprintf("→ %s (%s)", f.Name, f.Type))
	}
	tw.AppendHeader(header)

	for i, r := range s.rows {
		match := strings.ToLower(string(r.combinator()))
		if r.IsFallback() {
			match = "fallback"
		}
		line := prettytable.Row{i + 1, match}
		for _, f := range inputs {
			if p, ok := r.Predicate(f.Name); ok {
				line = append(line, p.Condition())
			} else {
				line = append(line, "-")
			}
		}
		for _, f := range outputs {
			if v, ok := r.Outcome[f.Name]; ok {
				line = append(line, formatValue(v))
			} else {
				line = append(line, formatValue(f.Default))
			}
		}
		tw.AppendRow(line)
	}

	configs := make([]prettytable.ColumnConfig, 0, len(inputs)+len(outputs))
	for i := range inputs {
		configs = append(configs, prettytable.ColumnConfig{Number: i + 3, WidthMax: 40})
	}
	tw.SetColumnConfigs(configs)

	style := prettytable.StyleLight
	style.Format.Header = text.FormatDefault
	tw.SetStyle(style)
	return tw.Render()
}

// String implements fmt.Stringer.
func (t *Table) String() string {
	return t.Render()
}
