package tablefile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"mercator-hq/verdict/pkg/dynamic"
	"mercator-hq/verdict/pkg/table"
)

// Build constructs a PENDING table from the document. Dynamic Value
// references are resolved through resolver while rows are bound.
func (d *Document) Build(ctx context.Context, resolver table.Resolver, logger *slog.Logger) (*table.Table, error) {
	return d.BuildWithSettings(ctx, resolver, table.DefaultSettings(), logger)
}

// BuildWithSettings is Build with base in place of the default settings.
// Settings named in the document still override base.
func (d *Document) BuildWithSettings(ctx context.Context, resolver table.Resolver, base *table.Settings, logger *slog.Logger) (*table.Table, error) {
	settings := *base
	opts := []table.Option{
		table.WithResolver(resolver),
		table.WithDescription(d.Description),
		table.WithSettings(d.Settings.apply(&settings)),
	}
	if logger != nil {
		opts = append(opts, table.WithLogger(logger))
	}
	t := table.New(d.Name, opts...)

	err := t.Edit(ctx, func(b *table.Builder) error {
		for i, f := range d.Request {
			if err := b.AddInput(f.Name, f.Type, f.Description, f.Default); err != nil {
				return &Error{Source: d.Source, Path: fmt.Sprintf("request[%d]", i), Err: err}
			}
		}
		for i, f := range d.Response {
			if err := b.AddOutput(f.Name, f.Type, f.Description, f.Default); err != nil {
				return &Error{Source: d.Source, Path: fmt.Sprintf("response[%d]", i), Err: err}
			}
		}
		for i, rd := range d.Rows {
			row, err := rd.row()
			if err != nil {
				return &Error{Source: d.Source, Path: fmt.Sprintf("rows[%d]", i), Err: err}
			}
			if _, err := b.AppendRow(row); err != nil {
				return &Error{Source: d.Source, Path: fmt.Sprintf("rows[%d]", i), Line: rd.line(), Err: err}
			}
		}
		return nil
	})
	if err != nil {
		var derr *Error
		if !errors.As(err, &derr) {
			err = &Error{Source: d.Source, Path: "rows", Err: err}
		}
		return nil, err
	}
	return t, nil
}

func (rd RowDoc) row() (table.Row, error) {
	combinator, err := table.ParseCombinator(rd.Match)
	if err != nil {
		return table.Row{}, err
	}

	preds := make([]table.Predicate, 0, len(rd.When))
	for _, c := range rd.When {
		p, err := c.predicate()
		if err != nil {
			return table.Row{}, err
		}
		preds = append(preds, p)
	}

	return table.Row{
		ID:          rd.ID,
		Description: rd.Description,
		Combinator:  combinator,
		Predicates:  preds,
		Outcome:     table.Outcome(rd.Then),
	}, nil
}

func (rd RowDoc) line() int {
	if len(rd.When) > 0 {
		return rd.When[0].Line
	}
	return 0
}

// References returns the sorted names of the Dynamic Values the rows
// reference. The document is not built, so nothing is resolved.
func (d *Document) References() []string {
	seen := make(map[string]bool)
	for _, rd := range d.Rows {
		for _, c := range rd.When {
			for _, v := range c.Operands {
				if o := decodeOperand(v); o.IsRef() {
					seen[o.RefName()] = true
				}
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SeedValues writes the document's values into store. Existing values with
// the same names are replaced.
func (d *Document) SeedValues(ctx context.Context, store dynamic.Store) error {
	names := make([]string, 0, len(d.Values))
	for name := range d.Values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := store.Set(ctx, name, d.Values[name]); err != nil {
			return &Error{Source: d.Source, Path: "values." + name, Err: err}
		}
	}
	return nil
}
