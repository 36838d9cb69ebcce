package tablefile

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"mercator-hq/verdict/pkg/ruletest"
	"mercator-hq/verdict/pkg/table"
)

// Meta carries the document fields a table does not hold itself.
type Meta struct {
	Slug              string
	Folder            string
	ContinuousTesting bool
	Values            map[string]any
}

// FromTable builds a document describing t. Row IDs are kept so that a
// round trip preserves them.
func FromTable(t *table.Table, meta Meta, tests []ruletest.Test) *Document {
	settings := t.Settings()
	reg := t.Registry()

	doc := &Document{
		Name:              t.Name(),
		Slug:              meta.Slug,
		Description:       t.Description(),
		Folder:            meta.Folder,
		ContinuousTesting: meta.ContinuousTesting,
		Settings: &SettingsDoc{
			SchemaValidation:     &settings.SchemaValidation,
			RequireAllProperties: &settings.RequireAllProperties,
			RequireFallback:      &settings.RequireFallback,
			BulkWorkers:          &settings.BulkWorkers,
		},
		Request:           reg.Inputs(),
		Response:          reg.Outputs(),
		Values:            meta.Values,
		Tests:             tests,
	}
	if doc.Slug == "" {
		doc.Slug = Slugify(doc.Name)
	}

	for _, r := range t.Rows() {
		rd := RowDoc{
			ID:          r.ID,
			Description: r.Description,
			Then:        map[string]any(r.Outcome),
		}
		if r.Combinator == table.CombinatorAny {
			rd.Match = "any"
		}
		for _, p := range r.Predicates {
			rd.When = append(rd.When, conditionOf(p))
		}
		doc.Rows = append(doc.Rows, rd)
	}
	return doc
}

// Marshal encodes the document as YAML.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("failed to encode table document: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode table document: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode writes t and its metadata as a YAML document.
func Encode(t *table.Table, meta Meta, tests []ruletest.Test) ([]byte, error) {
	return FromTable(t, meta, tests).Marshal()
}
