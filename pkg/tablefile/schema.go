package tablefile

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"mercator-hq/verdict/pkg/ruletest"
	"mercator-hq/verdict/pkg/table"
)

// Document is the YAML form of a decision table and its metadata.
type Document struct {
	Name              string          `yaml:"name"`
	Slug              string          `yaml:"slug,omitempty"`
	Description       string          `yaml:"description,omitempty"`
	Folder            string          `yaml:"folder,omitempty"`
	ContinuousTesting bool            `yaml:"continuous_testing,omitempty"`
	Settings          *SettingsDoc    `yaml:"settings,omitempty"`
	Request           []table.Field   `yaml:"request"`
	Response          []table.Field   `yaml:"response"`
	Values            map[string]any  `yaml:"values,omitempty"`
	Rows              []RowDoc        `yaml:"rows"`
	Tests             []ruletest.Test `yaml:"tests,omitempty"`

	// Source is the file the document was read from.
	Source string `yaml:"-"`
}

// SettingsDoc holds table settings. Omitted keys keep their defaults.
type SettingsDoc struct {
	SchemaValidation     *bool `yaml:"schema_validation,omitempty"`
	RequireAllProperties *bool `yaml:"require_all_properties,omitempty"`
	RequireFallback      *bool `yaml:"require_fallback,omitempty"`
	BulkWorkers          *int  `yaml:"bulk_workers,omitempty"`
}

// apply overlays the document settings on s.
func (d *SettingsDoc) apply(s *table.Settings) *table.Settings {
	if d == nil {
		return s
	}
	if d.SchemaValidation != nil {
		s.SchemaValidation = *d.SchemaValidation
	}
	if d.RequireAllProperties != nil {
		s.RequireAllProperties = *d.RequireAllProperties
	}
	if d.RequireFallback != nil {
		s.RequireFallback = *d.RequireFallback
	}
	if d.BulkWorkers != nil {
		s.BulkWorkers = *d.BulkWorkers
	}
	return s
}

// RowDoc is one condition row.
type RowDoc struct {
	ID          string         `yaml:"id,omitempty"`
	Description string         `yaml:"description,omitempty"`
	Match       string         `yaml:"match,omitempty"`
	When        When           `yaml:"when,omitempty"`
	Then        map[string]any `yaml:"then,omitempty"`
}

// Condition is one field predicate under when.
type Condition struct {
	Field    string
	Operator table.Operator
	Operands []any
	Line     int
}

// When is the ordered list of conditions of a row.
type When []Condition

// UnmarshalYAML decodes a mapping of field to condition, keeping key order.
func (w *When) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: when must be a mapping of field to condition", node.Line)
	}

	conds := make(When, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, val := node.Content[i], node.Content[i+1]
		cond, err := decodeCondition(key.Value, val)
		if err != nil {
			return fmt.Errorf("line %d: field %q: %w", val.Line, key.Value, err)
		}
		conds = append(conds, cond)
	}
	*w = conds
	return nil
}

// MarshalYAML encodes the conditions as an ordered mapping.
func (w When) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, c := range w {
		var value yaml.Node
		var operand any
		switch {
		case c.Operator == table.OpEquals && len(c.Operands) == 1:
			operand = c.Operands[0]
		case len(c.Operands) == 1 && c.Operator != table.OpOneOf:
			operand = map[string]any{string(c.Operator): c.Operands[0]}
		default:
			operand = map[string]any{string(c.Operator): c.Operands}
		}
		if err := value.Encode(operand); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: c.Field},
			&value,
		)
	}
	return node, nil
}

func decodeCondition(field string, node *yaml.Node) (Condition, error) {
	cond := Condition{Field: field, Line: node.Line}

	switch node.Kind {
	case yaml.ScalarNode:
		var v any
		if err := node.Decode(&v); err != nil {
			return cond, err
		}
		cond.Operator = table.OpEquals
		cond.Operands = []any{v}
		return cond, nil

	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return cond, fmt.Errorf("condition must have exactly one operator")
		}
		op, err := table.ParseOperator(node.Content[0].Value)
		if err != nil {
			return cond, err
		}
		cond.Operator = op

		operandNode := node.Content[1]
		if operandNode.Kind == yaml.SequenceNode {
			var vs []any
			if err := operandNode.Decode(&vs); err != nil {
				return cond, err
			}
			cond.Operands = vs
			return cond, nil
		}
		var v any
		if err := operandNode.Decode(&v); err != nil {
			return cond, err
		}
		cond.Operands = []any{v}
		return cond, nil

	default:
		return cond, fmt.Errorf("condition must be a value or a mapping of operator to operands")
	}
}

// predicate converts a condition into a table predicate.
func (c Condition) predicate() (table.Predicate, error) {
	operands := make([]table.Operand, len(c.Operands))
	for i, v := range c.Operands {
		operands[i] = decodeOperand(v)
	}
	return table.NewPredicate(c.Field, c.Operator, operands...)
}

// conditionOf converts a predicate into a condition.
func conditionOf(p table.Predicate) Condition {
	ops := p.Operands()
	values := make([]any, len(ops))
	for i, o := range ops {
		values[i] = encodeOperand(o)
	}
	return Condition{Field: p.Field(), Operator: p.Operator(), Operands: values}
}

func decodeOperand(v any) table.Operand {
	s, ok := v.(string)
	if !ok {
		return table.Lit(v)
	}
	switch {
	case strings.HasPrefix(s, "$$"):
		return table.Lit(s[1:])
	case strings.HasPrefix(s, "$") && len(s) > 1:
		return table.Ref(s[1:])
	default:
		return table.Lit(s)
	}
}

func encodeOperand(o table.Operand) any {
	if o.IsRef() {
		return "$" + o.RefName()
	}
	if s, ok := o.Literal().(string); ok && strings.HasPrefix(s, "$") {
		return "$" + s
	}
	return o.Literal()
}
